package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/gridloop/internal/model"
)

func echoHandler(_ context.Context, config, inputs map[string]any) (map[string]any, error) {
	return map[string]any{"config": config, "inputs": inputs}, nil
}

func TestRegisterHandler(t *testing.T) {
	t.Run("dispatches by kind", func(t *testing.T) {
		r := New()
		r.RegisterHandler("echo", echoHandler)

		node := &model.Node{ID: "e1", Kind: "echo", Config: map[string]any{"label": "x"}}
		out, err := r.Execute(context.Background(), node, map[string]any{"value": 1})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"label": "x"}, out["config"])
		assert.Equal(t, map[string]any{"value": 1}, out["inputs"])
	})

	t.Run("duplicate kind panics", func(t *testing.T) {
		r := New()
		r.RegisterHandler("echo", echoHandler)
		assert.PanicsWithValue(t, "handler for node kind 'echo' already registered", func() {
			r.RegisterHandler("echo", echoHandler)
		})
	})

	t.Run("unknown kind errors", func(t *testing.T) {
		r := New()
		node := &model.Node{ID: "m1", Kind: "mystery"}
		_, err := r.Execute(context.Background(), node, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mystery")
	})
}

func TestValidateGraph(t *testing.T) {
	r := New()
	r.RegisterHandler("echo", echoHandler)

	t.Run("all kinds registered", func(t *testing.T) {
		g := &model.Graph{Nodes: []*model.Node{{ID: "a", Kind: "echo"}}}
		require.NoError(t, r.ValidateGraph(context.Background(), g))
	})

	t.Run("unknown kind reported per node", func(t *testing.T) {
		g := &model.Graph{Nodes: []*model.Node{
			{ID: "a", Kind: "echo"},
			{ID: "b", Kind: "mystery"},
			{ID: "c", Kind: "mystery"},
		}}
		err := r.ValidateGraph(context.Background(), g)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "node 'b'")
		assert.Contains(t, err.Error(), "node 'c'")
	})
}
