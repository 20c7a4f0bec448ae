package cycleexec

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/gridloop/internal/model"
	"github.com/vk/gridloop/internal/plan"
)

// scriptExec dispatches to per-node functions and records the call order.
type scriptExec struct {
	handlers map[string]func(inputs map[string]any) (map[string]any, error)
	calls    []string
	inputs   []map[string]any
}

func (s *scriptExec) Execute(_ context.Context, node *model.Node, inputs map[string]any) (map[string]any, error) {
	s.calls = append(s.calls, node.ID)
	s.inputs = append(s.inputs, inputs)
	handler, ok := s.handlers[node.ID]
	if !ok {
		return map[string]any{}, nil
	}
	return handler(inputs)
}

// counterFn increments "count", treating absence as zero.
func counterFn(inputs map[string]any) (map[string]any, error) {
	count := 0
	if v, ok := inputs["count"]; ok {
		count = v.(int)
	}
	return map[string]any{"count": count + 1}, nil
}

func buildGroup(t *testing.T, g *model.Graph) *plan.Group {
	t.Helper()
	dag, cyc, err := plan.Classify(g)
	require.NoError(t, err)
	groups, err := plan.ResolveGroups(g, dag, cyc)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	return groups[0]
}

func selfLoopGraph(convergeWhen string, maxIter int, timeout time.Duration) *model.Graph {
	return &model.Graph{
		Nodes: []*model.Node{{ID: "inc", Kind: "counter"}},
		Edges: []model.Edge{{
			Source: "inc", Target: "inc", Cycle: "count",
			Mapping: []model.FieldRef{{Path: "count", Target: "count"}},
		}},
		Cycles: []*model.CycleConfig{{
			ID: "count", MaxIterations: maxIter, ConvergeWhen: convergeWhen, Timeout: timeout,
		}},
	}
}

func TestRunConverges(t *testing.T) {
	// Counter starts from an absent input and converges once count >= 10.
	g := selfLoopGraph("count >= 10", 100, 0)
	exec := &scriptExec{handlers: map[string]func(map[string]any) (map[string]any, error){"inc": counterFn}}
	e := New(buildGroup(t, g), g, exec)

	result, err := e.Run(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusConverged, result.Status)
	assert.Equal(t, StatusConverged, e.Status())
	assert.Equal(t, 10, result.Iterations)
	assert.Equal(t, 10, result.Outputs["inc"]["count"])
	require.Len(t, result.Records, 10)
	assert.False(t, result.Records[8].Converged)
	assert.True(t, result.Records[9].Converged)
}

func TestRunMaxIterations(t *testing.T) {
	g := selfLoopGraph("count >= 1000", 5, 0)
	exec := &scriptExec{handlers: map[string]func(map[string]any) (map[string]any, error){"inc": counterFn}}
	e := New(buildGroup(t, g), g, exec)

	result, err := e.Run(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusMaxIterations, result.Status)
	assert.Equal(t, 5, result.Iterations)
	assert.Equal(t, 5, result.Outputs["inc"]["count"])
	// The bound holds no matter what the expression says.
	assert.Len(t, exec.calls, 5)
}

func TestFeedbackAppliesToNextIterationOnly(t *testing.T) {
	g := selfLoopGraph("count >= 3", 10, 0)
	exec := &scriptExec{handlers: map[string]func(map[string]any) (map[string]any, error){"inc": counterFn}}
	e := New(buildGroup(t, g), g, exec)

	_, err := e.Run(context.Background(), nil, nil)
	require.NoError(t, err)

	// Iteration 0 sees no feedback-mapped field at all.
	_, hasCount := exec.inputs[0]["count"]
	assert.False(t, hasCount)
	// Iteration 1 sees iteration 0's output.
	assert.Equal(t, 1, exec.inputs[1]["count"])
	assert.Equal(t, 2, exec.inputs[2]["count"])
}

func TestRunTwoMemberLoop(t *testing.T) {
	// improve -> check inside the loop, with check's verdict fed back.
	g := &model.Graph{
		Nodes: []*model.Node{
			{ID: "improve", Kind: "improver"},
			{ID: "check", Kind: "checker"},
		},
		Edges: []model.Edge{
			{Source: "improve", Target: "check", Mapping: []model.FieldRef{{Path: "draft", Target: "draft"}}},
			{Source: "check", Target: "improve", Cycle: "refine",
				Mapping: []model.FieldRef{{Path: "result.feedback", Target: "feedback"}}},
		},
		Cycles: []*model.CycleConfig{{ID: "refine", MaxIterations: 10, ConvergeWhen: "score >= 3"}},
	}

	score := 0
	exec := &scriptExec{handlers: map[string]func(map[string]any) (map[string]any, error){
		"improve": func(inputs map[string]any) (map[string]any, error) {
			draft := "v0"
			if fb, ok := inputs["feedback"]; ok {
				draft = fb.(string) + "+"
			}
			return map[string]any{"draft": draft}, nil
		},
		"check": func(inputs map[string]any) (map[string]any, error) {
			score++
			// Wrapped output: convergence sees the unwrapped fields.
			return map[string]any{"result": map[string]any{
				"score":    score,
				"feedback": inputs["draft"].(string),
			}}, nil
		},
	}}
	e := New(buildGroup(t, g), g, exec)

	result, err := e.Run(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusConverged, result.Status)
	assert.Equal(t, 3, result.Iterations)
	// Members ran in internal order every iteration.
	assert.Equal(t, []string{"improve", "check", "improve", "check", "improve", "check"}, exec.calls)
	// The feedback edge resolved the dotted path into the wrapped output.
	assert.Equal(t, "v0++", result.Outputs["improve"]["draft"])
}

func TestRunExternalInputs(t *testing.T) {
	// The entry receives mapped state from a node outside the loop.
	g := &model.Graph{
		Nodes: []*model.Node{
			{ID: "seed", Kind: "seeder"},
			{ID: "inc", Kind: "counter"},
		},
		Edges: []model.Edge{
			{Source: "seed", Target: "inc", Mapping: []model.FieldRef{{Path: "start", Target: "count"}}},
			{Source: "inc", Target: "inc", Cycle: "count",
				Mapping: []model.FieldRef{{Path: "count", Target: "count"}}},
		},
		Cycles: []*model.CycleConfig{{ID: "count", MaxIterations: 10, ConvergeWhen: "count >= 7"}},
	}
	exec := &scriptExec{handlers: map[string]func(map[string]any) (map[string]any, error){"inc": counterFn}}
	e := New(buildGroup(t, g), g, exec)

	external := map[string]map[string]any{"seed": {"start": 5}}
	result, err := e.Run(context.Background(), external, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusConverged, result.Status)
	// First iteration starts from the external value, feedback overrides after.
	assert.Equal(t, 5, exec.inputs[0]["count"])
	assert.Equal(t, 7, result.Outputs["inc"]["count"])
	assert.Equal(t, 2, result.Iterations)
}

func TestRunNodeFailure(t *testing.T) {
	g := selfLoopGraph("count >= 10", 10, 0)
	boom := errors.New("boom")
	exec := &scriptExec{handlers: map[string]func(map[string]any) (map[string]any, error){
		"inc": func(map[string]any) (map[string]any, error) { return nil, boom },
	}}
	e := New(buildGroup(t, g), g, exec)

	result, err := e.Run(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, result.Status)
	assert.ErrorIs(t, err, boom)
	// Context for diagnosis: cycle id, iteration, node id.
	assert.ErrorContains(t, err, "cycle 'count'")
	assert.ErrorContains(t, err, "iteration 0")
	assert.ErrorContains(t, err, "'inc'")
}

func TestRunBadConvergenceExpression(t *testing.T) {
	g := selfLoopGraph("result.count >= 10", 10, 0)
	exec := &scriptExec{handlers: map[string]func(map[string]any) (map[string]any, error){"inc": counterFn}}
	e := New(buildGroup(t, g), g, exec)

	result, err := e.Run(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, result.Status)
	assert.ErrorContains(t, err, "not flat")
}

func TestRunTimeout(t *testing.T) {
	g := selfLoopGraph("count >= 1000", 1000, 50*time.Millisecond)
	exec := &scriptExec{handlers: map[string]func(map[string]any) (map[string]any, error){"inc": counterFn}}
	e := New(buildGroup(t, g), g, exec)

	// Each now() call advances the fake clock by 20ms, so the deadline
	// passes after a couple of iterations without any real sleeping.
	base := time.Now()
	elapsed := time.Duration(0)
	e.now = func() time.Time {
		elapsed += 20 * time.Millisecond
		return base.Add(elapsed)
	}

	result, err := e.Run(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusTimedOut, result.Status)
	assert.Less(t, result.Iterations, 1000)
}

func TestFlattenOutput(t *testing.T) {
	t.Run("unwraps one level", func(t *testing.T) {
		flat := flattenOutput(map[string]any{"result": map[string]any{"done": true, "count": 3}})
		assert.Equal(t, map[string]any{"done": true, "count": 3}, flat)
	})

	t.Run("keeps scalars", func(t *testing.T) {
		flat := flattenOutput(map[string]any{"count": 5, "result": map[string]any{"done": false}})
		assert.Equal(t, map[string]any{"count": 5, "done": false}, flat)
	})

	t.Run("does not recurse", func(t *testing.T) {
		flat := flattenOutput(map[string]any{"result": map[string]any{"inner": map[string]any{"x": 1}}})
		assert.Equal(t, map[string]any{"inner": map[string]any{"x": 1}}, flat)
	})

	t.Run("nil output", func(t *testing.T) {
		assert.Empty(t, flattenOutput(nil))
	})
}
