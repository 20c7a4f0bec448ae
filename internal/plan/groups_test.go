package plan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/gridloop/internal/model"
)

func resolve(t *testing.T, g *model.Graph) ([]*Group, error) {
	t.Helper()
	dag, cyc, err := Classify(g)
	require.NoError(t, err)
	return ResolveGroups(g, dag, cyc)
}

func TestResolveGroups(t *testing.T) {
	t.Run("two node loop", func(t *testing.T) {
		g := graphOf([]string{"a", "b", "c", "d"},
			model.Edge{Source: "a", Target: "b"},
			model.Edge{Source: "b", Target: "c"},
			model.Edge{Source: "c", Target: "b", Cycle: "refine"},
			model.Edge{Source: "c", Target: "d"},
		)
		g.Cycles = []*model.CycleConfig{{ID: "refine", MaxIterations: 10, ConvergeWhen: "done"}}

		groups, err := resolve(t, g)
		require.NoError(t, err)
		require.Len(t, groups, 1)

		group := groups[0]
		assert.Equal(t, "refine", group.ID)
		assert.Equal(t, []string{"b", "c"}, group.Members)
		assert.Equal(t, "b", group.Entry)
		assert.Equal(t, "c", group.Exit)
		assert.Equal(t, []string{"d"}, group.Downstream)
		require.Len(t, group.InboundEdges, 1)
		assert.Equal(t, "a", group.InboundEdges[0].Source)
		require.Len(t, group.InternalEdges, 1)
		assert.Equal(t, "b", group.InternalEdges[0].Source)
		assert.True(t, group.IsMember("b"))
		assert.False(t, group.IsMember("a"))
	})

	t.Run("single node self loop", func(t *testing.T) {
		g := graphOf([]string{"inc"},
			model.Edge{Source: "inc", Target: "inc", Cycle: "count"},
		)
		g.Cycles = []*model.CycleConfig{{ID: "count", MaxIterations: 100, ConvergeWhen: "count >= 10"}}

		groups, err := resolve(t, g)
		require.NoError(t, err)
		require.Len(t, groups, 1)
		assert.Equal(t, []string{"inc"}, groups[0].Members)
		assert.Equal(t, "inc", groups[0].Entry)
		assert.Equal(t, "inc", groups[0].Exit)
		assert.Empty(t, groups[0].Downstream)
	})

	t.Run("three node loop orders members", func(t *testing.T) {
		g := graphOf([]string{"plan", "act", "check"},
			model.Edge{Source: "plan", Target: "act"},
			model.Edge{Source: "act", Target: "check"},
			model.Edge{Source: "check", Target: "plan", Cycle: "ooda"},
		)
		g.Cycles = []*model.CycleConfig{{ID: "ooda", MaxIterations: 5, ConvergeWhen: "ok", Timeout: 30 * time.Second}}

		groups, err := resolve(t, g)
		require.NoError(t, err)
		require.Len(t, groups, 1)
		assert.Equal(t, []string{"plan", "act", "check"}, groups[0].Members)
		assert.Equal(t, 30*time.Second, groups[0].Timeout)
	})

	t.Run("downstream is transitive", func(t *testing.T) {
		g := graphOf([]string{"a", "b", "c", "d"},
			model.Edge{Source: "a", Target: "a", Cycle: "loop"},
			model.Edge{Source: "a", Target: "b"},
			model.Edge{Source: "b", Target: "c"},
			model.Edge{Source: "c", Target: "d"},
		)
		g.Cycles = []*model.CycleConfig{{ID: "loop", MaxIterations: 3, ConvergeWhen: "ok"}}

		groups, err := resolve(t, g)
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "c", "d"}, groups[0].Downstream)
	})

	t.Run("two independent cycles", func(t *testing.T) {
		g := graphOf([]string{"x", "y"},
			model.Edge{Source: "x", Target: "x", Cycle: "first"},
			model.Edge{Source: "y", Target: "y", Cycle: "second"},
		)
		g.Cycles = []*model.CycleConfig{
			{ID: "first", MaxIterations: 2, ConvergeWhen: "ok"},
			{ID: "second", MaxIterations: 2, ConvergeWhen: "ok"},
		}
		groups, err := resolve(t, g)
		require.NoError(t, err)
		require.Len(t, groups, 2)
		// Sorted by cycle id.
		assert.Equal(t, "first", groups[0].ID)
		assert.Equal(t, "second", groups[1].ID)
	})
}

func TestResolveGroupsErrors(t *testing.T) {
	t.Run("undeclared cycle id", func(t *testing.T) {
		g := graphOf([]string{"a"},
			model.Edge{Source: "a", Target: "a", Cycle: "ghost"},
		)
		_, err := resolve(t, g)
		var defErr *CycleDefinitionError
		require.ErrorAs(t, err, &defErr)
		assert.Equal(t, "ghost", defErr.CycleID)
	})

	t.Run("max iterations below one", func(t *testing.T) {
		g := graphOf([]string{"a"},
			model.Edge{Source: "a", Target: "a", Cycle: "loop"},
		)
		g.Cycles = []*model.CycleConfig{{ID: "loop", MaxIterations: 0, ConvergeWhen: "ok"}}
		_, err := resolve(t, g)
		var defErr *CycleDefinitionError
		require.ErrorAs(t, err, &defErr)
		assert.ErrorContains(t, err, "max_iterations")
	})

	t.Run("missing convergence expression", func(t *testing.T) {
		g := graphOf([]string{"a"},
			model.Edge{Source: "a", Target: "a", Cycle: "loop"},
		)
		g.Cycles = []*model.CycleConfig{{ID: "loop", MaxIterations: 1}}
		_, err := resolve(t, g)
		var defErr *CycleDefinitionError
		require.ErrorAs(t, err, &defErr)
	})

	t.Run("disjoint loops sharing an id", func(t *testing.T) {
		// Two unrelated self-loops mistakenly tagged with the same id.
		g := graphOf([]string{"x", "y"},
			model.Edge{Source: "x", Target: "x", Cycle: "shared"},
			model.Edge{Source: "y", Target: "y", Cycle: "shared"},
		)
		g.Cycles = []*model.CycleConfig{{ID: "shared", MaxIterations: 2, ConvergeWhen: "ok"}}
		_, err := resolve(t, g)
		var defErr *CycleDefinitionError
		require.ErrorAs(t, err, &defErr)
	})

	t.Run("feedback edge that closes no loop", func(t *testing.T) {
		// c -> b is tagged, but there is no b -> c path to come back.
		g := graphOf([]string{"b", "c"},
			model.Edge{Source: "c", Target: "b", Cycle: "loop"},
		)
		g.Cycles = []*model.CycleConfig{{ID: "loop", MaxIterations: 2, ConvergeWhen: "ok"}}
		_, err := resolve(t, g)
		var defErr *CycleDefinitionError
		require.ErrorAs(t, err, &defErr)
		assert.ErrorContains(t, err, "loop")
	})

	t.Run("external input into a non-entry member", func(t *testing.T) {
		g := graphOf([]string{"a", "b", "c"},
			model.Edge{Source: "b", Target: "c"},
			model.Edge{Source: "c", Target: "b", Cycle: "loop"},
			model.Edge{Source: "a", Target: "c"},
		)
		g.Cycles = []*model.CycleConfig{{ID: "loop", MaxIterations: 2, ConvergeWhen: "ok"}}
		_, err := resolve(t, g)
		var defErr *CycleDefinitionError
		require.ErrorAs(t, err, &defErr)
		assert.ErrorContains(t, err, "entry")
	})

	t.Run("shared member across cycle ids", func(t *testing.T) {
		g := graphOf([]string{"a", "b"},
			model.Edge{Source: "a", Target: "b"},
			model.Edge{Source: "b", Target: "a", Cycle: "one"},
			model.Edge{Source: "b", Target: "a", Cycle: "two"},
		)
		g.Cycles = []*model.CycleConfig{
			{ID: "one", MaxIterations: 2, ConvergeWhen: "ok"},
			{ID: "two", MaxIterations: 2, ConvergeWhen: "ok"},
		}
		_, err := resolve(t, g)
		var defErr *CycleDefinitionError
		require.ErrorAs(t, err, &defErr)
		assert.ErrorContains(t, err, "share")
	})
}
