package plan

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/vk/gridloop/internal/ctxlog"
	"github.com/vk/gridloop/internal/model"
)

// Stage is one unit of a plan: either a batch of DAG nodes with no
// dependency path among themselves, or a whole cycle group.
type Stage struct {
	// Batch lists the node ids of a DAG batch in id order. Nil for cycle
	// stages. Members of a batch may be dispatched concurrently.
	Batch []string
	// Cycle is the cycle id of a cycle stage; empty for batches.
	Cycle string
}

// IsCycle reports whether the stage executes a cycle group.
func (s Stage) IsCycle() bool { return s.Cycle != "" }

// Plan is the immutable execution plan for one workflow graph. It is built
// once per graph and reused, read-only, across any number of concurrent
// runs.
type Plan struct {
	Stages []Stage
	Graph  *model.Graph
	// Groups indexes the resolved cycle groups by cycle id.
	Groups map[string]*Group

	// inbound indexes the DAG edges by target node, sorted, for input
	// resolution at run time.
	inbound map[string][]model.Edge
}

// InboundDag returns the ordinary DAG edges targeting the given node, in
// stable (source, target) order.
func (p *Plan) InboundDag(nodeID string) []model.Edge {
	return p.inbound[nodeID]
}

// Build produces the execution plan for a graph: classification, cycle
// group resolution, then deterministic topological staging. Build is a pure
// function of the graph; building the same graph twice yields identical
// plans.
func Build(ctx context.Context, g *model.Graph) (*Plan, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: starting plan construction.", "nodes", len(g.Nodes), "edges", len(g.Edges))

	dagEdges, cycleEdges, err := Classify(g)
	if err != nil {
		return nil, err
	}
	logger.Debug("Build: edge classification complete.", "dag_edges", len(dagEdges), "cycle_edges", len(cycleEdges))

	groups, err := ResolveGroups(g, dagEdges, cycleEdges)
	if err != nil {
		return nil, err
	}
	logger.Debug("Build: cycle groups resolved.", "groups", len(groups))

	stages, err := layer(g, dagEdges, groups)
	if err != nil {
		return nil, err
	}
	logger.Debug("Build: staging complete.", "stages", len(stages))

	groupIndex := make(map[string]*Group, len(groups))
	for _, group := range groups {
		groupIndex[group.ID] = group
	}
	inbound := make(map[string][]model.Edge)
	for _, edge := range dagEdges {
		inbound[edge.Target] = append(inbound[edge.Target], edge)
	}

	return &Plan{
		Stages:  stages,
		Graph:   g,
		Groups:  groupIndex,
		inbound: inbound,
	}, nil
}

// layer runs Kahn's algorithm over the DAG with every cycle group collapsed
// into a single synthetic vertex, then expands each topological layer into
// stages: one batch for the layer's plain nodes, followed by one cycle stage
// per group in the layer, in cycle id order.
func layer(g *model.Graph, dagEdges []model.Edge, groups []*Group) ([]Stage, error) {
	const groupPrefix = "\x00cycle:" // NUL keeps synthetic ids out of the node namespace

	vertexOf := make(map[string]string) // node id -> vertex id
	for _, n := range g.Nodes {
		vertexOf[n.ID] = n.ID
	}
	for _, group := range groups {
		for _, member := range group.Members {
			vertexOf[member] = groupPrefix + group.ID
		}
	}

	indegree := make(map[string]int)
	successors := make(map[string]map[string]bool)
	for _, id := range vertexOf {
		if _, ok := indegree[id]; !ok {
			indegree[id] = 0
			successors[id] = make(map[string]bool)
		}
	}
	for _, edge := range dagEdges {
		from, to := vertexOf[edge.Source], vertexOf[edge.Target]
		if from == to {
			continue // internal to a group
		}
		if !successors[from][to] {
			successors[from][to] = true
			indegree[to]++
		}
	}

	ready := make([]string, 0, len(indegree))
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	var stages []Stage
	placed := 0
	for len(ready) > 0 {
		current := ready
		ready = nil

		var batch []string
		var cycles []string
		for _, id := range current {
			if cycleID, ok := strings.CutPrefix(id, groupPrefix); ok {
				cycles = append(cycles, cycleID)
			} else {
				batch = append(batch, id)
			}
			placed++
		}
		if len(batch) > 0 {
			stages = append(stages, Stage{Batch: batch})
		}
		sort.Strings(cycles)
		for _, cycleID := range cycles {
			stages = append(stages, Stage{Cycle: cycleID})
		}

		for _, id := range current {
			next := make([]string, 0, len(successors[id]))
			for succ := range successors[id] {
				next = append(next, succ)
			}
			sort.Strings(next)
			for _, succ := range next {
				indegree[succ]--
				if indegree[succ] == 0 {
					ready = append(ready, succ)
				}
			}
		}
		sort.Strings(ready)
	}

	if placed != len(indegree) {
		// Classify proved the node DAG acyclic, so a leftover vertex means
		// group collapsing introduced a cycle between a loop and its
		// surroundings, e.g. a downstream node feeding back in untagged.
		return nil, &StructureError{Reason: fmt.Sprintf("could not order %d vertices; a cycle group depends on its own downstream nodes", len(indegree)-placed)}
	}
	return stages, nil
}
