package plan

import (
	"github.com/vk/gridloop/internal/model"
)

// Classify splits a graph's edges into ordinary DAG edges and declared cycle
// edges, and verifies that the DAG-only subgraph is acyclic. A cycle formed
// by untagged edges is a StructureError: loops must be declared via a cycle
// id, never implied. Classify has no side effects on the graph.
func Classify(g *model.Graph) (dagEdges, cycleEdges []model.Edge, err error) {
	for _, edge := range g.Edges {
		if src := g.Node(edge.Source); src == nil {
			return nil, nil, &StructureError{NodeID: edge.Source, Reason: "edge references unknown source node"}
		}
		if dst := g.Node(edge.Target); dst == nil {
			return nil, nil, &StructureError{NodeID: edge.Target, Reason: "edge references unknown target node"}
		}
		if edge.IsCycle() {
			cycleEdges = append(cycleEdges, edge)
		} else {
			dagEdges = append(dagEdges, edge)
		}
	}
	model.SortEdges(dagEdges)
	model.SortEdges(cycleEdges)

	if err := detectCycles(g, dagEdges); err != nil {
		return nil, nil, err
	}
	return dagEdges, cycleEdges, nil
}

// detectCycles checks for circular dependencies among DAG edges using DFS.
func detectCycles(g *model.Graph, dagEdges []model.Edge) error {
	successors := make(map[string][]string)
	for _, edge := range dagEdges {
		successors[edge.Source] = append(successors[edge.Source], edge.Target)
	}

	visiting := make(map[string]bool)
	visited := make(map[string]bool)

	var visit func(id string) error
	visit = func(id string) error {
		visiting[id] = true
		for _, next := range successors[id] {
			if visiting[next] {
				return &StructureError{NodeID: next, Reason: "cycle among ordinary edges; loops must be declared with a cycle id"}
			}
			if !visited[next] {
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		delete(visiting, id)
		visited[id] = true
		return nil
	}

	// Iterate in id order so the reported node is stable across builds.
	for _, id := range g.NodeIDs() {
		if !visited[id] {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}
