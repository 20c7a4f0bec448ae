package model

import "sort"

// Node is a single processing step in a workflow graph.
type Node struct {
	// ID uniquely identifies the node within its graph.
	ID string
	// Kind selects the handler that executes this node.
	Kind string
	// Config is an opaque configuration blob owned by the node's handler.
	// The engine never inspects its contents.
	Config map[string]any
}

// FieldRef maps one field of a producer's raw output onto a named input field
// of a consumer.
type FieldRef struct {
	// Path addresses a value inside the producer's output. Dot-separated
	// segments descend into nested maps, e.g. "result.count".
	Path string
	// Target is the input field name presented to the consumer.
	Target string
}

// Edge is a directed connection between two nodes. An edge with a non-empty
// Cycle id is a feedback edge belonging to that cycle; all other edges are
// ordinary DAG edges and must not participate in any cycle.
type Edge struct {
	Source  string
	Target  string
	Mapping []FieldRef
	Cycle   string
}

// IsCycle reports whether the edge is a declared cycle (feedback) edge.
func (e Edge) IsCycle() bool { return e.Cycle != "" }

// Graph is a complete workflow definition: the node set, the edge set, and
// the configuration for every declared cycle.
type Graph struct {
	Nodes  []*Node
	Edges  []Edge
	Cycles []*CycleConfig
}

// Node returns the node with the given id, or nil if the graph has none.
func (g *Graph) Node(id string) *Node {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// CycleConfig returns the configuration for the given cycle id, or nil.
func (g *Graph) CycleConfig(id string) *CycleConfig {
	for _, c := range g.Cycles {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// NodeIDs returns all node ids in ascending order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		ids = append(ids, n.ID)
	}
	sort.Strings(ids)
	return ids
}

// SortEdges orders edges by (source, target, cycle id). It is used wherever a
// stable edge order matters for reproducibility.
func SortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Target != b.Target {
			return a.Target < b.Target
		}
		return a.Cycle < b.Cycle
	})
}
