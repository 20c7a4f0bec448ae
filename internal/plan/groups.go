package plan

import (
	"fmt"
	"sort"
	"time"

	"github.com/vk/gridloop/internal/model"
)

// Group is the resolved descriptor for one declared cycle: the loop's
// members in their fixed intra-iteration order, the entry and exit points,
// the edges that feed state back into the next iteration, and everything the
// loop feeds downstream.
type Group struct {
	// ID is the cycle id shared by all feedback edges of this group.
	ID string
	// Members lists the loop's nodes in execution order within one
	// iteration: the topological order of the internal DAG edges, ties
	// broken by id.
	Members []string
	// Entry is the member that starts each iteration. All of its DAG
	// predecessors lie outside the loop, and every feedback edge targets it.
	Entry string
	// Exit is the member that ends each iteration and produces the output
	// the convergence expression is evaluated against. Every feedback edge
	// originates here.
	Exit string
	// FeedbackEdges carry fields from Exit's output into Entry's input for
	// the next iteration only, never the current one. Sorted.
	FeedbackEdges []model.Edge
	// InternalEdges are the DAG edges between members; they define the
	// member order and the intra-iteration field mappings. Sorted.
	InternalEdges []model.Edge
	// InboundEdges are DAG edges from non-members into members; they are
	// resolved once per iteration from state produced by earlier stages.
	// Sorted.
	InboundEdges []model.Edge
	// Downstream holds the ids of all non-member nodes DAG-reachable from
	// any member. They run once, after the loop settles. Stage ordering is
	// derived independently by the planner; this list is for callers and
	// diagnostics, e.g. the cycle executor's run log. Sorted.
	Downstream []string

	// Limits copied from the cycle's configuration.
	MaxIterations int
	ConvergeWhen  string
	Timeout       time.Duration

	memberSet map[string]bool
}

// IsMember reports whether the node id belongs to the loop body.
func (g *Group) IsMember(id string) bool { return g.memberSet[id] }

// ResolveGroups collects cycle edges into Group descriptors, one per cycle
// id, validating that each id describes exactly one well-formed loop.
func ResolveGroups(g *model.Graph, dagEdges, cycleEdges []model.Edge) ([]*Group, error) {
	byID := make(map[string][]model.Edge)
	for _, edge := range cycleEdges {
		byID[edge.Cycle] = append(byID[edge.Cycle], edge)
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	successors := make(map[string][]string)
	predecessors := make(map[string][]string)
	for _, edge := range dagEdges {
		successors[edge.Source] = append(successors[edge.Source], edge.Target)
		predecessors[edge.Target] = append(predecessors[edge.Target], edge.Source)
	}

	claimed := make(map[string]string) // member node id -> cycle id
	groups := make([]*Group, 0, len(ids))
	for _, id := range ids {
		group, err := resolveGroup(g, id, byID[id], dagEdges, successors, predecessors)
		if err != nil {
			return nil, err
		}
		for _, member := range group.Members {
			if other, taken := claimed[member]; taken {
				return nil, &CycleDefinitionError{
					CycleID: id,
					Reason:  fmt.Sprintf("node '%s' already belongs to cycle '%s'; loops may not share members", member, other),
				}
			}
			claimed[member] = id
		}
		groups = append(groups, group)
	}
	return groups, nil
}

func resolveGroup(g *model.Graph, id string, feedback []model.Edge, dagEdges []model.Edge, successors, predecessors map[string][]string) (*Group, error) {
	cfg := g.CycleConfig(id)
	if cfg == nil {
		return nil, &CycleDefinitionError{CycleID: id, Reason: "edges reference an undeclared cycle"}
	}
	if cfg.MaxIterations < 1 {
		return nil, &CycleDefinitionError{CycleID: id, Reason: "max_iterations must be at least 1"}
	}
	if cfg.ConvergeWhen == "" {
		return nil, &CycleDefinitionError{CycleID: id, Reason: "convergence expression is required"}
	}

	// All feedback edges must leave the loop's single decision point.
	exit := feedback[0].Source
	entry := feedback[0].Target
	for _, edge := range feedback {
		if edge.Source != exit {
			return nil, &CycleDefinitionError{
				CycleID: id,
				Reason:  fmt.Sprintf("feedback edges have differing sources '%s' and '%s'; a cycle has one exit node", exit, edge.Source),
			}
		}
		if edge.Target != entry {
			return nil, &CycleDefinitionError{
				CycleID: id,
				Reason:  fmt.Sprintf("feedback edges have differing targets '%s' and '%s'; a cycle has one entry node", entry, edge.Target),
			}
		}
	}

	// The loop body is every node on a DAG path from entry to exit. If the
	// exit is unreachable from the entry the declared edges do not close a
	// loop at all.
	forward := reachable(entry, successors)
	backward := reachable(exit, predecessors)
	memberSet := map[string]bool{entry: true, exit: true}
	for node := range forward {
		if backward[node] {
			memberSet[node] = true
		}
	}
	if entry != exit && !forward[exit] {
		return nil, &CycleDefinitionError{
			CycleID: id,
			Reason:  fmt.Sprintf("no path from entry '%s' to exit '%s'; the declared edges do not form a loop", entry, exit),
		}
	}

	members := make([]string, 0, len(memberSet))
	for node := range memberSet {
		members = append(members, node)
	}
	sort.Strings(members)

	// The entry must be the only member fed from outside the loop body
	// by DAG edges that are entry points; other members receiving external
	// input would make the iteration order ambiguous.
	var internal, inbound []model.Edge
	downstreamSet := make(map[string]bool)
	for _, edge := range dagEdges {
		srcIn, dstIn := memberSet[edge.Source], memberSet[edge.Target]
		switch {
		case srcIn && dstIn:
			internal = append(internal, edge)
		case !srcIn && dstIn:
			inbound = append(inbound, edge)
			if edge.Target != entry {
				return nil, &CycleDefinitionError{
					CycleID: id,
					Reason:  fmt.Sprintf("member '%s' receives input from outside the loop but is not the entry node", edge.Target),
				}
			}
		case srcIn && !dstIn:
			for node := range reachable(edge.Target, successors) {
				if !memberSet[node] {
					downstreamSet[node] = true
				}
			}
			downstreamSet[edge.Target] = true
		}
	}

	ordered, err := orderMembers(id, members, internal)
	if err != nil {
		return nil, err
	}
	if ordered[0] != entry {
		return nil, &CycleDefinitionError{
			CycleID: id,
			Reason:  fmt.Sprintf("entry node '%s' is not first in the loop's internal order", entry),
		}
	}

	downstream := make([]string, 0, len(downstreamSet))
	for node := range downstreamSet {
		downstream = append(downstream, node)
	}
	sort.Strings(downstream)

	model.SortEdges(feedback)
	model.SortEdges(internal)
	model.SortEdges(inbound)

	return &Group{
		ID:            id,
		Members:       ordered,
		Entry:         entry,
		Exit:          exit,
		FeedbackEdges: feedback,
		InternalEdges: internal,
		InboundEdges:  inbound,
		Downstream:    downstream,
		MaxIterations: cfg.MaxIterations,
		ConvergeWhen:  cfg.ConvergeWhen,
		Timeout:       cfg.Timeout,
		memberSet:     memberSet,
	}, nil
}

// orderMembers topologically sorts the loop body over its internal DAG
// edges, breaking ties by id. The internal edges of a well-formed loop chain
// the members into a path, so in practice every layer has a single node.
func orderMembers(cycleID string, members []string, internal []model.Edge) ([]string, error) {
	indegree := make(map[string]int, len(members))
	successors := make(map[string][]string)
	for _, member := range members {
		indegree[member] = 0
	}
	for _, edge := range internal {
		successors[edge.Source] = append(successors[edge.Source], edge.Target)
		indegree[edge.Target]++
	}

	ready := make([]string, 0, len(members))
	for _, member := range members {
		if indegree[member] == 0 {
			ready = append(ready, member)
		}
	}
	sort.Strings(ready)

	ordered := make([]string, 0, len(members))
	for len(ready) > 0 {
		current := ready[0]
		ready = ready[1:]
		ordered = append(ordered, current)
		for _, next := range successors[current] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
			}
		}
		sort.Strings(ready)
	}

	if len(ordered) != len(members) {
		// Unreachable after Classify proved the DAG acyclic, but guarded
		// so a planner bug cannot silently drop members.
		return nil, &CycleDefinitionError{CycleID: cycleID, Reason: "internal edges of the loop are not acyclic"}
	}
	return ordered, nil
}

// reachable returns every node reachable from start by following the given
// adjacency, excluding start itself unless it lies on a cycle through the
// adjacency.
func reachable(start string, adjacency map[string][]string) map[string]bool {
	seen := make(map[string]bool)
	stack := append([]string(nil), adjacency[start]...)
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[current] {
			continue
		}
		seen[current] = true
		stack = append(stack, adjacency[current]...)
	}
	return seen
}
