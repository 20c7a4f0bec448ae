// Package cycleexec drives one resolved cycle group to completion.
//
// Each iteration runs the loop's members strictly in their internal order,
// mapping fields along every internal edge, then evaluates the convergence
// expression against the exit node's flattened output. Feedback edges are
// applied between iterations only: the values they carry become part of the
// entry node's input for the next iteration, never the current one. On the
// first iteration no feedback has been produced, so feedback-mapped fields
// are simply absent and the entry node's handler decides what absence means.
package cycleexec

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vk/gridloop/internal/converge"
	"github.com/vk/gridloop/internal/ctxlog"
	"github.com/vk/gridloop/internal/fieldmap"
	"github.com/vk/gridloop/internal/model"
	"github.com/vk/gridloop/internal/plan"
)

// NodeExecutor runs a single node. It is the engine's only view of node
// semantics; retries and node-level timeouts belong to the implementation.
type NodeExecutor interface {
	Execute(ctx context.Context, node *model.Node, inputs map[string]any) (map[string]any, error)
}

// IterationRecord captures one iteration's outcome, kept for diagnostics for
// the lifetime of a single Run call.
type IterationRecord struct {
	// Index is the zero-based iteration counter.
	Index int
	// Outputs holds each member's raw output from this iteration.
	Outputs map[string]map[string]any
	// Converged is the convergence expression's result after this iteration.
	Converged bool
}

// Result is the outcome of driving a cycle group.
type Result struct {
	Status  Status
	Records []IterationRecord
	// Outputs is the last completed iteration's per-member outputs; these
	// become the members' effective outputs for downstream stages. Nil when
	// no iteration completed.
	Outputs map[string]map[string]any
	// Iterations is the number of completed iterations.
	Iterations int
}

// Executor drives one cycle group. An Executor serves a single Run call;
// create a fresh one per cycle stage.
type Executor struct {
	group *plan.Group
	graph *model.Graph
	exec  NodeExecutor

	status Status
	now    func() time.Time
}

// New creates an executor for the given cycle group.
func New(group *plan.Group, graph *model.Graph, exec NodeExecutor) *Executor {
	return &Executor{
		group:  group,
		graph:  graph,
		exec:   exec,
		status: StatusIdle,
		now:    time.Now,
	}
}

// Status returns the executor's current state.
func (e *Executor) Status() Status { return e.status }

// Run iterates the cycle group until convergence, iteration exhaustion,
// timeout, or failure. The external state maps node ids produced by earlier
// stages to their raw outputs; initial is the run's initial input set, handed
// to members with no inbound edges at all.
//
// A non-nil error accompanies StatusFailed only. MaxIterations and TimedOut
// are reported through the status, not the error: the caller decides what
// they mean for the run.
func (e *Executor) Run(ctx context.Context, external map[string]map[string]any, initial map[string]any) (*Result, error) {
	logger := ctxlog.FromContext(ctx).With("cycle", e.group.ID)
	logger.Info("🔁 Starting cycle", "max_iterations", e.group.MaxIterations, "members", e.group.Members, "downstream", e.group.Downstream)

	e.status = StatusIterating
	var start time.Time
	if e.group.Timeout > 0 {
		start = e.now()
	}

	result := &Result{Status: StatusIterating}
	var feedback map[string]any

	for iter := 0; iter < e.group.MaxIterations; iter++ {
		if e.group.Timeout > 0 && e.now().Sub(start) >= e.group.Timeout {
			logger.Warn("Cycle timed out between iterations.", "iteration", iter, "timeout", e.group.Timeout)
			e.status = StatusTimedOut
			result.Status = StatusTimedOut
			return result, nil
		}

		iterLogger := logger.With("iteration", iter)
		iterOutputs := make(map[string]map[string]any, len(e.group.Members))

		for _, memberID := range e.group.Members {
			node := e.graph.Node(memberID)
			inputs, err := e.memberInputs(memberID, iter, iterOutputs, external, initial, feedback)
			if err != nil {
				e.status = StatusFailed
				result.Status = StatusFailed
				return result, fmt.Errorf("cycle '%s' iteration %d: resolving inputs for node '%s': %w", e.group.ID, iter, memberID, err)
			}

			iterLogger.Debug("Running cycle member.", "node", memberID)
			output, err := e.exec.Execute(ctx, node, inputs)
			if err != nil {
				e.status = StatusFailed
				result.Status = StatusFailed
				return result, fmt.Errorf("cycle '%s' iteration %d: node '%s': %w", e.group.ID, iter, memberID, err)
			}
			iterOutputs[memberID] = output
		}

		flat := flattenOutput(iterOutputs[e.group.Exit])
		converged, err := converge.Eval(e.group.ConvergeWhen, flat)
		if err != nil {
			e.status = StatusFailed
			result.Status = StatusFailed
			return result, fmt.Errorf("cycle '%s' iteration %d: %w", e.group.ID, iter, err)
		}

		result.Records = append(result.Records, IterationRecord{
			Index:     iter,
			Outputs:   iterOutputs,
			Converged: converged,
		})
		result.Outputs = iterOutputs
		result.Iterations = iter + 1

		if converged {
			iterLogger.Info("✅ Cycle converged", "iterations", iter+1)
			e.status = StatusConverged
			result.Status = StatusConverged
			return result, nil
		}

		feedback, err = e.stageFeedback(iterOutputs)
		if err != nil {
			e.status = StatusFailed
			result.Status = StatusFailed
			return result, fmt.Errorf("cycle '%s' iteration %d: applying feedback: %w", e.group.ID, iter, err)
		}
	}

	logger.Warn("Cycle exhausted its iteration budget without converging.", "iterations", e.group.MaxIterations)
	e.status = StatusMaxIterations
	result.Status = StatusMaxIterations
	return result, nil
}

// memberInputs builds one member's input bindings for the current iteration:
// external inbound mappings, then intra-iteration mappings from members that
// already ran, then (entry node, iterations after the first) the staged
// feedback values. Later sources override earlier ones on key collision, so
// feedback always wins on the entry node.
func (e *Executor) memberInputs(memberID string, iter int, iterOutputs map[string]map[string]any, external map[string]map[string]any, initial, feedback map[string]any) (map[string]any, error) {
	inputs := make(map[string]any)

	hasInbound := false
	for _, edge := range e.group.InboundEdges {
		if edge.Target != memberID {
			continue
		}
		hasInbound = true
		resolved, err := fieldmap.Resolve(external[edge.Source], edge.Mapping)
		if err != nil {
			return nil, err
		}
		for key, value := range resolved {
			inputs[key] = value
		}
	}
	for _, edge := range e.group.InternalEdges {
		if edge.Target != memberID {
			continue
		}
		hasInbound = true
		resolved, err := fieldmap.Resolve(iterOutputs[edge.Source], edge.Mapping)
		if err != nil {
			return nil, err
		}
		for key, value := range resolved {
			inputs[key] = value
		}
	}

	// A member nothing feeds into starts from the run's initial inputs,
	// mirroring how root nodes behave outside cycles.
	if !hasInbound {
		for key, value := range initial {
			inputs[key] = value
		}
	}

	if memberID == e.group.Entry && iter > 0 {
		for key, value := range feedback {
			inputs[key] = value
		}
	}
	return inputs, nil
}

// stageFeedback resolves the feedback edges against this iteration's outputs
// to produce the entry bindings for the next iteration.
func (e *Executor) stageFeedback(iterOutputs map[string]map[string]any) (map[string]any, error) {
	staged := make(map[string]any)
	for _, edge := range e.group.FeedbackEdges {
		resolved, err := fieldmap.Resolve(iterOutputs[edge.Source], edge.Mapping)
		if err != nil {
			return nil, err
		}
		for key, value := range resolved {
			staged[key] = value
		}
	}
	return staged, nil
}

// flattenOutput removes one level of wrapping from the exit node's raw
// output: map-valued top-level entries are merged into the flat namespace,
// scalar entries are kept as-is. Keys are processed in sorted order so a
// collision between a wrapper's contents and a top-level field resolves the
// same way every run.
func flattenOutput(raw map[string]any) map[string]any {
	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	flat := make(map[string]any, len(raw))
	for _, key := range keys {
		if nested, ok := raw[key].(map[string]any); ok {
			nestedKeys := make([]string, 0, len(nested))
			for nk := range nested {
				nestedKeys = append(nestedKeys, nk)
			}
			sort.Strings(nestedKeys)
			for _, nk := range nestedKeys {
				flat[nk] = nested[nk]
			}
			continue
		}
		flat[key] = raw[key]
	}
	return flat
}
