package run

import (
	"context"
	"fmt"
	"maps"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vk/gridloop/internal/ctxlog"
	"github.com/vk/gridloop/internal/cycleexec"
	"github.com/vk/gridloop/internal/fieldmap"
	"github.com/vk/gridloop/internal/model"
	"github.com/vk/gridloop/internal/plan"
)

// NodeExecutor executes a single node given its resolved inputs and returns
// the node's raw output fields.
type NodeExecutor interface {
	Execute(ctx context.Context, node *model.Node, inputs map[string]any) (map[string]any, error)
}

// NodeError wraps a handler or input resolution failure with the id of the
// node it occurred on.
type NodeError struct {
	NodeID string
	Err    error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node '%s': %v", e.NodeID, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// Result is the outcome of one workflow run.
type Result struct {
	// RunID uniquely identifies the run across the process lifetime.
	RunID  string
	Status Status
	// Outputs maps each executed node's id to its raw output fields.
	// On failure it holds everything committed before the failing stage.
	Outputs map[string]map[string]any
	// Cycles maps each executed cycle's id to its iteration trace.
	Cycles map[string]*cycleexec.Result
}

// Orchestrator drives a plan to completion: DAG batches are dispatched
// concurrently within a stage, cycle stages run their group to a terminal
// status. One Orchestrator can serve any number of concurrent Run calls;
// the plan is read-only and all run state is per-call.
type Orchestrator struct {
	plan *plan.Plan
	exec NodeExecutor

	// Workers caps concurrent node dispatches within a batch. Zero or
	// negative means no cap beyond the batch size.
	Workers int
	// ContinueOnMaxIterations lets the run proceed past a cycle that
	// exhausted its iteration budget, degrading the final status to
	// StatusMaxIterationsReached instead of stopping at that stage.
	ContinueOnMaxIterations bool
}

// NewOrchestrator returns an orchestrator for the given plan and executor.
func NewOrchestrator(p *plan.Plan, exec NodeExecutor) *Orchestrator {
	return &Orchestrator{plan: p, exec: exec}
}

// Run executes the plan's stages in order. The initial inputs are handed to
// every node with no inbound edges.
//
// A non-nil error accompanies StatusFailed only; budget exhaustion and
// timeouts are reported through the status.
func (o *Orchestrator) Run(ctx context.Context, initial map[string]any) (*Result, error) {
	runID := uuid.New().String()
	logger := ctxlog.FromContext(ctx).With("run_id", runID)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Info("▶️ Starting run", "stages", len(o.plan.Stages))

	result := &Result{
		RunID:   runID,
		Status:  StatusSuccess,
		Outputs: make(map[string]map[string]any),
		Cycles:  make(map[string]*cycleexec.Result),
	}

	for i, stage := range o.plan.Stages {
		var err error
		if stage.IsCycle() {
			err = o.runCycle(ctx, stage.Cycle, initial, result)
		} else {
			err = o.runBatch(ctx, stage.Batch, initial, result)
		}
		if err != nil {
			logger.Error("Run failed.", "stage", i, "error", err)
			result.Status = StatusFailed
			return result, err
		}
		stop := result.Status == StatusTimedOut ||
			(result.Status == StatusMaxIterationsReached && !o.ContinueOnMaxIterations)
		if stop {
			logger.Warn("Run stopped early.", "stage", i, "status", result.Status.String())
			return result, nil
		}
	}

	logger.Info("🏁 Run finished", "status", result.Status.String())
	return result, nil
}

// runBatch resolves each node's inputs from committed state, dispatches the
// batch concurrently, and commits all outputs only after the whole batch
// succeeds. Inputs are resolved before dispatch, so members of a batch never
// observe each other's outputs.
func (o *Orchestrator) runBatch(ctx context.Context, batch []string, initial map[string]any, result *Result) error {
	type dispatch struct {
		node   *model.Node
		inputs map[string]any
		output map[string]any
	}

	dispatches := make([]*dispatch, len(batch))
	for i, nodeID := range batch {
		inputs, err := o.resolveInputs(nodeID, initial, result.Outputs)
		if err != nil {
			return &NodeError{NodeID: nodeID, Err: err}
		}
		dispatches[i] = &dispatch{node: o.plan.Graph.Node(nodeID), inputs: inputs}
	}

	g, gctx := errgroup.WithContext(ctx)
	if o.Workers > 0 {
		g.SetLimit(o.Workers)
	}
	for _, d := range dispatches {
		d := d
		g.Go(func() error {
			output, err := o.exec.Execute(gctx, d.node, d.inputs)
			if err != nil {
				return &NodeError{NodeID: d.node.ID, Err: err}
			}
			d.output = output
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, d := range dispatches {
		result.Outputs[d.node.ID] = d.output
	}
	return nil
}

// runCycle runs one cycle group to a terminal status and folds it into the
// run result. Outputs of the last complete iteration are committed for every
// terminal status except failure.
func (o *Orchestrator) runCycle(ctx context.Context, cycleID string, initial map[string]any, result *Result) error {
	group := o.plan.Groups[cycleID]
	executor := cycleexec.New(group, o.plan.Graph, o.exec)

	cycleResult, err := executor.Run(ctx, result.Outputs, initial)
	result.Cycles[cycleID] = cycleResult
	if err != nil {
		return err
	}

	for nodeID, output := range cycleResult.Outputs {
		result.Outputs[nodeID] = output
	}

	switch cycleResult.Status {
	case cycleexec.StatusConverged:
	case cycleexec.StatusMaxIterations:
		result.Status = StatusMaxIterationsReached
	case cycleexec.StatusTimedOut:
		result.Status = StatusTimedOut
	default:
		return fmt.Errorf("cycle '%s' ended in unexpected status %s", cycleID, cycleResult.Status)
	}
	return nil
}

// resolveInputs builds a node's input bindings by applying every inbound
// mapping in stable edge order. A node with no inbound edges receives a copy
// of the run's initial inputs.
func (o *Orchestrator) resolveInputs(nodeID string, initial map[string]any, state map[string]map[string]any) (map[string]any, error) {
	edges := o.plan.InboundDag(nodeID)
	if len(edges) == 0 {
		inputs := make(map[string]any, len(initial))
		maps.Copy(inputs, initial)
		return inputs, nil
	}

	inputs := make(map[string]any)
	for _, edge := range edges {
		mapped, err := fieldmap.Resolve(state[edge.Source], edge.Mapping)
		if err != nil {
			return nil, fmt.Errorf("mapping from '%s': %w", edge.Source, err)
		}
		maps.Copy(inputs, mapped)
	}
	return inputs, nil
}
