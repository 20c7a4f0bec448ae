package app

import (
	"context"
	"fmt"

	"github.com/vk/gridloop/internal/ctxlog"
	"github.com/vk/gridloop/internal/run"
)

// Run executes the planned workflow once and returns its result. The initial
// inputs are handed to nodes with no inbound edges.
func (a *App) Run(ctx context.Context, initial map[string]any) (*run.Result, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	orch := run.NewOrchestrator(a.plan, a.registry)
	orch.Workers = a.config.WorkerCount
	orch.ContinueOnMaxIterations = a.config.ContinueOnMaxIterations

	a.logger.Info("🚀 Starting workflow execution...")
	result, err := orch.Run(ctx, initial)
	if err != nil {
		return result, fmt.Errorf("execution failed: %w", err)
	}
	a.logger.Info("🏁 Execution finished.", "status", result.Status.String())

	a.logger.Debug("App.Run method finished.")
	return result, nil
}
