package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/gridloop/internal/ctxlog"
	"github.com/vk/gridloop/internal/hcl_adapter"
	"github.com/vk/gridloop/internal/model"
	"github.com/vk/gridloop/internal/plan"
	"github.com/vk/gridloop/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle. The workflow is loaded and planned once at construction; the
// resulting plan is reused by every Run call.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	registry *registry.Registry
	graph    *model.Graph
	plan     *plan.Plan
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and registry,
// with the workflow loaded, validated, and planned.
func NewApp(outW io.Writer, appConfig *Config, modules ...registry.Module) (*App, error) {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	loader := hcl_adapter.NewLoader()
	graph, err := loader.Load(ctx, appConfig.WorkflowPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow: %w", err)
	}
	logger.Debug("Workflow loaded into graph model.")

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All Go modules registered.", "count", len(modules))

	if err := reg.ValidateGraph(ctx, graph); err != nil {
		return nil, err
	}

	p, err := plan.Build(ctx, graph)
	if err != nil {
		return nil, fmt.Errorf("failed to build execution plan: %w", err)
	}
	logger.Debug("Execution plan built.", "stages", len(p.Stages))

	return &App{
		outW:     outW,
		logger:   logger,
		config:   appConfig,
		registry: reg,
		graph:    graph,
		plan:     p,
	}, nil
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Plan returns the built execution plan. This is primarily for testing.
func (a *App) Plan() *plan.Plan {
	return a.plan
}
