package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/gridloop/internal/ctxlog"
	"github.com/vk/gridloop/internal/model"
)

// Execute dispatches a node to its registered handler. It satisfies the node
// executor contract of the orchestrator and the cycle executor.
func (r *Registry) Execute(ctx context.Context, node *model.Node, inputs map[string]any) (map[string]any, error) {
	handler, ok := r.handlers[node.Kind]
	if !ok {
		return nil, fmt.Errorf("no handler registered for node kind '%s'", node.Kind)
	}

	logger := ctxlog.FromContext(ctx)
	logger.Debug("Dispatching node.", "node", node.ID, "kind", node.Kind)
	return handler(ctx, node.Config, inputs)
}

// ValidateGraph checks that every node kind in the graph has a registered
// handler, so unknown kinds surface before the run starts.
func (r *Registry) ValidateGraph(ctx context.Context, g *model.Graph) error {
	var errs []string
	for _, node := range g.Nodes {
		if _, ok := r.handlers[node.Kind]; !ok {
			errs = append(errs, fmt.Sprintf("node '%s': no handler registered for kind '%s'", node.ID, node.Kind))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("workflow validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	ctxlog.FromContext(ctx).Debug("Workflow validated against registry.", "nodes", len(g.Nodes))
	return nil
}
