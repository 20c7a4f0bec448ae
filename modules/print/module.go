package print

import (
	"context"
	"fmt"
	"sort"

	"github.com/vk/gridloop/internal/ctxlog"
	"github.com/vk/gridloop/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// OnRunPrint logs the node's resolved inputs and produces no output fields.
func OnRunPrint(ctx context.Context, config, inputs map[string]any) (map[string]any, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Info("Printing input", "fields", len(inputs))

	if len(inputs) == 0 {
		fmt.Println("      (no inputs)")
		return map[string]any{}, nil
	}

	// Sort keys for consistent output
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Printf("      %s = %v\n", k, inputs[k])
	}

	return map[string]any{}, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("print", OnRunPrint)
}
