package counter

import (
	"context"
	"fmt"

	"github.com/vk/gridloop/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// OnRunCounter increments the tracked field by the configured step. An absent
// input means the counter has never run, so it counts up from zero rather
// than failing.
func OnRunCounter(ctx context.Context, config, inputs map[string]any) (map[string]any, error) {
	field := "count"
	if v, ok := config["field"]; ok {
		name, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("counter: config 'field' must be a string, got %T", v)
		}
		field = name
	}

	step := 1
	if v, ok := config["step"]; ok {
		n, ok := v.(int)
		if !ok {
			return nil, fmt.Errorf("counter: config 'step' must be a whole number, got %T", v)
		}
		step = n
	}

	current := 0
	if v, ok := inputs[field]; ok {
		switch n := v.(type) {
		case int:
			current = n
		case float64:
			current = int(n)
		default:
			return nil, fmt.Errorf("counter: input '%s' must be a number, got %T", field, v)
		}
	}

	return map[string]any{field: current + step}, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("counter", OnRunCounter)
}
