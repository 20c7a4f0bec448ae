package registry

import (
	"context"
	"fmt"
	"log/slog"
)

// Module is the interface that all core modules must implement to be
// registered.
type Module interface {
	Register(r *Registry)
}

// Handler executes one node. It receives the node's static config from the
// workflow file and the inputs resolved from inbound mappings, and returns
// the node's raw output fields.
type Handler func(ctx context.Context, config, inputs map[string]any) (map[string]any, error)

// Registry holds all registered node handlers for a single application
// instance.
type Registry struct {
	handlers map[string]Handler
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// RegisterHandler registers a handler for a node kind. Registering the same
// kind twice is a programming error and panics.
func (r *Registry) RegisterHandler(kind string, handler Handler) {
	if _, exists := r.handlers[kind]; exists {
		panic(fmt.Sprintf("handler for node kind '%s' already registered", kind))
	}
	slog.Debug("Registering node handler.", "kind", kind)
	r.handlers[kind] = handler
}

// Handler returns the handler registered for a node kind.
func (r *Registry) Handler(kind string) (Handler, bool) {
	h, ok := r.handlers[kind]
	return h, ok
}
