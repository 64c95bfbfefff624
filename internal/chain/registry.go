// Package chain executes ordered, conditionally-branching action chains for
// fired automation rules.
package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/StayPilot/StayPilot/internal/models"
)

// Handler executes one action and returns its output fields. A non-nil error
// marks the action failed.
type Handler func(ctx context.Context, action models.ActionDefinition, execCtx *models.ExecutionContext) (map[string]any, error)

// Registry maps action types to their handlers. Handlers register at engine
// construction time; execution only reads.
type Registry struct {
	mu       sync.RWMutex
	handlers map[models.ActionType]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[models.ActionType]Handler)}
}

// Register adds or replaces the handler for an action type.
func (r *Registry) Register(actionType models.ActionType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[actionType] = h
}

// Get returns the handler for an action type.
func (r *Registry) Get(actionType models.ActionType) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[actionType]
	if !ok {
		return nil, fmt.Errorf("no handler registered for action type %q", actionType)
	}
	return h, nil
}

// Types returns the registered action types.
func (r *Registry) Types() []models.ActionType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]models.ActionType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}
