package action

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ledgerline-labs/ledgerline-go/internal/domain"
	"github.com/ledgerline-labs/ledgerline-go/internal/workflow/entity"
)

// Invocation is everything an action sees about the transition it runs for.
type Invocation struct {
	Entity      entity.Entity
	EntityState domain.EntityState
	Transition  domain.Transition
	FromStateID string
	ToStateID   string
	Actor       string
	Comment     string
	RequestID   string
	OccurredAt  time.Time
}

// Action executes one configured side effect. Implementations must be safe
// for concurrent use; the same instance serves every transition.
type Action interface {
	Execute(ctx context.Context, inv Invocation, config domain.Metadata) error
}

type Registry struct {
	mu      sync.RWMutex
	actions map[string]Action
}

func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]Action)}
}

func (r *Registry) Register(actionType string, a Action) error {
	actionType = strings.TrimSpace(actionType)
	if actionType == "" {
		return fmt.Errorf("action type is required")
	}
	if a == nil {
		return fmt.Errorf("action is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.actions[actionType]; exists {
		return fmt.Errorf("action type %q already registered", actionType)
	}
	r.actions[actionType] = a
	return nil
}

func (r *Registry) Get(actionType string) (Action, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[strings.TrimSpace(actionType)]
	if !ok {
		return nil, fmt.Errorf("unknown action type %q", strings.TrimSpace(actionType))
	}
	return a, nil
}

// Execute looks the configured action type up and runs it.
func (r *Registry) Execute(ctx context.Context, cfg domain.TransitionAction, inv Invocation) error {
	a, err := r.Get(cfg.ActionType)
	if err != nil {
		return err
	}
	return a.Execute(ctx, inv, cfg.Config)
}

func configString(config domain.Metadata, name string) (string, error) {
	raw, ok := config[name]
	if !ok {
		return "", fmt.Errorf("action config %q is required", name)
	}
	s, ok := raw.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("action config %q must be a non-empty string", name)
	}
	return strings.TrimSpace(s), nil
}

func configStringDefault(config domain.Metadata, name string, def string) string {
	raw, ok := config[name]
	if !ok {
		return def
	}
	s, ok := raw.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return def
	}
	return strings.TrimSpace(s)
}
