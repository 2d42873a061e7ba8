package guard

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/ledgerline-labs/ledgerline-go/internal/domain"
	"github.com/ledgerline-labs/ledgerline-go/internal/workflow/entity"
)

// Input is the read-only view a guard evaluates against.
type Input struct {
	Entity      entity.Entity
	EntityState domain.EntityState
}

// Guard answers whether a transition may proceed. Guards never mutate
// anything; a false verdict carries a human-readable reason.
type Guard interface {
	Check(ctx context.Context, in Input) (bool, string)
}

// Factory builds a guard from its configured params, validating them up
// front so misconfiguration surfaces at pipeline load, not at execution.
type Factory func(params map[string]any) (Guard, error)

// Result aggregates the verdicts of every guard on a transition.
type Result struct {
	Allowed bool
	Reasons []string
}

type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(kind string, factory Factory) error {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return fmt.Errorf("guard kind is required")
	}
	if factory == nil {
		return fmt.Errorf("guard factory is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("guard kind %q already registered", kind)
	}
	r.factories[kind] = factory
	return nil
}

func (r *Registry) build(spec domain.GuardSpec) (Guard, error) {
	r.mu.RLock()
	factory, ok := r.factories[strings.TrimSpace(spec.Kind)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown guard kind %q", strings.TrimSpace(spec.Kind))
	}
	return factory(spec.Params)
}

// Evaluate runs every guard and collects all failure reasons rather than
// stopping at the first. An unknown kind or bad params fails closed.
func (r *Registry) Evaluate(ctx context.Context, specs []domain.GuardSpec, in Input) Result {
	result := Result{Allowed: true}
	for _, spec := range specs {
		g, err := r.build(spec)
		if err != nil {
			result.Allowed = false
			result.Reasons = append(result.Reasons, err.Error())
			continue
		}
		ok, reason := g.Check(ctx, in)
		if ok {
			continue
		}
		result.Allowed = false
		if strings.TrimSpace(reason) == "" {
			reason = fmt.Sprintf("guard %q rejected the transition", strings.TrimSpace(spec.Kind))
		}
		result.Reasons = append(result.Reasons, reason)
	}
	return result
}

// resolveField looks an attribute up on the entity, or on the entity state
// metadata when prefixed with "metadata.". Dotted paths descend into nested
// objects.
func resolveField(in Input, field string) (any, bool) {
	field = strings.TrimSpace(field)
	if field == "" {
		return nil, false
	}
	if rest, ok := strings.CutPrefix(field, "metadata."); ok {
		return resolveMapPath(map[string]any(in.EntityState.Metadata), rest)
	}
	return resolveMapPath(in.Entity.Attributes, field)
}

func resolveMapPath(root map[string]any, path string) (any, bool) {
	if len(root) == 0 {
		return nil, false
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, false
	}
	parts := strings.Split(path, ".")
	var current any = root
	for _, part := range parts {
		key := strings.TrimSpace(part)
		if key == "" {
			return nil, false
		}
		switch typed := current.(type) {
		case map[string]any:
			next, ok := typed[key]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			index, err := strconv.Atoi(key)
			if err != nil || index < 0 || index >= len(typed) {
				return nil, false
			}
			current = typed[index]
		default:
			return nil, false
		}
	}
	return current, true
}
