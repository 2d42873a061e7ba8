package entity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	ErrEntityTypeUnknown = errors.New("entity type is not registered")
	ErrEntityNotFound    = errors.New("entity not found")
)

// Entity is a read snapshot of a domain record managed by a pipeline. The
// engine never owns entity rows; it observes attributes and tracks state
// alongside them.
type Entity struct {
	Type       string
	ID         string
	Attributes map[string]any
}

func (e Entity) Attribute(name string) (any, bool) {
	v, ok := e.Attributes[strings.TrimSpace(name)]
	return v, ok
}

// Source loads entities of a single registered type. The id may be the
// surrogate key or a configured stable external identifier.
type Source interface {
	Load(ctx context.Context, id string) (Entity, error)
}

// Updater is implemented by sources that allow actions to write back a
// single attribute.
type Updater interface {
	SetAttribute(ctx context.Context, id string, field string, value any) error
}

// Registry maps entity type tags to their sources. Registration happens at
// startup from configuration; lookups are concurrency-safe.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

func (r *Registry) Register(entityType string, source Source) error {
	entityType = strings.TrimSpace(entityType)
	if entityType == "" {
		return errors.New("entity type is required")
	}
	if source == nil {
		return errors.New("source is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sources[entityType]; exists {
		return fmt.Errorf("entity type %q already registered", entityType)
	}
	r.sources[entityType] = source
	return nil
}

func (r *Registry) Source(entityType string) (Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	source, ok := r.sources[strings.TrimSpace(entityType)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntityTypeUnknown, strings.TrimSpace(entityType))
	}
	return source, nil
}

func (r *Registry) Resolve(ctx context.Context, entityType string, id string) (Entity, error) {
	source, err := r.Source(entityType)
	if err != nil {
		return Entity{}, err
	}
	loaded, err := source.Load(ctx, strings.TrimSpace(id))
	if err != nil {
		return Entity{}, err
	}
	loaded.Type = strings.TrimSpace(entityType)
	return loaded, nil
}

// Updater returns the write-back interface for a type, or an error when the
// source is read-only.
func (r *Registry) Updater(entityType string) (Updater, error) {
	source, err := r.Source(entityType)
	if err != nil {
		return nil, err
	}
	updater, ok := source.(Updater)
	if !ok {
		return nil, fmt.Errorf("entity type %q does not support attribute updates", strings.TrimSpace(entityType))
	}
	return updater, nil
}

func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.sources))
	for t := range r.sources {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
