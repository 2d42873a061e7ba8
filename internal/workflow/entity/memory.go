package entity

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MemorySource holds entities in a map. Used in tests and for seeding demo
// environments.
type MemorySource struct {
	mu      sync.RWMutex
	records map[string]map[string]any
}

func NewMemorySource() *MemorySource {
	return &MemorySource{records: make(map[string]map[string]any)}
}

func (s *MemorySource) Put(id string, attributes map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make(map[string]any, len(attributes))
	for k, v := range attributes {
		copied[k] = v
	}
	s.records[strings.TrimSpace(id)] = copied
}

func (s *MemorySource) Load(ctx context.Context, id string) (Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attrs, ok := s.records[strings.TrimSpace(id)]
	if !ok {
		return Entity{}, fmt.Errorf("%w: %s", ErrEntityNotFound, strings.TrimSpace(id))
	}
	copied := make(map[string]any, len(attrs))
	for k, v := range attrs {
		copied[k] = v
	}
	return Entity{ID: strings.TrimSpace(id), Attributes: copied}, nil
}

func (s *MemorySource) SetAttribute(ctx context.Context, id string, field string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	attrs, ok := s.records[strings.TrimSpace(id)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, strings.TrimSpace(id))
	}
	attrs[strings.TrimSpace(field)] = value
	return nil
}
