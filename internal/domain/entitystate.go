package domain

import (
	"errors"
	"strings"
	"time"
)

// EntityState is the live binding between a concrete entity instance and its
// pipeline: which pipeline applies and which state the entity currently
// occupies. At most one row exists per (entity_type, entity_id), and
// CurrentStateID always references a state belonging to PipelineID.
type EntityState struct {
	ID                 string
	PipelineID         string
	EntityType         string
	EntityID           string
	CurrentStateID     string
	LastTransitionedBy string
	LastTransitionedAt *time.Time
	Metadata           Metadata
	CreatedAt          time.Time
}

func (s EntityState) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("entity state id is required")
	}
	if strings.TrimSpace(s.PipelineID) == "" {
		return errors.New("entity state pipeline id is required")
	}
	if strings.TrimSpace(s.EntityType) == "" {
		return errors.New("entity type is required")
	}
	if strings.TrimSpace(s.EntityID) == "" {
		return errors.New("entity id is required")
	}
	if strings.TrimSpace(s.CurrentStateID) == "" {
		return errors.New("current state id is required")
	}
	return nil
}
