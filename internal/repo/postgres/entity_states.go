package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ledgerline-labs/ledgerline-go/internal/domain"
	"github.com/ledgerline-labs/ledgerline-go/internal/repo"
)

type EntityStateStore struct {
	db DB
}

func NewEntityStateStore(db DB) *EntityStateStore {
	if db == nil {
		return nil
	}
	return &EntityStateStore{db: db}
}

func (s *EntityStateStore) CreateEntityState(ctx context.Context, state domain.EntityState) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("entity state store not initialized")
	}
	if err := state.Validate(); err != nil {
		return err
	}
	metadataJSON, err := encodeMetadata(state.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	createdAt := normalizeTime(state.CreatedAt)
	var lastTransitionedAt sql.NullTime
	if state.LastTransitionedAt != nil {
		lastTransitionedAt = sql.NullTime{Time: state.LastTransitionedAt.UTC(), Valid: true}
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO workflow_entity_states (
			entity_state_id,
			pipeline_id,
			entity_type,
			entity_id,
			current_state_id,
			last_transitioned_by,
			last_transitioned_at,
			metadata,
			created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		strings.TrimSpace(state.ID),
		strings.TrimSpace(state.PipelineID),
		strings.TrimSpace(state.EntityType),
		strings.TrimSpace(state.EntityID),
		strings.TrimSpace(state.CurrentStateID),
		nullIfEmpty(state.LastTransitionedBy),
		lastTransitionedAt,
		metadataJSON,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert entity state: %w", handleDuplicate(err))
	}
	return nil
}

func (s *EntityStateStore) GetEntityState(ctx context.Context, entityType, entityID string) (domain.EntityState, error) {
	if s == nil || s.db == nil {
		return domain.EntityState{}, fmt.Errorf("entity state store not initialized")
	}
	entityType = strings.TrimSpace(entityType)
	entityID = strings.TrimSpace(entityID)
	if entityType == "" || entityID == "" {
		return domain.EntityState{}, fmt.Errorf("entity type and id are required")
	}
	var state domain.EntityState
	var metadataJSON []byte
	var lastBy sql.NullString
	var lastAt sql.NullTime
	row := s.db.QueryRowContext(
		ctx,
		`SELECT entity_state_id, pipeline_id, entity_type, entity_id, current_state_id,
			last_transitioned_by, last_transitioned_at, metadata, created_at
		 FROM workflow_entity_states
		 WHERE entity_type = $1 AND entity_id = $2`,
		entityType,
		entityID,
	)
	if err := row.Scan(
		&state.ID,
		&state.PipelineID,
		&state.EntityType,
		&state.EntityID,
		&state.CurrentStateID,
		&lastBy,
		&lastAt,
		&metadataJSON,
		&state.CreatedAt,
	); err != nil {
		return domain.EntityState{}, handleNotFound(err)
	}
	if lastBy.Valid {
		state.LastTransitionedBy = lastBy.String
	}
	if lastAt.Valid {
		at := lastAt.Time.UTC()
		state.LastTransitionedAt = &at
	}
	meta, err := decodeMetadata(metadataJSON)
	if err != nil {
		return domain.EntityState{}, fmt.Errorf("decode metadata: %w", err)
	}
	state.Metadata = meta
	return state, nil
}

const updateEntityStateQuery = `UPDATE workflow_entity_states
	 SET current_state_id = $1, last_transitioned_by = $2, last_transitioned_at = $3
	 WHERE entity_state_id = $4 AND current_state_id = $5`

// UpdateCurrentState is the linearization point for concurrent executions:
// the WHERE clause on the expected current state makes the second of two
// racing transitions a no-op, surfaced as ErrStaleState.
func (s *EntityStateStore) UpdateCurrentState(ctx context.Context, id, expectedStateID, newStateID, actor string, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("entity state store not initialized")
	}
	id = strings.TrimSpace(id)
	expectedStateID = strings.TrimSpace(expectedStateID)
	newStateID = strings.TrimSpace(newStateID)
	actor = strings.TrimSpace(actor)
	if id == "" || expectedStateID == "" || newStateID == "" || actor == "" {
		return fmt.Errorf("entity state id, expected state, new state and actor are required")
	}
	res, err := s.db.ExecContext(
		ctx,
		updateEntityStateQuery,
		newStateID,
		actor,
		at.UTC(),
		id,
		expectedStateID,
	)
	if err != nil {
		return fmt.Errorf("update entity state: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update entity state: %w", err)
	}
	if rows == 0 {
		return repo.ErrStaleState
	}
	return nil
}
