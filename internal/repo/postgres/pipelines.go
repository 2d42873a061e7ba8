package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ledgerline-labs/ledgerline-go/internal/domain"
	"github.com/ledgerline-labs/ledgerline-go/internal/repo"
)

type PipelineStore struct {
	db DB
}

func NewPipelineStore(db DB) *PipelineStore {
	if db == nil {
		return nil
	}
	return &PipelineStore{db: db}
}

func (s *PipelineStore) CreatePipeline(ctx context.Context, pipeline domain.Pipeline) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("pipeline store not initialized")
	}
	if err := pipeline.Validate(); err != nil {
		return err
	}
	conditionsJSON, err := encodeJSON(pipeline.Conditions)
	if err != nil {
		return fmt.Errorf("encode conditions: %w", err)
	}
	metadataJSON, err := encodeMetadata(pipeline.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	createdAt := normalizeTime(pipeline.CreatedAt)
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO workflow_pipelines (
			pipeline_id,
			name,
			code,
			entity_type,
			version,
			is_active,
			conditions,
			metadata,
			created_at,
			created_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		strings.TrimSpace(pipeline.ID),
		strings.TrimSpace(pipeline.Name),
		strings.TrimSpace(pipeline.Code),
		strings.TrimSpace(pipeline.EntityType),
		pipeline.Version,
		pipeline.IsActive,
		conditionsJSON,
		metadataJSON,
		createdAt,
		strings.TrimSpace(pipeline.CreatedBy),
	)
	if err != nil {
		return fmt.Errorf("insert pipeline: %w", handleDuplicate(err))
	}
	return nil
}

func (s *PipelineStore) GetPipeline(ctx context.Context, id string) (domain.Pipeline, error) {
	if s == nil || s.db == nil {
		return domain.Pipeline{}, fmt.Errorf("pipeline store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Pipeline{}, fmt.Errorf("pipeline id is required")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT pipeline_id, name, code, entity_type, version, is_active, conditions, metadata, created_at, created_by
		 FROM workflow_pipelines
		 WHERE pipeline_id = $1`,
		id,
	)
	return scanPipeline(row)
}

func (s *PipelineStore) ListPipelines(ctx context.Context, filter repo.PipelineFilter) ([]domain.Pipeline, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("pipeline store not initialized")
	}
	clauses := make([]string, 0, 3)
	args := make([]any, 0, 3)

	if strings.TrimSpace(filter.EntityType) != "" {
		args = append(args, strings.TrimSpace(filter.EntityType))
		clauses = append(clauses, fmt.Sprintf("entity_type = $%d", len(args)))
	}
	if strings.TrimSpace(filter.Code) != "" {
		args = append(args, strings.TrimSpace(filter.Code))
		clauses = append(clauses, fmt.Sprintf("code = $%d", len(args)))
	}
	if filter.ActiveOnly {
		clauses = append(clauses, "is_active")
	}

	query := `SELECT pipeline_id, name, code, entity_type, version, is_active, conditions, metadata, created_at, created_by
		FROM workflow_pipelines`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY entity_type, version DESC, pipeline_id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pipelines: %w", err)
	}
	defer rows.Close()

	pipelines := make([]domain.Pipeline, 0)
	for rows.Next() {
		pipeline, err := scanPipeline(rows)
		if err != nil {
			return nil, err
		}
		pipelines = append(pipelines, pipeline)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pipelines: %w", err)
	}
	return pipelines, nil
}

func (s *PipelineStore) DeactivatePipeline(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("pipeline store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("pipeline id is required")
	}
	res, err := s.db.ExecContext(ctx, `UPDATE workflow_pipelines SET is_active = FALSE WHERE pipeline_id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate pipeline: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate pipeline: %w", err)
	}
	if rows == 0 {
		return repo.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPipeline(row rowScanner) (domain.Pipeline, error) {
	var pipeline domain.Pipeline
	var conditionsJSON []byte
	var metadataJSON []byte
	if err := row.Scan(
		&pipeline.ID,
		&pipeline.Name,
		&pipeline.Code,
		&pipeline.EntityType,
		&pipeline.Version,
		&pipeline.IsActive,
		&conditionsJSON,
		&metadataJSON,
		&pipeline.CreatedAt,
		&pipeline.CreatedBy,
	); err != nil {
		return domain.Pipeline{}, handleNotFound(err)
	}
	if len(conditionsJSON) > 0 {
		if err := json.Unmarshal(conditionsJSON, &pipeline.Conditions); err != nil {
			return domain.Pipeline{}, fmt.Errorf("decode conditions: %w", err)
		}
	}
	meta, err := decodeMetadata(metadataJSON)
	if err != nil {
		return domain.Pipeline{}, fmt.Errorf("decode metadata: %w", err)
	}
	pipeline.Metadata = meta
	return pipeline, nil
}

func (s *PipelineStore) CreateState(ctx context.Context, state domain.State) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("pipeline store not initialized")
	}
	if err := state.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO workflow_states (
			state_id,
			pipeline_id,
			code,
			name,
			state_type,
			color,
			icon,
			sort_order
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		strings.TrimSpace(state.ID),
		strings.TrimSpace(state.PipelineID),
		strings.TrimSpace(state.Code),
		strings.TrimSpace(state.Name),
		string(state.Type),
		nullIfEmpty(state.Color),
		nullIfEmpty(state.Icon),
		state.SortOrder,
	)
	if err != nil {
		return fmt.Errorf("insert state: %w", handleDuplicate(err))
	}
	return nil
}

func (s *PipelineStore) GetState(ctx context.Context, id string) (domain.State, error) {
	if s == nil || s.db == nil {
		return domain.State{}, fmt.Errorf("pipeline store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.State{}, fmt.Errorf("state id is required")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT state_id, pipeline_id, code, name, state_type, color, icon, sort_order
		 FROM workflow_states
		 WHERE state_id = $1`,
		id,
	)
	return scanState(row)
}

func (s *PipelineStore) ListStates(ctx context.Context, pipelineID string) ([]domain.State, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("pipeline store not initialized")
	}
	pipelineID = strings.TrimSpace(pipelineID)
	if pipelineID == "" {
		return nil, fmt.Errorf("pipeline id is required")
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT state_id, pipeline_id, code, name, state_type, color, icon, sort_order
		 FROM workflow_states
		 WHERE pipeline_id = $1
		 ORDER BY sort_order, code`,
		pipelineID,
	)
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	defer rows.Close()

	states := make([]domain.State, 0)
	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	return states, nil
}

func scanState(row rowScanner) (domain.State, error) {
	var state domain.State
	var stateType string
	var color sql.NullString
	var icon sql.NullString
	if err := row.Scan(
		&state.ID,
		&state.PipelineID,
		&state.Code,
		&state.Name,
		&stateType,
		&color,
		&icon,
		&state.SortOrder,
	); err != nil {
		return domain.State{}, handleNotFound(err)
	}
	state.Type = domain.StateType(stateType)
	if color.Valid {
		state.Color = color.String
	}
	if icon.Valid {
		state.Icon = icon.String
	}
	return state, nil
}

func (s *PipelineStore) CreateTransition(ctx context.Context, transition domain.Transition) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("pipeline store not initialized")
	}
	if err := transition.Validate(); err != nil {
		return err
	}
	guardsJSON, err := encodeJSON(transition.Guards)
	if err != nil {
		return fmt.Errorf("encode guards: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO workflow_transitions (
			transition_id,
			pipeline_id,
			from_state_id,
			to_state_id,
			code,
			name,
			required_permission,
			guards,
			requires_comment,
			requires_confirmation,
			requires_approval,
			is_active,
			sort_order
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		strings.TrimSpace(transition.ID),
		strings.TrimSpace(transition.PipelineID),
		strings.TrimSpace(transition.FromStateID),
		strings.TrimSpace(transition.ToStateID),
		strings.TrimSpace(transition.Code),
		strings.TrimSpace(transition.Name),
		nullIfEmpty(transition.RequiredPermission),
		guardsJSON,
		transition.RequiresComment,
		transition.RequiresConfirmation,
		transition.RequiresApproval,
		transition.IsActive,
		transition.SortOrder,
	)
	if err != nil {
		return fmt.Errorf("insert transition: %w", handleDuplicate(err))
	}
	return nil
}

func (s *PipelineStore) GetTransition(ctx context.Context, id string) (domain.Transition, error) {
	if s == nil || s.db == nil {
		return domain.Transition{}, fmt.Errorf("pipeline store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Transition{}, fmt.Errorf("transition id is required")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT transition_id, pipeline_id, from_state_id, to_state_id, code, name, required_permission,
			guards, requires_comment, requires_confirmation, requires_approval, is_active, sort_order
		 FROM workflow_transitions
		 WHERE transition_id = $1`,
		id,
	)
	return scanTransition(row)
}

func (s *PipelineStore) ListTransitionsFrom(ctx context.Context, pipelineID, fromStateID string) ([]domain.Transition, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("pipeline store not initialized")
	}
	pipelineID = strings.TrimSpace(pipelineID)
	fromStateID = strings.TrimSpace(fromStateID)
	if pipelineID == "" || fromStateID == "" {
		return nil, fmt.Errorf("pipeline id and from state id are required")
	}
	return s.queryTransitions(
		ctx,
		`SELECT transition_id, pipeline_id, from_state_id, to_state_id, code, name, required_permission,
			guards, requires_comment, requires_confirmation, requires_approval, is_active, sort_order
		 FROM workflow_transitions
		 WHERE pipeline_id = $1 AND from_state_id = $2 AND is_active
		 ORDER BY sort_order, code`,
		pipelineID,
		fromStateID,
	)
}

func (s *PipelineStore) ListTransitions(ctx context.Context, pipelineID string) ([]domain.Transition, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("pipeline store not initialized")
	}
	pipelineID = strings.TrimSpace(pipelineID)
	if pipelineID == "" {
		return nil, fmt.Errorf("pipeline id is required")
	}
	return s.queryTransitions(
		ctx,
		`SELECT transition_id, pipeline_id, from_state_id, to_state_id, code, name, required_permission,
			guards, requires_comment, requires_confirmation, requires_approval, is_active, sort_order
		 FROM workflow_transitions
		 WHERE pipeline_id = $1
		 ORDER BY sort_order, code`,
		pipelineID,
	)
}

func (s *PipelineStore) queryTransitions(ctx context.Context, query string, args ...any) ([]domain.Transition, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	transitions := make([]domain.Transition, 0)
	for rows.Next() {
		transition, err := scanTransition(rows)
		if err != nil {
			return nil, err
		}
		transitions = append(transitions, transition)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	return transitions, nil
}

func scanTransition(row rowScanner) (domain.Transition, error) {
	var transition domain.Transition
	var requiredPermission sql.NullString
	var guardsJSON []byte
	if err := row.Scan(
		&transition.ID,
		&transition.PipelineID,
		&transition.FromStateID,
		&transition.ToStateID,
		&transition.Code,
		&transition.Name,
		&requiredPermission,
		&guardsJSON,
		&transition.RequiresComment,
		&transition.RequiresConfirmation,
		&transition.RequiresApproval,
		&transition.IsActive,
		&transition.SortOrder,
	); err != nil {
		return domain.Transition{}, handleNotFound(err)
	}
	if requiredPermission.Valid {
		transition.RequiredPermission = requiredPermission.String
	}
	if len(guardsJSON) > 0 {
		if err := json.Unmarshal(guardsJSON, &transition.Guards); err != nil {
			return domain.Transition{}, fmt.Errorf("decode guards: %w", err)
		}
	}
	return transition, nil
}

func (s *PipelineStore) CreateTransitionAction(ctx context.Context, action domain.TransitionAction) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("pipeline store not initialized")
	}
	if err := action.Validate(); err != nil {
		return err
	}
	configJSON, err := encodeMetadata(action.Config)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO workflow_transition_actions (
			action_id,
			transition_id,
			action_type,
			config,
			execution_order,
			is_async,
			on_failure,
			is_active
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		strings.TrimSpace(action.ID),
		strings.TrimSpace(action.TransitionID),
		strings.TrimSpace(action.ActionType),
		configJSON,
		action.ExecutionOrder,
		action.IsAsync,
		string(action.OnFailure),
		action.IsActive,
	)
	if err != nil {
		return fmt.Errorf("insert transition action: %w", handleDuplicate(err))
	}
	return nil
}

func (s *PipelineStore) ListTransitionActions(ctx context.Context, transitionID string) ([]domain.TransitionAction, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("pipeline store not initialized")
	}
	transitionID = strings.TrimSpace(transitionID)
	if transitionID == "" {
		return nil, fmt.Errorf("transition id is required")
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT action_id, transition_id, action_type, config, execution_order, is_async, on_failure, is_active
		 FROM workflow_transition_actions
		 WHERE transition_id = $1
		 ORDER BY execution_order, action_id`,
		transitionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list transition actions: %w", err)
	}
	defer rows.Close()

	actions := make([]domain.TransitionAction, 0)
	for rows.Next() {
		var action domain.TransitionAction
		var configJSON []byte
		var onFailure string
		if err := rows.Scan(
			&action.ID,
			&action.TransitionID,
			&action.ActionType,
			&configJSON,
			&action.ExecutionOrder,
			&action.IsAsync,
			&onFailure,
			&action.IsActive,
		); err != nil {
			return nil, fmt.Errorf("scan transition action: %w", err)
		}
		action.OnFailure = domain.FailurePolicy(onFailure)
		config, err := decodeMetadata(configJSON)
		if err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		action.Config = config
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transition actions: %w", err)
	}
	return actions, nil
}
