package repo

import (
	"context"
	"errors"
	"time"

	"github.com/ledgerline-labs/ledgerline-go/internal/domain"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStaleState is returned by the conditional entity-state update when
	// the expected current state no longer matches; the caller lost the race.
	ErrStaleState = errors.New("entity state is stale")
	// ErrDuplicate is returned on unique-constraint violations, notably a
	// second EntityState for the same (entity_type, entity_id).
	ErrDuplicate = errors.New("already exists")
)

type PipelineFilter struct {
	EntityType string
	Code       string
	ActiveOnly bool
	Limit      int
}

// Page is a limit/offset window over the timeline, newest first.
type Page struct {
	Limit  int
	Offset int
}

// PipelineRepository manages workflow configuration: pipelines, states,
// transitions and transition actions. Configuration is read-mostly at
// runtime; mutation happens only through the administrative path.
type PipelineRepository interface {
	CreatePipeline(ctx context.Context, pipeline domain.Pipeline) error
	GetPipeline(ctx context.Context, id string) (domain.Pipeline, error)
	ListPipelines(ctx context.Context, filter PipelineFilter) ([]domain.Pipeline, error)
	DeactivatePipeline(ctx context.Context, id string) error

	CreateState(ctx context.Context, state domain.State) error
	GetState(ctx context.Context, id string) (domain.State, error)
	ListStates(ctx context.Context, pipelineID string) ([]domain.State, error)

	CreateTransition(ctx context.Context, transition domain.Transition) error
	GetTransition(ctx context.Context, id string) (domain.Transition, error)
	ListTransitionsFrom(ctx context.Context, pipelineID, fromStateID string) ([]domain.Transition, error)
	ListTransitions(ctx context.Context, pipelineID string) ([]domain.Transition, error)

	CreateTransitionAction(ctx context.Context, action domain.TransitionAction) error
	ListTransitionActions(ctx context.Context, transitionID string) ([]domain.TransitionAction, error)
}

// EntityStateRepository manages the live pipeline binding per entity.
type EntityStateRepository interface {
	CreateEntityState(ctx context.Context, state domain.EntityState) error
	GetEntityState(ctx context.Context, entityType, entityID string) (domain.EntityState, error)
	// UpdateCurrentState moves the state pointer only when the stored current
	// state still equals expectedStateID. A non-matching row yields
	// ErrStaleState and no mutation.
	UpdateCurrentState(ctx context.Context, id, expectedStateID, newStateID, actor string, at time.Time) error
}

// StateLogRepository provides append-only access to the transition audit
// trail. There is deliberately no update or delete.
type StateLogRepository interface {
	AppendStateLog(ctx context.Context, log domain.StateLog) error
	ListStateLogs(ctx context.Context, entityType, entityID string, page Page) ([]domain.StateLog, error)
	CountStateLogs(ctx context.Context, entityType, entityID string) (int64, error)
}

// WorkflowTx is the transactional slice of the store available to the
// transition executor: the state pointer update and the log append commit or
// roll back together.
type WorkflowTx interface {
	EntityStateRepository
	StateLogRepository
}

// WorkflowStore is everything the engine needs from persistence.
type WorkflowStore interface {
	PipelineRepository
	EntityStateRepository
	StateLogRepository

	// InTransaction runs fn inside one storage transaction. A non-nil error
	// from fn rolls the transaction back and is returned unchanged.
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx WorkflowTx) error) error
}
