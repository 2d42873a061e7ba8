package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline-labs/ledgerline-go/internal/domain"
	"github.com/ledgerline-labs/ledgerline-go/internal/platform/auth"
	"github.com/ledgerline-labs/ledgerline-go/internal/repo"
	"github.com/ledgerline-labs/ledgerline-go/internal/workflow/action"
	"github.com/ledgerline-labs/ledgerline-go/internal/workflow/entity"
	"github.com/ledgerline-labs/ledgerline-go/internal/workflow/guard"
)

// Options collects the engine's collaborators. Store, Entities, Guards,
// Actions and Permissions are required; Dispatcher is optional (async and
// retry actions are dropped with a warning when absent).
type Options struct {
	Store       repo.WorkflowStore
	Entities    *entity.Registry
	Guards      *guard.Registry
	Actions     *action.Registry
	Permissions auth.PermissionChecker
	Dispatcher  *action.Dispatcher
	Logger      *slog.Logger

	// Now and NewID exist for tests; production uses the clock and uuid.
	Now   func() time.Time
	NewID func() string
}

type Engine struct {
	store       repo.WorkflowStore
	entities    *entity.Registry
	guards      *guard.Registry
	actions     *action.Registry
	permissions auth.PermissionChecker
	dispatcher  *action.Dispatcher
	logger      *slog.Logger
	now         func() time.Time
	newID       func() string
}

func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	if opts.Entities == nil {
		return nil, errors.New("entity registry is required")
	}
	if opts.Guards == nil {
		return nil, errors.New("guard registry is required")
	}
	if opts.Actions == nil {
		return nil, errors.New("action registry is required")
	}
	if opts.Permissions == nil {
		return nil, errors.New("permission checker is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Engine{
		store:       opts.Store,
		entities:    opts.Entities,
		guards:      opts.Guards,
		actions:     opts.Actions,
		permissions: opts.Permissions,
		dispatcher:  opts.Dispatcher,
		logger:      opts.Logger,
		now:         opts.Now,
		newID:       opts.NewID,
	}, nil
}

// TransitionOption is one outgoing transition from the current state with
// its availability verdict for the asking actor.
type TransitionOption struct {
	Transition domain.Transition
	ToState    domain.State
	Allowed    bool
	Reasons    []string
}

// StateView is the full answer to "where is this entity".
type StateView struct {
	Pipeline     domain.Pipeline
	EntityState  domain.EntityState
	CurrentState domain.State
	Transitions  []TransitionOption
}

// GetState reports the entity's pipeline, current state and outgoing
// transitions. An entity seen for the first time is lazily bound to the best
// matching pipeline at its initial state. Guard and permission failures are
// reported per transition, never as errors.
func (e *Engine) GetState(ctx context.Context, actor auth.Identity, entityType, entityID string) (StateView, error) {
	ent, err := e.entities.Resolve(ctx, entityType, entityID)
	if err != nil {
		return StateView{}, err
	}

	es, err := e.resolveEntityState(ctx, ent)
	if err != nil {
		return StateView{}, err
	}

	pipeline, err := e.store.GetPipeline(ctx, es.PipelineID)
	if err != nil {
		return StateView{}, fmt.Errorf("load pipeline %s: %w", es.PipelineID, err)
	}
	current, err := e.store.GetState(ctx, es.CurrentStateID)
	if err != nil {
		return StateView{}, fmt.Errorf("load state %s: %w", es.CurrentStateID, err)
	}

	options, err := e.transitionOptions(ctx, actor, ent, es)
	if err != nil {
		return StateView{}, err
	}

	return StateView{
		Pipeline:     pipeline,
		EntityState:  es,
		CurrentState: current,
		Transitions:  options,
	}, nil
}

func (e *Engine) transitionOptions(ctx context.Context, actor auth.Identity, ent entity.Entity, es domain.EntityState) ([]TransitionOption, error) {
	transitions, err := e.store.ListTransitionsFrom(ctx, es.PipelineID, es.CurrentStateID)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}

	options := make([]TransitionOption, 0, len(transitions))
	for _, tr := range transitions {
		if !tr.IsActive {
			continue
		}
		toState, err := e.store.GetState(ctx, tr.ToStateID)
		if err != nil {
			return nil, fmt.Errorf("load state %s: %w", tr.ToStateID, err)
		}

		option := TransitionOption{Transition: tr, ToState: toState, Allowed: true}
		if tr.RequiredPermission != "" && !e.permissions.Allowed(actor, tr.RequiredPermission) {
			option.Allowed = false
			option.Reasons = append(option.Reasons, PermissionDeniedMessage)
		} else {
			verdict := e.guards.Evaluate(ctx, tr.Guards, guard.Input{Entity: ent, EntityState: es})
			if !verdict.Allowed {
				option.Allowed = false
				option.Reasons = append(option.Reasons, verdict.Reasons...)
			}
		}
		options = append(options, option)
	}
	return options, nil
}

// resolveEntityState returns the existing binding or assigns one.
func (e *Engine) resolveEntityState(ctx context.Context, ent entity.Entity) (domain.EntityState, error) {
	es, err := e.store.GetEntityState(ctx, ent.Type, ent.ID)
	if err == nil {
		return es, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.EntityState{}, fmt.Errorf("load entity state: %w", err)
	}
	return e.assign(ctx, ent)
}

// assign binds the entity to the best matching active pipeline at its
// initial state. Ties break to the highest version, then the smallest
// pipeline id, so assignment is deterministic across replicas.
func (e *Engine) assign(ctx context.Context, ent entity.Entity) (domain.EntityState, error) {
	pipelines, err := e.store.ListPipelines(ctx, repo.PipelineFilter{EntityType: ent.Type, ActiveOnly: true})
	if err != nil {
		return domain.EntityState{}, fmt.Errorf("list pipelines: %w", err)
	}

	var matching []domain.Pipeline
	for _, p := range pipelines {
		if guard.MatchConditions(p.Conditions, ent) {
			matching = append(matching, p)
		}
	}
	if len(matching) == 0 {
		return domain.EntityState{}, ErrNoPipeline
	}
	sort.SliceStable(matching, func(i, j int) bool {
		if matching[i].Version != matching[j].Version {
			return matching[i].Version > matching[j].Version
		}
		return matching[i].ID < matching[j].ID
	})
	chosen := matching[0]

	states, err := e.store.ListStates(ctx, chosen.ID)
	if err != nil {
		return domain.EntityState{}, fmt.Errorf("list states: %w", err)
	}
	initial, err := domain.InitialState(states)
	if err != nil {
		return domain.EntityState{}, fmt.Errorf("pipeline %s: %w", chosen.ID, err)
	}

	es := domain.EntityState{
		ID:             e.newID(),
		PipelineID:     chosen.ID,
		EntityType:     ent.Type,
		EntityID:       ent.ID,
		CurrentStateID: initial.ID,
		Metadata:       domain.Metadata{},
		CreatedAt:      e.now(),
	}
	if err := e.store.CreateEntityState(ctx, es); err != nil {
		// Another request assigned concurrently; theirs wins.
		if errors.Is(err, repo.ErrDuplicate) {
			return e.store.GetEntityState(ctx, ent.Type, ent.ID)
		}
		return domain.EntityState{}, fmt.Errorf("create entity state: %w", err)
	}

	e.logger.Info("pipeline assigned",
		"entity_type", ent.Type,
		"entity_id", ent.ID,
		"pipeline_id", chosen.ID,
		"pipeline_code", chosen.Code,
		"initial_state_id", initial.ID,
	)
	return es, nil
}
