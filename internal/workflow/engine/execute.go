package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/ledgerline-labs/ledgerline-go/internal/domain"
	"github.com/ledgerline-labs/ledgerline-go/internal/platform/auth"
	"github.com/ledgerline-labs/ledgerline-go/internal/repo"
	"github.com/ledgerline-labs/ledgerline-go/internal/workflow/action"
	"github.com/ledgerline-labs/ledgerline-go/internal/workflow/guard"
)

// Provenance is the request-level context written into the state log.
type Provenance struct {
	RequestID string
	IP        net.IP
	UserAgent string
}

type ExecuteRequest struct {
	Comment    string
	Metadata   domain.Metadata
	Provenance Provenance
}

type ExecuteResult struct {
	EntityState domain.EntityState
	FromState   domain.State
	ToState     domain.State
	Warnings    []string
}

// ExecuteTransition performs one configured transition for the acting
// identity. Validation order: transition belongs to the entity's pipeline,
// source state matches, permission, required comment, guards. The state
// pointer update, the log append and synchronous actions commit atomically;
// async and retry work is dispatched only after commit.
func (e *Engine) ExecuteTransition(ctx context.Context, actor auth.Identity, entityType, entityID, transitionID string, req ExecuteRequest) (ExecuteResult, error) {
	ent, err := e.entities.Resolve(ctx, entityType, entityID)
	if err != nil {
		return ExecuteResult{}, err
	}
	es, err := e.resolveEntityState(ctx, ent)
	if err != nil {
		return ExecuteResult{}, err
	}

	tr, err := e.store.GetTransition(ctx, transitionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ExecuteResult{}, ErrPipelineMismatch
		}
		return ExecuteResult{}, fmt.Errorf("load transition: %w", err)
	}
	if tr.PipelineID != es.PipelineID || !tr.IsActive {
		return ExecuteResult{}, ErrPipelineMismatch
	}
	if tr.FromStateID != es.CurrentStateID {
		return ExecuteResult{}, ErrInvalidTransition
	}
	if tr.RequiredPermission != "" && !e.permissions.Allowed(actor, tr.RequiredPermission) {
		return ExecuteResult{}, ErrPermissionDenied
	}
	if tr.RequiresComment && strings.TrimSpace(req.Comment) == "" {
		return ExecuteResult{}, ErrCommentRequired
	}
	verdict := e.guards.Evaluate(ctx, tr.Guards, guard.Input{Entity: ent, EntityState: es})
	if !verdict.Allowed {
		return ExecuteResult{}, &GuardFailedError{Reasons: verdict.Reasons}
	}

	actions, err := e.store.ListTransitionActions(ctx, tr.ID)
	if err != nil {
		return ExecuteResult{}, fmt.Errorf("list transition actions: %w", err)
	}
	sort.SliceStable(actions, func(i, j int) bool { return actions[i].ExecutionOrder < actions[j].ExecutionOrder })

	occurredAt := e.now()
	inv := action.Invocation{
		Entity:      ent,
		EntityState: es,
		Transition:  tr,
		FromStateID: tr.FromStateID,
		ToStateID:   tr.ToStateID,
		Actor:       actor.Subject,
		Comment:     strings.TrimSpace(req.Comment),
		RequestID:   req.Provenance.RequestID,
		OccurredAt:  occurredAt,
	}

	var warnings []string
	var deferred []action.Job

	err = e.store.InTransaction(ctx, func(ctx context.Context, tx repo.WorkflowTx) error {
		err := tx.UpdateCurrentState(ctx, es.ID, tr.FromStateID, tr.ToStateID, actor.Subject, occurredAt)
		if errors.Is(err, repo.ErrStaleState) {
			// A concurrent execution won; exactly one of the two commits.
			return ErrInvalidTransition
		}
		if err != nil {
			return fmt.Errorf("update entity state: %w", err)
		}

		log := domain.StateLog{
			ID:            e.newID(),
			EntityStateID: es.ID,
			PipelineID:    es.PipelineID,
			EntityType:    ent.Type,
			EntityID:      ent.ID,
			TransitionID:  tr.ID,
			FromStateID:   tr.FromStateID,
			ToStateID:     tr.ToStateID,
			Actor:         actor.Subject,
			Comment:       strings.TrimSpace(req.Comment),
			Metadata:      req.Metadata.Clone(),
			RequestID:     req.Provenance.RequestID,
			IP:            req.Provenance.IP,
			UserAgent:     req.Provenance.UserAgent,
			OccurredAt:    occurredAt,
		}
		if err := tx.AppendStateLog(ctx, log); err != nil {
			return fmt.Errorf("append state log: %w", err)
		}

		for _, cfg := range actions {
			if !cfg.IsActive {
				continue
			}
			if cfg.IsAsync {
				deferred = append(deferred, action.Job{Action: cfg, Invocation: inv})
				continue
			}
			if execErr := e.actions.Execute(ctx, cfg, inv); execErr != nil {
				switch cfg.OnFailure {
				case domain.FailureAbort:
					return &ActionFailedError{ActionID: cfg.ID, ActionType: cfg.ActionType, RolledBack: true, Err: execErr}
				case domain.FailureRetry:
					deferred = append(deferred, action.Job{Action: cfg, Invocation: inv})
					warnings = append(warnings, fmt.Sprintf("action %s (%s) failed and was scheduled for retry", cfg.ID, cfg.ActionType))
				default:
					warnings = append(warnings, fmt.Sprintf("action %s (%s) failed: %v", cfg.ID, cfg.ActionType, execErr))
				}
			}
		}
		return nil
	})
	if err != nil {
		return ExecuteResult{}, err
	}

	e.dispatch(deferred)

	fromState, err := e.store.GetState(ctx, tr.FromStateID)
	if err != nil {
		return ExecuteResult{}, fmt.Errorf("load state %s: %w", tr.FromStateID, err)
	}
	toState, err := e.store.GetState(ctx, tr.ToStateID)
	if err != nil {
		return ExecuteResult{}, fmt.Errorf("load state %s: %w", tr.ToStateID, err)
	}

	updated := es
	updated.CurrentStateID = tr.ToStateID
	updated.LastTransitionedBy = actor.Subject
	at := occurredAt
	updated.LastTransitionedAt = &at

	e.logger.Info("transition executed",
		"entity_type", ent.Type,
		"entity_id", ent.ID,
		"pipeline_id", es.PipelineID,
		"transition_id", tr.ID,
		"transition_code", tr.Code,
		"from_state_id", tr.FromStateID,
		"to_state_id", tr.ToStateID,
		"actor", actor.Subject,
		"request_id", req.Provenance.RequestID,
		"warnings", len(warnings),
	)

	return ExecuteResult{
		EntityState: updated,
		FromState:   fromState,
		ToState:     toState,
		Warnings:    warnings,
	}, nil
}

func (e *Engine) dispatch(jobs []action.Job) {
	if len(jobs) == 0 {
		return
	}
	if e.dispatcher == nil {
		e.logger.Warn("no dispatcher configured, dropping deferred actions", "count", len(jobs))
		return
	}
	for _, job := range jobs {
		if err := e.dispatcher.Enqueue(job); err != nil {
			e.logger.Warn("enqueue deferred action failed",
				"action_id", job.Action.ID,
				"action_type", job.Action.ActionType,
				"error", err.Error(),
			)
		}
	}
}
