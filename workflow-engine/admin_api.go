package main

import (
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline-labs/ledgerline-go/internal/domain"
	"github.com/ledgerline-labs/ledgerline-go/internal/platform/auditlog"
	"github.com/ledgerline-labs/ledgerline-go/internal/platform/auth"
	"github.com/ledgerline-labs/ledgerline-go/internal/repo"
	"github.com/ledgerline-labs/ledgerline-go/internal/workflow/pipelinespec"
)

// adminAPI is the configuration surface: pipeline CRUD and YAML import.
// Pipelines referenced by history are deactivated, never deleted; importing
// an existing code mints the next version.
type adminAPI struct {
	logger *slog.Logger
	db     *sql.DB
	store  repo.WorkflowStore
	api    *workflowAPI
}

func newAdminAPI(logger *slog.Logger, db *sql.DB, store repo.WorkflowStore, api *workflowAPI) *adminAPI {
	return &adminAPI{
		logger: logger,
		db:     db,
		store:  store,
		api:    api,
	}
}

func (a *adminAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /pipelines", a.handleCreatePipeline)
	mux.HandleFunc("GET /pipelines", a.handleListPipelines)
	mux.HandleFunc("GET /pipelines/{pipeline_id}", a.handleGetPipeline)
	mux.HandleFunc("POST /pipelines/{pipeline_id}/deactivate", a.handleDeactivatePipeline)
	mux.HandleFunc("POST /pipelines/{pipeline_id}/states", a.handleCreateState)
	mux.HandleFunc("POST /pipelines/{pipeline_id}/transitions", a.handleCreateTransition)
	mux.HandleFunc("POST /transitions/{transition_id}/actions", a.handleCreateTransitionAction)
	mux.HandleFunc("POST /pipelines/import", a.handleImportPipeline)
}

func (a *adminAPI) identity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || strings.TrimSpace(identity.Subject) == "" {
		a.api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return auth.Identity{}, false
	}
	return identity, true
}

func (a *adminAPI) audit(r *http.Request, identity auth.Identity, action, resourceType, resourceID string, payload map[string]any) {
	_, err := auditlog.Insert(r.Context(), a.db, auditlog.Event{
		OccurredAt:   time.Now().UTC(),
		Actor:        identity.Subject,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		RequestID:    r.Header.Get("X-Request-Id"),
		IP:           clientIP(r),
		UserAgent:    r.UserAgent(),
		Payload:      payload,
	})
	if err != nil {
		a.logger.Warn("admin audit failed",
			"action", action,
			"resource_id", resourceID,
			"request_id", r.Header.Get("X-Request-Id"),
			"error", err.Error(),
		)
	}
}

type createPipelineRequest struct {
	Name       string             `json:"name"`
	Code       string             `json:"code"`
	EntityType string             `json:"entity_type"`
	Version    int64              `json:"version,omitempty"`
	Conditions []domain.Condition `json:"conditions,omitempty"`
	Metadata   domain.Metadata    `json:"metadata,omitempty"`
}

func (a *adminAPI) handleCreatePipeline(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.identity(w, r)
	if !ok {
		return
	}

	var req createPipelineRequest
	if err := decodeJSON(r, &req); err != nil {
		a.api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Version < 1 {
		req.Version = 1
	}

	pipeline := domain.Pipeline{
		ID:         uuid.NewString(),
		Name:       strings.TrimSpace(req.Name),
		Code:       strings.TrimSpace(req.Code),
		EntityType: strings.TrimSpace(req.EntityType),
		Version:    req.Version,
		IsActive:   true,
		Conditions: req.Conditions,
		Metadata:   req.Metadata,
		CreatedAt:  time.Now().UTC(),
		CreatedBy:  identity.Subject,
	}
	if err := pipeline.Validate(); err != nil {
		a.api.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      "invalid_pipeline",
			"message":    err.Error(),
			"request_id": r.Header.Get("X-Request-Id"),
		})
		return
	}

	if err := a.store.CreatePipeline(r.Context(), pipeline); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			a.api.writeError(w, r, http.StatusConflict, "pipeline_exists")
			return
		}
		a.api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	a.audit(r, identity, "pipeline.create", "pipeline", pipeline.ID, map[string]any{
		"code":        pipeline.Code,
		"entity_type": pipeline.EntityType,
		"version":     pipeline.Version,
	})
	a.api.writeJSON(w, http.StatusCreated, toPipelineJSON(pipeline))
}

func (a *adminAPI) handleListPipelines(w http.ResponseWriter, r *http.Request) {
	filter := repo.PipelineFilter{
		EntityType: strings.TrimSpace(r.URL.Query().Get("entity_type")),
		Code:       strings.TrimSpace(r.URL.Query().Get("code")),
		ActiveOnly: r.URL.Query().Get("active") == "true",
		Limit:      queryInt(r, "limit", 100),
	}
	pipelines, err := a.store.ListPipelines(r.Context(), filter)
	if err != nil {
		a.api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	out := make([]pipelineJSON, 0, len(pipelines))
	for _, p := range pipelines {
		out = append(out, toPipelineJSON(p))
	}
	a.api.writeJSON(w, http.StatusOK, map[string]any{"pipelines": out})
}

type transitionJSON struct {
	ID                   string                    `json:"id"`
	FromStateID          string                    `json:"from_state_id"`
	ToStateID            string                    `json:"to_state_id"`
	Code                 string                    `json:"code"`
	Name                 string                    `json:"name"`
	RequiredPermission   string                    `json:"required_permission,omitempty"`
	Guards               []domain.GuardSpec        `json:"guards,omitempty"`
	RequiresComment      bool                      `json:"requires_comment"`
	RequiresConfirmation bool                      `json:"requires_confirmation"`
	RequiresApproval     bool                      `json:"requires_approval"`
	IsActive             bool                      `json:"is_active"`
	SortOrder            int                       `json:"sort_order"`
	Actions              []domain.TransitionAction `json:"actions,omitempty"`
}

func (a *adminAPI) handleGetPipeline(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("pipeline_id")

	pipeline, err := a.store.GetPipeline(r.Context(), id)
	if errors.Is(err, repo.ErrNotFound) {
		a.api.writeError(w, r, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		a.api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	states, err := a.store.ListStates(r.Context(), id)
	if err != nil {
		a.api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	transitions, err := a.store.ListTransitions(r.Context(), id)
	if err != nil {
		a.api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	stateOut := make([]stateJSON, 0, len(states))
	for _, s := range states {
		stateOut = append(stateOut, toStateJSON(s))
	}
	transitionOut := make([]transitionJSON, 0, len(transitions))
	for _, tr := range transitions {
		actions, err := a.store.ListTransitionActions(r.Context(), tr.ID)
		if err != nil {
			a.api.writeError(w, r, http.StatusInternalServerError, "internal_error")
			return
		}
		transitionOut = append(transitionOut, transitionJSON{
			ID:                   tr.ID,
			FromStateID:          tr.FromStateID,
			ToStateID:            tr.ToStateID,
			Code:                 tr.Code,
			Name:                 tr.Name,
			RequiredPermission:   tr.RequiredPermission,
			Guards:               tr.Guards,
			RequiresComment:      tr.RequiresComment,
			RequiresConfirmation: tr.RequiresConfirmation,
			RequiresApproval:     tr.RequiresApproval,
			IsActive:             tr.IsActive,
			SortOrder:            tr.SortOrder,
			Actions:              actions,
		})
	}

	a.api.writeJSON(w, http.StatusOK, map[string]any{
		"pipeline":    toPipelineJSON(pipeline),
		"states":      stateOut,
		"transitions": transitionOut,
	})
}

func (a *adminAPI) handleDeactivatePipeline(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.identity(w, r)
	if !ok {
		return
	}
	id := r.PathValue("pipeline_id")

	if err := a.store.DeactivatePipeline(r.Context(), id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			a.api.writeError(w, r, http.StatusNotFound, "not_found")
			return
		}
		a.api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	a.audit(r, identity, "pipeline.deactivate", "pipeline", id, nil)
	a.api.writeJSON(w, http.StatusOK, map[string]any{"pipeline_id": id, "is_active": false})
}

type createStateRequest struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	Type      string `json:"type,omitempty"`
	Color     string `json:"color,omitempty"`
	Icon      string `json:"icon,omitempty"`
	SortOrder int    `json:"sort_order,omitempty"`
}

func (a *adminAPI) handleCreateState(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.identity(w, r)
	if !ok {
		return
	}
	pipelineID := r.PathValue("pipeline_id")
	if _, err := a.store.GetPipeline(r.Context(), pipelineID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			a.api.writeError(w, r, http.StatusNotFound, "not_found")
			return
		}
		a.api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	var req createStateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	stateType := domain.StateType(strings.ToLower(strings.TrimSpace(req.Type)))
	if stateType == "" {
		stateType = domain.StateTypeNormal
	}

	state := domain.State{
		ID:         uuid.NewString(),
		PipelineID: pipelineID,
		Code:       strings.TrimSpace(req.Code),
		Name:       strings.TrimSpace(req.Name),
		Type:       stateType,
		Color:      strings.TrimSpace(req.Color),
		Icon:       strings.TrimSpace(req.Icon),
		SortOrder:  req.SortOrder,
	}
	if err := state.Validate(); err != nil {
		a.api.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      "invalid_state",
			"message":    err.Error(),
			"request_id": r.Header.Get("X-Request-Id"),
		})
		return
	}

	if err := a.store.CreateState(r.Context(), state); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			a.api.writeError(w, r, http.StatusConflict, "state_exists")
			return
		}
		a.api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	a.audit(r, identity, "pipeline.state.create", "pipeline", pipelineID, map[string]any{
		"state_id": state.ID,
		"code":     state.Code,
	})
	a.api.writeJSON(w, http.StatusCreated, toStateJSON(state))
}

type createTransitionRequest struct {
	FromStateID          string             `json:"from_state_id"`
	ToStateID            string             `json:"to_state_id"`
	Code                 string             `json:"code"`
	Name                 string             `json:"name"`
	RequiredPermission   string             `json:"required_permission,omitempty"`
	Guards               []domain.GuardSpec `json:"guards,omitempty"`
	RequiresComment      bool               `json:"requires_comment,omitempty"`
	RequiresConfirmation bool               `json:"requires_confirmation,omitempty"`
	RequiresApproval     bool               `json:"requires_approval,omitempty"`
	SortOrder            int                `json:"sort_order,omitempty"`
}

func (a *adminAPI) handleCreateTransition(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.identity(w, r)
	if !ok {
		return
	}
	pipelineID := r.PathValue("pipeline_id")

	var req createTransitionRequest
	if err := decodeJSON(r, &req); err != nil {
		a.api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}

	// Both endpoint states must exist on this pipeline.
	for _, stateID := range []string{req.FromStateID, req.ToStateID} {
		state, err := a.store.GetState(r.Context(), strings.TrimSpace(stateID))
		if errors.Is(err, repo.ErrNotFound) || (err == nil && state.PipelineID != pipelineID) {
			a.api.writeError(w, r, http.StatusBadRequest, "unknown_state")
			return
		}
		if err != nil {
			a.api.writeError(w, r, http.StatusInternalServerError, "internal_error")
			return
		}
	}

	transition := domain.Transition{
		ID:                   uuid.NewString(),
		PipelineID:           pipelineID,
		FromStateID:          strings.TrimSpace(req.FromStateID),
		ToStateID:            strings.TrimSpace(req.ToStateID),
		Code:                 strings.TrimSpace(req.Code),
		Name:                 strings.TrimSpace(req.Name),
		RequiredPermission:   strings.TrimSpace(req.RequiredPermission),
		Guards:               req.Guards,
		RequiresComment:      req.RequiresComment,
		RequiresConfirmation: req.RequiresConfirmation,
		RequiresApproval:     req.RequiresApproval,
		IsActive:             true,
		SortOrder:            req.SortOrder,
	}
	if err := transition.Validate(); err != nil {
		a.api.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      "invalid_transition",
			"message":    err.Error(),
			"request_id": r.Header.Get("X-Request-Id"),
		})
		return
	}

	if err := a.store.CreateTransition(r.Context(), transition); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			a.api.writeError(w, r, http.StatusConflict, "transition_exists")
			return
		}
		a.api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	a.audit(r, identity, "pipeline.transition.create", "pipeline", pipelineID, map[string]any{
		"transition_id": transition.ID,
		"code":          transition.Code,
	})
	a.api.writeJSON(w, http.StatusCreated, transition)
}

type createTransitionActionRequest struct {
	ActionType     string          `json:"action_type"`
	Config         domain.Metadata `json:"config,omitempty"`
	ExecutionOrder int             `json:"execution_order,omitempty"`
	IsAsync        bool            `json:"is_async,omitempty"`
	OnFailure      string          `json:"on_failure,omitempty"`
}

func (a *adminAPI) handleCreateTransitionAction(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.identity(w, r)
	if !ok {
		return
	}
	transitionID := r.PathValue("transition_id")
	if _, err := a.store.GetTransition(r.Context(), transitionID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			a.api.writeError(w, r, http.StatusNotFound, "not_found")
			return
		}
		a.api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	var req createTransitionActionRequest
	if err := decodeJSON(r, &req); err != nil {
		a.api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	onFailure := domain.FailurePolicy(strings.ToLower(strings.TrimSpace(req.OnFailure)))
	if onFailure == "" {
		onFailure = domain.FailureAbort
	}

	action := domain.TransitionAction{
		ID:             uuid.NewString(),
		TransitionID:   transitionID,
		ActionType:     strings.TrimSpace(req.ActionType),
		Config:         req.Config,
		ExecutionOrder: req.ExecutionOrder,
		IsAsync:        req.IsAsync,
		OnFailure:      onFailure,
		IsActive:       true,
	}
	if err := action.Validate(); err != nil {
		a.api.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      "invalid_action",
			"message":    err.Error(),
			"request_id": r.Header.Get("X-Request-Id"),
		})
		return
	}

	if err := a.store.CreateTransitionAction(r.Context(), action); err != nil {
		a.api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	a.audit(r, identity, "pipeline.transition.action.create", "transition", transitionID, map[string]any{
		"action_id":   action.ID,
		"action_type": action.ActionType,
	})
	a.api.writeJSON(w, http.StatusCreated, action)
}

func (a *adminAPI) handleImportPipeline(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.identity(w, r)
	if !ok {
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		a.api.writeError(w, r, http.StatusBadRequest, "invalid_body")
		return
	}
	spec, err := pipelinespec.ParseSpec(raw)
	if err != nil {
		a.api.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      "invalid_spec",
			"message":    err.Error(),
			"request_id": r.Header.Get("X-Request-Id"),
		})
		return
	}

	// Importing an existing code mints the next version; prior versions stay
	// untouched and can be deactivated separately.
	existing, err := a.store.ListPipelines(r.Context(), repo.PipelineFilter{Code: spec.Pipeline.Code})
	if err != nil {
		a.api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	var version int64 = 1
	for _, p := range existing {
		if p.Version >= version {
			version = p.Version + 1
		}
	}

	def, err := pipelinespec.Build(spec, pipelinespec.BuildOptions{
		Version:   version,
		CreatedBy: identity.Subject,
	})
	if err != nil {
		a.api.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      "invalid_spec",
			"message":    err.Error(),
			"request_id": r.Header.Get("X-Request-Id"),
		})
		return
	}

	if err := a.store.CreatePipeline(r.Context(), def.Pipeline); err != nil {
		a.api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	for _, state := range def.States {
		if err := a.store.CreateState(r.Context(), state); err != nil {
			a.api.writeError(w, r, http.StatusInternalServerError, "internal_error")
			return
		}
	}
	for _, transition := range def.Transitions {
		if err := a.store.CreateTransition(r.Context(), transition); err != nil {
			a.api.writeError(w, r, http.StatusInternalServerError, "internal_error")
			return
		}
	}
	for _, action := range def.Actions {
		if err := a.store.CreateTransitionAction(r.Context(), action); err != nil {
			a.api.writeError(w, r, http.StatusInternalServerError, "internal_error")
			return
		}
	}

	a.audit(r, identity, "pipeline.import", "pipeline", def.Pipeline.ID, map[string]any{
		"code":        def.Pipeline.Code,
		"version":     def.Pipeline.Version,
		"states":      len(def.States),
		"transitions": len(def.Transitions),
		"actions":     len(def.Actions),
	})
	a.api.writeJSON(w, http.StatusCreated, map[string]any{
		"pipeline":    toPipelineJSON(def.Pipeline),
		"states":      len(def.States),
		"transitions": len(def.Transitions),
		"actions":     len(def.Actions),
	})
}
