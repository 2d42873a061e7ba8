package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ledgerline-labs/ledgerline-go/internal/auditexport"
	"github.com/ledgerline-labs/ledgerline-go/internal/domain"
	"github.com/ledgerline-labs/ledgerline-go/internal/platform/auth"
	"github.com/ledgerline-labs/ledgerline-go/internal/repo"
	"github.com/ledgerline-labs/ledgerline-go/internal/workflow/engine"
	"github.com/ledgerline-labs/ledgerline-go/internal/workflow/entity"
)

type workflowAPI struct {
	logger   *slog.Logger
	engine   *engine.Engine
	exporter *auditexport.Exporter
}

func newWorkflowAPI(logger *slog.Logger, eng *engine.Engine, exporter *auditexport.Exporter) *workflowAPI {
	return &workflowAPI{
		logger:   logger,
		engine:   eng,
		exporter: exporter,
	}
}

func (api *workflowAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /entities/{entity_type}/{entity_id}/state", api.handleGetState)
	mux.HandleFunc("POST /entities/{entity_type}/{entity_id}/transitions/{transition_id}", api.handleExecuteTransition)
	mux.HandleFunc("GET /entities/{entity_type}/{entity_id}/timeline", api.handleTimeline)
	mux.HandleFunc("POST /entities/{entity_type}/{entity_id}/timeline/export", api.handleTimelineExport)
}

type stateJSON struct {
	ID        string `json:"id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Color     string `json:"color,omitempty"`
	Icon      string `json:"icon,omitempty"`
	SortOrder int    `json:"sort_order"`
}

func toStateJSON(s domain.State) stateJSON {
	return stateJSON{
		ID:        s.ID,
		Code:      s.Code,
		Name:      s.Name,
		Type:      string(s.Type),
		Color:     s.Color,
		Icon:      s.Icon,
		SortOrder: s.SortOrder,
	}
}

type pipelineJSON struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Code       string `json:"code"`
	EntityType string `json:"entity_type"`
	Version    int64  `json:"version"`
	IsActive   bool   `json:"is_active"`
}

func toPipelineJSON(p domain.Pipeline) pipelineJSON {
	return pipelineJSON{
		ID:         p.ID,
		Name:       p.Name,
		Code:       p.Code,
		EntityType: p.EntityType,
		Version:    p.Version,
		IsActive:   p.IsActive,
	}
}

type entityStateJSON struct {
	ID                 string          `json:"id"`
	PipelineID         string          `json:"pipeline_id"`
	EntityType         string          `json:"entity_type"`
	EntityID           string          `json:"entity_id"`
	CurrentStateID     string          `json:"current_state_id"`
	LastTransitionedBy string          `json:"last_transitioned_by,omitempty"`
	LastTransitionedAt *time.Time      `json:"last_transitioned_at,omitempty"`
	Metadata           domain.Metadata `json:"metadata"`
	CreatedAt          time.Time       `json:"created_at"`
}

func toEntityStateJSON(es domain.EntityState) entityStateJSON {
	meta := es.Metadata
	if meta == nil {
		meta = domain.Metadata{}
	}
	return entityStateJSON{
		ID:                 es.ID,
		PipelineID:         es.PipelineID,
		EntityType:         es.EntityType,
		EntityID:           es.EntityID,
		CurrentStateID:     es.CurrentStateID,
		LastTransitionedBy: es.LastTransitionedBy,
		LastTransitionedAt: es.LastTransitionedAt,
		Metadata:           meta,
		CreatedAt:          es.CreatedAt,
	}
}

type transitionOptionJSON struct {
	ID                   string    `json:"id"`
	Code                 string    `json:"code"`
	Name                 string    `json:"name"`
	ToState              stateJSON `json:"to_state"`
	RequiresComment      bool      `json:"requires_comment"`
	RequiresConfirmation bool      `json:"requires_confirmation"`
	RequiresApproval     bool      `json:"requires_approval"`
	IsAllowed            bool      `json:"is_allowed"`
	RejectionReasons     []string  `json:"rejection_reasons,omitempty"`
}

func (api *workflowAPI) handleGetState(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || strings.TrimSpace(identity.Subject) == "" {
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	entityType := r.PathValue("entity_type")
	entityID := r.PathValue("entity_id")

	view, err := api.engine.GetState(r.Context(), identity, entityType, entityID)
	if errors.Is(err, engine.ErrNoPipeline) {
		api.writeJSON(w, http.StatusOK, map[string]any{
			"entity_type": entityType,
			"entity_id":   entityID,
			"no_pipeline": true,
		})
		return
	}
	if err != nil {
		api.writeEngineError(w, r, err)
		return
	}

	options := make([]transitionOptionJSON, 0, len(view.Transitions))
	for _, opt := range view.Transitions {
		options = append(options, transitionOptionJSON{
			ID:                   opt.Transition.ID,
			Code:                 opt.Transition.Code,
			Name:                 opt.Transition.Name,
			ToState:              toStateJSON(opt.ToState),
			RequiresComment:      opt.Transition.RequiresComment,
			RequiresConfirmation: opt.Transition.RequiresConfirmation,
			RequiresApproval:     opt.Transition.RequiresApproval,
			IsAllowed:            opt.Allowed,
			RejectionReasons:     opt.Reasons,
		})
	}

	api.writeJSON(w, http.StatusOK, map[string]any{
		"pipeline":      toPipelineJSON(view.Pipeline),
		"entity_state":  toEntityStateJSON(view.EntityState),
		"current_state": toStateJSON(view.CurrentState),
		"transitions":   options,
	})
}

type executeRequestJSON struct {
	Comment  string          `json:"comment,omitempty"`
	Metadata domain.Metadata `json:"metadata,omitempty"`
}

func (api *workflowAPI) handleExecuteTransition(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || strings.TrimSpace(identity.Subject) == "" {
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	var req executeRequestJSON
	if r.Body != nil && r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			api.writeError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}
	}

	result, err := api.engine.ExecuteTransition(
		r.Context(),
		identity,
		r.PathValue("entity_type"),
		r.PathValue("entity_id"),
		r.PathValue("transition_id"),
		engine.ExecuteRequest{
			Comment:  req.Comment,
			Metadata: req.Metadata,
			Provenance: engine.Provenance{
				RequestID: r.Header.Get("X-Request-Id"),
				IP:        clientIP(r),
				UserAgent: r.UserAgent(),
			},
		},
	)
	if err != nil {
		api.writeEngineError(w, r, err)
		return
	}

	warnings := result.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	api.writeJSON(w, http.StatusOK, map[string]any{
		"entity_state": toEntityStateJSON(result.EntityState),
		"from_state":   toStateJSON(result.FromState),
		"to_state":     toStateJSON(result.ToState),
		"warnings":     warnings,
	})
}

type timelineEntryJSON struct {
	ID              string          `json:"id"`
	TransitionID    string          `json:"transition_id"`
	TransitionCode  string          `json:"transition_code"`
	TransitionName  string          `json:"transition_name"`
	FromState       stateJSON       `json:"from_state"`
	ToState         stateJSON       `json:"to_state"`
	Actor           string          `json:"actor"`
	Comment         string          `json:"comment,omitempty"`
	Metadata        domain.Metadata `json:"metadata"`
	RequestID       string          `json:"request_id,omitempty"`
	OccurredAt      time.Time       `json:"occurred_at"`
	IntegritySHA256 string          `json:"integrity_sha256"`
}

func (api *workflowAPI) handleTimeline(w http.ResponseWriter, r *http.Request) {
	page := repo.Page{
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}

	timeline, err := api.engine.Timeline(r.Context(), r.PathValue("entity_type"), r.PathValue("entity_id"), page)
	if err != nil {
		api.writeEngineError(w, r, err)
		return
	}

	entries := make([]timelineEntryJSON, 0, len(timeline.Entries))
	for _, entry := range timeline.Entries {
		meta := entry.Log.Metadata
		if meta == nil {
			meta = domain.Metadata{}
		}
		entries = append(entries, timelineEntryJSON{
			ID:              entry.Log.ID,
			TransitionID:    entry.Transition.ID,
			TransitionCode:  entry.Transition.Code,
			TransitionName:  entry.Transition.Name,
			FromState:       toStateJSON(entry.FromState),
			ToState:         toStateJSON(entry.ToState),
			Actor:           entry.Log.Actor,
			Comment:         entry.Log.Comment,
			Metadata:        meta,
			RequestID:       entry.Log.RequestID,
			OccurredAt:      entry.Log.OccurredAt,
			IntegritySHA256: entry.Log.IntegritySHA256,
		})
	}

	api.writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   timeline.Total,
		"limit":   timeline.Limit,
		"offset":  timeline.Offset,
	})
}

func (api *workflowAPI) handleTimelineExport(w http.ResponseWriter, r *http.Request) {
	if api.exporter == nil {
		api.writeError(w, r, http.StatusNotImplemented, "export_unavailable")
		return
	}
	result, err := api.exporter.Export(r.Context(), r.PathValue("entity_type"), r.PathValue("entity_id"))
	if errors.Is(err, repo.ErrNotFound) {
		api.writeError(w, r, http.StatusNotFound, "timeline_empty")
		return
	}
	if err != nil {
		api.logger.Error("timeline export failed",
			"entity_type", r.PathValue("entity_type"),
			"entity_id", r.PathValue("entity_id"),
			"request_id", r.Header.Get("X-Request-Id"),
			"error", err.Error(),
		)
		api.writeError(w, r, http.StatusBadGateway, "archive_store_failed")
		return
	}
	api.writeJSON(w, http.StatusCreated, result)
}

func (api *workflowAPI) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var guardErr *engine.GuardFailedError
	var actionErr *engine.ActionFailedError

	switch {
	case errors.Is(err, entity.ErrEntityTypeUnknown):
		api.writeError(w, r, http.StatusNotFound, "entity_type_unknown")
	case errors.Is(err, entity.ErrEntityNotFound):
		api.writeError(w, r, http.StatusNotFound, "entity_not_found")
	case errors.Is(err, engine.ErrNoPipeline):
		api.writeError(w, r, http.StatusConflict, "no_pipeline")
	case errors.Is(err, engine.ErrPipelineMismatch):
		api.writeError(w, r, http.StatusConflict, "pipeline_mismatch")
	case errors.Is(err, engine.ErrInvalidTransition):
		api.writeError(w, r, http.StatusConflict, "invalid_transition")
	case errors.Is(err, engine.ErrPermissionDenied):
		api.writeJSON(w, http.StatusForbidden, map[string]any{
			"error":      "permission_denied",
			"message":    engine.PermissionDeniedMessage,
			"request_id": r.Header.Get("X-Request-Id"),
		})
	case errors.Is(err, engine.ErrCommentRequired):
		api.writeError(w, r, http.StatusUnprocessableEntity, "comment_required")
	case errors.As(err, &guardErr):
		api.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":      "guard_failed",
			"reasons":    guardErr.Reasons,
			"request_id": r.Header.Get("X-Request-Id"),
		})
	case errors.As(err, &actionErr):
		api.writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":       "action_failed",
			"action_id":   actionErr.ActionID,
			"action_type": actionErr.ActionType,
			"rolled_back": actionErr.RolledBack,
			"request_id":  r.Header.Get("X-Request-Id"),
		})
	case errors.Is(err, repo.ErrNotFound):
		api.writeError(w, r, http.StatusNotFound, "not_found")
	default:
		api.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", r.Header.Get("X-Request-Id"),
			"error", err.Error(),
		)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
	}
}

func clientIP(r *http.Request) net.IP {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return net.ParseIP(strings.TrimSpace(r.RemoteAddr))
	}
	return net.ParseIP(host)
}

func queryInt(r *http.Request, name string, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 4<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("multiple JSON values")
	}
	return nil
}

func (api *workflowAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func (api *workflowAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	api.writeJSON(w, status, map[string]any{
		"error":      code,
		"request_id": r.Header.Get("X-Request-Id"),
	})
}
