package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ledgerline-labs/ledgerline-go/internal/domain"
	"github.com/ledgerline-labs/ledgerline-go/internal/platform/auth"
	"github.com/ledgerline-labs/ledgerline-go/internal/repo"
	"github.com/ledgerline-labs/ledgerline-go/internal/workflow/action"
	"github.com/ledgerline-labs/ledgerline-go/internal/workflow/engine"
	"github.com/ledgerline-labs/ledgerline-go/internal/workflow/entity"
	"github.com/ledgerline-labs/ledgerline-go/internal/workflow/guard"
)

// memStore is an in-memory repo.WorkflowStore for handler tests.
type memStore struct {
	mu           sync.Mutex
	pipelines    map[string]domain.Pipeline
	states       map[string]domain.State
	transitions  map[string]domain.Transition
	actions      map[string][]domain.TransitionAction
	entityStates map[string]domain.EntityState
	logs         []domain.StateLog
}

func newMemStore() *memStore {
	return &memStore{
		pipelines:    make(map[string]domain.Pipeline),
		states:       make(map[string]domain.State),
		transitions:  make(map[string]domain.Transition),
		actions:      make(map[string][]domain.TransitionAction),
		entityStates: make(map[string]domain.EntityState),
	}
}

func (s *memStore) CreatePipeline(ctx context.Context, p domain.Pipeline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pipelines[p.ID]; exists {
		return repo.ErrDuplicate
	}
	s.pipelines[p.ID] = p
	return nil
}

func (s *memStore) GetPipeline(ctx context.Context, id string) (domain.Pipeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pipelines[id]
	if !ok {
		return domain.Pipeline{}, repo.ErrNotFound
	}
	return p, nil
}

func (s *memStore) ListPipelines(ctx context.Context, filter repo.PipelineFilter) ([]domain.Pipeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Pipeline
	for _, p := range s.pipelines {
		if filter.EntityType != "" && p.EntityType != filter.EntityType {
			continue
		}
		if filter.Code != "" && p.Code != filter.Code {
			continue
		}
		if filter.ActiveOnly && !p.IsActive {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *memStore) DeactivatePipeline(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pipelines[id]
	if !ok {
		return repo.ErrNotFound
	}
	p.IsActive = false
	s.pipelines[id] = p
	return nil
}

func (s *memStore) CreateState(ctx context.Context, st domain.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[st.ID] = st
	return nil
}

func (s *memStore) GetState(ctx context.Context, id string) (domain.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[id]
	if !ok {
		return domain.State{}, repo.ErrNotFound
	}
	return st, nil
}

func (s *memStore) ListStates(ctx context.Context, pipelineID string) ([]domain.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.State
	for _, st := range s.states {
		if st.PipelineID == pipelineID {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *memStore) CreateTransition(ctx context.Context, tr domain.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions[tr.ID] = tr
	return nil
}

func (s *memStore) GetTransition(ctx context.Context, id string) (domain.Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, ok := s.transitions[id]
	if !ok {
		return domain.Transition{}, repo.ErrNotFound
	}
	return tr, nil
}

func (s *memStore) ListTransitionsFrom(ctx context.Context, pipelineID, fromStateID string) ([]domain.Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Transition
	for _, tr := range s.transitions {
		if tr.PipelineID == pipelineID && tr.FromStateID == fromStateID {
			out = append(out, tr)
		}
	}
	return out, nil
}

func (s *memStore) ListTransitions(ctx context.Context, pipelineID string) ([]domain.Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Transition
	for _, tr := range s.transitions {
		if tr.PipelineID == pipelineID {
			out = append(out, tr)
		}
	}
	return out, nil
}

func (s *memStore) CreateTransitionAction(ctx context.Context, a domain.TransitionAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[a.TransitionID] = append(s.actions[a.TransitionID], a)
	return nil
}

func (s *memStore) ListTransitionActions(ctx context.Context, transitionID string) ([]domain.TransitionAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.TransitionAction(nil), s.actions[transitionID]...), nil
}

func (s *memStore) CreateEntityState(ctx context.Context, es domain.EntityState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := es.EntityType + "|" + es.EntityID
	if _, exists := s.entityStates[key]; exists {
		return repo.ErrDuplicate
	}
	s.entityStates[key] = es
	return nil
}

func (s *memStore) GetEntityState(ctx context.Context, entityType, entityID string) (domain.EntityState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	es, ok := s.entityStates[entityType+"|"+entityID]
	if !ok {
		return domain.EntityState{}, repo.ErrNotFound
	}
	return es, nil
}

func (s *memStore) UpdateCurrentState(ctx context.Context, id, expectedStateID, newStateID, actor string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, es := range s.entityStates {
		if es.ID != id {
			continue
		}
		if es.CurrentStateID != expectedStateID {
			return repo.ErrStaleState
		}
		es.CurrentStateID = newStateID
		es.LastTransitionedBy = actor
		ts := at
		es.LastTransitionedAt = &ts
		s.entityStates[key] = es
		return nil
	}
	return repo.ErrStaleState
}

func (s *memStore) AppendStateLog(ctx context.Context, log domain.StateLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, log)
	return nil
}

func (s *memStore) ListStateLogs(ctx context.Context, entityType, entityID string, page repo.Page) ([]domain.StateLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []domain.StateLog
	for i := len(s.logs) - 1; i >= 0; i-- {
		if s.logs[i].EntityType == entityType && s.logs[i].EntityID == entityID {
			matched = append(matched, s.logs[i])
		}
	}
	limit := page.Limit
	if limit <= 0 {
		limit = 50
	}
	if page.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[page.Offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *memStore) CountStateLogs(ctx context.Context, entityType, entityID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, log := range s.logs {
		if log.EntityType == entityType && log.EntityID == entityID {
			n++
		}
	}
	return n, nil
}

func (s *memStore) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repo.WorkflowTx) error) error {
	s.mu.Lock()
	snapshotStates := make(map[string]domain.EntityState, len(s.entityStates))
	for k, v := range s.entityStates {
		snapshotStates[k] = v
	}
	snapshotLogs := append([]domain.StateLog(nil), s.logs...)
	s.mu.Unlock()

	if err := fn(ctx, s); err != nil {
		s.mu.Lock()
		s.entityStates = snapshotStates
		s.logs = snapshotLogs
		s.mu.Unlock()
		return err
	}
	return nil
}

const testPermissionsYAML = `
roles:
  asset_manager:
    - asset.activate
    - asset.retire
  clerk:
    - asset.activate
`

var (
	testManager = auth.Identity{Subject: "mia", Email: "mia@example.com", Roles: []string{"admin", "asset_manager"}}
	testClerk   = auth.Identity{Subject: "carl", Email: "carl@example.com", Roles: []string{"admin", "clerk"}}
)

// withIdentity stands in for the auth middleware.
func withIdentity(next http.Handler, identity auth.Identity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), identity)))
	})
}

type apiFixture struct {
	store  *memStore
	source *entity.MemorySource
	mux    *http.ServeMux
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	store := newMemStore()
	ctx := context.Background()

	seed := []any{
		domain.Pipeline{
			ID: "pl-asset", Name: "Asset Lifecycle", Code: "asset_lifecycle",
			EntityType: "asset", Version: 1, IsActive: true,
			CreatedAt: time.Now().UTC(), CreatedBy: "seed",
		},
		domain.State{ID: "s-draft", PipelineID: "pl-asset", Code: "draft", Name: "Draft", Type: domain.StateTypeInitial, SortOrder: 1},
		domain.State{ID: "s-active", PipelineID: "pl-asset", Code: "active", Name: "Active", Type: domain.StateTypeNormal, SortOrder: 2},
		domain.State{ID: "s-retired", PipelineID: "pl-asset", Code: "retired", Name: "Retired", Type: domain.StateTypeTerminal, SortOrder: 3},
		domain.Transition{
			ID: "t-activate", PipelineID: "pl-asset", FromStateID: "s-draft", ToStateID: "s-active",
			Code: "activate", Name: "Activate", RequiredPermission: "asset.activate", IsActive: true, SortOrder: 1,
		},
		domain.Transition{
			ID: "t-retire", PipelineID: "pl-asset", FromStateID: "s-active", ToStateID: "s-retired",
			Code: "retire", Name: "Retire", RequiredPermission: "asset.retire",
			Guards: []domain.GuardSpec{{
				Kind:   "field_compare",
				Params: map[string]any{"field": "book_value", "op": "lte", "value": 0, "message": "book value must be zero"},
			}},
			RequiresComment: true, IsActive: true, SortOrder: 2,
		},
	}
	for _, row := range seed {
		var err error
		switch v := row.(type) {
		case domain.Pipeline:
			err = store.CreatePipeline(ctx, v)
		case domain.State:
			err = store.CreateState(ctx, v)
		case domain.Transition:
			err = store.CreateTransition(ctx, v)
		}
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	source := entity.NewMemorySource()
	source.Put("42", map[string]any{"status": "draft", "book_value": 120.5, "category": "vehicle"})
	registry := entity.NewRegistry()
	if err := registry.Register("asset", source); err != nil {
		t.Fatalf("register source: %v", err)
	}

	perms, err := auth.ParseRolePermissions([]byte(testPermissionsYAML))
	if err != nil {
		t.Fatalf("parse permissions: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng, err := engine.New(engine.Options{
		Store:       store,
		Entities:    registry,
		Guards:      guard.NewBuiltinRegistry(),
		Actions:     action.NewRegistry(),
		Permissions: perms,
		Logger:      logger,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	mux := http.NewServeMux()
	api := newWorkflowAPI(logger, eng, nil)
	api.register(mux)
	newAdminAPI(logger, nil, store, api).register(mux)

	return &apiFixture{store: store, source: source, mux: mux}
}

func (f *apiFixture) do(t *testing.T, identity auth.Identity, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-Request-Id", "req-test")
	rec := httptest.NewRecorder()
	withIdentity(f.mux, identity).ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response not json: %v: %s", err, rec.Body.String())
	}
	return body
}

func TestGetStateHandler(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, testManager, http.MethodGet, "/entities/asset/42/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	current, _ := body["current_state"].(map[string]any)
	if current["code"] != "draft" {
		t.Fatalf("expected draft, got %v", body)
	}
	transitions, _ := body["transitions"].([]any)
	if len(transitions) != 1 {
		t.Fatalf("expected one transition option, got %v", body["transitions"])
	}
	opt, _ := transitions[0].(map[string]any)
	if opt["code"] != "activate" || opt["is_allowed"] != true {
		t.Fatalf("unexpected option: %v", opt)
	}
}

func TestGetStateHandlerNoPipeline(t *testing.T) {
	f := newAPIFixture(t)
	f.source.Put("99", map[string]any{"category": "vehicle"})

	// Deactivate the only pipeline so nothing can bind.
	if err := f.store.DeactivatePipeline(context.Background(), "pl-asset"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	rec := f.do(t, testManager, http.MethodGet, "/entities/asset/99/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["no_pipeline"] != true {
		t.Fatalf("expected no_pipeline, got %v", body)
	}
}

func TestGetStateHandlerUnknownType(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, testManager, http.MethodGet, "/entities/invoice/1/state", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["error"] != "entity_type_unknown" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestExecuteTransitionHandler(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, testManager, http.MethodPost, "/entities/asset/42/transitions/t-activate",
		`{"comment":"go live","metadata":{"ticket":"LL-7"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	toState, _ := body["to_state"].(map[string]any)
	if toState["code"] != "active" {
		t.Fatalf("unexpected body: %v", body)
	}
	if len(f.store.logs) != 1 || f.store.logs[0].RequestID != "req-test" {
		t.Fatalf("provenance not recorded: %+v", f.store.logs)
	}
}

func TestExecuteTransitionHandlerPermissionDenied(t *testing.T) {
	f := newAPIFixture(t)
	if rec := f.do(t, testManager, http.MethodPost, "/entities/asset/42/transitions/t-activate", ""); rec.Code != http.StatusOK {
		t.Fatalf("activate: %d", rec.Code)
	}

	rec := f.do(t, testClerk, http.MethodPost, "/entities/asset/42/transitions/t-retire", `{"comment":"bye"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["error"] != "permission_denied" {
		t.Fatalf("unexpected body: %v", body)
	}
	if body["message"] != "You do not have permission to execute this transition." {
		t.Fatalf("unexpected message: %v", body["message"])
	}
}

func TestExecuteTransitionHandlerGuardFailed(t *testing.T) {
	f := newAPIFixture(t)
	if rec := f.do(t, testManager, http.MethodPost, "/entities/asset/42/transitions/t-activate", ""); rec.Code != http.StatusOK {
		t.Fatalf("activate: %d", rec.Code)
	}

	rec := f.do(t, testManager, http.MethodPost, "/entities/asset/42/transitions/t-retire", `{"comment":"bye"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["error"] != "guard_failed" {
		t.Fatalf("unexpected body: %v", body)
	}
	reasons, _ := body["reasons"].([]any)
	if len(reasons) != 1 || reasons[0] != "book value must be zero" {
		t.Fatalf("unexpected reasons: %v", body["reasons"])
	}
}

func TestExecuteTransitionHandlerCommentRequired(t *testing.T) {
	f := newAPIFixture(t)
	if rec := f.do(t, testManager, http.MethodPost, "/entities/asset/42/transitions/t-activate", ""); rec.Code != http.StatusOK {
		t.Fatalf("activate: %d", rec.Code)
	}
	f.source.Put("42", map[string]any{"status": "active", "book_value": 0})

	rec := f.do(t, testManager, http.MethodPost, "/entities/asset/42/transitions/t-retire", `{"comment":"  "}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["error"] != "comment_required" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestExecuteTransitionHandlerInvalidSourceState(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, testManager, http.MethodPost, "/entities/asset/42/transitions/t-retire", `{"comment":"bye"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["error"] != "invalid_transition" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestTimelineHandler(t *testing.T) {
	f := newAPIFixture(t)
	if rec := f.do(t, testManager, http.MethodPost, "/entities/asset/42/transitions/t-activate", `{"comment":"go live"}`); rec.Code != http.StatusOK {
		t.Fatalf("activate: %d", rec.Code)
	}

	rec := f.do(t, testManager, http.MethodGet, "/entities/asset/42/timeline?limit=10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	entries, _ := body["entries"].([]any)
	if len(entries) != 1 || body["total"] != float64(1) {
		t.Fatalf("unexpected body: %v", body)
	}
	entry, _ := entries[0].(map[string]any)
	if entry["transition_code"] != "activate" || entry["actor"] != "mia" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["integrity_sha256"] == "" {
		t.Fatalf("missing integrity hash: %v", entry)
	}
}

func TestTimelineExportHandlerUnavailable(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, testManager, http.MethodPost, "/entities/asset/42/timeline/export", "")
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAdminCreateAndGetPipeline(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, testManager, http.MethodPost, "/pipelines",
		`{"name":"Invoice Flow","code":"invoice_flow","entity_type":"invoice"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeBody(t, rec)
	id, _ := created["id"].(string)
	if id == "" || created["version"] != float64(1) {
		t.Fatalf("unexpected body: %v", created)
	}

	rec = f.do(t, testManager, http.MethodGet, "/pipelines/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	pipeline, _ := body["pipeline"].(map[string]any)
	if pipeline["code"] != "invoice_flow" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestAdminCreatePipelineRejectsInvalid(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, testManager, http.MethodPost, "/pipelines", `{"name":"","code":"x","entity_type":"y"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["error"] != "invalid_pipeline" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestAdminDeactivatePipeline(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, testManager, http.MethodPost, "/pipelines/pl-asset/deactivate", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	p, err := f.store.GetPipeline(context.Background(), "pl-asset")
	if err != nil {
		t.Fatalf("get pipeline: %v", err)
	}
	if p.IsActive {
		t.Fatalf("pipeline still active")
	}

	rec = f.do(t, testManager, http.MethodPost, "/pipelines/nope/deactivate", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAdminCreateTransitionRejectsForeignStates(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, testManager, http.MethodPost, "/pipelines/pl-asset/transitions",
		`{"from_state_id":"s-elsewhere","to_state_id":"s-active","code":"x","name":"X"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["error"] != "unknown_state" {
		t.Fatalf("unexpected body: %v", body)
	}
}

const importSpecYAML = `
schema: ledgerline.pipeline.v1
pipeline:
  name: Asset Lifecycle
  code: asset_lifecycle
  entity_type: asset
states:
  - code: draft
    name: Draft
    type: initial
  - code: active
    name: Active
transitions:
  - code: activate
    name: Activate
    from: draft
    to: active
    actions:
      - type: log
`

func TestAdminImportPipelineMintsNextVersion(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, testManager, http.MethodPost, "/pipelines/import", importSpecYAML)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	pipeline, _ := body["pipeline"].(map[string]any)
	// The seed already holds asset_lifecycle v1.
	if pipeline["version"] != float64(2) {
		t.Fatalf("expected version 2, got %v", body)
	}
	if body["states"] != float64(2) || body["transitions"] != float64(1) || body["actions"] != float64(1) {
		t.Fatalf("unexpected counts: %v", body)
	}

	id, _ := pipeline["id"].(string)
	states, err := f.store.ListStates(context.Background(), id)
	if err != nil || len(states) != 2 {
		t.Fatalf("states not persisted: %v %v", states, err)
	}
}

func TestAdminImportPipelineRejectsBadSpec(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, testManager, http.MethodPost, "/pipelines/import", "schema: other.v1\n")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["error"] != "invalid_spec" {
		t.Fatalf("unexpected body: %v", body)
	}
}
