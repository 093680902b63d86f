package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reginaldwlsnnn87-max/inventory-app-sub003/internal/domain"
	"github.com/reginaldwlsnnn87-max/inventory-app-sub003/internal/engine"
	"github.com/reginaldwlsnnn87-max/inventory-app-sub003/internal/postgres"
)

var apiNow = time.Date(2026, 1, 14, 8, 0, 0, 0, time.UTC)

// ── fakes ────────────────────────────────────────────────────────────────────

type memRepo struct {
	states map[string]domain.WorkspaceState
}

func newMemRepo() *memRepo {
	return &memRepo{states: make(map[string]domain.WorkspaceState)}
}

func (r *memRepo) Load(_ context.Context, key string) (domain.WorkspaceState, error) {
	if state, ok := r.states[key]; ok {
		return state, nil
	}
	return domain.DefaultWorkspaceState(), nil
}

func (r *memRepo) Save(_ context.Context, key string, state domain.WorkspaceState) error {
	r.states[key] = state
	return nil
}

type memArchive struct {
	tasks     []domain.Task
	err       error
	lastKey   string
	lastLimit int
}

func (a *memArchive) RecordCycle(context.Context, *postgres.CycleRecord) error { return nil }

func (a *memArchive) SaveTasks(context.Context, string, []domain.Task) error { return nil }

func (a *memArchive) ListTasks(_ context.Context, key string, limit int) ([]domain.Task, error) {
	a.lastKey, a.lastLimit = key, limit
	if a.err != nil {
		return nil, a.err
	}
	if len(a.tasks) > limit {
		return a.tasks[:limit], nil
	}
	return a.tasks, nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

func newTestRouter(t *testing.T) (chi.Router, *engine.Engine) {
	t.Helper()
	router, eng, _ := newTestRouterWithArchive(t, nil)
	return router, eng
}

func newTestRouterWithArchive(t *testing.T, archive postgres.Archive) (chi.Router, *engine.Engine, *REST) {
	t.Helper()
	eng := engine.New(newMemRepo(), nil, engine.WithClock(func() time.Time { return apiNow }))
	h := NewREST(eng, archive, slog.New(slog.NewTextHandler(io.Discard, nil)))

	r := chi.NewRouter()
	r.Route("/api/v1", h.Routes)
	return r, eng, h
}

func doRequest(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func ownerSignals() domain.Signals {
	return domain.Signals{
		Role:                     domain.RoleOwner,
		ItemCount:                40,
		UrgentReplenishmentCount: 3,
		AutoDraftCandidateCount:  2,
		AutoDraftSuggestedUnits:  120,
	}
}

func paceSignals() domain.Signals {
	return domain.Signals{
		Role:                       domain.RoleAssociate,
		ItemCount:                  30,
		CountTargetTrackedSessions: 2,
		TargetHitRate:              0.5,
	}
}

func activateAndCycle(t *testing.T, router chi.Router, sig domain.Signals) {
	t.Helper()
	rec := doRequest(t, router, http.MethodPost, "/api/v1/workspaces/ws1/activate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(t, router, http.MethodPost, "/api/v1/cycles?force=true", CycleRequest{Signals: sig})
	require.Equal(t, http.StatusAccepted, rec.Code)
}

// ── tests ────────────────────────────────────────────────────────────────────

func TestActivateWorkspace(t *testing.T) {
	router, eng := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/workspaces/ws1/activate", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ws1", decode[ActivateResponse](t, rec).Workspace)
	assert.Equal(t, "ws1", eng.ActiveWorkspace())
}

func TestRunCycle_NoActiveWorkspace(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/cycles", CycleRequest{Signals: ownerSignals()})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRunCycle_InvalidBody(t *testing.T) {
	router, _ := newTestRouter(t)
	doRequest(t, router, http.MethodPost, "/api/v1/workspaces/ws1/activate", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cycles", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunCycleAndListTasks(t *testing.T) {
	router, _ := newTestRouter(t)
	activateAndCycle(t, router, ownerSignals())

	rec := doRequest(t, router, http.MethodGet, "/api/v1/tasks", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[TaskListResponse](t, rec)
	assert.Equal(t, "ws1", resp.Workspace)
	assert.Equal(t, "open", resp.State)
	require.Len(t, resp.Tasks, 2)
	// Priority ordering puts the critical draft-PO task first.
	assert.Equal(t, "20260114-auto-draft-po", resp.Tasks[0].ID)
	assert.Equal(t, "20260114-kpi-review", resp.Tasks[1].ID)
}

func TestListTasks_NoActiveWorkspace(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/tasks", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListTasks_BadState(t *testing.T) {
	router, _ := newTestRouter(t)
	activateAndCycle(t, router, ownerSignals())

	rec := doRequest(t, router, http.MethodGet, "/api/v1/tasks?state=archived", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarkDone(t *testing.T) {
	router, _ := newTestRouter(t)
	activateAndCycle(t, router, ownerSignals())

	rec := doRequest(t, router, http.MethodPost, "/api/v1/tasks/20260114-auto-draft-po/done", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	done := decode[TaskListResponse](t, doRequest(t, router, http.MethodGet, "/api/v1/tasks?state=done", nil))
	require.Len(t, done.Tasks, 1)
	assert.Equal(t, "20260114-auto-draft-po", done.Tasks[0].ID)

	open := decode[TaskListResponse](t, doRequest(t, router, http.MethodGet, "/api/v1/tasks", nil))
	assert.Len(t, open.Tasks, 1)
}

func TestMarkDone_UnknownTask(t *testing.T) {
	router, _ := newTestRouter(t)
	activateAndCycle(t, router, ownerSignals())

	rec := doRequest(t, router, http.MethodPost, "/api/v1/tasks/20260114-nope/done", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSnooze_DefaultHours(t *testing.T) {
	router, _ := newTestRouter(t)
	activateAndCycle(t, router, ownerSignals())

	rec := doRequest(t, router, http.MethodPost, "/api/v1/tasks/20260114-kpi-review/snooze", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	snoozed := decode[TaskListResponse](t, doRequest(t, router, http.MethodGet, "/api/v1/tasks?state=snoozed", nil))
	require.Len(t, snoozed.Tasks, 1)
	require.NotNil(t, snoozed.Tasks[0].SnoozedUntil)
	assert.Equal(t, apiNow.Add(engine.DefaultSnoozeHours*time.Hour), *snoozed.Tasks[0].SnoozedUntil)
}

func TestSnooze_ExplicitHours(t *testing.T) {
	router, _ := newTestRouter(t)
	activateAndCycle(t, router, ownerSignals())

	rec := doRequest(t, router, http.MethodPost, "/api/v1/tasks/20260114-kpi-review/snooze", SnoozeRequest{Hours: 6})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	snoozed := decode[TaskListResponse](t, doRequest(t, router, http.MethodGet, "/api/v1/tasks?state=snoozed", nil))
	require.Len(t, snoozed.Tasks, 1)
	assert.Equal(t, apiNow.Add(6*time.Hour), *snoozed.Tasks[0].SnoozedUntil)
}

func TestReopen(t *testing.T) {
	router, _ := newTestRouter(t)
	activateAndCycle(t, router, ownerSignals())

	doRequest(t, router, http.MethodPost, "/api/v1/tasks/20260114-kpi-review/done", nil)
	rec := doRequest(t, router, http.MethodPost, "/api/v1/tasks/20260114-kpi-review/reopen", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	open := decode[TaskListResponse](t, doRequest(t, router, http.MethodGet, "/api/v1/tasks", nil))
	assert.Len(t, open.Tasks, 2)
}

func TestResetTasks(t *testing.T) {
	router, _ := newTestRouter(t)
	activateAndCycle(t, router, ownerSignals())

	rec := doRequest(t, router, http.MethodDelete, "/api/v1/tasks", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	open := decode[TaskListResponse](t, doRequest(t, router, http.MethodGet, "/api/v1/tasks", nil))
	assert.Empty(t, open.Tasks)
}

func TestSettings(t *testing.T) {
	router, _ := newTestRouter(t)
	doRequest(t, router, http.MethodPost, "/api/v1/workspaces/ws1/activate", nil)

	got := decode[SettingsResponse](t, doRequest(t, router, http.MethodGet, "/api/v1/settings", nil))
	assert.False(t, got.AutopilotEnabled)
	assert.Equal(t, string(domain.WindowAllDay), got.ReminderWindow)

	autopilot := true
	window := string(domain.WindowMidShift)
	rec := doRequest(t, router, http.MethodPut, "/api/v1/settings", SettingsRequest{
		AutopilotEnabled: &autopilot,
		ReminderWindow:   &window,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	got = decode[SettingsResponse](t, rec)
	assert.True(t, got.AutopilotEnabled)
	assert.Equal(t, window, got.ReminderWindow)
	assert.False(t, got.RemindersEnabled, "untouched field keeps its value")
}

func TestSettings_InvalidWindow(t *testing.T) {
	router, _ := newTestRouter(t)
	doRequest(t, router, http.MethodPost, "/api/v1/workspaces/ws1/activate", nil)

	window := "graveyard-shift"
	rec := doRequest(t, router, http.MethodPut, "/api/v1/settings", SettingsRequest{ReminderWindow: &window})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettings_NoActiveWorkspace(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/settings", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestConsumeRoute(t *testing.T) {
	router, _ := newTestRouter(t)
	doRequest(t, router, http.MethodPost, "/api/v1/workspaces/ws1/activate", nil)

	autopilot := true
	doRequest(t, router, http.MethodPut, "/api/v1/settings", SettingsRequest{AutopilotEnabled: &autopilot})
	rec := doRequest(t, router, http.MethodPost, "/api/v1/cycles", CycleRequest{Signals: paceSignals()})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/v1/route", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	route := decode[domain.NotificationRoute](t, rec)
	assert.Equal(t, domain.ActionOpenZoneMission, route.Action)
	assert.Equal(t, "ws1", route.WorkspaceKey)
	assert.NotEmpty(t, route.Token)

	// Routes are single-consumer.
	rec = doRequest(t, router, http.MethodGet, "/api/v1/route", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestArchivedTasks(t *testing.T) {
	archive := &memArchive{tasks: []domain.Task{
		{ID: "20260113-kpi-review", Title: "Review weekly KPIs", Status: domain.StatusDone},
		{ID: "20260114-kpi-review", Title: "Review weekly KPIs", Status: domain.StatusOpen},
	}}
	router, _, _ := newTestRouterWithArchive(t, archive)
	doRequest(t, router, http.MethodPost, "/api/v1/workspaces/ws1/activate", nil)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/tasks/archive", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[ArchiveResponse](t, rec)
	assert.Equal(t, "ws1", resp.Workspace)
	require.Len(t, resp.Tasks, 2)
	assert.Equal(t, "20260113-kpi-review", resp.Tasks[0].ID)

	// The active workspace scopes the read; the default limit applies.
	assert.Equal(t, "ws1", archive.lastKey)
	assert.Equal(t, 50, archive.lastLimit)
}

func TestArchivedTasks_Limit(t *testing.T) {
	archive := &memArchive{tasks: []domain.Task{
		{ID: "a"}, {ID: "b"}, {ID: "c"},
	}}
	router, _, _ := newTestRouterWithArchive(t, archive)
	doRequest(t, router, http.MethodPost, "/api/v1/workspaces/ws1/activate", nil)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/tasks/archive?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[ArchiveResponse](t, rec).Tasks, 2)
	assert.Equal(t, 2, archive.lastLimit)

	for _, bad := range []string{"0", "-1", "501", "many"} {
		rec = doRequest(t, router, http.MethodGet, "/api/v1/tasks/archive?limit="+bad, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", bad)
	}
}

func TestArchivedTasks_NoActiveWorkspace(t *testing.T) {
	router, _, _ := newTestRouterWithArchive(t, &memArchive{})
	rec := doRequest(t, router, http.MethodGet, "/api/v1/tasks/archive", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestArchivedTasks_NotConfigured(t *testing.T) {
	router, _ := newTestRouter(t)
	doRequest(t, router, http.MethodPost, "/api/v1/workspaces/ws1/activate", nil)
	rec := doRequest(t, router, http.MethodGet, "/api/v1/tasks/archive", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReadyz_ReportsWorkspaceAndArchive(t *testing.T) {
	router, _, h := newTestRouterWithArchive(t, &memArchive{})

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	resp := decode[ReadyzResponse](t, rec)
	assert.Equal(t, "ready", resp.Status)
	assert.Empty(t, resp.Workspace)
	assert.True(t, resp.Archive)

	doRequest(t, router, http.MethodPost, "/api/v1/workspaces/ws1/activate", nil)

	rec = httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	resp = decode[ReadyzResponse](t, rec)
	assert.Equal(t, "ws1", resp.Workspace)
}
