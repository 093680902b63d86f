package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/reginaldwlsnnn87-max/inventory-app-sub003/internal/domain"
	"github.com/reginaldwlsnnn87-max/inventory-app-sub003/internal/engine"
	"github.com/reginaldwlsnnn87-max/inventory-app-sub003/internal/postgres"
	"github.com/reginaldwlsnnn87-max/inventory-app-sub003/internal/version"
)

const (
	defaultArchiveLimit = 50
	maxArchiveLimit     = 500
)

// REST exposes the engine over HTTP.
type REST struct {
	engine  *engine.Engine
	archive postgres.Archive // nil when archiving is disabled
	logger  *slog.Logger
}

// NewREST creates a new REST handler.
func NewREST(eng *engine.Engine, archive postgres.Archive, logger *slog.Logger) *REST {
	return &REST{engine: eng, archive: archive, logger: logger}
}

// Routes mounts every endpoint on a chi router.
func (h *REST) Routes(r chi.Router) {
	r.Post("/workspaces/{key}/activate", h.ActivateWorkspace)
	r.Post("/cycles", h.RunCycle)
	r.Get("/tasks", h.ListTasks)
	r.Get("/tasks/archive", h.ArchivedTasks)
	r.Post("/tasks/{id}/done", h.MarkDone)
	r.Post("/tasks/{id}/reopen", h.Reopen)
	r.Post("/tasks/{id}/snooze", h.Snooze)
	r.Delete("/tasks", h.ResetTasks)
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.UpdateSettings)
	r.Get("/route", h.ConsumeRoute)
}

// ActivateResponse is the POST /workspaces/{key}/activate response body.
type ActivateResponse struct {
	Workspace string `json:"workspace"`
}

// CycleRequest is the POST /api/v1/cycles body.
type CycleRequest struct {
	Signals domain.Signals `json:"signals"`
}

// TaskListResponse is the GET /api/v1/tasks response body.
type TaskListResponse struct {
	Workspace string        `json:"workspace"`
	State     string        `json:"state"`
	Tasks     []domain.Task `json:"tasks"`
}

// ArchiveResponse is the GET /api/v1/tasks/archive response body.
type ArchiveResponse struct {
	Workspace string        `json:"workspace"`
	Tasks     []domain.Task `json:"tasks"`
}

// SnoozeRequest is the POST /tasks/{id}/snooze body. Zero or missing
// hours falls back to the engine default.
type SnoozeRequest struct {
	Hours int `json:"hours"`
}

// SettingsRequest is the PUT /api/v1/settings body; nil fields are left
// untouched.
type SettingsRequest struct {
	AutopilotEnabled *bool   `json:"autopilot_enabled,omitempty"`
	RemindersEnabled *bool   `json:"reminders_enabled,omitempty"`
	ReminderWindow   *string `json:"reminder_window,omitempty"`
}

// SettingsResponse mirrors the active workspace's toggles.
type SettingsResponse struct {
	Workspace        string `json:"workspace"`
	AutopilotEnabled bool   `json:"autopilot_enabled"`
	RemindersEnabled bool   `json:"reminders_enabled"`
	ReminderWindow   string `json:"reminder_window"`
}

// ActivateWorkspace handles POST /api/v1/workspaces/{key}/activate.
func (h *REST) ActivateWorkspace(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("autopilotd").Start(r.Context(), "api.activate_workspace")
	defer span.End()

	key := chi.URLParam(r, "key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "workspace key is required")
		return
	}
	span.SetAttributes(attribute.String("workspace", key))

	if err := h.engine.ActivateWorkspace(ctx, key); err != nil {
		h.logger.Error("activate workspace failed",
			slog.String("workspace", key),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to activate workspace")
		return
	}

	writeJSON(w, http.StatusOK, ActivateResponse{Workspace: key})
}

// RunCycle handles POST /api/v1/cycles. The body carries the signal
// snapshot; ?force=true bypasses the autopilot gate and the cooldown.
func (h *REST) RunCycle(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("autopilotd").Start(r.Context(), "api.run_cycle")
	defer span.End()

	var req CycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	force := r.URL.Query().Get("force") == "true"
	span.SetAttributes(attribute.Bool("force", force))

	if err := h.engine.RunCycle(ctx, req.Signals, force); err != nil {
		var noWorkspace *domain.NoActiveWorkspaceError
		if errors.As(err, &noWorkspace) {
			writeError(w, http.StatusConflict, "no active workspace")
			return
		}
		h.logger.Error("cycle run failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "cycle run failed")
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// ListTasks handles GET /api/v1/tasks?state=open|snoozed|done.
func (h *REST) ListTasks(w http.ResponseWriter, r *http.Request) {
	if h.engine.ActiveWorkspace() == "" {
		writeError(w, http.StatusConflict, "no active workspace")
		return
	}

	state := r.URL.Query().Get("state")
	if state == "" {
		state = "open"
	}

	var tasks []domain.Task
	switch state {
	case "open":
		tasks = h.engine.OpenTasks()
	case "snoozed":
		tasks = h.engine.SnoozedTasks()
	case "done":
		tasks = h.engine.CompletedTasks()
	default:
		writeError(w, http.StatusBadRequest, "state must be one of: open, snoozed, done")
		return
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}

	writeJSON(w, http.StatusOK, TaskListResponse{
		Workspace: h.engine.ActiveWorkspace(),
		State:     state,
		Tasks:     tasks,
	})
}

// ArchivedTasks handles GET /api/v1/tasks/archive?limit=N — the audit
// trail of tasks the engine has persisted for the active workspace.
func (h *REST) ArchivedTasks(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "archive is not configured")
		return
	}
	key := h.engine.ActiveWorkspace()
	if key == "" {
		writeError(w, http.StatusConflict, "no active workspace")
		return
	}

	limit := defaultArchiveLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxArchiveLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	tasks, err := h.archive.ListTasks(r.Context(), key, limit)
	if err != nil {
		h.logger.Error("archive read failed",
			slog.String("workspace", key),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "archive read failed")
		return
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}

	writeJSON(w, http.StatusOK, ArchiveResponse{Workspace: key, Tasks: tasks})
}

// MarkDone handles POST /api/v1/tasks/{id}/done.
func (h *REST) MarkDone(w http.ResponseWriter, r *http.Request) {
	h.mutateTask(w, r, h.engine.MarkDone)
}

// Reopen handles POST /api/v1/tasks/{id}/reopen.
func (h *REST) Reopen(w http.ResponseWriter, r *http.Request) {
	h.mutateTask(w, r, h.engine.Reopen)
}

// Snooze handles POST /api/v1/tasks/{id}/snooze.
func (h *REST) Snooze(w http.ResponseWriter, r *http.Request) {
	var req SnoozeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.Hours == 0 {
		req.Hours = engine.DefaultSnoozeHours
	}
	h.mutateTask(w, r, func(ctx context.Context, id string) error {
		return h.engine.Snooze(ctx, id, req.Hours)
	})
}

func (h *REST) mutateTask(w http.ResponseWriter, r *http.Request, op func(context.Context, string) error) {
	taskID := chi.URLParam(r, "id")
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "task ID is required")
		return
	}

	if err := op(r.Context(), taskID); err != nil {
		var notFound *domain.TaskNotFoundError
		var noWorkspace *domain.NoActiveWorkspaceError
		switch {
		case errors.As(err, &notFound):
			writeError(w, http.StatusNotFound, "task not found")
		case errors.As(err, &noWorkspace):
			writeError(w, http.StatusConflict, "no active workspace")
		default:
			h.logger.Error("task mutation failed",
				slog.String("task_id", taskID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "task mutation failed")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ResetTasks handles DELETE /api/v1/tasks.
func (h *REST) ResetTasks(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ResetTasks(r.Context()); err != nil {
		var noWorkspace *domain.NoActiveWorkspaceError
		if errors.As(err, &noWorkspace) {
			writeError(w, http.StatusConflict, "no active workspace")
			return
		}
		h.logger.Error("reset tasks failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "reset failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSettings handles GET /api/v1/settings.
func (h *REST) GetSettings(w http.ResponseWriter, r *http.Request) {
	key := h.engine.ActiveWorkspace()
	if key == "" {
		writeError(w, http.StatusConflict, "no active workspace")
		return
	}
	autopilot, reminders, window := h.engine.Settings()
	writeJSON(w, http.StatusOK, SettingsResponse{
		Workspace:        key,
		AutopilotEnabled: autopilot,
		RemindersEnabled: reminders,
		ReminderWindow:   string(window),
	})
}

// UpdateSettings handles PUT /api/v1/settings. Fields absent from the
// body are left as they are.
func (h *REST) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	apply := func(err error) bool {
		if err == nil {
			return true
		}
		var noWorkspace *domain.NoActiveWorkspaceError
		var invalidWindow *domain.InvalidWindowError
		switch {
		case errors.As(err, &noWorkspace):
			writeError(w, http.StatusConflict, "no active workspace")
		case errors.As(err, &invalidWindow):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("update settings failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "update settings failed")
		}
		return false
	}

	if req.AutopilotEnabled != nil {
		if !apply(h.engine.SetAutopilotEnabled(ctx, *req.AutopilotEnabled)) {
			return
		}
	}
	if req.RemindersEnabled != nil {
		if !apply(h.engine.SetRemindersEnabled(ctx, *req.RemindersEnabled)) {
			return
		}
	}
	if req.ReminderWindow != nil {
		if !apply(h.engine.SetReminderWindow(ctx, domain.ReminderWindow(*req.ReminderWindow))) {
			return
		}
	}

	h.GetSettings(w, r)
}

// ConsumeRoute handles GET /api/v1/route — takes the pending proactive
// route, if any. A route is handed out exactly once.
func (h *REST) ConsumeRoute(w http.ResponseWriter, r *http.Request) {
	route := h.engine.ConsumeRoute()
	if route == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, route)
}

// Healthz handles GET /healthz.
func (h *REST) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

// ReadyzResponse is the GET /readyz body. The service accepts activations
// from the moment it is up; workspace names the live workspace, if any.
type ReadyzResponse struct {
	Status    string `json:"status"`
	Workspace string `json:"workspace,omitempty"`
	Archive   bool   `json:"archive"`
}

// Readyz handles GET /readyz.
func (h *REST) Readyz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ReadyzResponse{
		Status:    "ready",
		Workspace: h.engine.ActiveWorkspace(),
		Archive:   h.archive != nil,
	})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
