package notify

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/reginaldwlsnnn87-max/inventory-app-sub003/internal/domain"
	"github.com/reginaldwlsnnn87-max/inventory-app-sub003/pkg/telemetry"
)

const (
	// debounceInterval suppresses back-to-back syncs; the task set is
	// recomputed from source of truth every cycle, so skipping is safe.
	debounceInterval = 12 * time.Second
	// scheduleHorizon bounds how far ahead a due time may be and still
	// get a notification.
	scheduleHorizon = 18 * time.Hour
	// maxScheduled caps per-task notifications per sync.
	maxScheduled = 20

	briefSuffix = "daily-brief"
)

// Snapshot is the point-in-time engine state a sync works from. The
// engine hands it over and releases its lock; the scheduler never calls
// back into the engine.
type Snapshot struct {
	WorkspaceKey string
	Tasks        []domain.Task // open tasks, already sorted
	Window       domain.ReminderWindow
	Enabled      bool
}

// Scheduler syncs notification requests for the active workspace,
// debounced. Safe for concurrent use.
type Scheduler struct {
	svc    Service
	logger *slog.Logger
	clock  func() time.Time

	mu         sync.Mutex
	lastSyncAt map[string]time.Time
	authorized bool
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

func WithSchedulerClock(clock func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.clock = clock }
}

// NewScheduler creates a Scheduler backed by the given service.
func NewScheduler(svc Service, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		svc:        svc,
		logger:     slog.Default(),
		clock:      time.Now,
		lastSyncAt: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync replaces the workspace's pending notifications with a fresh plan
// derived from the snapshot.
//
// Returns false when authorization was denied, which the caller must
// surface by flipping reminders off. Every other failure is logged and
// absorbed: the next sync recomputes the full plan anyway.
func (s *Scheduler) Sync(ctx context.Context, snap Snapshot, force bool) bool {
	ctx, span := otel.Tracer("notify").Start(ctx, "notify.sync")
	defer span.End()
	span.SetAttributes(
		attribute.String("workspace", snap.WorkspaceKey),
		attribute.Int("tasks", len(snap.Tasks)),
		attribute.Bool("force", force),
	)

	log := s.logger.With(slog.String("workspace", snap.WorkspaceKey))

	if !snap.Enabled {
		s.clearWorkspace(ctx, snap.WorkspaceKey, log)
		telemetry.NotifySyncsTotal.WithLabelValues("disabled").Inc()
		return true
	}

	now := s.clock()
	s.mu.Lock()
	if last, ok := s.lastSyncAt[snap.WorkspaceKey]; ok && !force && now.Sub(last) < debounceInterval {
		s.mu.Unlock()
		telemetry.NotifySyncsTotal.WithLabelValues("debounced").Inc()
		return true
	}
	s.lastSyncAt[snap.WorkspaceKey] = now
	authorized := s.authorized
	s.mu.Unlock()

	if !authorized {
		granted, err := s.svc.RequestAuthorization(ctx)
		if err != nil {
			// Can't tell; keep reminders on and let the next sync retry.
			log.Error("notification authorization check failed", slog.String("error", err.Error()))
			telemetry.NotifySyncsTotal.WithLabelValues("auth_error").Inc()
			return true
		}
		if !granted {
			log.Warn("notification authorization denied, reminders will be disabled")
			telemetry.NotifySyncsTotal.WithLabelValues("denied").Inc()
			return false
		}
		s.mu.Lock()
		s.authorized = true
		s.mu.Unlock()
	}

	s.clearWorkspace(ctx, snap.WorkspaceKey, log)

	prefix := IdentifierPrefix(snap.WorkspaceKey)
	scheduled := 0
	for i := range snap.Tasks {
		task := &snap.Tasks[i]
		if !s.eligible(task, snap.Window, now) {
			continue
		}
		if scheduled >= maxScheduled {
			break
		}
		req := Request{
			Identifier:   prefix + task.ID,
			FireAt:       task.DueAt,
			Action:       task.Action,
			TaskID:       task.ID,
			WorkspaceKey: snap.WorkspaceKey,
		}
		if err := s.svc.Schedule(ctx, req); err != nil {
			// No synchronous retry: the next debounced sync rebuilds the plan.
			log.Error("schedule notification failed",
				slog.String("identifier", req.Identifier),
				slog.String("error", err.Error()),
			)
			continue
		}
		scheduled++
	}

	if len(snap.Tasks) > 0 {
		req := Request{
			Identifier:   prefix + briefSuffix,
			FireAt:       briefFireAt(now, snap.Window),
			Action:       domain.ActionOpenDailyBrief,
			WorkspaceKey: snap.WorkspaceKey,
			Summary:      true,
		}
		if err := s.svc.Schedule(ctx, req); err != nil {
			log.Error("schedule daily brief failed", slog.String("error", err.Error()))
		} else {
			scheduled++
		}
	}

	telemetry.NotifySyncsTotal.WithLabelValues("synced").Inc()
	telemetry.NotifyScheduledTotal.Add(float64(scheduled))
	log.Debug("notification sync complete", slog.Int("scheduled", scheduled))
	return true
}

// eligible applies the per-task notification filter: open, not snoozed,
// due inside (now, now+horizon], and due within the reminder window.
func (s *Scheduler) eligible(task *domain.Task, window domain.ReminderWindow, now time.Time) bool {
	if !task.Actionable(now) {
		return false
	}
	if !task.DueAt.After(now) || task.DueAt.After(now.Add(scheduleHorizon)) {
		return false
	}
	return window.Contains(task.DueAt.Hour())
}

// briefFireAt returns today's shift-brief time for the window, rolled to
// tomorrow when that hour has already passed.
func briefFireAt(now time.Time, window domain.ReminderWindow) time.Time {
	at := time.Date(now.Year(), now.Month(), now.Day(), window.BriefHour(), 0, 0, 0, now.Location())
	if !at.After(now) {
		at = at.Add(24 * time.Hour)
	}
	return at
}

// clearWorkspace cancels every pending request carrying this workspace's
// reserved identifier prefix.
func (s *Scheduler) clearWorkspace(ctx context.Context, workspaceKey string, log *slog.Logger) {
	pending, err := s.svc.Pending(ctx)
	if err != nil {
		log.Error("enumerate pending notifications failed", slog.String("error", err.Error()))
		return
	}

	prefix := IdentifierPrefix(workspaceKey)
	var owned []string
	for _, id := range pending {
		if strings.HasPrefix(id, prefix) {
			owned = append(owned, id)
		}
	}
	if len(owned) == 0 {
		return
	}
	if err := s.svc.Cancel(ctx, owned); err != nil {
		log.Error("cancel pending notifications failed", slog.String("error", err.Error()))
		return
	}
	telemetry.NotifyCancelledTotal.Add(float64(len(owned)))
}
