// Package engine owns the authoritative automation state of the active
// workspace: cycle runs, task lifecycle, settings, and the proactive
// router. All mutations are serialized behind one mutex; external calls
// (notification sync, archiving) happen on snapshots, off the lock.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/reginaldwlsnnn87-max/inventory-app-sub003/internal/domain"
	"github.com/reginaldwlsnnn87-max/inventory-app-sub003/internal/notify"
	"github.com/reginaldwlsnnn87-max/inventory-app-sub003/internal/postgres"
	"github.com/reginaldwlsnnn87-max/inventory-app-sub003/internal/rules"
	"github.com/reginaldwlsnnn87-max/inventory-app-sub003/pkg/telemetry"
)

const (
	// cycleCooldown rate-limits back-to-back cycle runs. A workspace
	// that has never run is always eligible.
	cycleCooldown = 20 * time.Second
	// routeCooldown spaces proactive route emissions per workspace.
	routeCooldown = 2 * time.Hour
	// DefaultSnoozeHours is applied when a snooze request names no duration.
	DefaultSnoozeHours = 3

	syncTimeout = 30 * time.Second
)

// Repository loads and saves one state blob per workspace key.
type Repository interface {
	Load(ctx context.Context, key string) (domain.WorkspaceState, error)
	Save(ctx context.Context, key string, state domain.WorkspaceState) error
}

// Engine is the workspace-scoped automation rule engine.
type Engine struct {
	repo      Repository
	scheduler *notify.Scheduler
	archive   postgres.Archive // nil = archiving disabled
	logger    *slog.Logger
	clock     func() time.Time

	mu    sync.Mutex
	key   string // active workspace; "" until first activation
	state domain.WorkspaceState
	route *domain.NotificationRoute

	background sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *slog.Logger) Option            { return func(e *Engine) { e.logger = l } }
func WithClock(clock func() time.Time) Option     { return func(e *Engine) { e.clock = clock } }
func WithArchive(a postgres.Archive) Option       { return func(e *Engine) { e.archive = a } }

// New constructs an Engine. No workspace is active until
// ActivateWorkspace is called.
func New(repo Repository, scheduler *notify.Scheduler, opts ...Option) *Engine {
	e := &Engine{
		repo:      repo,
		scheduler: scheduler,
		logger:    slog.Default(),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Wait blocks until all background syncs and archive writes finish.
// Call during shutdown.
func (e *Engine) Wait() { e.background.Wait() }

// ActivateWorkspace persists the outgoing workspace's state and swaps in
// the named one. In-flight notification syncs for the previous workspace
// are not cancelled; they run to completion on their own snapshots.
func (e *Engine) ActivateWorkspace(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("workspace key required")
	}

	e.mu.Lock()
	if key == e.key {
		e.mu.Unlock()
		return nil
	}

	if e.key != "" {
		if err := e.repo.Save(ctx, e.key, e.state); err != nil {
			e.logger.Error("persist outgoing workspace failed",
				slog.String("workspace", e.key),
				slog.String("error", err.Error()),
			)
		}
	}

	state, err := e.repo.Load(ctx, key)
	if err != nil {
		// Degrade to a fresh workspace; the blob may still be intact and
		// will be re-read on the next activation.
		e.logger.Error("load workspace failed, starting from defaults",
			slog.String("workspace", key),
			slog.String("error", err.Error()),
		)
		state = domain.DefaultWorkspaceState()
	}

	e.key = key
	e.state = state
	e.route = nil
	snap := e.snapshotLocked(e.clock())
	e.mu.Unlock()

	e.logger.Info("workspace activated", slog.String("workspace", key))
	e.dispatchSync(snap, false)
	return nil
}

// RunCycle converts a signal snapshot into the reconciled task set.
// It is a no-op unless autopilot is enabled or force is set, and is
// rate-limited to one run per cooldown window unless forced.
func (e *Engine) RunCycle(ctx context.Context, sig domain.Signals, force bool) error {
	ctx, span := otel.Tracer("engine").Start(ctx, "engine.run_cycle")
	defer span.End()

	e.mu.Lock()
	if e.key == "" {
		e.mu.Unlock()
		return &domain.NoActiveWorkspaceError{}
	}
	span.SetAttributes(attribute.String("workspace", e.key), attribute.Bool("force", force))

	if !e.state.AutopilotEnabled && !force {
		e.mu.Unlock()
		telemetry.EngineCyclesTotal.WithLabelValues("autopilot_off").Inc()
		return nil
	}

	now := e.clock()
	if !force && e.state.LastRunAt != nil && now.Sub(*e.state.LastRunAt) < cycleCooldown {
		e.mu.Unlock()
		telemetry.EngineCyclesTotal.WithLabelValues("rate_limited").Inc()
		return nil
	}

	before := make(map[string]bool, len(e.state.Tasks))
	for i := range e.state.Tasks {
		before[e.state.Tasks[i].ID] = true
	}

	candidates := rules.Build(sig, now)
	e.state.Tasks = Reconcile(candidates, e.state.Tasks, now)
	e.state.LastRunAt = &now

	created := 0
	for i := range e.state.Tasks {
		if !before[e.state.Tasks[i].ID] {
			created++
		}
	}

	e.evaluateRouteLocked(sig, now)
	e.persistLocked(ctx)

	key := e.key
	taskCount := len(e.state.Tasks)
	openCount := 0
	for i := range e.state.Tasks {
		if e.state.Tasks[i].Status == domain.StatusOpen {
			openCount++
		}
	}
	snap := e.snapshotLocked(now)
	e.mu.Unlock()

	telemetry.EngineCyclesTotal.WithLabelValues("ran").Inc()
	telemetry.EngineTasksGenerated.Add(float64(created))
	telemetry.EngineOpenTasks.WithLabelValues(key).Set(float64(openCount))
	span.SetAttributes(
		attribute.Int("candidates", len(candidates)),
		attribute.Int("tasks", taskCount),
		attribute.Int("tasks_created", created),
	)

	if e.archive != nil {
		rec := &postgres.CycleRecord{
			Workspace:  key,
			RanAt:      now,
			Candidates: len(candidates),
			Tasks:      taskCount,
		}
		tasks := snapshotTasks(snap.Tasks)
		e.background.Add(1)
		go func() {
			defer e.background.Done()
			actx, cancel := context.WithTimeout(context.Background(), syncTimeout)
			defer cancel()
			if err := e.archive.RecordCycle(actx, rec); err != nil {
				e.logger.Error("archive cycle failed", slog.String("error", err.Error()))
			}
			if err := e.archive.SaveTasks(actx, key, tasks); err != nil {
				e.logger.Error("archive tasks failed", slog.String("error", err.Error()))
			}
		}()
	}

	e.dispatchSync(snap, false)
	return nil
}

// evaluateRouteLocked arms the proactive route when count pace has
// collapsed and the per-workspace cooldown has elapsed.
func (e *Engine) evaluateRouteLocked(sig domain.Signals, now time.Time) {
	if !e.state.AutopilotEnabled {
		return
	}
	if sig.CountTargetTrackedSessions < 2 || sig.TargetHitRate >= 0.6 {
		return
	}
	if e.state.RouteCooldownAt != nil && now.Sub(*e.state.RouteCooldownAt) < routeCooldown {
		return
	}

	e.route = &domain.NotificationRoute{
		Action:       rules.ResolveFocusAction(sig),
		WorkspaceKey: e.key,
		Token:        uuid.New().String(),
	}
	e.state.RouteCooldownAt = &now
	telemetry.EngineRoutesEmitted.Inc()
}

// ConsumeRoute atomically takes the pending proactive route, if any.
// A second call before the next emission returns nil.
func (e *Engine) ConsumeRoute() *domain.NotificationRoute {
	e.mu.Lock()
	defer e.mu.Unlock()
	route := e.route
	e.route = nil
	return route
}

// ─── Task lifecycle ──────────────────────────────────────────────────────────

// MarkDone completes a task and clears any snooze.
func (e *Engine) MarkDone(ctx context.Context, taskID string) error {
	return e.mutateTask(ctx, taskID, func(t *domain.Task, now time.Time) {
		t.Status = domain.StatusDone
		completed := now
		t.CompletedAt = &completed
		t.SnoozedUntil = nil
	})
}

// Reopen returns a completed task to the open set.
func (e *Engine) Reopen(ctx context.Context, taskID string) error {
	return e.mutateTask(ctx, taskID, func(t *domain.Task, now time.Time) {
		t.Status = domain.StatusOpen
		t.CompletedAt = nil
	})
}

// Snooze hides a task from the actionable set until now+hours.
// Non-positive hours clamp to one.
func (e *Engine) Snooze(ctx context.Context, taskID string, hours int) error {
	if hours <= 0 {
		hours = 1
	}
	return e.mutateTask(ctx, taskID, func(t *domain.Task, now time.Time) {
		t.Status = domain.StatusOpen
		until := now.Add(time.Duration(hours) * time.Hour)
		t.SnoozedUntil = &until
	})
}

func (e *Engine) mutateTask(ctx context.Context, taskID string, mutate func(*domain.Task, time.Time)) error {
	e.mu.Lock()
	if e.key == "" {
		e.mu.Unlock()
		return &domain.NoActiveWorkspaceError{}
	}

	now := e.clock()
	found := false
	for i := range e.state.Tasks {
		if e.state.Tasks[i].ID == taskID {
			mutate(&e.state.Tasks[i], now)
			e.state.Tasks[i].UpdatedAt = now
			found = true
			break
		}
	}
	if !found {
		e.mu.Unlock()
		return &domain.TaskNotFoundError{TaskID: taskID}
	}

	e.persistLocked(ctx)
	snap := e.snapshotLocked(now)
	e.mu.Unlock()

	e.dispatchSync(snap, false)
	return nil
}

// ResetTasks drops every task in the active workspace.
func (e *Engine) ResetTasks(ctx context.Context) error {
	e.mu.Lock()
	if e.key == "" {
		e.mu.Unlock()
		return &domain.NoActiveWorkspaceError{}
	}
	e.state.Tasks = nil
	e.persistLocked(ctx)
	snap := e.snapshotLocked(e.clock())
	e.mu.Unlock()

	e.dispatchSync(snap, true)
	return nil
}

// ─── Settings ────────────────────────────────────────────────────────────────

// SetAutopilotEnabled toggles automatic cycle runs.
func (e *Engine) SetAutopilotEnabled(ctx context.Context, enabled bool) error {
	return e.updateSettings(ctx, false, func(s *domain.WorkspaceState) {
		s.AutopilotEnabled = enabled
	})
}

// SetRemindersEnabled toggles notification sync. Enabling triggers a
// forced sync, which lazily requests authorization; a denial flips the
// flag back off.
func (e *Engine) SetRemindersEnabled(ctx context.Context, enabled bool) error {
	return e.updateSettings(ctx, true, func(s *domain.WorkspaceState) {
		s.RemindersEnabled = enabled
	})
}

// SetReminderWindow changes the time-of-day band for notifications.
func (e *Engine) SetReminderWindow(ctx context.Context, window domain.ReminderWindow) error {
	if !window.Valid() {
		return &domain.InvalidWindowError{Window: string(window)}
	}
	return e.updateSettings(ctx, true, func(s *domain.WorkspaceState) {
		s.ReminderWindow = window
	})
}

func (e *Engine) updateSettings(ctx context.Context, resync bool, update func(*domain.WorkspaceState)) error {
	e.mu.Lock()
	if e.key == "" {
		e.mu.Unlock()
		return &domain.NoActiveWorkspaceError{}
	}
	update(&e.state)
	e.persistLocked(ctx)
	snap := e.snapshotLocked(e.clock())
	e.mu.Unlock()

	if resync {
		e.dispatchSync(snap, true)
	}
	return nil
}

// Settings returns the active workspace's toggles.
func (e *Engine) Settings() (autopilot, reminders bool, window domain.ReminderWindow) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.AutopilotEnabled, e.state.RemindersEnabled, e.state.ReminderWindow
}

// ActiveWorkspace returns the active workspace key, or "".
func (e *Engine) ActiveWorkspace() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.key
}

// ─── Reads ───────────────────────────────────────────────────────────────────

// OpenTasks returns the actionable tasks: open, not snoozed into the
// future, ordered by priority, due time, then recency.
func (e *Engine) OpenTasks() []domain.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.clock()

	var out []domain.Task
	for i := range e.state.Tasks {
		if e.state.Tasks[i].Actionable(now) {
			out = append(out, e.state.Tasks[i])
		}
	}
	SortTasks(out)
	return out
}

// SnoozedTasks returns open tasks currently snoozed, soonest to wake first.
func (e *Engine) SnoozedTasks() []domain.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.clock()

	var out []domain.Task
	for i := range e.state.Tasks {
		t := &e.state.Tasks[i]
		if t.Status == domain.StatusOpen && t.Snoozed(now) {
			out = append(out, *t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SnoozedUntil.Before(*out[j].SnoozedUntil)
	})
	return out
}

// CompletedTasks returns done tasks, most recently completed first.
func (e *Engine) CompletedTasks() []domain.Task {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []domain.Task
	for i := range e.state.Tasks {
		if e.state.Tasks[i].Status == domain.StatusDone {
			out = append(out, e.state.Tasks[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return completedRef(&out[i]).After(completedRef(&out[j]))
	})
	return out
}

func completedRef(t *domain.Task) time.Time {
	if t.CompletedAt != nil {
		return *t.CompletedAt
	}
	return t.UpdatedAt
}

// ResyncNotifications forces a notification sync from the current state,
// bypassing the debounce. Used by the periodic resync schedule.
func (e *Engine) ResyncNotifications() {
	e.mu.Lock()
	if e.key == "" {
		e.mu.Unlock()
		return
	}
	snap := e.snapshotLocked(e.clock())
	e.mu.Unlock()

	e.dispatchSync(snap, true)
}

// ─── Internals ───────────────────────────────────────────────────────────────

// persistLocked saves the active state. Persistence failures are logged,
// never surfaced: in-memory state stays authoritative and the next
// mutation retries the save.
func (e *Engine) persistLocked(ctx context.Context) {
	if err := e.repo.Save(ctx, e.key, e.state); err != nil {
		e.logger.Error("persist workspace failed",
			slog.String("workspace", e.key),
			slog.String("error", err.Error()),
		)
	}
}

// snapshotLocked captures what the notification scheduler needs, so the
// sync can run entirely off the engine lock.
func (e *Engine) snapshotLocked(now time.Time) notify.Snapshot {
	var open []domain.Task
	for i := range e.state.Tasks {
		if e.state.Tasks[i].Actionable(now) {
			open = append(open, e.state.Tasks[i])
		}
	}
	SortTasks(open)
	return notify.Snapshot{
		WorkspaceKey: e.key,
		Tasks:        open,
		Window:       e.state.ReminderWindow,
		Enabled:      e.state.RemindersEnabled,
	}
}

// dispatchSync runs a notification sync in the background on its own
// context, so caller cancellation and workspace swaps cannot interrupt
// it. An authorization denial is written back as a settings change.
func (e *Engine) dispatchSync(snap notify.Snapshot, force bool) {
	if e.scheduler == nil {
		return
	}
	e.background.Add(1)
	go func() {
		defer e.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
		defer cancel()
		if !e.scheduler.Sync(ctx, snap, force) {
			e.disableReminders(ctx, snap.WorkspaceKey)
		}
	}()
}

// disableReminders records an authorization denial for the workspace the
// sync ran against, which may no longer be the active one.
func (e *Engine) disableReminders(ctx context.Context, key string) {
	e.mu.Lock()
	if e.key == key {
		e.state.RemindersEnabled = false
		e.persistLocked(ctx)
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	state, err := e.repo.Load(ctx, key)
	if err != nil {
		e.logger.Error("load workspace to disable reminders failed",
			slog.String("workspace", key),
			slog.String("error", err.Error()),
		)
		return
	}
	state.RemindersEnabled = false
	if err := e.repo.Save(ctx, key, state); err != nil {
		e.logger.Error("disable reminders failed",
			slog.String("workspace", key),
			slog.String("error", err.Error()),
		)
	}
}

func snapshotTasks(tasks []domain.Task) []domain.Task {
	out := make([]domain.Task, len(tasks))
	copy(out, tasks)
	return out
}
