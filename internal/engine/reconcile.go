package engine

import (
	"sort"
	"time"

	"github.com/reginaldwlsnnn87-max/inventory-app-sub003/internal/domain"
)

// retentionWindow bounds task history growth under continuous re-runs.
const retentionWindow = 30 * 24 * time.Hour

// Reconcile merges freshly built candidates into the persisted task set.
//
// A candidate whose ID already exists refreshes the descriptive and
// scheduling fields but never touches user-driven lifecycle state
// (status, snooze, completion). Unmatched candidates become new open
// tasks. Existing tasks the rules no longer produce are kept while they
// remain inside the retention window.
func Reconcile(candidates []domain.Candidate, existing []domain.Task, now time.Time) []domain.Task {
	byID := make(map[string]*domain.Task, len(existing))
	for i := range existing {
		byID[existing[i].ID] = &existing[i]
	}

	out := make([]domain.Task, 0, len(candidates)+len(existing))
	fromCandidate := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		task := c.NewTask(now)
		if prev, ok := byID[c.ID]; ok {
			task.CreatedAt = prev.CreatedAt
			task.Status = prev.Status
			task.SnoozedUntil = prev.SnoozedUntil
			task.CompletedAt = prev.CompletedAt
		}
		out = append(out, task)
		fromCandidate[c.ID] = true
	}

	for i := range existing {
		task := existing[i]
		if fromCandidate[task.ID] {
			continue
		}
		if retained(&task, now) {
			out = append(out, task)
		}
	}

	SortTasks(out)
	return out
}

// retained reports whether a task the rules no longer produce survives
// the retention sweep.
func retained(t *domain.Task, now time.Time) bool {
	switch t.Status {
	case domain.StatusOpen:
		return now.Sub(t.CreatedAt) <= retentionWindow
	case domain.StatusDone:
		completed := t.UpdatedAt
		if t.CompletedAt != nil {
			completed = *t.CompletedAt
		}
		return now.Sub(completed) <= retentionWindow
	}
	return false
}

// SortTasks orders tasks by priority rank, then due time, then most
// recently updated, with ID as a deterministic final tiebreak.
func SortTasks(tasks []domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := &tasks[i], &tasks[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() < b.Priority.Rank()
		}
		if !a.DueAt.Equal(b.DueAt) {
			return a.DueAt.Before(b.DueAt)
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID < b.ID
	})
}
