package domain

import "time"

// ReminderWindow is a named time-of-day band controlling which due hours
// are eligible for notification.
type ReminderWindow string

const (
	WindowAllDay     ReminderWindow = "all-day"
	WindowOpenShift  ReminderWindow = "open-shift"
	WindowMidShift   ReminderWindow = "mid-shift"
	WindowCloseShift ReminderWindow = "close-shift"
)

// Bounds returns the inclusive start and exclusive end hour of the window.
func (w ReminderWindow) Bounds() (start, end int) {
	switch w {
	case WindowOpenShift:
		return 6, 11
	case WindowMidShift:
		return 11, 16
	case WindowCloseShift:
		return 16, 22
	default:
		return 6, 22
	}
}

// Contains reports whether the given hour of day falls inside the window.
func (w ReminderWindow) Contains(hour int) bool {
	start, end := w.Bounds()
	return hour >= start && hour < end
}

// BriefHour is the hour of day at which the daily shift-brief summary
// notification fires for this window.
func (w ReminderWindow) BriefHour() int {
	switch w {
	case WindowOpenShift:
		return 7
	case WindowMidShift:
		return 12
	case WindowCloseShift:
		return 17
	default:
		return 9
	}
}

// Valid reports whether w is one of the four known windows.
func (w ReminderWindow) Valid() bool {
	switch w {
	case WindowAllDay, WindowOpenShift, WindowMidShift, WindowCloseShift:
		return true
	}
	return false
}

// WorkspaceState is the persisted automation state of a single workspace.
// It round-trips as one JSON blob through the workspace repository.
type WorkspaceState struct {
	Tasks            []Task         `json:"tasks"`
	AutopilotEnabled bool           `json:"autopilot_enabled"`
	RemindersEnabled bool           `json:"reminders_enabled"`
	ReminderWindow   ReminderWindow `json:"reminder_window"`
	LastRunAt        *time.Time     `json:"last_run_at,omitempty"`
	RouteCooldownAt  *time.Time     `json:"route_cooldown_at,omitempty"`
}

// DefaultWorkspaceState is what a workspace starts from, and what corrupt
// or missing persisted blobs decode to.
func DefaultWorkspaceState() WorkspaceState {
	return WorkspaceState{ReminderWindow: WindowAllDay}
}
