package domain

import "fmt"

// TaskNotFoundError is returned when a task ID does not exist in the
// active workspace.
type TaskNotFoundError struct {
	TaskID string
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("task not found: %s", e.TaskID)
}

// NoActiveWorkspaceError is returned when an operation requires an active
// workspace but none has been activated yet.
type NoActiveWorkspaceError struct{}

func (e *NoActiveWorkspaceError) Error() string {
	return "no active workspace"
}

// InvalidWindowError is returned when a caller supplies an unknown
// reminder window name.
type InvalidWindowError struct {
	Window string
}

func (e *InvalidWindowError) Error() string {
	return fmt.Sprintf("invalid reminder window %q", e.Window)
}
