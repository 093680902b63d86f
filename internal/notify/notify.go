// Package notify projects the open task set onto a time-windowed local
// notification schedule and syncs it to the external notification service.
package notify

import (
	"context"
	"time"

	"github.com/reginaldwlsnnn87-max/inventory-app-sub003/internal/domain"
)

// Request describes one notification to be fired at a calendar time.
type Request struct {
	Identifier   string        `json:"identifier"`
	FireAt       time.Time     `json:"fire_at"`
	Action       domain.Action `json:"action"`
	TaskID       string        `json:"task_id,omitempty"`
	WorkspaceKey string        `json:"workspace_key,omitempty"`
	Summary      bool          `json:"summary"`
}

// Service abstracts the external notification collaborator. All calls are
// made off the engine's owner lock; implementations may be slow or fail.
type Service interface {
	// RequestAuthorization reports whether notification delivery is
	// permitted. Called lazily before the first schedule attempt.
	RequestAuthorization(ctx context.Context) (bool, error)
	// Pending returns the identifiers of every not-yet-fired request,
	// including ones owned by other subsystems.
	Pending(ctx context.Context) ([]string, error)
	// Cancel removes the given pending requests.
	Cancel(ctx context.Context, identifiers []string) error
	// Schedule registers a one-shot calendar-time notification.
	Schedule(ctx context.Context, req Request) error
}

// identifierNamespace prefixes every identifier this engine owns, so
// cancellation sweeps never touch other subsystems' notifications.
const identifierNamespace = "autopilot."

// IdentifierPrefix is the reserved identifier prefix for one workspace.
func IdentifierPrefix(workspaceKey string) string {
	return identifierNamespace + workspaceKey + "."
}
