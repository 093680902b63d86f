package domain

// NotificationRoute is a one-shot navigation instruction for the UI layer,
// emitted by the proactive router and consumed at most once.
type NotificationRoute struct {
	Action       Action `json:"action"`
	WorkspaceKey string `json:"workspace_key"`
	TaskID       string `json:"task_id,omitempty"`
	Summary      bool   `json:"summary"`
	Token        string `json:"token"`
}
