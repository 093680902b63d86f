package domain

import (
	"time"
)

// Priority orders tasks by urgency.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityNormal   Priority = "NORMAL"
)

// Rank returns the sort rank of the priority: lower sorts first.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	default:
		return 2
	}
}

// Category groups tasks by the operational area they belong to.
type Category string

const (
	CategoryCounting      Category = "counting"
	CategoryReplenishment Category = "replenishment"
	CategoryShrink        Category = "shrink"
	CategoryDataQuality   Category = "data-quality"
	CategoryPlanning      Category = "planning"
	CategoryIntegrations  Category = "integrations"
)

// Action is the navigation target a task (or notification) points at.
// The set is closed: handlers switch exhaustively over these values.
type Action string

const (
	ActionOpenInbox          Action = "open-inbox"
	ActionOpenZoneMission    Action = "open-zone-mission"
	ActionOpenReplenishment  Action = "open-replenishment"
	ActionCreateDraftPO      Action = "create-draft-po"
	ActionOpenKPIDashboard   Action = "open-kpi-dashboard"
	ActionOpenExceptionFeed  Action = "open-exception-feed"
	ActionOpenDailyBrief     Action = "open-daily-brief"
	ActionOpenGuidedHelp     Action = "open-guided-help"
	ActionOpenIntegrationHub Action = "open-integration-hub"
	ActionOpenTrustCenter    Action = "open-trust-center"
)

// Status represents the lifecycle states of a task.
type Status string

const (
	StatusOpen Status = "OPEN"
	StatusDone Status = "DONE"
)

// Task is the unit of work the automation engine tracks for a workspace.
type Task struct {
	ID              string     `json:"id"`
	RuleID          string     `json:"rule_id"`
	Title           string     `json:"title"`
	Detail          string     `json:"detail"`
	Action          Action     `json:"action"`
	Priority        Priority   `json:"priority"`
	Category        Category   `json:"category"`
	EstimateMinutes int        `json:"estimate_minutes"`
	DueAt           time.Time  `json:"due_at"`
	Zone            string     `json:"zone,omitempty"`
	Status          Status     `json:"status"`
	SnoozedUntil    *time.Time `json:"snoozed_until,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Snoozed reports whether the task is snoozed past now.
func (t *Task) Snoozed(now time.Time) bool {
	return t.SnoozedUntil != nil && t.SnoozedUntil.After(now)
}

// Actionable reports whether the task is open and not currently snoozed.
func (t *Task) Actionable(now time.Time) bool {
	return t.Status == StatusOpen && !t.Snoozed(now)
}

// DayKey returns the calendar-day component of task IDs, e.g. "20260114".
func DayKey(t time.Time) string { return t.Format("20060102") }

// TaskID derives the stable task identifier from a calendar day and rule.
// Re-running the same rule on the same day always reproduces the same ID.
func TaskID(dayKey, ruleID string) string { return dayKey + "-" + ruleID }

// Candidate is a proposed task emitted by the rule set, before it is
// reconciled against the persisted task collection.
type Candidate struct {
	ID              string
	RuleID          string
	Title           string
	Detail          string
	Action          Action
	Priority        Priority
	Category        Category
	EstimateMinutes int
	DueAt           time.Time
	Zone            string
}

// NewTask materializes the candidate as a brand-new open task.
func (c Candidate) NewTask(now time.Time) Task {
	return Task{
		ID:              c.ID,
		RuleID:          c.RuleID,
		Title:           c.Title,
		Detail:          c.Detail,
		Action:          c.Action,
		Priority:        c.Priority,
		Category:        c.Category,
		EstimateMinutes: c.EstimateMinutes,
		DueAt:           c.DueAt,
		Zone:            c.Zone,
		Status:          StatusOpen,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
