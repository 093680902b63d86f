package domain

// Role is the caller's role in the workspace, provided with each snapshot.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleManager   Role = "manager"
	RoleAssociate Role = "associate"
)

// Elevated reports whether the role may trigger privileged task variants
// such as auto-drafting purchase orders.
func (r Role) Elevated() bool { return r == RoleOwner || r == RoleManager }

// ZoneStale is the per-zone slice of the stale-count breakdown.
type ZoneStale struct {
	Zone       string `json:"zone"`
	StaleCount int    `json:"stale_count"`
}

// Signals is the immutable per-cycle snapshot of workspace health produced
// by the analytics collaborator. The engine never mutates or re-queries it.
type Signals struct {
	Role                       Role        `json:"role"`
	ItemCount                  int         `json:"item_count"`
	StaleItemCount             int         `json:"stale_item_count"`
	StaleByZone                []ZoneStale `json:"stale_by_zone,omitempty"`
	StockoutRiskCount          int         `json:"stockout_risk_count"`
	UrgentReplenishmentCount   int         `json:"urgent_replenishment_count"`
	AutoDraftCandidateCount    int         `json:"auto_draft_candidate_count"`
	AutoDraftSuggestedUnits    int         `json:"auto_draft_suggested_units"`
	MissingLocationCount       int         `json:"missing_location_count"`
	MissingDemandInputCount    int         `json:"missing_demand_input_count"`
	MissingBarcodeCount        int         `json:"missing_barcode_count"`
	PendingLedgerSyncCount     int         `json:"pending_ledger_sync_count"`
	FailedLedgerSyncCount      int         `json:"failed_ledger_sync_count"`
	LowConfidenceItemCount     int         `json:"low_confidence_item_count"`
	CountTargetTrackedSessions int         `json:"count_target_tracked_sessions"`
	TargetHitRate              float64     `json:"target_hit_rate"`
}

// HygieneGapCount is the combined number of items missing the data the
// engine's hygiene rules care about.
func (s Signals) HygieneGapCount() int {
	return s.MissingLocationCount + s.MissingDemandInputCount + s.MissingBarcodeCount
}
