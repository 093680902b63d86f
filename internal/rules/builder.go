// Package rules turns a workspace health snapshot into proposed tasks.
// Build is pure: the same signals and clock always produce the same
// candidate set, which is what makes cycle re-runs idempotent.
package rules

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/reginaldwlsnnn87-max/inventory-app-sub003/internal/domain"
)

// Rule identifiers. Task IDs are derived from these plus the calendar day,
// so renaming one orphans that rule's open tasks.
const (
	RuleUrgentReplenishment = "urgent-replenishment"
	RuleAutoDraftPO         = "auto-draft-po"
	RuleCountPace           = "count-pace"
	RuleStaleCount          = "stale-count"
	RuleStaleCountZone      = "stale-count-zone" // suffixed with a zone token
	RuleDataHygiene         = "data-hygiene"
	RuleSyncBacklog         = "sync-backlog"
	RuleConfidence          = "confidence-recovery"
	RuleShrinkWatch         = "shrink-watch"
	RuleKPIReview           = "kpi-review"
	RuleGuidedRefresh       = "guided-refresh"
)

const maxZoneTasks = 3

// Build evaluates every rule guard against the snapshot and returns the
// full candidate set for this cycle. An empty workspace produces nothing.
func Build(sig domain.Signals, now time.Time) []domain.Candidate {
	if sig.ItemCount == 0 {
		return nil
	}

	b := builder{sig: sig, now: now, day: domain.DayKey(now)}

	var out []domain.Candidate
	out = append(out, b.replenishment()...)
	out = append(out, b.countPace()...)
	out = append(out, b.staleCounts()...)
	out = append(out, b.dataHygiene()...)
	out = append(out, b.syncBacklog()...)
	out = append(out, b.confidence()...)
	out = append(out, b.shrinkWatch()...)
	out = append(out, b.roleDaily()...)
	return out
}

type builder struct {
	sig domain.Signals
	now time.Time
	day string
}

// candidate fills in the derived fields every rule shares: the stable ID
// and a due time on the current calendar day at the rule's hour.
func (b builder) candidate(ruleID string, hour int, c domain.Candidate) domain.Candidate {
	c.RuleID = ruleID
	c.ID = domain.TaskID(b.day, ruleID)
	c.DueAt = time.Date(
		b.now.Year(), b.now.Month(), b.now.Day(),
		hour, 0, 0, 0, b.now.Location(),
	)
	return c
}

func (b builder) replenishment() []domain.Candidate {
	sig := b.sig
	if sig.UrgentReplenishmentCount < 2 {
		return nil
	}

	// Elevated callers with draftable candidates get the auto-draft variant
	// instead of the generic one. Exactly one of the two fires.
	if sig.Role.Elevated() && sig.AutoDraftCandidateCount > 0 && sig.AutoDraftSuggestedUnits > 0 {
		return []domain.Candidate{b.candidate(RuleAutoDraftPO, 9, domain.Candidate{
			Title: "Generate draft purchase order",
			Detail: fmt.Sprintf("%d items qualify for auto-draft (%d suggested units). Review and send the draft PO.",
				sig.AutoDraftCandidateCount, sig.AutoDraftSuggestedUnits),
			Action:          domain.ActionCreateDraftPO,
			Priority:        domain.PriorityCritical,
			Category:        domain.CategoryReplenishment,
			EstimateMinutes: 10,
		})}
	}

	return []domain.Candidate{b.candidate(RuleUrgentReplenishment, 9, domain.Candidate{
		Title: "Build replenishment draft",
		Detail: fmt.Sprintf("%d items need urgent replenishment. Put a draft order together before the shelf gaps widen.",
			sig.UrgentReplenishmentCount),
		Action:          domain.ActionOpenReplenishment,
		Priority:        domain.PriorityCritical,
		Category:        domain.CategoryReplenishment,
		EstimateMinutes: 15,
	})}
}

func (b builder) countPace() []domain.Candidate {
	sig := b.sig
	if sig.CountTargetTrackedSessions < 2 || sig.TargetHitRate >= 0.6 {
		return nil
	}

	priority := domain.PriorityHigh
	if sig.TargetHitRate < 0.4 {
		priority = domain.PriorityCritical
	}

	return []domain.Candidate{b.candidate(RuleCountPace, 10, domain.Candidate{
		Title: "Recover count pace",
		Detail: fmt.Sprintf("Count targets were hit in %.0f%% of the last %d tracked sessions. Refocus the team where it matters most.",
			sig.TargetHitRate*100, sig.CountTargetTrackedSessions),
		Action:          ResolveFocusAction(sig),
		Priority:        priority,
		Category:        domain.CategoryCounting,
		EstimateMinutes: 12,
	})}
}

func (b builder) staleCounts() []domain.Candidate {
	sig := b.sig
	threshold := max(4, sig.ItemCount/4)
	if sig.StaleItemCount < threshold {
		return nil
	}

	if len(sig.StaleByZone) == 0 {
		return []domain.Candidate{b.candidate(RuleStaleCount, 11, domain.Candidate{
			Title: "Refresh stale counts",
			Detail: fmt.Sprintf("%d of %d items have stale counts. Schedule a recount sweep.",
				sig.StaleItemCount, sig.ItemCount),
			Action:          domain.ActionOpenZoneMission,
			Priority:        domain.PriorityHigh,
			Category:        domain.CategoryCounting,
			EstimateMinutes: clampEstimate(sig.StaleItemCount * 2),
		})}
	}

	zones := make([]domain.ZoneStale, len(sig.StaleByZone))
	copy(zones, sig.StaleByZone)
	sort.Slice(zones, func(i, j int) bool {
		if zones[i].StaleCount != zones[j].StaleCount {
			return zones[i].StaleCount > zones[j].StaleCount
		}
		return zones[i].Zone < zones[j].Zone
	})
	if len(zones) > maxZoneTasks {
		zones = zones[:maxZoneTasks]
	}

	out := make([]domain.Candidate, 0, len(zones))
	for i, z := range zones {
		// The worst zone is always critical; so is any zone carrying at
		// least half the stale threshold on its own.
		priority := domain.PriorityHigh
		if i == 0 || z.StaleCount*2 >= threshold {
			priority = domain.PriorityCritical
		}
		ruleID := RuleStaleCountZone + "-" + zoneToken(z.Zone)
		out = append(out, b.candidate(ruleID, 10+i, domain.Candidate{
			Title: fmt.Sprintf("Recount zone %s", z.Zone),
			Detail: fmt.Sprintf("%d stale counts in zone %s. Run a zone mission to bring them current.",
				z.StaleCount, z.Zone),
			Action:          domain.ActionOpenZoneMission,
			Priority:        priority,
			Category:        domain.CategoryCounting,
			EstimateMinutes: clampEstimate(z.StaleCount * 2),
			Zone:            z.Zone,
		}))
	}
	return out
}

func (b builder) dataHygiene() []domain.Candidate {
	sig := b.sig
	gaps := sig.HygieneGapCount()
	if gaps < max(5, sig.ItemCount/3) {
		return nil
	}

	return []domain.Candidate{b.candidate(RuleDataHygiene, 14, domain.Candidate{
		Title: "Run a data hygiene sweep",
		Detail: fmt.Sprintf("%d items are missing a location, demand input, or barcode. Clean them up from the inbox.",
			gaps),
		Action:          domain.ActionOpenInbox,
		Priority:        domain.PriorityHigh,
		Category:        domain.CategoryDataQuality,
		EstimateMinutes: 20,
	})}
}

func (b builder) syncBacklog() []domain.Candidate {
	sig := b.sig
	if sig.FailedLedgerSyncCount == 0 && sig.PendingLedgerSyncCount < 20 {
		return nil
	}

	priority := domain.PriorityHigh
	detail := fmt.Sprintf("%d ledger syncs are pending. Check the integration hub before the backlog grows.",
		sig.PendingLedgerSyncCount)
	if sig.FailedLedgerSyncCount > 0 {
		priority = domain.PriorityCritical
		detail = fmt.Sprintf("%d ledger syncs failed and %d are pending. Resolve the failures in the integration hub.",
			sig.FailedLedgerSyncCount, sig.PendingLedgerSyncCount)
	}

	return []domain.Candidate{b.candidate(RuleSyncBacklog, 10, domain.Candidate{
		Title:           "Clear ledger sync backlog",
		Detail:          detail,
		Action:          domain.ActionOpenIntegrationHub,
		Priority:        priority,
		Category:        domain.CategoryIntegrations,
		EstimateMinutes: 10,
	})}
}

func (b builder) confidence() []domain.Candidate {
	sig := b.sig
	if sig.LowConfidenceItemCount < max(2, sig.ItemCount/5) {
		return nil
	}

	return []domain.Candidate{b.candidate(RuleConfidence, 13, domain.Candidate{
		Title: "Restore count confidence",
		Detail: fmt.Sprintf("%d items have low count confidence. Spot-check them to restore trust in the numbers.",
			sig.LowConfidenceItemCount),
		Action:          domain.ActionOpenTrustCenter,
		Priority:        domain.PriorityHigh,
		Category:        domain.CategoryCounting,
		EstimateMinutes: 15,
	})}
}

func (b builder) shrinkWatch() []domain.Candidate {
	sig := b.sig
	if sig.StockoutRiskCount < 2 {
		return nil
	}

	return []domain.Candidate{b.candidate(RuleShrinkWatch, 12, domain.Candidate{
		Title: "Review stockout exceptions",
		Detail: fmt.Sprintf("%d items are at stockout risk. Review the exception feed for possible shrink.",
			sig.StockoutRiskCount),
		Action:          domain.ActionOpenExceptionFeed,
		Priority:        domain.PriorityHigh,
		Category:        domain.CategoryShrink,
		EstimateMinutes: 10,
	})}
}

// roleDaily always fires for a non-empty workspace: owners and managers
// get the KPI review, everyone else the guided refresh.
func (b builder) roleDaily() []domain.Candidate {
	if b.sig.Role.Elevated() {
		return []domain.Candidate{b.candidate(RuleKPIReview, 16, domain.Candidate{
			Title:           "Review today's KPIs",
			Detail:          "Skim the KPI dashboard and flag anything trending the wrong way.",
			Action:          domain.ActionOpenKPIDashboard,
			Priority:        domain.PriorityNormal,
			Category:        domain.CategoryPlanning,
			EstimateMinutes: 5,
		})}
	}
	return []domain.Candidate{b.candidate(RuleGuidedRefresh, 15, domain.Candidate{
		Title:           "Run a guided refresh",
		Detail:          "Walk through the guided refresh to keep your day on track.",
		Action:          domain.ActionOpenGuidedHelp,
		Priority:        domain.PriorityNormal,
		Category:        domain.CategoryPlanning,
		EstimateMinutes: 10,
	})}
}

// clampEstimate bounds a stale-recount estimate to a realistic range.
func clampEstimate(minutes int) int {
	return min(max(minutes, 6), 18)
}

// zoneToken normalizes a zone label into a rule-ID-safe token:
// lowercase, alphanumeric runs joined by single dashes.
func zoneToken(zone string) string {
	var sb strings.Builder
	lastDash := true // suppress a leading dash
	for _, r := range strings.ToLower(zone) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				sb.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(sb.String(), "-")
}
