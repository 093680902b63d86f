package rules

import "github.com/reginaldwlsnnn87-max/inventory-app-sub003/internal/domain"

// ResolveFocusAction picks where to send the user when a rule needs a
// "go fix the most pressing thing" target. Replenishment wins whenever
// supply pressure is high; otherwise the counting floor does.
//
// Shared by the count-pace rule and the notification scheduler so both
// surfaces always agree on the destination.
func ResolveFocusAction(sig domain.Signals) domain.Action {
	if sig.UrgentReplenishmentCount >= 2 || sig.StockoutRiskCount >= max(2, sig.ItemCount/6) {
		return domain.ActionOpenReplenishment
	}
	return domain.ActionOpenZoneMission
}
