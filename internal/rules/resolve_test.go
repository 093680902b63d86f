package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reginaldwlsnnn87-max/inventory-app-sub003/internal/domain"
)

func TestResolveFocusAction(t *testing.T) {
	tests := []struct {
		name string
		sig  domain.Signals
		want domain.Action
	}{
		{
			name: "quiet workspace defaults to zone mission",
			sig:  domain.Signals{ItemCount: 30},
			want: domain.ActionOpenZoneMission,
		},
		{
			name: "urgent replenishment pressure",
			sig:  domain.Signals{ItemCount: 30, UrgentReplenishmentCount: 2},
			want: domain.ActionOpenReplenishment,
		},
		{
			name: "stockout risk at the floor of 2",
			sig:  domain.Signals{ItemCount: 6, StockoutRiskCount: 2},
			want: domain.ActionOpenReplenishment,
		},
		{
			name: "stockout risk scales with item count",
			sig:  domain.Signals{ItemCount: 60, StockoutRiskCount: 9}, // threshold max(2, 10) = 10
			want: domain.ActionOpenZoneMission,
		},
		{
			name: "stockout risk meets scaled threshold",
			sig:  domain.Signals{ItemCount: 60, StockoutRiskCount: 10},
			want: domain.ActionOpenReplenishment,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveFocusAction(tt.sig))
		})
	}
}
