package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/forumkita/marketpulse/internal/model"
)

func itemSnap(sellMedian float64) *model.Snapshot {
	return model.NewItemSnapshot(&model.ItemMarketSnapshot{
		Sell: model.PriceBand{Median: sellMedian},
	})
}

func accountSnap(total int) *model.Snapshot {
	return model.NewAccountSnapshot(&model.AccountMarketSnapshot{
		TotalValidCount: total,
	})
}

func TestNeedsRefresh_Item(t *testing.T) {
	cfg := DefaultRefreshConfig()

	tests := []struct {
		name string
		prev float64
		cur  float64
		want bool
	}{
		{"15 percent move refreshes", 100, 115, true},
		{"5 percent move does not", 100, 105, false},
		{"exactly 10 percent does not", 100, 110, false},
		{"downward move counts too", 100, 85, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NeedsRefresh(itemSnap(tt.prev), itemSnap(tt.cur), cfg)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNeedsRefresh_Account(t *testing.T) {
	cfg := DefaultRefreshConfig()

	assert.True(t, NeedsRefresh(accountSnap(10), accountSnap(13), cfg))  // 30% > 20%
	assert.False(t, NeedsRefresh(accountSnap(10), accountSnap(12), cfg)) // 20% not >
}

func TestNeedsRefresh_EdgeCases(t *testing.T) {
	cfg := DefaultRefreshConfig()

	// No previous snapshot always refreshes.
	assert.True(t, NeedsRefresh(nil, itemSnap(100), cfg))

	// No current snapshot never refreshes.
	assert.False(t, NeedsRefresh(itemSnap(100), nil, cfg))

	// Zero previous median must not divide by zero.
	assert.True(t, NeedsRefresh(itemSnap(0), itemSnap(100), cfg))

	// Market type flip refreshes.
	assert.True(t, NeedsRefresh(itemSnap(100), accountSnap(10), cfg))
}
