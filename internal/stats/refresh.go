package stats

import (
	"go.uber.org/zap"

	"github.com/forumkita/marketpulse/internal/model"
)

// RefreshConfig holds the relative-change thresholds that gate narrative
// regeneration. These are heuristic business constants, kept configurable.
type RefreshConfig struct {
	// ItemThreshold is the relative sell-median change above which an item
	// market narrative is refreshed. Default 0.10.
	ItemThreshold float64

	// AccountThreshold is the relative valid-count change above which an
	// account market narrative is refreshed. Default 0.20.
	AccountThreshold float64
}

// DefaultRefreshConfig returns the standard refresh thresholds.
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{ItemThreshold: 0.10, AccountThreshold: 0.20}
}

// NeedsRefresh decides whether the AI narrative must be regenerated for the
// move from prev to cur. No previous snapshot always refreshes. A market-type
// flip between snapshots also refreshes: the old narrative describes the
// wrong market shape.
func NeedsRefresh(prev, cur *model.Snapshot, cfg RefreshConfig) bool {
	if cur == nil {
		return false
	}
	if prev == nil {
		return true
	}
	if prev.Kind != cur.Kind {
		zap.L().Warn("stats: snapshot kind changed between runs, forcing narrative refresh",
			zap.String("prev_kind", string(prev.Kind)),
			zap.String("cur_kind", string(cur.Kind)),
		)
		return true
	}

	switch cur.Kind {
	case model.MarketTypeItem:
		if prev.Item == nil || cur.Item == nil {
			return true
		}
		return relativeChange(prev.Item.Sell.Median, cur.Item.Sell.Median) > cfg.ItemThreshold
	case model.MarketTypeAccount:
		if prev.Account == nil || cur.Account == nil {
			return true
		}
		prevCount := float64(prev.Account.TotalValidCount)
		curCount := float64(cur.Account.TotalValidCount)
		return relativeChange(prevCount, curCount) > cfg.AccountThreshold
	}
	return false
}
