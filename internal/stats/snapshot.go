package stats

import (
	"math"
	"sort"

	"github.com/forumkita/marketpulse/internal/model"
)

// trendMinSellTrades is the floor below which the trend is forced STABLE:
// half-vs-half medians over fewer sell prices are noise.
const trendMinSellTrades = 10

// trendChangeThreshold is the relative median change that flips the trend
// out of STABLE.
const trendChangeThreshold = 0.05

// ComputeItemSnapshot summarizes an item market from the valid trades of the
// current window. Records must be in collection order, newest first: the
// trend comparison treats the first half of the sell sequence as the recent
// half.
func ComputeItemSnapshot(records []model.TradeRecord) *model.ItemMarketSnapshot {
	var sell, buy []float64
	for _, r := range records {
		switch r.Intent {
		case model.IntentSell:
			sell = append(sell, r.Price())
		case model.IntentBuy:
			buy = append(buy, r.Price())
		}
	}

	snap := &model.ItemMarketSnapshot{
		Sell:            priceBand(sell),
		Buy:             priceBand(buy),
		TotalValidCount: len(records),
		Trend:           sellTrend(sell),
	}
	snap.Spread = snap.Sell.Median - snap.Buy.Median
	return snap
}

func priceBand(xs []float64) model.PriceBand {
	return model.PriceBand{
		Median: Median(xs),
		P10:    Percentile(xs, 10),
		P90:    Percentile(xs, 90),
		Count:  len(xs),
	}
}

// sellTrend compares the median of the recent half of the sell sequence
// against the older half. More than ±5% relative change moves the trend off
// STABLE; fewer than 10 sell trades always reads STABLE.
func sellTrend(sell []float64) model.Trend {
	if len(sell) < trendMinSellTrades {
		return model.TrendStable
	}
	half := len(sell) / 2
	recent := Median(sell[:half])
	older := Median(sell[half:])
	if older == 0 {
		return model.TrendStable
	}
	change := (recent - older) / older
	switch {
	case change > trendChangeThreshold:
		return model.TrendRising
	case change < -trendChangeThreshold:
		return model.TrendDeclining
	default:
		return model.TrendStable
	}
}

// ComputeAccountSnapshot summarizes an account market: quartile value bands
// over the current window's prices, buy/sell demand pressure, and the most
// frequent account features. Band boundaries are re-derived from this run's
// quartiles every time, so membership can shift between runs.
func ComputeAccountSnapshot(records []model.TradeRecord) *model.AccountMarketSnapshot {
	prices := make([]float64, 0, len(records))
	for _, r := range records {
		prices = append(prices, r.Price())
	}

	q1 := Percentile(prices, 25)
	q2 := Percentile(prices, 50)
	q3 := Percentile(prices, 75)

	var budget, mid, high, premium []float64
	var sells, buys int
	for _, r := range records {
		p := r.Price()
		switch {
		case p <= q1:
			budget = append(budget, p)
		case p <= q2:
			mid = append(mid, p)
		case p <= q3:
			high = append(high, p)
		default:
			premium = append(premium, p)
		}
		switch r.Intent {
		case model.IntentSell:
			sells++
		case model.IntentBuy:
			buys++
		}
	}

	pressure := 0.0
	if sells > 0 {
		pressure = float64(buys) / float64(sells)
	}

	return &model.AccountMarketSnapshot{
		Budget:          valueBand(budget, 0, &q1),
		Mid:             valueBand(mid, q1, &q2),
		High:            valueBand(high, q2, &q3),
		Premium:         valueBand(premium, q3, nil),
		DemandPressure:  pressure,
		TopValueDrivers: topValueDrivers(records, 3),
		TotalValidCount: len(records),
	}
}

func valueBand(xs []float64, low float64, high *float64) model.ValueBand {
	return model.ValueBand{
		Median: Median(xs),
		Count:  len(xs),
		Low:    low,
		High:   high,
	}
}

// topValueDrivers tallies boolean-true feature keys across all trades and
// returns the limit most frequent names. Equal counts are broken
// alphabetically so repeated runs over the same window agree.
func topValueDrivers(records []model.TradeRecord, limit int) []string {
	counts := make(map[string]int)
	for _, r := range records {
		for k, v := range r.AccountFeatures {
			if v {
				counts[k]++
			}
		}
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > limit {
		keys = keys[:limit]
	}
	return keys
}

// Compute builds the tagged snapshot for the given market type.
func Compute(marketType model.MarketType, records []model.TradeRecord) *model.Snapshot {
	if marketType == model.MarketTypeAccount {
		return model.NewAccountSnapshot(ComputeAccountSnapshot(records))
	}
	return model.NewItemSnapshot(ComputeItemSnapshot(records))
}

// relativeChange returns |cur-prev|/prev, or +Inf when prev is 0 and cur is
// not (forcing a refresh rather than dividing by zero).
func relativeChange(prev, cur float64) float64 {
	if prev == 0 {
		if cur == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return math.Abs(cur-prev) / prev
}
