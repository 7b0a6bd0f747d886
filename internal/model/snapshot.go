package model

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Trend classifies the direction of recent sell prices.
type Trend string

const (
	TrendRising    Trend = "RISING"
	TrendStable    Trend = "STABLE"
	TrendDeclining Trend = "DECLINING"
)

// PriceBand summarizes one side of an item market.
type PriceBand struct {
	Median float64 `json:"median"`
	P10    float64 `json:"p10"`
	P90    float64 `json:"p90"`
	Count  int     `json:"count"`
}

// ItemMarketSnapshot is the statistical summary for an item-market thread.
type ItemMarketSnapshot struct {
	Sell            PriceBand `json:"sell"`
	Buy             PriceBand `json:"buy"`
	TotalValidCount int       `json:"totalValidCount"`
	Spread          float64   `json:"spread"`
	Trend           Trend     `json:"trend"`
}

// ValueBand summarizes one quartile bucket of an account market. Range is
// (low, high]; the premium band is unbounded above and its High serializes
// as null.
type ValueBand struct {
	Median float64  `json:"median"`
	Count  int      `json:"count"`
	Low    float64  `json:"low"`
	High   *float64 `json:"high"`
}

// AccountMarketSnapshot is the statistical summary for an account-market
// thread. Band boundaries come from the current run's quartiles, so a trade
// can change bands between runs without changing price.
type AccountMarketSnapshot struct {
	Budget          ValueBand `json:"budget"`
	Mid             ValueBand `json:"mid"`
	High            ValueBand `json:"high"`
	Premium         ValueBand `json:"premium"`
	DemandPressure  float64   `json:"demandPressure"`
	TopValueDrivers []string  `json:"topValueDrivers"`
	TotalValidCount int       `json:"totalValidCount"`
}

// Snapshot is a tagged union of the two market snapshot shapes. Exactly one
// of Item or Account is set, matching Kind.
type Snapshot struct {
	Kind    MarketType             `json:"kind"`
	Item    *ItemMarketSnapshot    `json:"item,omitempty"`
	Account *AccountMarketSnapshot `json:"account,omitempty"`
}

// NewItemSnapshot wraps an item snapshot in the union.
func NewItemSnapshot(s *ItemMarketSnapshot) *Snapshot {
	return &Snapshot{Kind: MarketTypeItem, Item: s}
}

// NewAccountSnapshot wraps an account snapshot in the union.
func NewAccountSnapshot(s *AccountMarketSnapshot) *Snapshot {
	return &Snapshot{Kind: MarketTypeAccount, Account: s}
}

// TotalValidCount returns the window trade count regardless of kind.
func (s *Snapshot) TotalValidCount() int {
	switch {
	case s == nil:
		return 0
	case s.Item != nil:
		return s.Item.TotalValidCount
	case s.Account != nil:
		return s.Account.TotalValidCount
	}
	return 0
}

// UnmarshalJSON accepts both the tagged form and the legacy untagged form
// written by the predecessor system, which discriminated by the presence of a
// "sell" or "bands" key.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	type tagged Snapshot
	var t tagged
	if err := json.Unmarshal(data, &t); err != nil {
		return eris.Wrap(err, "model: unmarshal snapshot")
	}
	if t.Kind != "" {
		*s = Snapshot(t)
		return nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return eris.Wrap(err, "model: probe legacy snapshot")
	}
	if _, ok := probe["sell"]; ok {
		var item ItemMarketSnapshot
		if err := json.Unmarshal(data, &item); err != nil {
			return eris.Wrap(err, "model: unmarshal legacy item snapshot")
		}
		*s = Snapshot{Kind: MarketTypeItem, Item: &item}
		return nil
	}
	if raw, ok := probe["bands"]; ok {
		var acct AccountMarketSnapshot
		if err := json.Unmarshal(data, &acct); err != nil {
			return eris.Wrap(err, "model: unmarshal legacy account snapshot")
		}
		var bands struct {
			Budget  ValueBand `json:"budget"`
			Mid     ValueBand `json:"mid"`
			High    ValueBand `json:"high"`
			Premium ValueBand `json:"premium"`
		}
		if err := json.Unmarshal(raw, &bands); err != nil {
			return eris.Wrap(err, "model: unmarshal legacy account bands")
		}
		acct.Budget, acct.Mid, acct.High, acct.Premium = bands.Budget, bands.Mid, bands.High, bands.Premium
		*s = Snapshot{Kind: MarketTypeAccount, Account: &acct}
		return nil
	}
	return eris.New("model: snapshot has neither kind tag nor legacy shape")
}
