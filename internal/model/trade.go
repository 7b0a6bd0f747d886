package model

import "time"

// Intent is the declared direction of a trade offer.
type Intent string

const (
	IntentSell  Intent = "WTS"
	IntentBuy   Intent = "WTB"
	IntentTrade Intent = "WTT"
)

// TradeStatus tracks the lifecycle of a trade offer.
type TradeStatus string

const (
	TradeStatusActive    TradeStatus = "ACTIVE"
	TradeStatusReserved  TradeStatus = "RESERVED"
	TradeStatusSold      TradeStatus = "SOLD"
	TradeStatusFulfilled TradeStatus = "FULFILLED"
	TradeStatusExpired   TradeStatus = "EXPIRED"
)

// Currency tags a normalized price.
type Currency string

const (
	CurrencyIDR     Currency = "IDR"
	CurrencyUSD     Currency = "USD"
	CurrencyUnknown Currency = "UNKNOWN"
)

// TradeRecord is the classification result attached to a post's extended
// data. Records are always replaced wholesale by a higher-confidence pass,
// never merged field by field.
type TradeRecord struct {
	IsTrade         bool            `json:"isTrade"`
	Intent          Intent          `json:"intent,omitempty"`
	Status          TradeStatus     `json:"status,omitempty"`
	DisplayPrice    string          `json:"displayPrice,omitempty"`
	NormalizedPrice *float64        `json:"normalizedPrice"`
	Currency        Currency        `json:"currency,omitempty"`
	Unit            string          `json:"unit,omitempty"`
	ParseConfidence float64         `json:"parseConfidence"`
	ParserVersion   string          `json:"parserVersion,omitempty"`
	ParsedAt        time.Time       `json:"parsedAt"`
	AccountFeatures map[string]bool `json:"accountFeatures,omitempty"`
}

// IsValid reports whether the record counts toward a thread's rolling-window
// trade statistics: a trade, still active, with a normalized price.
func (r *TradeRecord) IsValid() bool {
	return r != nil && r.IsTrade && r.Status == TradeStatusActive && r.NormalizedPrice != nil
}

// Price returns the normalized price, or 0 when none was extracted.
func (r *TradeRecord) Price() float64 {
	if r == nil || r.NormalizedPrice == nil {
		return 0
	}
	return *r.NormalizedPrice
}

// Float64Ptr is a convenience for building optional prices.
func Float64Ptr(v float64) *float64 { return &v }
