package model

import "time"

// MarketType discriminates what kind of market a thread tracks.
type MarketType string

const (
	MarketTypeItem    MarketType = "item"
	MarketTypeAccount MarketType = "account"
)

// Post is the forum post shape the analyzer consumes.
type Post struct {
	ID           string       `json:"id"`
	ThreadID     string       `json:"threadId,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	Body         string       `json:"body"`
	ExtendedData PostExtended `json:"extendedData"`
}

// PostExtended is the slice of a post's extended data this system reads and
// writes. Writes go through the forum API as partial merges, so unknown keys
// set by other features survive.
type PostExtended struct {
	Trade *TradeRecord `json:"trade,omitempty"`
}

// Thread is the forum thread shape the analyzer consumes.
type Thread struct {
	ID           string         `json:"id"`
	Title        string         `json:"title,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	ExtendedData ThreadExtended `json:"extendedData"`
}

// ThreadExtended is the thread-level extended data slice.
type ThreadExtended struct {
	Market *ThreadMarketState `json:"market,omitempty"`
}

// Checkpoint records where the incremental scan last stopped. LastPostID only
// ever advances and must name a post actually observed in a previous run.
// Cursor exists for wire compatibility with checkpoints written by the
// predecessor system; resumption keys off LastPostIDProcessed alone.
type Checkpoint struct {
	Mode                string    `json:"mode,omitempty"`
	Cursor              string    `json:"cursor,omitempty"`
	LastPostIDProcessed string    `json:"lastPostIdProcessed,omitempty"`
	At                  time.Time `json:"at,omitempty"`
}

// Analytics holds the computed market view for a thread.
type Analytics struct {
	Locked             bool      `json:"locked"`
	UpdatedAt          time.Time `json:"updatedAt,omitempty"`
	Snapshot           *Snapshot `json:"snapshot,omitempty"`
	Narrative          string    `json:"narrative,omitempty"`
	NarrativeUpdatedAt time.Time `json:"narrativeUpdatedAt,omitempty"`
	Version            int       `json:"version,omitempty"`
}

// ThreadMarketState is the per-thread aggregate persisted in thread extended
// data. Invariant: Analytics.Locked == (ValidCount < ThresholdValid) unless an
// administrative override flips it elsewhere.
type ThreadMarketState struct {
	MarketEnabled       bool       `json:"marketEnabled"`
	MarketTypeCandidate MarketType `json:"marketTypeCandidate,omitempty"`
	MarketTypeFinal     MarketType `json:"marketTypeFinal,omitempty"`
	WindowDays          int        `json:"windowDays"`
	ThresholdValid      int        `json:"thresholdValid"`
	ValidCount          int        `json:"validCount"`
	LastWindowCutoffAt  time.Time  `json:"lastWindowCutoffAt,omitempty"`
	LastProcessed       Checkpoint `json:"lastProcessed"`
	Analytics           Analytics  `json:"analytics"`
}

// MarketType resolves the effective market type, preferring the final over
// the candidate and defaulting to item.
func (s *ThreadMarketState) MarketType() MarketType {
	if s.MarketTypeFinal != "" {
		return s.MarketTypeFinal
	}
	if s.MarketTypeCandidate != "" {
		return s.MarketTypeCandidate
	}
	return MarketTypeItem
}
