package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/forumkita/marketpulse/internal/model"
)

func TestFormatThreads(t *testing.T) {
	threads := []model.Thread{
		{
			ID: "thread-42",
			ExtendedData: model.ThreadExtended{Market: &model.ThreadMarketState{
				MarketEnabled:   true,
				MarketTypeFinal: model.MarketTypeAccount,
				ValidCount:      7,
				ThresholdValid:  10,
				Analytics:       model.Analytics{Locked: true},
				LastProcessed: model.Checkpoint{
					At: time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC),
				},
			}},
		},
		{
			ID: "thread-43",
			ExtendedData: model.ThreadExtended{Market: &model.ThreadMarketState{
				MarketEnabled: true,
			}},
		},
	}

	var sb strings.Builder
	formatThreads(&sb, threads)
	out := sb.String()

	assert.Contains(t, out, "thread-42")
	assert.Contains(t, out, "account")
	assert.Contains(t, out, "2025-06-01 09:30")
	// A thread never scanned shows a placeholder, not a zero time.
	assert.Contains(t, out, "-")
	assert.Contains(t, out, "item", "unset market type resolves to item")
}
