package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/forumkita/marketpulse/internal/model"
)

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "12345678", truncateID("123456789abcdef"))
	assert.Equal(t, "short", truncateID("short"))
}

func TestFormatRunsList(t *testing.T) {
	started := time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)
	runs := []model.RunReport{
		{
			ID:         "abcdef1234567890",
			StartedAt:  started,
			FinishedAt: started.Add(42 * time.Second),
			Candidates: 8,
			Processed:  6,
			Skipped:    1,
			Failed:     1,
		},
	}

	var sb strings.Builder
	formatRunsList(&sb, runs)
	out := sb.String()

	assert.Contains(t, out, "abcdef12")
	assert.Contains(t, out, "2025-06-01 03:00")
	assert.Contains(t, out, "42s")
	assert.NotContains(t, out, "abcdef1234567890", "ids are truncated for display")
}
