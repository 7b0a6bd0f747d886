// Package store persists analyzer run reports and per-thread leases. The
// lease table is the real mutual-exclusion mechanism behind what used to be
// an advisory "processed recently" timestamp: acquisition is an atomic
// conditional upsert, and an unexpired lease doubles as the per-thread
// debounce.
package store

import (
	"context"
	"time"

	"github.com/forumkita/marketpulse/internal/model"
)

// RunFilter specifies criteria for listing run reports.
type RunFilter struct {
	Limit  int
	Offset int
}

// Lease is a per-thread processing claim with an owner and expiry.
type Lease struct {
	ThreadID   string    `json:"thread_id"`
	Owner      string    `json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Store defines the persistence interface for the analyzer.
type Store interface {
	// Runs
	SaveRun(ctx context.Context, report *model.RunReport) error
	GetRun(ctx context.Context, id string) (*model.RunReport, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.RunReport, error)

	// Leases. AcquireLease returns false when another unexpired lease holds
	// the thread. A successful acquisition replaces any expired lease.
	AcquireLease(ctx context.Context, threadID, owner string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, threadID, owner string) error
	ListLeases(ctx context.Context) ([]Lease, error)
	DeleteExpiredLeases(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
