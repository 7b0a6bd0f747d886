package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forumkita/marketpulse/internal/model"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "marketpulse.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLiteRunRoundTrip(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	report := sampleReport()
	report.Results = []model.ThreadResult{
		{ThreadID: "t1", Outcome: model.OutcomeProcessed, NewPosts: 4},
		{ThreadID: "t2", Outcome: model.OutcomeFailed, Error: "forum timeout"},
	}
	require.NoError(t, s.SaveRun(ctx, report))

	got, err := s.GetRun(ctx, report.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, report.ID, got.ID)
	assert.Equal(t, report.Processed, got.Processed)
	require.Len(t, got.Results, 2)
	assert.Equal(t, "forum timeout", got.Results[1].Error)
}

func TestSQLiteGetRunNotFound(t *testing.T) {
	s := newSQLiteStore(t)

	got, err := s.GetRun(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteListRunsNewestFirst(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-1", "run-2", "run-3"} {
		r := sampleReport()
		r.ID = id
		r.StartedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.SaveRun(ctx, r))
	}

	got, err := s.ListRuns(ctx, RunFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "run-3", got[0].ID)
	assert.Equal(t, "run-2", got[1].ID)
}

func TestSQLiteLeaseLifecycle(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	ok, err := s.AcquireLease(ctx, "t1", "owner-a", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// A second owner cannot take an unexpired lease.
	ok, err = s.AcquireLease(ctx, "t1", "owner-b", 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	leases, err := s.ListLeases(ctx)
	require.NoError(t, err)
	require.Len(t, leases, 1)
	assert.Equal(t, "owner-a", leases[0].Owner)

	// Release only deletes on owner match.
	require.NoError(t, s.ReleaseLease(ctx, "t1", "owner-b"))
	leases, err = s.ListLeases(ctx)
	require.NoError(t, err)
	assert.Len(t, leases, 1)

	require.NoError(t, s.ReleaseLease(ctx, "t1", "owner-a"))
	leases, err = s.ListLeases(ctx)
	require.NoError(t, err)
	assert.Empty(t, leases)
}

func TestSQLiteExpiredLeaseTakeover(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	ok, err := s.AcquireLease(ctx, "t1", "owner-a", -time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AcquireLease(ctx, "t1", "owner-b", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired lease must be claimable")

	leases, err := s.ListLeases(ctx)
	require.NoError(t, err)
	require.Len(t, leases, 1)
	assert.Equal(t, "owner-b", leases[0].Owner)
}

func TestSQLiteDeleteExpiredLeases(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	_, err := s.AcquireLease(ctx, "t1", "owner-a", -time.Second)
	require.NoError(t, err)
	_, err = s.AcquireLease(ctx, "t2", "owner-a", time.Hour)
	require.NoError(t, err)

	n, err := s.DeleteExpiredLeases(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	leases, err := s.ListLeases(ctx)
	require.NoError(t, err)
	require.Len(t, leases, 1)
	assert.Equal(t, "t2", leases[0].ThreadID)
}
