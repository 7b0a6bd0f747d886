package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forumkita/marketpulse/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return &PostgresStore{pool: mock}, mock
}

func sampleReport() *model.RunReport {
	started := time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)
	return &model.RunReport{
		ID:         "run-1",
		StartedAt:  started,
		FinishedAt: started.Add(42 * time.Second),
		Candidates: 5,
		Processed:  3,
		Skipped:    1,
		Failed:     1,
	}
}

func TestPostgresSaveRun(t *testing.T) {
	s, mock := newMockStore(t)
	report := sampleReport()

	mock.ExpectExec(`INSERT INTO analysis_runs`).
		WithArgs(report.ID, report.StartedAt, report.FinishedAt,
			report.Candidates, report.Processed, report.Skipped, report.Failed,
			pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SaveRun(context.Background(), report))
}

func TestPostgresGetRun(t *testing.T) {
	s, mock := newMockStore(t)

	payload := []byte(`{"id":"run-1","candidates":5,"processed":3,"skipped":1,"failed":1}`)
	mock.ExpectQuery(`SELECT report FROM analysis_runs WHERE id`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"report"}).AddRow(payload))

	got, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "run-1", got.ID)
	assert.Equal(t, 3, got.Processed)
}

func TestPostgresGetRunNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT report FROM analysis_runs WHERE id`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"report"}))

	got, err := s.GetRun(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPostgresListRuns(t *testing.T) {
	s, mock := newMockStore(t)

	rows := pgxmock.NewRows([]string{"report"}).
		AddRow([]byte(`{"id":"run-2"}`)).
		AddRow([]byte(`{"id":"run-1"}`))
	mock.ExpectQuery(`SELECT report FROM analysis_runs ORDER BY started_at DESC`).
		WithArgs(20, 0).
		WillReturnRows(rows)

	got, err := s.ListRuns(context.Background(), RunFilter{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "run-2", got[0].ID)
}

func TestPostgresAcquireLease(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO thread_leases`).
		WithArgs("t1", "owner-a", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	ok, err := s.AcquireLease(context.Background(), "t1", "owner-a", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPostgresAcquireLeaseHeld(t *testing.T) {
	s, mock := newMockStore(t)

	// Conflict with an unexpired lease touches zero rows.
	mock.ExpectExec(`INSERT INTO thread_leases`).
		WithArgs("t1", "owner-b", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	ok, err := s.AcquireLease(context.Background(), "t1", "owner-b", 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPostgresReleaseLease(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM thread_leases WHERE thread_id`).
		WithArgs("t1", "owner-a").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, s.ReleaseLease(context.Background(), "t1", "owner-a"))
}

func TestPostgresDeleteExpiredLeases(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM thread_leases WHERE expires_at`).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := s.DeleteExpiredLeases(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
