package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/forumkita/marketpulse/internal/model"
)

// SQLiteStore implements Store against a local SQLite file. It is the
// zero-infrastructure backend for development and single-node deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the SQLite database at path.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Single writer; WAL keeps readers unblocked during runs.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "sqlite: pragmas")
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS analysis_runs (
	id          TEXT PRIMARY KEY,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL,
	candidates  INTEGER NOT NULL DEFAULT 0,
	processed   INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	report      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS thread_leases (
	thread_id   TEXT PRIMARY KEY,
	owner       TEXT NOT NULL,
	acquired_at TIMESTAMP NOT NULL,
	expires_at  TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analysis_runs_started_at ON analysis_runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_thread_leases_expires_at ON thread_leases(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, report *model.RunReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run report")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analysis_runs (id, started_at, finished_at, candidates, processed, skipped, failed, report)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID, report.StartedAt, report.FinishedAt,
		report.Candidates, report.Processed, report.Skipped, report.Failed,
		string(payload),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert run %s", report.ID)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.RunReport, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT report FROM analysis_runs WHERE id = ?`, id,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", id)
	}

	var report model.RunReport
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal run %s", id)
	}
	return &report, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.RunReport, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT report FROM analysis_runs ORDER BY started_at DESC LIMIT ? OFFSET ?`,
		limit, filter.Offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var reports []model.RunReport
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run row")
		}
		var report model.RunReport
		if err := json.Unmarshal([]byte(payload), &report); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal run row")
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate run rows")
	}
	return reports, nil
}

func (s *SQLiteStore) AcquireLease(ctx context.Context, threadID, owner string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO thread_leases (thread_id, owner, acquired_at, expires_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (thread_id) DO UPDATE
		 SET owner = excluded.owner, acquired_at = excluded.acquired_at, expires_at = excluded.expires_at
		 WHERE thread_leases.expires_at <= ?`,
		threadID, owner, now, now.Add(ttl), now,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: acquire lease %s", threadID)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: acquire lease rows affected")
	}
	return affected > 0, nil
}

func (s *SQLiteStore) ReleaseLease(ctx context.Context, threadID, owner string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM thread_leases WHERE thread_id = ? AND owner = ?`,
		threadID, owner,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: release lease %s", threadID)
	}
	return nil
}

func (s *SQLiteStore) ListLeases(ctx context.Context) ([]Lease, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT thread_id, owner, acquired_at, expires_at FROM thread_leases ORDER BY expires_at`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leases")
	}
	defer rows.Close()

	var leases []Lease
	for rows.Next() {
		var l Lease
		if err := rows.Scan(&l.ThreadID, &l.Owner, &l.AcquiredAt, &l.ExpiresAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lease row")
		}
		leases = append(leases, l)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate lease rows")
	}
	return leases, nil
}

func (s *SQLiteStore) DeleteExpiredLeases(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM thread_leases WHERE expires_at <= ?`,
		time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired leases")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired leases rows affected")
	}
	return int(affected), nil
}
