package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/forumkita/marketpulse/internal/model"
)

// pgPool is the slice of pgxpool.Pool the store uses; pgxmock satisfies it
// in tests.
type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool pgPool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 5
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS analysis_runs (
	id          TEXT PRIMARY KEY,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	candidates  INT NOT NULL DEFAULT 0,
	processed   INT NOT NULL DEFAULT 0,
	skipped     INT NOT NULL DEFAULT 0,
	failed      INT NOT NULL DEFAULT 0,
	report      JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS thread_leases (
	thread_id   TEXT PRIMARY KEY,
	owner       TEXT NOT NULL,
	acquired_at TIMESTAMPTZ NOT NULL,
	expires_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analysis_runs_started_at ON analysis_runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_thread_leases_expires_at ON thread_leases(expires_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, report *model.RunReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run report")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO analysis_runs (id, started_at, finished_at, candidates, processed, skipped, failed, report)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		report.ID, report.StartedAt, report.FinishedAt,
		report.Candidates, report.Processed, report.Skipped, report.Failed,
		payload,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert run %s", report.ID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*model.RunReport, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT report FROM analysis_runs WHERE id = $1`, id,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", id)
	}

	var report model.RunReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal run %s", id)
	}
	return &report, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.RunReport, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx,
		`SELECT report FROM analysis_runs ORDER BY started_at DESC LIMIT $1 OFFSET $2`,
		limit, filter.Offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var reports []model.RunReport
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run row")
		}
		var report model.RunReport
		if err := json.Unmarshal(payload, &report); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal run row")
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate run rows")
	}
	return reports, nil
}

func (s *PostgresStore) AcquireLease(ctx context.Context, threadID, owner string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO thread_leases (thread_id, owner, acquired_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (thread_id) DO UPDATE
		 SET owner = EXCLUDED.owner, acquired_at = EXCLUDED.acquired_at, expires_at = EXCLUDED.expires_at
		 WHERE thread_leases.expires_at <= $3`,
		threadID, owner, now, now.Add(ttl),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: acquire lease %s", threadID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ReleaseLease(ctx context.Context, threadID, owner string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM thread_leases WHERE thread_id = $1 AND owner = $2`,
		threadID, owner,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: release lease %s", threadID)
	}
	return nil
}

func (s *PostgresStore) ListLeases(ctx context.Context) ([]Lease, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT thread_id, owner, acquired_at, expires_at FROM thread_leases ORDER BY expires_at`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leases")
	}
	defer rows.Close()

	var leases []Lease
	for rows.Next() {
		var l Lease
		if err := rows.Scan(&l.ThreadID, &l.Owner, &l.AcquiredAt, &l.ExpiresAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lease row")
		}
		leases = append(leases, l)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate lease rows")
	}
	return leases, nil
}

func (s *PostgresStore) DeleteExpiredLeases(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM thread_leases WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired leases")
	}
	return int(tag.RowsAffected()), nil
}
