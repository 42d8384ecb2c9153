/* Copyright (c) 2025 Mozilla Corporation
 * SPDX-License-Identifier: MPL-2.0 */
package repo

import (
    "context"
    "errors"
    "time"

    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgxpool"
    "github.com/rs/zerolog"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id          BIGSERIAL PRIMARY KEY,
    week_end    TIMESTAMPTZ NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    finished_at TIMESTAMPTZ,
    sheet_id    TEXT NOT NULL DEFAULT '',
    sites       INT NOT NULL DEFAULT 0,
    ok          BOOLEAN,
    error       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS runs_week_end_idx ON runs (week_end DESC);
`

type DB struct {
    Pool *pgxpool.Pool
}

// MustOpen connects, verifies the connection and ensures the schema. The
// process cannot do anything useful without bookkeeping, so failures are
// fatal.
func MustOpen(ctx context.Context, dsn string, log zerolog.Logger) *DB {
    pool, err := pgxpool.New(ctx, dsn)
    if err != nil { log.Fatal().Err(err).Msg("db: open failed") }
    if err := pool.Ping(ctx); err != nil { log.Fatal().Err(err).Msg("db: ping failed") }
    if _, err := pool.Exec(ctx, schema); err != nil { log.Fatal().Err(err).Msg("db: ensure schema failed") }
    log.Info().Msg("db: connected")
    return &DB{Pool: pool}
}

func (d *DB) Close() { d.Pool.Close() }

// Run is one pipeline execution for a week-ending date. Sites is the number
// of domain rows published.
type Run struct {
    ID         int64
    WeekEnd    time.Time
    StartedAt  time.Time
    FinishedAt *time.Time
    SheetID    string
    Sites      int
    OK         *bool
    Error      string
}

type Repository struct {
    db *DB
}

func NewRepository(db *DB) *Repository { return &Repository{db: db} }

func (r *Repository) StartRun(ctx context.Context, weekEnd time.Time) (int64, error) {
    var id int64
    err := r.db.Pool.QueryRow(ctx,
        `INSERT INTO runs (week_end) VALUES ($1) RETURNING id`, weekEnd).Scan(&id)
    return id, err
}

func (r *Repository) FinishRun(ctx context.Context, id int64, sheetID string, sites int, ok bool, errMsg string) error {
    _, err := r.db.Pool.Exec(ctx,
        `UPDATE runs SET finished_at = now(), sheet_id = $2, sites = $3, ok = $4, error = $5 WHERE id = $1`,
        id, sheetID, sites, ok, errMsg)
    return err
}

// GetLastRun returns the most recently started run, or nil when none exist.
func (r *Repository) GetLastRun(ctx context.Context) (*Run, error) {
    var run Run
    err := r.db.Pool.QueryRow(ctx,
        `SELECT id, week_end, started_at, finished_at, sheet_id, sites, ok, error
           FROM runs ORDER BY started_at DESC LIMIT 1`).
        Scan(&run.ID, &run.WeekEnd, &run.StartedAt, &run.FinishedAt, &run.SheetID, &run.Sites, &run.OK, &run.Error)
    if errors.Is(err, pgx.ErrNoRows) { return nil, nil }
    if err != nil { return nil, err }
    return &run, nil
}

// TryAdvisoryLock guards the weekly job against concurrent replicas.
func (r *Repository) TryAdvisoryLock(ctx context.Context, key int64) (bool, error) {
    var got bool
    err := r.db.Pool.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&got)
    return got, err
}

func (r *Repository) AdvisoryUnlock(ctx context.Context, key int64) error {
    _, err := r.db.Pool.Exec(ctx, `SELECT pg_advisory_unlock($1)`, key)
    return err
}
