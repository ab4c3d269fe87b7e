// Package postgres provides a PostgreSQL-backed implementation of
// [hifz.Store].
//
// Positions and tasks live in two tables sharing a single [pgxpool.Pool].
// The read-modify-write operations ([hifz.Store.Advance] and
// [hifz.Store.UpdateTask]) run inside a transaction with SELECT ... FOR
// UPDATE, so concurrent submissions for the same learner serialize at the
// database and duplicate completion signals lose the race exactly as they
// do against the in-memory store.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	svc := hifz.NewService(store, planCfg)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlLearnerPositions = `
CREATE TABLE IF NOT EXISTS learner_positions (
    learner     TEXT         PRIMARY KEY,
    page        INTEGER      NOT NULL,
    line        INTEGER      NOT NULL,
    stage       TEXT         NOT NULL,
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

const ddlTasks = `
CREATE TABLE IF NOT EXISTS hifz_tasks (
    id              UUID         PRIMARY KEY,
    learner         TEXT         NOT NULL,
    page            INTEGER      NOT NULL,
    stage           TEXT         NOT NULL,
    start_line      INTEGER      NOT NULL,
    end_line        INTEGER      NOT NULL,
    required_count  INTEGER      NOT NULL,
    passed_count    INTEGER      NOT NULL DEFAULT 0,
    failed_count    INTEGER      NOT NULL DEFAULT 0,
    status          TEXT         NOT NULL,
    deadline        TIMESTAMPTZ  NOT NULL,
    created_at      TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_hifz_tasks_learner
    ON hifz_tasks (learner);

CREATE INDEX IF NOT EXISTS idx_hifz_tasks_learner_created
    ON hifz_tasks (learner, created_at);
`

// Migrate creates or ensures all required tables and indexes exist. It is
// idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS) and
// safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		ddlLearnerPositions,
		ddlTasks,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
