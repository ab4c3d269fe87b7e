package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hifzlab/tasmee/internal/hifz"
)

// Compile-time interface check.
var _ hifz.Store = (*Store)(nil)

// Store is a [hifz.Store] backed by a PostgreSQL database. All operations
// are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store, establishes a connection pool to the
// PostgreSQL database at dsn, and runs [Migrate] to ensure the required
// tables exist.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying connection pool.
// It should be called when the Store is no longer needed, typically via defer.
func (s *Store) Close() {
	s.pool.Close()
}

// Position implements [hifz.Store].
func (s *Store) Position(ctx context.Context, learner string) (hifz.LearnerPosition, error) {
	const q = `
		SELECT page, line, stage
		FROM   learner_positions
		WHERE  learner = $1`

	var (
		pos   hifz.LearnerPosition
		stage string
	)
	err := s.pool.QueryRow(ctx, q, learner).Scan(&pos.Page, &pos.Line, &stage)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return hifz.LearnerPosition{}, hifz.ErrLearnerNotFound
		}
		return hifz.LearnerPosition{}, fmt.Errorf("postgres store: position %q: %w", learner, err)
	}
	pos.Stage = hifz.StageID(stage)
	return pos, nil
}

// SetPosition implements [hifz.Store]. It creates or replaces the learner's
// position row.
func (s *Store) SetPosition(ctx context.Context, learner string, pos hifz.LearnerPosition) error {
	const q = `
		INSERT INTO learner_positions (learner, page, line, stage)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (learner) DO UPDATE SET
			page = EXCLUDED.page,
			line = EXCLUDED.line,
			stage = EXCLUDED.stage,
			updated_at = now()`

	if _, err := s.pool.Exec(ctx, q, learner, pos.Page, pos.Line, string(pos.Stage)); err != nil {
		return fmt.Errorf("postgres store: set position %q: %w", learner, err)
	}
	return nil
}

// Advance implements [hifz.Store]. The position row is locked with
// SELECT ... FOR UPDATE for the duration of the callback, so concurrent
// advances for the same learner serialize and the loser of a race sees the
// winner's position.
func (s *Store) Advance(ctx context.Context, learner string, fn hifz.AdvanceFunc) (hifz.LearnerPosition, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return hifz.LearnerPosition{}, false, fmt.Errorf("postgres store: advance %q: begin: %w", learner, err)
	}
	defer tx.Rollback(ctx)

	const sel = `
		SELECT page, line, stage
		FROM   learner_positions
		WHERE  learner = $1
		FOR UPDATE`

	var (
		pos   hifz.LearnerPosition
		stage string
	)
	if err := tx.QueryRow(ctx, sel, learner).Scan(&pos.Page, &pos.Line, &stage); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return hifz.LearnerPosition{}, false, hifz.ErrLearnerNotFound
		}
		return hifz.LearnerPosition{}, false, fmt.Errorf("postgres store: advance %q: select: %w", learner, err)
	}
	pos.Stage = hifz.StageID(stage)

	next, advanced, err := fn(pos)
	if err != nil {
		return pos, false, err
	}
	if advanced {
		const upd = `
			UPDATE learner_positions
			SET    page = $2, line = $3, stage = $4, updated_at = now()
			WHERE  learner = $1`
		if _, err := tx.Exec(ctx, upd, learner, next.Page, next.Line, string(next.Stage)); err != nil {
			return pos, false, fmt.Errorf("postgres store: advance %q: update: %w", learner, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return pos, false, fmt.Errorf("postgres store: advance %q: commit: %w", learner, err)
	}
	return next, advanced, nil
}

const taskColumns = `id, learner, page, stage, start_line, end_line,
       required_count, passed_count, failed_count, status, deadline, created_at`

// Task implements [hifz.Store].
func (s *Store) Task(ctx context.Context, learner string, id uuid.UUID) (hifz.Task, error) {
	const q = `
		SELECT ` + taskColumns + `
		FROM   hifz_tasks
		WHERE  learner = $1 AND id = $2`

	t, err := scanTask(s.pool.QueryRow(ctx, q, learner, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return hifz.Task{}, hifz.ErrTaskNotFound
		}
		return hifz.Task{}, fmt.Errorf("postgres store: task %s: %w", id, err)
	}
	return t, nil
}

// CreateTask implements [hifz.Store].
func (s *Store) CreateTask(ctx context.Context, t hifz.Task) error {
	const q = `
		INSERT INTO hifz_tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.pool.Exec(ctx, q,
		t.ID,
		t.Learner,
		t.Page,
		string(t.Stage),
		t.StartLine,
		t.EndLine,
		t.RequiredCount,
		t.PassedCount,
		t.FailedCount,
		string(t.Status),
		t.Deadline,
		t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres store: create task %s: %w", t.ID, err)
	}
	return nil
}

// UpdateTask implements [hifz.Store]. The task row is locked with
// SELECT ... FOR UPDATE for the duration of the callback; a callback error
// rolls the transaction back and nothing persists.
func (s *Store) UpdateTask(ctx context.Context, learner string, id uuid.UUID, fn func(*hifz.Task) error) (hifz.Task, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return hifz.Task{}, fmt.Errorf("postgres store: update task %s: begin: %w", id, err)
	}
	defer tx.Rollback(ctx)

	const sel = `
		SELECT ` + taskColumns + `
		FROM   hifz_tasks
		WHERE  learner = $1 AND id = $2
		FOR UPDATE`

	t, err := scanTask(tx.QueryRow(ctx, sel, learner, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return hifz.Task{}, hifz.ErrTaskNotFound
		}
		return hifz.Task{}, fmt.Errorf("postgres store: update task %s: select: %w", id, err)
	}

	if err := fn(&t); err != nil {
		return hifz.Task{}, err
	}

	const upd = `
		UPDATE hifz_tasks
		SET    passed_count = $3, failed_count = $4, status = $5
		WHERE  learner = $1 AND id = $2`
	if _, err := tx.Exec(ctx, upd, learner, id, t.PassedCount, t.FailedCount, string(t.Status)); err != nil {
		return hifz.Task{}, fmt.Errorf("postgres store: update task %s: update: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return hifz.Task{}, fmt.Errorf("postgres store: update task %s: commit: %w", id, err)
	}
	return t, nil
}

// Tasks implements [hifz.Store]. Tasks are returned oldest first.
func (s *Store) Tasks(ctx context.Context, learner string) ([]hifz.Task, error) {
	const q = `
		SELECT ` + taskColumns + `
		FROM   hifz_tasks
		WHERE  learner = $1
		ORDER  BY created_at, id`

	rows, err := s.pool.Query(ctx, q, learner)
	if err != nil {
		return nil, fmt.Errorf("postgres store: tasks for %q: %w", learner, err)
	}
	tasks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (hifz.Task, error) {
		return scanTask(row)
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan tasks for %q: %w", learner, err)
	}
	if tasks == nil {
		tasks = []hifz.Task{}
	}
	return tasks, nil
}

// scanTask scans one hifz_tasks row into a Task.
func scanTask(row pgx.Row) (hifz.Task, error) {
	var (
		t      hifz.Task
		stage  string
		status string
	)
	err := row.Scan(
		&t.ID,
		&t.Learner,
		&t.Page,
		&stage,
		&t.StartLine,
		&t.EndLine,
		&t.RequiredCount,
		&t.PassedCount,
		&t.FailedCount,
		&status,
		&t.Deadline,
		&t.CreatedAt,
	)
	if err != nil {
		return hifz.Task{}, err
	}
	t.Stage = hifz.StageID(stage)
	t.Status = hifz.TaskStatus(status)
	return t, nil
}
