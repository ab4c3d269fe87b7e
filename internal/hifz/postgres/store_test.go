package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hifzlab/tasmee/internal/hifz"
	"github.com/hifzlab/tasmee/internal/hifz/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if TASMEE_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TASMEE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TASMEE_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] with a clean schema.
// It calls t.Cleanup to close the store when the test finishes.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	cleanPool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(cleanPool.Close)
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS hifz_tasks CASCADE",
		"DROP TABLE IF EXISTS learner_positions CASCADE",
	} {
		if _, err := cleanPool.Exec(ctx, stmt); err != nil {
			t.Fatalf("drop schema %q: %v", stmt, err)
		}
	}

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestStore_Positions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Position(ctx, "amina"); !errors.Is(err, hifz.ErrLearnerNotFound) {
		t.Fatalf("Position err = %v, want ErrLearnerNotFound", err)
	}

	want := hifz.LearnerPosition{Page: 3, Line: 1, Stage: hifz.StageLearn1}
	if err := store.SetPosition(ctx, "amina", want); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	got, err := store.Position(ctx, "amina")
	if err != nil {
		t.Fatalf("Position: %v", err)
	}
	if got != want {
		t.Errorf("Position = %+v, want %+v", got, want)
	}

	// SetPosition replaces an existing row.
	want = hifz.LearnerPosition{Page: 3, Line: 8, Stage: hifz.StageLearn2}
	if err := store.SetPosition(ctx, "amina", want); err != nil {
		t.Fatalf("SetPosition again: %v", err)
	}
	if got, _ = store.Position(ctx, "amina"); got != want {
		t.Errorf("Position after upsert = %+v, want %+v", got, want)
	}
}

func TestStore_Advance(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	start := hifz.LearnerPosition{Page: 3, Line: 4, Stage: hifz.StageLearn1}
	if err := store.SetPosition(ctx, "amina", start); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}

	c := hifz.Completion{Stage: hifz.StageLearn1, Line: 4, TotalLines: 15}
	fn := func(cur hifz.LearnerPosition) (hifz.LearnerPosition, bool, error) {
		if !c.Matches(cur) {
			return cur, false, hifz.ErrStaleCompletion
		}
		next, ok := hifz.Advance(cur, c)
		return next, ok, nil
	}

	next, advanced, err := store.Advance(ctx, "amina", fn)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if want := (hifz.LearnerPosition{Page: 3, Line: 5, Stage: hifz.StageLearn1}); !advanced || next != want {
		t.Fatalf("Advance = %+v advanced %v, want %+v", next, advanced, want)
	}

	// The same signal again is stale and must not move the row.
	_, advanced, err = store.Advance(ctx, "amina", fn)
	if advanced || !errors.Is(err, hifz.ErrStaleCompletion) {
		t.Fatalf("duplicate signal: advanced %v err %v, want ErrStaleCompletion", advanced, err)
	}
	got, _ := store.Position(ctx, "amina")
	if got != next {
		t.Errorf("position = %+v after stale signal, want %+v", got, next)
	}

	if _, _, err := store.Advance(ctx, "nobody", fn); !errors.Is(err, hifz.ErrLearnerNotFound) {
		t.Errorf("Advance err = %v, want ErrLearnerNotFound", err)
	}
}

func TestStore_Tasks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	task := hifz.Task{
		ID:            uuid.New(),
		Learner:       "amina",
		Page:          3,
		Stage:         hifz.StageJoin1,
		StartLine:     1,
		EndLine:       7,
		RequiredCount: 3,
		Status:        hifz.TaskInProgress,
		Deadline:      time.Now().Add(24 * time.Hour).UTC().Truncate(time.Microsecond),
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}
	if err := store.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	got, err := store.Task(ctx, "amina", task.ID)
	if err != nil {
		t.Fatalf("Task: %v", err)
	}
	if got.ID != task.ID || got.Stage != hifz.StageJoin1 || got.RequiredCount != 3 {
		t.Errorf("Task = %+v, want the created one", got)
	}
	if !got.Deadline.Equal(task.Deadline) {
		t.Errorf("Deadline = %v, want %v", got.Deadline, task.Deadline)
	}

	if _, err := store.Task(ctx, "amina", uuid.New()); !errors.Is(err, hifz.ErrTaskNotFound) {
		t.Errorf("Task err = %v, want ErrTaskNotFound", err)
	}
	if _, err := store.Task(ctx, "bilal", task.ID); !errors.Is(err, hifz.ErrTaskNotFound) {
		t.Errorf("other learner's task err = %v, want ErrTaskNotFound", err)
	}

	updated, err := store.UpdateTask(ctx, "amina", task.ID, func(t *hifz.Task) error {
		t.RecordPass()
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if updated.PassedCount != 1 || updated.Status != hifz.TaskInProgress {
		t.Errorf("updated = passed %d status %q", updated.PassedCount, updated.Status)
	}

	// A rejected callback persists nothing.
	reject := errors.New("reject")
	if _, err := store.UpdateTask(ctx, "amina", task.ID, func(t *hifz.Task) error {
		t.RecordPass()
		return reject
	}); !errors.Is(err, reject) {
		t.Fatalf("UpdateTask err = %v, want the callback error", err)
	}
	got, _ = store.Task(ctx, "amina", task.ID)
	if got.PassedCount != 1 {
		t.Errorf("PassedCount = %d after rejected update, want 1", got.PassedCount)
	}
}

func TestStore_TasksOldestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Microsecond)
	var ids []uuid.UUID
	for i := 2; i >= 0; i-- {
		task := hifz.Task{
			ID:            uuid.New(),
			Learner:       "amina",
			Page:          3,
			Stage:         hifz.StageLearn1,
			StartLine:     1,
			EndLine:       1,
			RequiredCount: 1,
			Status:        hifz.TaskInProgress,
			Deadline:      base.Add(24 * time.Hour),
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.CreateTask(ctx, task); err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
		ids = append(ids, task.ID)
	}

	tasks, err := store.Tasks(ctx, "amina")
	if err != nil {
		t.Fatalf("Tasks: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("len(Tasks) = %d, want 3", len(tasks))
	}
	for i, want := range []uuid.UUID{ids[2], ids[1], ids[0]} {
		if tasks[i].ID != want {
			t.Errorf("Tasks[%d].ID = %s, want %s", i, tasks[i].ID, want)
		}
	}

	empty, err := store.Tasks(ctx, "bilal")
	if err != nil {
		t.Fatalf("Tasks(bilal): %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("Tasks(bilal) = %d entries, want none", len(empty))
	}
}

// TestStore_ServiceRoundTrip exercises the full progression service against
// the real database.
func TestStore_ServiceRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cfg := hifz.PlanConfig{
		Hours: map[hifz.StageID]int{
			hifz.StageLearn1: 24, hifz.StageJoin1: 24, hifz.StageLearn2: 24,
			hifz.StageJoin2: 24, hifz.StageFullPage: 48,
		},
		Repetitions: map[hifz.StageID]int{
			hifz.StageLearn1: 1, hifz.StageJoin1: 1, hifz.StageLearn2: 1,
			hifz.StageJoin2: 1, hifz.StageFullPage: 1,
		},
	}
	svc := hifz.NewService(store, cfg)

	if _, err := svc.Enroll(ctx, "amina", 10); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	task, err := svc.PlanNext(ctx, "amina", hifz.Beginner)
	if err != nil {
		t.Fatalf("PlanNext: %v", err)
	}
	if task, err = svc.Submit(ctx, "amina", task.ID, true); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !task.Complete() {
		t.Fatalf("task not complete: %+v", task)
	}

	pos, err := svc.Position(ctx, "amina")
	if err != nil {
		t.Fatalf("Position: %v", err)
	}
	if want := (hifz.LearnerPosition{Page: 10, Line: 2, Stage: hifz.StageLearn1}); pos != want {
		t.Errorf("position = %+v, want %+v", pos, want)
	}
}
