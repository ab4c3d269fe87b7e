package hifz

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Sentinel errors returned by Store implementations and the Service. Match
// with errors.Is; implementations wrap them with context.
var (
	// ErrLearnerNotFound means the learner has no stored position.
	ErrLearnerNotFound = errors.New("hifz: learner not found")

	// ErrTaskNotFound means no task with that ID exists for the learner.
	ErrTaskNotFound = errors.New("hifz: task not found")

	// ErrTaskClosed means the task already passed and accepts no further
	// submissions.
	ErrTaskClosed = errors.New("hifz: task already closed")

	// ErrStaleCompletion means a completion signal does not address the
	// learner's current position and was rejected.
	ErrStaleCompletion = errors.New("hifz: completion does not match current position")

	// ErrInvalidCompletion means a completion signal is malformed
	// regardless of position.
	ErrInvalidCompletion = errors.New("hifz: invalid completion signal")
)

// AdvanceFunc computes a learner's next position from the current one. It
// runs inside the store's critical section for that learner and must be
// quick and side-effect free. Returning an error aborts the update.
type AdvanceFunc func(pos LearnerPosition) (next LearnerPosition, advanced bool, err error)

// Store persists learner positions and tasks.
//
// Contract:
//   - Position returns ErrLearnerNotFound for unknown learners; Task and
//     UpdateTask return ErrTaskNotFound for unknown tasks.
//   - Advance applies fn as a transactional read-modify-write of the
//     learner's position: no two Advance calls for the same learner may
//     interleave, and the new position is stored only when fn reports
//     advanced with a nil error.
//   - UpdateTask applies fn the same way to a single task and returns the
//     stored result.
//   - All methods are safe for concurrent use.
type Store interface {
	// Position returns the learner's current position.
	Position(ctx context.Context, learner string) (LearnerPosition, error)

	// SetPosition stores pos for the learner, creating the record when
	// absent.
	SetPosition(ctx context.Context, learner string, pos LearnerPosition) error

	// Advance applies fn to the learner's position under exclusion.
	Advance(ctx context.Context, learner string, fn AdvanceFunc) (LearnerPosition, bool, error)

	// Task returns one task by ID.
	Task(ctx context.Context, learner string, id uuid.UUID) (Task, error)

	// CreateTask stores a new task.
	CreateTask(ctx context.Context, t Task) error

	// UpdateTask applies fn to the task under exclusion and returns the
	// stored result.
	UpdateTask(ctx context.Context, learner string, id uuid.UUID, fn func(*Task) error) (Task, error)

	// Tasks lists the learner's tasks, oldest first.
	Tasks(ctx context.Context, learner string) ([]Task, error)
}
