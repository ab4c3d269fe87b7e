package hifz

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	// TaskInProgress means repetitions remain and no failure is
	// outstanding.
	TaskInProgress TaskStatus = "in_progress"
	// TaskPassed means every required repetition passed.
	TaskPassed TaskStatus = "passed"
	// TaskFailed means at least one failed repetition awaits resubmission.
	TaskFailed TaskStatus = "failed"
)

// Task is one assignment: recite the lines StartLine..EndLine of Page at the
// given Stage, RequiredCount times, before Deadline.
//
// A task completes only when every required repetition has passed and no
// failure is outstanding. Each failure must be individually replaced by a
// pass before the task can close, so a learner cannot average a bad
// repetition away.
type Task struct {
	ID      uuid.UUID `json:"id"`
	Learner string    `json:"learner"`

	Page      int     `json:"page"`
	Stage     StageID `json:"stage"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`

	RequiredCount int `json:"required_count"`
	PassedCount   int `json:"passed_count"`
	FailedCount   int `json:"failed_count"`

	Status    TaskStatus `json:"status"`
	Deadline  time.Time  `json:"deadline"`
	CreatedAt time.Time  `json:"created_at"`
}

// Lines returns how many lines the task covers.
func (t *Task) Lines() int {
	return t.EndLine - t.StartLine + 1
}

// Complete reports whether the task has met its requirement: all required
// repetitions passed and no outstanding failures.
func (t *Task) Complete() bool {
	return t.PassedCount >= t.RequiredCount && t.FailedCount == 0
}

// Overdue reports whether the deadline has passed as of now.
func (t *Task) Overdue(now time.Time) bool {
	return now.After(t.Deadline)
}

// RecordPass counts one passed repetition. If a failure is outstanding the
// pass replaces it: the failed counter drops and the passed counter still
// rises, so one resubmission repairs one failure.
func (t *Task) RecordPass() {
	t.PassedCount++
	if t.FailedCount > 0 {
		t.FailedCount--
	}
	switch {
	case t.Complete():
		t.Status = TaskPassed
	case t.FailedCount == 0:
		t.Status = TaskInProgress
	default:
		t.Status = TaskFailed
	}
}

// RecordFail counts one failed repetition and marks the task failed until
// the failure is repaired by a pass.
func (t *Task) RecordFail() {
	t.FailedCount++
	t.Status = TaskFailed
}
