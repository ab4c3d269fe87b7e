package hifz

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hifzlab/tasmee/pkg/mushaf"
)

// Observer receives progression events. Implementations must be cheap and
// must not block; the Service calls them synchronously on its own path.
type Observer interface {
	// StageAdvanced fires after a completion moved the learner.
	StageAdvanced(ctx context.Context, learner string, from, to LearnerPosition)
	// SignalRejected fires when a stale or invalid completion was refused.
	SignalRejected(ctx context.Context, learner string, c Completion)
	// TaskOpened fires when a new task is planned and stored.
	TaskOpened(ctx context.Context, t Task)
	// TaskClosed fires when a task reaches its required repetitions.
	TaskClosed(ctx context.Context, t Task)
}

// nopObserver is the default Observer.
type nopObserver struct{}

func (nopObserver) StageAdvanced(context.Context, string, LearnerPosition, LearnerPosition) {}
func (nopObserver) SignalRejected(context.Context, string, Completion)                     {}
func (nopObserver) TaskOpened(context.Context, Task)                                       {}
func (nopObserver) TaskClosed(context.Context, Task)                                       {}

// ServiceOption configures a [Service].
type ServiceOption func(*Service)

// WithLayout sets the mushaf layout. Default: [mushaf.Standard].
func WithLayout(l *mushaf.Layout) ServiceOption {
	return func(s *Service) {
		s.layout = l
	}
}

// WithObserver sets the progression event observer.
func WithObserver(obs Observer) ServiceOption {
	return func(s *Service) {
		s.obs = obs
	}
}

// WithLogger sets the logger. Default: slog.Default.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.log = log
	}
}

// Service orchestrates task lifecycle and stage progression over a [Store].
//
// All position changes go through the store's Advance critical section and
// re-validate the completion against the position found there, so two
// concurrent submissions of the same work move the learner at most once:
// the loser of the race sees the winner's position and is rejected as stale.
type Service struct {
	store  Store
	layout *mushaf.Layout
	plan   PlanConfig
	obs    Observer
	log    *slog.Logger
}

// NewService returns a Service over the given store and scheduling config.
func NewService(store Store, plan PlanConfig, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		layout: mushaf.Standard(),
		plan:   plan,
		obs:    nopObserver{},
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Enroll (re)starts a learner at the first line of the given page. An
// existing position is overwritten.
func (s *Service) Enroll(ctx context.Context, learner string, page int) (LearnerPosition, error) {
	if learner == "" {
		return LearnerPosition{}, fmt.Errorf("hifz: enroll: learner must not be empty")
	}
	if _, ok := s.layout.Page(page); !ok {
		return LearnerPosition{}, fmt.Errorf("hifz: enroll: page %d outside mushaf", page)
	}
	pos := LearnerPosition{Page: page, Line: 1, Stage: StageLearn1}
	if err := s.store.SetPosition(ctx, learner, pos); err != nil {
		return LearnerPosition{}, fmt.Errorf("hifz: enroll %q: %w", learner, err)
	}
	s.log.InfoContext(ctx, "learner enrolled", "learner", learner, "page", page)
	return pos, nil
}

// Position returns the learner's current position.
func (s *Service) Position(ctx context.Context, learner string) (LearnerPosition, error) {
	return s.store.Position(ctx, learner)
}

// Tasks lists the learner's tasks, oldest first.
func (s *Service) Tasks(ctx context.Context, learner string) ([]Task, error) {
	return s.store.Tasks(ctx, learner)
}

// PlanNext builds, stores and returns the next task for the learner's
// current position.
func (s *Service) PlanNext(ctx context.Context, learner string, prof Proficiency) (Task, error) {
	pos, err := s.store.Position(ctx, learner)
	if err != nil {
		return Task{}, fmt.Errorf("hifz: plan next for %q: %w", learner, err)
	}
	page, ok := s.layout.Page(pos.Page)
	if !ok {
		return Task{}, fmt.Errorf("hifz: plan next for %q: position page %d outside mushaf", learner, pos.Page)
	}
	t, err := Plan(learner, pos, page, prof, s.plan)
	if err != nil {
		return Task{}, err
	}
	if err := s.store.CreateTask(ctx, t); err != nil {
		return Task{}, fmt.Errorf("hifz: store task for %q: %w", learner, err)
	}
	s.obs.TaskOpened(ctx, t)
	s.log.InfoContext(ctx, "task planned",
		"learner", learner,
		"task_id", t.ID,
		"stage", t.Stage,
		"lines", fmt.Sprintf("%d-%d", t.StartLine, t.EndLine),
		"required", t.RequiredCount)
	return t, nil
}

// Submit records one repetition outcome against a task. When the submission
// completes the task, the learner's position advances: once per line of a
// unit-stage batch, in order, or once for the whole span of a bulk stage.
//
// Submitting to an already passed task returns [ErrTaskClosed]. If the task
// completed but an advance step was rejected, the returned task is the
// stored (completed) state and the error describes the rejection.
func (s *Service) Submit(ctx context.Context, learner string, taskID uuid.UUID, passed bool) (Task, error) {
	t, err := s.store.UpdateTask(ctx, learner, taskID, func(t *Task) error {
		if t.Status == TaskPassed {
			return ErrTaskClosed
		}
		if passed {
			t.RecordPass()
		} else {
			t.RecordFail()
		}
		return nil
	})
	if err != nil {
		return Task{}, fmt.Errorf("hifz: submit to task %s: %w", taskID, err)
	}

	s.log.DebugContext(ctx, "repetition recorded",
		"learner", learner,
		"task_id", t.ID,
		"passed", passed,
		"progress", fmt.Sprintf("%d/%d", t.PassedCount, t.RequiredCount),
		"failed_outstanding", t.FailedCount)

	if !t.Complete() {
		return t, nil
	}
	s.obs.TaskClosed(ctx, t)

	if err := s.advanceForTask(ctx, t); err != nil {
		return t, err
	}
	return t, nil
}

// AdvancePosition applies one completion signal to the learner's position.
// It returns the position after the call, whether the learner moved, and
// [ErrStaleCompletion] when the signal does not address the current
// position. A matching FullPage completion on the last page returns the
// unchanged position with advanced false and a nil error: the pipeline is
// finished.
func (s *Service) AdvancePosition(ctx context.Context, learner string, c Completion) (LearnerPosition, bool, error) {
	if !c.Stage.IsValid() || c.Line < 1 || c.TotalLines < 1 {
		s.obs.SignalRejected(ctx, learner, c)
		return LearnerPosition{}, false, fmt.Errorf("hifz: advance %q: %w", learner, ErrInvalidCompletion)
	}

	var from LearnerPosition
	pos, advanced, err := s.store.Advance(ctx, learner, func(cur LearnerPosition) (LearnerPosition, bool, error) {
		from = cur
		if !c.Matches(cur) {
			return cur, false, ErrStaleCompletion
		}
		next, ok := Advance(cur, c)
		return next, ok, nil
	})
	if err != nil {
		s.obs.SignalRejected(ctx, learner, c)
		s.log.WarnContext(ctx, "completion rejected",
			"learner", learner,
			"stage", c.Stage,
			"line", c.Line,
			"error", err)
		return pos, false, fmt.Errorf("hifz: advance %q: %w", learner, err)
	}

	if advanced {
		s.obs.StageAdvanced(ctx, learner, from, pos)
		s.log.InfoContext(ctx, "position advanced",
			"learner", learner,
			"from_stage", from.Stage, "from_line", from.Line,
			"to_stage", pos.Stage, "to_line", pos.Line,
			"page", pos.Page)
	} else if c.Stage == StageFullPage && c.LastPage {
		s.log.InfoContext(ctx, "mushaf complete", "learner", learner, "page", pos.Page)
	}
	return pos, advanced, nil
}

// advanceForTask applies the completions a finished task implies. Unit
// stages completed a batch of lines: one advance per line, in order, each
// re-validated against the position. Bulk stages advance once.
func (s *Service) advanceForTask(ctx context.Context, t Task) error {
	page, ok := s.layout.Page(t.Page)
	if !ok {
		return fmt.Errorf("hifz: advance for task %s: page %d outside mushaf: %w", t.ID, t.Page, ErrInvalidCompletion)
	}
	last := s.layout.IsLast(t.Page)

	lines := []int{t.StartLine}
	if t.Stage.Unit() {
		lines = lines[:0]
		for line := t.StartLine; line <= t.EndLine; line++ {
			lines = append(lines, line)
		}
	}
	for _, line := range lines {
		c := Completion{Stage: t.Stage, Line: line, TotalLines: page.Lines, LastPage: last}
		if _, _, err := s.AdvancePosition(ctx, t.Learner, c); err != nil {
			return err
		}
	}
	return nil
}
