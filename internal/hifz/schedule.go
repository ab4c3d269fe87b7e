package hifz

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hifzlab/tasmee/pkg/mushaf"
)

// Proficiency grades how much new material a learner takes on at once.
type Proficiency int

const (
	// Beginner learns one line at a time.
	Beginner Proficiency = iota + 1
	// Intermediate learns three lines at a time.
	Intermediate
	// Advanced learns seven lines at a time.
	Advanced
)

// IsValid reports whether p is one of the defined proficiency levels.
func (p Proficiency) IsValid() bool {
	return p >= Beginner && p <= Advanced
}

// BatchLines returns how many lines a unit-stage task assigns at once.
func (p Proficiency) BatchLines() int {
	switch p {
	case Intermediate:
		return 3
	case Advanced:
		return 7
	default:
		return 1
	}
}

// Clock supplies the current time. Inject a fixed clock in tests; the zero
// value falls back to time.Now.
type Clock func() time.Time

// PlanConfig carries the per-stage scheduling knobs. Both maps must have an
// entry for every stage a plan can be asked for.
type PlanConfig struct {
	// Hours is the deadline budget per stage, in hours from planning time.
	Hours map[StageID]int

	// Repetitions is the required repetition count per stage. For unit
	// stages it is per line and gets multiplied by the batch size; for bulk
	// stages it is the total count regardless of span length.
	Repetitions map[StageID]int

	// Clock defaults to time.Now when nil.
	Clock Clock
}

func (c PlanConfig) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now()
}

// Plan builds the next task for a learner standing at pos on the given page.
// Unit stages assign a batch of lines sized by proficiency, clipped at the
// stage boundary; bulk stages assign their whole span.
func Plan(learner string, pos LearnerPosition, page mushaf.PageSpec, prof Proficiency, cfg PlanConfig) (Task, error) {
	if learner == "" {
		return Task{}, fmt.Errorf("hifz: plan: learner must not be empty")
	}
	if !pos.Stage.IsValid() {
		return Task{}, fmt.Errorf("hifz: plan: invalid stage %q", pos.Stage)
	}
	if pos.Page != page.Number {
		return Task{}, fmt.Errorf("hifz: plan: position page %d does not match page spec %d", pos.Page, page.Number)
	}
	if !prof.IsValid() {
		return Task{}, fmt.Errorf("hifz: plan: invalid proficiency %d", int(prof))
	}
	reps, ok := cfg.Repetitions[pos.Stage]
	if !ok || reps < 1 {
		return Task{}, fmt.Errorf("hifz: plan: no repetition count configured for stage %q", pos.Stage)
	}
	hours, ok := cfg.Hours[pos.Stage]
	if !ok || hours < 1 {
		return Task{}, fmt.Errorf("hifz: plan: no deadline hours configured for stage %q", pos.Stage)
	}

	if page.Simple() && pos.Stage != StageLearn1 && pos.Stage != StageFullPage {
		return Task{}, fmt.Errorf("hifz: plan: stage %q does not exist on a %d-line page", pos.Stage, page.Lines)
	}

	start, end := pos.Line, pos.Line
	required := reps
	switch {
	case pos.Stage.Unit():
		lo, hi := 1, page.Lines
		if !page.Simple() {
			if pos.Stage == StageLearn1 {
				hi = firstHalfLines
			} else {
				lo = firstHalfLines + 1
			}
		}
		if start < lo || start > hi {
			return Task{}, fmt.Errorf("hifz: plan: line %d outside stage %q range %d..%d", start, pos.Stage, lo, hi)
		}
		end = start + prof.BatchLines() - 1
		if end > hi {
			end = hi
		}
		required = reps * (end - start + 1)

	case pos.Stage == StageJoin1:
		start, end = 1, firstHalfLines

	case pos.Stage == StageJoin2:
		start, end = firstHalfLines+1, page.Lines

	default: // StageFullPage
		start, end = 1, page.Lines
	}
	if pos.Stage.Bulk() && pos.Line != start {
		return Task{}, fmt.Errorf("hifz: plan: position line %d does not match stage %q span start %d", pos.Line, pos.Stage, start)
	}

	now := cfg.now()
	return Task{
		ID:            uuid.New(),
		Learner:       learner,
		Page:          pos.Page,
		Stage:         pos.Stage,
		StartLine:     start,
		EndLine:       end,
		RequiredCount: required,
		Status:        TaskInProgress,
		Deadline:      now.Add(time.Duration(hours) * time.Hour),
		CreatedAt:     now,
	}, nil
}
