package hifz

// firstHalfLines is the line where a regular page splits into halves:
// Learn1 and Join1 cover lines 1..7, Learn2 and Join2 cover line 8 to the
// end of the page.
const firstHalfLines = 7

// LearnerPosition is where a learner currently stands: which page, which
// line within it, and which stage of the pipeline.
type LearnerPosition struct {
	Page  int     `json:"page"`
	Line  int     `json:"line"`
	Stage StageID `json:"stage"`
}

// Completion is a signal that the learner finished the work at one position.
// Stage and Line name the position the signal addresses; TotalLines and
// LastPage describe the geometry of the page the learner is on.
type Completion struct {
	Stage      StageID `json:"stage"`
	Line       int     `json:"line"`
	TotalLines int     `json:"total_lines"`
	LastPage   bool    `json:"last_page"`
}

// Matches reports whether c addresses pos. A completion that does not match
// is stale: it describes work at a position the learner has already left, or
// never reached.
func (c Completion) Matches(pos LearnerPosition) bool {
	return c.Stage == pos.Stage && c.Line == pos.Line
}

// simple reports whether the page has no second half.
func (c Completion) simple() bool {
	return c.TotalLines <= firstHalfLines
}

// Advance computes the position after c is applied to pos. It returns the
// next position and whether the learner moved.
//
// Advance is pure: it rejects rather than repairs. A completion that does
// not match pos, names an invalid stage, or places its line outside the
// stage's range returns (pos, false) unchanged. Completing FullPage on the
// last page also returns (pos, false): the pipeline is finished and there is
// nowhere left to go.
func Advance(pos LearnerPosition, c Completion) (LearnerPosition, bool) {
	if !c.Stage.IsValid() || !c.Matches(pos) || c.TotalLines < 1 || c.Line < 1 {
		return pos, false
	}

	// Pages without a second half run Learn1 over every line and then go
	// straight to FullPage.
	if c.simple() {
		switch c.Stage {
		case StageLearn1:
			if c.Line > c.TotalLines {
				return pos, false
			}
			if c.Line < c.TotalLines {
				return LearnerPosition{Page: pos.Page, Line: c.Line + 1, Stage: StageLearn1}, true
			}
			return LearnerPosition{Page: pos.Page, Line: 1, Stage: StageFullPage}, true
		case StageFullPage:
			return advanceFullPage(pos, c)
		default:
			return pos, false
		}
	}

	switch c.Stage {
	case StageLearn1:
		if c.Line > firstHalfLines {
			return pos, false
		}
		if c.Line < firstHalfLines {
			return LearnerPosition{Page: pos.Page, Line: c.Line + 1, Stage: StageLearn1}, true
		}
		return LearnerPosition{Page: pos.Page, Line: 1, Stage: StageJoin1}, true

	case StageJoin1:
		if c.Line != 1 {
			return pos, false
		}
		return LearnerPosition{Page: pos.Page, Line: firstHalfLines + 1, Stage: StageLearn2}, true

	case StageLearn2:
		if c.Line <= firstHalfLines || c.Line > c.TotalLines {
			return pos, false
		}
		if c.Line < c.TotalLines {
			return LearnerPosition{Page: pos.Page, Line: c.Line + 1, Stage: StageLearn2}, true
		}
		return LearnerPosition{Page: pos.Page, Line: firstHalfLines + 1, Stage: StageJoin2}, true

	case StageJoin2:
		if c.Line != firstHalfLines+1 {
			return pos, false
		}
		return LearnerPosition{Page: pos.Page, Line: 1, Stage: StageFullPage}, true

	case StageFullPage:
		return advanceFullPage(pos, c)
	}
	return pos, false
}

func advanceFullPage(pos LearnerPosition, c Completion) (LearnerPosition, bool) {
	if c.Line != 1 {
		return pos, false
	}
	if c.LastPage {
		// The final page of the mushaf: terminal, nothing to advance to.
		return pos, false
	}
	return LearnerPosition{Page: pos.Page + 1, Line: 1, Stage: StageLearn1}, true
}
