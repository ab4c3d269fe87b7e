// Package hifz drives a learner's progress through the page memorization
// pipeline.
//
// Every page of the mushaf is memorized in five stages: the first half is
// learned line by line (Learn1) and then joined into one recitation (Join1),
// the second half likewise (Learn2, Join2), and finally the whole page is
// recited in one piece (FullPage). Short pages with no second half collapse
// to Learn1 followed directly by FullPage.
//
// The package separates three concerns:
//
//   - [Advance] is the pure transition function over [LearnerPosition]. It
//     rejects signals that do not address the current position, so stale or
//     duplicated completions can never move a learner.
//   - [Plan] turns a position into a concrete [Task]: which lines to recite,
//     how many times, and by when.
//   - [Service] orchestrates both over a [Store], applying completions
//     transactionally so concurrent submissions advance a learner at most
//     once.
package hifz

// StageID identifies a stage of the page memorization pipeline.
type StageID string

const (
	// StageLearn1 memorizes the first half of the page line by line.
	StageLearn1 StageID = "learn1"
	// StageJoin1 recites the first half as one piece.
	StageJoin1 StageID = "join1"
	// StageLearn2 memorizes the second half line by line.
	StageLearn2 StageID = "learn2"
	// StageJoin2 recites the second half as one piece.
	StageJoin2 StageID = "join2"
	// StageFullPage recites the whole page from memory.
	StageFullPage StageID = "full_page"
)

// IsValid reports whether s is one of the defined stages.
func (s StageID) IsValid() bool {
	switch s {
	case StageLearn1, StageJoin1, StageLearn2, StageJoin2, StageFullPage:
		return true
	default:
		return false
	}
}

// Unit reports whether the stage works one line at a time.
func (s StageID) Unit() bool {
	return s == StageLearn1 || s == StageLearn2
}

// Bulk reports whether the stage recites a whole span in one piece.
func (s StageID) Bulk() bool {
	return s == StageJoin1 || s == StageJoin2 || s == StageFullPage
}

func (s StageID) String() string { return string(s) }
