// Package recite scores a speech-to-text transcript of Quran recitation
// against the expected Uthmani text of a passage.
//
// The entry point is the [Verifier] interface, implemented by [Engine]. A
// verification runs up to two stages:
//
//  1. Alignment: expected words and transcript tokens are normalized and
//     walked in a single greedy pass, producing a deterministic score and a
//     per-word match report.
//  2. Semantic refinement (optional): a language model reviews imperfect
//     results and may override the raw score and error list. Any provider
//     failure falls back silently to the raw result.
package recite

import "context"

// Strictness selects how tolerant alignment is of ordering drift. Higher
// levels shrink the look-ahead window, so a word must appear closer to its
// expected position to count as correct.
type Strictness int

const (
	// Lenient scans up to five tokens ahead for each expected word.
	Lenient Strictness = iota + 1
	// Standard scans up to three tokens ahead.
	Standard
	// Strict requires each word at its exact position.
	Strict
)

// IsValid reports whether s is one of the defined strictness levels.
func (s Strictness) IsValid() bool {
	return s >= Lenient && s <= Strict
}

// Window returns the look-ahead window size for s, in transcript tokens.
func (s Strictness) Window() int {
	switch s {
	case Lenient:
		return 5
	case Strict:
		return 1
	default:
		return 3
	}
}

func (s Strictness) String() string {
	switch s {
	case Lenient:
		return "lenient"
	case Standard:
		return "standard"
	case Strict:
		return "strict"
	default:
		return "unknown"
	}
}

// MatchStatus is the per-word outcome of alignment.
type MatchStatus string

const (
	StatusCorrect MatchStatus = "correct"
	StatusWrong   MatchStatus = "wrong"
	StatusMissing MatchStatus = "missing"
)

// WordMatch records how one expected word fared during alignment. Position
// indexes into the expected word sequence, not the transcript.
type WordMatch struct {
	Position int         `json:"position"`
	Expected string      `json:"expected"`
	Actual   string      `json:"actual,omitempty"`
	Status   MatchStatus `json:"status"`
}

// ErrorType classifies a recitation error.
type ErrorType string

const (
	// ErrorMissing marks an expected word with no transcript counterpart.
	ErrorMissing ErrorType = "missing"
	// ErrorWrong marks an expected word recited as something else.
	ErrorWrong ErrorType = "wrong"
	// ErrorExtra marks a word recited that the passage does not contain.
	// Alignment never emits it; only semantic refinement does.
	ErrorExtra ErrorType = "extra"
)

// WordError is one recitation error. Position indexes into the expected word
// sequence.
type WordError struct {
	Word     string    `json:"word"`
	Position int       `json:"position"`
	Type     ErrorType `json:"type"`
}

// AlignmentResult is the outcome of the raw alignment stage.
type AlignmentResult struct {
	// Score is the percentage of recitable expected words matched, rounded
	// to the nearest integer. 0 when the expected sequence holds no
	// recitable words.
	Score   int         `json:"score"`
	Errors  []WordError `json:"errors"`
	Matches []WordMatch `json:"matches"`
}

// Request describes one verification.
type Request struct {
	// Transcript is the raw speech-to-text output.
	Transcript string

	// ExpectedText is the expected passage as a single string. Alignment
	// uses ExpectedWords; this field feeds semantic refinement prompts and
	// serves as a fallback word source.
	ExpectedText string

	// ExpectedWords is the expected passage split into words, in mushaf
	// order, including any verse markers. When empty it is derived from
	// ExpectedText by whitespace splitting.
	ExpectedWords []string

	// Strictness defaults to Standard when unset or invalid.
	Strictness Strictness

	// UseSemanticRefinement asks for language-model review of imperfect
	// scores. Ignored when the engine has no refiner.
	UseSemanticRefinement bool
}

// Result is the outcome of a verification.
type Result struct {
	Score  int         `json:"score"`
	Errors []WordError `json:"errors"`

	// Matches always reflects the raw alignment, even when refinement
	// overrode Score and Errors.
	Matches []WordMatch `json:"matches"`

	// Refined reports whether semantic refinement overrode the raw
	// alignment outcome.
	Refined bool `json:"refined"`

	// Rationale is the refiner's explanation. Empty unless Refined.
	Rationale string `json:"rationale,omitempty"`
}

// Verifier scores a recitation transcript against expected text.
//
// Contract:
//   - Verify returns a non-nil Result when error is nil.
//   - The raw alignment is deterministic: the same Request yields the same
//     Score, Errors and Matches whenever refinement is disabled or skipped.
//   - An empty expected sequence yields a zero-valued Result, not an error.
//   - Implementations must be safe for concurrent use.
type Verifier interface {
	Verify(ctx context.Context, req Request) (*Result, error)
}
