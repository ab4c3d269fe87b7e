package recite

import (
	"math"
	"strings"

	"github.com/hifzlab/tasmee/internal/recite/arabic"
	"github.com/hifzlab/tasmee/internal/recite/wordmatch"
)

// Aligner walks the expected words and the transcript tokens in a single
// greedy pass. A cursor into the transcript only ever moves forward; each
// expected word scans a bounded look-ahead window starting at the cursor, so
// one pathological token can never smear errors across the whole passage.
//
// The greedy walk never backtracks. Swapped adjacent words therefore cost
// two errors rather than one: the first word matches ahead and the cursor
// skips the token that the second word needed.
//
// An Aligner is read-only after construction and safe for concurrent use.
type Aligner struct {
	matcher *wordmatch.Matcher
}

// NewAligner returns an Aligner using m for word equivalence. A nil m gets
// the default matcher.
func NewAligner(m *wordmatch.Matcher) *Aligner {
	if m == nil {
		m = wordmatch.New()
	}
	return &Aligner{matcher: m}
}

// token is one transcript word in raw and canonical form.
type token struct {
	raw  string
	norm string
}

// Align scores expected against the transcript at the given strictness.
// Expected words that normalize to nothing (verse markers, ayah numbers) are
// recorded as correct without consuming a transcript token and stay out of
// the score denominator. An empty or marker-only expected sequence yields a
// zero-valued result.
func (a *Aligner) Align(expected []string, transcript string, strictness Strictness) AlignmentResult {
	if !strictness.IsValid() {
		strictness = Standard
	}
	tokens := tokenize(transcript)
	window := strictness.Window()

	res := AlignmentResult{
		Errors:  []WordError{},
		Matches: make([]WordMatch, 0, len(expected)),
	}

	cursor := 0
	matched, valid := 0, 0
	for i, exp := range expected {
		norm := arabic.Normalize(exp)
		if norm == "" {
			res.Matches = append(res.Matches, WordMatch{Position: i, Expected: exp, Status: StatusCorrect})
			continue
		}
		valid++

		hit := -1
		for j := cursor; j < len(tokens) && j < cursor+window; j++ {
			if a.matcher.Match(norm, tokens[j].norm) {
				hit = j
				break
			}
		}
		if hit >= 0 {
			// Tokens the window jumped over are spoken insertions; the
			// cursor abandons them for good.
			res.Matches = append(res.Matches, WordMatch{
				Position: i,
				Expected: exp,
				Actual:   tokens[hit].raw,
				Status:   StatusCorrect,
			})
			cursor = hit + 1
			matched++
			continue
		}

		if cursor < len(tokens) {
			// Consume one token so a single wrong word costs a single
			// error instead of shifting every later comparison.
			res.Matches = append(res.Matches, WordMatch{
				Position: i,
				Expected: exp,
				Actual:   tokens[cursor].raw,
				Status:   StatusWrong,
			})
			res.Errors = append(res.Errors, WordError{Word: exp, Position: i, Type: ErrorWrong})
			cursor++
		} else {
			res.Matches = append(res.Matches, WordMatch{Position: i, Expected: exp, Status: StatusMissing})
			res.Errors = append(res.Errors, WordError{Word: exp, Position: i, Type: ErrorMissing})
		}
	}

	if valid > 0 {
		res.Score = int(math.Round(float64(matched) / float64(valid) * 100))
	}
	return res
}

// tokenize splits the transcript on whitespace and normalizes each token,
// dropping tokens with no recitable content. The raw spelling is kept for
// error reporting.
func tokenize(transcript string) []token {
	raw := strings.Fields(transcript)
	out := make([]token, 0, len(raw))
	for _, w := range raw {
		if n := arabic.Normalize(w); n != "" {
			out = append(out, token{raw: w, norm: n})
		}
	}
	return out
}
