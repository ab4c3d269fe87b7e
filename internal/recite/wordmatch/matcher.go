// Package wordmatch decides whether two normalized Arabic words denote the
// same recitation unit, bridging the canonical Uthmani orthography and the
// modern spelling conventions of speech-to-text output.
//
// [Matcher.Match] applies a fixed decision order; the first rule that fires
// wins:
//
//  1. Exact equality.
//  2. Definite-article elision: either word with a leading article prefix
//     removed (an optional hamza-variant letter followed by lam) equals the
//     other, in all four stripped/unstripped combinations.
//  3. Internal-alef elision: either word with all non-initial alefs removed
//     equals the other, same four-combination check. This absorbs the extra
//     medial alefs the canonical script writes (or omits) relative to modern
//     spelling.
//  4. Both reductions applied to both sides, compared.
//  5. Whitelist lookup against a static [Table] of known variant pairs,
//     symmetric, tried with and without the article on either side.
//  6. Containment: the candidate contains the expected word (or its
//     article-stripped form) as a substring of at least three runes. This
//     absorbs adjacent words the speech engine merged into one token.
//
// Inputs must already be in [arabic.Normalize] form; the matcher performs no
// normalization of its own.
//
// A Matcher is read-only after construction and safe for concurrent use.
package wordmatch

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// containmentMinRunes is the minimum substring length (in runes) for the
// merged-word containment rule. Shorter fragments match too freely in a
// script where many particles are two letters long.
const containmentMinRunes = 3

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithTable sets the spelling-variant table consulted by the whitelist rule.
// Default: [Builtin].
func WithTable(t *Table) Option {
	return func(m *Matcher) {
		m.table = t
	}
}

// Matcher reports equivalence of normalized word pairs. All methods are safe
// for concurrent use — the Matcher is read-only after construction.
type Matcher struct {
	table *Table
}

// New returns a new [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{table: Builtin()}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Table returns the variant table the matcher consults.
func (m *Matcher) Table() *Table { return m.table }

// Match reports whether candidate is an acceptable rendering of expected.
// Both arguments must be normalized. The decision order is documented on the
// package; rules 1–5 are symmetric in practice, rule 6 (containment) is
// directional: the transcript token is the candidate.
func (m *Matcher) Match(expected, candidate string) bool {
	if expected == "" || candidate == "" {
		return expected == candidate
	}

	// 1. Exact equality.
	if expected == candidate {
		return true
	}

	ea := stripArticle(expected)
	ca := stripArticle(candidate)

	// 2. Article elision, four combinations (the both-unstripped case is
	// rule 1).
	if equalAny(ea, candidate) || equalAny(expected, ca) || equalAny(ea, ca) {
		return true
	}

	// 3. Internal-alef elision, four combinations.
	ei := stripInnerAlef(expected)
	ci := stripInnerAlef(candidate)
	if equalAny(ei, candidate) || equalAny(expected, ci) || equalAny(ei, ci) {
		return true
	}

	// 4. Both reductions on both sides.
	if eac, cac := stripInnerAlef(ea), stripInnerAlef(ca); equalAny(eac, cac) {
		return true
	}

	// 5. Whitelist, symmetric, article-tolerant.
	if m.table.Equivalent(expected, candidate) ||
		m.table.Equivalent(ea, candidate) ||
		m.table.Equivalent(expected, ca) ||
		m.table.Equivalent(ea, ca) {
		return true
	}

	// 6. Merged-word containment.
	if containsRunes(candidate, expected) || containsRunes(candidate, ea) {
		return true
	}

	return false
}

// Closeness returns a similarity score in [0,1] between two normalized
// words. It is a diagnostic annotation for non-matching pairs and has no
// influence on [Matcher.Match].
func (m *Matcher) Closeness(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	return matchr.JaroWinkler(a, b, false)
}

// equalAny compares two reduced forms, treating the empty string as
// no-match. Reductions that consume a whole word (an article-only token)
// must not compare equal to anything.
func equalAny(a, b string) bool {
	return a != "" && a == b
}

// stripArticle removes a leading definite-article prefix: an optional
// hamza-variant letter (plain alef or bare hamza after normalization)
// followed by lam. Returns w unchanged when no article prefix is present.
func stripArticle(w string) string {
	r := []rune(w)
	i := 0
	if i < len(r) && (r[i] == 'ا' || r[i] == 'ء') {
		i++
	}
	if i < len(r) && r[i] == 'ل' {
		return string(r[i+1:])
	}
	return w
}

// stripInnerAlef removes every alef except one in the leading position.
func stripInnerAlef(w string) string {
	r := []rune(w)
	out := make([]rune, 0, len(r))
	for i, c := range r {
		if c == 'ا' && i > 0 {
			continue
		}
		out = append(out, c)
	}
	return string(out)
}

// containsRunes reports whether haystack contains needle as a substring and
// needle is at least containmentMinRunes runes long.
func containsRunes(haystack, needle string) bool {
	if needle == "" || len([]rune(needle)) < containmentMinRunes {
		return false
	}
	return strings.Contains(haystack, needle)
}
