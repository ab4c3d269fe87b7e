// Package mushaf describes the page geometry of a printed mushaf: how many
// pages it has and how many lines each page carries. The memorization
// pipeline needs this to know where page halves split and when a learner has
// reached the final page.
package mushaf

import "fmt"

// Standard Madinah print dimensions.
const (
	standardPages = 604
	standardLines = 15

	// Pages with at most this many lines skip the half-page stages
	// entirely, since there is no second half to join.
	simplePageMaxLines = 7
)

// PageSpec is the geometry of a single page.
type PageSpec struct {
	Number int
	Lines  int
}

// Simple reports whether the page is short enough to be memorized as a
// single unit, without splitting into halves.
func (p PageSpec) Simple() bool {
	return p.Lines <= simplePageMaxLines
}

// Layout is an immutable description of every page in a mushaf print.
type Layout struct {
	pages        int
	defaultLines int
	overrides    map[int]int
}

// Standard returns the layout of the common 604-page Madinah print: 15 lines
// per page except the opening pages, which carry 8 and 7 lines.
func Standard() *Layout {
	return &Layout{
		pages:        standardPages,
		defaultLines: standardLines,
		overrides:    map[int]int{1: 8, 2: 7},
	}
}

// Custom builds a layout for a non-standard print. The overrides map lists
// pages whose line count differs from defaultLines; it may be nil.
func Custom(pages, defaultLines int, overrides map[int]int) (*Layout, error) {
	if pages < 1 {
		return nil, fmt.Errorf("mushaf: page count must be positive, got %d", pages)
	}
	if defaultLines < 1 {
		return nil, fmt.Errorf("mushaf: default line count must be positive, got %d", defaultLines)
	}
	l := &Layout{pages: pages, defaultLines: defaultLines, overrides: make(map[int]int, len(overrides))}
	for page, lines := range overrides {
		if page < 1 || page > pages {
			return nil, fmt.Errorf("mushaf: override for page %d outside 1..%d", page, pages)
		}
		if lines < 1 {
			return nil, fmt.Errorf("mushaf: override for page %d has line count %d", page, lines)
		}
		l.overrides[page] = lines
	}
	return l, nil
}

// Pages returns the total page count.
func (l *Layout) Pages() int { return l.pages }

// LastPage returns the number of the final page.
func (l *Layout) LastPage() int { return l.pages }

// IsLast reports whether n is the final page.
func (l *Layout) IsLast(n int) bool { return n == l.pages }

// Page returns the geometry of page n. ok is false when n is outside the
// layout.
func (l *Layout) Page(n int) (PageSpec, bool) {
	if n < 1 || n > l.pages {
		return PageSpec{}, false
	}
	lines := l.defaultLines
	if o, found := l.overrides[n]; found {
		lines = o
	}
	return PageSpec{Number: n, Lines: lines}, true
}
