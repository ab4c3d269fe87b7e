// Package arabic canonicalizes Arabic text so that words from the Uthmani
// script and words from a modern speech-to-text transcript can be compared
// directly.
//
// Normalize applies exactly these transformations and no others:
//
//   - all tashkeel and Quranic annotation marks are removed
//   - all alef variants (hamza above, hamza below, madda, superscript alef,
//     alef wasla) are collapsed to plain alef
//   - hamza carriers on waw and yeh are collapsed to the bare hamza letter
//   - teh marbuta is mapped to heh
//   - alef maksura is mapped to yeh
//   - tatweel is removed
//   - verse-end markers and digits of every script (Arabic-Indic, extended
//     Arabic-Indic, ASCII) are removed
//   - common Arabic and Latin punctuation is removed
//   - leading and trailing whitespace is trimmed
//
// Normalization is pure, deterministic and idempotent:
// Normalize(Normalize(s)) == Normalize(s) for every input.
//
// All functions are safe for concurrent use by multiple goroutines.
package arabic

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize returns the canonical comparison form of s. A token that consists
// only of removed material (a verse marker, an ayah number, bare punctuation)
// normalizes to the empty string; callers use that to recognize tokens that
// carry no recitable content.
func Normalize(s string) string {
	if s == "" {
		return s
	}

	// Compose first so that decomposed hamza sequences (alef + combining
	// hamza) become the single precomposed letters the fold table expects.
	s = norm.NFC.String(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isRemoved(r) {
			continue
		}
		b.WriteRune(fold(r))
	}
	return strings.TrimSpace(b.String())
}

// Fields splits s on whitespace and normalizes every token, dropping tokens
// that normalize to the empty string. The result contains only recitable
// words in canonical form.
func Fields(s string) []string {
	raw := strings.Fields(s)
	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		if n := Normalize(tok); n != "" {
			out = append(out, n)
		}
	}
	return out
}
