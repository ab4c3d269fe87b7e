package arabic

import (
	"strings"
	"unicode"
)

// Letters that every variant folds onto.
const (
	alef  = 'ا' // ا
	hamza = 'ء' // ء
	heh   = 'ه' // ه
	yeh   = 'ي' // ي
)

// fold collapses orthographic letter variants onto their canonical letter.
// Every output of fold is a fixed point of fold, which is what makes
// Normalize idempotent.
func fold(r rune) rune {
	switch r {
	case 'آ', // آ alef with madda
		'أ', // أ alef with hamza above
		'إ', // إ alef with hamza below
		'ٰ', // ٰ superscript (dagger) alef
		'ٱ': // ٱ alef wasla
		return alef
	case 'ؤ', // ؤ waw with hamza
		'ئ': // ئ yeh with hamza
		return hamza
	case 'ة': // ة teh marbuta
		return heh
	case 'ى': // ى alef maksura
		return yeh
	}
	return r
}

// tashkeelAndMarks covers the Arabic diacritics and Quranic annotation signs
// that appear in the canonical text but are never produced by speech-to-text.
// U+0670 (superscript alef) is deliberately absent: it folds to alef instead
// of being stripped, because the canonical script uses it as a full vowel
// letter (e.g. in الرحمٰن).
var tashkeelAndMarks = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x0610, Hi: 0x061A, Stride: 1}, // honorifics, small marks
		{Lo: 0x064B, Hi: 0x065F, Stride: 1}, // fathatan .. wavy hamza below
		{Lo: 0x06D6, Hi: 0x06DC, Stride: 1}, // small high ligatures, stop signs
		{Lo: 0x06DF, Hi: 0x06E4, Stride: 1}, // small high/low marks, madda
		{Lo: 0x06E7, Hi: 0x06E8, Stride: 1}, // small high yeh, noon
		{Lo: 0x06EA, Hi: 0x06ED, Stride: 1}, // empty centre marks, small low meem
	},
}

// verseMarkers are the signs that delimit or decorate ayah boundaries.
var verseMarkers = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x06DD, Hi: 0x06DE, Stride: 1}, // ۝ end of ayah, ۞ rub el hizb
		{Lo: 0x06E9, Hi: 0x06E9, Stride: 1}, // ۩ sajdah
		{Lo: 0xFD3E, Hi: 0xFD3F, Stride: 1}, // ﴾ ﴿ ornate parentheses
	},
}

// digits spans every numeral script that shows up in verse numbering.
var digits = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x0030, Hi: 0x0039, Stride: 1}, // ASCII
		{Lo: 0x0660, Hi: 0x0669, Stride: 1}, // Arabic-Indic
		{Lo: 0x06F0, Hi: 0x06F9, Stride: 1}, // extended Arabic-Indic
	},
}

const (
	tatweel = 'ـ' // ـ elongation filler

	punctuation = "،؛؟۔.,;:!?\"'()[]{}«»-–"
)

// isRemoved reports whether r carries no recitable content and is dropped
// entirely during normalization.
func isRemoved(r rune) bool {
	return r == tatweel ||
		unicode.Is(tashkeelAndMarks, r) ||
		unicode.Is(verseMarkers, r) ||
		unicode.Is(digits, r) ||
		strings.ContainsRune(punctuation, r)
}
