package wordmatch

import (
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/hifzlab/tasmee/internal/recite/arabic"
)

// VariantsFile is the top-level structure of a spelling-variants YAML file.
//
// Example:
//
//	variants:
//	  صلوه: [صلاه]
//	  داود: [داوود]
//
// Keys are canonical-script spellings, values are accepted transcript
// spellings. Entries may be written with diacritics; they are normalized
// during table construction.
type VariantsFile struct {
	Variants map[string][]string `yaml:"variants"`
}

// Table is an immutable bidirectional index of accepted spelling-variant
// pairs. Lookup is symmetric: if the table was built with canonical → variant,
// then Equivalent(variant, canonical) holds as well. The reverse direction is
// precomputed at construction, never derived per call.
//
// A Table is read-only after construction and safe for concurrent use.
type Table struct {
	pairs map[string]map[string]struct{}
	size  int
}

// NewTable builds a Table from canonical → variants entries. Both sides of
// every pair are normalized with [arabic.Normalize]; entries that normalize
// to the empty string are dropped.
func NewTable(entries map[string][]string) *Table {
	t := &Table{pairs: make(map[string]map[string]struct{}, len(entries)*2)}
	for canonical, variants := range entries {
		c := arabic.Normalize(canonical)
		if c == "" {
			continue
		}
		for _, variant := range variants {
			v := arabic.Normalize(variant)
			if v == "" || v == c {
				continue
			}
			t.insert(c, v)
			t.insert(v, c)
			t.size++
		}
	}
	return t
}

func (t *Table) insert(from, to string) {
	set, ok := t.pairs[from]
	if !ok {
		set = make(map[string]struct{}, 1)
		t.pairs[from] = set
	}
	set[to] = struct{}{}
}

// Equivalent reports whether (a, b) is an accepted variant pair, in either
// direction.
func (t *Table) Equivalent(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	_, ok := t.pairs[a][b]
	return ok
}

// Size returns the number of variant pairs the table was built from.
func (t *Table) Size() int { return t.size }

// LoadTableFile reads and parses a spelling-variants YAML file from disk.
func LoadTableFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wordmatch: open variants file %q: %w", path, err)
	}
	defer f.Close()

	t, err := LoadTableFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("wordmatch: parse variants file %q: %w", path, err)
	}
	return t, nil
}

// LoadTableFromReader parses spelling-variants YAML from an [io.Reader].
// The reader is consumed entirely; the caller is responsible for closing it.
func LoadTableFromReader(r io.Reader) (*Table, error) {
	var vf VariantsFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // reject unknown top-level keys to catch typos
	if err := dec.Decode(&vf); err != nil {
		return nil, fmt.Errorf("wordmatch: decode variants yaml: %w", err)
	}
	return NewTable(vf.Variants), nil
}

// builtinVariants lists the spelling-variant pairs that ship with the
// matcher: nouns the canonical script writes with waw where modern spelling
// uses alef (with and without the superscript alef some source texts carry),
// sibilant substitutions attested across readings, and surah-opening letter
// names that transcripts spell out.
//
// All entries are already in normalized form (teh marbuta written as heh).
var builtinVariants = map[string][]string{
	"صلوه":    {"صلاه"},
	"صلواه":   {"صلاه"},
	"زكوه":    {"زكاه"},
	"زكواه":   {"زكاه"},
	"حيوه":    {"حياه"},
	"حيواه":   {"حياه"},
	"ربوا":    {"ربا"},
	"مشكوه":   {"مشكاه"},
	"مشكواه":  {"مشكاه"},
	"منوه":    {"مناه"},
	"منواه":   {"مناه"},
	"غدوه":    {"غداه"},
	"غدواه":   {"غداه"},
	"نجوه":    {"نجاه"},
	"نجواه":   {"نجاه"},
	"توريه":   {"توراه"},
	"تورياه":  {"توراه"},
	"داود":    {"داوود"},
	"طه":      {"طاها"},
	"يس":      {"ياسين"},
	"يبصط":    {"يبسط"},
	"مصيطرون": {"مسيطرون"},
	"بمصيطر":  {"بمسيطر"},
	"صراط":    {"سراط"},
}

var (
	builtinOnce  sync.Once
	builtinTable *Table
)

// Builtin returns the table built from [builtinVariants]. The table is built
// once and shared; it is immutable, so sharing is safe.
func Builtin() *Table {
	builtinOnce.Do(func() {
		builtinTable = NewTable(builtinVariants)
	})
	return builtinTable
}
