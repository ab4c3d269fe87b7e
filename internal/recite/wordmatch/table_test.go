package wordmatch

import (
	"strings"
	"testing"
)

func TestLoadTableFromReader(t *testing.T) {
	t.Parallel()

	const doc = `
variants:
  صلوه: [صلاه]
  داود: [داوود]
`
	table, err := LoadTableFromReader(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadTableFromReader() error: %v", err)
	}
	if got := table.Size(); got != 2 {
		t.Errorf("Size() = %d, want 2", got)
	}
	if !table.Equivalent("صلوه", "صلاه") {
		t.Error("Equivalent(صلوه, صلاه) = false, want true")
	}
	if !table.Equivalent("صلاه", "صلوه") {
		t.Error("Equivalent(صلاه, صلوه) = false, want true (reverse index)")
	}
	if table.Equivalent("صلوه", "داوود") {
		t.Error("Equivalent(صلوه, داوود) = true, want false")
	}
}

func TestLoadTableFromReaderRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	const doc = `
variants:
  صلوه: [صلاه]
aliases:
  a: [b]
`
	if _, err := LoadTableFromReader(strings.NewReader(doc)); err == nil {
		t.Fatal("LoadTableFromReader() with unknown top-level key: got nil error, want error")
	}
}

// Entries written with diacritics or unfolded letters must land in the table
// in normalized form, since lookups happen on normalized words.
func TestNewTableNormalizesEntries(t *testing.T) {
	t.Parallel()

	table := NewTable(map[string][]string{
		"الصَّلَوٰةَ": {"الصلاة"},
	})
	if !table.Equivalent("الصلواه", "الصلاه") {
		t.Error("Equivalent(normalized forms) = false, want true")
	}
}

func TestNewTableDropsDegenerateEntries(t *testing.T) {
	t.Parallel()

	table := NewTable(map[string][]string{
		"٣":    {"كلمه"}, // key normalizes to empty
		"كلمه": {"كلمه"}, // variant identical to key
	})
	if got := table.Size(); got != 0 {
		t.Errorf("Size() = %d, want 0", got)
	}
	if table.Equivalent("", "كلمه") {
		t.Error("Equivalent with empty side = true, want false")
	}
}

func TestBuiltinTableShared(t *testing.T) {
	t.Parallel()

	if Builtin() != Builtin() {
		t.Error("Builtin() returned distinct tables, want the shared instance")
	}
	if Builtin().Size() == 0 {
		t.Error("Builtin() table is empty")
	}
}
