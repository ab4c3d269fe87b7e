package review_test

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hifzlab/tasmee/internal/hifz"
	"github.com/hifzlab/tasmee/internal/recite"
	"github.com/hifzlab/tasmee/internal/review"
)

func TestFileStore_AppendAndList(t *testing.T) {
	t.Parallel()

	store := review.NewFileStore(filepath.Join(t.TempDir(), "review.jsonl"))

	first := review.Entry{
		Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Learner:   "amina",
		Page:      5,
		Line:      3,
		Stage:     hifz.StageLearn1,
		Score:     62,
		Errors: []recite.WordError{
			{Word: "الرحيم", Position: 3, Type: recite.ErrorMissing},
		},
		Transcript: "بسم الله الرحمن",
	}
	if err := store.Append(first); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Append(review.Entry{Learner: "bilal", Page: 12, Line: 1, Stage: hifz.StageJoin2, Score: 48}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(List) = %d, want 2", len(got))
	}
	if got[0].Learner != "amina" || got[0].Score != 62 || !got[0].Timestamp.Equal(first.Timestamp) {
		t.Errorf("List[0] = %+v, want the first entry", got[0])
	}
	if len(got[0].Errors) != 1 || got[0].Errors[0].Word != "الرحيم" {
		t.Errorf("List[0].Errors = %+v", got[0].Errors)
	}
	// The store stamps entries that arrive without a timestamp.
	if got[1].Timestamp.IsZero() {
		t.Error("List[1].Timestamp is zero")
	}
}

func TestFileStore_ListMissingFile(t *testing.T) {
	t.Parallel()

	store := review.NewFileStore(filepath.Join(t.TempDir(), "absent.jsonl"))
	got, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("List = %d entries, want none", len(got))
	}
}

func TestFileStore_ConcurrentAppends(t *testing.T) {
	t.Parallel()

	store := review.NewFileStore(filepath.Join(t.TempDir(), "review.jsonl"))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.Append(review.Entry{Learner: "amina", Page: 1, Line: 1, Stage: hifz.StageLearn1, Score: 50}); err != nil {
				t.Errorf("Append: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 10 {
		t.Errorf("len(List) = %d, want 10", len(got))
	}
}
