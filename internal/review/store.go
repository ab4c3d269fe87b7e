// Package review persists recitation attempts that scored below the
// review threshold, so a teacher can listen to the disputed lines later.
// Attempts are stored as append-only JSON lines in a local file, suitable
// for a single-circle deployment.
//
// For production use, this should be replaced with a PostgreSQL-backed
// implementation.
package review

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/hifzlab/tasmee/internal/hifz"
	"github.com/hifzlab/tasmee/internal/recite"
)

// Entry is a single reviewable attempt written to the file store.
type Entry struct {
	Timestamp  time.Time          `json:"timestamp"`
	Learner    string             `json:"learner"`
	Page       int                `json:"page"`
	Line       int                `json:"line"`
	Stage      hifz.StageID       `json:"stage"`
	Score      int                `json:"score"`
	Errors     []recite.WordError `json:"errors,omitempty"`
	Transcript string             `json:"transcript,omitempty"`
}

// FileStore persists review entries as JSON lines in a local file.
// Thread-safe for concurrent use.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a FileStore that writes to the given path.
// The file is created if it does not exist.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Append writes one entry to the file. A zero Timestamp is filled with the
// current time.
func (fs *FileStore) Append(e Entry) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("review: marshal: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(fs.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("review: open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("review: write: %w", err)
	}
	// The queue is the only record of a disputed attempt; flush it.
	if err := f.Sync(); err != nil {
		return fmt.Errorf("review: sync: %w", err)
	}
	return nil
}

// List reads back every entry in the file, oldest first. A missing file is
// an empty queue, not an error.
func (fs *FileStore) List() ([]Entry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, err := os.Open(fs.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("review: open file: %w", err)
	}
	defer f.Close()

	entries := []Entry{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("review: parse entry %d: %w", len(entries)+1, err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("review: read file: %w", err)
	}
	return entries, nil
}
