package hifz

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store]. It is
// suitable for development and testing; positions and tasks vanish on
// restart. The zero value is ready to use.
type MemStore struct {
	mu        sync.RWMutex
	positions map[string]LearnerPosition
	tasks     map[string]map[uuid.UUID]Task
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{
		positions: make(map[string]LearnerPosition),
		tasks:     make(map[string]map[uuid.UUID]Task),
	}
}

// Position implements [Store.Position].
func (s *MemStore) Position(ctx context.Context, learner string) (LearnerPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.positions[learner]
	if !ok {
		return LearnerPosition{}, ErrLearnerNotFound
	}
	return pos, nil
}

// SetPosition implements [Store.SetPosition].
func (s *MemStore) SetPosition(ctx context.Context, learner string, pos LearnerPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.positions == nil {
		s.positions = make(map[string]LearnerPosition)
	}
	s.positions[learner] = pos
	return nil
}

// Advance implements [Store.Advance]. The write lock spans the whole
// read-modify-write, so concurrent advances for any learner serialize and
// the loser of a race sees the winner's position.
func (s *MemStore) Advance(ctx context.Context, learner string, fn AdvanceFunc) (LearnerPosition, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.positions[learner]
	if !ok {
		return LearnerPosition{}, false, ErrLearnerNotFound
	}
	next, advanced, err := fn(pos)
	if err != nil {
		return pos, false, err
	}
	if advanced {
		s.positions[learner] = next
	}
	return next, advanced, nil
}

// Task implements [Store.Task].
func (s *MemStore) Task(ctx context.Context, learner string, id uuid.UUID) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[learner][id]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	return t, nil
}

// CreateTask implements [Store.CreateTask].
func (s *MemStore) CreateTask(ctx context.Context, t Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tasks == nil {
		s.tasks = make(map[string]map[uuid.UUID]Task)
	}
	byID, ok := s.tasks[t.Learner]
	if !ok {
		byID = make(map[uuid.UUID]Task)
		s.tasks[t.Learner] = byID
	}
	byID[t.ID] = t
	return nil
}

// UpdateTask implements [Store.UpdateTask].
func (s *MemStore) UpdateTask(ctx context.Context, learner string, id uuid.UUID, fn func(*Task) error) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[learner][id]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	if err := fn(&t); err != nil {
		return Task{}, err
	}
	s.tasks[learner][id] = t
	return t, nil
}

// Tasks implements [Store.Tasks].
func (s *MemStore) Tasks(ctx context.Context, learner string) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Task, 0, len(s.tasks[learner]))
	for _, t := range s.tasks[learner] {
		result = append(result, t)
	}
	slices.SortFunc(result, func(a, b Task) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return result, nil
}
