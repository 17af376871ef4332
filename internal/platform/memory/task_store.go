// Package memory provides an in-process store.TaskStore. It is not durable
// and is meant for tests and single-process development runs.
package memory

import (
	"context"
	"sync"

	"github.com/phrazzld/goalq/internal/domain"
	"github.com/phrazzld/goalq/internal/store"
)

// TaskStore keeps tasks in a map guarded by a RWMutex.
// Every returned task is a copy.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*domain.Task
}

// NewTaskStore returns an empty store.
func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[string]*domain.Task)}
}

var _ store.TaskStore = (*TaskStore)(nil)

// Create implements store.TaskStore.
func (s *TaskStore) Create(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[task.ID]; ok {
		return store.ErrTaskExists
	}
	s.tasks[task.ID] = task.Clone()
	return nil
}

// Get implements store.TaskStore.
func (s *TaskStore) Get(ctx context.Context, id string) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return task.Clone(), nil
}

// List implements store.TaskStore.
func (s *TaskStore) List(ctx context.Context, opts store.ListOptions) ([]*domain.Task, error) {
	s.mu.RLock()
	tasks := make([]*domain.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, task.Clone())
	}
	s.mu.RUnlock()

	return store.ApplyListOptions(tasks, opts), nil
}

// Move implements store.TaskStore. The state check and the swap happen
// under the write lock, which makes the first mover the only winner.
func (s *TaskStore) Move(ctx context.Context, m store.Move) (*domain.Task, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.tasks[m.TaskID]
	if !ok {
		return nil, store.ErrTaskNotFound
	}

	next, err := m.Apply(current)
	if err != nil {
		return nil, err
	}
	s.tasks[m.TaskID] = next
	return next.Clone(), nil
}
