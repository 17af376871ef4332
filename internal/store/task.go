package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/phrazzld/goalq/internal/domain"
)

// ListOptions filters a task listing. A zero State lists every state;
// a zero Limit returns everything.
type ListOptions struct {
	State domain.TaskState
	Limit int
}

// Move is a single compare-and-swap transition of one task.
type Move struct {
	TaskID string
	From   domain.TaskState
	To     domain.TaskState
	At     time.Time
	// Result is recorded when To is completed or failed.
	Result json.RawMessage
}

// Validate rejects moves that are not lifecycle edges.
func (m Move) Validate() error {
	if m.TaskID == "" {
		return domain.NewValidationError("id", "cannot be empty", domain.ErrInvalidTaskID)
	}
	if !domain.CanTransition(m.From, m.To) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, m.From, m.To)
	}
	return nil
}

// Apply performs the move on a copy of task. It returns ErrStateConflict
// when the task is not in m.From.
func (m Move) Apply(task *domain.Task) (*domain.Task, error) {
	if task.State != m.From {
		return nil, ErrStateConflict
	}
	next := task.Clone()
	if err := next.Transition(m.To, m.At, m.Result); err != nil {
		return nil, err
	}
	return next, nil
}

// TaskStore defines the interface for task persistence.
type TaskStore interface {
	// Create persists a new queued task.
	// Returns ErrTaskExists if the id was ever used before.
	Create(ctx context.Context, task *domain.Task) error

	// Get retrieves a task by id.
	// Returns ErrTaskNotFound if it does not exist.
	Get(ctx context.Context, id string) (*domain.Task, error)

	// List returns a snapshot ordered by created_at ascending, ties by id.
	// A task being moved concurrently appears exactly once.
	List(ctx context.Context, opts ListOptions) ([]*domain.Task, error)

	// Move atomically transitions a task from m.From to m.To. Among
	// concurrent movers of the same task exactly one succeeds; the others
	// get ErrStateConflict. Returns ErrTaskNotFound if the task does not exist.
	Move(ctx context.Context, m Move) (*domain.Task, error)
}

// SortTasks orders tasks by created_at ascending, breaking ties by id.
func SortTasks(tasks []*domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
}

// ApplyListOptions filters by state, sorts and truncates tasks in place.
func ApplyListOptions(tasks []*domain.Task, opts ListOptions) []*domain.Task {
	if opts.State != "" {
		filtered := tasks[:0]
		for _, t := range tasks {
			if t.State == opts.State {
				filtered = append(filtered, t)
			}
		}
		tasks = filtered
	}

	SortTasks(tasks)

	if opts.Limit > 0 && len(tasks) > opts.Limit {
		tasks = tasks[:opts.Limit]
	}
	return tasks
}
