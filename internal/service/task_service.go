package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/phrazzld/goalq/internal/domain"
	"github.com/phrazzld/goalq/internal/events"
	"github.com/phrazzld/goalq/internal/store"
	"github.com/phrazzld/goalq/internal/task"
)

// StatusAll is the list filter that matches every state.
const StatusAll = "all"

// Canceller withdraws queued tasks. It is satisfied by *task.Canceller.
type Canceller interface {
	Cancel(ctx context.Context, id string) (task.CancelResult, *domain.Task, error)
}

// SubmitRequest is a new goal. A nil MaxSteps means domain.DefaultMaxSteps,
// and an empty ID asks the service to assign one.
type SubmitRequest struct {
	ID       string
	Goal     string
	MaxSteps *int
}

// TaskService provides the task operations exposed over HTTP.
type TaskService interface {
	// Submit validates and enqueues a new task.
	Submit(ctx context.Context, req SubmitRequest) (*domain.Task, error)

	// Get returns the current snapshot of a task.
	Get(ctx context.Context, id string) (*domain.Task, error)

	// List returns tasks in the given state ("" or "all" for every state),
	// oldest first. A limit of zero means no limit.
	List(ctx context.Context, status string, limit int) ([]*domain.Task, error)

	// Cancel withdraws a queued task. When the task is past queued it returns
	// the current snapshot together with ErrCancelTooLate.
	Cancel(ctx context.Context, id string) (*domain.Task, error)
}

// TaskServiceError wraps unexpected failures with the operation that hit them.
type TaskServiceError struct {
	Operation string
	Err       error
}

// Error implements the error interface.
func (e *TaskServiceError) Error() string {
	return fmt.Sprintf("task service %s failed: %v", e.Operation, e.Err)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *TaskServiceError) Unwrap() error {
	return e.Err
}

// NewTaskServiceError returns known sentinel errors directly and wraps
// everything else.
func NewTaskServiceError(operation string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrTaskNotFound),
		errors.Is(err, store.ErrTaskExists),
		errors.Is(err, ErrCancelTooLate):
		return err
	}
	return &TaskServiceError{Operation: operation, Err: err}
}

type taskServiceImpl struct {
	store     store.TaskStore
	canceller Canceller
	emitter   events.EventEmitter
	logger    *slog.Logger
	now       func() time.Time
}

// NewTaskService creates a TaskService. emitter may be nil.
func NewTaskService(
	s store.TaskStore,
	canceller Canceller,
	emitter events.EventEmitter,
	logger *slog.Logger,
) (TaskService, error) {
	if s == nil {
		return nil, &TaskServiceError{Operation: "create_service", Err: errors.New("store cannot be nil")}
	}
	if canceller == nil {
		return nil, &TaskServiceError{Operation: "create_service", Err: errors.New("canceller cannot be nil")}
	}
	if logger == nil {
		return nil, &TaskServiceError{Operation: "create_service", Err: errors.New("logger cannot be nil")}
	}
	if emitter == nil {
		emitter = events.NopEmitter{}
	}

	return &taskServiceImpl{
		store:     s,
		canceller: canceller,
		emitter:   emitter,
		logger:    logger.With("component", "task_service"),
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// Submit implements TaskService.
func (s *taskServiceImpl) Submit(ctx context.Context, req SubmitRequest) (*domain.Task, error) {
	maxSteps := domain.DefaultMaxSteps
	if req.MaxSteps != nil {
		maxSteps = *req.MaxSteps
	}

	t, err := domain.NewTask(strings.TrimSpace(req.ID), req.Goal, maxSteps, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, t); err != nil {
		return nil, NewTaskServiceError("submit", err)
	}

	s.logger.InfoContext(ctx, "task submitted",
		slog.String("task_id", t.ID),
		slog.Int("max_steps", t.MaxSteps))

	if err := s.emitter.EmitEvent(ctx, events.NewTaskEvent(t, t.CreatedAt)); err != nil {
		s.logger.WarnContext(ctx, "failed to emit task event",
			slog.String("task_id", t.ID),
			slog.String("error", err.Error()))
	}

	return t, nil
}

// Get implements TaskService.
func (s *taskServiceImpl) Get(ctx context.Context, id string) (*domain.Task, error) {
	if err := domain.ValidateTaskID(id); err != nil {
		// Nothing with a malformed id can exist.
		return nil, store.ErrTaskNotFound
	}
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, NewTaskServiceError("get", err)
	}
	return t, nil
}

// List implements TaskService.
func (s *taskServiceImpl) List(ctx context.Context, status string, limit int) ([]*domain.Task, error) {
	if limit < 0 {
		return nil, domain.NewValidationError("limit", "cannot be negative", nil)
	}

	opts := store.ListOptions{Limit: limit}
	if status != "" && !strings.EqualFold(status, StatusAll) {
		state, err := domain.ParseTaskState(status)
		if err != nil {
			return nil, domain.NewValidationError("status", fmt.Sprintf("must be %q or one of the task states", StatusAll), err)
		}
		opts.State = state
	}

	tasks, err := s.store.List(ctx, opts)
	if err != nil {
		return nil, NewTaskServiceError("list", err)
	}
	return tasks, nil
}

// Cancel implements TaskService.
func (s *taskServiceImpl) Cancel(ctx context.Context, id string) (*domain.Task, error) {
	if err := domain.ValidateTaskID(id); err != nil {
		return nil, store.ErrTaskNotFound
	}

	result, t, err := s.canceller.Cancel(ctx, id)
	if err != nil {
		return nil, NewTaskServiceError("cancel", err)
	}
	if result == task.CancelResultTooLate {
		return t, ErrCancelTooLate
	}
	return t, nil
}
