package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/goalq/internal/domain"
	"github.com/phrazzld/goalq/internal/events"
	"github.com/phrazzld/goalq/internal/platform/logger"
	"github.com/phrazzld/goalq/internal/store"
)

// CancelResult tells a caller whether its cancellation took effect.
type CancelResult int

const (
	// CancelResultCancelled means the task was still queued and is now cancelled.
	CancelResultCancelled CancelResult = iota + 1
	// CancelResultTooLate means the task had already been claimed or finished.
	CancelResultTooLate
)

func (r CancelResult) String() string {
	switch r {
	case CancelResultCancelled:
		return "cancelled"
	case CancelResultTooLate:
		return "too_late"
	default:
		return "unknown"
	}
}

// Canceller withdraws queued tasks. It never interrupts a running executor.
type Canceller struct {
	store  store.TaskStore
	logger *slog.Logger
	opts   options
}

// NewCanceller creates a Canceller.
func NewCanceller(s store.TaskStore, log *slog.Logger, opts ...Option) *Canceller {
	if log == nil {
		log = logger.Discard()
	}
	return &Canceller{
		store:  s,
		logger: log.With("component", "canceller"),
		opts:   buildOptions(opts),
	}
}

// Cancel tries to move the task from queued to cancelled. Losing that race
// to the dispatcher (or finding the task already terminal) is reported as
// CancelResultTooLate together with the task's current snapshot. An unknown
// id returns store.ErrTaskNotFound.
func (c *Canceller) Cancel(ctx context.Context, id string) (CancelResult, *domain.Task, error) {
	cancelled, err := c.store.Move(ctx, store.Move{
		TaskID: id,
		From:   domain.TaskStateQueued,
		To:     domain.TaskStateCancelled,
		At:     c.opts.now(),
	})
	if err == nil {
		c.logger.Info("task cancelled", slog.String("task_id", id))
		if emitErr := c.opts.emitter.EmitEvent(ctx, events.NewTaskEvent(cancelled, c.opts.now())); emitErr != nil {
			c.logger.Warn("failed to emit task event", slog.String("task_id", id), slog.String("error", emitErr.Error()))
		}
		return CancelResultCancelled, cancelled, nil
	}

	if !errors.Is(err, store.ErrStateConflict) {
		return 0, nil, err
	}

	current, getErr := c.store.Get(ctx, id)
	if getErr != nil {
		return 0, nil, fmt.Errorf("failed to read task after lost cancel: %w", getErr)
	}

	c.logger.Debug("cancel arrived too late",
		slog.String("task_id", id),
		slog.String("state", string(current.State)))
	return CancelResultTooLate, current, nil
}
