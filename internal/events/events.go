package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/goalq/internal/domain"
)

// EventType names a task lifecycle event.
type EventType string

// Lifecycle event types, one per state a task can enter.
const (
	TaskSubmitted EventType = "task.submitted"
	TaskStarted   EventType = "task.started"
	TaskCompleted EventType = "task.completed"
	TaskFailed    EventType = "task.failed"
	TaskCancelled EventType = "task.cancelled"
)

var typeByState = map[domain.TaskState]EventType{
	domain.TaskStateQueued:     TaskSubmitted,
	domain.TaskStateProcessing: TaskStarted,
	domain.TaskStateCompleted:  TaskCompleted,
	domain.TaskStateFailed:     TaskFailed,
	domain.TaskStateCancelled:  TaskCancelled,
}

// TaskEvent reports that a task entered a new state.
type TaskEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	Type   EventType        `json:"type"`
	TaskID string           `json:"task_id"`
	State  domain.TaskState `json:"state"`

	// OccurredAt is when the transition was recorded
	OccurredAt time.Time `json:"occurred_at"`
}

// NewTaskEvent describes the state task is currently in.
func NewTaskEvent(task *domain.Task, at time.Time) *TaskEvent {
	return &TaskEvent{
		ID:         uuid.New(),
		Type:       typeByState[task.State],
		TaskID:     task.ID,
		State:      task.State,
		OccurredAt: at.UTC(),
	}
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	HandleEvent(ctx context.Context, event *TaskEvent) error
}

// HandlerFunc adapts a function to EventHandler.
type HandlerFunc func(ctx context.Context, event *TaskEvent) error

// HandleEvent implements EventHandler.
func (f HandlerFunc) HandleEvent(ctx context.Context, event *TaskEvent) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
// This allows services to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *TaskEvent) error
}

// NopEmitter discards every event.
type NopEmitter struct{}

// EmitEvent implements EventEmitter.
func (NopEmitter) EmitEvent(context.Context, *TaskEvent) error { return nil }
