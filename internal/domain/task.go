package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// TaskState represents where a task is in its lifecycle.
type TaskState string

// Possible task states.
const (
	TaskStateQueued     TaskState = "queued"
	TaskStateProcessing TaskState = "processing"
	TaskStateCompleted  TaskState = "completed"
	TaskStateFailed     TaskState = "failed"
	TaskStateCancelled  TaskState = "cancelled"
)

// Limits on task input.
const (
	DefaultMaxSteps = 20
	MaxMaxSteps     = 100
	MaxGoalLength   = 10000
	MaxTaskIDLength = 64
)

// Validation errors for Task.
var (
	ErrEmptyGoal       = fmt.Errorf("%w: goal cannot be empty", ErrValidation)
	ErrGoalTooLong     = fmt.Errorf("%w: goal exceeds %d characters", ErrValidation, MaxGoalLength)
	ErrInvalidMaxSteps = fmt.Errorf("%w: max_steps must be between 1 and %d", ErrValidation, MaxMaxSteps)
	ErrInvalidTaskID   = fmt.Errorf("%w: invalid task id", ErrValidation)
	ErrInvalidState    = fmt.Errorf("%w: invalid task state", ErrValidation)
)

var taskIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// ValidTransitions lists the lifecycle edges. Terminal states have none.
var ValidTransitions = map[TaskState][]TaskState{
	TaskStateQueued:     {TaskStateProcessing, TaskStateCancelled},
	TaskStateProcessing: {TaskStateCompleted, TaskStateFailed},
}

// AllTaskStates returns every state in lifecycle order.
func AllTaskStates() []TaskState {
	return []TaskState{
		TaskStateQueued,
		TaskStateProcessing,
		TaskStateCompleted,
		TaskStateFailed,
		TaskStateCancelled,
	}
}

// ParseTaskState converts s into a TaskState.
func ParseTaskState(s string) (TaskState, error) {
	state := TaskState(strings.ToLower(strings.TrimSpace(s)))
	if !state.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidState, s)
	}
	return state, nil
}

// Valid reports whether s is one of the known states.
func (s TaskState) Valid() bool {
	return slices.Contains(AllTaskStates(), s)
}

// IsTerminal returns true if no further transitions are possible.
func (s TaskState) IsTerminal() bool {
	return s == TaskStateCompleted || s == TaskStateFailed || s == TaskStateCancelled
}

// CanTransition reports whether from -> to is a lifecycle edge.
func CanTransition(from, to TaskState) bool {
	return slices.Contains(ValidTransitions[from], to)
}

// Task is a goal submitted for asynchronous execution.
type Task struct {
	ID         string          `json:"id"`
	Goal       string          `json:"goal"`
	MaxSteps   int             `json:"max_steps"`
	State      TaskState       `json:"state"`
	CreatedAt  time.Time       `json:"created_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// NewTask creates a queued task. An empty id gets a random UUID. Returns
// an error wrapping ErrValidation if the input is malformed, including a
// maxSteps outside 1..MaxMaxSteps.
func NewTask(id, goal string, maxSteps int, now time.Time) (*Task, error) {
	if id == "" {
		id = uuid.NewString()
	}
	task := &Task{
		ID:        id,
		Goal:      strings.TrimSpace(goal),
		MaxSteps:  maxSteps,
		State:     TaskStateQueued,
		CreatedAt: now.UTC(),
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// ValidateTaskID checks a client-supplied identifier. Ids double as file
// names in the queue directory, so path separators and leading dots are rejected.
func ValidateTaskID(id string) error {
	if !taskIDPattern.MatchString(id) {
		return NewValidationError("id", "must be 1-64 letters, digits, '.', '_' or '-' and start with a letter or digit", ErrInvalidTaskID)
	}
	return nil
}

// Validate checks the immutable fields and the timestamp invariants.
func (t *Task) Validate() error {
	if err := ValidateTaskID(t.ID); err != nil {
		return err
	}

	if strings.TrimSpace(t.Goal) == "" {
		return NewValidationError("goal", "cannot be empty", ErrEmptyGoal)
	}

	if utf8.RuneCountInString(t.Goal) > MaxGoalLength {
		return NewValidationError("goal", fmt.Sprintf("exceeds %d characters", MaxGoalLength), ErrGoalTooLong)
	}

	if t.MaxSteps < 1 || t.MaxSteps > MaxMaxSteps {
		return NewValidationError("max_steps", fmt.Sprintf("must be between 1 and %d", MaxMaxSteps), ErrInvalidMaxSteps)
	}

	if !t.State.Valid() {
		return NewValidationError("state", string(t.State), ErrInvalidState)
	}

	return nil
}

// Transition moves the task along a lifecycle edge, stamping started_at
// when entering processing and finished_at (plus result) when entering a
// terminal state. Timestamps never go backwards.
func (t *Task) Transition(to TaskState, at time.Time, result json.RawMessage) error {
	if !CanTransition(t.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.State, to)
	}

	at = at.UTC()
	if at.Before(t.CreatedAt) {
		at = t.CreatedAt
	}

	switch to {
	case TaskStateProcessing:
		t.StartedAt = &at
	case TaskStateCompleted, TaskStateFailed:
		if t.StartedAt != nil && at.Before(*t.StartedAt) {
			at = *t.StartedAt
		}
		t.FinishedAt = &at
		t.Result = result
	case TaskStateCancelled:
		t.FinishedAt = &at
	}

	t.State = to
	return nil
}

// Clone returns a deep copy so callers cannot mutate stored records.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.StartedAt != nil {
		v := *t.StartedAt
		c.StartedAt = &v
	}
	if t.FinishedAt != nil {
		v := *t.FinishedAt
		c.FinishedAt = &v
	}
	if t.Result != nil {
		c.Result = append(json.RawMessage(nil), t.Result...)
	}
	return &c
}
