package task

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrStepLimitExceeded is recorded when an executor reports more steps than the task allows.
	ErrStepLimitExceeded = errors.New("executor exceeded max_steps")

	// ErrExecutorPanic is recorded when an executor panics.
	ErrExecutorPanic = errors.New("executor panicked")
)

// Outcome is what an executor reports for one goal.
type Outcome struct {
	// Success is false when the goal was attempted but not achieved.
	Success bool
	// Steps is the number of actions taken.
	Steps int
	// Output is an optional JSON document describing what was done.
	Output json.RawMessage
	// Message explains a failure.
	Message string
}

// Executor carries out a goal within maxSteps actions. An error means the
// attempt itself broke; an unsuccessful Outcome means it ran but failed.
type Executor interface {
	Execute(ctx context.Context, goal string, maxSteps int) (Outcome, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, goal string, maxSteps int) (Outcome, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, goal string, maxSteps int) (Outcome, error) {
	return f(ctx, goal, maxSteps)
}

// Report is the result document stored on completed and failed tasks.
type Report struct {
	Success    bool            `json:"success"`
	Steps      int             `json:"steps,omitempty"`
	MaxSteps   int             `json:"max_steps"`
	Output     json.RawMessage `json:"output,omitempty"`
	Error      string          `json:"error,omitempty"`
	DurationMS int64           `json:"duration_ms"`
}

func newReport(maxSteps int, outcome Outcome, err error, elapsed time.Duration) Report {
	r := Report{
		Success:    err == nil && outcome.Success,
		Steps:      outcome.Steps,
		MaxSteps:   maxSteps,
		Output:     outcome.Output,
		DurationMS: elapsed.Milliseconds(),
	}

	switch {
	case err != nil:
		r.Error = err.Error()
	case !outcome.Success && outcome.Message != "":
		r.Error = outcome.Message
	case !outcome.Success:
		r.Error = "executor reported failure"
	case outcome.Steps > maxSteps:
		r.Success = false
		r.Error = ErrStepLimitExceeded.Error()
	}

	if len(r.Output) > 0 && !json.Valid(r.Output) {
		// Keep the report valid JSON even if the executor misbehaves.
		quoted, _ := json.Marshal(string(r.Output))
		r.Output = quoted
	}
	return r
}
