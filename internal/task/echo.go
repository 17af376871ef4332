package task

import (
	"context"
	"encoding/json"
	"time"
)

// EchoExecutor completes every goal in a single step and echoes it back as
// the output. It exists for development and smoke tests.
type EchoExecutor struct {
	// Delay simulates work; the context cuts it short.
	Delay time.Duration
}

// Execute implements Executor.
func (e EchoExecutor) Execute(ctx context.Context, goal string, maxSteps int) (Outcome, error) {
	if e.Delay > 0 {
		timer := time.NewTimer(e.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		}
	}

	output, err := json.Marshal(map[string]string{"echo": goal})
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Success: true, Steps: 1, Output: output}, nil
}
