// Package command runs goals through an external automation agent process.
//
// The agent is started once per task with GOALQ_GOAL and GOALQ_MAX_STEPS in
// its environment and a JSON request on stdin. It reports back by printing
// a JSON object on stdout:
//
//	{"success": true, "steps": 4, "message": "...", "output": {...}}
//
// Stdout that is not such an object is kept verbatim as the output, and the
// exit status decides success.
package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/phrazzld/goalq/internal/platform/logger"
	"github.com/phrazzld/goalq/internal/task"
)

// Environment variables set for the agent process.
const (
	EnvGoal     = "GOALQ_GOAL"
	EnvMaxSteps = "GOALQ_MAX_STEPS"
)

const (
	// maxStderrInMessage bounds how much of stderr is copied into a failure message.
	maxStderrInMessage = 2048
	// defaultMaxOutput bounds how much agent stdout is kept as the task result.
	defaultMaxOutput = 1 << 20
)

// Request is written to the agent's stdin.
type Request struct {
	Goal     string `json:"goal"`
	MaxSteps int    `json:"max_steps"`
}

// agentReport is what a well-behaved agent prints on stdout.
type agentReport struct {
	Success *bool           `json:"success"`
	Steps   int             `json:"steps"`
	Message string          `json:"message"`
	Output  json.RawMessage `json:"output"`
}

// Executor implements task.Executor by running a command.
type Executor struct {
	path      string
	args      []string
	timeout   time.Duration
	maxOutput int
	logger    *slog.Logger
}

var _ task.Executor = (*Executor)(nil)

// New creates an Executor for the named program. A zero timeout means no limit.
func New(path string, args []string, timeout time.Duration, log *slog.Logger) (*Executor, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("agent command cannot be empty")
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Executor{
		path:      path,
		args:      args,
		timeout:   timeout,
		maxOutput: defaultMaxOutput,
		logger:    log.With("component", "command_executor"),
	}, nil
}

// Execute runs the agent for one goal. Failing to start the process, or a
// timeout, is an error; a non-zero exit is an unsuccessful Outcome.
func (e *Executor) Execute(ctx context.Context, goal string, maxSteps int) (task.Outcome, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	stdin, err := json.Marshal(Request{Goal: goal, MaxSteps: maxSteps})
	if err != nil {
		return task.Outcome{}, fmt.Errorf("failed to encode agent request: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.path, e.args...)
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Env = append(os.Environ(),
		EnvGoal+"="+goal,
		EnvMaxSteps+"="+strconv.Itoa(maxSteps))
	cmd.WaitDelay = time.Second

	stdout := &headBuffer{limit: e.maxOutput}
	stderr := &tailBuffer{limit: maxStderrInMessage}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	e.logger.Debug("starting agent", slog.String("path", e.path), slog.Int("max_steps", maxSteps))
	runErr := cmd.Run()

	if runErr != nil && ctx.Err() != nil {
		return task.Outcome{}, fmt.Errorf("agent %s did not finish: %w", e.path, ctx.Err())
	}

	var exitErr *exec.ExitError
	if runErr != nil && !errors.As(runErr, &exitErr) {
		return task.Outcome{}, fmt.Errorf("failed to run agent %s: %w", e.path, runErr)
	}

	outcome := parseStdout(stdout.buf.Bytes())
	if stdout.dropped > 0 {
		e.logger.Warn("agent output truncated",
			slog.Int("kept_bytes", stdout.buf.Len()),
			slog.Int64("dropped_bytes", stdout.dropped))
		note := fmt.Sprintf("agent output truncated to %d bytes", stdout.buf.Len())
		if outcome.Message == "" {
			outcome.Message = note
		} else {
			outcome.Message += " (" + note + ")"
		}
	}
	if exitErr != nil {
		outcome.Success = false
		msg := fmt.Sprintf("agent exited with code %d", exitErr.ExitCode())
		if s := tail(stderr.String(), maxStderrInMessage); s != "" {
			msg += ": " + s
		} else if outcome.Message != "" {
			msg += ": " + outcome.Message
		}
		outcome.Message = msg
	}

	return outcome, nil
}

// parseStdout turns agent output into an Outcome assuming a zero exit.
func parseStdout(out []byte) task.Outcome {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return task.Outcome{Success: true}
	}

	var report agentReport
	if trimmed[0] == '{' && json.Unmarshal(trimmed, &report) == nil && report.Success != nil {
		return task.Outcome{
			Success: *report.Success,
			Steps:   report.Steps,
			Message: report.Message,
			Output:  report.Output,
		}
	}

	if json.Valid(trimmed) {
		return task.Outcome{Success: true, Output: json.RawMessage(trimmed)}
	}
	quoted, _ := json.Marshal(string(trimmed))
	return task.Outcome{Success: true, Output: quoted}
}

// headBuffer keeps the first limit bytes written and counts the rest.
type headBuffer struct {
	buf     bytes.Buffer
	limit   int
	dropped int64
}

func (b *headBuffer) Write(p []byte) (int, error) {
	keep := min(len(p), max(b.limit-b.buf.Len(), 0))
	b.buf.Write(p[:keep])
	b.dropped += int64(len(p) - keep)
	return len(p), nil
}

// tailBuffer keeps roughly the last limit bytes written.
type tailBuffer struct {
	buf   []byte
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - 2*b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	return string(b.buf)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
