package command

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeAgent creates an executable shell script standing in for the agent.
func writeAgent(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell agents need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "agent.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestNewRequiresCommand(t *testing.T) {
	t.Parallel()

	_, err := New(" ", nil, 0, nil)
	assert.Error(t, err)
}

func TestExecute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		script      string
		wantSuccess bool
		wantSteps   int
		wantOutput  string
		wantMessage string
	}{
		{
			name:        "structured report",
			script:      `echo '{"success":true,"steps":3,"output":{"clicked":"ok"}}'`,
			wantSuccess: true,
			wantSteps:   3,
			wantOutput:  `{"clicked":"ok"}`,
		},
		{
			name:        "structured failure",
			script:      `echo '{"success":false,"steps":2,"message":"window not found"}'`,
			wantSuccess: false,
			wantSteps:   2,
			wantMessage: "window not found",
		},
		{
			name:        "plain text output",
			script:      `echo done`,
			wantSuccess: true,
			wantOutput:  `"done"`,
		},
		{
			name:        "json without report fields",
			script:      `echo '[1,2,3]'`,
			wantSuccess: true,
			wantOutput:  `[1,2,3]`,
		},
		{
			name:        "no output",
			script:      `exit 0`,
			wantSuccess: true,
		},
		{
			name:        "non-zero exit",
			script:      "echo 'display unavailable' >&2\nexit 3",
			wantSuccess: false,
			wantMessage: "agent exited with code 3: display unavailable",
		},
		{
			name:        "goal from environment",
			script:      `printf '{"success":true,"steps":%s,"output":"%s"}' "$GOALQ_MAX_STEPS" "$GOALQ_GOAL"`,
			wantSuccess: true,
			wantSteps:   7,
			wantOutput:  `"open mail"`,
		},
		{
			name:        "request on stdin",
			script:      `cat`,
			wantSuccess: true,
			wantOutput:  `{"goal":"open mail","max_steps":7}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			e, err := New(writeAgent(t, tc.script), nil, 10*time.Second, nil)
			require.NoError(t, err)

			outcome, err := e.Execute(context.Background(), "open mail", 7)
			require.NoError(t, err)
			assert.Equal(t, tc.wantSuccess, outcome.Success)
			assert.Equal(t, tc.wantSteps, outcome.Steps)
			assert.Equal(t, tc.wantMessage, outcome.Message)
			if tc.wantOutput == "" {
				assert.Empty(t, outcome.Output)
			} else {
				assert.JSONEq(t, tc.wantOutput, string(outcome.Output))
			}
		})
	}
}

func TestExecuteMissingBinary(t *testing.T) {
	t.Parallel()

	e, err := New(filepath.Join(t.TempDir(), "no-such-agent"), nil, 0, nil)
	require.NoError(t, err)

	_, err = e.Execute(context.Background(), "g", 1)
	assert.Error(t, err)
}

func TestExecuteTimeout(t *testing.T) {
	t.Parallel()

	e, err := New(writeAgent(t, "sleep 5"), nil, 100*time.Millisecond, nil)
	require.NoError(t, err)

	start := time.Now()
	_, err = e.Execute(context.Background(), "g", 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestExecuteTruncatesLargeOutput(t *testing.T) {
	t.Parallel()

	path := writeAgent(t, `head -c 100 /dev/zero | tr '\0' x`)
	e, err := New(path, nil, 0, nil)
	require.NoError(t, err)
	e.maxOutput = 16

	outcome, err := e.Execute(context.Background(), "g", 1)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.JSONEq(t, `"xxxxxxxxxxxxxxxx"`, string(outcome.Output))
	assert.Equal(t, "agent output truncated to 16 bytes", outcome.Message)
}

func TestOutputBuffers(t *testing.T) {
	t.Parallel()

	head := &headBuffer{limit: 5}
	for _, chunk := range []string{"abc", "defg", "hij"} {
		n, err := head.Write([]byte(chunk))
		require.NoError(t, err)
		assert.Equal(t, len(chunk), n, "writes never short-count")
	}
	assert.Equal(t, "abcde", head.buf.String())
	assert.EqualValues(t, 5, head.dropped)

	tb := &tailBuffer{limit: 4}
	for _, chunk := range []string{"0123", "4567", "89ab", "cdef"} {
		_, err := tb.Write([]byte(chunk))
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, len(tb.String()), 8)
	assert.Equal(t, "...cdef", tail(tb.String(), 4))
}
