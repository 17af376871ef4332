package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phrazzld/goalq/internal/domain"
	"github.com/phrazzld/goalq/internal/events"
	"github.com/phrazzld/goalq/internal/platform/logger"
	"github.com/phrazzld/goalq/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

// recordingExecutor remembers the goals it ran, in order.
type recordingExecutor struct {
	mu      sync.Mutex
	goals   []string
	outcome Outcome
	err     error
}

func (e *recordingExecutor) Execute(ctx context.Context, goal string, maxSteps int) (Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.goals = append(e.goals, goal)
	return e.outcome, e.err
}

func (e *recordingExecutor) ran() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.goals...)
}

func enqueue(t *testing.T, s store.TaskStore, id string, offset time.Duration) {
	t.Helper()
	task, err := domain.NewTask(id, "goal "+id, 5, t0.Add(offset))
	require.NoError(t, err)
	require.NoError(t, s.Create(context.Background(), task))
}

func getTask(t *testing.T, s store.TaskStore, id string) *domain.Task {
	t.Helper()
	task, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	return task
}

func decodeReport(t *testing.T, task *domain.Task) Report {
	t.Helper()
	var r Report
	require.NoError(t, json.Unmarshal(task.Result, &r))
	return r
}

func TestRunOnceExecutesOldestFirst(t *testing.T) {
	t.Parallel()

	s := NewMockTaskStore()
	enqueue(t, s, "late", 3*time.Second)
	enqueue(t, s, "early", time.Second)
	enqueue(t, s, "middle", 2*time.Second)

	exec := &recordingExecutor{outcome: Outcome{Success: true, Steps: 2, Output: json.RawMessage(`{"ok":true}`)}}
	d := NewDispatcher(s, exec, DispatcherConfig{}, nil, WithClock(func() time.Time { return t0.Add(time.Hour) }))

	for range 3 {
		claimed, err := d.RunOnce(context.Background())
		require.NoError(t, err)
		assert.True(t, claimed)
	}

	claimed, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, claimed, "queue is drained")

	assert.Equal(t, []string{"goal early", "goal middle", "goal late"}, exec.ran())

	task := getTask(t, s, "early")
	assert.Equal(t, domain.TaskStateCompleted, task.State)
	require.NotNil(t, task.StartedAt)
	require.NotNil(t, task.FinishedAt)
	report := decodeReport(t, task)
	assert.True(t, report.Success)
	assert.Equal(t, 2, report.Steps)
	assert.Equal(t, 5, report.MaxSteps)
	assert.JSONEq(t, `{"ok":true}`, string(report.Output))
}

func TestRunOnceRecordsFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		executor  Executor
		wantError string
	}{
		{
			name:      "executor error",
			executor:  ExecutorFunc(func(context.Context, string, int) (Outcome, error) { return Outcome{}, errors.New("screen locked") }),
			wantError: "screen locked",
		},
		{
			name:      "unsuccessful outcome",
			executor:  ExecutorFunc(func(context.Context, string, int) (Outcome, error) { return Outcome{Message: "button not found"}, nil }),
			wantError: "button not found",
		},
		{
			name:      "unsuccessful outcome without message",
			executor:  ExecutorFunc(func(context.Context, string, int) (Outcome, error) { return Outcome{}, nil }),
			wantError: "executor reported failure",
		},
		{
			name: "step limit exceeded",
			executor: ExecutorFunc(func(_ context.Context, _ string, maxSteps int) (Outcome, error) {
				return Outcome{Success: true, Steps: maxSteps + 1}, nil
			}),
			wantError: ErrStepLimitExceeded.Error(),
		},
		{
			name:      "panic",
			executor:  ExecutorFunc(func(context.Context, string, int) (Outcome, error) { panic("nil pointer in agent") }),
			wantError: "executor panicked: nil pointer in agent",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := NewMockTaskStore()
			enqueue(t, s, "doomed", 0)
			enqueue(t, s, "next", time.Second)

			d := NewDispatcher(s, tc.executor, DispatcherConfig{}, nil)

			claimed, err := d.RunOnce(context.Background())
			require.NoError(t, err)
			require.True(t, claimed)

			task := getTask(t, s, "doomed")
			assert.Equal(t, domain.TaskStateFailed, task.State)
			require.NotNil(t, task.FinishedAt)
			report := decodeReport(t, task)
			assert.False(t, report.Success)
			assert.Equal(t, tc.wantError, report.Error)

			// The loop survives and moves on.
			claimed, err = d.RunOnce(context.Background())
			require.NoError(t, err)
			assert.True(t, claimed)
			assert.True(t, getTask(t, s, "next").State.IsTerminal())
		})
	}
}

func TestInvalidOutputIsQuoted(t *testing.T) {
	t.Parallel()

	s := NewMockTaskStore()
	enqueue(t, s, "raw", 0)

	exec := ExecutorFunc(func(context.Context, string, int) (Outcome, error) {
		return Outcome{Success: true, Steps: 1, Output: json.RawMessage("plain text")}, nil
	})
	d := NewDispatcher(s, exec, DispatcherConfig{}, nil)

	_, err := d.RunOnce(context.Background())
	require.NoError(t, err)

	report := decodeReport(t, getTask(t, s, "raw"))
	assert.JSONEq(t, `"plain text"`, string(report.Output))
}

func TestRunOnceSkipsLostRace(t *testing.T) {
	t.Parallel()

	s := NewMockTaskStore()
	enqueue(t, s, "stolen", 0)
	enqueue(t, s, "mine", time.Second)

	// A canceller wins "stolen" between the listing and the claim.
	s.MoveFn = func(ctx context.Context, m store.Move) (*domain.Task, error) {
		if m.TaskID == "stolen" && m.To == domain.TaskStateProcessing {
			_, err := s.Inner.Move(ctx, store.Move{TaskID: "stolen", From: domain.TaskStateQueued, To: domain.TaskStateCancelled, At: t0})
			require.NoError(t, err)
		}
		return s.Inner.Move(ctx, m)
	}

	log, buf := logger.NewTestLogger(t)
	exec := &recordingExecutor{outcome: Outcome{Success: true}}
	d := NewDispatcher(s, exec, DispatcherConfig{}, log)

	claimed, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, claimed)

	assert.Equal(t, []string{"goal mine"}, exec.ran())
	assert.Equal(t, domain.TaskStateCancelled, getTask(t, s, "stolen").State)
	assert.Zero(t, buf.CountLevel(slog.LevelError), "a lost race is not an error")
	assert.Contains(t, buf.String(), "lost claim race")
}

func TestCancelledTaskIsNeverDispatched(t *testing.T) {
	t.Parallel()

	s := NewMockTaskStore()
	enqueue(t, s, "gone", 0)

	_, _, err := NewCanceller(s, nil).Cancel(context.Background(), "gone")
	require.NoError(t, err)

	exec := &recordingExecutor{outcome: Outcome{Success: true}}
	d := NewDispatcher(s, exec, DispatcherConfig{}, nil)

	claimed, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Empty(t, exec.ran())
}

func TestRunOnceStoreUnavailable(t *testing.T) {
	t.Parallel()

	s := NewMockTaskStore()
	outage := store.Unavailable("list", errors.New("disk gone"))
	s.ListFn = func(context.Context, store.ListOptions) ([]*domain.Task, error) { return nil, outage }

	d := NewDispatcher(s, &recordingExecutor{}, DispatcherConfig{}, nil)
	claimed, err := d.RunOnce(context.Background())
	assert.False(t, claimed)
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestOutcomeWriteFailureLeavesTaskProcessing(t *testing.T) {
	t.Parallel()

	s := NewMockTaskStore()
	enqueue(t, s, "stuck", 0)
	s.MoveFn = func(ctx context.Context, m store.Move) (*domain.Task, error) {
		if m.From == domain.TaskStateProcessing {
			return nil, store.Unavailable("move", errors.New("read-only file system"))
		}
		return s.Inner.Move(ctx, m)
	}

	log, buf := logger.NewTestLogger(t)
	d := NewDispatcher(s, &recordingExecutor{outcome: Outcome{Success: true}}, DispatcherConfig{}, log)

	claimed, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, domain.TaskStateProcessing, getTask(t, s, "stuck").State)
	assert.Contains(t, buf.String(), "failed to record task outcome")
}

func TestDispatchAndCancelRace(t *testing.T) {
	t.Parallel()

	for i := range 50 {
		s := NewMockTaskStore()
		id := fmt.Sprintf("race-%d", i)
		enqueue(t, s, id, 0)

		var executed atomic.Bool
		exec := ExecutorFunc(func(context.Context, string, int) (Outcome, error) {
			executed.Store(true)
			return Outcome{Success: true}, nil
		})
		d := NewDispatcher(s, exec, DispatcherConfig{}, nil)
		c := NewCanceller(s, nil)

		var (
			wg        sync.WaitGroup
			result    CancelResult
			cancelErr error
		)
		start := make(chan struct{})
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, _ = d.RunOnce(context.Background())
		}()
		go func() {
			defer wg.Done()
			<-start
			result, _, cancelErr = c.Cancel(context.Background(), id)
		}()
		close(start)
		wg.Wait()

		require.NoError(t, cancelErr)
		final := getTask(t, s, id)
		switch result {
		case CancelResultCancelled:
			assert.False(t, executed.Load(), "cancelled task must never execute")
			assert.Equal(t, domain.TaskStateCancelled, final.State)
			assert.Nil(t, final.StartedAt)
		case CancelResultTooLate:
			assert.True(t, executed.Load())
			assert.Equal(t, domain.TaskStateCompleted, final.State)
		default:
			t.Fatalf("unexpected cancel result %v", result)
		}
	}
}

func TestStartStopProcessesQueue(t *testing.T) {
	t.Parallel()

	s := NewMockTaskStore()
	enqueue(t, s, "a", 0)
	enqueue(t, s, "b", time.Second)

	exec := &recordingExecutor{outcome: Outcome{Success: true}}
	d := NewDispatcher(s, exec, DispatcherConfig{PollInterval: 10 * time.Millisecond}, nil)
	require.NoError(t, d.Start())
	defer d.Stop()

	assert.Error(t, d.Start(), "double start is rejected")

	require.Eventually(t, func() bool {
		return len(exec.ran()) == 2
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, domain.TaskStateCompleted, getTask(t, s, "a").State)
	assert.Equal(t, domain.TaskStateCompleted, getTask(t, s, "b").State)
}

func TestSubmittedEventWakesIdleDispatcher(t *testing.T) {
	t.Parallel()

	s := NewMockTaskStore()
	exec := &recordingExecutor{outcome: Outcome{Success: true}}
	d := NewDispatcher(s, exec, DispatcherConfig{PollInterval: time.Hour}, nil)

	emitter := events.NewInMemoryEventEmitter(logger.Discard())
	emitter.RegisterHandler(d)

	require.NoError(t, d.Start())
	defer d.Stop()

	enqueue(t, s, "wake", 0)
	task := getTask(t, s, "wake")
	require.NoError(t, emitter.EmitEvent(context.Background(), events.NewTaskEvent(task, t0)))

	require.Eventually(t, func() bool {
		return len(exec.ran()) == 1
	}, 2*time.Second, 5*time.Millisecond, "dispatcher should not wait for the hour-long poll")
}

func TestIdleDispatcherDoesNotSpin(t *testing.T) {
	t.Parallel()

	s := NewMockTaskStore()
	var polls atomic.Int32
	s.ListFn = func(ctx context.Context, opts store.ListOptions) ([]*domain.Task, error) {
		polls.Add(1)
		return s.Inner.List(ctx, opts)
	}

	d := NewDispatcher(s, &recordingExecutor{}, DispatcherConfig{PollInterval: 50 * time.Millisecond}, nil)
	require.NoError(t, d.Start())
	time.Sleep(275 * time.Millisecond)
	d.Stop()

	// One recovery listing plus roughly one poll per interval.
	assert.LessOrEqual(t, polls.Load(), int32(10))
	assert.GreaterOrEqual(t, polls.Load(), int32(3))
}

func TestStopWaitsForRunningTask(t *testing.T) {
	t.Parallel()

	s := NewMockTaskStore()
	enqueue(t, s, "slow", 0)

	started := make(chan struct{})
	release := make(chan struct{})
	exec := ExecutorFunc(func(ctx context.Context, _ string, _ int) (Outcome, error) {
		close(started)
		<-release
		return Outcome{Success: true, Steps: 1}, ctx.Err()
	})

	d := NewDispatcher(s, exec, DispatcherConfig{PollInterval: 10 * time.Millisecond}, nil)
	require.NoError(t, d.Start())
	<-started

	stopped := make(chan struct{})
	go func() {
		d.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while the executor was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-stopped

	assert.Equal(t, domain.TaskStateCompleted, getTask(t, s, "slow").State,
		"the executor context is not cancelled by Stop")
}

func TestRecoverStranded(t *testing.T) {
	t.Parallel()

	setup := func(t *testing.T) *MockTaskStore {
		s := NewMockTaskStore()
		enqueue(t, s, "orphan", 0)
		_, err := s.Move(context.Background(), store.Move{TaskID: "orphan", From: domain.TaskStateQueued, To: domain.TaskStateProcessing, At: t0})
		require.NoError(t, err)
		return s
	}

	t.Run("leave", func(t *testing.T) {
		t.Parallel()
		s := setup(t)
		log, buf := logger.NewTestLogger(t)
		d := NewDispatcher(s, &recordingExecutor{}, DispatcherConfig{StrandedPolicy: StrandedLeave}, log)

		n, err := d.RecoverStranded(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, domain.TaskStateProcessing, getTask(t, s, "orphan").State)
		assert.Equal(t, 1, buf.CountLevel(slog.LevelWarn))
	})

	t.Run("fail", func(t *testing.T) {
		t.Parallel()
		s := setup(t)
		d := NewDispatcher(s, &recordingExecutor{}, DispatcherConfig{StrandedPolicy: StrandedFail}, nil)

		n, err := d.RecoverStranded(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		task := getTask(t, s, "orphan")
		assert.Equal(t, domain.TaskStateFailed, task.State)
		assert.Equal(t, ErrAbandoned.Error(), decodeReport(t, task).Error)
	})

	t.Run("never requeued", func(t *testing.T) {
		t.Parallel()
		s := setup(t)
		exec := &recordingExecutor{outcome: Outcome{Success: true}}
		d := NewDispatcher(s, exec, DispatcherConfig{StrandedPolicy: StrandedLeave}, nil)

		_, err := d.RecoverStranded(context.Background())
		require.NoError(t, err)
		claimed, err := d.RunOnce(context.Background())
		require.NoError(t, err)
		assert.False(t, claimed)
		assert.Empty(t, exec.ran())
	})
}

func TestDispatcherEmitsLifecycleEvents(t *testing.T) {
	t.Parallel()

	s := NewMockTaskStore()
	enqueue(t, s, "evt", 0)

	var mu sync.Mutex
	var seen []events.EventType
	emitter := events.NewInMemoryEventEmitter(logger.Discard())
	emitter.RegisterHandler(events.HandlerFunc(func(_ context.Context, e *events.TaskEvent) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.Type)
		return nil
	}))

	d := NewDispatcher(s, &recordingExecutor{outcome: Outcome{Success: true}}, DispatcherConfig{}, nil, WithEmitter(emitter))
	_, err := d.RunOnce(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []events.EventType{events.TaskStarted, events.TaskCompleted}, seen)
}
