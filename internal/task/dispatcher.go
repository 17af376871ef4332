package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/goalq/internal/domain"
	"github.com/phrazzld/goalq/internal/events"
	"github.com/phrazzld/goalq/internal/platform/logger"
	"github.com/phrazzld/goalq/internal/store"
)

// StrandedPolicy decides what happens, at start-up, to tasks a previous
// worker left in processing.
type StrandedPolicy string

const (
	// StrandedLeave logs stranded tasks and leaves them for an operator.
	StrandedLeave StrandedPolicy = "leave"
	// StrandedFail marks stranded tasks failed with an "abandoned" report.
	StrandedFail StrandedPolicy = "fail"
)

// ErrAbandoned is recorded on tasks failed by the StrandedFail policy.
var ErrAbandoned = errors.New("abandoned: worker stopped while the task was processing")

// DispatcherConfig holds configuration for the dispatcher.
type DispatcherConfig struct {
	// PollInterval is how long to sleep when the queue is empty.
	PollInterval time.Duration

	// BatchSize bounds how many queued tasks are read per poll. Only the
	// first claimable one is run; the rest are fallbacks for lost races.
	BatchSize int

	StrandedPolicy StrandedPolicy
}

// DefaultDispatcherConfig returns a DispatcherConfig with reasonable defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		PollInterval:   time.Second,
		BatchSize:      16,
		StrandedPolicy: StrandedLeave,
	}
}

// Dispatcher is the single worker: it claims the oldest queued task, runs
// it to completion and records the outcome before looking for the next.
type Dispatcher struct {
	store    store.TaskStore
	executor Executor
	config   DispatcherConfig
	logger   *slog.Logger
	opts     options

	wake chan struct{}

	mu         sync.Mutex
	running    bool
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. Zero config fields take defaults.
func NewDispatcher(s store.TaskStore, executor Executor, config DispatcherConfig, log *slog.Logger, opts ...Option) *Dispatcher {
	defaults := DefaultDispatcherConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.StrandedPolicy == "" {
		config.StrandedPolicy = defaults.StrandedPolicy
	}
	if log == nil {
		log = logger.Discard()
	}

	return &Dispatcher{
		store:    s,
		executor: executor,
		config:   config,
		logger:   log.With("component", "dispatcher"),
		opts:     buildOptions(opts),
		wake:     make(chan struct{}, 1),
	}
}

// Start applies the stranded-task policy and launches the dispatch loop.
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return errors.New("dispatcher already running")
	}

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), d.logger))

	if _, err := d.RecoverStranded(ctx); err != nil {
		cancel()
		return fmt.Errorf("failed to recover stranded tasks: %w", err)
	}

	d.running = true
	d.cancelFunc = cancel
	d.wg.Add(1)
	go d.loop(ctx)

	d.logger.Info("dispatcher started",
		slog.Duration("poll_interval", d.config.PollInterval),
		slog.String("stranded_policy", string(d.config.StrandedPolicy)))
	return nil
}

// Stop ends the loop and waits for it. A task already executing is allowed
// to finish and have its outcome recorded.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	cancel := d.cancelFunc
	d.mu.Unlock()

	cancel()
	d.wg.Wait()
	d.logger.Info("dispatcher stopped")
}

// Notify wakes an idle dispatcher early. It never blocks.
func (d *Dispatcher) Notify() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// HandleEvent implements events.EventHandler: a submission wakes the loop.
func (d *Dispatcher) HandleEvent(ctx context.Context, event *events.TaskEvent) error {
	if event.Type == events.TaskSubmitted {
		d.Notify()
	}
	return nil
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer d.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		claimed, err := d.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			d.logger.Error("dispatch poll failed", slog.String("error", err.Error()))
		}
		if claimed {
			continue
		}

		timer := time.NewTimer(d.config.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-d.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// RunOnce looks for the oldest claimable queued task and, if it wins the
// claim, executes it. It reports whether a task was run.
func (d *Dispatcher) RunOnce(ctx context.Context) (bool, error) {
	candidates, err := d.store.List(ctx, store.ListOptions{
		State: domain.TaskStateQueued,
		Limit: d.config.BatchSize,
	})
	if err != nil {
		return false, err
	}

	for _, candidate := range candidates {
		if ctx.Err() != nil {
			return false, nil
		}

		claimed, err := d.store.Move(ctx, store.Move{
			TaskID: candidate.ID,
			From:   domain.TaskStateQueued,
			To:     domain.TaskStateProcessing,
			At:     d.opts.now(),
		})
		if errors.Is(err, store.ErrStateConflict) || errors.Is(err, store.ErrTaskNotFound) {
			// Cancelled (or claimed elsewhere) between listing and claiming.
			d.logger.Debug("lost claim race", slog.String("task_id", candidate.ID))
			continue
		}
		if err != nil {
			return false, err
		}

		d.execute(ctx, claimed)
		return true, nil
	}

	return false, nil
}

func (d *Dispatcher) execute(ctx context.Context, task *domain.Task) {
	// Shutdown must not interrupt a running executor or lose its outcome.
	ctx = context.WithoutCancel(ctx)
	log := d.logger.With(slog.String("task_id", task.ID))

	d.emit(ctx, task)
	log.Info("executing task", slog.Int("max_steps", task.MaxSteps))

	started := d.opts.now()
	outcome, err := d.invoke(ctx, task)
	report := newReport(task.MaxSteps, outcome, err, d.opts.now().Sub(started))

	to := domain.TaskStateCompleted
	if !report.Success {
		to = domain.TaskStateFailed
	}

	result, marshalErr := json.Marshal(report)
	if marshalErr != nil {
		result = json.RawMessage(`{"success":false,"error":"unencodable result"}`)
		to = domain.TaskStateFailed
	}

	finished, moveErr := d.store.Move(ctx, store.Move{
		TaskID: task.ID,
		From:   domain.TaskStateProcessing,
		To:     to,
		At:     d.opts.now(),
		Result: result,
	})
	if moveErr != nil {
		log.Error("failed to record task outcome, task left in processing",
			slog.String("outcome", string(to)),
			slog.String("error", moveErr.Error()))
		return
	}

	if to == domain.TaskStateFailed {
		log.Error("task failed", slog.String("reason", report.Error), slog.Int("steps", report.Steps))
	} else {
		log.Info("task completed", slog.Int("steps", report.Steps), slog.Int64("duration_ms", report.DurationMS))
	}
	d.emit(ctx, finished)
}

// invoke runs the executor, converting a panic into an error.
func (d *Dispatcher) invoke(ctx context.Context, task *domain.Task) (outcome Outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrExecutorPanic, p)
		}
	}()
	return d.executor.Execute(ctx, task.Goal, task.MaxSteps)
}

// RecoverStranded applies the stranded policy to every task currently in
// processing and returns how many it found. Stranded tasks are never
// re-queued, since their executor may already have acted.
func (d *Dispatcher) RecoverStranded(ctx context.Context) (int, error) {
	stranded, err := d.store.List(ctx, store.ListOptions{State: domain.TaskStateProcessing})
	if err != nil {
		return 0, err
	}

	for _, task := range stranded {
		log := d.logger.With(slog.String("task_id", task.ID))

		if d.config.StrandedPolicy != StrandedFail {
			log.Warn("task stranded in processing by a previous worker", slog.Any("started_at", task.StartedAt))
			continue
		}

		result, _ := json.Marshal(Report{Success: false, MaxSteps: task.MaxSteps, Error: ErrAbandoned.Error()})
		failed, err := d.store.Move(ctx, store.Move{
			TaskID: task.ID,
			From:   domain.TaskStateProcessing,
			To:     domain.TaskStateFailed,
			At:     d.opts.now(),
			Result: result,
		})
		if errors.Is(err, store.ErrStateConflict) {
			continue
		}
		if err != nil {
			return 0, err
		}
		log.Warn("stranded task marked failed")
		d.emit(ctx, failed)
	}

	return len(stranded), nil
}

func (d *Dispatcher) emit(ctx context.Context, task *domain.Task) {
	if err := d.opts.emitter.EmitEvent(ctx, events.NewTaskEvent(task, d.opts.now())); err != nil {
		d.logger.Warn("failed to emit task event",
			slog.String("task_id", task.ID),
			slog.String("error", err.Error()))
	}
}
