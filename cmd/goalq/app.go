package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/goalq/internal/config"
	"github.com/phrazzld/goalq/internal/events"
	"github.com/phrazzld/goalq/internal/platform/command"
	"github.com/phrazzld/goalq/internal/platform/fsqueue"
	"github.com/phrazzld/goalq/internal/platform/gemini"
	"github.com/phrazzld/goalq/internal/platform/memory"
	"github.com/phrazzld/goalq/internal/platform/postgres"
	"github.com/phrazzld/goalq/internal/platform/sqlite"
	"github.com/phrazzld/goalq/internal/platform/sqlstore"
	"github.com/phrazzld/goalq/internal/service"
	"github.com/phrazzld/goalq/internal/store"
	"github.com/phrazzld/goalq/internal/task"
)

// application holds the shared dependencies of the serve and worker
// commands and releases them on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	taskStore   store.TaskStore
	emitter     *events.InMemoryEventEmitter
	canceller   *task.Canceller
	taskService service.TaskService

	// dispatcher is nil when this process does not run the worker.
	dispatcher *task.Dispatcher
}

// newApplication opens the store and builds the services. The dispatcher
// (and its executor) is only built when withDispatcher is true; it is not
// started here.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, withDispatcher bool) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
	}

	var err error
	app.taskStore, app.db, err = openStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	app.emitter = events.NewInMemoryEventEmitter(logger)
	app.emitter.RegisterHandler(events.NewAuditHandler(logger))

	app.canceller = task.NewCanceller(app.taskStore, logger, task.WithEmitter(app.emitter))

	app.taskService, err = service.NewTaskService(app.taskStore, app.canceller, app.emitter, logger)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create task service: %w", err)
	}

	if withDispatcher {
		executor, err := newExecutor(ctx, cfg.Executor, logger)
		if err != nil {
			app.cleanup()
			return nil, err
		}

		app.dispatcher = task.NewDispatcher(app.taskStore, executor, task.DispatcherConfig{
			PollInterval:   cfg.Dispatcher.PollInterval,
			BatchSize:      cfg.Dispatcher.BatchSize,
			StrandedPolicy: task.StrandedPolicy(cfg.Dispatcher.StrandedPolicy),
		}, logger, task.WithEmitter(app.emitter))

		// Submissions made through this process wake the worker at once.
		app.emitter.RegisterHandler(app.dispatcher)
	}

	logger.Info("application initialized",
		slog.String("store", cfg.Store.Driver),
		slog.Bool("dispatcher", withDispatcher),
		slog.String("executor", cfg.Executor.Kind))
	return app, nil
}

// watchQueue wakes the dispatcher when another process enqueues into a
// shared queue directory. It is a no-op for other stores.
func (app *application) watchQueue(ctx context.Context) error {
	queue, ok := app.taskStore.(*fsqueue.Store)
	if !ok || app.dispatcher == nil {
		<-ctx.Done()
		return nil
	}
	err := queue.Watch(ctx, func(id string) {
		app.logger.Debug("queue directory changed", slog.String("task_id", id))
		app.dispatcher.Notify()
	})
	if err != nil {
		// Polling still works; lose only the early wake-up.
		app.logger.Warn("queue watcher unavailable, relying on polling", slog.String("error", err.Error()))
		<-ctx.Done()
	}
	return nil
}

// cleanup stops the dispatcher and closes the database, in that order, so
// a running task can still record its outcome.
func (app *application) cleanup() {
	if app.dispatcher != nil {
		app.dispatcher.Stop()
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", slog.String("error", err.Error()))
		}
	}
}

// openStore builds the configured task store. SQLite databases are
// migrated on open; PostgreSQL schemas are managed with "goalq migrate".
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (store.TaskStore, *sql.DB, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		logger.Warn("using the in-memory store, tasks are lost on exit")
		return memory.NewTaskStore(), nil, nil

	case config.DriverFSQueue:
		s, err := fsqueue.New(cfg.Dir, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open queue directory %s: %w", cfg.Dir, err)
		}
		logger.Info("queue directory opened", slog.String("dir", cfg.Dir))
		return s, nil, nil

	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.DSN, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := sqlstore.Migrate(ctx, db, sqlite.Dialect(), logger); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("failed to migrate sqlite database: %w", err)
		}
		return sqlstore.New(db, sqlite.Dialect()), db, nil

	case config.DriverPostgres:
		db, err := postgres.Open(ctx, cfg.DSN, logger)
		if err != nil {
			return nil, nil, err
		}
		return sqlstore.New(db, postgres.Dialect()), db, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// openSQL opens the database behind a SQL store driver for migrations.
func openSQL(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*sql.DB, sqlstore.Dialect, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.DSN, logger)
		return db, sqlite.Dialect(), err
	case config.DriverPostgres:
		db, err := postgres.Open(ctx, cfg.DSN, logger)
		return db, postgres.Dialect(), err
	default:
		return nil, sqlstore.Dialect{}, errors.New("migrations apply to the sqlite and postgres stores only")
	}
}

// newExecutor builds the configured executor.
func newExecutor(ctx context.Context, cfg config.ExecutorConfig, logger *slog.Logger) (task.Executor, error) {
	switch cfg.Kind {
	case config.ExecutorCommand:
		executor, err := command.New(cfg.Command, cfg.Args, cfg.Timeout, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize command executor: %w", err)
		}
		return executor, nil
	case config.ExecutorGemini:
		planner, err := gemini.NewPlanner(ctx, cfg.Gemini, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize gemini executor: %w", err)
		}
		return planner, nil
	case config.ExecutorEcho:
		logger.Warn("using the echo executor, goals are not acted on")
		return task.EchoExecutor{}, nil
	default:
		return nil, fmt.Errorf("unknown executor kind %q", cfg.Kind)
	}
}
