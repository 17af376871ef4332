package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/goalq/internal/config"
	"github.com/phrazzld/goalq/internal/platform/logger"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var noWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and, unless disabled, the worker",
		Long: `Run the task API. The dispatcher runs in the same process unless
--no-worker is given or dispatcher.enabled is false; in that case run
"goalq worker" against the same store.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Auth.HasCredentials() {
				return errors.New("refusing to serve without credentials: set auth.api_keys, auth.api_key_hashes or auth.token_secret")
			}
			return runServe(cmd.Context(), cfg, cfg.Dispatcher.Enabled && !noWorker)
		},
	}

	cmd.Flags().BoolVar(&noWorker, "no-worker", false, "serve the API only; another process runs the worker")
	return cmd
}

func newWorkerCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run only the dispatcher against the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			return runWorker(cmd.Context(), cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config, withWorker bool) error {
	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg, log, withWorker)
	if err != nil {
		return err
	}
	defer app.cleanup()

	handler, err := app.setupRouter()
	if err != nil {
		return err
	}

	if app.dispatcher != nil {
		if err := app.dispatcher.Start(); err != nil {
			return fmt.Errorf("failed to start dispatcher: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.runHTTPServer(gctx, handler) })
	g.Go(func() error { return app.watchQueue(gctx) })
	return g.Wait()
}

func runWorker(ctx context.Context, cfg *config.Config) error {
	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer app.cleanup()

	if err := app.dispatcher.Start(); err != nil {
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}

	// The queue watcher returns when ctx ends; cleanup then waits for any
	// running task.
	return app.watchQueue(ctx)
}
