package main

import (
	"fmt"

	"github.com/phrazzld/goalq/internal/config"
	"github.com/spf13/cobra"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configFile string
	envFile    string
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{ConfigFile: o.configFile, EnvFile: o.envFile})
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "goalq",
		Short: "Queue natural-language goals for a desktop automation agent",
		Long: `goalq accepts goals over HTTP, queues them durably and hands them one at
a time to an automation agent. Queued goals can be cancelled until the
worker claims them.

Quick start:
  goalq keygen                      Create an API key
  goalq serve                       Run the API and the worker
  goalq submit "Open the calculator"
  goalq wait <id>`,
		SilenceUsage:  true,
		SilenceErrors: false,
		Version:       version,
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default $HOME/.goalq/config.yaml or ./config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading GOALQ_* variables")

	cmd.AddCommand(
		newServeCmd(opts),
		newWorkerCmd(opts),
		newMigrateCmd(opts),
		newKeygenCmd(),
		newTokenCmd(opts),
		newSubmitCmd(opts),
		newStatusCmd(opts),
		newListCmd(opts),
		newCancelCmd(opts),
		newWaitCmd(opts),
	)

	return cmd
}
