package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/phrazzld/goalq/internal/platform/logger"
	"github.com/phrazzld/goalq/internal/platform/sqlstore"
	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the SQL store schema",
		Long: `Apply, roll back or inspect the schema of the sqlite and postgres stores.
SQLite databases are also migrated automatically when opened.`,
	}

	run := func(action string) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			log, err := logger.SetupWithWriter(cfg.Server, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			db, dialect, err := openSQL(ctx, cfg.Store, log)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			switch action {
			case "up":
				return sqlstore.Migrate(ctx, db, dialect, log)
			case "down":
				return sqlstore.Rollback(ctx, db, dialect, log)
			default:
				statuses, err := sqlstore.Status(ctx, db, dialect)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "VERSION\tAPPLIED\tSOURCE")
				for _, s := range statuses {
					fmt.Fprintf(w, "%d\t%t\t%s\n", s.Version, s.Applied, s.Source)
				}
				return w.Flush()
			}
		}
	}

	cmd.AddCommand(
		&cobra.Command{Use: "up", Short: "Apply all pending migrations", Args: cobra.NoArgs, RunE: run("up")},
		&cobra.Command{Use: "down", Short: "Roll back the latest migration", Args: cobra.NoArgs, RunE: run("down")},
		&cobra.Command{Use: "status", Short: "Show applied and pending migrations", Args: cobra.NoArgs, RunE: run("status")},
	)
	return cmd
}
