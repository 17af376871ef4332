package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/phrazzld/goalq/internal/client"
	"github.com/phrazzld/goalq/internal/domain"
	"github.com/spf13/cobra"
)

func (o *rootOptions) newClient() (*client.Client, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return client.New(cfg.Client)
}

func newSubmitCmd(opts *rootOptions) *cobra.Command {
	var (
		id       string
		maxSteps int
		wait     bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "submit <goal>",
		Short: "Queue a goal",
		Example: `  goalq submit "Open the calculator and add 2 and 2"
  goalq submit --max-steps 5 --wait "Empty the trash"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.newClient()
			if err != nil {
				return err
			}

			req := client.SubmitRequest{ID: id, Goal: strings.Join(args, " ")}
			if cmd.Flags().Changed("max-steps") {
				req.MaxSteps = &maxSteps
			}

			task, err := c.Submit(cmd.Context(), req)
			if err != nil {
				return err
			}
			if !wait {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), task.ID)
				return err
			}
			return waitAndPrint(cmd.Context(), cmd.OutOrStdout(), c, task.ID, interval)
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "task id (default: generated)")
	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "maximum agent actions (default 20)")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the task to finish and print it")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "poll interval with --wait")
	return cmd
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.newClient()
			if err != nil {
				return err
			}
			task, err := c.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), task)
		},
	}
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var (
		status string
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks, oldest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.newClient()
			if err != nil {
				return err
			}
			tasks, err := c.List(cmd.Context(), status, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), tasks)
			}
			return printTaskTable(cmd.OutOrStdout(), tasks)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only tasks in this state (queued, processing, completed, failed, cancelled)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of tasks")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newCancelCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a task that has not started",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.newClient()
			if err != nil {
				return err
			}
			resp, err := c.Cancel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", resp.ID, resp.State)
			return err
		},
	}
}

func newWaitCmd(opts *rootOptions) *cobra.Command {
	var (
		interval time.Duration
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "wait <id>",
		Short: "Wait for a task to finish and print it",
		Long:  "Wait for a task to reach a final state. Exits non-zero unless it completed.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.newClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			return waitAndPrint(ctx, cmd.OutOrStdout(), c, args[0], interval)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", time.Second, "poll interval")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this long (default: never)")
	return cmd
}

func waitAndPrint(ctx context.Context, w io.Writer, c *client.Client, id string, interval time.Duration) error {
	task, err := c.Wait(ctx, id, interval)
	if err != nil {
		return err
	}
	if err := printJSON(w, task); err != nil {
		return err
	}
	if task.State != domain.TaskStateCompleted {
		return fmt.Errorf("task %s %s", task.ID, task.State)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTaskTable(w io.Writer, tasks []*domain.Task) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tCREATED\tGOAL")
	for _, t := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID, t.State, t.CreatedAt.Format(time.RFC3339), truncate(t.Goal, 60))
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
