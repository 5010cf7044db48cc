package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"steamfetch/internal/api"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the download queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueList(ctx, cmd, false)
		},
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued and recently finished jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueList(ctx, cmd, jsonOut)
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit jobs as JSON")
	return cmd
}

func runQueueList(ctx *commandContext, cmd *cobra.Command, jsonOut bool) error {
	return ctx.withClient(func(client *api.Client) error {
		jobs, err := client.Queue(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOut {
			return writeJSON(cmd, jobs)
		}
		if len(jobs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
			return nil
		}

		rows := make([][]string, 0, len(jobs))
		for _, job := range jobs {
			rows = append(rows, []string{
				shortID(job.ID),
				strconv.FormatInt(job.AppID, 10),
				jobTitle(job),
				describeState(job),
				describeProgress(job),
				strconv.Itoa(job.AttemptCount),
			})
		}
		out := renderTable(
			[]string{"Job", "App", "Title", "State", "Progress", "Attempts"},
			rows,
			[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignLeft, alignRight},
		)
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	})
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				job, err := client.Job(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, job)
				}
				printJobDetail(cmd, job)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the job as JSON")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a queued or active download",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				if err := client.Cancel(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for %s\n", args[0])
				return nil
			})
		},
	}
}

func newGuardCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "guard <job-id> <code>",
		Short: "Answer a pending Steam Guard prompt",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				if err := client.SubmitGuardCode(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Guard code submitted")
				return nil
			})
		},
	}
}

func printJobDetail(cmd *cobra.Command, job api.JobView) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job:      %s\n", job.ID)
	fmt.Fprintf(out, "App:      %d\n", job.AppID)
	if job.Title != "" {
		fmt.Fprintf(out, "Title:    %s\n", job.Title)
	}
	fmt.Fprintf(out, "Auth:     %s\n", job.AuthMode)
	fmt.Fprintf(out, "Target:   %s\n", job.TargetDir)
	fmt.Fprintf(out, "State:    %s\n", describeState(job))
	fmt.Fprintf(out, "Progress: %s\n", describeProgress(job))
	fmt.Fprintf(out, "Attempts: %d\n", job.AttemptCount)
	fmt.Fprintf(out, "Created:  %s\n", job.CreatedAt.Local().Format(time.RFC3339))
	if job.StartedAt != nil {
		fmt.Fprintf(out, "Started:  %s\n", job.StartedAt.Local().Format(time.RFC3339))
	}
	if job.FinishedAt != nil {
		fmt.Fprintf(out, "Finished: %s\n", job.FinishedAt.Local().Format(time.RFC3339))
	}
	for _, failure := range job.ErrorLog {
		fmt.Fprintf(out, "Attempt %d failed (%s): %s\n", failure.Attempt, failure.Reason, failure.Message)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func jobTitle(job api.JobView) string {
	if job.Title != "" {
		return job.Title
	}
	return "app " + strconv.FormatInt(job.AppID, 10)
}

func describeState(job api.JobView) string {
	switch {
	case job.AwaitingGuardCode:
		return job.State + " (guard code needed)"
	case job.CancelRequested && job.State != "cancelled":
		return job.State + " (cancelling)"
	case job.WillRetry && job.RetryInSeconds > 0:
		return fmt.Sprintf("%s (retry in %ds)", job.State, job.RetryInSeconds)
	default:
		return job.State
	}
}

func describeProgress(job api.JobView) string {
	p := job.Progress
	if p.BytesTotal > 0 {
		s := fmt.Sprintf("%5.1f%%  %s / %s", p.Percent,
			humanize.IBytes(uint64(p.BytesDownloaded)),
			humanize.IBytes(uint64(p.BytesTotal)))
		if p.ETASeconds > 0 {
			s += "  ETA " + (time.Duration(p.ETASeconds) * time.Second).String()
		}
		return s
	}
	if p.Percent > 0 {
		return fmt.Sprintf("%5.1f%%", p.Percent)
	}
	return "-"
}
