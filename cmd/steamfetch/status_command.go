package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"steamfetch/internal/api"
)

const (
	ansiGreen = "\x1b[32m"
	ansiRed   = "\x1b[31m"
	ansiReset = "\x1b[0m"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and environment checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, status)
				}
				renderStatus(cmd.OutOrStdout(), status)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit status as JSON")
	return cmd
}

func renderStatus(out io.Writer, status api.StatusResponse) {
	colorize := shouldColorize(out)

	running := "stopped"
	if status.Running {
		running = fmt.Sprintf("running (pid %d)", status.PID)
	}
	fmt.Fprintf(out, "Daemon:   %s\n", running)
	fmt.Fprintf(out, "Queue:    %d total, %d queued, %d active, %d completed, %d failed, %d cancelled\n",
		status.Queue.Total, status.Queue.Queued, status.Queue.Active,
		status.Queue.Completed, status.Queue.Failed, status.Queue.Cancelled)
	fmt.Fprintf(out, "History:  %s\n", status.HistoryDBPath)
	fmt.Fprintf(out, "Lock:     %s\n", status.LockFilePath)

	fmt.Fprintln(out, "Checks:")
	for _, check := range status.Checks {
		mark := "ok"
		if !check.Passed {
			mark = "FAIL"
		}
		if colorize {
			if check.Passed {
				mark = ansiGreen + mark + ansiReset
			} else {
				mark = ansiRed + mark + ansiReset
			}
		}
		line := fmt.Sprintf("  [%s] %s", mark, check.Name)
		if check.Detail != "" {
			line += " - " + check.Detail
		}
		fmt.Fprintln(out, line)
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
