package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"steamfetch/internal/api"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show past download outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				entries, err := client.History(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, entries)
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "History is empty")
					return nil
				}

				rows := make([][]string, 0, len(entries))
				for _, entry := range entries {
					title := entry.Title
					if title == "" {
						title = "app " + strconv.FormatInt(entry.AppID, 10)
					}
					finished := ""
					if entry.FinishedAt != nil {
						finished = entry.FinishedAt.Local().Format(time.RFC3339)
					}
					rows = append(rows, []string{
						shortID(entry.JobID),
						strconv.FormatInt(entry.AppID, 10),
						title,
						string(entry.FinalState),
						strconv.Itoa(entry.Attempts),
						humanize.IBytes(uint64(entry.BytesDownloaded)),
						finished,
					})
				}
				out := renderTable(
					[]string{"Job", "App", "Title", "Outcome", "Attempts", "Downloaded", "Finished"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}

	historyCmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of entries")
	historyCmd.Flags().BoolVar(&jsonOut, "json", false, "Emit entries as JSON")

	historyCmd.AddCommand(newHistoryClearCommand(ctx))
	return historyCmd
}

func newHistoryClearCommand(ctx *commandContext) *cobra.Command {
	var states []string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete history records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				deleted, err := client.ClearHistory(cmd.Context(), states...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d record(s)\n", deleted)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&states, "state", nil, "Only delete records in these final states (completed, failed, cancelled)")
	return cmd
}

func newLibraryCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "library",
		Short: "List installed games",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				games, err := client.Library(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, games)
				}
				if len(games) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No installed games found")
					return nil
				}

				rows := make([][]string, 0, len(games))
				for _, game := range games {
					appID := ""
					if game.AppID > 0 {
						appID = strconv.FormatInt(game.AppID, 10)
					}
					rows = append(rows, []string{
						game.Title,
						appID,
						humanize.IBytes(uint64(game.SizeBytes)),
						game.ModifiedAt.Local().Format("2006-01-02 15:04"),
					})
				}
				out := renderTable(
					[]string{"Title", "App", "Size", "Modified"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit games as JSON")
	return cmd
}
