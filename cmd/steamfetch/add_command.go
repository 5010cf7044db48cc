package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"steamfetch/internal/api"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var (
		title     string
		username  string
		password  string
		guardCode string
		platform  string
		validate  bool
		jsonOut   bool
	)

	cmd := &cobra.Command{
		Use:   "add <app-id | store URL>",
		Short: "Queue a game for download",
		Long: "Queue a game for download by numeric app id or Steam store URL.\n" +
			"Downloads are anonymous unless --username is given. When --password\n" +
			"is omitted the password is read interactively so it never appears in\n" +
			"shell history or process listings.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.EnqueueRequest{
				Identifier: args[0],
				Title:      title,
				Username:   username,
				GuardCode:  guardCode,
				Platform:   platform,
			}
			if cmd.Flags().Changed("validate") {
				req.Validate = &validate
			}

			if username != "" {
				secret := password
				if secret == "" {
					var err error
					secret, err = promptPassword(cmd, username)
					if err != nil {
						return err
					}
				}
				if secret == "" {
					return errors.New("a password is required for credentialed downloads")
				}
				req.Password = secret
			}

			return ctx.withClient(func(client *api.Client) error {
				job, err := client.Enqueue(cmd.Context(), req)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, job)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued app %d as job %s\n", job.AppID, job.ID)
				if job.AuthMode == "credentialed" {
					fmt.Fprintf(cmd.OutOrStdout(), "Watch for a Steam Guard prompt with `steamfetch queue list`; answer with `steamfetch guard %s <code>`\n", job.ID)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Display title for the queue entry")
	cmd.Flags().StringVarP(&username, "username", "u", "", "Steam account for licensed games (omit for anonymous)")
	cmd.Flags().StringVar(&password, "password", "", "Steam password (prompted interactively when omitted)")
	cmd.Flags().StringVar(&guardCode, "guard-code", "", "Steam Guard code to supply up front")
	cmd.Flags().StringVar(&platform, "platform", "", "Override the configured platform (windows, linux, macos)")
	cmd.Flags().BoolVar(&validate, "validate", false, "Verify installed files after download")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the created job as JSON")

	return cmd
}

// promptPassword reads the password without echo on a terminal and falls
// back to a plain line read when stdin is a pipe.
func promptPassword(cmd *cobra.Command, username string) (string, error) {
	fmt.Fprintf(cmd.ErrOrStderr(), "Steam password for %s: ", username)

	fd := os.Stdin.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		raw, err := term.ReadPassword(int(fd))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(raw), nil
	}

	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
