package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/pairlink/core/cli"
	"github.com/spf13/cobra"
)

// NewSessionsCmd returns the session inspection and removal commands.
func NewSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage linked sessions",
	}

	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsGetCmd())
	cmd.AddCommand(newSessionsRmCmd())
	cmd.AddCommand(newSessionsBackupCmd())

	return cmd
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := cli.GetOptions(cmd)
			handler := cli.NewErrorHandler(opts.Verbose)

			c, err := daemonClient()
			if err != nil {
				return handler.Handle(err)
			}
			defer c.Close()

			list, err := c.List(cmd.Context())
			if err != nil {
				return handler.Handle(err)
			}

			if opts.JSONOutput {
				return json.NewEncoder(os.Stdout).Encode(list)
			}

			if len(list.Sessions) == 0 && len(list.Active) == 0 {
				fmt.Println("No sessions")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tMODE\tSTATUS\tIDENTITY\tCREATED\tGOOD")
			for _, s := range list.Sessions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%v\n",
					s.ID, s.Mode, s.Status, s.Identity,
					s.CreatedAt.Local().Format(time.DateTime), s.Good)
			}
			for _, a := range list.Active {
				fmt.Fprintf(w, "%s\t%s\t%s (in progress)\t\t%s\t\n",
					a.ID, a.Mode, a.Status, a.CreatedAt.Local().Format(time.DateTime))
			}
			return w.Flush()
		},
	}
}

func newSessionsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one session in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := cli.GetOptions(cmd)
			handler := cli.NewErrorHandler(opts.Verbose)

			c, err := daemonClient()
			if err != nil {
				return handler.Handle(err)
			}
			defer c.Close()

			detail, err := c.Get(cmd.Context(), args[0])
			if err != nil {
				return handler.Handle(err)
			}

			if opts.JSONOutput {
				return json.NewEncoder(os.Stdout).Encode(detail)
			}

			fmt.Printf("ID:          %s\n", detail.ID)
			fmt.Printf("Mode:        %s\n", detail.Mode)
			fmt.Printf("Status:      %s\n", detail.Status)
			if detail.Identity != "" {
				fmt.Printf("Identity:    %s\n", detail.Identity)
			}
			fmt.Printf("Created:     %s\n", detail.CreatedAt.Local().Format(time.DateTime))
			fmt.Printf("Expires:     %s\n", detail.ExpiresAt.Local().Format(time.DateTime))
			fmt.Printf("Good:        %v\n", detail.Good)
			fmt.Printf("Permanent:   %v\n", detail.Permanent)
			fmt.Printf("Credentials: valid=%v\n", detail.CredentialsValid)
			if detail.LastActivity != nil {
				fmt.Printf("Last seen:   %s\n", detail.LastActivity.Local().Format(time.DateTime))
			}
			return nil
		},
	}
}

func newSessionsRmCmd() *cobra.Command {
	var force bool
	var token string

	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Stop and remove a session",
		Long:  "Stops the session if it is live, logs it out server-side, and removes its registry record and credential material. Completed sessions are protected unless --force is given.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := cli.GetOptions(cmd)
			handler := cli.NewErrorHandler(opts.Verbose)

			c, err := daemonClient()
			if err != nil {
				return handler.Handle(err)
			}
			defer c.Close()
			c.AccessToken = token

			if err := c.Remove(cmd.Context(), args[0], force); err != nil {
				return handler.Handle(err)
			}
			fmt.Printf("Session %s removed.\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Remove even a completed, protected session")
	cmd.Flags().StringVar(&token, "token", "", "Access token, required for --force when the daemon is configured with one")
	return cmd
}

func newSessionsBackupCmd() *cobra.Command {
	var output string
	var token string

	cmd := &cobra.Command{
		Use:   "backup <id>",
		Short: "Download a session's credential directory as a zip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := cli.GetOptions(cmd)
			handler := cli.NewErrorHandler(opts.Verbose)

			c, err := daemonClient()
			if err != nil {
				return handler.Handle(err)
			}
			defer c.Close()
			c.AccessToken = token

			if output == "" {
				output = args[0] + ".zip"
			}
			file, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
			if err != nil {
				return handler.Handle(err)
			}
			defer file.Close()

			if err := c.Archive(cmd.Context(), args[0], file); err != nil {
				return handler.Handle(err)
			}
			fmt.Printf("Wrote %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default <id>.zip)")
	cmd.Flags().StringVar(&token, "token", "", "Access token when the daemon gates file access")
	return cmd
}
