package cmd

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pairlink/core/cli"
	"github.com/pairlink/core/pkg/client"
	"github.com/pairlink/core/pkg/paths"
	"github.com/spf13/cobra"
)

// NewLinkCmd returns the QR-mode linking command.
func NewLinkCmd() *cobra.Command {
	var output string
	var noWait bool

	cmd := &cobra.Command{
		Use:   "link",
		Short: "Link a new session by QR code",
		Long:  "Start a QR-mode session: the daemon fetches a challenge, renders it as a QR code, and waits for it to be scanned.",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := cli.GetOptions(cmd)
			handler := cli.NewErrorHandler(opts.Verbose)

			c, err := daemonClient()
			if err != nil {
				return handler.Handle(err)
			}
			defer c.Close()

			result, err := c.CreateQR(cmd.Context())
			if err != nil {
				return handler.Handle(err)
			}

			if opts.JSONOutput {
				return json.NewEncoder(os.Stdout).Encode(result)
			}

			fmt.Printf("Session %s created.\n", result.ID)
			if output != "" {
				if err := writeChallengePNG(result.ChallengeImage, output); err != nil {
					return handler.Handle(err)
				}
				fmt.Printf("QR code written to %s. Scan it with your phone.\n", output)
			} else {
				fmt.Println("Scan the QR code below (data URI, render with any viewer):")
				fmt.Println(result.ChallengeImage)
			}

			if noWait {
				return nil
			}
			return followEvents(cmd.Context(), c, result.ID)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the QR code PNG to a file")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Exit after printing the code instead of waiting for the scan")
	return cmd
}

// NewPairCmd returns the pairing-code linking command.
func NewPairCmd() *cobra.Command {
	var noWait bool

	cmd := &cobra.Command{
		Use:   "pair <phone>",
		Short: "Link a new session by pairing code",
		Long:  "Start a pairing-mode session: the daemon requests a short code that you type on the phone instead of scanning a QR.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := cli.GetOptions(cmd)
			handler := cli.NewErrorHandler(opts.Verbose)

			c, err := daemonClient()
			if err != nil {
				return handler.Handle(err)
			}
			defer c.Close()

			result, err := c.CreatePair(cmd.Context(), args[0])
			if err != nil {
				return handler.Handle(err)
			}

			if opts.JSONOutput {
				return json.NewEncoder(os.Stdout).Encode(result)
			}

			fmt.Printf("Session %s created.\n", result.ID)
			fmt.Printf("Enter this code on your phone: %s\n", result.PairingCode)

			if noWait {
				return nil
			}
			return followEvents(cmd.Context(), c, result.ID)
		},
	}

	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Exit after printing the code instead of waiting for completion")
	return cmd
}

// daemonClient connects to the local daemon, failing fast when it is
// not running.
func daemonClient() (*client.Client, error) {
	c := client.New(paths.SocketPath())
	if !c.IsRunning() {
		c.Close()
		return nil, fmt.Errorf("daemon is not running; start it with 'pairlink daemon start'")
	}
	return c, nil
}

// followEvents prints session lifecycle notifications until a terminal
// one arrives.
func followEvents(ctx context.Context, c *client.Client, id string) error {
	events, err := c.Events(ctx, id)
	if err != nil {
		return err
	}

	for event := range events {
		switch event.Kind {
		case "scanned":
			fmt.Println("Code scanned, authenticating...")
		case "pairing-code":
			// Already printed from the create response.
		case "connected":
			fmt.Printf("Linked as %s.\n", event.Payload)
			return nil
		case "challenge-expired":
			return fmt.Errorf("the code expired before it was used")
		case "failed":
			return fmt.Errorf("linking failed: %s", event.Payload)
		}
	}
	return fmt.Errorf("event stream closed before the session completed")
}

// writeChallengePNG decodes a data-URI challenge image into a PNG file.
func writeChallengePNG(dataURI, path string) error {
	const prefix = "data:image/png;base64,"
	if !strings.HasPrefix(dataURI, prefix) {
		return fmt.Errorf("unexpected challenge image format")
	}
	png, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(dataURI, prefix))
	if err != nil {
		return fmt.Errorf("decode challenge image: %w", err)
	}
	return os.WriteFile(path, png, 0600)
}
