package main

import (
	"os"

	"github.com/pairlink/core/cli"
	"github.com/pairlink/core/cmd"
)

func main() {
	rootCmd := cli.NewStandardCommand(
		"pairlink",
		"Messaging session lifecycle manager",
	)

	rootCmd.AddCommand(cmd.NewDaemonCmd())
	rootCmd.AddCommand(cmd.NewLinkCmd())
	rootCmd.AddCommand(cmd.NewPairCmd())
	rootCmd.AddCommand(cmd.NewSessionsCmd())
	rootCmd.AddCommand(cmd.NewVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
