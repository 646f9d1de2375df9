// Package main is the entry point for the node announcer, the supplemental
// counterpart to the balancer that broadcasts DISCOVER datagrams for one or
// both service classes.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "node",
		Short:         "Run the inference node announcer",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.AddCommand(newAnnounceCmd())
	return cmd
}
