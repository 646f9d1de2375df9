// Package app provides the entry point for the balancer command-line
// application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/balancer/internal/config"
	"github.com/stacklok/balancer/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "balancer",
	DisableAutoGenTag: true,
	Short:             "balancer fronts dynamically-discovered LLM inference backends",
	Long: `balancer is a small, stateful HTTP reverse proxy that fronts a pool of
dynamically-discovered backend worker nodes serving LLM-style inference
endpoints. Backends announce themselves over a UDP discovery protocol;
nodes that stop announcing are reaped.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logger.Errorf("error displaying help: %v", err)
		}
	},
}

// NewRootCmd creates the root command for the balancer CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.AddCommand(serveCmd)
	rootCmd.SilenceUsage = true
	return rootCmd
}

func init() {
	if err := config.BindFlags(serveCmd.Flags()); err != nil {
		logger.Fatalf("failed to bind flags: %v", err)
	}
	serveCmd.PersistentPreRun = func(_ *cobra.Command, _ []string) {
		logger.Initialize(viper.GetString("log-level"))
	}
}
