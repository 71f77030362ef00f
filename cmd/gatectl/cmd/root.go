package cmd

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"go.halcyon.sh/gatekeep/config"
	"go.halcyon.sh/gatekeep/log"
)

var (
	appLogger log.Logger
	cfg       *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "gatectl",
	Short: "gatectl inspects a gatekeeper deployment",
	Long:  `A command-line companion for the gatekeeper: prints the derived configuration and probes the identity server candidates.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		appLogger = log.NewZerologAdapter(zerolog.InfoLevel, true)

		loaded, err := config.Load()
		if err != nil {
			appLogger.Error(cmd.Context(), "failed to load configuration", err)
			return err
		}
		cfg = loaded
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
