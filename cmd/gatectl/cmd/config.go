package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the derived gatekeeper configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "auth mode:      %s\n", cfg.Mode)
		fmt.Fprintf(out, "app origin:     %s\n", cfg.AppURI)
		fmt.Fprintf(out, "auth origin:    %s\n", cfg.AuthURI)
		fmt.Fprintf(out, "candidates:     %s\n", strings.Join(cfg.APIURIs, ", "))
		fmt.Fprintf(out, "private routes: %s\n", strings.Join(cfg.PrivateRoutes, ", "))
		fmt.Fprintf(out, "cookie domain:  %s\n", cfg.CookieDomain)
		fmt.Fprintf(out, "landing only:   %t\n", cfg.LandingOnly)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
