package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"go.halcyon.sh/gatekeep/client"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Probe the identity server candidates in pool order",
	Long:  `Runs one unauthenticated session verification against the configured candidates and reports which one answered. The answering candidate is promoted, exactly as the gatekeeper would do.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(cfg.APIURIs) == 0 {
			return fmt.Errorf("no identity server candidates configured (API_URIS)")
		}

		identity := client.New(client.Config{
			Candidates: cfg.APIURIs,
			Timeout:    cfg.VerifyTimeoutDuration(),
		}, nil)

		res := identity.VerifySession(cmd.Context(), "probe")
		out := cmd.OutOrStdout()
		if res.Empty() {
			fmt.Fprintf(out, "no candidate answered (%s failure)\n", res.Failure)
		} else {
			fmt.Fprintf(out, "answered with status %d\n", res.Status)
		}
		for i, candidate := range identity.Pool().Snapshot() {
			marker := " "
			if i == 0 && !res.Empty() {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %s\n", marker, candidate)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)
}
