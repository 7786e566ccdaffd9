package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bacalhau-project/vmcheck/pkg/smoke"
)

func newConnectCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Check that the host answers a command over SSH",
		Long: `Connect to the host with the configured key, run the check command and
verify its output contains the expected text.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			start := time.Now()
			result, err := smoke.CheckConnectivity(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s@%s: %s (%s)\n",
				cfg.User, result.Address, result.Output, elapsed(start))
			return nil
		},
	}
}
