package cmd

import (
	"fmt"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/bacalhau-project/vmcheck/pkg/smoke"
)

func newScriptCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "script <ssh-key-path>",
		Short: "Check SSH connectivity with the key given as an argument",
		Long: `Connect with the private key at <ssh-key-path>, print the output of the
check command and verify it contains the expected text.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cfg.SSHKeyPath, err = homedir.Expand(args[0]); err != nil {
				return fmt.Errorf("failed to expand ssh key path: %w", err)
			}

			result, err := smoke.CheckConnectivity(cmd.Context(), cfg)
			if result != nil {
				fmt.Fprintln(cmd.OutOrStdout(), result.Output)
			}
			return err
		},
	}
}
