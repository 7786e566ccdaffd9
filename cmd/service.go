package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bacalhau-project/vmcheck/pkg/smoke"
)

func newServiceCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "service [name...]",
		Short: "Check that services are running and enabled",
		Long: `Check over SSH that each named systemd service is running and enabled.
Without arguments the configured services are checked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			names := cfg.Services
			if len(args) > 0 {
				names = args
			}
			if len(names) == 0 {
				return fmt.Errorf("no services to check")
			}

			sshConfig, err := smoke.Dial(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer sshConfig.Close()

			states, err := smoke.CheckServices(cmd.Context(), smoke.NewSSHHost(sshConfig), names...)
			for _, state := range states {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: running=%t enabled=%t\n",
					state.Name, state.Running, state.Enabled)
			}
			return err
		},
	}
}
