package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bacalhau-project/vmcheck/pkg/display"
	"github.com/bacalhau-project/vmcheck/pkg/smoke"
	"github.com/bacalhau-project/vmcheck/pkg/table"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var progress bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every smoke check and print a summary table",
		Long: `Connect once, run the check command and then check every configured
service over the same connection. Exits non-zero if any check failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			var p *display.Progress
			var onStep func(string)
			if progress {
				p = display.NewProgress(cmd.ErrOrStderr(), "Checking "+cfg.Host)
				onStep = p.Step
			}

			report := smoke.Run(cmd.Context(), cfg, onStep)
			if p != nil {
				p.Stop()
			}

			out := cmd.OutOrStdout()
			rt := table.NewResultTable(out)
			rt.AddReport(report)
			rt.Render()
			fmt.Fprintln(out, table.Summary(report))

			return report.Err()
		},
	}

	cmd.Flags().BoolVar(&progress, "progress", false, "Show a spinner while checks run")
	return cmd
}
