package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joescharf/reviewgate/internal/gate"
	"github.com/joescharf/reviewgate/internal/invoke"
)

var decideCmd = &cobra.Command{
	Use:   "decide <report.json>",
	Short: "Apply the gate to an existing findings report",
	Long: `Decide PASS or FAIL for a findings report produced earlier, without
resolving a change-set or running reviewers. An unreadable report is
INDETERMINATE.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return usageErrorf("decide takes exactly one report path, got %d", len(args))
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return decideRun(cmd, args[0])
	},
}

func init() {
	decideCmd.Flags().String("fail-on", "", "Comma-separated blocking severities")
	rootCmd.AddCommand(decideCmd)
}

func decideRun(cmd *cobra.Command, path string) error {
	cfg, err := gateConfig(cmd)
	if err != nil {
		return usageErrorf("%v", err)
	}

	report, err := invoke.LoadReport(path)
	if err != nil {
		v := gate.Indeterminate(err.Error())
		ui.Verdict(v)
		return verdictExit(v)
	}
	return verdictExit(renderVerdict(report, cfg))
}
