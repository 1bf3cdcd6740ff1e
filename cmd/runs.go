package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/reviewgate/internal/invoke"
	"github.com/joescharf/reviewgate/internal/models"
	"github.com/joescharf/reviewgate/internal/output"
	"github.com/joescharf/reviewgate/internal/store"
)

var (
	runsLimit   int
	runsVerdict string
	runsMode    string
)

var runsCmd = &cobra.Command{
	Use:     "runs",
	Aliases: []string{"history"},
	Short:   "Show gate run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runsListRun(cmd.Context())
	},
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runsListRun(cmd.Context())
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run by ID or unique prefix",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return usageErrorf("show takes exactly one run ID")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runsShowRun(cmd.Context(), args[0])
	},
}

func init() {
	for _, c := range []*cobra.Command{runsCmd, runsListCmd} {
		c.Flags().IntVar(&runsLimit, "limit", 20, "Maximum runs to show")
		c.Flags().StringVar(&runsVerdict, "verdict", "", "Filter by verdict (PASS, FAIL, INDETERMINATE)")
		c.Flags().StringVar(&runsMode, "mode", "", "Filter by change-set mode")
	}
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

func runsListRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := getStore()
	if err != nil {
		return err
	}

	filter := store.RunListFilter{Verdict: models.VerdictStatus(runsVerdict), Limit: runsLimit}
	if runsMode != "" {
		mode, err := models.ParseMode(runsMode)
		if err != nil {
			return usageErrorf("%v", err)
		}
		filter.Mode = mode
	}

	runs, err := s.ListRuns(ctx, filter)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		ui.Info("No runs recorded")
		return nil
	}

	table := ui.Table([]string{"ID", "Started", "Mode", "Target", "Verdict", "Blocking", "Findings", "Status"})
	for _, r := range runs {
		_ = table.Append([]string{
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			string(r.Mode),
			r.Target,
			output.VerdictColor(r.Verdict),
			fmt.Sprintf("%d", r.BlockingCount),
			fmt.Sprintf("%d", r.FindingCount),
			output.RunStatusColor(r.Status),
		})
	}
	return table.Render()
}

func runsShowRun(ctx context.Context, id string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	r, err := s.FindRun(ctx, id)
	if err != nil {
		return err
	}

	w := ui.Out
	fmt.Fprintf(w, "Run:       %s\n", output.Cyan(r.ID))
	fmt.Fprintf(w, "Mode:      %s\n", r.Mode)
	fmt.Fprintf(w, "Target:    %s\n", r.Target)
	fmt.Fprintf(w, "Status:    %s\n", output.RunStatusColor(r.Status))
	fmt.Fprintf(w, "Verdict:   %s\n", output.VerdictColor(r.Verdict))
	if r.Strategy != "" {
		fmt.Fprintf(w, "Env:       %s\n", r.Strategy)
	}
	fmt.Fprintf(w, "Findings:  %d (%d blocking)\n", r.FindingCount, r.BlockingCount)
	fmt.Fprintf(w, "Started:   %s\n", r.StartedAt.Local().Format(time.DateTime))
	if r.EndedAt != nil {
		fmt.Fprintf(w, "Duration:  %s\n", r.Duration().Round(time.Second))
	}
	if r.Error != "" {
		fmt.Fprintf(w, "Error:     %s\n", output.Red(r.Error))
	}
	if r.ArtifactPath == "" {
		return nil
	}
	fmt.Fprintf(w, "Artifact:  %s\n", r.ArtifactPath)

	report, err := invoke.LoadReport(r.ArtifactPath)
	if err != nil {
		ui.VerboseLog("Artifact not readable: %v", err)
		return nil
	}
	if report.Len() == 0 {
		return nil
	}
	fmt.Fprintln(w)
	cfg, err := models.NewGateConfig("", viper.GetString("blocking_severities"))
	if err != nil {
		return err
	}
	return ui.Findings(report.Findings(), cfg)
}
