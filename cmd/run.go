package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/reviewgate/internal/changeset"
	"github.com/joescharf/reviewgate/internal/gate"
	"github.com/joescharf/reviewgate/internal/git"
	"github.com/joescharf/reviewgate/internal/invoke"
	"github.com/joescharf/reviewgate/internal/lifecycle"
	"github.com/joescharf/reviewgate/internal/logging"
	"github.com/joescharf/reviewgate/internal/models"
	"github.com/joescharf/reviewgate/internal/pipeline"
	"github.com/joescharf/reviewgate/internal/provision"
	"github.com/joescharf/reviewgate/internal/shell"
	"github.com/joescharf/reviewgate/internal/store"
)

var (
	runMode      string
	runPR        int
	runBase      string
	runHead      string
	runOwner     string
	runRepo      string
	runKeepEnv   bool
	runAISummary bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Review a change-set and render the gate verdict",
	Long: `Resolve the change-set, provision the reviewer environment, run the
review agents, and decide PASS, FAIL or INDETERMINATE.

Modes:
  explicit-pr     review --pr N
  latest-open-pr  review the most recently updated open pull request
  all-open-prs    list up to 5 open pull requests, review the latest one
  local-diff      review --base (default main, then master) ... --head (default HEAD)

Exit codes: 0 PASS, 1 FAIL, 2 usage, 3 INDETERMINATE, 4 infrastructure.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRun(cmd)
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runMode, "mode", string(models.ModeExplicitPR), "Change-set mode: explicit-pr, latest-open-pr, all-open-prs, local-diff")
	f.IntVar(&runPR, "pr", 0, "Pull request number (explicit-pr)")
	f.StringVar(&runBase, "base", "", "Base ref for local-diff (default main, then master)")
	f.StringVar(&runHead, "head", "", "Head ref for local-diff (default HEAD)")
	f.StringVar(&runOwner, "owner", "", "Repository owner (default from config or origin remote)")
	f.StringVar(&runRepo, "repo", "", "Repository name (default from config or origin remote)")
	f.String("agents", "", "Comma-separated review agents")
	f.String("fail-on", "", "Comma-separated blocking severities")
	f.String("output", "", "Findings artifact path")
	f.Duration("timeout", 0, "Overall run timeout")
	f.BoolVar(&runKeepEnv, "keep-env", false, "Keep the reviewer environment after the run")
	f.BoolVar(&runAISummary, "ai-summary", false, "Ask Claude for a plain-language note about the verdict")

	_ = viper.BindPFlag("artifacts.path", f.Lookup("output"))
	_ = viper.BindPFlag("run.timeout", f.Lookup("timeout"))

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	log := logging.Logger

	mode, err := models.ParseMode(runMode)
	if err != nil {
		return usageErrorf("%v", err)
	}
	if mode == models.ModeExplicitPR && runPR <= 0 {
		return usageErrorf("--pr is required with --mode %s", mode)
	}
	cfg, err := gateConfig(cmd)
	if err != nil {
		return usageErrorf("%v", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	gc := git.NewClient()
	params := changeset.Params{Number: runPR, BaseRef: runBase, HeadRef: runHead, RepoPath: cwd}
	if mode.IsPullRequest() {
		params.Owner, params.Repo, err = repoCoordinates(ctx, gc, cwd, runOwner, runRepo)
		if err != nil {
			return usageErrorf("%v", err)
		}
	}

	gh, err := newGitHubClient()
	if err != nil {
		return err
	}
	resolver := changeset.NewResolver(gh, gc, viper.GetString("github.web_url"), log)

	runID := store.NewRunID()
	envDir := viper.GetString("env.dir")
	if envDir == "" {
		envDir = filepath.Join(os.TempDir(), "gate-env-"+runID)
	}
	artifactPath := viper.GetString("artifacts.path")

	sh := shell.NewOSRunner()
	invoker := invoke.New(sh, invoke.Options{
		Module:      viper.GetString("reviewer.module"),
		OutputPath:  artifactPath,
		ProjectRoot: cwd,
		Token:       githubToken(),
	}, log)

	if dryRun {
		return runDryRun(ctx, resolver, invoker, mode, params, cfg)
	}

	prov := provision.New(sh, log)

	var runs interface {
		pipeline.RunCreator
		lifecycle.RunRecorder
	}
	if s, err := getStore(); err != nil {
		ui.Warning("Run history disabled: %v", err)
	} else {
		runs = s
	}

	deps := pipeline.Deps{
		Resolver:    resolver,
		Provisioner: prov,
		Invoker:     invoker,
		Finalizer:   lifecycle.New(prov, runs, lifecycle.Options{ArtifactPath: artifactPath, KeepEnv: runKeepEnv}, log),
		Runs:        runs,
	}

	req := pipeline.Request{
		RunID:  runID,
		Mode:   mode,
		Params: params,
		Config: cfg,
		Requirements: provision.Requirements{
			File:   viper.GetString("reviewer.requirements"),
			Dir:    envDir,
			Python: viper.GetString("reviewer.python"),
		},
		Timeout: viper.GetDuration("run.timeout"),
	}

	ui.VerboseLog("Run %s: mode=%s agents=%v blocking=%s", runID, mode, cfg.Agents(), models.JoinSeverities(cfg.BlockingSeverities()))
	out, err := pipeline.New(deps, log).Run(ctx, req)
	reportOutcome(out, cfg)
	if err != nil {
		return &exitError{code: ExitInfrastructure, err: err}
	}

	if runAISummary {
		printAISummary(ctx, out, cfg)
	}
	return verdictExit(out.Verdict)
}

func runDryRun(ctx context.Context, resolver *changeset.Resolver, invoker *invoke.Invoker, mode models.ChangeSetMode, params changeset.Params, cfg models.GateConfig) error {
	res, err := resolver.Resolve(ctx, mode, params)
	if err != nil {
		return &exitError{code: ExitInfrastructure, err: err}
	}
	printCandidates(res.Candidates)
	req := invoker.BuildRequest(res.ChangeSet, cfg)
	ui.Info("Change-set: %s", res.ChangeSet)
	ui.DryRunMsg("Would provision the reviewer environment (venv, alternate, ambient)")
	cmd := shell.Command{
		Name: viper.GetString("reviewer.python"),
		Args: req.Args(viper.GetString("reviewer.module"), !res.ChangeSet.Mode.IsPullRequest()),
	}
	ui.DryRunMsg("Would run: %s", cmd)
	return nil
}

func reportOutcome(out *pipeline.Outcome, cfg models.GateConfig) {
	if out == nil {
		return
	}
	printCandidates(out.Candidates)
	if out.ChangeSet.Mode != "" {
		ui.Info("Change-set: %s", out.ChangeSet)
	}
	if out.Env != nil {
		ui.VerboseLog("Environment: %s (%s)", out.Env.Strategy, out.Env.Python)
	}
	if out.Report != nil {
		if out.Report.Len() > 0 {
			if err := ui.Findings(out.Report.Findings(), cfg); err != nil {
				ui.Warning("Could not render findings: %v", err)
			}
		}
		fmt.Fprintln(ui.Out, out.Verdict.Summary)
	}
	for _, cerr := range out.Finalize.CleanupErrors {
		ui.Warning("Cleanup: %v", cerr)
	}
	if out.Finalize.Archived {
		ui.VerboseLog("Findings archived to %s", out.Finalize.ArtifactPath)
	}
	if out.Run != nil {
		ui.VerboseLog("Run recorded as %s", out.Run.ID)
	}
	ui.Verdict(out.Verdict)
}

func printCandidates(prs []git.PullRequest) {
	if len(prs) == 0 {
		return
	}
	ui.Info("Open pull requests (reviewing the first):")
	table := ui.Table([]string{"#", "Title", "Head", "Updated"})
	for _, pr := range prs {
		_ = table.Append([]string{
			fmt.Sprintf("%d", pr.Number),
			pr.Title,
			pr.HeadRef,
			pr.UpdatedAt.Local().Format(time.DateTime),
		})
	}
	_ = table.Render()
}

func printAISummary(ctx context.Context, out *pipeline.Outcome, cfg models.GateConfig) {
	client := newLLMClient()
	if client == nil {
		ui.Warning("--ai-summary needs anthropic.api_key or ANTHROPIC_API_KEY")
		return
	}
	note, err := client.SummarizeVerdict(ctx, out.ChangeSet, out.Report, out.Verdict, cfg)
	if err != nil {
		ui.Warning("AI summary unavailable: %v", err)
		return
	}
	fmt.Fprintln(ui.Out)
	fmt.Fprintln(ui.Out, note.Headline)
	if note.Explanation != "" {
		fmt.Fprintln(ui.Out, note.Explanation)
	}
	for _, step := range note.NextSteps {
		fmt.Fprintf(ui.Out, "  - %s\n", step)
	}
}

// gateConfig builds the gate configuration from config/env, with the
// command's --agents and --fail-on flags taking precedence when set.
func gateConfig(cmd *cobra.Command) (models.GateConfig, error) {
	agents := viper.GetString("agents")
	blocking := viper.GetString("blocking_severities")
	if f := cmd.Flags().Lookup("agents"); f != nil && f.Changed {
		agents = f.Value.String()
	}
	if f := cmd.Flags().Lookup("fail-on"); f != nil && f.Changed {
		blocking = f.Value.String()
	}
	return models.NewGateConfig(agents, blocking)
}

// verdictExit maps a verdict to the command result.
func verdictExit(v models.Verdict) error {
	switch v.Status {
	case models.VerdictPass:
		return nil
	case models.VerdictFail:
		return &exitError{code: ExitFail}
	default:
		return &exitError{code: ExitIndeterminate}
	}
}

// renderVerdict prints a verdict decided offline.
func renderVerdict(report *models.FindingsReport, cfg models.GateConfig) models.Verdict {
	v := gate.Decide(report, cfg)
	if report.Len() > 0 {
		if err := ui.Findings(report.Findings(), cfg); err != nil {
			ui.Warning("Could not render findings: %v", err)
		}
	}
	fmt.Fprintln(ui.Out, v.Summary)
	ui.Verdict(v)
	return v
}
