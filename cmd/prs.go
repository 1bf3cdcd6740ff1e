package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/joescharf/reviewgate/internal/changeset"
	"github.com/joescharf/reviewgate/internal/git"
)

var (
	prsOwner string
	prsRepo  string
)

var prsCmd = &cobra.Command{
	Use:   "prs",
	Short: "List the open pull requests the gate would consider",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return prsRun(cmd.Context())
	},
}

func init() {
	prsCmd.Flags().StringVar(&prsOwner, "owner", "", "Repository owner (default from config or origin remote)")
	prsCmd.Flags().StringVar(&prsRepo, "repo", "", "Repository name (default from config or origin remote)")
	rootCmd.AddCommand(prsCmd)
}

func prsRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	owner, repo, err := repoCoordinates(ctx, git.NewClient(), cwd, prsOwner, prsRepo)
	if err != nil {
		return usageErrorf("%v", err)
	}

	gh, err := newGitHubClient()
	if err != nil {
		return err
	}
	prs, err := gh.ListOpenPullRequests(ctx, owner, repo)
	if err != nil {
		return &exitError{code: ExitInfrastructure, err: &changeset.UpstreamQueryError{Owner: owner, Repo: repo, Err: err}}
	}
	if len(prs) == 0 {
		ui.Info("No open pull requests in %s/%s", owner, repo)
		return nil
	}

	changeset.SortByRecency(prs)
	if len(prs) > changeset.MaxCandidates {
		prs = prs[:changeset.MaxCandidates]
	}
	printCandidates(prs)
	return nil
}
