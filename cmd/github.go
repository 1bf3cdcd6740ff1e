package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/joescharf/reviewgate/internal/git"
)

// githubToken returns github.token, falling back to GITHUB_TOKEN.
func githubToken() string {
	if tok := viper.GetString("github.token"); tok != "" {
		return tok
	}
	return os.Getenv("GITHUB_TOKEN")
}

func newGitHubClient() (*git.GitHubClient, error) {
	return git.NewGitHubClient(git.GitHubOptions{
		Token:  githubToken(),
		APIURL: viper.GetString("github.api_url"),
		WebURL: viper.GetString("github.web_url"),
	})
}

// repoCoordinates returns owner/repo from flags or config, falling back to
// the origin remote of the repository at path.
func repoCoordinates(ctx context.Context, gc git.Client, path, owner, repo string) (string, string, error) {
	if owner == "" {
		owner = viper.GetString("github.owner")
	}
	if repo == "" {
		repo = viper.GetString("github.repo")
	}
	if owner != "" && repo != "" {
		return owner, repo, nil
	}

	remote, err := gc.RemoteURL(ctx, path)
	if err != nil {
		return "", "", fmt.Errorf("no --owner/--repo given and no origin remote: %w", err)
	}
	o, r, err := git.ExtractOwnerRepo(remote)
	if err != nil {
		return "", "", err
	}
	if owner == "" {
		owner = o
	}
	if repo == "" {
		repo = r
	}
	return owner, repo, nil
}
