package git

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Client defines the git operations the gate needs on a local checkout.
// All methods take a path parameter so the gate can review any repo.
type Client interface {
	RepoRoot(ctx context.Context, path string) (string, error)
	CurrentBranch(ctx context.Context, path string) (string, error)
	HeadCommit(ctx context.Context, path string) (string, error)
	RefExists(ctx context.Context, path, ref string) (bool, error)
	RemoteURL(ctx context.Context, path string) (string, error)
}

// RealClient implements Client using real git commands.
type RealClient struct{}

// NewClient returns a new RealClient.
func NewClient() *RealClient {
	return &RealClient{}
}

func gitCmd(ctx context.Context, path string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", path}, args...)
	out, err := exec.CommandContext(ctx, "git", fullArgs...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (c *RealClient) RepoRoot(ctx context.Context, path string) (string, error) {
	return gitCmd(ctx, path, "rev-parse", "--show-toplevel")
}

func (c *RealClient) CurrentBranch(ctx context.Context, path string) (string, error) {
	return gitCmd(ctx, path, "rev-parse", "--abbrev-ref", "HEAD")
}

func (c *RealClient) HeadCommit(ctx context.Context, path string) (string, error) {
	return gitCmd(ctx, path, "rev-parse", "HEAD")
}

// RefExists reports whether ref resolves to a commit. A ref that does not
// resolve is (false, nil); failing to run git at all is an error.
func (c *RealClient) RefExists(ctx context.Context, path, ref string) (bool, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", path, "rev-parse", "--verify", "--quiet", ref+"^{commit}")
	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, fmt.Errorf("git rev-parse --verify %s: %w", ref, err)
}

func (c *RealClient) RemoteURL(ctx context.Context, path string) (string, error) {
	out, err := gitCmd(ctx, path, "remote", "get-url", "origin")
	if err != nil {
		return "", nil // no remote is not an error
	}
	return out, nil
}

// ExtractOwnerRepo parses a GitHub remote URL and returns owner/repo.
// Both SSH (git@host:owner/repo.git) and HTTPS (https://host/owner/repo) forms
// are accepted for any host, so GitHub Enterprise remotes work too.
func ExtractOwnerRepo(remoteURL string) (owner, repo string, err error) {
	remoteURL = strings.TrimSpace(remoteURL)

	var path string
	switch {
	case strings.HasPrefix(remoteURL, "git@"):
		parts := strings.SplitN(remoteURL, ":", 2)
		if len(parts) != 2 {
			return "", "", fmt.Errorf("cannot parse SSH remote: %s", remoteURL)
		}
		path = parts[1]
	case strings.HasPrefix(remoteURL, "https://"), strings.HasPrefix(remoteURL, "http://"), strings.HasPrefix(remoteURL, "ssh://"):
		rest := remoteURL[strings.Index(remoteURL, "://")+3:]
		slash := strings.Index(rest, "/")
		if slash < 0 {
			return "", "", fmt.Errorf("cannot parse owner/repo from: %s", remoteURL)
		}
		path = rest[slash+1:]
	default:
		return "", "", fmt.Errorf("cannot parse owner/repo from: %s", remoteURL)
	}

	path = strings.TrimSuffix(strings.TrimSuffix(path, "/"), ".git")
	segments := strings.Split(path, "/")
	if len(segments) != 2 || segments[0] == "" || segments[1] == "" {
		return "", "", fmt.Errorf("cannot parse owner/repo from: %s", remoteURL)
	}
	return segments[0], segments[1], nil
}
