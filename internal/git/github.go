package git

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v68/github"
)

const defaultWebURL = "https://github.com"

// PullRequest is the subset of a GitHub pull request the gate uses.
type PullRequest struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	HeadRef   string    `json:"head_ref"`
	BaseRef   string    `json:"base_ref"`
	URL       string    `json:"url"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PullRequestLister queries open pull requests on the remote host.
type PullRequestLister interface {
	ListOpenPullRequests(ctx context.Context, owner, repo string) ([]PullRequest, error)
}

// APIError describes a non-2xx response or transport failure from the API.
type APIError struct {
	StatusCode int
	Auth       bool
	Err        error
}

func (e *APIError) Error() string {
	switch {
	case e.Auth:
		return fmt.Sprintf("GitHub authentication failed (status %d): %v", e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("GitHub API error (status %d): %v", e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("GitHub API request failed: %v", e.Err)
	}
}

func (e *APIError) Unwrap() error { return e.Err }

// GitHubClient talks to the GitHub REST API with a bearer token.
type GitHubClient struct {
	gh     *github.Client
	webURL string
}

// GitHubOptions configures NewGitHubClient. APIURL and WebURL are optional and
// default to public GitHub.
type GitHubOptions struct {
	Token      string
	APIURL     string
	WebURL     string
	HTTPClient *http.Client
}

// NewGitHubClient creates a REST client. An empty token is allowed for public
// repositories, but most CI uses will need one.
func NewGitHubClient(opts GitHubOptions) (*GitHubClient, error) {
	httpCli := opts.HTTPClient
	if httpCli == nil {
		httpCli = &http.Client{Timeout: 60 * time.Second}
	}

	gh := github.NewClient(httpCli)
	if opts.Token != "" {
		gh = gh.WithAuthToken(opts.Token)
	}
	if opts.APIURL != "" {
		base := strings.TrimRight(opts.APIURL, "/") + "/"
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parse GitHub API URL: %w", err)
		}
		gh.BaseURL = u
	}

	webURL := strings.TrimRight(opts.WebURL, "/")
	if webURL == "" {
		webURL = defaultWebURL
	}

	return &GitHubClient{gh: gh, webURL: webURL}, nil
}

// ListOpenPullRequests runs GET /repos/{owner}/{repo}/pulls?state=open&sort=updated&direction=desc.
func (c *GitHubClient) ListOpenPullRequests(ctx context.Context, owner, repo string) ([]PullRequest, error) {
	opts := &github.PullRequestListOptions{
		State:       "open",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: 30},
	}

	prs, resp, err := c.gh.PullRequests.List(ctx, owner, repo, opts)
	if err != nil {
		return nil, toAPIError(resp, err)
	}

	out := make([]PullRequest, 0, len(prs))
	for _, pr := range prs {
		out = append(out, PullRequest{
			Number:    pr.GetNumber(),
			Title:     pr.GetTitle(),
			HeadRef:   pr.GetHead().GetRef(),
			BaseRef:   pr.GetBase().GetRef(),
			URL:       pr.GetHTMLURL(),
			UpdatedAt: pr.GetUpdatedAt().Time,
		})
	}
	return out, nil
}

// PullRequestURL builds the canonical web URL of a pull request.
func (c *GitHubClient) PullRequestURL(owner, repo string, number int) string {
	return PullRequestURL(c.webURL, owner, repo, number)
}

// PullRequestURL builds {webURL}/{owner}/{repo}/pull/{number}.
func PullRequestURL(webURL, owner, repo string, number int) string {
	if webURL == "" {
		webURL = defaultWebURL
	}
	return fmt.Sprintf("%s/%s/%s/pull/%d", strings.TrimRight(webURL, "/"), owner, repo, number)
}

func toAPIError(resp *github.Response, err error) error {
	apiErr := &APIError{Err: err}
	if resp != nil && resp.Response != nil {
		apiErr.StatusCode = resp.StatusCode
	}
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		apiErr.StatusCode = ghErr.Response.StatusCode
	}
	if apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden {
		apiErr.Auth = true
	}
	return apiErr
}
