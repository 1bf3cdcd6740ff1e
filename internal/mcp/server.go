package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/reviewgate/internal/changeset"
	"github.com/joescharf/reviewgate/internal/gate"
	"github.com/joescharf/reviewgate/internal/git"
	"github.com/joescharf/reviewgate/internal/invoke"
	"github.com/joescharf/reviewgate/internal/models"
	"github.com/joescharf/reviewgate/internal/store"
)

// Options carries the configured defaults for tool arguments.
type Options struct {
	Version            string
	Owner              string
	Repo               string
	Agents             string
	BlockingSeverities string
}

// Server exposes gate run history and the decision function as MCP tools.
type Server struct {
	store store.Store
	prs   git.PullRequestLister
	opts  Options
}

// NewServer creates the MCP server wrapper. prs may be nil when no GitHub
// token is configured.
func NewServer(s store.Store, prs git.PullRequestLister, opts Options) *Server {
	if opts.Version == "" {
		opts.Version = "dev"
	}
	return &Server{store: s, prs: prs, opts: opts}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("gate", s.opts.Version, server.WithToolCapabilities(true))

	srv.AddTool(s.listRunsTool())
	srv.AddTool(s.getRunTool())
	srv.AddTool(s.decideTool())
	srv.AddTool(s.listPullRequestsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

type runOut struct {
	ID            string `json:"id"`
	Mode          string `json:"mode"`
	Target        string `json:"target"`
	PRNumber      int    `json:"pr_number,omitempty"`
	Strategy      string `json:"strategy,omitempty"`
	Status        string `json:"status"`
	Verdict       string `json:"verdict,omitempty"`
	BlockingCount int    `json:"blocking_count"`
	FindingCount  int    `json:"finding_count"`
	ArtifactPath  string `json:"artifact_path,omitempty"`
	Summary       string `json:"summary,omitempty"`
	Error         string `json:"error,omitempty"`
	StartedAt     string `json:"started_at"`
	EndedAt       string `json:"ended_at,omitempty"`
	DurationMS    int64  `json:"duration_ms,omitempty"`
}

func toRunOut(r *models.Run) runOut {
	out := runOut{
		ID:            r.ID,
		Mode:          string(r.Mode),
		Target:        r.Target,
		PRNumber:      r.PRNumber,
		Strategy:      r.Strategy,
		Status:        string(r.Status),
		Verdict:       string(r.Verdict),
		BlockingCount: r.BlockingCount,
		FindingCount:  r.FindingCount,
		ArtifactPath:  r.ArtifactPath,
		Summary:       r.Summary,
		Error:         r.Error,
		StartedAt:     r.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if r.EndedAt != nil {
		out.EndedAt = r.EndedAt.Format("2006-01-02T15:04:05Z07:00")
		out.DurationMS = r.Duration().Milliseconds()
	}
	return out
}

// gate_list_runs
func (s *Server) listRunsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("gate_list_runs",
		mcp.WithDescription("List recent review gate runs, newest first. Returns a JSON array with id, mode, target, verdict, finding and blocking counts."),
		mcp.WithString("verdict", mcp.Description("Filter by verdict: PASS, FAIL or INDETERMINATE")),
		mcp.WithString("mode", mcp.Description("Filter by change-set mode: explicit-pr, latest-open-pr, all-open-prs, local-diff")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs to return (default 20)")),
	)
	return tool, s.handleListRuns
}

func (s *Server) handleListRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.RunListFilter{
		Verdict: models.VerdictStatus(request.GetString("verdict", "")),
		Limit:   request.GetInt("limit", 20),
	}
	if m := request.GetString("mode", ""); m != "" {
		mode, err := models.ParseMode(m)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		filter.Mode = mode
	}

	runs, err := s.store.ListRuns(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list runs: %v", err)), nil
	}

	out := make([]runOut, len(runs))
	for i, r := range runs {
		out[i] = toRunOut(r)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal runs: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// gate_get_run
func (s *Server) getRunTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("gate_get_run",
		mcp.WithDescription("Get one review gate run by ID or unique ID prefix. Includes the archived findings when the artifact is still on disk."),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("Run ID or prefix")),
	)
	return tool, s.handleGetRun
}

func (s *Server) handleGetRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: run_id"), nil
	}

	run, err := s.store.FindRun(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("run not found: %s", id)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := struct {
		runOut
		Findings []models.Finding `json:"findings,omitempty"`
	}{runOut: toRunOut(run)}

	if run.ArtifactPath != "" {
		if report, err := invoke.LoadReport(run.ArtifactPath); err == nil {
			result.Findings = report.Findings()
		}
	}

	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal run: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// gate_decide
func (s *Server) decideTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("gate_decide",
		mcp.WithDescription("Apply the gate decision to a findings report without running reviewers. Provide either report_path or report_json."),
		mcp.WithString("report_path", mcp.Description("Path to a findings report JSON file")),
		mcp.WithString("report_json", mcp.Description("Findings report JSON document")),
		mcp.WithString("blocking_severities", mcp.Description("Comma-separated blocking severities (default from configuration)")),
	)
	return tool, s.handleDecide
}

func (s *Server) handleDecide(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := request.GetString("report_path", "")
	raw := request.GetString("report_json", "")

	var report *models.FindingsReport
	var err error
	switch {
	case raw != "":
		report, err = invoke.ParseReport([]byte(raw))
	case path != "":
		report, err = invoke.LoadReport(path)
	default:
		return mcp.NewToolResultError("one of report_path or report_json is required"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid report: %v", err)), nil
	}

	cfg, err := models.NewGateConfig(s.opts.Agents, request.GetString("blocking_severities", s.opts.BlockingSeverities))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	verdict := gate.Decide(report, cfg)
	data, err := json.Marshal(verdict)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal verdict: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// gate_list_prs
func (s *Server) listPullRequestsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("gate_list_prs",
		mcp.WithDescription("List the most recently updated open pull requests the gate would consider, newest first."),
		mcp.WithString("owner", mcp.Description("Repository owner (default from configuration)")),
		mcp.WithString("repo", mcp.Description("Repository name (default from configuration)")),
	)
	return tool, s.handleListPullRequests
}

func (s *Server) handleListPullRequests(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.prs == nil {
		return mcp.NewToolResultError("GitHub access is not configured (set github.token or GITHUB_TOKEN)"), nil
	}
	owner := request.GetString("owner", s.opts.Owner)
	repo := request.GetString("repo", s.opts.Repo)
	if owner == "" || repo == "" {
		return mcp.NewToolResultError("owner and repo are required"), nil
	}

	prs, err := s.prs.ListOpenPullRequests(ctx, owner, repo)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list pull requests: %v", err)), nil
	}
	changeset.SortByRecency(prs)
	if len(prs) > changeset.MaxCandidates {
		prs = prs[:changeset.MaxCandidates]
	}

	data, err := json.Marshal(prs)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal pull requests: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
