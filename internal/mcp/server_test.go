package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/reviewgate/internal/git"
	"github.com/joescharf/reviewgate/internal/models"
	"github.com/joescharf/reviewgate/internal/store"
)

// ---------------------------------------------------------------------------
// Mock implementations
// ---------------------------------------------------------------------------

// mockStore implements store.Store for testing.
type mockStore struct {
	runs []*models.Run

	listRunsErr error
}

func (m *mockStore) CreateRun(_ context.Context, run *models.Run) error {
	m.runs = append(m.runs, run)
	return nil
}
func (m *mockStore) UpdateRun(_ context.Context, _ *models.Run) error { return nil }
func (m *mockStore) GetRun(_ context.Context, id string) (*models.Run, error) {
	for _, r := range m.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, fmt.Errorf("run %s: %w", id, store.ErrNotFound)
}
func (m *mockStore) FindRun(ctx context.Context, idOrPrefix string) (*models.Run, error) {
	var matches []*models.Run
	for _, r := range m.runs {
		if strings.HasPrefix(r.ID, strings.ToUpper(idOrPrefix)) {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("run %s: %w", idOrPrefix, store.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous run ID %s: matches multiple runs", idOrPrefix)
	}
}
func (m *mockStore) ListRuns(_ context.Context, filter store.RunListFilter) ([]*models.Run, error) {
	if m.listRunsErr != nil {
		return nil, m.listRunsErr
	}
	var result []*models.Run
	for _, r := range m.runs {
		if filter.Verdict != "" && r.Verdict != filter.Verdict {
			continue
		}
		if filter.Mode != "" && r.Mode != filter.Mode {
			continue
		}
		result = append(result, r)
		if filter.Limit > 0 && len(result) == filter.Limit {
			break
		}
	}
	return result, nil
}
func (m *mockStore) Migrate(_ context.Context) error { return nil }
func (m *mockStore) Close() error                    { return nil }

// mockLister implements git.PullRequestLister for testing.
type mockLister struct {
	prs []git.PullRequest
	err error
}

func (m *mockLister) ListOpenPullRequests(_ context.Context, _, _ string) ([]git.PullRequest, error) {
	return m.prs, m.err
}

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

func newTestServer(t *testing.T) (*Server, *mockStore, *mockLister) {
	t.Helper()

	ms := &mockStore{}
	ml := &mockLister{}
	srv := NewServer(ms, ml, Options{Owner: "acme", Repo: "slides", BlockingSeverities: "critical,error"})
	require.NotNil(t, srv)
	return srv, ms, ml
}

// callToolReq builds a mcpgo.CallToolRequest with the given name and arguments.
func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		tc, ok := c.(mcpgo.TextContent)
		if ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// resultJSON parses the text result as JSON into the provided target.
func resultJSON(t *testing.T, result *mcpgo.CallToolResult, target any) {
	t.Helper()
	text := resultText(t, result)
	err := json.Unmarshal([]byte(text), target)
	require.NoError(t, err, "failed to parse result JSON: %s", text)
}

// seedRun adds a finished run to the mock store and returns it.
func seedRun(t *testing.T, ms *mockStore, id string, verdict models.VerdictStatus, mode models.ChangeSetMode) *models.Run {
	t.Helper()
	started := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	ended := started.Add(90 * time.Second)
	r := &models.Run{
		ID:        id,
		Mode:      mode,
		Target:    "https://github.com/acme/slides/pull/7",
		PRNumber:  7,
		Strategy:  "venv",
		Status:    models.RunStatusCompleted,
		Verdict:   verdict,
		StartedAt: started,
		EndedAt:   &ended,
	}
	ms.runs = append(ms.runs, r)
	return r
}

// ---------------------------------------------------------------------------
// Tests: MCPServer registration
// ---------------------------------------------------------------------------

func TestNewServer(t *testing.T) {
	srv, _, _ := newTestServer(t)
	mcpSrv := srv.MCPServer()
	require.NotNil(t, mcpSrv, "MCPServer() should return non-nil")
}

// ---------------------------------------------------------------------------
// Tests: gate_list_runs
// ---------------------------------------------------------------------------

func TestHandleListRuns_Empty(t *testing.T) {
	srv, _, _ := newTestServer(t)

	result, err := srv.handleListRuns(context.Background(), callToolReq("gate_list_runs", nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "[]", resultText(t, result))
}

func TestHandleListRuns_Filters(t *testing.T) {
	srv, ms, _ := newTestServer(t)
	seedRun(t, ms, "01PASS", models.VerdictPass, models.ModeExplicitPR)
	seedRun(t, ms, "01FAIL", models.VerdictFail, models.ModeExplicitPR)
	seedRun(t, ms, "01DIFF", models.VerdictFail, models.ModeLocalDiff)

	result, err := srv.handleListRuns(context.Background(), callToolReq("gate_list_runs", map[string]any{
		"verdict": "FAIL",
		"mode":    "explicit-pr",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var runs []map[string]any
	resultJSON(t, result, &runs)
	require.Len(t, runs, 1)
	assert.Equal(t, "01FAIL", runs[0]["id"])
	assert.Equal(t, float64(90000), runs[0]["duration_ms"])
}

func TestHandleListRuns_Limit(t *testing.T) {
	srv, ms, _ := newTestServer(t)
	seedRun(t, ms, "01A", models.VerdictPass, models.ModeExplicitPR)
	seedRun(t, ms, "01B", models.VerdictPass, models.ModeExplicitPR)

	result, err := srv.handleListRuns(context.Background(), callToolReq("gate_list_runs", map[string]any{"limit": float64(1)}))
	require.NoError(t, err)

	var runs []map[string]any
	resultJSON(t, result, &runs)
	assert.Len(t, runs, 1)
}

func TestHandleListRuns_BadMode(t *testing.T) {
	srv, _, _ := newTestServer(t)
	result, err := srv.handleListRuns(context.Background(), callToolReq("gate_list_runs", map[string]any{"mode": "every-pr"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleListRuns_StoreError(t *testing.T) {
	srv, ms, _ := newTestServer(t)
	ms.listRunsErr = errors.New("db locked")

	result, err := srv.handleListRuns(context.Background(), callToolReq("gate_list_runs", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "db locked")
}

// ---------------------------------------------------------------------------
// Tests: gate_get_run
// ---------------------------------------------------------------------------

func TestHandleGetRun_ByPrefixWithFindings(t *testing.T) {
	srv, ms, _ := newTestServer(t)
	r := seedRun(t, ms, "01XYZ", models.VerdictFail, models.ModeExplicitPR)
	r.ArtifactPath = filepath.Join(t.TempDir(), "review-results.json")
	require.NoError(t, os.WriteFile(r.ArtifactPath, []byte(`{"summary":"s","comments":[{"file":"a.py","line":3,"severity":"error","message":"boom"}]}`), 0644))

	result, err := srv.handleGetRun(context.Background(), callToolReq("gate_get_run", map[string]any{"run_id": "01x"}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var got struct {
		ID       string           `json:"id"`
		Verdict  string           `json:"verdict"`
		Findings []models.Finding `json:"findings"`
	}
	resultJSON(t, result, &got)
	assert.Equal(t, "01XYZ", got.ID)
	assert.Equal(t, "FAIL", got.Verdict)
	require.Len(t, got.Findings, 1)
	assert.Equal(t, "a.py", got.Findings[0].File)
}

func TestHandleGetRun_NotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)
	result, err := srv.handleGetRun(context.Background(), callToolReq("gate_get_run", map[string]any{"run_id": "nope"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "run not found")
}

func TestHandleGetRun_MissingParam(t *testing.T) {
	srv, _, _ := newTestServer(t)
	result, err := srv.handleGetRun(context.Background(), callToolReq("gate_get_run", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// ---------------------------------------------------------------------------
// Tests: gate_decide
// ---------------------------------------------------------------------------

func TestHandleDecide_InlineReport(t *testing.T) {
	srv, _, _ := newTestServer(t)

	result, err := srv.handleDecide(context.Background(), callToolReq("gate_decide", map[string]any{
		"report_json": `{"summary":"","comments":[{"file":"a.py","line":10,"severity":"error","message":"x"},{"file":"b.py","severity":"warning","message":"y"}]}`,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var v models.Verdict
	resultJSON(t, result, &v)
	assert.Equal(t, models.VerdictFail, v.Status)
	require.Len(t, v.Blocking, 1)
	assert.Equal(t, "a.py", v.Blocking[0].File)
}

func TestHandleDecide_OverrideSeverities(t *testing.T) {
	srv, _, _ := newTestServer(t)

	result, err := srv.handleDecide(context.Background(), callToolReq("gate_decide", map[string]any{
		"report_json":         `{"summary":"","comments":[{"file":"b.py","severity":"warning","message":"y"}]}`,
		"blocking_severities": "warning",
	}))
	require.NoError(t, err)

	var v models.Verdict
	resultJSON(t, result, &v)
	assert.Equal(t, models.VerdictFail, v.Status)
}

func TestHandleDecide_ReportPath(t *testing.T) {
	srv, _, _ := newTestServer(t)
	path := filepath.Join(t.TempDir(), "r.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"summary":"clean","comments":[]}`), 0644))

	result, err := srv.handleDecide(context.Background(), callToolReq("gate_decide", map[string]any{"report_path": path}))
	require.NoError(t, err)

	var v models.Verdict
	resultJSON(t, result, &v)
	assert.Equal(t, models.VerdictPass, v.Status)
}

func TestHandleDecide_Errors(t *testing.T) {
	srv, _, _ := newTestServer(t)

	result, err := srv.handleDecide(context.Background(), callToolReq("gate_decide", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = srv.handleDecide(context.Background(), callToolReq("gate_decide", map[string]any{"report_json": "nope"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "invalid report")

	result, err = srv.handleDecide(context.Background(), callToolReq("gate_decide", map[string]any{
		"report_json":         `{"summary":"","comments":[]}`,
		"blocking_severities": "fatal",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// ---------------------------------------------------------------------------
// Tests: gate_list_prs
// ---------------------------------------------------------------------------

func TestHandleListPullRequests_SortedAndCapped(t *testing.T) {
	srv, _, ml := newTestServer(t)
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	for i := 1; i <= 7; i++ {
		ml.prs = append(ml.prs, git.PullRequest{Number: i, Title: fmt.Sprintf("PR %d", i), UpdatedAt: base.Add(time.Duration(i) * time.Minute)})
	}

	result, err := srv.handleListPullRequests(context.Background(), callToolReq("gate_list_prs", nil))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var prs []git.PullRequest
	resultJSON(t, result, &prs)
	require.Len(t, prs, 5)
	assert.Equal(t, 7, prs[0].Number)
	assert.Equal(t, 3, prs[4].Number)
}

func TestHandleListPullRequests_NotConfigured(t *testing.T) {
	srv := NewServer(&mockStore{}, nil, Options{})
	result, err := srv.handleListPullRequests(context.Background(), callToolReq("gate_list_prs", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "not configured")
}

func TestHandleListPullRequests_UpstreamError(t *testing.T) {
	srv, _, ml := newTestServer(t)
	ml.err = errors.New("401 Bad credentials")

	result, err := srv.handleListPullRequests(context.Background(), callToolReq("gate_list_prs", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Bad credentials")
}
