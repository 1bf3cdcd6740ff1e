package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/reviewgate/internal/models"
)

func gateConfig(t *testing.T) models.GateConfig {
	t.Helper()
	cfg, err := models.NewGateConfig("security,bug", "critical,error")
	require.NoError(t, err)
	return cfg
}

func TestBuildSummaryPrompt(t *testing.T) {
	line := 10
	cs := models.ChangeSet{Mode: models.ModeExplicitPR, Number: 42, SourceURL: "https://github.com/acme/slides/pull/42"}
	findings := []models.Finding{{File: "a.py", Line: &line, Severity: models.SeverityError, Message: "null deref", Agent: "bug"}}
	verdict := models.Verdict{Status: models.VerdictFail, Blocking: findings}

	t.Run("fail with findings", func(t *testing.T) {
		system, user := buildSummaryPrompt(cs, findings, verdict, gateConfig(t))

		assert.Contains(t, system, `"headline"`)
		assert.Contains(t, system, `"explanation"`)
		assert.Contains(t, system, `"next_steps"`)
		assert.Contains(t, system, "Never contradict the verdict")

		assert.Contains(t, user, "PR #42")
		assert.Contains(t, user, "https://github.com/acme/slides/pull/42")
		assert.Contains(t, user, "Verdict: FAIL")
		assert.Contains(t, user, "Blocking severities: critical,error")
		assert.Contains(t, user, "a.py:10 [error] null deref")
	})

	t.Run("indeterminate carries reason", func(t *testing.T) {
		v := models.Verdict{Status: models.VerdictIndeterminate, Reason: "reviewer timed out"}
		_, user := buildSummaryPrompt(cs, nil, v, gateConfig(t))

		assert.Contains(t, user, "Reason: reviewer timed out")
		assert.NotContains(t, user, "Findings:")
	})

	t.Run("caps findings", func(t *testing.T) {
		many := make([]models.Finding, maxPromptFindings+3)
		for i := range many {
			many[i] = models.Finding{File: "x.py", Severity: models.SeverityInfo, Message: "m"}
		}
		_, user := buildSummaryPrompt(cs, many, models.Verdict{Status: models.VerdictPass}, gateConfig(t))
		assert.Contains(t, user, "... and 3 more")
		assert.Equal(t, maxPromptFindings, strings.Count(user, "- x.py"))
	})
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences("  {\"a\":1}  "))
}

func TestSummarizeVerdict(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-5",
			"content": [{"type": "text", "text": "` + "```json\\n" + `{\"headline\":\"Blocked by one error\",\"explanation\":\"a.py dereferences nil.\",\"next_steps\":[\"Guard the pointer\"]}` + "\\n```" + `"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 20}
		}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", "", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	report := models.NewFindingsReport("1 issue", []models.Finding{{File: "a.py", Severity: models.SeverityError, Message: "nil"}})
	verdict := models.Verdict{Status: models.VerdictFail, Blocking: report.Findings()}

	note, err := c.SummarizeVerdict(context.Background(), models.ChangeSet{Mode: models.ModeExplicitPR, Number: 1}, report, verdict, gateConfig(t))
	require.NoError(t, err)
	assert.Equal(t, "Blocked by one error", note.Headline)
	assert.Equal(t, []string{"Guard the pointer"}, note.NextSteps)
	assert.Equal(t, DefaultModel, gotBody["model"])
}

func TestSummarizeVerdict_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"bad key"}}`))
	}))
	defer srv.Close()

	c := NewClient("bad", "", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	_, err := c.SummarizeVerdict(context.Background(), models.ChangeSet{Mode: models.ModeLocalDiff, BaseRef: "main", HeadRef: "HEAD"}, nil, models.Verdict{Status: models.VerdictIndeterminate}, gateConfig(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic API call")
}
