package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeverity(t *testing.T) {
	cases := map[string]Severity{
		"info":       SeverityInfo,
		"WARNING":    SeverityWarning,
		" Error ":    SeverityError,
		"critical":   SeverityCritical,
		"":           SeverityInfo,
		"high":       SeverityInfo,
		"catastroph": SeverityInfo,
	}
	for raw, want := range cases {
		assert.Equal(t, want, ParseSeverity(raw), raw)
	}
}

func TestSeverityRankOrder(t *testing.T) {
	for i := 1; i < len(Severities); i++ {
		assert.Less(t, Severities[i-1].Rank(), Severities[i].Rank())
	}
}

func TestNewGateConfig(t *testing.T) {
	cfg, err := NewGateConfig(" security, bugs ,,quality", "error, CRITICAL,error")
	require.NoError(t, err)
	assert.Equal(t, []string{"security", "bugs", "quality"}, cfg.Agents())
	assert.Equal(t, []Severity{SeverityCritical, SeverityError}, cfg.BlockingSeverities())
	assert.True(t, cfg.Blocks(SeverityError))
	assert.False(t, cfg.Blocks(SeverityWarning))
}

func TestNewGateConfig_UnknownSeverity(t *testing.T) {
	_, err := NewGateConfig("", "critcal")
	assert.ErrorContains(t, err, "critcal")
}

func TestGateConfig_AccessorsReturnCopies(t *testing.T) {
	cfg, err := NewGateConfig("a", "error")
	require.NoError(t, err)

	agents := cfg.Agents()
	agents[0] = "mutated"
	sevs := cfg.BlockingSeverities()
	sevs[0] = SeverityInfo

	assert.Equal(t, []string{"a"}, cfg.Agents())
	assert.False(t, cfg.Blocks(SeverityInfo))
}

func TestFindingsReport_Immutable(t *testing.T) {
	src := []Finding{{File: "a", Severity: SeverityError}}
	r := NewFindingsReport("s", src)
	src[0].File = "changed"

	got := r.Findings()
	got[0].File = "changed-again"

	assert.Equal(t, "a", r.Findings()[0].File)
	assert.Equal(t, 1, r.Len())
}

func TestFindingsReport_MarshalJSON(t *testing.T) {
	line := 4
	r := NewFindingsReport("sum", []Finding{
		{File: "a.py", Line: &line, Severity: SeverityError, Message: "m", Agent: "bugs"},
		{File: "b.py", Severity: SeverityInfo, Message: "n"},
	})
	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary": "sum", "comments": [
		{"file": "a.py", "line": 4, "severity": "error", "message": "m", "agent": "bugs"},
		{"file": "b.py", "line": null, "severity": "info", "message": "n"}
	]}`, string(data))

	empty, err := json.Marshal(NewFindingsReport("", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary": "", "comments": []}`, string(empty))
}

func TestFindingLocation(t *testing.T) {
	line := 12
	assert.Equal(t, "a.py:12", Finding{File: "a.py", Line: &line}.Location())
	assert.Equal(t, "a.py", Finding{File: "a.py"}.Location())
}

func TestParseMode(t *testing.T) {
	for _, m := range Modes {
		got, err := ParseMode(string(m))
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseMode("every-pr")
	assert.Error(t, err)
}

func TestChangeSetReference(t *testing.T) {
	pr := ChangeSet{Mode: ModeLatestOpenPR, Number: 3, SourceURL: "https://github.com/a/b/pull/3"}
	assert.Equal(t, "https://github.com/a/b/pull/3", pr.Reference())
	assert.Equal(t, "PR #3", pr.String())

	local := ChangeSet{Mode: ModeLocalDiff, BaseRef: "main", HeadRef: "HEAD"}
	assert.Equal(t, "main...HEAD", local.Reference())
	assert.False(t, local.Mode.IsPullRequest())
}

func TestRunDuration(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := &Run{StartedAt: start}
	assert.Zero(t, r.Duration())

	end := start.Add(90 * time.Second)
	r.EndedAt = &end
	assert.Equal(t, 90*time.Second, r.Duration())
}
