package invoke

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/reviewgate/internal/gate"
	"github.com/joescharf/reviewgate/internal/models"
)

func TestParseReport_CommentsShape(t *testing.T) {
	data := []byte(`{
		"summary": "2 issues",
		"comments": [
			{"file": "app.py", "line": 10, "severity": "ERROR", "message": "bare except", "agent": "bugs"},
			{"file": "README.md", "severity": "info", "message": "typo"}
		]
	}`)

	r, err := ParseReport(data)
	require.NoError(t, err)
	assert.Equal(t, "2 issues", r.Summary())
	findings := r.Findings()
	require.Len(t, findings, 2)

	assert.Equal(t, "app.py", findings[0].File)
	require.NotNil(t, findings[0].Line)
	assert.Equal(t, 10, *findings[0].Line)
	assert.Equal(t, models.SeverityError, findings[0].Severity)
	assert.Equal(t, "bugs", findings[0].Agent)

	assert.Nil(t, findings[1].Line)
	assert.Empty(t, findings[1].Agent)
}

func TestParseReport_NestedResultsShape(t *testing.T) {
	data := []byte(`{
		"summary": "nested",
		"results": [
			{"agent": "security", "issues": [
				{"file": "core/slide_generator.py", "line": "42", "severity": "critical", "message": "shell injection"}
			]},
			{"agent": "quality", "issues": [
				{"path": "app.py", "line": null, "severity": "warning", "body": "long function", "agent": "style"}
			]}
		]
	}`)

	r, err := ParseReport(data)
	require.NoError(t, err)
	findings := r.Findings()
	require.Len(t, findings, 2)

	assert.Equal(t, "security", findings[0].Agent)
	assert.Equal(t, 42, *findings[0].Line)
	assert.Equal(t, models.SeverityCritical, findings[0].Severity)

	assert.Equal(t, "app.py", findings[1].File)
	assert.Equal(t, "long function", findings[1].Message)
	assert.Equal(t, "style", findings[1].Agent, "issue agent overrides result agent")
	assert.Nil(t, findings[1].Line)
}

func TestParseReport_EmptyFindingsIsValid(t *testing.T) {
	r, err := ParseReport([]byte(`{"summary": "clean", "comments": []}`))
	require.NoError(t, err)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, "clean", r.Summary())
}

func TestParseReport_UnknownSeverityBecomesInfo(t *testing.T) {
	r, err := ParseReport([]byte(`{"comments": [{"file": "a", "severity": "blocker", "message": "x"}, {"file": "b", "message": "y"}]}`))
	require.NoError(t, err)
	for _, f := range r.Findings() {
		assert.Equal(t, models.SeverityInfo, f.Severity)
	}
}

func TestParseReport_Errors(t *testing.T) {
	cases := map[string]string{
		"empty":        ``,
		"not json":     `this is not json`,
		"array":        `[1, 2]`,
		"no keys":      `{}`,
		"summary only": `{"summary": "agent security crashed"}`,
		"null arrays":  `{"summary": "x", "comments": null, "results": null}`,
		"bad comments": `{"comments": "nope"}`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseReport([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestParseLine(t *testing.T) {
	one := 1
	cases := []struct {
		raw  string
		want *int
	}{
		{``, nil},
		{`null`, nil},
		{`0`, nil},
		{`""`, nil},
		{`1`, &one},
		{`"1"`, &one},
		{`1.0`, &one},
		{`"ten"`, nil},
		{`"10-12"`, nil},
		{`"L10"`, nil},
		{`true`, nil},
		{`1e30`, nil},
		{`"NaN"`, nil},
		{`-3`, nil},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, parseLine([]byte(tc.raw)), tc.raw)
	}
}

func TestParseReport_UnparseableLineKeepsFinding(t *testing.T) {
	r, err := ParseReport([]byte(`{"comments": [
		{"file": "a.py", "line": 10, "severity": "critical", "message": "sql injection"},
		{"file": "b.py", "line": "10-12", "severity": "info", "message": "naming"}
	]}`))
	require.NoError(t, err)
	require.Equal(t, 2, r.Len())

	findings := r.Findings()
	require.NotNil(t, findings[0].Line)
	assert.Equal(t, 10, *findings[0].Line)
	assert.Nil(t, findings[1].Line, "range line becomes file-level")
	assert.Equal(t, models.SeverityCritical, findings[0].Severity)

	cfg, err := models.NewGateConfig("security", "critical,error")
	require.NoError(t, err)
	v := gate.Decide(r, cfg)
	assert.Equal(t, models.VerdictFail, v.Status)
	assert.Len(t, v.Blocking, 1)
}
