package invoke

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/joescharf/reviewgate/internal/models"
)

// rawIssue accepts the loosely-typed finding objects reviewers emit.
type rawIssue struct {
	File     string          `json:"file"`
	Path     string          `json:"path"`
	Line     json.RawMessage `json:"line"`
	Severity string          `json:"severity"`
	Message  string          `json:"message"`
	Body     string          `json:"body"`
	Agent    string          `json:"agent"`
}

type rawResult struct {
	Agent  string     `json:"agent"`
	Issues []rawIssue `json:"issues"`
}

type rawReport struct {
	Summary  *string     `json:"summary"`
	Comments []rawIssue  `json:"comments"`
	Results  []rawResult `json:"results"`
}

// ParseReport decodes a reviewer output document. Two shapes are accepted:
//
//	{"summary": "...", "comments": [{file, line?, severity, message, agent?}]}
//	{"summary": "...", "results": [{"agent": "...", "issues": [...]}]}
//
// Findings from both keys are kept, comments first. Severity is stored in
// canonical form; unknown values become info.
func ParseReport(data []byte) (*models.FindingsReport, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("empty report")
	}

	var raw rawReport
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	if raw.Comments == nil && raw.Results == nil {
		return nil, fmt.Errorf("report has no findings array (comments or results)")
	}

	var findings []models.Finding
	for _, c := range raw.Comments {
		findings = append(findings, c.toFinding(""))
	}
	for _, r := range raw.Results {
		for _, issue := range r.Issues {
			findings = append(findings, issue.toFinding(r.Agent))
		}
	}

	var summary string
	if raw.Summary != nil {
		summary = *raw.Summary
	}
	return models.NewFindingsReport(summary, findings), nil
}

func (r rawIssue) toFinding(defaultAgent string) models.Finding {
	file := r.File
	if file == "" {
		file = r.Path
	}
	msg := r.Message
	if msg == "" {
		msg = r.Body
	}
	agent := r.Agent
	if agent == "" {
		agent = defaultAgent
	}
	return models.Finding{
		File:     file,
		Line:     parseLine(r.Line),
		Severity: models.ParseSeverity(r.Severity),
		Message:  msg,
		Agent:    agent,
	}
}

// parseLine accepts an absent/null line, a JSON number, or a numeric string.
// Anything else, including ranges like "10-12", zero, negatives and values
// past MaxInt32, is treated as file-level.
func parseLine(raw json.RawMessage) *int {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unq)
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || n < 1 || n > math.MaxInt32 {
		return nil
	}
	line := int(n)
	return &line
}
