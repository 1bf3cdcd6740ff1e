package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Severity is the ordered severity of a finding: info < warning < error < critical.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Severities lists every known severity, lowest first.
var Severities = []Severity{SeverityInfo, SeverityWarning, SeverityError, SeverityCritical}

// ParseSeverity canonicalizes a raw severity string. Unknown or empty values
// map to SeverityInfo; they are never promoted.
func ParseSeverity(raw string) Severity {
	switch s := Severity(strings.ToLower(strings.TrimSpace(raw))); s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return s
	default:
		return SeverityInfo
	}
}

// IsKnownSeverity reports whether raw names one of the four severities.
func IsKnownSeverity(raw string) bool {
	switch Severity(strings.ToLower(strings.TrimSpace(raw))) {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// Rank returns the position of s in the severity order (info = 0).
func (s Severity) Rank() int {
	switch s {
	case SeverityWarning:
		return 1
	case SeverityError:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

// Finding is one reviewer-reported issue.
type Finding struct {
	File     string   `json:"file"`
	Line     *int     `json:"line"` // nil for file-level findings
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Agent    string   `json:"agent,omitempty"`
}

// Location renders file:line, or just the file for file-level findings.
func (f Finding) Location() string {
	if f.Line == nil {
		return f.File
	}
	return f.File + ":" + strconv.Itoa(*f.Line)
}

// FindingsReport is the output of one reviewer invocation. It is not mutated
// after construction; Findings returns a copy.
type FindingsReport struct {
	summary  string
	findings []Finding
}

// NewFindingsReport builds a report from findings, copying the slice.
func NewFindingsReport(summary string, findings []Finding) *FindingsReport {
	cp := make([]Finding, len(findings))
	copy(cp, findings)
	return &FindingsReport{summary: summary, findings: cp}
}

// Summary returns the reviewer's free-text summary.
func (r *FindingsReport) Summary() string { return r.summary }

// Findings returns a copy of the findings in reviewer order.
func (r *FindingsReport) Findings() []Finding {
	cp := make([]Finding, len(r.findings))
	copy(cp, r.findings)
	return cp
}

// Len returns the number of findings.
func (r *FindingsReport) Len() int { return len(r.findings) }

// reportJSON is the persisted artifact shape.
type reportJSON struct {
	Summary  string    `json:"summary"`
	Comments []Finding `json:"comments"`
}

// MarshalJSON writes the report in the reviewer's flat comments shape.
func (r *FindingsReport) MarshalJSON() ([]byte, error) {
	comments := r.findings
	if comments == nil {
		comments = []Finding{}
	}
	return json.Marshal(reportJSON{Summary: r.summary, Comments: comments})
}
