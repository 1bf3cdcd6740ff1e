// Package gate turns a findings report into a pass/fail verdict. Decide is a
// pure function of its inputs.
package gate

import (
	"fmt"
	"strings"

	"github.com/joescharf/reviewgate/internal/models"
)

// Decide classifies every finding and fails the run iff any finding's
// severity is in the configured blocking set. A nil report is
// indeterminate, never a pass.
func Decide(report *models.FindingsReport, cfg models.GateConfig) models.Verdict {
	if report == nil {
		return Indeterminate("no findings report")
	}

	findings := report.Findings()
	blocking := []models.Finding{}
	for _, f := range findings {
		f.Severity = models.ParseSeverity(string(f.Severity))
		if cfg.Blocks(f.Severity) {
			blocking = append(blocking, f)
		}
	}

	status := models.VerdictPass
	if len(blocking) > 0 {
		status = models.VerdictFail
	}
	return models.Verdict{
		Status:   status,
		Blocking: blocking,
		Summary:  RenderSummary(findings, blocking, cfg),
	}
}

// Indeterminate is the verdict for a report that could not be obtained or
// parsed.
func Indeterminate(reason string) models.Verdict {
	return models.Verdict{
		Status:   models.VerdictIndeterminate,
		Blocking: []models.Finding{},
		Summary:  "Review gate INDETERMINATE: " + reason,
		Reason:   reason,
	}
}

// CountBySeverity tallies findings per canonical severity.
func CountBySeverity(findings []models.Finding) map[models.Severity]int {
	counts := make(map[models.Severity]int, len(models.Severities))
	for _, f := range findings {
		counts[models.ParseSeverity(string(f.Severity))]++
	}
	return counts
}

// RenderSummary is the deterministic human-readable verdict text.
func RenderSummary(findings, blocking []models.Finding, cfg models.GateConfig) string {
	var sb strings.Builder

	status := models.VerdictPass
	if len(blocking) > 0 {
		status = models.VerdictFail
	}
	fmt.Fprintf(&sb, "Review gate %s: %d finding(s), %d blocking", status, len(findings), len(blocking))
	if sevs := cfg.BlockingSeverities(); len(sevs) > 0 {
		fmt.Fprintf(&sb, " (blocking on %s)", models.JoinSeverities(sevs))
	} else {
		sb.WriteString(" (no blocking severities configured)")
	}
	sb.WriteString("\n")

	counts := CountBySeverity(findings)
	for i := len(models.Severities) - 1; i >= 0; i-- {
		sev := models.Severities[i]
		fmt.Fprintf(&sb, "  %-8s %d\n", sev, counts[sev])
	}

	if len(blocking) > 0 {
		sb.WriteString("Blocking findings:\n")
		for _, f := range blocking {
			sb.WriteString("  - ")
			sb.WriteString(FormatFinding(f))
			sb.WriteString("\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatFinding renders one finding as "file:line [severity] message (agent)".
func FormatFinding(f models.Finding) string {
	s := fmt.Sprintf("%s [%s] %s", f.Location(), models.ParseSeverity(string(f.Severity)), f.Message)
	if f.Agent != "" {
		s += " (" + f.Agent + ")"
	}
	return s
}
