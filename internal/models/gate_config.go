package models

import (
	"fmt"
	"slices"
	"strings"
)

// DefaultBlockingSeverities fail a run when no explicit set is configured.
var DefaultBlockingSeverities = []Severity{SeverityCritical, SeverityError}

// GateConfig holds the run parameters. It is built once at run start and
// exposes only copies of its sets.
type GateConfig struct {
	agents   []string
	blocking []Severity
}

// NewGateConfig builds a config from comma-separated agent and severity lists.
// Severity names are case-insensitive; an unknown name is an error so that a
// typo cannot silently disable blocking.
func NewGateConfig(agentsCSV, blockingCSV string) (GateConfig, error) {
	agents := SplitCSV(agentsCSV)

	var blocking []Severity
	for _, name := range SplitCSV(blockingCSV) {
		if !IsKnownSeverity(name) {
			return GateConfig{}, fmt.Errorf("unknown blocking severity %q", name)
		}
		sev := ParseSeverity(name)
		if !slices.Contains(blocking, sev) {
			blocking = append(blocking, sev)
		}
	}
	slices.SortFunc(blocking, func(a, b Severity) int { return b.Rank() - a.Rank() })

	return GateConfig{agents: agents, blocking: blocking}, nil
}

// Agents returns the requested agent names.
func (c GateConfig) Agents() []string { return slices.Clone(c.agents) }

// BlockingSeverities returns the configured blocking set, most severe first.
func (c GateConfig) BlockingSeverities() []Severity { return slices.Clone(c.blocking) }

// Blocks reports whether sev is in the blocking set.
func (c GateConfig) Blocks(sev Severity) bool {
	return slices.Contains(c.blocking, sev)
}

// SplitCSV splits a comma-separated list, trimming blanks and dropping empties.
func SplitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinSeverities renders severities as a comma-separated list.
func JoinSeverities(sevs []Severity) string {
	parts := make([]string, len(sevs))
	for i, s := range sevs {
		parts[i] = string(s)
	}
	return strings.Join(parts, ",")
}
