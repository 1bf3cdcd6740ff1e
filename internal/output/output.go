package output

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/joescharf/reviewgate/internal/models"
)

// UI provides colored output and respects verbose/dry-run modes.
type UI struct {
	Verbose bool
	DryRun  bool
	Out     io.Writer
	ErrOut  io.Writer
}

// New creates a UI with default stdout/stderr writers.
func New() *UI {
	return &UI{
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	}
}

var (
	infoPrefix    = color.New(color.FgHiBlue).Sprint("i")
	successPrefix = color.New(color.FgHiGreen).Sprint("\u2713")
	warningPrefix = color.New(color.FgHiYellow).Sprint("\u26a0")
	errorPrefix   = color.New(color.FgHiRed).Sprint("\u2717")
	verbosePrefix = color.New(color.FgHiBlue).Sprint("  \u2192")
	cyan          = color.New(color.FgHiCyan).SprintFunc()
	green         = color.New(color.FgHiGreen).SprintFunc()
	yellow        = color.New(color.FgHiYellow).SprintFunc()
	red           = color.New(color.FgHiRed).SprintFunc()
)

// Cyan returns a cyan-colored string.
func Cyan(s string) string { return cyan(s) }

// Green returns a green-colored string.
func Green(s string) string { return green(s) }

// Yellow returns a yellow-colored string.
func Yellow(s string) string { return yellow(s) }

// Red returns a red-colored string.
func Red(s string) string { return red(s) }

// VerdictColor returns the verdict colored by outcome.
func VerdictColor(status models.VerdictStatus) string {
	switch status {
	case models.VerdictPass:
		return green(string(status))
	case models.VerdictFail:
		return red(string(status))
	case models.VerdictIndeterminate:
		return yellow(string(status))
	default:
		return string(status)
	}
}

// SeverityColor returns the severity colored by rank.
func SeverityColor(sev models.Severity) string {
	switch sev {
	case models.SeverityCritical, models.SeverityError:
		return red(string(sev))
	case models.SeverityWarning:
		return yellow(string(sev))
	default:
		return cyan(string(sev))
	}
}

// RunStatusColor returns the string colored by run status.
func RunStatusColor(status models.RunStatus) string {
	switch status {
	case models.RunStatusCompleted:
		return cyan(string(status))
	case models.RunStatusRunning:
		return yellow(string(status))
	case models.RunStatusErrored:
		return red(string(status))
	default:
		return string(status)
	}
}

func (u *UI) Info(format string, a ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", infoPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Success(format string, a ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", successPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Warning(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", warningPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Error(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", errorPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) VerboseLog(format string, a ...any) {
	if u.Verbose {
		fmt.Fprintf(u.Out, "%s %s\n", verbosePrefix, fmt.Sprintf(format, a...))
	}
}

func (u *UI) DryRunMsg(format string, a ...any) {
	if u.DryRun {
		u.Warning("[DRY-RUN] "+format, a...)
	}
}

// Table creates a new tablewriter configured with consistent styling.
func (u *UI) Table(headers []string) *tablewriter.Table {
	table := tablewriter.NewTable(u.Out,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines:      tw.LinesNone,
				Separators: tw.SeparatorsNone,
			},
		}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	table.Header(headers)
	return table
}

// Findings renders findings as a table. Blocking findings are marked.
func (u *UI) Findings(findings []models.Finding, cfg models.GateConfig) error {
	table := u.Table([]string{"", "Severity", "Location", "Message", "Agent"})
	for _, f := range findings {
		mark := ""
		if cfg.Blocks(f.Severity) {
			mark = red("\u2717")
		}
		if err := table.Append([]string{mark, SeverityColor(f.Severity), f.Location(), f.Message, f.Agent}); err != nil {
			return err
		}
	}
	return table.Render()
}

// Verdict prints the final gate line on the channel matching its outcome.
func (u *UI) Verdict(v models.Verdict) {
	switch v.Status {
	case models.VerdictPass:
		u.Success("Review gate %s", VerdictColor(v.Status))
	case models.VerdictFail:
		u.Error("Review gate %s: %d blocking finding(s)", VerdictColor(v.Status), len(v.Blocking))
	default:
		u.Warning("Review gate %s: %s", VerdictColor(v.Status), v.Reason)
	}
}
