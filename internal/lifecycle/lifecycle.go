// Package lifecycle finalizes a gate run: it archives the findings report,
// tears down the execution environment and records the run outcome.
package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/joescharf/reviewgate/internal/models"
	"github.com/joescharf/reviewgate/internal/provision"
)

// Releaser tears down a provisioned environment.
type Releaser interface {
	Release(ctx context.Context, env *provision.Environment) error
}

// RunRecorder is the subset of store.Store needed to persist a finished run.
type RunRecorder interface {
	UpdateRun(ctx context.Context, run *models.Run) error
}

// Options configures a Manager.
type Options struct {
	// ArtifactPath is where the findings report is archived.
	ArtifactPath string
	// KeepEnv skips environment teardown.
	KeepEnv bool
}

// Result reports what Finalize did. CleanupErrors never affect the verdict.
type Result struct {
	ArtifactPath  string
	Archived      bool
	Released      bool
	Recorded      bool
	CleanupErrors []error
}

// Manager owns the unconditional finalize step.
type Manager struct {
	releaser Releaser
	runs     RunRecorder
	opts     Options
	log      *zap.SugaredLogger
}

// New creates a Manager. runs may be nil when history is disabled.
func New(releaser Releaser, runs RunRecorder, opts Options, log *zap.SugaredLogger) *Manager {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Manager{releaser: releaser, runs: runs, opts: opts, log: log}
}

// Finalize archives report (when present), releases env and records run.
// Every step is attempted even if an earlier one fails.
func (m *Manager) Finalize(ctx context.Context, run *models.Run, env *provision.Environment, report *models.FindingsReport, verdict models.Verdict) Result {
	var res Result

	if report != nil && m.opts.ArtifactPath != "" {
		if err := WriteArtifact(m.opts.ArtifactPath, report); err != nil {
			m.cleanupFailed(&res, "archive findings", err)
		} else {
			res.ArtifactPath = m.opts.ArtifactPath
			res.Archived = true
			m.log.Infow("findings archived", "path", m.opts.ArtifactPath, "findings", report.Len())
		}
	} else {
		m.log.Infow("no findings report to archive")
	}

	switch {
	case env == nil:
	case m.opts.KeepEnv:
		m.log.Infow("keeping environment", "strategy", env.Strategy, "dir", env.Dir)
	case m.releaser != nil:
		if err := m.releaser.Release(ctx, env); err != nil {
			m.cleanupFailed(&res, "release environment", err)
		} else {
			res.Released = true
		}
	}

	if run != nil && m.runs != nil {
		fillRun(run, env, report, verdict, res)
		if err := m.runs.UpdateRun(ctx, run); err != nil {
			m.cleanupFailed(&res, "record run", err)
		} else {
			res.Recorded = true
		}
	}

	return res
}

func (m *Manager) cleanupFailed(res *Result, step string, err error) {
	err = fmt.Errorf("%s: %w", step, err)
	res.CleanupErrors = append(res.CleanupErrors, err)
	m.log.Warnw("cleanup step failed", "step", step, "error", err)
}

func fillRun(run *models.Run, env *provision.Environment, report *models.FindingsReport, verdict models.Verdict, res Result) {
	now := time.Now().UTC()
	run.EndedAt = &now
	run.Verdict = verdict.Status
	run.BlockingCount = len(verdict.Blocking)
	run.ArtifactPath = res.ArtifactPath
	if report != nil {
		run.FindingCount = report.Len()
		run.Summary = report.Summary()
	}
	if env != nil {
		run.Strategy = env.Strategy
	}
	if run.Status == "" || run.Status == models.RunStatusRunning {
		run.Status = models.RunStatusCompleted
	}
	if verdict.Status == models.VerdictIndeterminate && run.Error == "" {
		run.Error = verdict.Reason
	}
}

// WriteArtifact writes report as indented JSON, replacing path atomically.
func WriteArtifact(path string, report *models.FindingsReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".gate-artifact-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod artifact: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename artifact: %w", err)
	}
	return nil
}
