package models

import "time"

// RunStatus tracks a persisted gate run through its lifecycle.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusErrored   RunStatus = "errored"
)

// Run records one gate invocation for history and auditing.
type Run struct {
	ID            string
	Mode          ChangeSetMode
	Target        string
	PRNumber      int
	Strategy      string
	Status        RunStatus
	Verdict       VerdictStatus
	BlockingCount int
	FindingCount  int
	ArtifactPath  string
	Summary       string
	Error         string
	StartedAt     time.Time
	EndedAt       *time.Time
}

// Duration returns the wall-clock time of a finished run.
func (r *Run) Duration() time.Duration {
	if r.EndedAt == nil {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}
