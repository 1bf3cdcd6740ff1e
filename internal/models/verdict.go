package models

// VerdictStatus is the gate's tri-state outcome.
type VerdictStatus string

const (
	VerdictPass          VerdictStatus = "PASS"
	VerdictFail          VerdictStatus = "FAIL"
	VerdictIndeterminate VerdictStatus = "INDETERMINATE"
)

// Verdict is the final output of a gate run. Blocking is empty unless
// Status is VerdictFail; Reason is set only for VerdictIndeterminate.
type Verdict struct {
	Status   VerdictStatus `json:"status"`
	Blocking []Finding     `json:"blocking"`
	Summary  string        `json:"summary"`
	Reason   string        `json:"reason,omitempty"`
}

// Passed reports whether the verdict allows the downstream build.
func (v Verdict) Passed() bool { return v.Status == VerdictPass }
