package models

import (
	"fmt"
	"time"
)

// ChangeSetMode selects how the change-set under review is chosen.
type ChangeSetMode string

const (
	ModeExplicitPR   ChangeSetMode = "explicit-pr"
	ModeLatestOpenPR ChangeSetMode = "latest-open-pr"
	ModeAllOpenPRs   ChangeSetMode = "all-open-prs"
	ModeLocalDiff    ChangeSetMode = "local-diff"
)

// Modes lists the supported selection modes.
var Modes = []ChangeSetMode{ModeExplicitPR, ModeLatestOpenPR, ModeAllOpenPRs, ModeLocalDiff}

// ParseMode validates a mode name.
func ParseMode(s string) (ChangeSetMode, error) {
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown change-set mode %q (want one of %v)", s, Modes)
}

// IsPullRequest reports whether the mode resolves to a pull request.
func (m ChangeSetMode) IsPullRequest() bool {
	return m != ModeLocalDiff
}

// ChangeSet identifies the single code delta reviewed by one gate run.
type ChangeSet struct {
	Mode      ChangeSetMode `json:"mode"`
	Number    int           `json:"number,omitempty"`
	BaseRef   string        `json:"base_ref,omitempty"`
	HeadRef   string        `json:"head_ref,omitempty"`
	SourceURL string        `json:"source_url,omitempty"`
	Title     string        `json:"title,omitempty"`
	UpdatedAt time.Time     `json:"updated_at,omitzero"`
}

// Reference is the target string handed to the external reviewer: the
// canonical URL for pull requests, base...head for local diffs.
func (c ChangeSet) Reference() string {
	if c.Mode.IsPullRequest() {
		if c.SourceURL != "" {
			return c.SourceURL
		}
		return fmt.Sprintf("#%d", c.Number)
	}
	return c.BaseRef + "..." + c.HeadRef
}

// String is a short human label.
func (c ChangeSet) String() string {
	if c.Mode.IsPullRequest() {
		if c.Title != "" {
			return fmt.Sprintf("PR #%d (%s)", c.Number, c.Title)
		}
		return fmt.Sprintf("PR #%d", c.Number)
	}
	return "diff " + c.BaseRef + "..." + c.HeadRef
}
