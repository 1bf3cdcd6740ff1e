package changeset

import (
	"errors"
	"fmt"
)

// ErrResolve is wrapped by every resolution failure so callers can tell
// resolution errors apart from provisioning or invocation errors.
var ErrResolve = errors.New("change-set resolution failed")

var (
	// ErrNoOpenChangeSets means the repository has no open pull requests.
	ErrNoOpenChangeSets = fmt.Errorf("%w: no open pull requests", ErrResolve)
	// ErrNoBaseBranch means neither main nor master exists locally.
	ErrNoBaseBranch = fmt.Errorf("%w: no base branch (tried main, master)", ErrResolve)
	// ErrInvalidParams means the mode's required parameters are missing.
	ErrInvalidParams = fmt.Errorf("%w: invalid parameters", ErrResolve)
)

// UpstreamQueryError wraps a failed query to the remote repository host,
// including authentication failures.
type UpstreamQueryError struct {
	Owner string
	Repo  string
	Err   error
}

func (e *UpstreamQueryError) Error() string {
	return fmt.Sprintf("%v: querying open pull requests for %s/%s: %v", ErrResolve, e.Owner, e.Repo, e.Err)
}

func (e *UpstreamQueryError) Unwrap() []error { return []error{ErrResolve, e.Err} }
