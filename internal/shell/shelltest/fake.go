// Package shelltest provides a scripted shell.Runner for tests.
package shelltest

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/joescharf/reviewgate/internal/shell"
)

// Handler scripts the outcome of one command.
type Handler func(ctx context.Context, cmd shell.Command) (shell.Result, error)

// Runner is a fake shell.Runner. Tools lists binaries LookPath can find;
// Handle decides each command's outcome (nil means success with no output).
type Runner struct {
	Tools  map[string]bool
	Handle Handler
	// RemoveErr, when set, is returned by RemoveAll after removing the path.
	RemoveErr error

	mu      sync.Mutex
	calls   []shell.Command
	removed []string
}

// New returns a fake runner that can find the given tools.
func New(tools ...string) *Runner {
	r := &Runner{Tools: make(map[string]bool)}
	for _, t := range tools {
		r.Tools[t] = true
	}
	return r
}

func (r *Runner) LookPath(name string) (string, error) {
	if r.Tools[name] {
		return "/usr/bin/" + name, nil
	}
	return "", fmt.Errorf("exec: %q: executable file not found in $PATH", name)
}

func (r *Runner) Run(ctx context.Context, cmd shell.Command) (shell.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return shell.Result{ExitCode: -1}, fmt.Errorf("%s: %w", cmd, err)
	}
	if r.Handle == nil {
		return shell.Result{}, nil
	}
	return r.Handle(ctx, cmd)
}

func (r *Runner) RemoveAll(path string) error {
	r.mu.Lock()
	r.removed = append(r.removed, path)
	r.mu.Unlock()
	if err := os.RemoveAll(path); err != nil {
		return err
	}
	return r.RemoveErr
}

// Calls returns the commands run so far.
func (r *Runner) Calls() []shell.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]shell.Command(nil), r.calls...)
}

// CommandLines returns Calls rendered as strings.
func (r *Runner) CommandLines() []string {
	var out []string
	for _, c := range r.Calls() {
		out = append(out, c.String())
	}
	return out
}

// Removed returns the paths passed to RemoveAll.
func (r *Runner) Removed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.removed...)
}

// Fail returns an *shell.ExitError for cmd.
func Fail(cmd shell.Command, code int, stderr string) (shell.Result, error) {
	return shell.Result{ExitCode: code, Stderr: stderr}, &shell.ExitError{Cmd: cmd.String(), ExitCode: code, Stderr: stderr}
}
