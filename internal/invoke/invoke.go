// Package invoke runs the external review process against a change-set and
// loads the findings report it writes.
package invoke

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/joescharf/reviewgate/internal/models"
	"github.com/joescharf/reviewgate/internal/provision"
	"github.com/joescharf/reviewgate/internal/shell"
)

// DefaultModule is the python module run as the external reviewer.
const DefaultModule = "review_agents"

// ErrNoOutput means the reviewer exited without writing its output file.
var ErrNoOutput = errors.New("reviewer produced no output file")

// InvocationError means the external reviewer crashed, timed out, or wrote
// nothing. It is distinct from a report that parsed with zero findings.
type InvocationError struct {
	Timeout bool
	Err     error
}

func (e *InvocationError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("review invocation timed out: %v", e.Err)
	}
	return fmt.Sprintf("review invocation failed: %v", e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// ParseError means the output file exists but is not a valid report.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse findings report %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Request is everything handed to the external reviewer for one run.
type Request struct {
	Target      string
	Agents      []string
	FailOn      []models.Severity
	Token       string
	OutputPath  string
	ProjectRoot string
}

// Args renders the reviewer's command-line arguments. The token is passed
// through the environment, never on argv.
func (r Request) Args(module string, local bool) []string {
	targetFlag := "--pr"
	if local {
		targetFlag = "--diff"
	}
	args := []string{"-m", module, targetFlag, r.Target}
	if len(r.Agents) > 0 {
		args = append(args, "--agents", strings.Join(r.Agents, ","))
	}
	if len(r.FailOn) > 0 {
		args = append(args, "--fail-on", models.JoinSeverities(r.FailOn))
	}
	args = append(args, "--output", r.OutputPath)
	if r.ProjectRoot != "" {
		args = append(args, "--project-root", r.ProjectRoot)
	}
	return args
}

// Options configures an Invoker.
type Options struct {
	Module      string
	OutputPath  string
	ProjectRoot string
	Token       string
}

// Invoker runs the reviewer through the shell capability.
type Invoker struct {
	sh   shell.Runner
	opts Options
	log  *zap.SugaredLogger
}

// New creates an Invoker.
func New(sh shell.Runner, opts Options, log *zap.SugaredLogger) *Invoker {
	if opts.Module == "" {
		opts.Module = DefaultModule
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Invoker{sh: sh, opts: opts, log: log}
}

// OutputPath is where the reviewer is told to write its report.
func (i *Invoker) OutputPath() string { return i.opts.OutputPath }

// BuildRequest assembles the invocation request for cs.
func (i *Invoker) BuildRequest(cs models.ChangeSet, cfg models.GateConfig) Request {
	return Request{
		Target:      cs.Reference(),
		Agents:      cfg.Agents(),
		FailOn:      cfg.BlockingSeverities(),
		Token:       i.opts.Token,
		OutputPath:  i.opts.OutputPath,
		ProjectRoot: i.opts.ProjectRoot,
	}
}

// Invoke runs the reviewer inside env and loads its report. The reviewer's
// exit status is advisory: a non-zero exit with an output file still yields
// a report, while a missing file is an *InvocationError.
func (i *Invoker) Invoke(ctx context.Context, env *provision.Environment, cs models.ChangeSet, cfg models.GateConfig) (*models.FindingsReport, error) {
	if env == nil {
		return nil, &InvocationError{Err: errors.New("no execution environment")}
	}
	if i.opts.OutputPath == "" {
		return nil, &InvocationError{Err: errors.New("no output path configured")}
	}

	req := i.BuildRequest(cs, cfg)

	// A stale file from an earlier run must not be mistaken for this run's output.
	if err := os.Remove(req.OutputPath); err != nil && !os.IsNotExist(err) {
		return nil, &InvocationError{Err: fmt.Errorf("remove stale output: %w", err)}
	}
	if dir := filepath.Dir(req.OutputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &InvocationError{Err: fmt.Errorf("create output directory: %w", err)}
		}
	}

	cmd := shell.Command{
		Name: env.Python,
		Args: req.Args(i.opts.Module, !cs.Mode.IsPullRequest()),
		Dir:  req.ProjectRoot,
	}
	if req.Token != "" {
		cmd.Env = []string{"GITHUB_TOKEN=" + req.Token}
	}

	i.log.Infow("invoking reviewer", "target", req.Target, "agents", req.Agents, "output", req.OutputPath, "python", env.Python)
	res, runErr := i.sh.Run(ctx, cmd)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, &InvocationError{Timeout: errors.Is(ctxErr, context.DeadlineExceeded), Err: ctxErr}
	}

	data, readErr := os.ReadFile(req.OutputPath)
	if readErr != nil {
		cause := ErrNoOutput
		if !os.IsNotExist(readErr) {
			cause = fmt.Errorf("%w: %v", ErrNoOutput, readErr)
		}
		if runErr != nil {
			cause = fmt.Errorf("%w (reviewer: %v)", cause, runErr)
		}
		return nil, &InvocationError{Err: cause}
	}
	if runErr != nil {
		i.log.Warnw("reviewer exited non-zero but wrote a report", "error", runErr, "exit_code", res.ExitCode)
	}

	report, err := ParseReport(data)
	if err != nil {
		return nil, &ParseError{Path: req.OutputPath, Err: err}
	}
	i.log.Infow("reviewer finished", "findings", report.Len())
	return report, nil
}

// LoadReport reads and parses a report file written earlier.
func LoadReport(path string) (*models.FindingsReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	report, err := ParseReport(data)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return report, nil
}
