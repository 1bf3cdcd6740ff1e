// Package pipeline runs one gate evaluation end to end:
// resolve, provision, invoke, decide, then an unconditional finalize.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/joescharf/reviewgate/internal/changeset"
	"github.com/joescharf/reviewgate/internal/gate"
	"github.com/joescharf/reviewgate/internal/git"
	"github.com/joescharf/reviewgate/internal/invoke"
	"github.com/joescharf/reviewgate/internal/lifecycle"
	"github.com/joescharf/reviewgate/internal/models"
	"github.com/joescharf/reviewgate/internal/provision"
)

// finalizeBudget bounds cleanup after the run context is done.
const finalizeBudget = 30 * time.Second

// Resolver picks the change-set under review.
type Resolver interface {
	Resolve(ctx context.Context, mode models.ChangeSetMode, p changeset.Params) (changeset.Resolution, error)
}

// Provisioner builds the reviewer's execution environment.
type Provisioner interface {
	Provision(ctx context.Context, req provision.Requirements) (*provision.Environment, error)
}

// Invoker runs the external reviewer.
type Invoker interface {
	Invoke(ctx context.Context, env *provision.Environment, cs models.ChangeSet, cfg models.GateConfig) (*models.FindingsReport, error)
}

// Finalizer is the lifecycle step that always runs.
type Finalizer interface {
	Finalize(ctx context.Context, run *models.Run, env *provision.Environment, report *models.FindingsReport, verdict models.Verdict) lifecycle.Result
}

// RunCreator opens a run record; nil disables history.
type RunCreator interface {
	CreateRun(ctx context.Context, run *models.Run) error
}

// Request is the immutable input of one run.
type Request struct {
	RunID        string
	Mode         models.ChangeSetMode
	Params       changeset.Params
	Config       models.GateConfig
	Requirements provision.Requirements
	// Timeout bounds the whole run; zero means no ceiling.
	Timeout time.Duration
}

// Outcome is everything a caller needs to report a run.
type Outcome struct {
	Run        *models.Run
	ChangeSet  models.ChangeSet
	Candidates []git.PullRequest
	Env        *provision.Environment
	Report     *models.FindingsReport
	Verdict    models.Verdict
	Finalize   lifecycle.Result
}

// Pipeline wires the stages together.
type Pipeline struct {
	resolver    Resolver
	provisioner Provisioner
	invoker     Invoker
	finalizer   Finalizer
	runs        RunCreator
	log         *zap.SugaredLogger
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Resolver    Resolver
	Provisioner Provisioner
	Invoker     Invoker
	Finalizer   Finalizer
	Runs        RunCreator
}

// New creates a Pipeline.
func New(d Deps, log *zap.SugaredLogger) *Pipeline {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Pipeline{
		resolver:    d.Resolver,
		provisioner: d.Provisioner,
		invoker:     d.Invoker,
		finalizer:   d.Finalizer,
		runs:        d.Runs,
		log:         log,
	}
}

// Run executes the pipeline. A non-nil error means an infrastructure stage
// (resolve or provision) failed before the reviewer ran; the outcome then
// carries an INDETERMINATE verdict. Reviewer failures are not errors: they
// yield an INDETERMINATE verdict with a reason. Finalize runs on every path,
// including panics in earlier stages.
func (p *Pipeline) Run(ctx context.Context, req Request) (out *Outcome, err error) {
	out = &Outcome{}
	out.Run = &models.Run{
		ID:        req.RunID,
		Mode:      req.Mode,
		Status:    models.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if p.runs != nil {
		if cerr := p.runs.CreateRun(ctx, out.Run); cerr != nil {
			p.log.Warnw("could not record run start; history disabled for this run", "error", cerr)
			out.Run = nil
		}
	}

	runCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	provisioning := false
	defer func() {
		if r := recover(); r != nil {
			if provisioning && out.Env == nil && req.Requirements.Dir != "" {
				out.Env = &provision.Environment{Strategy: "partial", Dir: req.Requirements.Dir, Isolated: true}
			}
			err = fmt.Errorf("pipeline panic: %v", r)
			out.Verdict = gate.Indeterminate(err.Error())
			p.log.Errorw("pipeline panicked", "panic", r)
		}
		if err != nil && out.Run != nil {
			out.Run.Status = models.RunStatusErrored
			out.Run.Error = err.Error()
		}
		p.finalize(out)
	}()

	res, err := p.resolver.Resolve(runCtx, req.Mode, req.Params)
	if err != nil {
		if timedOut(runCtx) {
			out.Verdict = gate.Indeterminate("run timed out while resolving the change-set")
			return out, nil
		}
		out.Verdict = gate.Indeterminate("resolve: " + err.Error())
		return out, fmt.Errorf("resolve change-set: %w", err)
	}
	out.ChangeSet = res.ChangeSet
	out.Candidates = res.Candidates
	if out.Run != nil {
		out.Run.Target = res.ChangeSet.Reference()
		out.Run.PRNumber = res.ChangeSet.Number
	}
	p.log.Infow("change-set resolved", "mode", req.Mode, "target", res.ChangeSet.Reference())

	provisioning = true
	env, err := p.provisioner.Provision(runCtx, req.Requirements)
	provisioning = false
	if err != nil {
		if timedOut(runCtx) {
			out.Verdict = gate.Indeterminate("run timed out while provisioning the environment")
			return out, nil
		}
		out.Verdict = gate.Indeterminate("provision: " + err.Error())
		return out, fmt.Errorf("provision environment: %w", err)
	}
	out.Env = env

	report, ierr := p.invoker.Invoke(runCtx, env, res.ChangeSet, req.Config)
	if ierr != nil {
		out.Verdict = gate.Indeterminate(indeterminateReason(ierr))
		p.log.Warnw("review did not produce a usable report", "error", ierr)
		return out, nil
	}
	out.Report = report

	out.Verdict = gate.Decide(report, req.Config)
	p.log.Infow("gate decided", "verdict", out.Verdict.Status, "blocking", len(out.Verdict.Blocking), "findings", report.Len())
	return out, nil
}

func (p *Pipeline) finalize(out *Outcome) {
	if p.finalizer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), finalizeBudget)
	defer cancel()
	out.Finalize = p.finalizer.Finalize(ctx, out.Run, out.Env, out.Report, out.Verdict)
	for _, cerr := range out.Finalize.CleanupErrors {
		p.log.Warnw("finalize cleanup error", "error", cerr)
	}
}

func timedOut(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.DeadlineExceeded)
}

func indeterminateReason(err error) string {
	var ie *invoke.InvocationError
	if errors.As(err, &ie) && ie.Timeout {
		return "reviewer timed out: " + err.Error()
	}
	var pe *invoke.ParseError
	if errors.As(err, &pe) {
		return "unreadable findings report: " + err.Error()
	}
	return "reviewer failed: " + err.Error()
}

// IsInfrastructure reports whether err came from the resolve or provision
// stages, as opposed to a code-quality verdict.
func IsInfrastructure(err error) bool {
	if err == nil {
		return false
	}
	var pe *provision.ProvisionError
	return errors.Is(err, changeset.ErrResolve) || errors.As(err, &pe)
}
