// Package provision builds the execution environment the external reviewer
// runs in, trying an ordered chain of strategies until one succeeds.
package provision

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"go.uber.org/zap"

	"github.com/joescharf/reviewgate/internal/shell"
)

// ErrUnavailable marks a strategy whose tooling is not installed. The
// provisioner moves on to the next strategy.
var ErrUnavailable = errors.New("strategy unavailable")

// ErrUnsafeDir means Requirements.Dir already holds something other than a
// previous environment, so it is left alone and nothing is provisioned.
var ErrUnsafeDir = errors.New("environment directory is not safe to clear")

// Requirements describes what the environment must contain.
type Requirements struct {
	// File is a pip requirements file; may be empty.
	File string
	// Packages are extra package specs installed after File.
	Packages []string
	// Dir is where isolated strategies create the environment.
	Dir string
	// Python is the interpreter used to bootstrap (default "python3").
	Python string
}

func (r Requirements) python() string {
	if r.Python == "" {
		return "python3"
	}
	return r.Python
}

// installArgs returns the pip arguments for the requirement set, or nil when
// there is nothing to install.
func (r Requirements) installArgs() []string {
	var args []string
	if r.File != "" {
		args = append(args, "-r", r.File)
	}
	return append(args, r.Packages...)
}

// Environment records the strategy that succeeded so it can be released.
type Environment struct {
	Strategy string `json:"strategy"`
	Dir      string `json:"dir,omitempty"`
	Python   string `json:"python"`
	Isolated bool   `json:"isolated"`
}

// Strategy is one way of producing an Environment.
type Strategy struct {
	Name      string
	Provision func(ctx context.Context, sh shell.Runner, req Requirements) (*Environment, error)
}

// Attempt is the outcome of one strategy during Provision.
type Attempt struct {
	Strategy string
	Err      error
}

// ProvisionError means every strategy failed; the run cannot proceed.
type ProvisionError struct {
	Attempts []Attempt
}

func (e *ProvisionError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = fmt.Sprintf("%s: %v", a.Strategy, a.Err)
	}
	return "no usable execution environment (" + strings.Join(parts, "; ") + ")"
}

func (e *ProvisionError) Unwrap() []error {
	errs := make([]error, len(e.Attempts))
	for i, a := range e.Attempts {
		errs[i] = a.Err
	}
	return errs
}

// DefaultStrategies is the fixed priority chain: stdlib venv, an alternate
// isolated tool, then an install into the ambient interpreter.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "venv", Provision: provisionVenv},
		{Name: "alternate", Provision: provisionAlternate},
		{Name: "ambient", Provision: provisionAmbient},
	}
}

// Provisioner runs strategies in order against a shell capability.
type Provisioner struct {
	sh         shell.Runner
	strategies []Strategy
	log        *zap.SugaredLogger
}

// New creates a provisioner with the default strategy chain.
func New(sh shell.Runner, log *zap.SugaredLogger) *Provisioner {
	return NewWithStrategies(sh, DefaultStrategies(), log)
}

// NewWithStrategies creates a provisioner with a custom chain.
func NewWithStrategies(sh shell.Runner, strategies []Strategy, log *zap.SugaredLogger) *Provisioner {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Provisioner{sh: sh, strategies: strategies, log: log}
}

// Provision tries each strategy in order and returns the first environment
// produced. A failed isolated attempt never leaves its directory behind for
// the next strategy.
func (p *Provisioner) Provision(ctx context.Context, req Requirements) (*Environment, error) {
	if req.Dir != "" {
		if err := checkDir(req.Dir); err != nil {
			p.log.Errorw("refusing to reuse environment directory", "dir", req.Dir, "error", err)
			return nil, &ProvisionError{Attempts: []Attempt{{Strategy: "env.dir", Err: err}}}
		}
	}

	var attempts []Attempt
	for _, s := range p.strategies {
		if err := ctx.Err(); err != nil {
			attempts = append(attempts, Attempt{Strategy: s.Name, Err: err})
			break
		}

		if req.Dir != "" {
			if err := p.sh.RemoveAll(req.Dir); err != nil {
				attempts = append(attempts, Attempt{Strategy: s.Name, Err: fmt.Errorf("clear %s: %w", req.Dir, err)})
				continue
			}
		}

		env, err := p.try(ctx, s, req)
		if err == nil {
			env.Strategy = s.Name
			p.log.Infow("environment provisioned", "strategy", s.Name, "dir", env.Dir, "isolated", env.Isolated)
			if !env.Isolated {
				p.log.Warnw("dependencies installed into the shared interpreter; environment is not isolated", "python", env.Python)
			}
			return env, nil
		}

		attempts = append(attempts, Attempt{Strategy: s.Name, Err: err})
		if errors.Is(err, ErrUnavailable) {
			p.log.Debugw("strategy unavailable", "strategy", s.Name, "reason", err)
		} else {
			p.log.Warnw("strategy failed", "strategy", s.Name, "error", err)
		}
		if req.Dir != "" {
			if rmErr := p.sh.RemoveAll(req.Dir); rmErr != nil {
				p.log.Warnw("could not remove partial environment", "dir", req.Dir, "error", rmErr)
			}
		}
	}
	return nil, &ProvisionError{Attempts: attempts}
}

// try runs one strategy, turning a panic or a nil environment into an
// ordinary failed attempt.
func (p *Provisioner) try(ctx context.Context, s Strategy, req Requirements) (env *Environment, err error) {
	defer func() {
		if r := recover(); r != nil {
			env, err = nil, fmt.Errorf("strategy panicked: %v", r)
		}
	}()
	env, err = s.Provision(ctx, p.sh, req)
	if err == nil && env == nil {
		err = errors.New("strategy returned no environment")
	}
	return env, err
}

// checkDir allows a missing or empty directory, or a virtual environment
// left by an earlier run (pyvenv.cfg present). Anything else is refused.
func checkDir(dir string) error {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("inspect %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrUnsafeDir, dir)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", dir, err)
	}
	if len(entries) == 0 {
		return nil
	}
	if _, err := os.Stat(filepath.Join(dir, "pyvenv.cfg")); err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s is not empty and is not a virtual environment; point env.dir at a dedicated path", ErrUnsafeDir, dir)
}

// Release tears down state created by the strategy that produced env.
// Ambient installs are intentionally left in place.
func (p *Provisioner) Release(_ context.Context, env *Environment) error {
	if env == nil || !env.Isolated || env.Dir == "" {
		return nil
	}
	if err := p.sh.RemoveAll(env.Dir); err != nil {
		return fmt.Errorf("remove environment %s: %w", env.Dir, err)
	}
	p.log.Debugw("environment released", "strategy", env.Strategy, "dir", env.Dir)
	return nil
}

// interpreterIn returns the python path inside an isolated environment dir.
func interpreterIn(dir string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(dir, "Scripts", "python.exe")
	}
	return filepath.Join(dir, "bin", "python")
}

func requireTool(sh shell.Runner, name string) error {
	if _, err := sh.LookPath(name); err != nil {
		return fmt.Errorf("%w: %s not found", ErrUnavailable, name)
	}
	return nil
}
