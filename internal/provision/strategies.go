package provision

import (
	"context"
	"fmt"

	"github.com/joescharf/reviewgate/internal/shell"
)

func provisionVenv(ctx context.Context, sh shell.Runner, req Requirements) (*Environment, error) {
	if req.Dir == "" {
		return nil, fmt.Errorf("%w: no environment directory configured", ErrUnavailable)
	}
	if err := requireTool(sh, req.python()); err != nil {
		return nil, err
	}

	if _, err := sh.Run(ctx, shell.Command{Name: req.python(), Args: []string{"-m", "venv", req.Dir}}); err != nil {
		return nil, fmt.Errorf("create venv: %w", err)
	}

	py := interpreterIn(req.Dir)
	if args := req.installArgs(); len(args) > 0 {
		install := append([]string{"-m", "pip", "install", "--quiet"}, args...)
		if _, err := sh.Run(ctx, shell.Command{Name: py, Args: install}); err != nil {
			return nil, fmt.Errorf("install into venv: %w", err)
		}
	}
	return &Environment{Dir: req.Dir, Python: py, Isolated: true}, nil
}

// provisionAlternate uses uv when present, virtualenv otherwise.
func provisionAlternate(ctx context.Context, sh shell.Runner, req Requirements) (*Environment, error) {
	if req.Dir == "" {
		return nil, fmt.Errorf("%w: no environment directory configured", ErrUnavailable)
	}

	py := interpreterIn(req.Dir)
	switch {
	case requireTool(sh, "uv") == nil:
		if _, err := sh.Run(ctx, shell.Command{Name: "uv", Args: []string{"venv", "--quiet", req.Dir}}); err != nil {
			return nil, fmt.Errorf("uv venv: %w", err)
		}
		if args := req.installArgs(); len(args) > 0 {
			install := append([]string{"pip", "install", "--quiet", "--python", py}, args...)
			if _, err := sh.Run(ctx, shell.Command{Name: "uv", Args: install}); err != nil {
				return nil, fmt.Errorf("uv pip install: %w", err)
			}
		}
	case requireTool(sh, "virtualenv") == nil:
		if _, err := sh.Run(ctx, shell.Command{Name: "virtualenv", Args: []string{"--quiet", req.Dir}}); err != nil {
			return nil, fmt.Errorf("virtualenv: %w", err)
		}
		if args := req.installArgs(); len(args) > 0 {
			install := append([]string{"-m", "pip", "install", "--quiet"}, args...)
			if _, err := sh.Run(ctx, shell.Command{Name: py, Args: install}); err != nil {
				return nil, fmt.Errorf("install into virtualenv: %w", err)
			}
		}
	default:
		return nil, fmt.Errorf("%w: neither uv nor virtualenv found", ErrUnavailable)
	}
	return &Environment{Dir: req.Dir, Python: py, Isolated: true}, nil
}

// provisionAmbient installs into the interpreter on PATH. The resulting
// environment is shared with everything else on the host.
func provisionAmbient(ctx context.Context, sh shell.Runner, req Requirements) (*Environment, error) {
	if err := requireTool(sh, req.python()); err != nil {
		return nil, err
	}
	if args := req.installArgs(); len(args) > 0 {
		install := append([]string{"-m", "pip", "install", "--quiet"}, args...)
		if _, err := sh.Run(ctx, shell.Command{Name: req.python(), Args: install}); err != nil {
			return nil, fmt.Errorf("ambient pip install: %w", err)
		}
	}
	return &Environment{Python: req.python(), Isolated: false}, nil
}
