package store

import (
	"context"
	"errors"

	"github.com/joescharf/reviewgate/internal/models"
)

// ErrNotFound is returned when a run lookup matches nothing.
var ErrNotFound = errors.New("not found")

// RunListFilter specifies filters for listing runs.
type RunListFilter struct {
	Verdict models.VerdictStatus
	Mode    models.ChangeSetMode
	Limit   int
}

// Store defines the persistence interface for gate run history.
type Store interface {
	CreateRun(ctx context.Context, run *models.Run) error
	UpdateRun(ctx context.Context, run *models.Run) error
	GetRun(ctx context.Context, id string) (*models.Run, error)
	FindRun(ctx context.Context, idOrPrefix string) (*models.Run, error)
	ListRuns(ctx context.Context, filter RunListFilter) ([]*models.Run, error)

	Migrate(ctx context.Context) error
	Close() error
}
