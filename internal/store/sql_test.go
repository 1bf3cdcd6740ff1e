package store

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/reviewgate/internal/models"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestRun_CreateGetUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := &models.Run{
		Mode:     models.ModeExplicitPR,
		Target:   "https://github.com/acme/widgets/pull/42",
		PRNumber: 42,
	}
	require.NoError(t, s.CreateRun(ctx, run))
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, models.RunStatusRunning, run.Status)
	assert.False(t, run.StartedAt.IsZero())

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Target, got.Target)
	assert.Equal(t, 42, got.PRNumber)
	assert.Nil(t, got.EndedAt)

	ended := time.Now().UTC()
	got.Status = models.RunStatusCompleted
	got.Verdict = models.VerdictFail
	got.Strategy = "venv"
	got.BlockingCount = 1
	got.FindingCount = 3
	got.ArtifactPath = "review-results.json"
	got.EndedAt = &ended
	require.NoError(t, s.UpdateRun(ctx, got))

	again, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VerdictFail, again.Verdict)
	assert.Equal(t, models.RunStatusCompleted, again.Status)
	assert.Equal(t, 1, again.BlockingCount)
	assert.Equal(t, 3, again.FindingCount)
	assert.Equal(t, "venv", again.Strategy)
	require.NotNil(t, again.EndedAt)
}

func TestRun_GetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetRun(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRun_UpdateMissing(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateRun(context.Background(), &models.Run{ID: "nope", Status: models.RunStatusCompleted})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRun_FindByPrefix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := &models.Run{ID: "01AAAAAAAAAAAAAAAAAAAAAAAA", Mode: models.ModeLocalDiff}
	require.NoError(t, s.CreateRun(ctx, run))
	other := &models.Run{ID: "01BBBBBBBBBBBBBBBBBBBBBBBB", Mode: models.ModeLocalDiff}
	require.NoError(t, s.CreateRun(ctx, other))

	got, err := s.FindRun(ctx, "01a")
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)

	_, err = s.FindRun(ctx, "01")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")

	_, err = s.FindRun(ctx, "ZZ")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRun_ListFiltersAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	runs := []*models.Run{
		{Mode: models.ModeExplicitPR, Verdict: models.VerdictPass, StartedAt: base},
		{Mode: models.ModeLocalDiff, Verdict: models.VerdictFail, StartedAt: base.Add(time.Minute)},
		{Mode: models.ModeExplicitPR, Verdict: models.VerdictFail, StartedAt: base.Add(2 * time.Minute)},
	}
	for _, r := range runs {
		require.NoError(t, s.CreateRun(ctx, r))
	}

	all, err := s.ListRuns(ctx, RunListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, runs[2].ID, all[0].ID)
	assert.Equal(t, runs[0].ID, all[2].ID)

	failed, err := s.ListRuns(ctx, RunListFilter{Verdict: models.VerdictFail})
	require.NoError(t, err)
	assert.Len(t, failed, 2)

	prFailed, err := s.ListRuns(ctx, RunListFilter{Verdict: models.VerdictFail, Mode: models.ModeExplicitPR})
	require.NoError(t, err)
	require.Len(t, prFailed, 1)
	assert.Equal(t, runs[2].ID, prFailed[0].ID)

	limited, err := s.ListRuns(ctx, RunListFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("mysql", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestRebind(t *testing.T) {
	pg := NewWithDB(nil, DialectPostgres)
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	lite := NewWithDB(nil, DialectSQLite)
	assert.Equal(t, "x = ?", lite.rebind("x = ?"))
}

func TestPostgres_CreateRunUsesNumberedPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewWithDB(db, DialectPostgres)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO runs (") + ".*" + regexp.QuoteMeta("VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	run := &models.Run{ID: "01TEST", Mode: models.ModeLatestOpenPR, Target: "#7", PRNumber: 7}
	require.NoError(t, s.CreateRun(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetRunScansRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewWithDB(db, DialectPostgres)
	started := time.Date(2026, 10, 2, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "mode", "target", "pr_number", "strategy", "status", "verdict",
		"blocking_count", "finding_count", "artifact_path", "summary", "error", "started_at", "ended_at"}).
		AddRow("01TEST", "explicit-pr", "#9", 9, "alternate", "completed", "PASS", 0, 2, "review-results.json", "ok", "", started, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM runs WHERE id = $1")).WithArgs("01TEST").WillReturnRows(rows)

	got, err := s.GetRun(context.Background(), "01TEST")
	require.NoError(t, err)
	assert.Equal(t, models.ModeExplicitPR, got.Mode)
	assert.Equal(t, models.VerdictPass, got.Verdict)
	assert.Equal(t, "alternate", got.Strategy)
	assert.Equal(t, 2, got.FindingCount)
	assert.Nil(t, got.EndedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateRunNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewWithDB(db, DialectPostgres)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE runs SET")).WillReturnResult(sqlmock.NewResult(0, 0))

	err = s.UpdateRun(context.Background(), &models.Run{ID: "missing"})
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
