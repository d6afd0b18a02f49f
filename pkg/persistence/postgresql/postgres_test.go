package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/buildgate/buildgate/pkg/models"
	"github.com/buildgate/buildgate/pkg/persistence"
	"github.com/buildgate/buildgate/pkg/persistence/postgresql"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"runs", "workflows", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("buildgate_test"),
			postgres.WithUsername("buildgate"),
			postgres.WithPassword("buildgate"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	persist, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = persist.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return persist, ctx
}

func newRun() *models.WorkflowRun {
	return models.NewWorkflowRun(uuid.New().String(), "ghcr-runtime", models.RunContext{
		Event: models.EventKindPush,
		Ref:   "main",
		SHA:   "abc123",
		Owner: "acme",
	})
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	persist, ctx := setupTestDB(t)

	assert.NoError(t, persist.HealthCheck(ctx))
}

func TestRunRepository_SaveAndGet(t *testing.T) {
	persist, ctx := setupTestDB(t)
	repo := persist.RunRepository()

	run := newRun()
	_, err := run.SetJobStatus("build-nikolaik", "build", models.JobStatusSuccess)
	require.NoError(t, err)

	require.NoError(t, repo.Save(ctx, run))

	loaded, err := repo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, loaded.ID)
	assert.Equal(t, run.WorkflowName, loaded.WorkflowName)
	assert.Equal(t, models.RunStatusQueued, loaded.Status)
	assert.Equal(t, models.JobStatusSuccess, loaded.JobStatusOf("build-nikolaik"))
	assert.Equal(t, "acme", loaded.Context.Owner)
}

func TestRunRepository_SaveIsUpsert(t *testing.T) {
	persist, ctx := setupTestDB(t)
	repo := persist.RunRepository()

	run := newRun()
	require.NoError(t, repo.Save(ctx, run))

	run.Status = models.RunStatusInProgress
	require.NoError(t, repo.Save(ctx, run))

	loaded, err := repo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusInProgress, loaded.Status)
}

func TestRunRepository_GetByID_NotFound(t *testing.T) {
	persist, ctx := setupTestDB(t)

	_, err := persist.RunRepository().GetByID(ctx, uuid.New().String())
	require.Error(t, err)
	assert.True(t, persistence.IsRunNotFound(err))
}

func TestRunRepository_ListByStatus(t *testing.T) {
	persist, ctx := setupTestDB(t)
	repo := persist.RunRepository()

	queued := newRun()
	require.NoError(t, repo.Save(ctx, queued))

	finished := newRun()
	finished.Status = models.RunStatusSuccess
	require.NoError(t, repo.Save(ctx, finished))

	runs, err := repo.ListByStatus(ctx, models.RunStatusQueued)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, queued.ID, runs[0].ID)
}

func TestRunRepository_MarkCancelled(t *testing.T) {
	persist, ctx := setupTestDB(t)
	repo := persist.RunRepository()

	run := newRun()
	run.Status = models.RunStatusInProgress
	_, err := run.SetJobStatus("build-nikolaik", "build", models.JobStatusRunning)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, run))

	require.NoError(t, repo.MarkCancelled(ctx, run.ID, "superseded"))

	loaded, err := repo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCancelled, loaded.Status)
	assert.Equal(t, models.JobStatusCancelled, loaded.JobStatusOf("build-nikolaik"))
	assert.Equal(t, models.FailureKindCancellation, loaded.Jobs["build-nikolaik"].FailureKind)
}

func TestRunRepository_MarkCancelled_TerminalRun(t *testing.T) {
	persist, ctx := setupTestDB(t)
	repo := persist.RunRepository()

	run := newRun()
	run.Status = models.RunStatusSuccess
	require.NoError(t, repo.Save(ctx, run))

	err := repo.MarkCancelled(ctx, run.ID, "too late")
	assert.ErrorIs(t, err, persistence.ErrRunAlreadyTerminal)
}

func TestRunRepository_ListQueuedBefore(t *testing.T) {
	persist, ctx := setupTestDB(t)
	repo := persist.RunRepository()

	stale := newRun()
	stale.CreatedAt = time.Now().UTC().Add(-3 * time.Hour)
	require.NoError(t, repo.Save(ctx, stale))

	fresh := newRun()
	require.NoError(t, repo.Save(ctx, fresh))

	runs, err := repo.ListQueuedBefore(ctx, time.Now().UTC().Add(-2*time.Hour))
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, stale.ID, runs[0].ID)
}

func TestWorkflowRepository_SaveAndGet(t *testing.T) {
	persist, ctx := setupTestDB(t)
	repo := persist.WorkflowRepository()

	workflow := models.DefaultPipeline(models.DefaultMatrix())
	require.NoError(t, repo.Save(ctx, workflow))

	loaded, err := repo.GetByName(ctx, workflow.Name)
	require.NoError(t, err)
	assert.Equal(t, workflow.Name, loaded.Name)
	assert.Len(t, loaded.Jobs, 3)
	assert.Equal(t, workflow.GateInputs, loaded.GateInputs)
}

func TestWorkflowRepository_SaveIsUpsert(t *testing.T) {
	persist, ctx := setupTestDB(t)
	repo := persist.WorkflowRepository()

	workflow := models.DefaultPipeline(nil)
	require.NoError(t, repo.Save(ctx, workflow))

	workflow.Description = "updated"
	require.NoError(t, repo.Save(ctx, workflow))

	loaded, err := repo.GetByName(ctx, workflow.Name)
	require.NoError(t, err)
	assert.Equal(t, "updated", loaded.Description)
}

func TestWorkflowRepository_Delete(t *testing.T) {
	persist, ctx := setupTestDB(t)
	repo := persist.WorkflowRepository()

	workflow := models.DefaultPipeline(nil)
	require.NoError(t, repo.Save(ctx, workflow))

	require.NoError(t, repo.Delete(ctx, workflow.Name))

	_, err := repo.GetByName(ctx, workflow.Name)
	assert.True(t, persistence.IsWorkflowNotFound(err))

	err = repo.Delete(ctx, workflow.Name)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}
