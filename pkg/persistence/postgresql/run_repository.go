package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/buildgate/buildgate/pkg/models"
	"github.com/buildgate/buildgate/pkg/persistence"
)

// RunRepository handles run-related database operations.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

const runColumns = `id, workflow_name, status, context, jobs, gate_passed, gate_reason, created_at, started_at, finished_at`

func (rr *RunRepository) Save(ctx context.Context, run *models.WorkflowRun) error {
	contextJSON, err := json.Marshal(run.Context)
	if err != nil {
		return persistence.NewRunError("Save", run.ID, err)
	}

	jobsJSON, err := json.Marshal(run.Jobs)
	if err != nil {
		return persistence.NewRunError("Save", run.ID, err)
	}

	query := `
		INSERT INTO runs (id, workflow_name, concurrency_key, status, context, jobs, gate_passed, gate_reason, created_at, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			jobs = EXCLUDED.jobs,
			gate_passed = EXCLUDED.gate_passed,
			gate_reason = EXCLUDED.gate_reason,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at
	`

	_, err = rr.db.ExecContext(ctx, query,
		run.ID,
		run.WorkflowName,
		run.ConcurrencyKey(),
		string(run.Status),
		contextJSON,
		jobsJSON,
		run.GatePassed,
		run.GateReason,
		run.CreatedAt,
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return persistence.NewRunError("Save", run.ID, err)
	}

	return nil
}

func (rr *RunRepository) GetByID(ctx context.Context, id string) (*models.WorkflowRun, error) {
	row := rr.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewRunError("GetByID", id, persistence.ErrRunNotFound)
	}

	if err != nil {
		return nil, persistence.NewRunError("GetByID", id, err)
	}

	return run, nil
}

func (rr *RunRepository) List(ctx context.Context) ([]*models.WorkflowRun, error) {
	return rr.query(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_at DESC`)
}

func (rr *RunRepository) ListByStatus(ctx context.Context, status models.RunStatus) ([]*models.WorkflowRun, error) {
	return rr.query(ctx, `SELECT `+runColumns+` FROM runs WHERE status = $1 ORDER BY created_at DESC`, string(status))
}

func (rr *RunRepository) ListQueuedBefore(ctx context.Context, cutoff time.Time) ([]*models.WorkflowRun, error) {
	return rr.query(ctx,
		`SELECT `+runColumns+` FROM runs WHERE status = $1 AND created_at < $2 ORDER BY created_at`,
		string(models.RunStatusQueued), cutoff,
	)
}

func (rr *RunRepository) MarkCancelled(ctx context.Context, id, reason string) error {
	run, err := rr.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if run.Status.IsTerminal() {
		return persistence.NewRunError("MarkCancelled", id, persistence.ErrRunAlreadyTerminal)
	}

	now := time.Now().UTC()
	run.Status = models.RunStatusCancelled
	run.GateReason = reason
	run.FinishedAt = &now

	for _, result := range run.Jobs {
		if !result.Status.IsTerminal() {
			result.Status = models.JobStatusCancelled
			result.FailureKind = models.FailureKindCancellation
			result.FinishedAt = &now
		}
	}

	return rr.Save(ctx, run)
}

func (rr *RunRepository) query(ctx context.Context, query string, args ...any) ([]*models.WorkflowRun, error) {
	rows, err := rr.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence.NewRunError("List", "", err)
	}
	defer rows.Close()

	runs := make([]*models.WorkflowRun, 0)

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, persistence.NewRunError("List", "", err)
		}

		runs = append(runs, run)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewRunError("List", "", err)
	}

	return runs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.WorkflowRun, error) {
	var (
		run         models.WorkflowRun
		status      string
		contextJSON []byte
		jobsJSON    []byte
		gatePassed  sql.NullBool
		gateReason  sql.NullString
		startedAt   sql.NullTime
		finishedAt  sql.NullTime
	)

	err := row.Scan(
		&run.ID,
		&run.WorkflowName,
		&status,
		&contextJSON,
		&jobsJSON,
		&gatePassed,
		&gateReason,
		&run.CreatedAt,
		&startedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Status = models.RunStatus(status)

	err = json.Unmarshal(contextJSON, &run.Context)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(jobsJSON, &run.Jobs)
	if err != nil {
		return nil, err
	}

	if run.Jobs == nil {
		run.Jobs = make(map[string]*models.JobResult)
	}

	if gatePassed.Valid {
		run.GatePassed = &gatePassed.Bool
	}

	if gateReason.Valid {
		run.GateReason = gateReason.String
	}

	if startedAt.Valid {
		startedAtValue := startedAt.Time
		run.StartedAt = &startedAtValue
	}

	if finishedAt.Valid {
		finishedAtValue := finishedAt.Time
		run.FinishedAt = &finishedAtValue
	}

	return &run, nil
}
