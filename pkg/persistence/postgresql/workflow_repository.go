package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/buildgate/buildgate/pkg/models"
	"github.com/buildgate/buildgate/pkg/persistence"
)

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

func (wr *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	jobsJSON, err := json.Marshal(workflow.Jobs)
	if err != nil {
		return fmt.Errorf("failed to encode workflow %s jobs: %w", workflow.Name, err)
	}

	gateInputsJSON, err := json.Marshal(workflow.GateInputs)
	if err != nil {
		return fmt.Errorf("failed to encode workflow %s gate inputs: %w", workflow.Name, err)
	}

	query := `
		INSERT INTO workflows (name, id, description, jobs, gate_inputs, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO UPDATE SET
			description = EXCLUDED.description,
			jobs = EXCLUDED.jobs,
			gate_inputs = EXCLUDED.gate_inputs,
			updated_at = EXCLUDED.updated_at
	`

	_, err = wr.db.ExecContext(ctx, query,
		workflow.Name,
		workflow.ID,
		workflow.Description,
		jobsJSON,
		gateInputsJSON,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow %s: %w", workflow.Name, err)
	}

	return nil
}

func (wr *WorkflowRepository) GetByName(ctx context.Context, name string) (*models.Workflow, error) {
	row := wr.db.QueryRowContext(ctx,
		`SELECT name, id, description, jobs, gate_inputs, created_at, updated_at FROM workflows WHERE name = $1`,
		name,
	)

	workflow, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("workflow %s: %w", name, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read workflow %s: %w", name, err)
	}

	return workflow, nil
}

func (wr *WorkflowRepository) List(ctx context.Context) ([]*models.Workflow, error) {
	rows, err := wr.db.QueryContext(ctx,
		`SELECT name, id, description, jobs, gate_inputs, created_at, updated_at FROM workflows ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return workflows, nil
}

func (wr *WorkflowRepository) Delete(ctx context.Context, name string) error {
	result, err := wr.db.ExecContext(ctx, `DELETE FROM workflows WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("failed to delete workflow %s: %w", name, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete workflow %s: %w", name, err)
	}

	if affected == 0 {
		return fmt.Errorf("workflow %s: %w", name, persistence.ErrWorkflowNotFound)
	}

	return nil
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var (
		workflow       models.Workflow
		jobsJSON       []byte
		gateInputsJSON []byte
	)

	err := row.Scan(
		&workflow.Name,
		&workflow.ID,
		&workflow.Description,
		&jobsJSON,
		&gateInputsJSON,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(jobsJSON, &workflow.Jobs)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(gateInputsJSON, &workflow.GateInputs)
	if err != nil {
		return nil, err
	}

	return &workflow, nil
}
