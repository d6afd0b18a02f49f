package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"time"

	"github.com/buildgate/buildgate/pkg/models"
	"github.com/buildgate/buildgate/pkg/persistence"
)

// WorkflowRepository stores one JSON document per workflow under
// {root}/workflows, keyed by workflow name.
type WorkflowRepository struct {
	root string
}

// NewWorkflowRepository creates a workflow repository rooted at the given
// directory.
func NewWorkflowRepository(root string) *WorkflowRepository {
	return &WorkflowRepository{root: root}
}

func (wr *WorkflowRepository) dir() string {
	return path.Join(wr.root, "workflows")
}

func (wr *WorkflowRepository) path(name string) string {
	return path.Join(wr.dir(), name+".json")
}

func (wr *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	err := os.MkdirAll(wr.dir(), 0o755)
	if err != nil {
		return fmt.Errorf("failed to create workflows directory: %w", err)
	}

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	payload, err := json.MarshalIndent(workflow, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode workflow %s: %w", workflow.Name, err)
	}

	err = os.WriteFile(wr.path(workflow.Name), payload, 0o644)
	if err != nil {
		return fmt.Errorf("failed to write workflow %s: %w", workflow.Name, err)
	}

	return nil
}

func (wr *WorkflowRepository) GetByName(_ context.Context, name string) (*models.Workflow, error) {
	payload, err := os.ReadFile(wr.path(name))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("workflow %s: %w", name, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read workflow %s: %w", name, err)
	}

	var workflow models.Workflow

	err = json.Unmarshal(payload, &workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to decode workflow %s: %w", name, err)
	}

	return &workflow, nil
}

func (wr *WorkflowRepository) List(ctx context.Context) ([]*models.Workflow, error) {
	root := os.DirFS(wr.dir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow files: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		workflow, err := wr.GetByName(ctx, file[:len(file)-5])
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	return workflows, nil
}

func (wr *WorkflowRepository) Delete(_ context.Context, name string) error {
	err := os.Remove(wr.path(name))
	if os.IsNotExist(err) {
		return fmt.Errorf("workflow %s: %w", name, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return fmt.Errorf("failed to delete workflow %s: %w", name, err)
	}

	return nil
}
