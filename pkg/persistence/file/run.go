package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sync"
	"time"

	"github.com/buildgate/buildgate/pkg/models"
	"github.com/buildgate/buildgate/pkg/persistence"
)

// RunRepository stores one JSON document per run under {root}/runs.
type RunRepository struct {
	root string
	mu   sync.Mutex
}

// NewRunRepository creates a run repository rooted at the given directory.
func NewRunRepository(root string) *RunRepository {
	return &RunRepository{root: root}
}

func (rr *RunRepository) dir() string {
	return path.Join(rr.root, "runs")
}

func (rr *RunRepository) path(id string) string {
	return path.Join(rr.dir(), id+".json")
}

func (rr *RunRepository) Save(_ context.Context, run *models.WorkflowRun) error {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	return rr.write(run)
}

func (rr *RunRepository) write(run *models.WorkflowRun) error {
	err := os.MkdirAll(rr.dir(), 0o755)
	if err != nil {
		return persistence.NewRunError("Save", run.ID, err)
	}

	payload, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return persistence.NewRunError("Save", run.ID, err)
	}

	err = os.WriteFile(rr.path(run.ID), payload, 0o644)
	if err != nil {
		return persistence.NewRunError("Save", run.ID, err)
	}

	return nil
}

func (rr *RunRepository) GetByID(_ context.Context, id string) (*models.WorkflowRun, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	return rr.read(id)
}

func (rr *RunRepository) read(id string) (*models.WorkflowRun, error) {
	payload, err := os.ReadFile(rr.path(id))
	if os.IsNotExist(err) {
		return nil, persistence.NewRunError("GetByID", id, persistence.ErrRunNotFound)
	}

	if err != nil {
		return nil, persistence.NewRunError("GetByID", id, err)
	}

	var run models.WorkflowRun

	err = json.Unmarshal(payload, &run)
	if err != nil {
		return nil, persistence.NewRunError("GetByID", id, err)
	}

	if run.Jobs == nil {
		run.Jobs = make(map[string]*models.JobResult)
	}

	return &run, nil
}

func (rr *RunRepository) List(ctx context.Context) ([]*models.WorkflowRun, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	return rr.list()
}

func (rr *RunRepository) list() ([]*models.WorkflowRun, error) {
	root := os.DirFS(rr.dir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list run files: %w", err)
	}

	runs := make([]*models.WorkflowRun, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		run, err := rr.read(file[:len(file)-5])
		if err != nil {
			return nil, err
		}

		runs = append(runs, run)
	}

	return runs, nil
}

func (rr *RunRepository) ListByStatus(ctx context.Context, status models.RunStatus) ([]*models.WorkflowRun, error) {
	all, err := rr.List(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.WorkflowRun, 0, len(all))

	for _, run := range all {
		if run.Status == status {
			filtered = append(filtered, run)
		}
	}

	return filtered, nil
}

func (rr *RunRepository) MarkCancelled(_ context.Context, id, reason string) error {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	run, err := rr.read(id)
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

	return rr.write(run)
}

func (rr *RunRepository) ListQueuedBefore(ctx context.Context, cutoff time.Time) ([]*models.WorkflowRun, error) {
	queued, err := rr.ListByStatus(ctx, models.RunStatusQueued)
	if err != nil {
		return nil, err
	}

	stale := make([]*models.WorkflowRun, 0, len(queued))

	for _, run := range queued {
		if run.CreatedAt.Before(cutoff) {
			stale = append(stale, run)
		}
	}

	return stale, nil
}
