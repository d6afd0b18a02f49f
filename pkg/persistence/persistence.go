// Package persistence provides the data storage abstraction layer for
// workflows and runs.
package persistence

import (
	"context"
	"time"

	"github.com/buildgate/buildgate/pkg/models"
)

type Persistence interface {
	RunRepository() RunRepository
	WorkflowRepository() WorkflowRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// RunRepository stores workflow runs. Run state is persisted after every
// transition, so Save replaces the whole run document.
type RunRepository interface {
	Save(ctx context.Context, run *models.WorkflowRun) error
	GetByID(ctx context.Context, id string) (*models.WorkflowRun, error)
	List(ctx context.Context) ([]*models.WorkflowRun, error)
	ListByStatus(ctx context.Context, status models.RunStatus) ([]*models.WorkflowRun, error)

	// MarkCancelled moves a non-terminal run to cancelled and cancels every
	// job instance that has not reached a terminal state.
	MarkCancelled(ctx context.Context, id, reason string) error

	// ListQueuedBefore returns queued runs created before the cutoff. Used
	// by the janitor to expire superseded runs whose cancellation was lost.
	ListQueuedBefore(ctx context.Context, cutoff time.Time) ([]*models.WorkflowRun, error)
}

type WorkflowRepository interface {
	Save(ctx context.Context, workflow *models.Workflow) error
	GetByName(ctx context.Context, name string) (*models.Workflow, error)
	List(ctx context.Context) ([]*models.Workflow, error)
	Delete(ctx context.Context, name string) error
}
