// Package protocol defines the contracts between the orchestrator and the
// opaque external steps it dispatches jobs to.
package protocol

import (
	"context"
	"log/slog"

	"github.com/buildgate/buildgate/pkg/imageref"
	"github.com/buildgate/buildgate/pkg/models"
)

// StepContext carries everything a step needs about the job instance it is
// executing. The image reference and artifact key are derived once by the
// orchestrator so producer and consumer steps see identical strings.
type StepContext struct {
	RunID       string
	JobID       string
	Context     models.RunContext
	Entry       models.MatrixEntry
	Delivery    imageref.DeliveryMode
	Reference   string
	ArtifactKey string
}

// StepResult is the terminal outcome of one step execution. Steps are black
// boxes: a single terminal status plus an optional failure classification.
type StepResult struct {
	Status      models.JobStatus
	FailureKind models.FailureKind
	Message     string
	Output      map[string]any
}

// Step executes one job instance to a terminal result. A returned error
// means the step infrastructure itself broke; step-level failures are
// reported through the result.
type Step interface {
	Execute(ctx context.Context, stepCtx StepContext, logger *slog.Logger) (StepResult, error)
}

// StepFactory creates step instances from configuration.
type StepFactory interface {
	ID() string
	Schema() map[string]any
	Create(config map[string]any) (Step, error)
}
