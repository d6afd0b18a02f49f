package cmd

import (
	"context"

	"github.com/buildgate/buildgate/pkg/models"
	"github.com/buildgate/buildgate/pkg/persistence"
)

// EnsureDefaultWorkflow seeds the container pipeline definition when the
// store has no workflow with that name yet.
func EnsureDefaultWorkflow(ctx context.Context, persist persistence.Persistence) error {
	pipeline := models.DefaultPipeline(models.DefaultMatrix())

	_, err := persist.WorkflowRepository().GetByName(ctx, pipeline.Name)
	if err == nil {
		return nil
	}

	if !persistence.IsWorkflowNotFound(err) {
		return err
	}

	return persist.WorkflowRepository().Save(ctx, pipeline)
}
