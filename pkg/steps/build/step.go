// Package build implements the image build step: it invokes the external
// build script and delivers the resulting image either to the registry or to
// the artifact store, depending on the run's delivery mode.
package build

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/buildgate/buildgate/pkg/artifacts"
	"github.com/buildgate/buildgate/pkg/imageref"
	"github.com/buildgate/buildgate/pkg/models"
	"github.com/buildgate/buildgate/pkg/protocol"
	"github.com/buildgate/buildgate/pkg/steps"
)

const (
	defaultScript = "./containers/build.sh"
	defaultTarget = "runtime"
)

// Step builds the container image for one matrix entry.
type Step struct {
	script    string
	target    string
	exportDir string
	store     artifacts.Store
	runner    steps.CommandRunner
}

func (s *Step) Execute(ctx context.Context, stepCtx protocol.StepContext, logger *slog.Logger) (protocol.StepResult, error) {
	logger = logger.With(
		"module", "build_step",
		"job_id", stepCtx.JobID,
		"image_ref", stepCtx.Reference,
		"delivery", string(stepCtx.Delivery),
	)

	args := []string{s.target, strings.ToLower(stepCtx.Context.Owner)}
	if stepCtx.Delivery == imageref.DeliveryRegistry {
		args = append(args, "--push")
	}

	args = append(args, stepCtx.Entry.Tag)

	logger.InfoContext(ctx, "Invoking build script", "script", s.script, "args", args)

	err := s.runner(ctx, s.script, args, nil)
	if err != nil {
		return protocol.StepResult{
			Status:      models.JobStatusFailure,
			FailureKind: models.FailureKindBuild,
			Message:     err.Error(),
		}, nil
	}

	if stepCtx.Delivery == imageref.DeliveryArtifact {
		err = s.uploadExport(ctx, stepCtx)
		if err != nil {
			return protocol.StepResult{
				Status:      models.JobStatusFailure,
				FailureKind: models.FailureKindInfrastructure,
				Message:     err.Error(),
			}, nil
		}

		logger.InfoContext(ctx, "Image exported as artifact", "artifact_key", stepCtx.ArtifactKey)
	}

	return protocol.StepResult{
		Status: models.JobStatusSuccess,
		Output: map[string]any{
			"image_ref":    stepCtx.Reference,
			"delivery":     string(stepCtx.Delivery),
			"artifact_key": stepCtx.ArtifactKey,
		},
	}, nil
}

// uploadExport stores the single-file image export produced by the build
// script under the run's handoff key.
func (s *Step) uploadExport(ctx context.Context, stepCtx protocol.StepContext) error {
	exportPath := filepath.Join(s.exportDir, stepCtx.ArtifactKey+".tar")

	file, err := os.Open(exportPath)
	if err != nil {
		return fmt.Errorf("failed to open image export %s: %w", exportPath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat image export %s: %w", exportPath, err)
	}

	err = s.store.Put(ctx, stepCtx.ArtifactKey, file, info.Size())
	if err != nil {
		return fmt.Errorf("failed to upload image export: %w", err)
	}

	return nil
}
