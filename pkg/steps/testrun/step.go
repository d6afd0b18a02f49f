// Package testrun implements the test step: it obtains the built image for
// its matrix entry and invokes the external test runner against it.
package testrun

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/buildgate/buildgate/pkg/artifacts"
	"github.com/buildgate/buildgate/pkg/imageref"
	"github.com/buildgate/buildgate/pkg/models"
	"github.com/buildgate/buildgate/pkg/protocol"
	"github.com/buildgate/buildgate/pkg/steps"
)

const (
	defaultCommand     = "poetry"
	defaultLoadCommand = "docker"
	defaultRuntime     = "docker"
	defaultUserID      = 1000
)

// Step runs one test suite against the built image.
type Step struct {
	command     string
	args        []string
	loadCommand string
	runtime     string
	userID      int
	only        string
	store       artifacts.Store
	runner      steps.CommandRunner
}

func (s *Step) Execute(ctx context.Context, stepCtx protocol.StepContext, logger *slog.Logger) (protocol.StepResult, error) {
	logger = logger.With(
		"module", "test_step",
		"job_id", stepCtx.JobID,
		"image_ref", stepCtx.Reference,
		"delivery", string(stepCtx.Delivery),
	)

	if stepCtx.Delivery == imageref.DeliveryArtifact {
		err := s.loadImageArtifact(ctx, stepCtx, logger)
		if err != nil {
			// A missing handoff key is a hard failure: the consumer must
			// never fall back to the registry on a fork run.
			return protocol.StepResult{
				Status:      models.JobStatusFailure,
				FailureKind: models.FailureKindInfrastructure,
				Message:     err.Error(),
			}, nil
		}
	}

	env := []string{
		"TEST_RUNTIME=" + s.runtime,
		"SANDBOX_USER_ID=" + strconv.Itoa(s.userID),
		"SANDBOX_BASE_CONTAINER_IMAGE=" + stepCtx.Reference,
		"TEST_IN_CI=true",
		"TEST_ONLY=" + s.only,
	}

	logger.InfoContext(ctx, "Invoking test runner", "command", s.command, "args", s.args)

	err := s.runner(ctx, s.command, s.args, env)
	if err != nil {
		return protocol.StepResult{
			Status:      models.JobStatusFailure,
			FailureKind: models.FailureKindTest,
			Message:     err.Error(),
		}, nil
	}

	return protocol.StepResult{
		Status: models.JobStatusSuccess,
		Output: map[string]any{
			"image_ref": stepCtx.Reference,
		},
	}, nil
}

// loadImageArtifact fetches the image export written by the build job and
// loads it into the local image store.
func (s *Step) loadImageArtifact(ctx context.Context, stepCtx protocol.StepContext, logger *slog.Logger) error {
	reader, err := s.store.Fetch(ctx, stepCtx.ArtifactKey)
	if err != nil {
		return fmt.Errorf("failed to fetch image artifact %s: %w", stepCtx.ArtifactKey, err)
	}
	defer reader.Close()

	tmp, err := os.CreateTemp("", "image-*.tar")
	if err != nil {
		return fmt.Errorf("failed to create temp file for image artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	_, err = io.Copy(tmp, reader)
	if err != nil {
		tmp.Close()

		return fmt.Errorf("failed to download image artifact %s: %w", stepCtx.ArtifactKey, err)
	}

	err = tmp.Close()
	if err != nil {
		return fmt.Errorf("failed to write image artifact %s: %w", stepCtx.ArtifactKey, err)
	}

	logger.InfoContext(ctx, "Loading image artifact", "artifact_key", stepCtx.ArtifactKey, "path", filepath.Base(tmp.Name()))

	err = s.runner(ctx, s.loadCommand, []string{"load", "-i", tmp.Name()}, nil)
	if err != nil {
		return fmt.Errorf("failed to load image artifact %s: %w", stepCtx.ArtifactKey, err)
	}

	return nil
}
