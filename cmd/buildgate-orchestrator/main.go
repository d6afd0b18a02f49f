package main

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/buildgate/buildgate/pkg/admission"
	"github.com/buildgate/buildgate/pkg/cmd"
	"github.com/buildgate/buildgate/pkg/log"
	"github.com/buildgate/buildgate/pkg/orchestrator"
	"github.com/buildgate/buildgate/pkg/otelhelper"
)

const defaultMaxQueueAge = 2 * time.Hour

func main() {
	command := &cli.Command{
		Name:                  "buildgate-orchestrator",
		EnableShellCompletion: true,
		Usage:                 "Start a worker that executes admitted runs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus type (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "slot-store-url",
				Usage:   "Concurrency slot store URL (redis:// or empty for in-memory)",
				Sources: cli.EnvVars("SLOT_STORE_URL"),
			},
			&cli.StringFlag{
				Name:    "artifact-provider",
				Usage:   "Artifact store backend (minio, file)",
				Value:   "file",
				Sources: cli.EnvVars("ARTIFACT_PROVIDER"),
			},
			&cli.StringFlag{
				Name:    "artifact-endpoint",
				Usage:   "Object store endpoint for the minio backend",
				Sources: cli.EnvVars("ARTIFACT_ENDPOINT"),
			},
			&cli.StringFlag{
				Name:    "artifact-access-key",
				Usage:   "Object store access key",
				Sources: cli.EnvVars("ARTIFACT_ACCESS_KEY"),
			},
			&cli.StringFlag{
				Name:    "artifact-secret-key",
				Usage:   "Object store secret key",
				Sources: cli.EnvVars("ARTIFACT_SECRET_KEY"),
			},
			&cli.StringFlag{
				Name:    "artifact-bucket",
				Usage:   "Object store bucket for image artifacts",
				Value:   "buildgate-artifacts",
				Sources: cli.EnvVars("ARTIFACT_BUCKET"),
			},
			&cli.StringFlag{
				Name:    "artifacts-path",
				Usage:   "Directory for locally stored image artifacts",
				Value:   "./data/artifacts",
				Sources: cli.EnvVars("ARTIFACTS_PATH"),
			},
			&cli.DurationFlag{
				Name:    "max-queue-age",
				Usage:   "Queued runs older than this are cancelled by the janitor",
				Value:   defaultMaxQueueAge,
				Sources: cli.EnvVars("MAX_QUEUE_AGE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("buildgate-orchestrator").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing Buildgate Orchestrator")

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			err := cmd.EnsureDefaultWorkflow(ctx, persistence)
			if err != nil {
				return err
			}

			slotStore := cmd.NewSlotStore(ctx, command.String("slot-store-url"))
			defer func() {
				err := slotStore.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close slot store", "error", err)
				}
			}()

			artifactStore := cmd.NewArtifactStore(ctx, cmd.ArtifactStoreConfig{
				Provider:  command.String("artifact-provider"),
				Endpoint:  command.String("artifact-endpoint"),
				AccessKey: command.String("artifact-access-key"),
				SecretKey: command.String("artifact-secret-key"),
				Bucket:    command.String("artifact-bucket"),
				Root:      command.String("artifacts-path"),
			})

			registry := cmd.NewRegistry(logger, artifactStore)

			tracer, err := otelhelper.NewTracer(ctx, "buildgate-orchestrator")
			if err != nil {
				return err
			}

			evaluator := admission.NewEvaluator(slotStore, logger)

			orch := orchestrator.New(
				workerID,
				persistence,
				eventBus,
				registry,
				evaluator,
				tracer,
				logger,
			)

			worker := NewWorkerManager(
				workerID,
				orch,
				evaluator,
				persistence,
				eventBus,
				command.Duration("max-queue-age"),
				logger,
			)

			return worker.Start(ctx)
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
