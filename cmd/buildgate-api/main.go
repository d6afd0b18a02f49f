package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/buildgate/buildgate/pkg/cmd"
	"github.com/buildgate/buildgate/pkg/log"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "buildgate-api",
		Usage:                 "Ingest repository events and expose run state",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "slot-store-url",
				Usage:   "Concurrency slot store URL (redis:// or empty for in-memory)",
				Sources: cli.EnvVars("SLOT_STORE_URL"),
			},
			&cli.StringFlag{
				Name:    "artifacts-path",
				Usage:   "Directory for locally stored image artifacts",
				Value:   "./data/artifacts",
				Sources: cli.EnvVars("ARTIFACTS_PATH"),
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

			logger.InfoContext(ctx, "Initializing Buildgate API")

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

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			slotStore := cmd.NewSlotStore(ctx, command.String("slot-store-url"))
			defer func() {
				err := slotStore.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close slot store", "error", err)
				}
			}()

			artifactStore := cmd.NewArtifactStore(ctx, cmd.ArtifactStoreConfig{
				Provider: "file",
				Root:     command.String("artifacts-path"),
			})

			registry := cmd.NewRegistry(logger, artifactStore)

			api, err := NewAPI(ctx, logger, persistence, registry, eventBus, slotStore)
			if err != nil {
				return err
			}

			return api.Start(int(command.Int("port")))
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
