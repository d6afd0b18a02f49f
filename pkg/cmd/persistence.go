package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/buildgate/buildgate/pkg/persistence"
	"github.com/buildgate/buildgate/pkg/persistence/file"
	"github.com/buildgate/buildgate/pkg/persistence/postgresql"
)

func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parseProvider(databaseURL) {
	case "postgres", "postgresql":
		persist, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to connect to postgres: %w", err))
		}

		return persist
	default:
		return file.NewPersistence(databaseURL)
	}
}

func parseProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return provider
}
