package cmd

import (
	"context"
	"fmt"

	"github.com/buildgate/buildgate/pkg/artifacts"
)

// ArtifactStoreConfig selects and configures the artifact store backend.
type ArtifactStoreConfig struct {
	Provider  string // "minio" or "file"
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Root      string // file store root
}

func NewArtifactStore(ctx context.Context, cfg ArtifactStoreConfig) artifacts.Store {
	switch cfg.Provider {
	case "minio":
		store, err := artifacts.NewMinioStore(ctx, artifacts.MinioConfig{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    cfg.Bucket,
			UseSSL:    cfg.UseSSL,
		})
		if err != nil {
			panic(fmt.Errorf("failed to connect to object store: %w", err))
		}

		return store
	default:
		store, err := artifacts.NewFileStore(cfg.Root)
		if err != nil {
			panic(fmt.Errorf("failed to create artifact directory: %w", err))
		}

		return store
	}
}
