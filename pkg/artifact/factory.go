package artifact

import (
	"context"
	"fmt"

	"pdmflow/pkg/config"
	"pdmflow/pkg/interfaces"
)

// NewStore creates the configured artifact store
func NewStore(ctx context.Context, cfg config.ArtifactsConfig) (interfaces.ArtifactStore, error) {
	switch cfg.Backend {
	case "local", "":
		return NewLocalStore(cfg.Local.Root)
	case "s3":
		return NewS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported artifact backend: %s", cfg.Backend)
	}
}
