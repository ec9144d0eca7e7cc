package interfaces

import (
	"context"
	"errors"
)

// ErrArtifactNotFound returned by ArtifactStore.Get for unknown keys
var ErrArtifactNotFound = errors.New("artifact not found")

// ArtifactStore blob storage for run artifacts
// Supports local filesystem and S3 implementations
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)

	// DeletePrefix removes every artifact whose key starts with prefix
	DeletePrefix(ctx context.Context, prefix string) error
}
