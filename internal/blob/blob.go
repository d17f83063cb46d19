// Package blob stores campaign media objects and resolves them to URIs the
// viewer can load.
package blob

import (
	"context"
	"fmt"
	"io"

	"github.com/markercast/engine/internal/api"
	"github.com/markercast/engine/internal/config"
)

// Store uploads and deletes media objects by key.
type Store interface {
	// Upload writes r under key and returns the URI it resolves to.
	Upload(ctx context.Context, key, contentType string, r io.Reader) (string, error)
	// Delete removes key. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
}

// New creates a store based on configuration.
func New(ctx context.Context, cfg config.BlobConfig) (Store, error) {
	switch cfg.Type {
	case "local", "":
		return NewLocal(cfg.Local.Root, cfg.Local.BaseURL)
	case "s3":
		return NewS3(ctx, cfg.S3)
	case "remote":
		return api.New(cfg.Remote.ServerURL, cfg.Remote.APIKey), nil
	default:
		return nil, fmt.Errorf("unknown blob store type: %s", cfg.Type)
	}
}
