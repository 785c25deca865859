package assetstore

import (
	"context"
	"fmt"

	"rawlabel/internal/config"
)

// Backend is a Store that can also report usage and release resources.
type Backend interface {
	Store
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Open builds the backend selected by cache.backend.
func Open(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.Cache.Backend {
	case config.BackendFilesystem, "":
		return NewFileStore(cfg.Paths.CacheDir)
	case config.BackendSQLite:
		return OpenSQLiteStore(ctx, cfg.AssetDatabasePath())
	case config.BackendS3:
		return NewS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("assetstore: unsupported backend %q", cfg.Cache.Backend)
	}
}

// Close is a no-op; files need no teardown.
func (s *FileStore) Close() error { return nil }

// Close is a no-op; the MinIO client holds no long-lived resources.
func (s *S3Store) Close() error { return nil }
