package testsupport

import (
	"context"
	"testing"

	"rawlabel/internal/annotation"
	"rawlabel/internal/assetstore"
	"rawlabel/internal/config"
)

// MustOpenAnnotationStore opens an annotation.Store for tests and registers cleanup.
func MustOpenAnnotationStore(t testing.TB, cfg *config.Config) *annotation.Store {
	t.Helper()

	store, err := annotation.Open(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("annotation.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// MustOpenAssetStore opens the configured asset backend and registers cleanup.
func MustOpenAssetStore(t testing.TB, cfg *config.Config) assetstore.Backend {
	t.Helper()

	store, err := assetstore.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("assetstore.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
