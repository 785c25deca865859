package assetstore_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"rawlabel/internal/assetstore"
	"rawlabel/internal/services"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := assetstore.OpenSQLiteStore(ctx, filepath.Join(t.TempDir(), "assets.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	key := assetstore.Key{SourceID: "/raw/b.arw", Kind: assetstore.KindThumbnail}
	if _, err := store.Get(ctx, key); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	generated := time.Date(2024, 6, 1, 8, 30, 0, 123, time.UTC)
	asset := assetstore.Asset{
		Data:        []byte{0xff, 0xd8, 0xff, 0xd9},
		Fingerprint: assetstore.Fingerprint{Size: 42, ModTimeUnixNano: 99, Checksum: "abc"},
		GeneratedAt: generated,
	}
	if err := store.Put(ctx, key, asset); err != nil {
		t.Fatalf("Put: %v", err)
	}
	asset.Data = []byte{0xff, 0xd8, 0x00, 0xff, 0xd9}
	asset.Fingerprint.Size = 43
	if err := store.Put(ctx, key, asset); err != nil {
		t.Fatalf("Put replace: %v", err)
	}

	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Data) != 5 || !got.Fingerprint.Equal(asset.Fingerprint) || !got.GeneratedAt.Equal(generated) {
		t.Fatalf("unexpected asset %+v", got)
	}
	if ok, err := store.Exists(ctx, key); err != nil || !ok {
		t.Fatalf("expected asset to exist, got %v %v", ok, err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Entries != 1 || stats.TotalBytes != 5 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
