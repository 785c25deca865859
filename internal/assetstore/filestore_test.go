package assetstore_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"rawlabel/internal/assetstore"
	"rawlabel/internal/services"
)

func TestStorageNameIsNamespacedAndFannedOut(t *testing.T) {
	key := assetstore.Key{SourceID: "/raw/DSC0001.ARW", Kind: assetstore.KindThumbnail}
	name := key.StorageName()
	parts := strings.Split(name, "/")
	if len(parts) != 3 {
		t.Fatalf("expected kind/aa/digest, got %q", name)
	}
	if parts[0] != "thumbnail" {
		t.Fatalf("expected kind namespace, got %q", parts[0])
	}
	if len(parts[2]) != 64 || !strings.HasPrefix(parts[2], parts[1]) {
		t.Fatalf("unexpected digest layout %q", name)
	}
	other := assetstore.Key{SourceID: "/other/DSC0001.ARW", Kind: assetstore.KindThumbnail}
	if other.StorageName() == name {
		t.Fatal("same basename in different directories must not collide")
	}
	preview := assetstore.Key{SourceID: key.SourceID, Kind: assetstore.KindPreview}
	if preview.StorageName() == name {
		t.Fatal("kinds must not share storage names")
	}
}

func TestParseKind(t *testing.T) {
	if kind, err := assetstore.ParseKind(""); err != nil || kind != assetstore.KindPreview {
		t.Fatalf("expected empty kind to select preview, got %q %v", kind, err)
	}
	if kind, err := assetstore.ParseKind("Thumbnail"); err != nil || kind != assetstore.KindThumbnail {
		t.Fatalf("unexpected parse %q %v", kind, err)
	}
	if _, err := assetstore.ParseKind("poster"); !errors.Is(err, services.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestFingerprintFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.arw")
	if err := os.WriteFile(path, []byte("raw-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	stat, err := assetstore.FingerprintFile(path, false)
	if err != nil {
		t.Fatalf("FingerprintFile: %v", err)
	}
	if stat.Size != 9 || stat.Checksum != "" {
		t.Fatalf("unexpected stat fingerprint %+v", stat)
	}
	sum, err := assetstore.FingerprintFile(path, true)
	if err != nil {
		t.Fatalf("FingerprintFile checksum: %v", err)
	}
	if len(sum.Checksum) != 64 || sum.Equal(stat) {
		t.Fatalf("expected checksum fingerprint, got %+v", sum)
	}
	if !strings.HasSuffix(sum.String(), "-"+sum.Checksum) {
		t.Fatalf("unexpected string form %q", sum.String())
	}

	if _, err := assetstore.FingerprintFile(filepath.Join(dir, "missing.arw"), false); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFileStoreRoundTripAndReplace(t *testing.T) {
	ctx := context.Background()
	store, err := assetstore.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	key := assetstore.Key{SourceID: "/raw/a.arw", Kind: assetstore.KindPreview}

	if _, err := store.Get(ctx, key); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before put, got %v", err)
	}
	if ok, err := store.Exists(ctx, key); err != nil || ok {
		t.Fatalf("expected missing asset, got %v %v", ok, err)
	}

	generated := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	first := assetstore.Asset{Data: []byte("first\nwith newline"), Fingerprint: assetstore.Fingerprint{Size: 10, ModTimeUnixNano: 1}, GeneratedAt: generated}
	if err := store.Put(ctx, key, first); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got.Data, first.Data) || !got.Fingerprint.Equal(first.Fingerprint) || !got.GeneratedAt.Equal(generated) {
		t.Fatalf("unexpected asset %+v", got)
	}

	second := assetstore.Asset{Data: []byte("second"), Fingerprint: assetstore.Fingerprint{Size: 11, ModTimeUnixNano: 2}, GeneratedAt: generated.Add(time.Hour)}
	if err := store.Put(ctx, key, second); err != nil {
		t.Fatalf("Put replace: %v", err)
	}
	got, err = store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get after replace: %v", err)
	}
	if string(got.Data) != "second" || got.Fingerprint.Size != 11 {
		t.Fatalf("expected replaced asset, got %+v", got)
	}

	entries, err := os.ReadDir(filepath.Dir(store.Path(key)))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected no temp files left behind, found %d entries", len(entries))
	}
}

func TestFileStoreDetectsTruncation(t *testing.T) {
	ctx := context.Background()
	store, err := assetstore.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	key := assetstore.Key{SourceID: "/raw/a.arw", Kind: assetstore.KindPreview}
	if err := store.Put(ctx, key, assetstore.Asset{Data: []byte("0123456789")}); err != nil {
		t.Fatal(err)
	}
	path := store.Path(key)
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, raw[:len(raw)-3], 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, key); !errors.Is(err, services.ErrStorage) {
		t.Fatalf("expected storage failure for truncated asset, got %v", err)
	}
}

func TestFileStoreConcurrentWritersDifferentKeys(t *testing.T) {
	ctx := context.Background()
	store, err := assetstore.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := assetstore.Key{SourceID: filepath.Join("/raw", string(rune('a'+i))+".arw"), Kind: assetstore.KindThumbnail}
			if err := store.Put(ctx, key, assetstore.Asset{Data: []byte{byte(i)}}); err != nil {
				t.Errorf("Put %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Entries != 16 || stats.ByKind[assetstore.KindThumbnail] != 16 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.TotalFSBytes == 0 {
		t.Fatal("expected filesystem size to be reported")
	}
}
