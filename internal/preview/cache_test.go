package preview_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	_ "image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"rawlabel/internal/assetstore"
	"rawlabel/internal/config"
	"rawlabel/internal/preview"
	"rawlabel/internal/services"
	"rawlabel/internal/testsupport"
)

type fakeDecoder struct {
	mu       sync.Mutex
	calls    int
	delay    time.Duration
	release  chan struct{}
	failures []error
	payloads [][]byte
}

func (d *fakeDecoder) DecodeEmbeddedPreview(ctx context.Context, path string) ([]byte, error) {
	d.mu.Lock()
	d.calls++
	call := d.calls
	d.mu.Unlock()

	if d.release != nil {
		<-d.release
	}
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	if call <= len(d.failures) && d.failures[call-1] != nil {
		return nil, d.failures[call-1]
	}
	idx := call - 1
	if idx >= len(d.payloads) {
		idx = len(d.payloads) - 1
	}
	return d.payloads[idx], nil
}

func (d *fakeDecoder) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func newSource(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "DSC0001.ARW")
	testsupport.WriteFile(t, path, 128)
	return path
}

func newCache(t *testing.T, dec preview.Decoder, opts preview.Options) (*preview.Cache, *assetstore.FileStore) {
	t.Helper()
	store, err := assetstore.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return preview.New(store, dec, opts), store
}

func TestConcurrentRequestsDecodeOnce(t *testing.T) {
	payload := testsupport.JPEG(t, 64, 32, color.RGBA{R: 200, A: 255})
	dec := &fakeDecoder{delay: 50 * time.Millisecond, payloads: [][]byte{payload}}
	cache, _ := newCache(t, dec, preview.Options{WaitTimeout: 5 * time.Second})
	source := newSource(t)

	const callers = 20
	results := make([][]byte, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cache.GetPreview(context.Background(), source, assetstore.KindPreview)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if !bytes.Equal(results[i], payload) {
			t.Fatalf("caller %d received different bytes", i)
		}
	}
	again, err := cache.GetPreview(context.Background(), source, assetstore.KindPreview)
	if err != nil || !bytes.Equal(again, payload) {
		t.Fatalf("repeat request: %v", err)
	}
	if got := dec.Calls(); got != 1 {
		t.Fatalf("expected exactly one decode, got %d", got)
	}
}

func TestFingerprintChangeRegenerates(t *testing.T) {
	first := testsupport.JPEG(t, 16, 16, color.RGBA{R: 255, A: 255})
	second := testsupport.JPEG(t, 16, 16, color.RGBA{B: 255, A: 255})
	dec := &fakeDecoder{payloads: [][]byte{first, second}}
	cache, _ := newCache(t, dec, preview.Options{})
	source := newSource(t)

	got, err := cache.GetPreview(context.Background(), source, assetstore.KindPreview)
	if err != nil || !bytes.Equal(got, first) {
		t.Fatalf("first request: %v", err)
	}

	testsupport.Touch(t, source, []byte("re-exported raw with different size"))

	status, err := cache.Stat(context.Background(), source, assetstore.KindPreview)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if !status.Exists || status.Fresh {
		t.Fatalf("expected stale asset after source change, got %+v", status)
	}

	got, err = cache.GetPreview(context.Background(), source, assetstore.KindPreview)
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	if !bytes.Equal(got, second) {
		t.Fatal("expected regenerated bytes after source change")
	}
	if dec.Calls() != 2 {
		t.Fatalf("expected decoder to run again, got %d calls", dec.Calls())
	}
}

func TestChecksumModeStillTracksModTime(t *testing.T) {
	payload := testsupport.JPEG(t, 8, 8, color.White)
	dec := &fakeDecoder{payloads: [][]byte{payload}}
	cache, _ := newCache(t, dec, preview.Options{Checksum: true})
	source := newSource(t)
	content, err := os.ReadFile(source)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := cache.GetPreview(context.Background(), source, assetstore.KindPreview); err != nil {
		t.Fatal(err)
	}
	status, err := cache.Stat(context.Background(), source, assetstore.KindPreview)
	if err != nil || status.Current.Checksum == "" {
		t.Fatalf("expected checksum fingerprint, got %+v %v", status, err)
	}

	// Same bytes, new mtime: the mtime still participates in the fingerprint.
	testsupport.Touch(t, source, content)
	if _, err := cache.GetPreview(context.Background(), source, assetstore.KindPreview); err != nil {
		t.Fatal(err)
	}
	if dec.Calls() != 2 {
		t.Fatalf("expected regeneration after mtime change, got %d calls", dec.Calls())
	}
}

func TestTimedOutWaiterStillPopulatesCache(t *testing.T) {
	payload := testsupport.JPEG(t, 8, 8, color.Black)
	dec := &fakeDecoder{release: make(chan struct{}), payloads: [][]byte{payload}}
	cache, _ := newCache(t, dec, preview.Options{WaitTimeout: 20 * time.Millisecond})
	source := newSource(t)

	_, err := cache.GetPreview(context.Background(), source, assetstore.KindPreview)
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	close(dec.release)

	deadline := time.Now().Add(5 * time.Second)
	for {
		status, err := cache.Stat(context.Background(), source, assetstore.KindPreview)
		if err != nil {
			t.Fatalf("Stat: %v", err)
		}
		if status.Fresh {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("generation did not complete after waiter timed out")
		}
		time.Sleep(10 * time.Millisecond)
	}

	got, err := cache.GetPreview(context.Background(), source, assetstore.KindPreview)
	if err != nil || !bytes.Equal(got, payload) {
		t.Fatalf("expected cached bytes, got %v", err)
	}
	if dec.Calls() != 1 {
		t.Fatalf("expected a single decode, got %d", dec.Calls())
	}
}

func TestCancelledCallerDoesNotAbortGeneration(t *testing.T) {
	payload := testsupport.JPEG(t, 8, 8, color.Black)
	dec := &fakeDecoder{release: make(chan struct{}), payloads: [][]byte{payload}}
	cache, store := newCache(t, dec, preview.Options{WaitTimeout: 5 * time.Second})
	source := newSource(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := cache.GetPreview(ctx, source, assetstore.KindPreview)
		done <- err
	}()
	for dec.Calls() == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, services.ErrTimeout) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected timeout wrapping cancellation, got %v", err)
	}
	close(dec.release)

	deadline := time.Now().Add(5 * time.Second)
	for {
		ok, err := store.Exists(context.Background(), assetstore.Key{SourceID: source, Kind: assetstore.KindPreview})
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("asset was not persisted after caller cancelled")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDecodeFailuresAreNotPersisted(t *testing.T) {
	payload := testsupport.JPEG(t, 8, 8, color.White)
	dec := &fakeDecoder{
		failures: []error{services.ErrNoPreviewAvailable},
		payloads: [][]byte{nil, payload},
	}
	cache, store := newCache(t, dec, preview.Options{})
	source := newSource(t)

	_, err := cache.GetPreview(context.Background(), source, assetstore.KindPreview)
	if !errors.Is(err, services.ErrNoPreviewAvailable) {
		t.Fatalf("expected no preview error, got %v", err)
	}
	ok, err := store.Exists(context.Background(), assetstore.Key{SourceID: source, Kind: assetstore.KindPreview})
	if err != nil || ok {
		t.Fatalf("failure must not be stored, exists=%v err=%v", ok, err)
	}

	got, err := cache.GetPreview(context.Background(), source, assetstore.KindPreview)
	if err != nil || !bytes.Equal(got, payload) {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if dec.Calls() != 2 {
		t.Fatalf("expected decoder to be retried, got %d calls", dec.Calls())
	}
}

func TestThumbnailReusesPreview(t *testing.T) {
	payload := testsupport.JPEG(t, 400, 200, color.RGBA{G: 180, A: 255})
	dec := &fakeDecoder{payloads: [][]byte{payload}}
	cache, store := newCache(t, dec, preview.Options{ThumbnailWidth: 80})
	source := newSource(t)

	thumb, err := cache.GetPreview(context.Background(), source, assetstore.KindThumbnail)
	if err != nil {
		t.Fatalf("thumbnail: %v", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(thumb))
	if err != nil {
		t.Fatalf("decode thumbnail: %v", err)
	}
	if format != "jpeg" || cfg.Width != 80 || cfg.Height != 40 {
		t.Fatalf("unexpected thumbnail %s %dx%d", format, cfg.Width, cfg.Height)
	}

	if ok, _ := store.Exists(context.Background(), assetstore.Key{SourceID: source, Kind: assetstore.KindPreview}); !ok {
		t.Fatal("expected preview to be cached as a side effect")
	}
	if _, err := cache.GetPreview(context.Background(), source, assetstore.KindPreview); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.GetPreview(context.Background(), source, assetstore.KindThumbnail); err != nil {
		t.Fatal(err)
	}
	if dec.Calls() != 1 {
		t.Fatalf("expected one decode for preview and thumbnail, got %d", dec.Calls())
	}
}

func TestMissingSourceIsNotFound(t *testing.T) {
	dec := &fakeDecoder{payloads: [][]byte{{0xFF}}}
	cache, _ := newCache(t, dec, preview.Options{})
	_, err := cache.GetPreview(context.Background(), filepath.Join(t.TempDir(), "gone.ARW"), assetstore.KindPreview)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if dec.Calls() != 0 {
		t.Fatal("decoder must not run for missing sources")
	}
}

func TestScaleRejectsNonJPEG(t *testing.T) {
	if _, err := preview.Scale([]byte("not an image"), 80, 85); !errors.Is(err, services.ErrUnsupportedPreviewFormat) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
}

func TestNewFromConfigHonoursBackendAndFingerprint(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithBackend(config.BackendSQLite),
		testsupport.WithChecksumFingerprint(),
	)
	store := testsupport.MustOpenAssetStore(t, cfg)
	if _, ok := store.(*assetstore.SQLiteStore); !ok {
		t.Fatalf("expected sqlite backend, got %T", store)
	}
	payload := testsupport.JPEG(t, 16, 8, color.White)
	dec := &fakeDecoder{payloads: [][]byte{payload}}
	cache := preview.NewFromConfig(cfg, store, dec, nil)

	source := filepath.Join(cfg.Paths.DataRoot, "DSC0100.ARW")
	testsupport.WriteFile(t, source, 64)
	if _, err := cache.GetPreview(context.Background(), source, assetstore.KindThumbnail); err != nil {
		t.Fatalf("thumbnail: %v", err)
	}
	status, err := cache.Stat(context.Background(), source, assetstore.KindThumbnail)
	if err != nil || !status.Fresh || status.Stored.Checksum == "" {
		t.Fatalf("expected fresh checksummed thumbnail, got %+v %v", status, err)
	}
	stats, err := store.Stats(context.Background())
	if err != nil || stats.Entries != 2 {
		t.Fatalf("expected preview and thumbnail rows, got %+v %v", stats, err)
	}
}

func TestSourceChangeDuringGenerationIsNotServedStale(t *testing.T) {
	first := testsupport.JPEG(t, 8, 8, color.Black)
	second := testsupport.JPEG(t, 8, 8, color.White)
	dec := &fakeDecoder{release: make(chan struct{}), payloads: [][]byte{first, second}}
	cache, _ := newCache(t, dec, preview.Options{WaitTimeout: 5 * time.Second})
	source := newSource(t)

	type result struct {
		data []byte
		err  error
	}
	fetch := func() <-chan result {
		out := make(chan result, 1)
		go func() {
			data, err := cache.GetPreview(context.Background(), source, assetstore.KindPreview)
			out <- result{data, err}
		}()
		return out
	}

	before := fetch()
	for dec.Calls() == 0 {
		time.Sleep(time.Millisecond)
	}
	// Rewrite the source while the first decode is still running.
	testsupport.Touch(t, source, []byte("re-exported raw, different size"))
	after := fetch()
	time.Sleep(50 * time.Millisecond)
	close(dec.release)

	got := <-before
	if got.err != nil || !bytes.Equal(got.data, first) {
		t.Fatalf("expected first generation for first caller, got %v", got.err)
	}
	got = <-after
	if got.err != nil || !bytes.Equal(got.data, second) {
		t.Fatalf("expected regenerated bytes after source change, got %v", got.err)
	}
	if dec.Calls() != 2 {
		t.Fatalf("expected decoder to run for the new source version, got %d calls", dec.Calls())
	}

	status, err := cache.Stat(context.Background(), source, assetstore.KindPreview)
	if err != nil || !status.Fresh {
		t.Fatalf("expected stored asset to match the rewritten source, got %+v %v", status, err)
	}
}

func TestScaleDoesNotEnlarge(t *testing.T) {
	small := testsupport.JPEG(t, 40, 20, color.White)
	out, err := preview.Scale(small, 80, 85)
	if err != nil {
		t.Fatalf("Scale: %v", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode scaled: %v", err)
	}
	if format != "jpeg" || cfg.Width != 40 || cfg.Height != 20 {
		t.Fatalf("expected 40x20 jpeg, got %s %dx%d", format, cfg.Width, cfg.Height)
	}
}
