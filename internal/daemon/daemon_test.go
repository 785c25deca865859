package daemon_test

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"rawlabel/internal/annotation"
	"rawlabel/internal/api"
	"rawlabel/internal/assetstore"
	"rawlabel/internal/daemon"
	"rawlabel/internal/testsupport"
)

type countingPreviews struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *countingPreviews) GetPreview(_ context.Context, sourceID string, _ assetstore.Kind) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[sourceID]++
	return []byte{0xff, 0xd8, 0xff, 0xd9}, nil
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Batch.WarmOnStart = true
	for _, name := range []string{"DSC0001.ARW", "DSC0002.arw", "notes.txt"} {
		testsupport.WriteFile(t, filepath.Join(cfg.Paths.DataRoot, name), 16)
	}
	store := testsupport.MustOpenAnnotationStore(t, cfg)
	previews := &countingPreviews{}

	d, err := daemon.New(cfg, store, previews, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	d.Wait()

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.Registered != 2 {
		t.Fatalf("expected 2 registered images, got %d", status.Registered)
	}
	if status.LastWarm == nil || status.LastWarm.Succeeded != 2 || status.LastWarm.Failed != 0 {
		t.Fatalf("unexpected warm summary %+v", status.LastWarm)
	}
	if len(previews.calls) != 2 {
		t.Fatalf("expected 2 previews warmed, got %v", previews.calls)
	}

	page, err := store.ListImages(ctx, nil, "", annotation.PageRequest{})
	if err != nil {
		t.Fatalf("ListImages: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("expected registered images listed, got %d", page.Total)
	}

	resp, err := http.Get("http://" + status.Address + "/api/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	defer resp.Body.Close()
	var health api.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "ok" {
		t.Fatalf("unexpected health %+v", health)
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	time.Sleep(50 * time.Millisecond)
	status = d.Status(ctx)
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestSecondInstanceIsLockedOut(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenAnnotationStore(t, cfg)

	first, err := daemon.New(cfg, store, &countingPreviews{}, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = first.Close() })
	second, err := daemon.New(cfg, store, &countingPreviews{}, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := second.Start(ctx); err == nil {
		second.Stop()
		t.Fatal("expected second instance to be locked out")
	}

	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("expected start after release, got %v", err)
	}
	second.Stop()
}

func TestWarmDisabledOnlyRegisters(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.DataRoot, "DSC0001.ARW"), 16)
	store := testsupport.MustOpenAnnotationStore(t, cfg)
	previews := &countingPreviews{}

	d, err := daemon.New(cfg, store, previews, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	d.Wait()

	status := d.Status(context.Background())
	if status.Registered != 1 || status.LastWarm != nil {
		t.Fatalf("unexpected status %+v", status)
	}
	if len(previews.calls) != 0 {
		t.Fatalf("expected no warm calls, got %v", previews.calls)
	}
}
