package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"rawlabel/internal/annotation"
	"rawlabel/internal/api"
	"rawlabel/internal/assetstore"
	"rawlabel/internal/batch"
	"rawlabel/internal/config"
	"rawlabel/internal/logging"
	"rawlabel/internal/preview"
	"rawlabel/internal/sources"
)

// Store is the annotation store the daemon serves and registers images into.
type Store interface {
	api.Annotations
	RegisterImage(ctx context.Context, sourceID string) (annotation.Image, error)
}

// Daemon serves the API and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    Store
	previews api.Previews
	warmer   *batch.Generator
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu         sync.Mutex
	registered int
	lastWarm   *batch.Report
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Address      string
	DataRoot     string
	DatabasePath string
	LockFilePath string
	Registered   int
	LastWarm     *WarmSummary
}

// WarmSummary condenses the most recent background warm run.
type WarmSummary struct {
	ID        string
	Succeeded int
	Failed    int
	Elapsed   time.Duration
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store Store, previews api.Previews, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || previews == nil {
		return nil, errors.New("daemon requires config, annotation store, and preview cache")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	handler, err := api.NewServer(api.Options{
		DataRoot:    cfg.Paths.DataRoot,
		Annotations: store,
		Previews:    previews,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		previews: previews,
		warmer:   batch.New(previews, cfg.Paths.RawExtensions, logger),
		api:      newAPIServer(cfg.Paths.APIBind, handler, logger),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, starts the API listener, and kicks off
// image registration in the background.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another rawlabel server instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		return err
	}
	d.cancel = cancel
	d.running.Store(true)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.prepare(runCtx)
	}()

	d.logger.Info("rawlabel server started",
		logging.String("lock", d.lockPath),
		logging.String("address", d.api.address()),
	)
	return nil
}

// Stop shuts the listener down, waits for background work, and releases the
// daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("rawlabel server stopped")
}

// Close stops the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Wait blocks until startup registration and any warm run finish.
func (d *Daemon) Wait() {
	d.wg.Wait()
}

// Status returns the current daemon status.
func (d *Daemon) Status(context.Context) Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	status := Status{
		Running:      d.running.Load(),
		Address:      d.api.address(),
		DataRoot:     d.cfg.Paths.DataRoot,
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
		Registered:   d.registered,
	}
	if d.lastWarm != nil {
		status.LastWarm = &WarmSummary{
			ID:        d.lastWarm.ID,
			Succeeded: len(d.lastWarm.Succeeded()),
			Failed:    len(d.lastWarm.Failed()),
			Elapsed:   d.lastWarm.Elapsed(),
		}
	}
	return status
}

// prepare registers every RAW file under the data root and, when configured,
// warms their previews. Failures are logged; the API keeps serving.
func (d *Daemon) prepare(ctx context.Context) {
	entries, err := sources.Scan(ctx, d.cfg.Paths.DataRoot, d.cfg.Paths.RawExtensions)
	if err != nil {
		logging.WarnWithContext(d.logger, "data root scan failed", "data_root_scan_failed",
			logging.String("data_root", d.cfg.Paths.DataRoot),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.data_root exists and is readable"),
			logging.String(logging.FieldImpact, "images appear in listings only once labelled"),
		)
		return
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		id, err := preview.SourceID(entry.Path)
		if err != nil {
			continue
		}
		if _, err := d.store.RegisterImage(ctx, id); err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Warn("image registration failed", logging.String(logging.FieldSourceID, id), logging.Error(err))
			continue
		}
		ids = append(ids, id)
	}
	d.mu.Lock()
	d.registered = len(ids)
	d.mu.Unlock()
	d.logger.Info("images registered", logging.Int("total", len(ids)))

	if !d.cfg.Batch.WarmOnStart || len(ids) == 0 {
		return
	}
	report := d.warmer.Warm(ctx, ids, assetstore.KindPreview, d.cfg.Batch.Concurrency)
	d.mu.Lock()
	d.lastWarm = &report
	d.mu.Unlock()
}
