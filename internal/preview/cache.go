package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/singleflight"

	"rawlabel/internal/assetstore"
	"rawlabel/internal/config"
	"rawlabel/internal/logging"
	"rawlabel/internal/services"
)

// Decoder extracts the embedded preview from a RAW file.
type Decoder interface {
	DecodeEmbeddedPreview(ctx context.Context, path string) ([]byte, error)
}

// Options tunes cache behaviour.
type Options struct {
	Checksum       bool
	ThumbnailWidth int
	WaitTimeout    time.Duration
	JPEGQuality    int
	Logger         *slog.Logger
}

const (
	defaultThumbnailWidth = 80
	defaultJPEGQuality    = 85
	// maxRejoins bounds how often a caller chases a source that keeps
	// changing while it is being decoded.
	maxRejoins = 3
)

// generation is what a flight hands to every caller that joined it.
type generation struct {
	data        []byte
	fingerprint assetstore.Fingerprint
}

// Cache coordinates asset lookups, generation and persistence.
type Cache struct {
	store   assetstore.Store
	decoder Decoder
	opts    Options
	logger  *slog.Logger
	flights singleflight.Group
	now     func() time.Time
}

// New constructs a cache over store and decoder.
func New(store assetstore.Store, decoder Decoder, opts Options) *Cache {
	if opts.ThumbnailWidth <= 0 {
		opts.ThumbnailWidth = defaultThumbnailWidth
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = defaultJPEGQuality
	}
	return &Cache{
		store:   store,
		decoder: decoder,
		opts:    opts,
		logger:  logging.NewComponentLogger(opts.Logger, "preview"),
		now:     time.Now,
	}
}

// NewFromConfig builds a cache using the [cache] section of cfg.
func NewFromConfig(cfg *config.Config, store assetstore.Store, decoder Decoder, logger *slog.Logger) *Cache {
	return New(store, decoder, Options{
		Checksum:       cfg.Cache.Fingerprint == config.FingerprintChecksum,
		ThumbnailWidth: cfg.Cache.ThumbnailWidth,
		WaitTimeout:    cfg.WaitTimeout(),
		Logger:         logger,
	})
}

// Status describes the stored asset for a source.
type Status struct {
	Key         assetstore.Key         `json:"key"`
	Exists      bool                   `json:"exists"`
	Fresh       bool                   `json:"fresh"`
	Bytes       int                    `json:"bytes"`
	Current     assetstore.Fingerprint `json:"current"`
	Stored      assetstore.Fingerprint `json:"stored"`
	GeneratedAt time.Time              `json:"generated_at,omitempty"`
}

// SourceID returns the canonical identifier for path.
func SourceID(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: source path required", services.ErrInvalidInput)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: resolve %q: %v", services.ErrInvalidInput, path, err)
	}
	return filepath.Clean(abs), nil
}

// GetPreview returns the asset bytes for sourceID, generating them on miss or
// when the source changed. The returned slice is shared between concurrent
// callers and must not be modified.
func (c *Cache) GetPreview(ctx context.Context, sourceID string, kind assetstore.Kind) ([]byte, error) {
	sourceID, err := SourceID(sourceID)
	if err != nil {
		return nil, err
	}
	if kind == "" {
		kind = assetstore.KindPreview
	}
	ctx = services.WithSourceID(ctx, sourceID)
	key := assetstore.Key{SourceID: sourceID, Kind: kind}

	current, err := assetstore.FingerprintFile(sourceID, c.opts.Checksum)
	if err != nil {
		return nil, err
	}
	if data, ok := c.lookup(ctx, key, current); ok {
		return data, nil
	}

	var timeout <-chan time.Time
	if c.opts.WaitTimeout > 0 {
		timer := time.NewTimer(c.opts.WaitTimeout)
		defer timer.Stop()
		timeout = timer.C
	}
	for attempt := 0; ; attempt++ {
		want := current
		flight := c.flights.DoChan(flightKey(key), func() (any, error) {
			return c.generate(context.WithoutCancel(ctx), key, want)
		})
		select {
		case res := <-flight:
			if res.Err != nil {
				return nil, res.Err
			}
			gen := res.Val.(generation)
			if gen.fingerprint.Equal(current) {
				return gen.data, nil
			}
			// The flight we joined was started for another version of the
			// source. Keep its bytes only if that version is the current one.
			current, err = assetstore.FingerprintFile(sourceID, c.opts.Checksum)
			if err != nil {
				return nil, err
			}
			if gen.fingerprint.Equal(current) || attempt >= maxRejoins {
				return gen.data, nil
			}
			c.logger.DebugContext(ctx, "source changed during generation",
				logging.String("kind", string(kind)),
				logging.String("flight_fingerprint", gen.fingerprint.String()),
				logging.String("current_fingerprint", current.String()),
			)
		case <-ctx.Done():
			return nil, services.Wrap(services.ErrTimeout, "preview", "get", "caller gave up waiting for "+key.String(), ctx.Err())
		case <-timeout:
			logging.WarnWithContext(logging.WithContext(ctx, c.logger), "preview wait timed out", "preview_wait_timeout",
				logging.String("kind", string(kind)),
				logging.Duration("wait_timeout", c.opts.WaitTimeout),
				logging.String(logging.FieldErrorHint, "raise cache.wait_timeout_seconds or warm the cache ahead of time"),
				logging.String(logging.FieldImpact, "caller receives a timeout; generation continues in the background"),
			)
			return nil, services.Wrap(services.ErrTimeout, "preview", "get",
				fmt.Sprintf("%s not ready after %s", key, c.opts.WaitTimeout), nil)
		}
	}
}

// Stat reports whether a fresh asset exists for sourceID without generating.
func (c *Cache) Stat(ctx context.Context, sourceID string, kind assetstore.Kind) (Status, error) {
	sourceID, err := SourceID(sourceID)
	if err != nil {
		return Status{}, err
	}
	if kind == "" {
		kind = assetstore.KindPreview
	}
	key := assetstore.Key{SourceID: sourceID, Kind: kind}
	current, err := assetstore.FingerprintFile(sourceID, c.opts.Checksum)
	if err != nil {
		return Status{}, err
	}
	status := Status{Key: key, Current: current}
	asset, err := c.store.Get(ctx, key)
	switch {
	case errors.Is(err, services.ErrNotFound):
		return status, nil
	case err != nil:
		return Status{}, err
	}
	status.Exists = true
	status.Stored = asset.Fingerprint
	status.Bytes = len(asset.Data)
	status.GeneratedAt = asset.GeneratedAt
	status.Fresh = asset.Fingerprint.Equal(current)
	return status, nil
}

// lookup returns stored bytes when they match the current fingerprint.
// Unreadable entries are treated as stale and regenerated over.
func (c *Cache) lookup(ctx context.Context, key assetstore.Key, current assetstore.Fingerprint) ([]byte, bool) {
	asset, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, services.ErrNotFound) {
			logging.WarnWithContext(logging.WithContext(ctx, c.logger), "stored asset unreadable", "asset_read_failed",
				logging.String("kind", string(key.Kind)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the cache backend; the asset will be regenerated"),
				logging.String(logging.FieldImpact, "extra decode for this request"),
			)
		}
		return nil, false
	}
	if !asset.Fingerprint.Equal(current) {
		c.logger.DebugContext(ctx, "stored asset stale",
			logging.String("kind", string(key.Kind)),
			logging.String("stored_fingerprint", asset.Fingerprint.String()),
			logging.String("current_fingerprint", current.String()),
		)
		return nil, false
	}
	c.logger.DebugContext(ctx, "cache hit",
		logging.String("kind", string(key.Kind)),
		logging.Int("asset_bytes", len(asset.Data)),
	)
	return asset.Data, true
}

func (c *Cache) generate(ctx context.Context, key assetstore.Key, current assetstore.Fingerprint) (generation, error) {
	// A previous flight may have finished between our lookup and this one.
	if data, ok := c.lookup(ctx, key, current); ok {
		return generation{data: data, fingerprint: current}, nil
	}

	started := c.now()
	var (
		data []byte
		err  error
	)
	switch key.Kind {
	case assetstore.KindThumbnail:
		data, err = c.thumbnail(ctx, key.SourceID)
	default:
		data, err = c.decoder.DecodeEmbeddedPreview(ctx, key.SourceID)
	}
	if err != nil {
		c.logger.InfoContext(ctx, "asset generation failed",
			logging.String("kind", string(key.Kind)),
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.Error(err),
		)
		return generation{}, err
	}

	asset := assetstore.Asset{Data: data, Fingerprint: current, GeneratedAt: c.now().UTC()}
	if err := c.store.Put(ctx, key, asset); err != nil {
		return generation{}, err
	}
	c.logger.InfoContext(ctx, "asset generated",
		logging.String("kind", string(key.Kind)),
		logging.Int("asset_bytes", len(data)),
		logging.Duration("decode_duration", c.now().Sub(started)),
	)
	return generation{data: data, fingerprint: current}, nil
}

func (c *Cache) thumbnail(ctx context.Context, sourceID string) ([]byte, error) {
	full, err := c.GetPreview(ctx, sourceID, assetstore.KindPreview)
	if err != nil {
		return nil, err
	}
	return Scale(full, c.opts.ThumbnailWidth, c.opts.JPEGQuality)
}

// Scale resizes a JPEG preview to width pixels, preserving aspect ratio and
// EXIF orientation, and re-encodes it as JPEG. Previews already narrower than
// width keep their size.
func Scale(data []byte, width, quality int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: decode preview: %v", services.ErrUnsupportedPreviewFormat, err)
	}
	var scaled image.Image = img
	if img.Bounds().Dx() > width {
		scaled = imaging.Resize(img, width, 0, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, scaled, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, services.Wrap(services.ErrDecodeFailure, "preview", "scale", "encode thumbnail", err)
	}
	return buf.Bytes(), nil
}

func flightKey(key assetstore.Key) string {
	return string(key.Kind) + "\x00" + key.SourceID
}
