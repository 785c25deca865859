package annotation

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"rawlabel/internal/config"
	"rawlabel/internal/logging"
	"rawlabel/internal/query"
	"rawlabel/internal/services"
	"rawlabel/internal/sqlitedb"
)

//go:embed schema.sql
var schemaSQL string

const (
	schemaVersion = 1
	versionTable  = "annotation_schema_version"
)

// Options tunes voting and listing behaviour.
type Options struct {
	MinWeight    int
	MaxWeight    int
	AuthorWeight int
	PageSize     int
	Logger       *slog.Logger
	// Now overrides the clock; tests use it to control tie-breaks.
	Now func() time.Time
}

// OptionsFromConfig maps the [annotation] section.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) Options {
	return Options{
		MinWeight:    cfg.Annotation.MinWeight,
		MaxWeight:    cfg.Annotation.MaxWeight,
		AuthorWeight: cfg.Annotation.AuthorWeight,
		PageSize:     cfg.Annotation.PageSize,
		Logger:       logger,
	}
}

// Store manages proposals, votes and the image registry.
type Store struct {
	db     *sql.DB
	opts   Options
	logger *slog.Logger
	owned  bool
}

// Open opens the annotation database under the configured state directory.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	db, err := sqlitedb.Open(cfg.DatabasePath())
	if err != nil {
		return nil, err
	}
	store, err := New(ctx, db, OptionsFromConfig(cfg, logger))
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	store.owned = true
	return store, nil
}

// New wraps an already-open database, creating the schema if needed.
func New(ctx context.Context, db *sql.DB, opts Options) (*Store, error) {
	if opts.MinWeight == 0 && opts.MaxWeight == 0 {
		opts.MinWeight, opts.MaxWeight = -1, 1
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if err := sqlitedb.InitSchema(ctx, db, versionTable, schemaVersion, schemaSQL); err != nil {
		return nil, services.Wrap(services.ErrStorage, "annotation", "init schema", "", err)
	}
	return &Store{
		db:     db,
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "annotation"),
	}, nil
}

// Close releases the database when the store opened it.
func (s *Store) Close() error {
	if s == nil || s.db == nil || !s.owned {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying handle for diagnostics.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) now() string {
	return s.opts.Now().UTC().Format(query.TimeLayout)
}

// withTx runs fn inside a transaction, retrying the whole unit on SQLITE_BUSY.
func (s *Store) withTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	err := sqlitedb.RetryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit()
	})
	return classify(op, err)
}

// classify tags raw database errors as storage failures, leaving already
// classified errors alone.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	for _, marker := range []error{services.ErrInvalidInput, services.ErrNotFound, services.ErrNoConsensus} {
		if errors.Is(err, marker) {
			return err
		}
	}
	return services.Wrap(services.ErrStorage, "annotation", op, "", err)
}

func cleanSourceID(sourceID string) (string, error) {
	sourceID = strings.TrimSpace(sourceID)
	if sourceID == "" {
		return "", fmt.Errorf("%w: image source required", services.ErrInvalidInput)
	}
	return filepath.Clean(sourceID), nil
}

func cleanUser(user, role string) (string, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return "", fmt.Errorf("%w: %s required", services.ErrInvalidInput, role)
	}
	return user, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	t, err := time.Parse(query.TimeLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	return t, nil
}

// ensureImage returns the image id for sourceID, registering it first.
func (s *Store) ensureImage(ctx context.Context, tx *sql.Tx, sourceID string) (int64, error) {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO images (source_id, filename, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(source_id) DO NOTHING`,
		sourceID, filepath.Base(sourceID), s.now(),
	); err != nil {
		return 0, err
	}
	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM images WHERE source_id = ?`, sourceID).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}
