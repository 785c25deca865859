package assetstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"rawlabel/internal/query"
	"rawlabel/internal/services"
	"rawlabel/internal/sqlitedb"
)

const assetSchemaVersion = 1

const assetSchema = `
CREATE TABLE asset_schema_version (version INTEGER NOT NULL);
CREATE TABLE assets (
    kind TEXT NOT NULL,
    source_id TEXT NOT NULL,
    fp_size INTEGER NOT NULL,
    fp_mtime_ns INTEGER NOT NULL,
    fp_checksum TEXT NOT NULL DEFAULT '',
    generated_at TEXT NOT NULL,
    data BLOB NOT NULL,
    PRIMARY KEY (kind, source_id)
);
`

// SQLiteStore keeps assets in a single SQLite table.
type SQLiteStore struct {
	db    *sql.DB
	owned bool
}

// OpenSQLiteStore opens (or creates) the asset database at path.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sqlitedb.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "assetstore", "open", "sqlite", err)
	}
	store, err := NewSQLiteStore(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	store.owned = true
	return store, nil
}

// NewSQLiteStore uses an already-open database and ensures the schema.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if err := sqlitedb.InitSchema(ctx, db, "asset_schema_version", assetSchemaVersion, assetSchema); err != nil {
		return nil, services.Wrap(services.ErrStorage, "assetstore", "open", "init schema", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database when the store opened it.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil || !s.owned {
		return nil
	}
	return s.db.Close()
}

// Get reads the asset for key.
func (s *SQLiteStore) Get(ctx context.Context, key Key) (Asset, error) {
	var (
		asset     Asset
		generated string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT fp_size, fp_mtime_ns, fp_checksum, generated_at, data FROM assets WHERE kind = ? AND source_id = ?`,
		string(key.Kind), key.SourceID,
	).Scan(&asset.Fingerprint.Size, &asset.Fingerprint.ModTimeUnixNano, &asset.Fingerprint.Checksum, &generated, &asset.Data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Asset{}, notFound("get", key)
		}
		return Asset{}, services.Wrap(services.ErrStorage, "assetstore", "get", "query asset", err)
	}
	if t, err := time.Parse(query.TimeLayout, generated); err == nil {
		asset.GeneratedAt = t
	}
	return asset, nil
}

// Put upserts the asset in one statement, so concurrent readers observe the
// old or the new row.
func (s *SQLiteStore) Put(ctx context.Context, key Key, asset Asset) error {
	data := asset.Data
	if data == nil {
		data = []byte{}
	}
	err := sqlitedb.RetryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
INSERT INTO assets (kind, source_id, fp_size, fp_mtime_ns, fp_checksum, generated_at, data)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(kind, source_id) DO UPDATE SET
    fp_size = excluded.fp_size,
    fp_mtime_ns = excluded.fp_mtime_ns,
    fp_checksum = excluded.fp_checksum,
    generated_at = excluded.generated_at,
    data = excluded.data`,
			string(key.Kind), key.SourceID,
			asset.Fingerprint.Size, asset.Fingerprint.ModTimeUnixNano, asset.Fingerprint.Checksum,
			asset.GeneratedAt.UTC().Format(query.TimeLayout), data,
		)
		return err
	})
	if err != nil {
		return services.Wrap(services.ErrStorage, "assetstore", "put", "upsert asset", err)
	}
	return nil
}

// Exists reports whether an asset is stored for key.
func (s *SQLiteStore) Exists(ctx context.Context, key Key) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM assets WHERE kind = ? AND source_id = ?`,
		string(key.Kind), key.SourceID,
	).Scan(&count)
	if err != nil {
		return false, services.Wrap(services.ErrStorage, "assetstore", "exists", "count asset", err)
	}
	return count > 0, nil
}

// Stats reports entry counts and stored bytes per kind.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(1), COALESCE(SUM(length(data)), 0) FROM assets GROUP BY kind`)
	if err != nil {
		return Stats{}, services.Wrap(services.ErrStorage, "assetstore", "stats", "query", err)
	}
	defer rows.Close()
	stats := Stats{ByKind: make(map[Kind]int)}
	for rows.Next() {
		var (
			kind  string
			count int
			bytes int64
		)
		if err := rows.Scan(&kind, &count, &bytes); err != nil {
			return Stats{}, services.Wrap(services.ErrStorage, "assetstore", "stats", "scan", err)
		}
		stats.ByKind[Kind(kind)] = count
		stats.Entries += count
		stats.TotalBytes += bytes
	}
	if err := rows.Err(); err != nil {
		return Stats{}, services.Wrap(services.ErrStorage, "assetstore", "stats", "iterate", err)
	}
	return stats, nil
}
