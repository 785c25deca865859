package assetstore

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"rawlabel/internal/services"
)

const tempPrefix = ".tmp-"

// fileHeader is the first line of every asset file.
type fileHeader struct {
	SourceID    string      `json:"source_id"`
	Kind        Kind        `json:"kind"`
	Fingerprint Fingerprint `json:"fingerprint"`
	GeneratedAt time.Time   `json:"generated_at"`
	Size        int         `json:"size"`
}

// FileStore keeps assets as individual files below root.
type FileStore struct {
	root string
}

// NewFileStore returns a store rooted at root, creating the directory.
func NewFileStore(root string) (*FileStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("assetstore: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, services.Wrap(services.ErrStorage, "assetstore", "open", "create root", err)
	}
	return &FileStore{root: root}, nil
}

// Path returns the file backing key.
func (s *FileStore) Path(key Key) string {
	return filepath.Join(s.root, filepath.FromSlash(key.StorageName()))
}

// Get reads the asset for key.
func (s *FileStore) Get(ctx context.Context, key Key) (Asset, error) {
	if err := ctx.Err(); err != nil {
		return Asset{}, err
	}
	file, err := os.Open(s.Path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Asset{}, notFound("get", key)
		}
		return Asset{}, services.Wrap(services.ErrStorage, "assetstore", "get", "open asset", err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return Asset{}, services.Wrap(services.ErrStorage, "assetstore", "get", "read header", err)
	}
	var header fileHeader
	if err := json.Unmarshal(line, &header); err != nil {
		return Asset{}, services.Wrap(services.ErrStorage, "assetstore", "get", "parse header", err)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return Asset{}, services.Wrap(services.ErrStorage, "assetstore", "get", "read body", err)
	}
	if len(data) != header.Size {
		return Asset{}, services.Wrap(services.ErrStorage, "assetstore", "get",
			fmt.Sprintf("truncated asset: header says %d bytes, found %d", header.Size, len(data)), nil)
	}
	if header.SourceID != key.SourceID {
		return Asset{}, services.Wrap(services.ErrStorage, "assetstore", "get",
			fmt.Sprintf("asset belongs to %q", header.SourceID), nil)
	}
	return Asset{Data: data, Fingerprint: header.Fingerprint, GeneratedAt: header.GeneratedAt}, nil
}

// Put writes the asset to a temp file in the destination directory, fsyncs it
// and renames it over any previous version.
func (s *FileStore) Put(ctx context.Context, key Key, asset Asset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest := s.Path(key)
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return services.Wrap(services.ErrStorage, "assetstore", "put", "create directory", err)
	}

	header, err := json.Marshal(fileHeader{
		SourceID:    key.SourceID,
		Kind:        key.Kind,
		Fingerprint: asset.Fingerprint,
		GeneratedAt: asset.GeneratedAt.UTC(),
		Size:        len(asset.Data),
	})
	if err != nil {
		return services.Wrap(services.ErrStorage, "assetstore", "put", "encode header", err)
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return services.Wrap(services.ErrStorage, "assetstore", "put", "create temp file", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	writer := bufio.NewWriter(tmp)
	if _, err := writer.Write(append(header, '\n')); err != nil {
		cleanup()
		return services.Wrap(services.ErrStorage, "assetstore", "put", "write header", err)
	}
	if _, err := writer.Write(asset.Data); err != nil {
		cleanup()
		return services.Wrap(services.ErrStorage, "assetstore", "put", "write body", err)
	}
	if err := writer.Flush(); err != nil {
		cleanup()
		return services.Wrap(services.ErrStorage, "assetstore", "put", "flush", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return services.Wrap(services.ErrStorage, "assetstore", "put", "fsync", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return services.Wrap(services.ErrStorage, "assetstore", "put", "close temp file", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return services.Wrap(services.ErrStorage, "assetstore", "put", "rename", err)
	}
	return nil
}

// Exists reports whether an asset is stored for key.
func (s *FileStore) Exists(ctx context.Context, key Key) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(s.Path(key))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, services.Wrap(services.ErrStorage, "assetstore", "exists", "stat asset", err)
	}
}

// Stats describes current cache usage.
type Stats struct {
	Root         string       `json:"root"`
	Entries      int          `json:"entries"`
	TotalBytes   int64        `json:"total_bytes"`
	ByKind       map[Kind]int `json:"by_kind"`
	FreeBytes    uint64       `json:"free_bytes"`
	TotalFSBytes uint64       `json:"total_fs_bytes"`
}

// Stats walks the store and reports entry counts, bytes on disk and
// filesystem free space. Abandoned temp files are ignored.
func (s *FileStore) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Root: s.root, ByKind: make(map[Kind]int)}
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		kind, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
		stats.Entries++
		stats.TotalBytes += info.Size()
		stats.ByKind[Kind(kind)]++
		return nil
	})
	if err != nil {
		return Stats{}, services.Wrap(services.ErrStorage, "assetstore", "stats", "walk store", err)
	}
	var fsStat unix.Statfs_t
	if err := unix.Statfs(s.root, &fsStat); err != nil {
		return Stats{}, services.Wrap(services.ErrStorage, "assetstore", "stats", "statfs", err)
	}
	stats.TotalFSBytes = fsStat.Blocks * uint64(fsStat.Bsize)
	stats.FreeBytes = fsStat.Bavail * uint64(fsStat.Bsize)
	return stats, nil
}

