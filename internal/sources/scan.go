// Package sources discovers RAW images in a directory.
package sources

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"rawlabel/internal/services"
)

// Entry describes one RAW file found by Scan.
type Entry struct {
	Path    string    `json:"path"`
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Scan lists the regular files in dir whose extension matches one of
// extensions (case-insensitively), sorted by file name. Subdirectories and
// dotfiles are skipped. Returned paths are absolute and cleaned so they can be
// used directly as source identifiers.
func Scan(ctx context.Context, dir string, extensions []string) ([]Entry, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("%w: directory required", services.ErrInvalidInput)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %q: %v", services.ErrInvalidInput, dir, err)
	}

	dirEntries, err := os.ReadDir(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "sources", "scan", "directory "+abs, err)
		}
		return nil, services.Wrap(services.ErrStorage, "sources", "scan", "read directory", err)
	}

	allowed := extensionSet(extensions)
	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := de.Name()
		if de.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if !matches(name, allowed) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, services.Wrap(services.ErrStorage, "sources", "scan", "stat "+name, err)
		}
		if !info.Mode().IsRegular() {
			continue
		}
		entries = append(entries, Entry{
			Path:    filepath.Join(abs, name),
			Name:    name,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

// Paths returns the source identifiers of entries in order.
func Paths(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out
}

// Matches reports whether name carries one of extensions, ignoring case.
func Matches(name string, extensions []string) bool {
	return matches(name, extensionSet(extensions))
}

func matches(name string, allowed map[string]struct{}) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return false
	}
	_, ok := allowed[ext]
	return ok
}

func extensionSet(extensions []string) map[string]struct{} {
	set := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = struct{}{}
	}
	return set
}
