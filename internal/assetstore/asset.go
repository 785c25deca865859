package assetstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"rawlabel/internal/services"
)

// Kind names a derived asset variant.
type Kind string

const (
	KindPreview   Kind = "preview"
	KindThumbnail Kind = "thumbnail"
)

// ParseKind validates a kind name. Empty selects the preview.
func ParseKind(value string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case KindPreview, "":
		return KindPreview, nil
	case KindThumbnail:
		return KindThumbnail, nil
	default:
		return "", fmt.Errorf("%w: unknown asset kind %q", services.ErrInvalidInput, value)
	}
}

// Key identifies one derived asset.
type Key struct {
	SourceID string
	Kind     Kind
}

// StorageName is the backend-neutral relative location of the asset:
// kind/aa/<sha256(source id)>. Hashing the full path keeps names flat and
// collision free, and the two-character fan-out bounds directory sizes.
func (k Key) StorageName() string {
	sum := sha256.Sum256([]byte(k.SourceID))
	digest := hex.EncodeToString(sum[:])
	return path.Join(string(k.Kind), digest[:2], digest)
}

func (k Key) String() string {
	return string(k.Kind) + ":" + k.SourceID
}

// Fingerprint summarizes a source file's generation. Two fingerprints match
// only when every field is equal.
type Fingerprint struct {
	Size            int64  `json:"size"`
	ModTimeUnixNano int64  `json:"mtime_ns"`
	Checksum        string `json:"checksum,omitempty"`
}

// Equal reports whether both fingerprints describe the same source generation.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return f == other
}

// IsZero reports whether no fingerprint was recorded.
func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}

// String renders size-mtime[-checksum].
func (f Fingerprint) String() string {
	out := strconv.FormatInt(f.Size, 10) + "-" + strconv.FormatInt(f.ModTimeUnixNano, 10)
	if f.Checksum != "" {
		out += "-" + f.Checksum
	}
	return out
}

// FingerprintFile stats path and, when withChecksum is set, hashes its
// contents. A missing file is services.ErrNotFound.
func FingerprintFile(filePath string, withChecksum bool) (Fingerprint, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Fingerprint{}, services.Wrap(services.ErrNotFound, "assetstore", "fingerprint", "source "+filePath, err)
		}
		return Fingerprint{}, services.Wrap(services.ErrStorage, "assetstore", "fingerprint", "stat source", err)
	}
	if info.IsDir() {
		return Fingerprint{}, services.Wrap(services.ErrNotFound, "assetstore", "fingerprint", "source is a directory: "+filePath, nil)
	}
	fp := Fingerprint{Size: info.Size(), ModTimeUnixNano: info.ModTime().UnixNano()}
	if !withChecksum {
		return fp, nil
	}
	file, err := os.Open(filePath)
	if err != nil {
		return Fingerprint{}, services.Wrap(services.ErrStorage, "assetstore", "fingerprint", "open source", err)
	}
	defer file.Close()
	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return Fingerprint{}, services.Wrap(services.ErrStorage, "assetstore", "fingerprint", "hash source", err)
	}
	fp.Checksum = hex.EncodeToString(hasher.Sum(nil))
	return fp, nil
}

// Asset is one stored derived asset.
type Asset struct {
	Data        []byte
	Fingerprint Fingerprint
	GeneratedAt time.Time
}

// Store is the contract every backend satisfies. Put replaces any existing
// asset for the key atomically: readers see either the old or the new asset,
// never a partial write.
type Store interface {
	Get(ctx context.Context, key Key) (Asset, error)
	Put(ctx context.Context, key Key, asset Asset) error
	Exists(ctx context.Context, key Key) (bool, error)
}

func notFound(op string, key Key) error {
	return services.Wrap(services.ErrNotFound, "assetstore", op, key.String(), nil)
}
