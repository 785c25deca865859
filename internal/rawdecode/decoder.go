package rawdecode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"time"

	"rawlabel/internal/services"
)

// PreviewTags lists the exiftool tags tried in order.
var PreviewTags = []string{"PreviewImage", "JpgFromRaw", "ThumbnailImage"}

// Format identifies an embedded image payload by its magic bytes.
type Format string

const (
	FormatUnknown Format = ""
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatTIFF    Format = "tiff"
	FormatBitmap  Format = "bitmap"
)

// Sniff reports the payload format from its leading bytes.
func Sniff(data []byte) Format {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return FormatJPEG
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return FormatPNG
	case bytes.HasPrefix(data, []byte("II*\x00")), bytes.HasPrefix(data, []byte("MM\x00*")):
		return FormatTIFF
	case bytes.HasPrefix(data, []byte("BM")):
		return FormatBitmap
	default:
		return FormatUnknown
	}
}

// Executor abstracts command execution for testability.
type Executor interface {
	Output(ctx context.Context, binary string, args []string) ([]byte, error)
}

// Option configures the decoder.
type Option func(*Decoder)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(d *Decoder) {
		if exec != nil {
			d.exec = exec
		}
	}
}

// Decoder wraps exiftool preview extraction.
type Decoder struct {
	binary  string
	timeout time.Duration
	exec    Executor
}

// New constructs an exiftool-backed decoder. A non-positive timeout disables
// the per-file deadline.
func New(binary string, timeout time.Duration, opts ...Option) (*Decoder, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("exiftool binary required")
	}
	d := &Decoder{
		binary:  binary,
		timeout: timeout,
		exec:    commandExecutor{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// DecodeEmbeddedPreview returns the largest embedded JPEG preview in path.
func (d *Decoder) DecodeEmbeddedPreview(ctx context.Context, path string) ([]byte, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "rawdecode", "decode", "source "+path, err)
		}
		return nil, services.Wrap(services.ErrStorage, "rawdecode", "decode", "stat source", err)
	}

	runCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	var unsupported Format
	sawPayload := false
	for _, tag := range PreviewTags {
		data, err := d.exec.Output(runCtx, d.binary, []string{"-b", "-" + tag, path})
		if err != nil {
			if ctxErr := runCtx.Err(); ctxErr != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, services.Wrap(services.ErrTimeout, "rawdecode", "decode",
					fmt.Sprintf("exiftool exceeded %s", d.timeout), ctxErr)
			}
			return nil, services.Wrap(services.ErrDecodeFailure, "rawdecode", "decode", "exiftool -"+tag, err)
		}
		if len(data) == 0 {
			continue
		}
		format := Sniff(data)
		if format == FormatJPEG {
			return data, nil
		}
		sawPayload = true
		if unsupported == FormatUnknown {
			unsupported = format
		}
	}
	if sawPayload {
		label := string(unsupported)
		if label == "" {
			label = "unknown"
		}
		return nil, fmt.Errorf("%w: %s (%s)", services.ErrUnsupportedPreviewFormat, path, label)
	}
	return nil, fmt.Errorf("%w: %s", services.ErrNoPreviewAvailable, path)
}

type commandExecutor struct{}

func (commandExecutor) Output(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}
