package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"rawlabel/internal/assetstore"
	"rawlabel/internal/config"
	"rawlabel/internal/deps"
	"rawlabel/internal/sqlitedb"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.W_OK|unix.X_OK, "read/write ok")
}

// CheckReadableDirectory verifies that the directory exists and can be listed.
func CheckReadableDirectory(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.X_OK, "read ok")
}

func checkDirectory(name, path string, mode uint32, okDetail string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, mode); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, okDetail)}
}

// CheckDatabase opens the SQLite database at path and runs an integrity
// check. A missing database is created.
func CheckDatabase(ctx context.Context, name, path string) Result {
	db, err := sqlitedb.Open(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	defer db.Close()

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	var verdict string
	if err := db.QueryRowContext(checkCtx, "PRAGMA quick_check").Scan(&verdict); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	if verdict != "ok" {
		return Result{Name: name, Detail: fmt.Sprintf("%s (integrity: %s)", path, verdict)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (integrity ok)", path)}
}

// CheckObjectStore verifies that the S3 endpoint is reachable and the bucket
// exists. It never creates the bucket.
func CheckObjectStore(ctx context.Context, cfg config.S3) Result {
	const name = "Object store"

	if strings.TrimSpace(cfg.Endpoint) == "" || strings.TrimSpace(cfg.Bucket) == "" {
		return Result{Name: name, Detail: "missing endpoint or bucket"}
	}
	client, err := assetstore.NewS3Client(cfg)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(checkCtx, cfg.Bucket)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetworkError(err)}
	}
	if !exists {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("bucket %q missing (created on first use)", cfg.Bucket)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("bucket %q reachable", cfg.Bucket)}
}

// CheckSystemDeps evaluates all external binaries for the given config.
// Both the daemon and the CLI check command use this to avoid duplicating
// the requirements list.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "ExifTool",
			Command:     cfg.ExiftoolBinary(),
			Description: "Required to extract embedded previews from RAW files",
			VersionArgs: []string{"-ver"},
		},
	}
	return deps.CheckBinaries(ctx, requirements)
}

// summarizeNetworkError produces a human-readable summary for connectivity failures.
func summarizeNetworkError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "check timed out (object store unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (object store unreachable)"
	}
	return err.Error()
}
