package preflight

import (
	"context"

	"rawlabel/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// RAW sources are only read.
	results = append(results, CheckReadableDirectory("Data root", cfg.Paths.DataRoot))
	results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))
	results = append(results, CheckDatabase(ctx, "Annotation database", cfg.DatabasePath()))

	switch cfg.Cache.Backend {
	case config.BackendS3:
		results = append(results, CheckObjectStore(ctx, cfg.S3))
	case config.BackendSQLite:
		results = append(results, CheckDatabase(ctx, "Asset database", cfg.AssetDatabasePath()))
	default:
		results = append(results, CheckDirectoryAccess("Cache directory", cfg.Paths.CacheDir))
	}

	for _, status := range CheckSystemDeps(ctx, cfg) {
		result := Result{Name: status.Name, Passed: status.Available, Detail: status.Detail}
		if status.Available {
			result.Detail = status.Command
			if status.Version != "" {
				result.Detail += " (" + status.Version + ")"
			}
		}
		results = append(results, result)
	}
	return results
}

// Failed returns the checks that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
