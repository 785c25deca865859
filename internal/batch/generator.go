package batch

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"rawlabel/internal/assetstore"
	"rawlabel/internal/logging"
	"rawlabel/internal/services"
	"rawlabel/internal/sources"
)

// Previewer produces preview assets; satisfied by *preview.Cache.
type Previewer interface {
	GetPreview(ctx context.Context, sourceID string, kind assetstore.Kind) ([]byte, error)
}

// Result captures the outcome for one source.
type Result struct {
	OK       bool          `json:"ok"`
	Bytes    int           `json:"bytes"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// Report summarizes a warm run.
type Report struct {
	ID       string            `json:"id"`
	Kind     assetstore.Kind   `json:"kind"`
	Results  map[string]Result `json:"results"`
	Started  time.Time         `json:"started"`
	Finished time.Time         `json:"finished"`
}

// Succeeded returns the sorted ids that produced an asset.
func (r Report) Succeeded() []string {
	return r.filter(true)
}

// Failed returns the sorted ids that did not.
func (r Report) Failed() []string {
	return r.filter(false)
}

// Elapsed is the wall time of the run.
func (r Report) Elapsed() time.Duration {
	return r.Finished.Sub(r.Started)
}

func (r Report) filter(ok bool) []string {
	out := make([]string, 0, len(r.Results))
	for id, res := range r.Results {
		if res.OK == ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Generator runs warm batches against a Previewer.
type Generator struct {
	previewer  Previewer
	extensions []string
	logger     *slog.Logger
}

// New constructs a generator. extensions filters WarmDirectory scans.
func New(previewer Previewer, extensions []string, logger *slog.Logger) *Generator {
	return &Generator{
		previewer:  previewer,
		extensions: append([]string(nil), extensions...),
		logger:     logging.NewComponentLogger(logger, "batch"),
	}
}

// Warm generates kind for every source, at most concurrency at a time.
// Duplicate ids are processed once. concurrency <= 0 uses GOMAXPROCS.
func (g *Generator) Warm(ctx context.Context, sourceIDs []string, kind assetstore.Kind, concurrency int) Report {
	if kind == "" {
		kind = assetstore.KindPreview
	}
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	report := Report{
		ID:      uuid.NewString(),
		Kind:    kind,
		Results: make(map[string]Result, len(sourceIDs)),
		Started: time.Now(),
	}
	ctx = services.WithBatchID(ctx, report.ID)
	logger := logging.WithContext(ctx, g.logger)
	logger.Info("warm started",
		logging.String("kind", string(kind)),
		logging.Int("total", len(sourceIDs)),
		logging.Int("concurrency", concurrency),
	)

	var (
		mu   sync.Mutex
		pool errgroup.Group
	)
	record := func(id string, res Result) {
		mu.Lock()
		report.Results[id] = res
		mu.Unlock()
	}
	pool.SetLimit(concurrency)

	seen := make(map[string]struct{}, len(sourceIDs))
	for _, id := range sourceIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if err := ctx.Err(); err != nil {
			record(id, Result{Err: err})
			continue
		}
		pool.Go(func() error {
			if err := ctx.Err(); err != nil {
				record(id, Result{Err: err})
				return nil
			}
			started := time.Now()
			data, err := g.previewer.GetPreview(ctx, id, kind)
			res := Result{OK: err == nil, Bytes: len(data), Duration: time.Since(started), Err: err}
			record(id, res)
			if err != nil {
				g.logFailure(ctx, id, err)
			}
			return nil
		})
	}
	_ = pool.Wait()
	report.Finished = time.Now()

	logger.Info("warm finished",
		logging.String("kind", string(kind)),
		logging.Int("succeeded", len(report.Succeeded())),
		logging.Int("failed", len(report.Failed())),
		logging.Duration("duration", report.Elapsed()),
	)
	return report
}

// WarmDirectory scans dir for RAW files and warms them in name order.
func (g *Generator) WarmDirectory(ctx context.Context, dir string, kind assetstore.Kind, concurrency int) (Report, error) {
	entries, err := sources.Scan(ctx, dir, g.extensions)
	if err != nil {
		return Report{}, err
	}
	return g.Warm(ctx, sources.Paths(entries), kind, concurrency), nil
}

func (g *Generator) logFailure(ctx context.Context, id string, err error) {
	logger := logging.WithContext(services.WithSourceID(ctx, id), g.logger)
	if errors.Is(err, services.ErrDecodeFailure) || errors.Is(err, services.ErrNotFound) {
		logger.Info("source skipped",
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.Error(err),
		)
		return
	}
	logging.WarnWithContext(logger, "warm item failed", "warm_item_failed",
		logging.String(logging.FieldErrorKind, services.Kind(err)),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "rerun warm for this source once the cause is fixed"),
		logging.String(logging.FieldImpact, "source has no cached asset yet"),
	)
}
