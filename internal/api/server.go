package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"rawlabel/internal/annotation"
	"rawlabel/internal/assetstore"
	"rawlabel/internal/logging"
	"rawlabel/internal/services"
)

const (
	headerRequestID = "X-Request-ID"
	headerUser      = "X-User"
	maxBodyBytes    = 64 << 10
)

// Annotations is the subset of annotation.Store the HTTP adapter uses.
type Annotations interface {
	ListImages(ctx context.Context, criteria map[string]any, sortKey string, page annotation.PageRequest) (annotation.Page, error)
	Annotations(ctx context.Context, image string) (map[annotation.Key]annotation.Consensus, error)
	Consensus(ctx context.Context, image string, key annotation.Key) (annotation.Consensus, error)
	Proposals(ctx context.Context, image string, key annotation.Key) ([]annotation.ProposalTally, error)
	Propose(ctx context.Context, image string, key annotation.Key, user, value string) (annotation.ProposalID, error)
	Withdraw(ctx context.Context, image string, key annotation.Key, user string) error
	Vote(ctx context.Context, proposal annotation.ProposalID, voter string, weight int) error
	DistinctValues(ctx context.Context, key annotation.Key, prefix string) ([]string, error)
}

// Previews serves preview and thumbnail bytes.
type Previews interface {
	GetPreview(ctx context.Context, sourceID string, kind assetstore.Kind) ([]byte, error)
}

// Options configures a Server.
type Options struct {
	DataRoot    string
	Annotations Annotations
	Previews    Previews
	Logger      *slog.Logger
	Now         func() time.Time
}

// Server routes API requests onto the annotation store and preview cache.
type Server struct {
	dataRoot    string
	annotations Annotations
	previews    Previews
	logger      *slog.Logger
	now         func() time.Time
	mux         *http.ServeMux
}

// NewServer builds the route table. DataRoot is resolved to an absolute path.
func NewServer(opts Options) (*Server, error) {
	if opts.Annotations == nil || opts.Previews == nil {
		return nil, errors.New("api: annotations and previews are required")
	}
	root := strings.TrimSpace(opts.DataRoot)
	if root == "" {
		return nil, errors.New("api: data root is required")
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("api: resolve data root: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Server{
		dataRoot:    filepath.Clean(root),
		annotations: opts.Annotations,
		previews:    opts.Previews,
		logger:      logger.With(logging.String("component", "api")),
		now:         now,
		mux:         http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/images", s.handleImages)
	s.mux.HandleFunc("GET /api/images/preview", s.handlePreview)
	s.mux.HandleFunc("GET /api/images/annotations", s.handleAnnotations)
	s.mux.HandleFunc("GET /api/consensus", s.handleConsensus)
	s.mux.HandleFunc("GET /api/proposals", s.handleProposals)
	s.mux.HandleFunc("POST /api/proposals", requirePrincipal(s, s.handlePropose))
	s.mux.HandleFunc("DELETE /api/proposals", requirePrincipal(s, s.handleWithdraw))
	s.mux.HandleFunc("POST /api/proposals/{id}/votes", requirePrincipal(s, s.handleVote))
	s.mux.HandleFunc("GET /api/values", s.handleValues)
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.Header.Get(headerRequestID))
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(headerRequestID, id)
	ctx := services.WithRequestID(r.Context(), id)
	if user := strings.TrimSpace(r.Header.Get(headerUser)); user != "" {
		ctx = services.WithPrincipal(ctx, user)
	}

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	start := s.now()
	s.mux.ServeHTTP(rec, r.WithContext(ctx))

	logger := logging.WithContext(ctx, s.logger)
	attrs := []any{
		logging.String("method", r.Method),
		logging.String("path", r.URL.Path),
		logging.Int("status", rec.status),
		logging.Duration("duration", s.now().Sub(start)),
	}
	if rec.status >= http.StatusInternalServerError {
		logger.Error("api request failed", attrs...)
		return
	}
	logger.Debug("api request", attrs...)
}

// requirePrincipal rejects requests that carry no X-User identity.
func requirePrincipal(s *Server, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := services.PrincipalFromContext(r.Context()); !ok {
			s.writeError(w, r, services.Wrap(services.ErrUnauthorized, "api", "authenticate", headerUser+" header required", nil))
			return
		}
		next(w, r)
	}
}

// resolveSource maps a request's source parameter to an absolute path under
// the data root.
func (s *Server) resolveSource(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: source is required", services.ErrInvalidInput)
	}
	path := raw
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.dataRoot, path)
	}
	path = filepath.Clean(path)
	rel, err := filepath.Rel(s.dataRoot, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: source %q is outside the data root", services.ErrInvalidInput, raw)
	}
	return path, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
