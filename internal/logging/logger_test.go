package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rawlabel/internal/config"
	"rawlabel/internal/logging"
	"rawlabel/internal/services"
)

func TestNewFromConfigWritesJSONLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.StateDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("preview generated", logging.String("kind", "thumbnail"), logging.Int64("asset_bytes", 2048))

	content, err := os.ReadFile(cfg.LogPath())
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", content, err)
	}
	if entry["msg"] != "preview generated" || entry["kind"] != "thumbnail" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if entry["level"] != "info" {
		t.Fatalf("expected lowercase level, got %v", entry["level"])
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "preview").Info("cache hit", logging.String("kind", "preview"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(content)
	if strings.Contains(out, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", out)
	}
	if !strings.Contains(out, "INFO [preview] – cache hit") {
		t.Fatalf("expected component header, got %q", out)
	}
	if !strings.Contains(out, "    - Kind: preview") {
		t.Fatalf("expected highlighted field, got %q", out)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Debug("message with caller", logging.String(logging.FieldCorrelationID, "req-1"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
	if !strings.Contains(string(content), "correlation_id: req-1") {
		t.Fatalf("expected debug output to list every field, got %q", content)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

type recordingHandler struct {
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.records = append(h.records, r)
	return nil
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &recordingHandlerView{parent: h, attrs: append([]slog.Attr(nil), attrs...)}
}

func (h *recordingHandler) WithGroup(string) slog.Handler { return h }

type recordingHandlerView struct {
	parent *recordingHandler
	attrs  []slog.Attr
}

func (v *recordingHandlerView) Enabled(context.Context, slog.Level) bool { return true }

func (v *recordingHandlerView) Handle(_ context.Context, r slog.Record) error {
	r.AddAttrs(v.attrs...)
	v.parent.records = append(v.parent.records, r)
	return nil
}

func (v *recordingHandlerView) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &recordingHandlerView{parent: v.parent, attrs: append(append([]slog.Attr(nil), v.attrs...), attrs...)}
}

func (v *recordingHandlerView) WithGroup(string) slog.Handler { return v }

func recordAttrs(r slog.Record) map[string]string {
	out := map[string]string{}
	r.Attrs(func(a slog.Attr) bool {
		out[a.Key] = a.Value.String()
		return true
	})
	return out
}

func TestWithContextAddsFields(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRequestID(ctx, "req-xyz")
	ctx = services.WithSourceID(ctx, "/raw/DSC0001.ARW")
	ctx = services.WithPrincipal(ctx, "alice")

	handler := &recordingHandler{}
	logging.WithContext(ctx, slog.New(handler)).Info("contextual log")

	if len(handler.records) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(handler.records))
	}
	attrs := recordAttrs(handler.records[0])
	want := map[string]string{
		logging.FieldCorrelationID: "req-xyz",
		logging.FieldSourceID:      "/raw/DSC0001.ARW",
		logging.FieldPrincipal:     "alice",
	}
	for key, value := range want {
		if attrs[key] != value {
			t.Fatalf("field %s = %q, want %q", key, attrs[key], value)
		}
	}
	if _, ok := attrs[logging.FieldBatchID]; ok {
		t.Fatal("expected batch id to be absent")
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	handler := &recordingHandler{}
	logging.WarnWithContext(slog.New(handler), "decode failed", "preview_decode_failed",
		logging.Error(errors.New("no preview")),
		logging.String(logging.FieldErrorHint, "check exiftool output"),
	)
	if len(handler.records) != 1 {
		t.Fatalf("expected one record, got %d", len(handler.records))
	}
	attrs := recordAttrs(handler.records[0])
	if attrs[logging.FieldEventType] != "preview_decode_failed" {
		t.Fatalf("unexpected event type %q", attrs[logging.FieldEventType])
	}
	if attrs[logging.FieldErrorHint] != "check exiftool output" {
		t.Fatalf("expected caller hint to win, got %q", attrs[logging.FieldErrorHint])
	}
	if attrs[logging.FieldImpact] == "" {
		t.Fatal("expected default impact")
	}
}

func TestNopLoggerIsSilent(t *testing.T) {
	logger := logging.NewNop()
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("expected nop logger to be disabled")
	}
	logging.NewComponentLogger(nil, "api").Info("dropped")
}
