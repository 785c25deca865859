package services_test

import (
	"context"
	"testing"

	"rawlabel/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithSourceID(ctx, "/data/DSC0001.ARW")
	ctx = services.WithRequestID(ctx, "req-123")
	ctx = services.WithPrincipal(ctx, "alice")
	ctx = services.WithBatchID(ctx, "batch-1")

	if id, ok := services.SourceIDFromContext(ctx); !ok || id != "/data/DSC0001.ARW" {
		t.Fatalf("unexpected source id: %v %v", id, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
	if user, ok := services.PrincipalFromContext(ctx); !ok || user != "alice" {
		t.Fatalf("unexpected principal: %v %v", user, ok)
	}
	if bid, ok := services.BatchIDFromContext(ctx); !ok || bid != "batch-1" {
		t.Fatalf("unexpected batch id: %v %v", bid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithSourceID(ctx, "")
	ctx = services.WithPrincipal(ctx, "")
	if _, ok := services.SourceIDFromContext(ctx); ok {
		t.Fatal("expected no source value")
	}
	if _, ok := services.PrincipalFromContext(ctx); ok {
		t.Fatal("expected no principal value")
	}
}
