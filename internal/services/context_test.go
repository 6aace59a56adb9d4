package services_test

import (
	"context"
	"testing"

	"intake/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithJobID(ctx, "job-000042")
	ctx = services.WithApplicationID(ctx, "1180000000000000001")
	ctx = services.WithTrack(ctx, "tester")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.JobIDFromContext(ctx); !ok || id != "job-000042" {
		t.Fatalf("unexpected job id: %v %v", id, ok)
	}
	if id, ok := services.ApplicationIDFromContext(ctx); !ok || id != "1180000000000000001" {
		t.Fatalf("unexpected application id: %v %v", id, ok)
	}
	if track, ok := services.TrackFromContext(ctx); !ok || track != "tester" {
		t.Fatalf("unexpected track: %v %v", track, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithTrack(ctx, "")
	ctx = services.WithJobID(ctx, "")
	if _, ok := services.TrackFromContext(ctx); ok {
		t.Fatal("expected no track value")
	}
	if _, ok := services.JobIDFromContext(ctx); ok {
		t.Fatal("expected no job value")
	}
}
