package services_test

import (
	"context"
	"testing"

	"ldseq/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithSample(ctx, "s1")
	ctx = services.WithStage(ctx, "map")
	ctx = services.WithRunID(ctx, "run-123")

	if sample, ok := services.SampleFromContext(ctx); !ok || sample != "s1" {
		t.Fatalf("unexpected sample: %v %v", sample, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "map" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if id, ok := services.RunIDFromContext(ctx); !ok || id != "run-123" {
		t.Fatalf("unexpected run id: %v %v", id, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithSample(ctx, "")
	ctx = services.WithStage(ctx, "")
	if _, ok := services.SampleFromContext(ctx); ok {
		t.Fatal("expected no sample value")
	}
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
}
