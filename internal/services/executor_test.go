package services_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"ldseq/internal/services"
)

func TestExecutorRunWiresStreams(t *testing.T) {
	var stdout, stderr bytes.Buffer
	executor := services.NewExecutor()
	err := executor.Run(context.Background(), services.Command{
		Binary: "sh",
		Args:   []string{"-c", "cat; echo diagnostics 1>&2"},
		Stdin:  strings.NewReader("streamed\n"),
		Stdout: &stdout,
		Stderr: &stderr,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if got := stdout.String(); got != "streamed\n" {
		t.Fatalf("unexpected stdout: %q", got)
	}
	if !strings.Contains(stderr.String(), "diagnostics") {
		t.Fatalf("unexpected stderr: %q", stderr.String())
	}
}

func TestExecutorRunReportsFailure(t *testing.T) {
	executor := services.NewExecutor()
	err := executor.Run(context.Background(), services.Command{
		Binary: "sh",
		Args:   []string{"-c", "exit 3"},
	})
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if !strings.Contains(err.Error(), "sh") {
		t.Fatalf("expected binary name in error, got %v", err)
	}
}

func TestExecutorRunRequiresBinary(t *testing.T) {
	executor := services.NewExecutor()
	if err := executor.Run(context.Background(), services.Command{}); err == nil {
		t.Fatal("expected error for empty binary")
	}
}

func TestExecutorRunPropagatesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	executor := services.NewExecutor()
	err := executor.Run(ctx, services.Command{Binary: "sh", Args: []string{"-c", "sleep 5"}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}
