package services_test

import (
	"errors"
	"strings"
	"testing"

	"ldseq/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "map", "smalt", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"map", "smalt", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "sort", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker for nil marker, got %v", err)
	}
}

func TestFailureCategoryMapping(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{services.Wrap(services.ErrValidation, "map", "quickcheck", "truncated", nil), "validation"},
		{services.Wrap(services.ErrArtifactMissing, "sort", "", "unsorted bam absent", nil), "artifact missing"},
		{services.Wrap(services.ErrExternalTool, "index", "samtools", "exit 1", errors.New("exit status 1")), "tool"},
		{services.Wrap(services.ErrConfiguration, "", "", "missing genome", nil), "configuration"},
		{errors.New("untyped"), "failure"},
		{nil, ""},
	}
	for _, tc := range cases {
		if got := services.FailureCategory(tc.err); got != tc.want {
			t.Fatalf("FailureCategory(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
