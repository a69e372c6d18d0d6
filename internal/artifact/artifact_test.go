package artifact_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"ldseq/internal/artifact"
)

func writeStamped(t *testing.T, path, content string, stamp time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if err := os.Chtimes(path, stamp, stamp); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}

func TestFreshRequiresExistingNonEmptyOutput(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "out.bam")

	if artifact.Fresh(output) {
		t.Fatal("missing output must not be fresh")
	}

	if err := os.WriteFile(output, nil, 0o644); err != nil {
		t.Fatalf("write empty output: %v", err)
	}
	if artifact.Fresh(output) {
		t.Fatal("zero-byte output must not be fresh")
	}

	if artifact.Fresh(dir) {
		t.Fatal("directory must not be fresh")
	}
}

func TestFreshComparesAgainstInputs(t *testing.T) {
	dir := t.TempDir()
	older := time.Now().Add(-2 * time.Hour)
	newer := time.Now().Add(-time.Hour)

	input := filepath.Join(dir, "reads.fastq.gz")
	output := filepath.Join(dir, "out.bam")

	writeStamped(t, input, "reads", newer)
	writeStamped(t, output, "bam", older)
	if artifact.Fresh(output, input) {
		t.Fatal("output older than input must not be fresh")
	}

	writeStamped(t, output, "bam", newer)
	if !artifact.Fresh(output, input) {
		t.Fatal("output equal to input must be fresh")
	}

	writeStamped(t, output, "bam", time.Now())
	if !artifact.Fresh(output, input) {
		t.Fatal("output newer than input must be fresh")
	}
}

func TestFreshIgnoresMissingInputs(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "out.sorted.bam")
	writeStamped(t, output, "bam", time.Now().Add(-time.Hour))

	if !artifact.Fresh(output, filepath.Join(dir, "reclaimed.bam")) {
		t.Fatal("missing input must not make output stale")
	}
}

func TestTempPathIsHiddenSibling(t *testing.T) {
	got := artifact.TempPath(filepath.Join("Bams", "s1.bam"))
	want := filepath.Join("Bams", ".s1.bam.partial")
	if got != want {
		t.Fatalf("TempPath = %q, want %q", got, want)
	}
}

func TestReplacePromotesTempFile(t *testing.T) {
	dir := t.TempDir()
	final := filepath.Join(dir, "s1.bam")
	temp := artifact.TempPath(final)

	if err := os.WriteFile(final, []byte("stale"), 0o644); err != nil {
		t.Fatalf("write stale artifact: %v", err)
	}
	if err := os.WriteFile(temp, []byte("complete"), 0o644); err != nil {
		t.Fatalf("write temp artifact: %v", err)
	}

	if err := artifact.Replace(temp, final); err != nil {
		t.Fatalf("Replace returned error: %v", err)
	}

	content, err := os.ReadFile(final)
	if err != nil {
		t.Fatalf("read final artifact: %v", err)
	}
	if string(content) != "complete" {
		t.Fatalf("unexpected final content: %q", content)
	}
	if _, err := os.Stat(temp); !os.IsNotExist(err) {
		t.Fatalf("expected temp file gone, stat err=%v", err)
	}
}

func TestRemoveEmptyFilesSweepsOnlyEmptyRegulars(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "s1.smalt.log")
	full := filepath.Join(dir, "s1.samtools.log")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatalf("write empty: %v", err)
	}
	if err := os.WriteFile(full, []byte("tool output\n"), 0o644); err != nil {
		t.Fatalf("write full: %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	result, err := artifact.RemoveEmptyFiles(dir)
	if err != nil {
		t.Fatalf("RemoveEmptyFiles returned error: %v", err)
	}
	if len(result.Removed) != 1 || result.Removed[0] != empty {
		t.Fatalf("unexpected removals: %v", result.Removed)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if _, err := os.Stat(empty); !os.IsNotExist(err) {
		t.Fatal("expected empty log removed")
	}
	if _, err := os.Stat(full); err != nil {
		t.Fatalf("expected non-empty log kept: %v", err)
	}
}

func TestRemoveEmptyFilesMissingDirIsNoop(t *testing.T) {
	result, err := artifact.RemoveEmptyFiles(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("RemoveEmptyFiles returned error: %v", err)
	}
	if len(result.Removed) != 0 || len(result.Errors) != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestAppendFileCreatesAndAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tool.log")

	first, err := artifact.AppendFile(path)
	if err != nil {
		t.Fatalf("AppendFile returned error: %v", err)
	}
	if _, err := first.WriteString("one\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	first.Close()

	second, err := artifact.AppendFile(path)
	if err != nil {
		t.Fatalf("AppendFile on existing file returned error: %v", err)
	}
	if _, err := second.WriteString("two\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	second.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if string(data) != "one\ntwo\n" {
		t.Fatalf("expected appended content, got %q", data)
	}
}
