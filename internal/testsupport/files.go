package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile fills the target path with the requested number of bytes. A
// size <= 0 writes a single byte so freshness checks see a non-empty file.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{'A'}, int(size)), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteFastqPair creates both mate files for a sample base under dir and
// returns their paths.
func WriteFastqPair(t testing.TB, dir, base string) (string, string) {
	t.Helper()

	r1 := filepath.Join(dir, base+"_R1.fastq.gz")
	r2 := filepath.Join(dir, base+"_R2.fastq.gz")
	WriteFile(t, r1, 64)
	WriteFile(t, r2, 64)
	return r1, r2
}

// WriteGenome places a small FASTA at the configured genome path.
func WriteGenome(t testing.TB, path string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(">chr1\nACGTACGTACGT\n"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
