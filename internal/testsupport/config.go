package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"ldseq/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The FASTQ and reference directories are created eagerly because nearly
// every pipeline test needs them; workspace output directories are left to
// EnsureWorkspaceDirs so tests exercise the real startup path.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WorkDir = base
	cfgVal.Paths.FastqDir = filepath.Join(base, "FASTQ")
	cfgVal.Paths.BamDir = filepath.Join(base, "Bams")
	cfgVal.Paths.LogDir = filepath.Join(base, "Logs")
	cfgVal.Paths.ResultsDir = filepath.Join(base, "Results")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Reference.Dir = filepath.Join(base, "DB")

	for _, dir := range []string{cfgVal.Paths.FastqDir, cfgVal.Reference.Dir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithMaxJobs overrides the concurrent sample bound on the test config.
func WithMaxJobs(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.MaxJobs = n
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default external binaries
// are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"smalt", "samtools", "featureCounts", "Rscript"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return cfg.Paths.WorkDir
}
