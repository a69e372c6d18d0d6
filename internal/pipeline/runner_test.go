package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"ldseq/internal/align"
	"ldseq/internal/config"
	"ldseq/internal/indexing"
	"ldseq/internal/ledger"
	"ldseq/internal/logging"
	"ldseq/internal/notifications"
	"ldseq/internal/pipeline"
	"ldseq/internal/reference"
	"ldseq/internal/sample"
	"ldseq/internal/services"
	"ldseq/internal/services/samtools"
	"ldseq/internal/services/smalt"
	"ldseq/internal/sorting"
	"ldseq/internal/stage"
	"ldseq/internal/testsupport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSmalt stands in for the aligner binary. Map streams fake SAM records
// into the pipe so the downstream filter has something to consume; Index
// drops both index files next to the prefix.
type fakeSmalt struct {
	mu         sync.Mutex
	mapInputs  []string
	indexCalls int
}

func (f *fakeSmalt) Map(_ context.Context, req smalt.MapRequest) error {
	f.mu.Lock()
	f.mapInputs = append(f.mapInputs, req.R1)
	f.mu.Unlock()

	if req.Log != nil {
		fmt.Fprintln(req.Log, "mapped pair", filepath.Base(req.R1))
	}
	_, err := io.WriteString(req.Output, "@HD\tVN:1.6\nread1\nread2\n")
	return err
}

func (f *fakeSmalt) Index(_ context.Context, req smalt.IndexRequest) error {
	f.mu.Lock()
	f.indexCalls++
	f.mu.Unlock()

	if req.Log != nil {
		fmt.Fprintln(req.Log, "index built")
	}
	for _, suffix := range []string{".smi", ".sma"} {
		if err := os.WriteFile(req.Prefix+suffix, []byte("idx"), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeSmalt) maps() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.mapInputs)
}

// fakeSamtools simulates the BAM toolchain on plain files. Sort can be told
// to fail for inputs containing a substring, which lets tests break exactly
// one sample. It never writes to the tool logs so the empty-log sweep has
// something to collect.
type fakeSamtools struct {
	mu         sync.Mutex
	viewCalls  int
	sortCalls  int
	indexCalls int
	failSort   string
}

func (f *fakeSamtools) ViewFilter(_ context.Context, req samtools.ViewFilterRequest) error {
	data, err := io.ReadAll(req.Input)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.viewCalls++
	f.mu.Unlock()
	return os.WriteFile(req.Output, append([]byte("BAM\x01"), data...), 0o644)
}

func (f *fakeSamtools) Sort(_ context.Context, req samtools.SortRequest) error {
	f.mu.Lock()
	f.sortCalls++
	fail := f.failSort != "" && strings.Contains(req.Input, f.failSort)
	f.mu.Unlock()
	if fail {
		return errors.New("truncated input")
	}

	data, err := os.ReadFile(req.Input)
	if err != nil {
		return err
	}
	return os.WriteFile(req.Output, append([]byte("sorted:"), data...), 0o644)
}

func (f *fakeSamtools) Index(_ context.Context, req samtools.IndexRequest) error {
	f.mu.Lock()
	f.indexCalls++
	f.mu.Unlock()
	return os.WriteFile(req.BAM+".bai", []byte("bai"), 0o644)
}

func (f *fakeSamtools) Quickcheck(_ context.Context, path string, _ io.Writer) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return errors.New("empty bam")
	}
	return nil
}

func (f *fakeSamtools) sorts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sortCalls
}

// fakeHandler is a scriptable stage for orchestration tests that do not
// need the real tool chain.
type fakeHandler struct {
	name   string
	delay  time.Duration
	health stage.Health

	mu       sync.Mutex
	running  int
	maxSeen  int
	executed []string
}

func (f *fakeHandler) Name() string { return f.name }

func (f *fakeHandler) Fresh(context.Context, *sample.Sample) (bool, error) {
	return false, nil
}

func (f *fakeHandler) Execute(ctx context.Context, s *sample.Sample) error {
	f.mu.Lock()
	f.running++
	if f.running > f.maxSeen {
		f.maxSeen = f.running
	}
	f.executed = append(f.executed, s.Base)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
		}
	}

	f.mu.Lock()
	f.running--
	f.mu.Unlock()
	return nil
}

func (f *fakeHandler) HealthCheck(context.Context) stage.Health {
	if f.health.Name != "" {
		return f.health
	}
	return stage.Healthy(f.name)
}

func (f *fakeHandler) executions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.executed...)
}

func (f *fakeHandler) peakConcurrency() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxSeen
}

func newToolchainRunner(t *testing.T, cfg *config.Config, smaltFake *fakeSmalt, samtoolsFake *fakeSamtools) (*pipeline.Runner, *ledger.Store) {
	t.Helper()

	store := testsupport.MustOpenLedger(t, cfg)
	logger := logging.NewNop()
	runner := pipeline.NewRunnerWithDependencies(cfg, logger, store,
		notifications.NewService(cfg),
		reference.NewManager(cfg, smaltFake, logger),
		align.NewWithDependencies(cfg, logger, smaltFake, samtoolsFake),
		sorting.NewWithDependencies(cfg, logger, samtoolsFake),
		indexing.NewWithDependencies(cfg, logger, samtoolsFake),
	)
	return runner, store
}

func resultsByBase(summary *pipeline.Summary) map[string]pipeline.Result {
	byBase := make(map[string]pipeline.Result, len(summary.Results))
	for _, result := range summary.Results {
		byBase[result.Sample.Base] = result
	}
	return byBase
}

func TestRunProcessesAllSamples(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	testsupport.WriteFastqPair(t, cfg.Paths.FastqDir, "alpha")
	testsupport.WriteFastqPair(t, cfg.Paths.FastqDir, "beta")
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.FastqDir, "gamma_R1.fastq.gz"), 64)
	testsupport.WriteGenome(t, cfg.GenomePath())

	smaltFake := &fakeSmalt{}
	samtoolsFake := &fakeSamtools{}
	runner, store := newToolchainRunner(t, cfg, smaltFake, samtoolsFake)

	ctx := context.Background()
	summary, err := runner.Run(ctx, "run-e2e", "run")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := summary.Completed(); got != 2 {
		t.Errorf("completed = %d, want 2", got)
	}
	if got := summary.Failed(); got != 0 {
		t.Errorf("failed = %d, want 0", got)
	}
	if len(summary.Skipped) != 1 || summary.Skipped[0].Reason != sample.SkipMissingPair {
		t.Errorf("skipped = %+v, want one missing_pair record", summary.Skipped)
	}

	for _, base := range []string{"alpha", "beta"} {
		sorted := filepath.Join(cfg.Paths.BamDir, base+".sorted.bam")
		for _, path := range []string{sorted, sorted + ".bai"} {
			if _, err := os.Stat(path); err != nil {
				t.Errorf("missing artifact %s: %v", path, err)
			}
		}
		if _, err := os.Stat(filepath.Join(cfg.Paths.BamDir, base+".bam")); !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("unsorted intermediate for %s should have been removed", base)
		}
	}
	entries, err := os.ReadDir(cfg.Paths.BamDir)
	if err != nil {
		t.Fatalf("read bam dir: %v", err)
	}
	if len(entries) != 4 {
		t.Errorf("bam dir holds %d files, want 4", len(entries))
	}

	if got := smaltFake.indexCalls; got != 1 {
		t.Errorf("reference index built %d times, want 1", got)
	}

	// The fake samtools never writes its log, so the per-sample samtools
	// logs are empty and must be swept; the smalt logs have content and stay.
	if len(summary.LogsRemoved) != 2 {
		t.Errorf("swept %d logs, want 2: %v", len(summary.LogsRemoved), summary.LogsRemoved)
	}
	for _, base := range []string{"alpha", "beta"} {
		if _, err := os.Stat(filepath.Join(cfg.Paths.LogDir, base+".smalt.log")); err != nil {
			t.Errorf("smalt log for %s should survive the sweep: %v", base, err)
		}
		if _, err := os.Stat(filepath.Join(cfg.Paths.LogDir, base+".samtools.log")); !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("empty samtools log for %s should have been swept", base)
		}
	}

	run, err := store.GetRun(ctx, "run-e2e")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run == nil {
		t.Fatal("run record missing from ledger")
	}
	if run.Status != ledger.RunStatusCompleted {
		t.Errorf("run status = %q, want %q", run.Status, ledger.RunStatusCompleted)
	}
	if run.Discovered != 2 || run.Skipped != 1 || run.Completed != 2 || run.Failed != 0 {
		t.Errorf("run counters = %d/%d/%d/%d, want 2/1/2/0",
			run.Discovered, run.Skipped, run.Completed, run.Failed)
	}

	recorded, err := store.SampleResults(ctx, "run-e2e")
	if err != nil {
		t.Fatalf("SampleResults: %v", err)
	}
	if len(recorded) != 2 {
		t.Fatalf("recorded %d sample results, want 2", len(recorded))
	}
	for _, rec := range recorded {
		if rec.Outcome != string(pipeline.OutcomeCompleted) {
			t.Errorf("sample %s outcome = %q, want completed", rec.Base, rec.Outcome)
		}
	}
}

func TestRunSecondPassSkipsFreshSamples(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	testsupport.WriteFastqPair(t, cfg.Paths.FastqDir, "alpha")
	testsupport.WriteFastqPair(t, cfg.Paths.FastqDir, "beta")
	testsupport.WriteGenome(t, cfg.GenomePath())

	smaltFake := &fakeSmalt{}
	samtoolsFake := &fakeSamtools{}
	runner, _ := newToolchainRunner(t, cfg, smaltFake, samtoolsFake)

	ctx := context.Background()
	if _, err := runner.Run(ctx, "run-first", "run"); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	mapsAfterFirst := smaltFake.maps()
	sortsAfterFirst := samtoolsFake.sorts()

	summary, err := runner.Run(ctx, "run-second", "run")
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if got := summary.Completed(); got != 2 {
		t.Fatalf("completed = %d, want 2", got)
	}
	for _, result := range summary.Results {
		for _, trace := range result.Stages {
			if trace.Action != pipeline.StageSkipped {
				t.Errorf("sample %s stage %s action = %q, want skipped",
					result.Sample.Base, trace.Stage, trace.Action)
			}
		}
	}
	if got := smaltFake.maps(); got != mapsAfterFirst {
		t.Errorf("second run invoked smalt map %d extra times", got-mapsAfterFirst)
	}
	if got := samtoolsFake.sorts(); got != sortsAfterFirst {
		t.Errorf("second run invoked samtools sort %d extra times", got-sortsAfterFirst)
	}
	if got := smaltFake.indexCalls; got != 1 {
		t.Errorf("reference index built %d times across runs, want 1", got)
	}
}

func TestRunReprocessesTouchedSample(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	alphaR1, _ := testsupport.WriteFastqPair(t, cfg.Paths.FastqDir, "alpha")
	testsupport.WriteFastqPair(t, cfg.Paths.FastqDir, "beta")
	testsupport.WriteGenome(t, cfg.GenomePath())

	smaltFake := &fakeSmalt{}
	samtoolsFake := &fakeSamtools{}
	runner, _ := newToolchainRunner(t, cfg, smaltFake, samtoolsFake)

	ctx := context.Background()
	if _, err := runner.Run(ctx, "run-first", "run"); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	touched := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(alphaR1, touched, touched); err != nil {
		t.Fatalf("touch %s: %v", alphaR1, err)
	}

	summary, err := runner.Run(ctx, "run-second", "run")
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	byBase := resultsByBase(summary)

	for _, trace := range byBase["alpha"].Stages {
		if trace.Action != pipeline.StageExecuted {
			t.Errorf("alpha stage %s action = %q, want executed", trace.Stage, trace.Action)
		}
	}
	for _, trace := range byBase["beta"].Stages {
		if trace.Action != pipeline.StageSkipped {
			t.Errorf("beta stage %s action = %q, want skipped", trace.Stage, trace.Action)
		}
	}
	if got := smaltFake.maps(); got != 3 {
		t.Errorf("smalt map ran %d times across both runs, want 3", got)
	}
}

func TestRunIsolatesFailingSample(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	testsupport.WriteFastqPair(t, cfg.Paths.FastqDir, "alpha")
	testsupport.WriteFastqPair(t, cfg.Paths.FastqDir, "beta")
	testsupport.WriteGenome(t, cfg.GenomePath())

	smaltFake := &fakeSmalt{}
	samtoolsFake := &fakeSamtools{failSort: "alpha"}
	runner, store := newToolchainRunner(t, cfg, smaltFake, samtoolsFake)

	ctx := context.Background()
	summary, err := runner.Run(ctx, "run-mixed", "run")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := summary.Failed(); got != 1 {
		t.Fatalf("failed = %d, want 1", got)
	}
	if got := summary.Completed(); got != 1 {
		t.Fatalf("completed = %d, want 1", got)
	}

	failure := summary.Failures()[0]
	if failure.Sample.Base != "alpha" {
		t.Errorf("failed sample = %q, want alpha", failure.Sample.Base)
	}
	if failure.FailedStage != "sort" {
		t.Errorf("failed stage = %q, want sort", failure.FailedStage)
	}
	if !errors.Is(failure.Err, services.ErrExternalTool) {
		t.Errorf("failure error = %v, want ErrExternalTool", failure.Err)
	}
	if failure.Category != "tool" {
		t.Errorf("failure category = %q, want tool", failure.Category)
	}

	// The healthy sibling must finish untouched by alpha's failure.
	betaSorted := filepath.Join(cfg.Paths.BamDir, "beta.sorted.bam")
	for _, path := range []string{betaSorted, betaSorted + ".bai"} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("missing beta artifact %s: %v", path, err)
		}
	}

	// A failed sort must leave the unsorted intermediate for inspection.
	if _, err := os.Stat(filepath.Join(cfg.Paths.BamDir, "alpha.bam")); err != nil {
		t.Errorf("alpha unsorted bam should survive the failed sort: %v", err)
	}

	run, err := store.GetRun(ctx, "run-mixed")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != ledger.RunStatusFailed {
		t.Errorf("run status = %q, want %q", run.Status, ledger.RunStatusFailed)
	}
	if run.ErrorMessage != "1 of 2 samples failed" {
		t.Errorf("run error message = %q", run.ErrorMessage)
	}

	recorded, err := store.SampleResults(ctx, "run-mixed")
	if err != nil {
		t.Fatalf("SampleResults: %v", err)
	}
	for _, rec := range recorded {
		if rec.Base != "alpha" {
			continue
		}
		if rec.Outcome != string(pipeline.OutcomeFailed) || rec.FailedStage != "sort" {
			t.Errorf("alpha record = %+v, want failed at sort", rec)
		}
	}
}

func TestRunBoundsConcurrentSamples(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxJobs(2))
	for i := 0; i < 6; i++ {
		testsupport.WriteFastqPair(t, cfg.Paths.FastqDir, fmt.Sprintf("s%02d", i))
	}

	handler := &fakeHandler{name: "map", delay: 25 * time.Millisecond}
	runner := pipeline.NewRunnerWithDependencies(cfg, logging.NewNop(), nil, nil, nil, handler)

	summary, err := runner.Run(context.Background(), "run-bound", "run")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := summary.Completed(); got != 6 {
		t.Errorf("completed = %d, want 6", got)
	}
	if got := len(handler.executions()); got != 6 {
		t.Errorf("handler executed %d times, want 6", got)
	}
	if peak := handler.peakConcurrency(); peak > 2 {
		t.Errorf("observed %d concurrent samples, limit is 2", peak)
	}
}

func TestRunWithoutSamplesSucceeds(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)

	// An unhealthy handler proves preflight never runs when there is no work.
	handler := &fakeHandler{name: "map", health: stage.Unhealthy("map", "smalt not found")}
	runner := pipeline.NewRunnerWithDependencies(cfg, logging.NewNop(), store, nil, nil, handler)

	ctx := context.Background()
	summary, err := runner.Run(ctx, "run-empty", "run")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(summary.Results) != 0 {
		t.Errorf("results = %d, want 0", len(summary.Results))
	}
	if got := len(handler.executions()); got != 0 {
		t.Errorf("handler executed %d times on an empty run", got)
	}

	run, err := store.GetRun(ctx, "run-empty")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run == nil {
		t.Fatal("empty run should still be recorded")
	}
	if run.Status != ledger.RunStatusCompleted || run.Discovered != 0 {
		t.Errorf("run = %+v, want completed with zero discovered", run)
	}
}

func TestRunFailsWhenStageUnhealthy(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFastqPair(t, cfg.Paths.FastqDir, "alpha")
	store := testsupport.MustOpenLedger(t, cfg)

	handler := &fakeHandler{name: "map", health: stage.Unhealthy("map", "smalt not found in PATH")}
	runner := pipeline.NewRunnerWithDependencies(cfg, logging.NewNop(), store, nil, nil, handler)

	ctx := context.Background()
	_, err := runner.Run(ctx, "run-unhealthy", "run")
	if err == nil {
		t.Fatal("expected preflight failure")
	}
	if !errors.Is(err, services.ErrConfiguration) {
		t.Errorf("error = %v, want ErrConfiguration", err)
	}
	if !strings.Contains(err.Error(), "smalt not found in PATH") {
		t.Errorf("error %q should carry the health detail", err)
	}
	if got := len(handler.executions()); got != 0 {
		t.Errorf("handler executed %d times despite failed preflight", got)
	}

	latest, err := store.LatestRun(ctx)
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if latest != nil {
		t.Errorf("no run should be recorded after preflight failure, got %+v", latest)
	}
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	for _, base := range []string{"alpha", "beta", "gamma"} {
		testsupport.WriteFastqPair(t, cfg.Paths.FastqDir, base)
	}

	handler := &fakeHandler{name: "map"}
	runner := pipeline.NewRunnerWithDependencies(cfg, logging.NewNop(), nil, nil, nil, handler)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := runner.Run(ctx, "run-cancelled", "run")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := summary.Failed(); got != 3 {
		t.Errorf("failed = %d, want 3", got)
	}
	if got := len(handler.executions()); got != 0 {
		t.Errorf("handler executed %d times under a cancelled context", got)
	}
	for _, result := range summary.Results {
		if !errors.Is(result.Err, context.Canceled) {
			t.Errorf("sample %s error = %v, want context.Canceled", result.Sample.Base, result.Err)
		}
	}
}
