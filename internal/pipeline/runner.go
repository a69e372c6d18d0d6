package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"ldseq/internal/align"
	"ldseq/internal/artifact"
	"ldseq/internal/config"
	"ldseq/internal/indexing"
	"ldseq/internal/ledger"
	"ldseq/internal/logging"
	"ldseq/internal/notifications"
	"ldseq/internal/reference"
	"ldseq/internal/sample"
	"ldseq/internal/services"
	"ldseq/internal/services/smalt"
	"ldseq/internal/sorting"
	"ldseq/internal/stage"
)

// Runner owns one pipeline invocation end to end: discovery, preflight,
// bounded scheduling, and run bookkeeping.
type Runner struct {
	cfg       *config.Config
	logger    *slog.Logger
	stages    []stage.Handler
	reference *reference.Manager
	store     *ledger.Store
	notifier  notifications.Service
}

type loggerAware interface {
	SetLogger(*slog.Logger)
}

// NewRunner constructs a Runner with CLI-backed stages.
func NewRunner(cfg *config.Config, logger *slog.Logger, store *ledger.Store) *Runner {
	smaltClient := smalt.NewCLI(smalt.WithBinary(cfg.SmaltBinary()))
	return NewRunnerWithDependencies(cfg, logger, store,
		notifications.NewService(cfg),
		reference.NewManager(cfg, smaltClient, logger),
		align.New(cfg, logger),
		sorting.New(cfg, logger),
		indexing.New(cfg, logger),
	)
}

// NewRunnerWithDependencies allows injecting custom stages and services
// (used for tests).
func NewRunnerWithDependencies(cfg *config.Config, logger *slog.Logger, store *ledger.Store, notifier notifications.Service, ref *reference.Manager, stages ...stage.Handler) *Runner {
	runner := &Runner{
		cfg:       cfg,
		stages:    stages,
		reference: ref,
		store:     store,
		notifier:  notifier,
	}
	runner.SetLogger(logger)
	return runner
}

// SetLogger updates the runner's logging destination while preserving
// component labeling.
func (r *Runner) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = logging.NewNop()
	}
	r.logger = logging.NewComponentLogger(logger, "pipeline")
	for _, handler := range r.stages {
		if aware, ok := handler.(loggerAware); ok {
			aware.SetLogger(logger)
		}
	}
}

// Run executes the pipeline once. The returned error covers startup
// problems only; per-sample failures are reported through the summary so
// one bad sample cannot hide the rest of the run.
func (r *Runner) Run(ctx context.Context, runID, trigger string) (*Summary, error) {
	ctx = services.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, r.logger)

	summary := &Summary{RunID: runID, Started: time.Now()}

	if err := r.cfg.EnsureWorkspaceDirs(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "startup", "create workspace directories", "", err)
	}

	samples, skipped, err := sample.Discover(r.cfg.Paths.FastqDir, r.cfg.Paths.BamDir, r.cfg.Paths.LogDir)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "startup", "discover read pairs",
			fmt.Sprintf("place paired reads under %s", r.cfg.Paths.FastqDir), err)
	}
	summary.Skipped = skipped
	for _, skip := range skipped {
		logger.Warn("skipping read file",
			logging.String("file", skip.R1),
			logging.String("reason", string(skip.Reason)))
	}

	if len(samples) == 0 {
		logger.Info("no read pairs found",
			logging.String("dir", r.cfg.Paths.FastqDir),
			logging.Int("skipped", len(skipped)))
		summary.Finished = time.Now()
		r.recordRun(ctx, logger, summary, trigger)
		return summary, nil
	}

	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.Int("samples", len(samples)),
		logging.Int("skipped", len(skipped)),
		logging.Int("max_jobs", r.cfg.Pipeline.MaxJobs),
		logging.Int("threads", r.cfg.Pipeline.Threads))

	if err := r.preflight(ctx, logger); err != nil {
		return nil, err
	}

	if r.store != nil {
		if err := r.store.BeginRun(ctx, runID, trigger, len(samples), len(skipped)); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "startup", "record run", "", err)
		}
	}
	r.notifyRunStarted(ctx, logger, len(samples))

	summary.Results = make([]Result, len(samples))
	var group errgroup.Group
	group.SetLimit(r.cfg.Pipeline.MaxJobs)
	for i := range samples {
		group.Go(func() error {
			summary.Results[i] = r.runSample(ctx, samples[i])
			return nil
		})
	}
	_ = group.Wait()

	summary.Finished = time.Now()
	r.finishRun(ctx, logger, summary, trigger)
	return summary, nil
}

// preflight verifies stage health and the reference before scheduling work.
func (r *Runner) preflight(ctx context.Context, logger *slog.Logger) error {
	var failures []string
	for _, handler := range r.stages {
		health := handler.HealthCheck(ctx)
		if health.Ready {
			logger.Debug("health check passed", logging.String("check", health.Name))
			continue
		}
		logger.Error("health check failed",
			logging.String("check", health.Name),
			logging.String("detail", health.Detail))
		failures = append(failures, fmt.Sprintf("%s: %s", health.Name, health.Detail))
	}
	if len(failures) > 0 {
		return services.Wrap(services.ErrConfiguration, "preflight", "health checks",
			strings.Join(failures, "; "), nil)
	}
	if r.reference != nil {
		if err := r.reference.Ensure(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runSample(ctx context.Context, smp sample.Sample) Result {
	ctx = services.WithSample(ctx, smp.Base)
	start := time.Now()
	result := Result{Sample: smp, Outcome: OutcomeCompleted}

	sampleLogger := logging.WithContext(ctx, r.logger)
	sampleLogger.Info("sample started",
		logging.String(logging.FieldEventType, "sample_start"),
		logging.String("r1", smp.R1),
		logging.String("r2", smp.R2))

	for _, handler := range r.stages {
		stageCtx := services.WithStage(ctx, handler.Name())
		stageLogger := logging.WithContext(stageCtx, r.logger)

		if err := ctx.Err(); err != nil {
			stageLogger.Warn("stage aborted by shutdown")
			result.markFailed(handler.Name(), err)
			break
		}

		fresh, err := handler.Fresh(stageCtx, &smp)
		if err != nil {
			stageLogger.Error("stage freshness check failed", logging.Error(err))
			result.markFailed(handler.Name(), err)
			break
		}
		if fresh {
			stageLogger.Info("stage skipped",
				logging.String(logging.FieldEventType, "stage_skipped"),
				logging.String("reason", "outputs newer than inputs"))
			result.Stages = append(result.Stages, StageTrace{Stage: handler.Name(), Action: StageSkipped})
			continue
		}

		stageLogger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))
		stageStart := time.Now()
		execErr := handler.Execute(stageCtx, &smp)
		elapsed := time.Since(stageStart)

		if execErr != nil {
			stageLogger.Error("stage failed",
				logging.Error(execErr),
				logging.Duration("stage_duration", elapsed))
			result.Stages = append(result.Stages, StageTrace{Stage: handler.Name(), Action: StageFailed, Duration: elapsed})
			result.markFailed(handler.Name(), execErr)
			break
		}

		result.Stages = append(result.Stages, StageTrace{Stage: handler.Name(), Action: StageExecuted, Duration: elapsed})
		stageLogger.Info("stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.Duration("stage_duration", elapsed))
	}

	result.Duration = time.Since(start)
	if result.Outcome == OutcomeCompleted {
		sampleLogger.Info("sample completed",
			logging.String(logging.FieldEventType, "sample_complete"),
			logging.String("stages", result.StageSummary()),
			logging.Duration("duration", result.Duration))
	} else {
		logging.ErrorWithContext(sampleLogger, "sample failed", "sample_failed",
			logging.Error(result.Err),
			logging.String(logging.FieldStage, result.FailedStage),
			logging.String("category", result.Category),
			logging.Duration("duration", result.Duration))
	}
	return result
}

// finishRun records results in the ledger, sweeps empty tool logs, and
// sends completion notifications. None of these can fail the run; the
// samples already ran.
func (r *Runner) finishRun(ctx context.Context, logger *slog.Logger, summary *Summary, trigger string) {
	for _, result := range summary.Failures() {
		r.notifySampleFailed(ctx, logger, result)
	}

	sweep, err := artifact.RemoveEmptyFiles(r.cfg.Paths.LogDir)
	if err != nil {
		logger.Warn("could not sweep empty tool logs", logging.Error(err))
	}
	for _, cleanErr := range sweep.Errors {
		logger.Warn("could not remove empty tool log",
			logging.String("path", cleanErr.Path),
			logging.Error(cleanErr.Err))
	}
	summary.LogsRemoved = sweep.Removed
	if len(sweep.Removed) > 0 {
		logger.Debug("removed empty tool logs", logging.Int("count", len(sweep.Removed)))
	}

	r.recordRun(ctx, logger, summary, trigger)

	completed, failed := summary.Completed(), summary.Failed()
	r.notifyRunCompleted(ctx, logger, completed, failed, summary.Duration())
	logger.Info("run finished",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int("completed", completed),
		logging.Int("failed", failed),
		logging.Int("skipped", len(summary.Skipped)),
		logging.Duration("duration", summary.Duration()))
}

// recordRun persists the run's final shape. Ledger write failures degrade
// to warnings so a locked database cannot fail a finished pipeline.
func (r *Runner) recordRun(ctx context.Context, logger *slog.Logger, summary *Summary, trigger string) {
	if r.store == nil {
		return
	}

	// A signal may have cancelled the run context; history writes still
	// have to land.
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}

	if len(summary.Results) == 0 && summary.RunID != "" {
		if run, err := r.store.GetRun(ctx, summary.RunID); err == nil && run == nil {
			if err := r.store.BeginRun(ctx, summary.RunID, trigger, 0, len(summary.Skipped)); err != nil {
				logger.Warn("could not record empty run", logging.Error(err))
				return
			}
		}
	}

	for _, result := range summary.Results {
		record := ledger.SampleResult{
			RunID:       summary.RunID,
			Base:        result.Sample.Base,
			Outcome:     string(result.Outcome),
			FailedStage: result.FailedStage,
			Cause:       result.Category,
			Stages:      result.StageSummary(),
			Duration:    result.Duration,
		}
		if result.Err != nil {
			record.ErrorMessage = result.Err.Error()
		}
		if err := r.store.RecordSample(ctx, record); err != nil {
			logger.Warn("could not record sample result",
				logging.String(logging.FieldSample, result.Sample.Base),
				logging.Error(err))
		}
	}

	status := ledger.RunStatusCompleted
	message := ""
	if failed := summary.Failed(); failed > 0 {
		status = ledger.RunStatusFailed
		message = fmt.Sprintf("%d of %d samples failed", failed, len(summary.Results))
	}
	if err := r.store.FinishRun(ctx, summary.RunID, summary.Completed(), summary.Failed(), status, message); err != nil {
		logger.Warn("could not finalize run record", logging.Error(err))
	}
}

func (r *Runner) notifyRunStarted(ctx context.Context, logger *slog.Logger, count int) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.NotifyRunStarted(ctx, count); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("shutting down, could not send run start notification")
		} else {
			logger.Debug("run start notification failed", logging.Error(err))
		}
	}
}

func (r *Runner) notifyRunCompleted(ctx context.Context, logger *slog.Logger, completed, failed int, duration time.Duration) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.NotifyRunCompleted(ctx, completed, failed, duration); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("shutting down, could not send run completion notification")
		} else {
			logger.Debug("run completion notification failed", logging.Error(err))
		}
	}
}

func (r *Runner) notifySampleFailed(ctx context.Context, logger *slog.Logger, result Result) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.NotifySampleFailed(ctx, result.Sample.Base, result.FailedStage, result.Err); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("shutting down, could not send sample failure notification")
		} else {
			logger.Debug("sample failure notification failed", logging.Error(err))
		}
	}
}
