package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/fsnotify/fsnotify"

	"ldseq/internal/config"
	"ldseq/internal/logging"
)

// TriggerFunc receives a settled batch of read file paths. It runs on its
// own goroutine; the watcher keeps collecting events while it executes and
// dispatches the next batch only after it returns.
type TriggerFunc func(ctx context.Context, paths []string)

// Watcher debounces FASTQ directory events into pipeline triggers.
type Watcher struct {
	cfg     *config.Config
	logger  *slog.Logger
	trigger TriggerFunc

	settle time.Duration
	sweep  time.Duration

	mu         sync.Mutex
	running    bool
	processing bool
	pending    map[string]time.Time

	fsw    *fsnotify.Watcher
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a watcher over the configured FASTQ directory. The settle
// window comes from watch.debounce_seconds.
func New(cfg *config.Config, logger *slog.Logger, trigger TriggerFunc) *Watcher {
	w := &Watcher{
		cfg:     cfg,
		trigger: trigger,
		settle:  time.Duration(cfg.Watch.DebounceSeconds) * time.Second,
		sweep:   time.Second,
		pending: make(map[string]time.Time),
	}
	w.SetLogger(logger)
	return w
}

// SetLogger replaces the watcher logger.
func (w *Watcher) SetLogger(logger *slog.Logger) {
	w.logger = logging.NewComponentLogger(logger, "watcher")
}

// Start begins watching the FASTQ directory. The directory must already
// exist; like a run, its absence is a startup failure rather than something
// to create on the operator's behalf.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return errors.New("watcher already running")
	}

	dir := w.cfg.Paths.FastqDir
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch %s: not a directory", dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.fsw = fsw
	w.cancel = cancel
	w.running = true

	w.logger.Info("watching for reads",
		logging.String("directory", dir),
		logging.Duration("settle", w.settle),
		logging.String(logging.FieldEventType, "watch_started"),
	)

	w.wg.Add(1)
	go w.loop(runCtx)
	return nil
}

// Stop cancels the watch loop and waits for any in-flight trigger to
// return. Safe to call without a prior Start.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel := w.cancel
	w.running = false
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()

	if w.fsw != nil {
		if err := w.fsw.Close(); err != nil {
			w.logger.Warn("could not close watcher", logging.Error(err))
		}
		w.fsw = nil
	}
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "watch_error"),
			)
		case <-ticker.C:
			w.dispatchSettled(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, ".fastq.gz") {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	w.logger.Debug("read file event",
		logging.String("file", filepath.Base(event.Name)),
		logging.String("op", event.Op.String()),
	)

	w.mu.Lock()
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()
}

// dispatchSettled fires the trigger once the whole pending set has been
// quiet for the settle window. Waiting on the newest event rather than per
// file keeps a pair together when R2 is still copying after R1 finished.
func (w *Watcher) dispatchSettled(ctx context.Context) {
	w.mu.Lock()
	if w.processing || len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	now := time.Now()
	for _, last := range w.pending {
		if now.Sub(last) < w.settle {
			w.mu.Unlock()
			return
		}
	}
	batch := make([]string, 0, len(w.pending))
	for path := range w.pending {
		batch = append(batch, path)
	}
	w.pending = make(map[string]time.Time)
	w.processing = true
	w.mu.Unlock()

	sort.Strings(batch)

	// Copied-then-removed temp files settle too; drop whatever no longer
	// exists before deciding the batch is worth a run.
	kept := make([]string, 0, len(batch))
	for _, path := range batch {
		if info, err := os.Stat(path); err == nil && info.Size() > 0 {
			kept = append(kept, path)
		}
	}
	if len(kept) == 0 || w.trigger == nil {
		w.mu.Lock()
		w.processing = false
		w.mu.Unlock()
		return
	}

	w.logger.Info("reads settled",
		logging.Int("files", len(kept)),
		logging.String(logging.FieldEventType, "watch_triggered"),
	)

	w.wg.Add(1)
	go func(paths []string) {
		defer w.wg.Done()
		w.trigger(ctx, paths)

		w.mu.Lock()
		w.processing = false
		w.mu.Unlock()
	}(kept)
}
