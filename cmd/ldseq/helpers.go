package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"ldseq/internal/config"
	"ldseq/internal/logging"
)

// acquireRunLock takes the single-instance lock shared by run and watch.
// The caller must Unlock the returned lock when the command finishes.
func acquireRunLock(cfg *config.Config) (*flock.Flock, error) {
	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another ldseq run or watch holds %s", cfg.LockPath())
	}
	return lock, nil
}

// newRunLogger builds a logger that tees to stdout and a per-invocation log
// file under the state directory, then prunes log files older than the
// configured retention window.
func newRunLogger(cfg *config.Config, id string) (*slog.Logger, string, error) {
	logPath := filepath.Join(cfg.Paths.StateDir, fmt.Sprintf("ldseq-%s.log", id))
	logger, err := logging.New(logging.Options{
		Level:            cfg.Logging.Level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
	})
	if err != nil {
		return nil, "", fmt.Errorf("initialize logging: %w", err)
	}

	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, logging.RetentionTarget{
		Dir:     cfg.Paths.StateDir,
		Pattern: "ldseq-*.log",
		Exclude: []string{logPath},
	})

	return logger, logPath, nil
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}

var countPrinter = message.NewPrinter(language.English)

// formatCount renders n with thousands separators for human-facing output.
func formatCount(n int) string {
	return countPrinter.Sprintf("%d", n)
}
