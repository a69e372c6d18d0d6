package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Fresh reports whether output exists, is non-empty, and is at least as new
// as every input that exists. Missing inputs contribute no staleness, which
// lets a stage stay satisfied after an upstream intermediate has been
// reclaimed.
func Fresh(output string, inputs ...string) bool {
	info, err := os.Stat(output)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return false
	}
	for _, input := range inputs {
		in, err := os.Stat(input)
		if err != nil {
			continue
		}
		if info.ModTime().Before(in.ModTime()) {
			return false
		}
	}
	return true
}

// TempPath returns the hidden in-progress sibling used while producing path.
// Consumers only ever observe the final name because promotion is a rename.
func TempPath(path string) string {
	dir, name := filepath.Split(path)
	return filepath.Join(dir, "."+name+".partial")
}

// Replace promotes a validated temp file to its final path.
func Replace(tempPath, finalPath string) error {
	if err := os.Remove(finalPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove stale artifact: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		return fmt.Errorf("promote artifact: %w", err)
	}
	return nil
}

// Discard removes an abandoned temp file on a best-effort basis.
func Discard(path string) {
	_ = os.Remove(path)
}

// AppendFile opens a log file for appending, creating it when absent.
func AppendFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// CleanError records a single file that could not be removed.
type CleanError struct {
	Path string
	Err  error
}

// CleanResult summarizes an empty-file sweep.
type CleanResult struct {
	Removed []string
	Errors  []CleanError
}

// RemoveEmptyFiles deletes zero-byte regular files directly under dir. A
// missing directory is not an error; removal failures are collected rather
// than aborting the sweep.
func RemoveEmptyFiles(dir string) (CleanResult, error) {
	var result CleanResult
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return result, nil
		}
		return result, fmt.Errorf("read directory %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.Size() != 0 {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			result.Errors = append(result.Errors, CleanError{Path: path, Err: err})
			continue
		}
		result.Removed = append(result.Removed, path)
	}
	return result, nil
}
