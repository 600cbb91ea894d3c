// Package logging provides component loggers with file rotation for the
// restruct refactoring engine.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"
)

// RotationConfig controls when the log file rolls over and how many
// rotated files survive.
type RotationConfig struct {
	// MaxSize is the size in bytes past which the file rolls. Zero
	// falls back to the default of 10MB.
	MaxSize int64

	// MaxAge in days; rotated files older than this are pruned. Zero
	// disables age-based pruning.
	MaxAge int

	// MaxBackups caps the number of rotated files kept. Zero keeps all,
	// subject to MaxAge.
	MaxBackups int

	// Daily forces a roll on the first write of each calendar day.
	Daily bool
}

// DefaultRotationConfig returns the rotation settings used when the
// config file supplies none.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		MaxSize:    10 * 1024 * 1024,
		MaxAge:     30,
		MaxBackups: 5,
		Daily:      true,
	}
}

// RotatingWriter is an io.WriteCloser that rolls its underlying file by
// size and by day. A mutex serializes goroutines; flock serializes
// processes sharing the same log path.
type RotatingWriter struct {
	path     string
	cfg      RotationConfig
	mu       sync.Mutex
	file     *os.File
	size     int64
	lastRoll time.Time
}

// NewRotatingWriter opens (creating if needed) the log file at path,
// along with any missing parent directories, and prunes stale rotated
// files left by earlier runs.
func NewRotatingWriter(path string, cfg RotationConfig) (*RotatingWriter, error) {
	if cfg.MaxSize == 0 {
		cfg.MaxSize = DefaultRotationConfig().MaxSize
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	w := &RotatingWriter{path: path, cfg: cfg, lastRoll: time.Now()}
	if err := w.reopen(); err != nil {
		return nil, err
	}
	w.prune()
	return w, nil
}

// Write appends p to the log, rolling the file first when the write
// would push it past its limits.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.due(int64(len(p))) {
		if err := w.roll(); err != nil {
			return 0, fmt.Errorf("rotating log file: %w", err)
		}
	}

	if err := syscall.Flock(int(w.file.Fd()), syscall.LOCK_EX); err != nil {
		return 0, fmt.Errorf("acquiring file lock: %w", err)
	}
	defer func() {
		_ = syscall.Flock(int(w.file.Fd()), syscall.LOCK_UN)
	}()

	n, err := w.file.Write(p)
	w.size += int64(n)
	if err != nil {
		return n, fmt.Errorf("writing to log file: %w", err)
	}
	return n, nil
}

// Close syncs and closes the current file. Safe to call more than once.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("syncing log file: %w", err)
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// reopen opens the live log file and seeds size and lastRoll from it,
// so an existing file from a previous run rolls on schedule.
func (w *RotatingWriter) reopen() error {
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		if closeErr := file.Close(); closeErr != nil {
			return fmt.Errorf("stat failed: %w; close failed: %w", err, closeErr)
		}
		return fmt.Errorf("stat log file: %w", err)
	}

	w.file = file
	w.size = info.Size()
	w.lastRoll = info.ModTime()
	return nil
}

// due reports whether a write of the given size must trigger a roll.
func (w *RotatingWriter) due(writeSize int64) bool {
	if w.size+writeSize > w.cfg.MaxSize {
		return true
	}
	if !w.cfg.Daily {
		return false
	}
	now := time.Now()
	return now.YearDay() != w.lastRoll.YearDay() || now.Year() != w.lastRoll.Year()
}

// roll renames the live file to a timestamped sibling and starts a
// fresh one. The rotated name keeps the original extension, so
// restruct.log becomes restruct.2026-08-29-153000.log.
func (w *RotatingWriter) roll() error {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return fmt.Errorf("closing current file: %w", err)
		}
		w.file = nil
	}

	ext := filepath.Ext(w.path)
	stem := strings.TrimSuffix(w.path, ext)
	rotated := fmt.Sprintf("%s.%s%s", stem, time.Now().Format("2006-01-02-150405"), ext)

	if _, err := os.Stat(w.path); err == nil {
		if err := os.Rename(w.path, rotated); err != nil {
			return fmt.Errorf("renaming log file: %w", err)
		}
	}

	if err := w.reopen(); err != nil {
		return err
	}
	w.lastRoll = time.Now()
	w.prune()
	return nil
}

// prune deletes rotated files beyond MaxBackups or older than MaxAge.
// Pruning is best-effort; a failure here never fails a write.
func (w *RotatingWriter) prune() {
	dir := filepath.Dir(w.path)
	live := filepath.Base(w.path)
	ext := filepath.Ext(live)
	stem := strings.TrimSuffix(live, ext)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	type rotated struct {
		path string
		mod  time.Time
	}
	var old []rotated
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == live {
			continue
		}
		if !strings.HasPrefix(name, stem+".") || !strings.HasSuffix(name, ext) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		old = append(old, rotated{path: filepath.Join(dir, name), mod: info.ModTime()})
	}

	// Newest first, so the index doubles as the backup count.
	sort.Slice(old, func(i, j int) bool { return old[i].mod.After(old[j].mod) })

	cutoff := time.Time{}
	if w.cfg.MaxAge > 0 {
		cutoff = time.Now().AddDate(0, 0, -w.cfg.MaxAge)
	}

	for i, r := range old {
		overCount := w.cfg.MaxBackups > 0 && i >= w.cfg.MaxBackups
		tooOld := !cutoff.IsZero() && r.mod.Before(cutoff)
		if overCount || tooOld {
			_ = os.Remove(r.path)
		}
	}
}
