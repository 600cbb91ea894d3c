// Package backup shadows filesystem state before destructive mutation and
// restores it on failure. A Session is scoped to a single plan execution
// and exclusively owned by it; records are consulted only on rollback and
// the whole session is purged once the plan is verified successful.
//
// Shadowing is a precondition for danger: if a shadow cannot be taken the
// engine aborts before touching the path at all.
package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/google/uuid"
)

// ErrShadowFailed indicates that a path could not be shadowed.
var ErrShadowFailed = errors.New("backup shadow failed")

// ErrInsufficientSpace indicates the backup store lacks room for a shadow.
var ErrInsufficientSpace = errors.New("insufficient space in backup store")

// Record maps an original path to its saved state for one mutation step.
type Record struct {
	// Original is the path that was about to be mutated or deleted.
	Original string `json:"original"`

	// Copy is the saved copy inside the session directory. Empty for
	// relocation records, which restore by the inverse rename instead of
	// from a copy.
	Copy string `json:"copy,omitempty"`

	// SHA256 is the content checksum of a shadowed regular file.
	SHA256 string `json:"sha256,omitempty"`

	// Created is the path the mutation creates. On restore it is removed
	// (or renamed back to Original for relocations).
	Created string `json:"created,omitempty"`

	// IsDir records whether Original was a directory.
	IsDir bool `json:"is_dir,omitempty"`

	// ViaVCS records that the relocation was applied with the version
	// control primitive. Restoring with a plain rename would leave the
	// forward rename staged in the VCS index, so the restore inverts it
	// with the same primitive.
	ViaVCS bool `json:"via_vcs,omitempty"`

	// Time is when the shadow was taken.
	Time time.Time `json:"time"`
}

// relocation reports whether the record restores by inverse rename.
func (r Record) relocation() bool {
	return r.Copy == "" && r.Created != ""
}

// RelocationMover inverts a relocation with the same external tool that
// applied it. Implemented by the version control layer.
type RelocationMover interface {
	Move(ctx context.Context, source, destination string) error
}

// Session is the backup store for one plan execution.
type Session struct {
	dir     string
	seq     int
	records []Record
	mover   RelocationMover
}

// SetMover supplies the tool used to invert ViaVCS relocations on
// restore. Without one those records fall back to a plain rename.
func (s *Session) SetMover(m RelocationMover) {
	s.mover = m
}

// DefaultDir returns the base directory for backup sessions,
// $XDG_STATE_HOME/restruct/backups.
func DefaultDir() string {
	return filepath.Join(xdg.StateHome, "restruct", "backups")
}

// NewSession creates a backup session under baseDir. An empty baseDir uses
// DefaultDir.
func NewSession(baseDir string) (*Session, error) {
	if baseDir == "" {
		baseDir = DefaultDir()
	}
	dir := filepath.Join(baseDir, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating backup session: %w", err)
	}
	return &Session{dir: dir}, nil
}

// Dir returns the session's directory.
func (s *Session) Dir() string {
	return s.dir
}

// Records returns a copy of the records taken so far, oldest first.
func (s *Session) Records() []Record {
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Shadow copies path into the session store before it is mutated or
// deleted. Files are copied with a SHA-256 checksum; directories are
// copied recursively. The free space of the backup store is checked
// against the shadow size first, so a full disk fails here rather than
// mid-copy.
func (s *Session) Shadow(path string) (Record, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %s: %v", ErrShadowFailed, path, err)
	}

	need, err := treeSize(path, info)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %s: %v", ErrShadowFailed, path, err)
	}
	if err := checkSpace(s.dir, need); err != nil {
		return Record{}, fmt.Errorf("%w: %s: %v", ErrShadowFailed, path, err)
	}

	copyPath := filepath.Join(s.dir, strconv.Itoa(s.seq)+"-"+filepath.Base(path))
	s.seq++

	rec := Record{
		Original: path,
		Copy:     copyPath,
		IsDir:    info.IsDir(),
		Time:     time.Now().UTC(),
	}

	if info.IsDir() {
		if err := CopyPath(path, copyPath); err != nil {
			return Record{}, fmt.Errorf("%w: %s: %v", ErrShadowFailed, path, err)
		}
	} else {
		sum, err := copyFileChecksum(path, copyPath, info.Mode())
		if err != nil {
			return Record{}, fmt.Errorf("%w: %s: %v", ErrShadowFailed, path, err)
		}
		rec.SHA256 = sum
	}

	s.records = append(s.records, rec)
	return rec, nil
}

// ShadowRelocation records that src is about to be relocated to dst.
// No copy is taken: a relocation restores exactly by the inverse move,
// and copying whole trees would make large refactors cost twice their
// size in the backup store. viaVCS marks relocations the engine will
// apply with the version control primitive.
func (s *Session) ShadowRelocation(src, dst string, viaVCS bool) (Record, error) {
	if _, err := os.Lstat(src); err != nil {
		return Record{}, fmt.Errorf("%w: %s: %v", ErrShadowFailed, src, err)
	}

	rec := Record{
		Original: src,
		Created:  dst,
		ViaVCS:   viaVCS,
		Time:     time.Now().UTC(),
	}
	s.records = append(s.records, rec)
	return rec, nil
}

// Restore reverses every shadowed change in reverse chronological order,
// so partially completed multi-step operations unwind correctly. It keeps
// going past individual failures and reports them joined, since a partial
// restore is still better than none.
func (s *Session) Restore() error {
	var errs []error
	for i := len(s.records) - 1; i >= 0; i-- {
		if err := s.restoreRecord(s.records[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Purge deletes the session directory. Called once the owning plan is
// confirmed successful, or after a completed restore.
func (s *Session) Purge() error {
	s.records = nil
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("purging backup session: %w", err)
	}
	return nil
}

// restoreRecord reverses a single record.
func (s *Session) restoreRecord(rec Record) error {
	if rec.relocation() {
		return s.restoreRelocation(rec)
	}

	// Copy-backed record: put the saved state back at Original.
	if err := os.MkdirAll(filepath.Dir(rec.Original), 0o755); err != nil {
		return fmt.Errorf("restoring %s: %w", rec.Original, err)
	}
	if rec.IsDir {
		if err := os.RemoveAll(rec.Original); err != nil {
			return fmt.Errorf("restoring %s: %w", rec.Original, err)
		}
		if err := CopyPath(rec.Copy, rec.Original); err != nil {
			return fmt.Errorf("restoring %s: %w", rec.Original, err)
		}
		return nil
	}

	info, err := os.Stat(rec.Copy)
	if err != nil {
		return fmt.Errorf("restoring %s: %w", rec.Original, err)
	}
	if _, err := copyFileChecksum(rec.Copy, rec.Original, info.Mode()); err != nil {
		return fmt.Errorf("restoring %s: %w", rec.Original, err)
	}
	return nil
}

// restoreRelocation undoes a move or rename. If the source survived (the
// relocation failed partway through a copy fallback) any destination
// debris is removed; otherwise the destination is moved back. A ViaVCS
// relocation is inverted with the same primitive so the index does not
// keep a staged rename the tree no longer has.
func (s *Session) restoreRelocation(rec Record) error {
	_, srcErr := os.Lstat(rec.Original)
	if srcErr == nil {
		if err := os.RemoveAll(rec.Created); err != nil {
			return fmt.Errorf("removing partial destination %s: %w", rec.Created, err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(rec.Original), 0o755); err != nil {
		return fmt.Errorf("restoring %s: %w", rec.Original, err)
	}

	if rec.ViaVCS && s.mover != nil {
		if err := s.mover.Move(context.Background(), rec.Created, rec.Original); err == nil {
			return nil
		}
		// Inverse move failed; a plain rename at least restores the tree.
	}

	if err := os.Rename(rec.Created, rec.Original); err != nil {
		return fmt.Errorf("restoring %s: %w", rec.Original, err)
	}
	return nil
}

// CleanOrphans removes session directories under baseDir older than
// maxAge. Backups never survive a plan execution as pending state, so
// anything left behind by an interrupted process is orphaned and safe to
// delete. It returns the removed session directory names.
func CleanOrphans(baseDir string, maxAge time.Duration) ([]string, error) {
	if baseDir == "" {
		baseDir = DefaultDir()
	}

	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading backup store: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	var removed []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(baseDir, entry.Name())); err != nil {
			return removed, fmt.Errorf("removing orphaned session %s: %w", entry.Name(), err)
		}
		removed = append(removed, entry.Name())
	}
	sort.Strings(removed)
	return removed, nil
}

// copyFileChecksum copies src to dst, returning the SHA-256 of the
// content. The copy is written to a temp file and renamed into place.
func copyFileChecksum(src, dst string, mode os.FileMode) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return "", err
	}

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(out, h), in); err != nil {
		out.Close()
		_ = os.Remove(tmp)
		return "", err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CopyPath recursively copies src (a file or a directory tree) to dst.
// Regular files are copied through a temp file and renamed into place;
// symlinks are preserved as links, not followed. The engine's cross-device
// move fallback shares this copier.
func CopyPath(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(path, src)
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			// Symlinks are preserved as links, not followed.
			if d.Type()&os.ModeSymlink != 0 {
				link, err := os.Readlink(path)
				if err != nil {
					return err
				}
				return os.Symlink(link, target)
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		_, err = copyFileChecksum(path, target, info.Mode())
		return err
	})
}

// treeSize returns the byte size of a file or directory tree.
func treeSize(path string, info os.FileInfo) (int64, error) {
	if !info.IsDir() {
		return info.Size(), nil
	}

	var total int64
	err := filepath.WalkDir(path, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			fi, err := d.Info()
			if err != nil {
				return err
			}
			total += fi.Size()
		}
		return nil
	})
	return total, err
}
