// Package pathres resolves and validates filesystem paths against a
// declared root. Every path handed to the planner or engine passes through
// a Resolver, so escape attempts are rejected at construction time rather
// than when the path is used.
package pathres

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrEscapesRoot indicates that a path resolves outside the declared root.
var ErrEscapesRoot = errors.New("path escapes root")

// ErrNotDirectory indicates that the root path is not a directory.
var ErrNotDirectory = errors.New("root is not a directory")

// EscapeError reports a path that resolves outside the root.
// It wraps ErrEscapesRoot so callers can match with errors.Is.
type EscapeError struct {
	// Raw is the path as supplied by the caller.
	Raw string

	// Resolved is the absolute path after normalization and symlink
	// evaluation.
	Resolved string

	// Root is the declared root the path must stay within.
	Root string
}

// Error returns a human-readable description of the escape.
func (e *EscapeError) Error() string {
	return fmt.Sprintf("path %q resolves to %q outside root %q", e.Raw, e.Resolved, e.Root)
}

// Unwrap returns ErrEscapesRoot for errors.Is matching.
func (e *EscapeError) Unwrap() error {
	return ErrEscapesRoot
}

// Resolver validates paths against a single root directory.
// The root is resolved through symlinks once at construction; individual
// paths are re-resolved on every call since filesystem state may change
// between planning and execution.
type Resolver struct {
	root string
}

// NewResolver creates a Resolver for the given root directory.
// The root must exist and be a directory. Symlinks in the root itself are
// resolved so that containment checks compare real locations.
func NewResolver(root string) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root %q: %w", root, err)
	}

	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolving root %q: %w", root, err)
	}

	info, err := os.Stat(real)
	if err != nil {
		return nil, fmt.Errorf("resolving root %q: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %q: %w", root, ErrNotDirectory)
	}

	return &Resolver{root: real}, nil
}

// Root returns the resolved absolute root directory.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve normalizes raw into an absolute path and verifies it stays inside
// the root. Relative paths are interpreted relative to the root. The check
// follows symlinks on the deepest existing ancestor, so a symlink pointing
// outside the root is rejected even when the textual path looks contained.
//
// The resolved path itself need not exist; destinations of pending
// operations are validated the same way as sources.
func (r *Resolver) Resolve(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("empty path: %w", ErrEscapesRoot)
	}

	path := raw
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.root, path)
	}
	path = filepath.Clean(path)

	// Lexical containment first. A cleaned path with a ".." escape fails
	// here before any filesystem access.
	if !r.contains(path) {
		return "", &EscapeError{Raw: raw, Resolved: path, Root: r.root}
	}

	// Resolve symlinks on the deepest existing ancestor and re-apply the
	// remaining (not yet existing) suffix. This defeats escapes routed
	// through a symlinked intermediate directory.
	real, err := resolveExistingPrefix(path)
	if err != nil {
		return "", fmt.Errorf("resolving %q: %w", raw, err)
	}
	if !r.contains(real) {
		return "", &EscapeError{Raw: raw, Resolved: real, Root: r.root}
	}

	return real, nil
}

// ResolveAll resolves every path in raws, collecting all failures rather
// than stopping at the first. The returned slice is positionally aligned
// with raws; entries that failed resolution are empty strings.
func (r *Resolver) ResolveAll(raws []string) ([]string, []error) {
	resolved := make([]string, len(raws))
	var errs []error
	for i, raw := range raws {
		p, err := r.Resolve(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		resolved[i] = p
	}
	return resolved, errs
}

// Rel returns path relative to the root for display purposes.
// If path is not under the root it is returned unchanged.
func (r *Resolver) Rel(path string) string {
	rel, err := filepath.Rel(r.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

// contains reports whether path is the root or lies beneath it.
func (r *Resolver) contains(path string) bool {
	if path == r.root {
		return true
	}
	return strings.HasPrefix(path, r.root+string(filepath.Separator))
}

// resolveExistingPrefix resolves symlinks for the longest existing prefix
// of path and joins the non-existing remainder back on.
func resolveExistingPrefix(path string) (string, error) {
	prefix := path
	var suffix []string

	for {
		real, err := filepath.EvalSymlinks(prefix)
		if err == nil {
			if len(suffix) == 0 {
				return real, nil
			}
			// Suffix components were collected leaf-first.
			for i, j := 0, len(suffix)-1; i < j; i, j = i+1, j-1 {
				suffix[i], suffix[j] = suffix[j], suffix[i]
			}
			return filepath.Join(append([]string{real}, suffix...)...), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}

		parent := filepath.Dir(prefix)
		if parent == prefix {
			// Walked past the filesystem root without finding an
			// existing ancestor.
			return path, nil
		}
		suffix = append(suffix, filepath.Base(prefix))
		prefix = parent
	}
}
