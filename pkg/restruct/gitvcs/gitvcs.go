// Package gitvcs provides history-preserving move support for trees under
// git. The engine prefers `git mv` when the tree is a repository and the
// source is tracked, so the version-control layer's rename-similarity
// detection sees a clean relocation. Everything else falls back to a plain
// rename handled by the caller.
//
// Git's internals are consumed, never reimplemented: detection is a
// directory probe plus `git ls-files`, and the move is the porcelain
// command itself.
package gitvcs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// commandTimeout is the maximum time to wait for a git command.
const commandTimeout = 30 * time.Second

// Repo represents a detected git working tree.
type Repo struct {
	workTree string
	gitPath  string
}

// Detect walks upward from dir looking for a .git entry and a usable git
// binary. It returns (nil, nil) when the tree is not under version control
// or git is not installed; that is a fallback condition, not an error.
func Detect(dir string) (*Repo, error) {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return nil, nil
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", dir, err)
	}

	for current := abs; ; current = filepath.Dir(current) {
		// .git may be a directory or, in worktrees, a file.
		if _, err := os.Stat(filepath.Join(current, ".git")); err == nil {
			return &Repo{workTree: current, gitPath: gitPath}, nil
		}
		if filepath.Dir(current) == current {
			return nil, nil
		}
	}
}

// WorkTree returns the repository's top-level directory.
func (r *Repo) WorkTree() string {
	return r.workTree
}

// Tracked reports whether path is tracked by the repository. Untracked
// paths cannot be moved with `git mv` and take the plain-rename path.
func (r *Repo) Tracked(ctx context.Context, path string) bool {
	rel, err := filepath.Rel(r.workTree, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.gitPath, "-C", r.workTree, "ls-files", "--error-unmatch", "--", rel)
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd.Run() == nil
}

// Move relocates source to destination with `git mv`, preserving the
// history linkage git infers for renames. Parent directories of the
// destination are created first since git mv does not.
func (r *Repo) Move(ctx context.Context, source, destination string) error {
	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return fmt.Errorf("creating destination parent: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.gitPath, "-C", r.workTree, "mv", "--", source, destination)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return fmt.Errorf("git mv %s -> %s: %s", source, destination, msg)
	}
	return nil
}
