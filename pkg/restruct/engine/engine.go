// Package engine applies a validated plan to the filesystem. Operations
// execute strictly in plan order; each is re-validated, shadowed through
// the backup session, then applied with the most history-preserving
// primitive available. The first failure halts execution and restores
// everything shadowed so far, so a failed application is a no-op from the
// caller's perspective.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jamesainslie/restruct/pkg/restruct/backup"
	"github.com/jamesainslie/restruct/pkg/restruct/gitvcs"
	"github.com/jamesainslie/restruct/pkg/restruct/guard"
	"github.com/jamesainslie/restruct/pkg/restruct/logging"
	"github.com/jamesainslie/restruct/pkg/restruct/plan"
)

// logger is the package-level logger for engine operations.
var logger = logging.Get("engine")

// ErrDirectoryNotEmpty indicates a DeleteEmptyDir target held entries.
var ErrDirectoryNotEmpty = errors.New("directory not empty")

// ErrBackupRequired indicates a live run was attempted without a backup
// session.
var ErrBackupRequired = errors.New("backup session required for live execution")

// DirectoryNotEmptyError reports the entries blocking a directory
// deletion. Deletion never proceeds on a non-empty directory; there is no
// force variant.
type DirectoryNotEmptyError struct {
	// Path is the directory that was not empty.
	Path string

	// Entries are the names found, dotfiles included.
	Entries []string
}

// Error returns a description listing the remaining entries.
func (e *DirectoryNotEmptyError) Error() string {
	return fmt.Sprintf("directory %s not empty: %v", e.Path, e.Entries)
}

// Unwrap returns ErrDirectoryNotEmpty for errors.Is matching.
func (e *DirectoryNotEmptyError) Unwrap() error {
	return ErrDirectoryNotEmpty
}

// Status is the outcome of one operation.
type Status string

// Operation outcomes.
const (
	// StatusApplied means the operation mutated the filesystem.
	StatusApplied Status = "applied"

	// StatusPreviewed means the operation was evaluated in dry-run mode.
	StatusPreviewed Status = "previewed"

	// StatusFailed means the operation failed; in live mode everything
	// before it was rolled back.
	StatusFailed Status = "failed"

	// StatusSkipped means the operation was never attempted because an
	// earlier one failed.
	StatusSkipped Status = "skipped"

	// StatusRolledBack means the operation had been applied and was then
	// undone by the rollback of a later failure.
	StatusRolledBack Status = "rolled-back"
)

// OpResult records the outcome of a single operation.
type OpResult struct {
	// Index is the operation's position in the plan.
	Index int `json:"index"`

	// Kind is the operation variant.
	Kind plan.Kind `json:"kind"`

	// Description is the operation's one-line description with paths
	// relative to the plan root.
	Description string `json:"description"`

	// Status is the outcome.
	Status Status `json:"status"`

	// Detail carries the failure cause or supplementary information.
	Detail string `json:"detail,omitempty"`

	// Replacements holds per-file results for TextReplace operations.
	Replacements []FileReplacement `json:"replacements,omitempty"`
}

// Result is the outcome of applying (or previewing) a plan.
type Result struct {
	// PlanID identifies the plan.
	PlanID string `json:"plan_id"`

	// Root is the tree the plan ran against.
	Root string `json:"root"`

	// DryRun reports whether this was a preview.
	DryRun bool `json:"dry_run"`

	// StartedAt is when execution began.
	StartedAt time.Time `json:"started_at"`

	// Elapsed is the total execution time.
	Elapsed time.Duration `json:"elapsed"`

	// Ops are per-operation outcomes, in plan order.
	Ops []OpResult `json:"ops"`

	// Applied counts operations that mutated the filesystem and stayed
	// applied.
	Applied int `json:"applied"`

	// RolledBack reports whether a failure triggered a full restore.
	RolledBack bool `json:"rolled_back"`

	// Warnings carries advisory findings, such as concurrent external
	// writes observed during execution.
	Warnings []string `json:"warnings,omitempty"`
}

// Options configures an Engine.
type Options struct {
	// Backups is the backup session shadowing this execution. Required
	// unless DryRun is set.
	Backups *backup.Session

	// Repo is the detected version-control layer, or nil. When present,
	// tracked sources are moved with the history-preserving primitive.
	Repo *gitvcs.Repo

	// DryRun previews the plan without mutating anything.
	DryRun bool

	// WatchForeign starts a filesystem guard during live execution and
	// reports external writes as warnings.
	WatchForeign bool
}

// Engine applies plans.
type Engine struct {
	opts Options
}

// New creates an Engine with the given options.
func New(opts Options) *Engine {
	return &Engine{opts: opts}
}

// Apply executes the plan. In dry-run mode it validates every operation
// against current filesystem state and produces a preview without
// mutating anything. In live mode the first failure halts execution,
// restores all shadowed state, and is returned as the error alongside the
// partial result.
func (e *Engine) Apply(ctx context.Context, p *plan.Plan) (*Result, error) {
	res := &Result{
		PlanID:    p.ID(),
		Root:      p.Root(),
		DryRun:    e.opts.DryRun,
		StartedAt: time.Now().UTC(),
	}

	if e.opts.DryRun {
		e.preview(p, res)
		res.Elapsed = time.Since(res.StartedAt)
		return res, nil
	}

	if e.opts.Backups == nil {
		return nil, ErrBackupRequired
	}
	if e.opts.Repo != nil {
		e.opts.Backups.SetMover(e.opts.Repo)
	}

	var g *guard.Guard
	if e.opts.WatchForeign {
		var err error
		g, err = guard.Start(p.Root())
		if err != nil {
			logger.Warn("foreign-write guard unavailable", "error", err)
			g = nil
		}
	}

	err := e.applyLive(ctx, p, res, g)

	if g != nil {
		for _, ev := range g.Stop() {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("external %s on %s during execution", ev.Op, ev.Path))
		}
	}

	res.Elapsed = time.Since(res.StartedAt)
	return res, err
}

// applyLive runs the plan's operations for real.
func (e *Engine) applyLive(ctx context.Context, p *plan.Plan, res *Result, g *guard.Guard) error {
	ops := p.Operations()
	for i, op := range ops {
		desc := describe(p.Root(), op)

		if err := ctx.Err(); err != nil {
			return e.fail(res, ops, i, desc, op, fmt.Errorf("cancelled before operation: %w", err))
		}

		if g != nil {
			g.Allow(touchedPaths(op)...)
		}

		logger.Debug("applying operation", "index", i, "op", desc)
		opRes, err := e.applyOne(ctx, op)
		if err != nil {
			return e.fail(res, ops, i, desc, op, err)
		}

		opRes.Index = i
		opRes.Kind = op.Kind()
		opRes.Description = desc
		opRes.Status = StatusApplied
		res.Ops = append(res.Ops, opRes)
		res.Applied++
	}
	return nil
}

// fail records the failed operation, marks the rest skipped, and restores
// every shadowed change in reverse order.
func (e *Engine) fail(res *Result, ops []plan.Operation, idx int, desc string, op plan.Operation, cause error) error {
	logger.Error("operation failed, rolling back", "index", idx, "op", desc, "error", cause)

	res.Ops = append(res.Ops, OpResult{
		Index:       idx,
		Kind:        op.Kind(),
		Description: desc,
		Status:      StatusFailed,
		Detail:      cause.Error(),
	})
	for j := idx + 1; j < len(ops); j++ {
		res.Ops = append(res.Ops, OpResult{
			Index:       j,
			Kind:        ops[j].Kind(),
			Description: describe(res.Root, ops[j]),
			Status:      StatusSkipped,
		})
	}

	if err := e.opts.Backups.Restore(); err != nil {
		// A failed restore is the one state this engine cannot make safe;
		// the backup copies remain on disk for manual recovery.
		logger.Error("rollback incomplete", "backup_dir", e.opts.Backups.Dir(), "error", err)
		return fmt.Errorf("op %d (%s): %w (rollback incomplete: %v; backups kept at %s)",
			idx, desc, cause, err, e.opts.Backups.Dir())
	}

	for i := range res.Ops {
		if res.Ops[i].Status == StatusApplied {
			res.Ops[i].Status = StatusRolledBack
		}
	}
	res.Applied = 0
	res.RolledBack = true
	return fmt.Errorf("op %d (%s): %w", idx, desc, cause)
}

// applyOne re-validates, shadows, and applies a single operation.
func (e *Engine) applyOne(ctx context.Context, op plan.Operation) (OpResult, error) {
	switch o := op.(type) {
	case plan.Move:
		return OpResult{}, e.relocate(ctx, o.Source, o.Destination)
	case plan.Rename:
		return OpResult{}, e.relocate(ctx, o.Source, o.Destination)
	case plan.TextReplace:
		return e.replaceAll(o)
	case plan.DeleteEmptyDir:
		return OpResult{}, e.deleteEmptyDir(o.Target)
	default:
		return OpResult{}, fmt.Errorf("unsupported operation %T", op)
	}
}

// relocate applies a Move or Rename: precondition re-check, relocation
// shadow, then the most history-preserving move available.
func (e *Engine) relocate(ctx context.Context, src, dst string) error {
	if _, err := os.Lstat(src); err != nil {
		return fmt.Errorf("source %s: %w", src, err)
	}
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("destination %s already exists", dst)
	}

	tracked := e.opts.Repo != nil && e.opts.Repo.Tracked(ctx, src)
	if _, err := e.opts.Backups.ShadowRelocation(src, dst, tracked); err != nil {
		return err
	}

	if tracked {
		return e.opts.Repo.Move(ctx, src, dst)
	}
	return plainMove(src, dst)
}

// plainMove renames src to dst, falling back to copy-then-delete when the
// rename crosses filesystems.
func plainMove(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating destination parent: %w", err)
	}

	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) {
		return fmt.Errorf("moving %s -> %s: %w", src, dst, err)
	}

	// Cross-device rename: copy then delete.
	if err := backup.CopyPath(src, dst); err != nil {
		return fmt.Errorf("copying %s -> %s: %w", src, dst, err)
	}
	if err := os.RemoveAll(src); err != nil {
		return fmt.Errorf("removing %s after copy: %w", src, err)
	}
	return nil
}

// replaceAll applies a TextReplace to each target file.
func (e *Engine) replaceAll(op plan.TextReplace) (OpResult, error) {
	var res OpResult
	for _, file := range op.Files {
		content, err := os.ReadFile(file)
		if err != nil {
			return OpResult{}, fmt.Errorf("reading %s: %w", file, err)
		}

		updated, matches := replaceLiteral(string(content), op.Pattern, op.Replacement)
		fr := FileReplacement{File: file, Count: len(matches), Matches: matches}
		res.Replacements = append(res.Replacements, fr)

		// Zero occurrences is a success; nothing to shadow or write.
		if len(matches) == 0 {
			continue
		}

		if _, err := e.opts.Backups.Shadow(file); err != nil {
			return OpResult{}, err
		}
		if err := rewriteFile(file, updated); err != nil {
			return OpResult{}, err
		}
	}
	return res, nil
}

// deleteEmptyDir removes target only if it holds zero entries, dotfiles
// included, counted immediately before deletion.
func (e *Engine) deleteEmptyDir(target string) error {
	entries, err := os.ReadDir(target)
	if err != nil {
		return fmt.Errorf("reading %s: %w", target, err)
	}
	if len(entries) > 0 {
		names := make([]string, len(entries))
		for i, entry := range entries {
			names[i] = entry.Name()
		}
		return &DirectoryNotEmptyError{Path: target, Entries: names}
	}

	if _, err := e.opts.Backups.Shadow(target); err != nil {
		return err
	}
	if err := os.Remove(target); err != nil {
		return fmt.Errorf("removing %s: %w", target, err)
	}
	return nil
}

// describe renders an operation with paths relative to root for display.
func describe(root string, op plan.Operation) string {
	rel := func(p string) string {
		r, err := filepath.Rel(root, p)
		if err != nil {
			return p
		}
		return r
	}

	switch o := op.(type) {
	case plan.Move:
		return fmt.Sprintf("move %s -> %s", rel(o.Source), rel(o.Destination))
	case plan.Rename:
		return fmt.Sprintf("rename %s -> %s", rel(o.Source), rel(o.Destination))
	case plan.TextReplace:
		return fmt.Sprintf("replace %q -> %q in %d file(s)", o.Pattern, o.Replacement, len(o.Files))
	case plan.DeleteEmptyDir:
		return fmt.Sprintf("delete empty dir %s", rel(o.Target))
	default:
		return op.String()
	}
}

// touchedPaths lists every path an operation mutates, for the guard's
// allowlist.
func touchedPaths(op plan.Operation) []string {
	switch o := op.(type) {
	case plan.Move:
		return []string{o.Source, o.Destination}
	case plan.Rename:
		return []string{o.Source, o.Destination}
	case plan.TextReplace:
		return o.Files
	case plan.DeleteEmptyDir:
		return []string{o.Target}
	default:
		return nil
	}
}
