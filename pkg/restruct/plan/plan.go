package plan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jamesainslie/restruct/pkg/restruct/pathres"
)

// ErrPlanInvalid indicates that plan validation found one or more
// precondition violations.
var ErrPlanInvalid = errors.New("plan validation failed")

// Issue is a single precondition violation found during plan validation.
type Issue struct {
	// OpIndex is the zero-based position of the offending operation.
	OpIndex int `json:"op_index"`

	// Op is the operation's one-line description.
	Op string `json:"op"`

	// Path is the offending path, when one is identifiable.
	Path string `json:"path,omitempty"`

	// Reason describes what is wrong.
	Reason string `json:"reason"`
}

// String formats the issue for display.
func (i Issue) String() string {
	if i.Path != "" {
		return fmt.Sprintf("op %d (%s): %s: %s", i.OpIndex, i.Op, i.Path, i.Reason)
	}
	return fmt.Sprintf("op %d (%s): %s", i.OpIndex, i.Op, i.Reason)
}

// ValidationError collects every precondition violation found in a plan.
// Refactoring batches are large; surfacing every problem in one round trip
// beats iterative fail-fix-retry, so validation never stops at the first
// issue.
type ValidationError struct {
	Issues []Issue
}

// Error returns a summary line followed by one line per issue.
func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "plan validation failed with %d issue(s)", len(e.Issues))
	for _, issue := range e.Issues {
		b.WriteString("\n  ")
		b.WriteString(issue.String())
	}
	return b.String()
}

// Unwrap returns ErrPlanInvalid for errors.Is matching.
func (e *ValidationError) Unwrap() error {
	return ErrPlanInvalid
}

// Plan is an ordered, immutable batch of operations bound to a root.
// All paths inside a built Plan are absolute, normalized, and confined to
// the root.
type Plan struct {
	id        string
	root      string
	createdAt time.Time
	ops       []Operation
}

// ID returns the plan's unique identifier.
func (p *Plan) ID() string { return p.id }

// Root returns the root directory all operations are confined to.
func (p *Plan) Root() string { return p.root }

// CreatedAt returns the plan's creation time.
func (p *Plan) CreatedAt() time.Time { return p.createdAt }

// Len returns the number of operations.
func (p *Plan) Len() int { return len(p.ops) }

// Operations returns a copy of the operation sequence.
func (p *Plan) Operations() []Operation {
	ops := make([]Operation, len(p.ops))
	copy(ops, p.ops)
	return ops
}

// Build validates the ordered operations against the resolver's root and
// current filesystem state and returns an immutable Plan.
//
// Validation is projected: each operation is checked against the state the
// preceding operations will have produced, so a TextReplace may target a
// file an earlier Rename creates, and a DeleteEmptyDir may name a
// directory earlier Moves will drain. Emptiness itself is an
// execution-time check only.
//
// On any violation Build returns a *ValidationError listing every problem
// found, and nothing touches the filesystem.
func Build(resolver *pathres.Resolver, ops []Operation) (*Plan, error) {
	var issues []Issue
	resolved := make([]Operation, 0, len(ops))
	proj := newProjection(resolved)

	for i, op := range ops {
		rop, opIssues := resolveOp(resolver, i, op)
		issues = append(issues, opIssues...)
		if rop == nil {
			// Paths unusable; precondition checks would be noise.
			continue
		}

		issues = append(issues, checkPreconditions(proj, i, rop)...)
		resolved = append(resolved, rop)
		proj.ops = resolved
	}

	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}

	return &Plan{
		id:        uuid.NewString(),
		root:      resolver.Root(),
		createdAt: time.Now().UTC(),
		ops:       resolved,
	}, nil
}

// ResolveOnly resolves every operation's paths against the resolver
// without checking execution preconditions. A plan that has already been
// applied no longer satisfies its preconditions (sources are gone,
// destinations exist), so deriving post-condition checks from one goes
// through here rather than Build.
//
// Structural problems (escaping paths, empty patterns) are still
// collected into a *ValidationError.
func ResolveOnly(resolver *pathres.Resolver, ops []Operation) ([]Operation, error) {
	var issues []Issue
	resolved := make([]Operation, 0, len(ops))

	for i, op := range ops {
		rop, opIssues := resolveOp(resolver, i, op)
		issues = append(issues, opIssues...)
		if rop != nil {
			resolved = append(resolved, rop)
		}
	}

	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}
	return resolved, nil
}

// resolveOp resolves every path an operation names, returning the
// operation rewritten with absolute paths. A nil result means at least one
// path failed resolution.
func resolveOp(resolver *pathres.Resolver, idx int, op Operation) (Operation, []Issue) {
	var issues []Issue

	resolve := func(raw string) (string, bool) {
		p, err := resolver.Resolve(raw)
		if err != nil {
			issues = append(issues, Issue{
				OpIndex: idx, Op: op.String(), Path: raw, Reason: err.Error(),
			})
			return "", false
		}
		return p, true
	}

	switch o := op.(type) {
	case Move:
		src, okSrc := resolve(o.Source)
		dst, okDst := resolve(o.Destination)
		if !okSrc || !okDst {
			return nil, issues
		}
		return Move{Source: src, Destination: dst}, issues

	case Rename:
		src, okSrc := resolve(o.Source)
		dst, okDst := resolve(o.Destination)
		if !okSrc || !okDst {
			return nil, issues
		}
		return Rename{Source: src, Destination: dst}, issues

	case TextReplace:
		if o.Pattern == "" {
			issues = append(issues, Issue{
				OpIndex: idx, Op: op.String(), Reason: "pattern must not be empty",
			})
		}
		if len(o.Files) == 0 {
			issues = append(issues, Issue{
				OpIndex: idx, Op: op.String(), Reason: "at least one file is required",
			})
		}
		files := make([]string, 0, len(o.Files))
		ok := len(issues) == 0
		for _, f := range o.Files {
			p, fileOK := resolve(f)
			if !fileOK {
				ok = false
				continue
			}
			files = append(files, p)
		}
		if !ok {
			return nil, issues
		}
		return TextReplace{Files: files, Pattern: o.Pattern, Replacement: o.Replacement}, issues

	case DeleteEmptyDir:
		target, ok := resolve(o.Target)
		if !ok {
			return nil, issues
		}
		return DeleteEmptyDir{Target: target}, issues

	default:
		issues = append(issues, Issue{
			OpIndex: idx, Op: op.String(), Reason: "unsupported operation type",
		})
		return nil, issues
	}
}

// checkPreconditions validates a resolved operation against the projected
// state preceding it.
func checkPreconditions(proj *projection, idx int, op Operation) []Issue {
	var issues []Issue
	add := func(path, reason string) {
		issues = append(issues, Issue{OpIndex: idx, Op: op.String(), Path: path, Reason: reason})
	}

	switch o := op.(type) {
	case Move:
		issues = append(issues, checkRelocation(proj, idx, op, o.Source, o.Destination)...)

	case Rename:
		issues = append(issues, checkRelocation(proj, idx, op, o.Source, o.Destination)...)

	case TextReplace:
		for _, f := range o.Files {
			if !proj.exists(f) {
				add(f, "file does not exist")
			}
		}
		if o.Pattern == o.Replacement {
			add("", "pattern and replacement are identical")
		}

	case DeleteEmptyDir:
		if !proj.exists(o.Target) {
			add(o.Target, "directory does not exist")
		}
	}

	return issues
}

// checkRelocation validates the shared Move/Rename preconditions.
func checkRelocation(proj *projection, idx int, op Operation, src, dst string) []Issue {
	var issues []Issue
	add := func(path, reason string) {
		issues = append(issues, Issue{OpIndex: idx, Op: op.String(), Path: path, Reason: reason})
	}

	if src == dst {
		add(src, "source and destination are the same path")
		return issues
	}
	if strings.HasPrefix(dst, src+string(filepath.Separator)) {
		add(dst, "destination is inside source")
		return issues
	}
	if !proj.exists(src) {
		add(src, "source does not exist")
	}
	if proj.exists(dst) {
		add(dst, "destination already exists")
	}
	return issues
}

// projection answers existence queries against the state the plan's prior
// operations will have produced, falling back to the real filesystem for
// anything the plan has not touched.
type projection struct {
	ops []Operation
}

func newProjection(ops []Operation) *projection {
	return &projection{ops: ops}
}

// exists reports whether path will exist after the recorded operations.
func (p *projection) exists(path string) bool {
	return existsAfter(p.ops, len(p.ops), path)
}

// existsAfter evaluates projected existence of path after the first n
// operations, translating the path backwards through moves and renames.
func existsAfter(ops []Operation, n int, path string) bool {
	if n == 0 {
		_, err := os.Lstat(path)
		return err == nil
	}

	sep := string(filepath.Separator)
	switch o := ops[n-1].(type) {
	case Move:
		return relocatedExists(ops, n, path, o.Source, o.Destination, sep)
	case Rename:
		return relocatedExists(ops, n, path, o.Source, o.Destination, sep)
	case DeleteEmptyDir:
		if path == o.Target || strings.HasPrefix(path, o.Target+sep) {
			return false
		}
		return existsAfter(ops, n-1, path)
	default:
		// TextReplace changes content, never existence.
		return existsAfter(ops, n-1, path)
	}
}

// relocatedExists resolves existence across a single move or rename step.
func relocatedExists(ops []Operation, n int, path, src, dst, sep string) bool {
	switch {
	case path == dst:
		return existsAfter(ops, n-1, src)
	case strings.HasPrefix(path, dst+sep):
		return existsAfter(ops, n-1, src+strings.TrimPrefix(path, dst))
	case path == src || strings.HasPrefix(path, src+sep):
		return false
	default:
		return existsAfter(ops, n-1, path)
	}
}
