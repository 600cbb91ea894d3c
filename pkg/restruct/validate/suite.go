package validate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/jamesainslie/restruct/pkg/restruct/logging"
	"github.com/jamesainslie/restruct/pkg/restruct/plan"
	"github.com/jamesainslie/restruct/pkg/restruct/scancache"
)

// logger is the package-level logger for validation.
var logger = logging.Get("validate")

// Options configures a Suite.
type Options struct {
	// Root is the tree to validate. Required, must be a directory.
	Root string

	// Excludes are doublestar globs skipped by scanning checks.
	// Nil uses DefaultExcludes.
	Excludes []string

	// Cache is an optional scan cache; nil scans uncached.
	Cache *scancache.Cache

	// Workers bounds concurrent check execution. Zero or negative uses
	// the CPU count.
	Workers int
}

// Suite runs checks against a root. Scanning checks share a single tree
// scan built lazily on first use.
type Suite struct {
	opts Options

	scanOnce sync.Once
	scan     *treeScan
	scanErr  error
}

// New creates a Suite for the given options.
func New(opts Options) (*Suite, error) {
	info, err := os.Stat(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("validation root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("validation root %s: not a directory", opts.Root)
	}

	if opts.Excludes == nil {
		opts.Excludes = DefaultExcludes
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Suite{opts: opts}, nil
}

// Run executes every check and returns a report with exactly one result
// per check, in submission order. Checks run concurrently on a bounded
// worker pool; completion order never affects result order. All checks
// run regardless of earlier failures.
func (s *Suite) Run(ctx context.Context, checks []Check) (*Report, error) {
	results := make([]CheckResult, len(checks))

	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := s.opts.Workers
	if workers > len(checks) && len(checks) > 0 {
		workers = len(checks)
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = s.runCheck(checks[i])
			}
		}()
	}

feed:
	for i := range checks {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &Report{Results: results, Passed: true, Total: len(checks)}
	for _, r := range results {
		if r.Passed {
			report.PassCount++
		} else {
			report.Passed = false
		}
	}

	logger.Info("validation finished",
		"passed", report.PassCount, "total", report.Total, "ok", report.Passed)
	return report, nil
}

// runCheck executes one check.
func (s *Suite) runCheck(c Check) CheckResult {
	res := CheckResult{Description: c.Describe()}

	switch chk := c.(type) {
	case MustExist:
		if _, err := os.Lstat(s.abs(chk.Path)); err != nil {
			res.Detail = fmt.Sprintf("%s does not exist", chk.Path)
			return res
		}
	case MustNotExist:
		if _, err := os.Lstat(s.abs(chk.Path)); err == nil {
			res.Detail = fmt.Sprintf("%s still exists", chk.Path)
			return res
		}
	case NoRemainingReferences:
		res.Detail = s.remainingReferences(chk.Pattern)
		if res.Detail != "" {
			return res
		}
	case LinksResolve:
		res.Detail = s.brokenLinks()
		if res.Detail != "" {
			return res
		}
	}

	res.Passed = true
	return res
}

// abs resolves a check path against the suite root.
func (s *Suite) abs(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.opts.Root, path)
}

// tree returns the shared scan, building it on first use.
func (s *Suite) tree() (*treeScan, error) {
	s.scanOnce.Do(func() {
		s.scan, s.scanErr = scanTree(s.opts.Root, s.opts.Excludes, s.opts.Cache)
	})
	return s.scan, s.scanErr
}

// remainingReferences scans text files for the literal pattern and
// returns the findings, one per line. Empty means none remain.
func (s *Suite) remainingReferences(pattern string) string {
	scan, err := s.tree()
	if err != nil {
		return fmt.Sprintf("scan failed: %v", err)
	}

	var findings []string
	for _, f := range scan.textFiles() {
		content, err := os.ReadFile(f.abs)
		if err != nil {
			findings = append(findings, fmt.Sprintf("%s: unreadable: %v", f.rel, err))
			continue
		}
		for _, ref := range findReferences(string(content), pattern) {
			findings = append(findings, fmt.Sprintf("%s: %s", f.rel, ref))
		}
	}
	return strings.Join(findings, "\n")
}

// brokenLinks resolves every relative markdown link against its file's
// directory and returns the ones that do not land on an existing path
// inside the root.
func (s *Suite) brokenLinks() string {
	scan, err := s.tree()
	if err != nil {
		return fmt.Sprintf("scan failed: %v", err)
	}

	sep := string(filepath.Separator)
	var findings []string
	for _, f := range scan.files {
		for _, link := range f.links {
			target := link
			if strings.HasPrefix(target, "/") {
				target = filepath.Join(s.opts.Root, filepath.FromSlash(target))
			} else {
				target = filepath.Join(filepath.Dir(f.abs), filepath.FromSlash(target))
			}
			target = filepath.Clean(target)

			if target != s.opts.Root && !strings.HasPrefix(target, s.opts.Root+sep) {
				findings = append(findings, fmt.Sprintf("%s: link %s leaves the root", f.rel, link))
				continue
			}
			if _, err := os.Lstat(target); err != nil {
				findings = append(findings, fmt.Sprintf("%s: broken link %s", f.rel, link))
			}
		}
	}
	return strings.Join(findings, "\n")
}

// FromPlan derives post-condition checks from a plan's operations.
func FromPlan(p *plan.Plan) []Check {
	return FromOps(p.Operations())
}

// FromOps derives post-condition checks from resolved operations:
// relocations assert the source is gone and the destination exists,
// deletions assert the target is gone, and text replacements assert no
// references to the pattern remain unless the replacement still contains
// it. Duplicate checks are emitted once.
//
// The operations need only resolved paths, not satisfied preconditions,
// so checks can be derived for a plan that already ran.
func FromOps(ops []plan.Operation) []Check {
	var checks []Check
	seen := make(map[string]bool)

	add := func(c Check) {
		key := c.Describe()
		if !seen[key] {
			seen[key] = true
			checks = append(checks, c)
		}
	}

	for _, op := range ops {
		switch o := op.(type) {
		case plan.Move:
			add(MustNotExist{Path: o.Source})
			add(MustExist{Path: o.Destination})
		case plan.Rename:
			add(MustNotExist{Path: o.Source})
			add(MustExist{Path: o.Destination})
		case plan.TextReplace:
			if !strings.Contains(o.Replacement, o.Pattern) {
				add(NoRemainingReferences{Pattern: o.Pattern})
			}
		case plan.DeleteEmptyDir:
			add(MustNotExist{Path: o.Target})
		}
	}
	return checks
}
