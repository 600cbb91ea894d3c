package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jamesainslie/restruct/pkg/restruct/plan"
)

// relocationPair maps a projected destination back to the on-disk path
// that would feed it, letting later previewed operations read content
// from where it actually lives today.
type relocationPair struct {
	projDst string
	diskSrc string
}

// previewState tracks the virtual effect of previewed operations.
type previewState struct {
	pairs   []relocationPair
	removed map[string]bool
}

// disk translates a projected path to its current on-disk location.
func (s *previewState) disk(path string) string {
	sep := string(filepath.Separator)
	for i := len(s.pairs) - 1; i >= 0; i-- {
		p := s.pairs[i]
		if path == p.projDst {
			return p.diskSrc
		}
		if strings.HasPrefix(path, p.projDst+sep) {
			return p.diskSrc + strings.TrimPrefix(path, p.projDst)
		}
	}
	return path
}

// preview evaluates every operation against current filesystem state and
// fills res with a non-mutating preview. All operations are evaluated
// even after one would fail, matching the planner's collect-everything
// philosophy.
func (e *Engine) preview(p *plan.Plan, res *Result) {
	state := &previewState{removed: make(map[string]bool)}

	for i, op := range p.Operations() {
		opRes := OpResult{
			Index:       i,
			Kind:        op.Kind(),
			Description: describe(p.Root(), op),
			Status:      StatusPreviewed,
		}

		switch o := op.(type) {
		case plan.Move:
			previewRelocation(state, o.Source, o.Destination, &opRes)
		case plan.Rename:
			previewRelocation(state, o.Source, o.Destination, &opRes)
		case plan.TextReplace:
			previewReplace(state, o, &opRes)
		case plan.DeleteEmptyDir:
			previewDelete(state, o.Target, &opRes)
		}

		res.Ops = append(res.Ops, opRes)
	}
}

// previewRelocation validates a Move or Rename against the disk and
// records its virtual effect.
func previewRelocation(state *previewState, src, dst string, opRes *OpResult) {
	diskSrc := state.disk(src)
	if state.removed[diskSrc] {
		opRes.Status = StatusFailed
		opRes.Detail = "source would no longer exist"
		return
	}
	if _, err := os.Lstat(diskSrc); err != nil {
		opRes.Status = StatusFailed
		opRes.Detail = fmt.Sprintf("source does not exist: %s", diskSrc)
		return
	}

	state.pairs = append(state.pairs, relocationPair{projDst: dst, diskSrc: diskSrc})
	state.removed[diskSrc] = true
}

// previewReplace locates would-be substitutions without writing anything.
func previewReplace(state *previewState, op plan.TextReplace, opRes *OpResult) {
	for _, file := range op.Files {
		diskFile := state.disk(file)
		content, err := os.ReadFile(diskFile)
		if err != nil {
			opRes.Status = StatusFailed
			opRes.Detail = fmt.Sprintf("reading %s: %v", diskFile, err)
			return
		}
		matches := findMatches(string(content), op.Pattern)
		opRes.Replacements = append(opRes.Replacements, FileReplacement{
			File:    file,
			Count:   len(matches),
			Matches: matches,
		})
	}
}

// previewDelete checks whether the directory would be empty once the
// previewed relocations have drained it.
func previewDelete(state *previewState, target string, opRes *OpResult) {
	diskDir := state.disk(target)
	entries, err := os.ReadDir(diskDir)
	if err != nil {
		opRes.Status = StatusFailed
		opRes.Detail = fmt.Sprintf("reading %s: %v", diskDir, err)
		return
	}

	var remaining []string
	for _, entry := range entries {
		if !state.removed[filepath.Join(diskDir, entry.Name())] {
			remaining = append(remaining, entry.Name())
		}
	}
	if len(remaining) > 0 {
		sort.Strings(remaining)
		opRes.Status = StatusFailed
		opRes.Detail = (&DirectoryNotEmptyError{Path: diskDir, Entries: remaining}).Error()
		return
	}

	state.removed[diskDir] = true
}
