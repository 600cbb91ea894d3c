package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/restruct/pkg/restruct/engine"
	"github.com/jamesainslie/restruct/pkg/restruct/plan"
)

// snapshot captures every path and file content under root.
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()

	seen := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		require.NoError(t, err)
		if d.IsDir() {
			seen[path] = ""
			return nil
		}
		seen[path] = readFile(t, path)
		return nil
	})
	require.NoError(t, err)
	return seen
}

func TestPreviewDoesNotMutate(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "old", "util.go"), "package util\n")
	writeFile(t, filepath.Join(root, "main.go"), "import \"old/util\"\n")

	p := buildPlan(t, root, []plan.Operation{
		plan.Move{Source: "old/util.go", Destination: "pkg/util/util.go"},
		plan.TextReplace{
			Files:       []string{"main.go"},
			Pattern:     "old/util",
			Replacement: "pkg/util",
		},
		plan.DeleteEmptyDir{Target: "old"},
	})

	before := snapshot(t, root)

	eng := engine.New(engine.Options{DryRun: true})
	res, err := eng.Apply(context.Background(), p)
	require.NoError(t, err)

	assert.True(t, res.DryRun)
	assert.Equal(t, 0, res.Applied)
	require.Len(t, res.Ops, 3)
	for _, op := range res.Ops {
		assert.Equal(t, engine.StatusPreviewed, op.Status, op.Description)
	}

	assert.Equal(t, before, snapshot(t, root), "dry-run must not touch the tree")
}

func TestPreviewReportsMatches(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "doc.md"), "widget one\nwidget two\n")

	p := buildPlan(t, root, []plan.Operation{
		plan.TextReplace{Files: []string{"doc.md"}, Pattern: "widget", Replacement: "gadget"},
	})

	eng := engine.New(engine.Options{DryRun: true})
	res, err := eng.Apply(context.Background(), p)
	require.NoError(t, err)

	require.Len(t, res.Ops, 1)
	require.Len(t, res.Ops[0].Replacements, 1)
	fr := res.Ops[0].Replacements[0]
	assert.Equal(t, 2, fr.Count)
	require.Len(t, fr.Matches, 2)
	assert.Equal(t, 1, fr.Matches[0].Line)
	assert.Equal(t, 2, fr.Matches[1].Line)

	assert.Equal(t, "widget one\nwidget two\n", readFile(t, filepath.Join(root, "doc.md")))
}

func TestPreviewReadsThroughRename(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "needle in here\n")

	// The replace targets the post-rename path; its content must be read
	// from the pre-rename location on disk.
	p := buildPlan(t, root, []plan.Operation{
		plan.Rename{Source: "a.txt", Destination: "b.txt"},
		plan.TextReplace{Files: []string{"b.txt"}, Pattern: "needle", Replacement: "thread"},
	})

	eng := engine.New(engine.Options{DryRun: true})
	res, err := eng.Apply(context.Background(), p)
	require.NoError(t, err)

	require.Len(t, res.Ops, 2)
	assert.Equal(t, engine.StatusPreviewed, res.Ops[0].Status)
	assert.Equal(t, engine.StatusPreviewed, res.Ops[1].Status)
	require.Len(t, res.Ops[1].Replacements, 1)
	assert.Equal(t, 1, res.Ops[1].Replacements[0].Count)
}

func TestPreviewDeleteDrainedDir(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "old", "only.go"), "package old\n")

	p := buildPlan(t, root, []plan.Operation{
		plan.Move{Source: "old/only.go", Destination: "new/only.go"},
		plan.DeleteEmptyDir{Target: "old"},
	})

	eng := engine.New(engine.Options{DryRun: true})
	res, err := eng.Apply(context.Background(), p)
	require.NoError(t, err)

	require.Len(t, res.Ops, 2)
	assert.Equal(t, engine.StatusPreviewed, res.Ops[1].Status)
	assert.DirExists(t, filepath.Join(root, "old"))
}

func TestPreviewDeleteNonEmptyDirFails(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "old", "only.go"), "package old\n")
	writeFile(t, filepath.Join(root, "old", "stays.go"), "package old\n")

	p := buildPlan(t, root, []plan.Operation{
		plan.Move{Source: "old/only.go", Destination: "new/only.go"},
		plan.DeleteEmptyDir{Target: "old"},
	})

	eng := engine.New(engine.Options{DryRun: true})
	res, err := eng.Apply(context.Background(), p)
	require.NoError(t, err, "preview itself succeeds; the failure is per-op")

	require.Len(t, res.Ops, 2)
	assert.Equal(t, engine.StatusPreviewed, res.Ops[0].Status)
	assert.Equal(t, engine.StatusFailed, res.Ops[1].Status)
	assert.Contains(t, res.Ops[1].Detail, "stays.go")
}

func TestPreviewMissingSourceFails(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "present.txt"), "x")

	p := buildPlan(t, root, []plan.Operation{
		plan.Rename{Source: "present.txt", Destination: "renamed.txt"},
	})

	// The file disappears between plan validation and preview.
	require.NoError(t, os.Remove(filepath.Join(root, "present.txt")))

	eng := engine.New(engine.Options{DryRun: true})
	res, err := eng.Apply(context.Background(), p)
	require.NoError(t, err)

	require.Len(t, res.Ops, 1)
	assert.Equal(t, engine.StatusFailed, res.Ops[0].Status)
	assert.Contains(t, res.Ops[0].Detail, "does not exist")
}

func TestPreviewEvaluatesAllOps(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "keep", "file.txt"), "x")
	writeFile(t, filepath.Join(root, "a.txt"), "token")

	// First op would fail, but the replace after it is still evaluated.
	p := buildPlan(t, root, []plan.Operation{
		plan.DeleteEmptyDir{Target: "keep"},
		plan.TextReplace{Files: []string{"a.txt"}, Pattern: "token", Replacement: "value"},
	})

	eng := engine.New(engine.Options{DryRun: true})
	res, err := eng.Apply(context.Background(), p)
	require.NoError(t, err)

	require.Len(t, res.Ops, 2)
	assert.Equal(t, engine.StatusFailed, res.Ops[0].Status)
	assert.Equal(t, engine.StatusPreviewed, res.Ops[1].Status)
}
