package validate_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/restruct/pkg/restruct/pathres"
	"github.com/jamesainslie/restruct/pkg/restruct/plan"
	"github.com/jamesainslie/restruct/pkg/restruct/scancache"
	"github.com/jamesainslie/restruct/pkg/restruct/validate"
)

func newSuite(t *testing.T, root string) *validate.Suite {
	t.Helper()

	suite, err := validate.New(validate.Options{Root: root})
	require.NoError(t, err)
	return suite
}

func run(t *testing.T, suite *validate.Suite, checks []validate.Check) *validate.Report {
	t.Helper()

	report, err := suite.Run(context.Background(), checks)
	require.NoError(t, err)
	return report
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestExistenceChecks(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "present.md"), "hello")

	suite := newSuite(t, root)
	report := run(t, suite, []validate.Check{
		validate.MustExist{Path: "present.md"},
		validate.MustExist{Path: "absent.md"},
		validate.MustNotExist{Path: "absent.md"},
		validate.MustNotExist{Path: "present.md"},
	})

	require.Len(t, report.Results, 4)
	assert.True(t, report.Results[0].Passed)
	assert.False(t, report.Results[1].Passed)
	assert.Contains(t, report.Results[1].Detail, "absent.md")
	assert.True(t, report.Results[2].Passed)
	assert.False(t, report.Results[3].Passed)
	assert.Contains(t, report.Results[3].Detail, "still exists")

	assert.False(t, report.Passed)
	assert.Equal(t, 2, report.PassCount)
	assert.Equal(t, 4, report.Total)
}

func TestReportAlwaysHasOneResultPerCheck(t *testing.T) {
	root := t.TempDir()

	// Every check fails; the report must still carry all of them.
	checks := []validate.Check{
		validate.MustExist{Path: "a"},
		validate.MustExist{Path: "b"},
		validate.MustExist{Path: "c"},
		validate.MustExist{Path: "d"},
		validate.MustExist{Path: "e"},
	}

	report := run(t, newSuite(t, root), checks)
	require.Len(t, report.Results, len(checks))
	assert.Equal(t, 0, report.PassCount)
	assert.Equal(t, len(checks), report.Total)
	for i, res := range report.Results {
		assert.Equal(t, checks[i].Describe(), res.Description, "results must keep check order")
		assert.False(t, res.Passed)
	}
}

func TestNoRemainingReferences(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "clean.md"), "nothing here\n")
	writeFile(t, filepath.Join(root, "docs", "dirty.md"), "see a.md for details\nagain a.md\n")

	suite := newSuite(t, root)
	report := run(t, suite, []validate.Check{
		validate.NoRemainingReferences{Pattern: "a.md"},
		validate.NoRemainingReferences{Pattern: "gone.md"},
	})

	require.Len(t, report.Results, 2)
	assert.False(t, report.Results[0].Passed)
	assert.Contains(t, report.Results[0].Detail, "docs/dirty.md")
	assert.Contains(t, report.Results[0].Detail, "line 1")
	assert.Contains(t, report.Results[0].Detail, "line 2")
	assert.True(t, report.Results[1].Passed)
}

func TestNoRemainingReferencesSkipsBinary(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "blob.bin"),
		[]byte{'a', '.', 'm', 'd', 0, 1, 2},
		0o644,
	))

	report := run(t, newSuite(t, root), []validate.Check{
		validate.NoRemainingReferences{Pattern: "a.md"},
	})

	assert.True(t, report.Results[0].Passed, "binary files are not scanned")
}

func TestNoRemainingReferencesSkipsExcluded(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".git", "config"), "url = a.md\n")
	writeFile(t, filepath.Join(root, "vendor", "dep.md"), "a.md\n")

	report := run(t, newSuite(t, root), []validate.Check{
		validate.NoRemainingReferences{Pattern: "a.md"},
	})

	assert.True(t, report.Results[0].Passed)
}

func TestLinksResolve(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "target.md"), "x")
	writeFile(t, filepath.Join(root, "docs", "nested.md"), "x")
	writeFile(t, filepath.Join(root, "index.md"),
		"[ok](target.md)\n"+
			"[nested](docs/nested.md)\n"+
			"[anchor](target.md#section)\n"+
			"[external](https://example.com/a.md)\n"+
			"[broken](missing.md)\n")

	report := run(t, newSuite(t, root), []validate.Check{validate.LinksResolve{}})

	require.Len(t, report.Results, 1)
	assert.False(t, report.Results[0].Passed)
	assert.Contains(t, report.Results[0].Detail, "missing.md")
	assert.NotContains(t, report.Results[0].Detail, "target.md")
	assert.NotContains(t, report.Results[0].Detail, "example.com")
}

func TestLinksResolveRelativeToFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "assets", "logo.png"), "png")
	writeFile(t, filepath.Join(root, "docs", "guide.md"), "[logo](../assets/logo.png)\n")

	report := run(t, newSuite(t, root), []validate.Check{validate.LinksResolve{}})
	assert.True(t, report.Results[0].Passed)
}

func TestLinksResolveRejectsEscapingLink(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "doc.md"), "[up](../../etc/passwd)\n")

	report := run(t, newSuite(t, root), []validate.Check{validate.LinksResolve{}})
	require.Len(t, report.Results, 1)
	assert.False(t, report.Results[0].Passed)
	assert.Contains(t, report.Results[0].Detail, "leaves the root")
}

func TestRunWithScanCache(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "doc.md"), "[ok](other.md) still a.md\n")
	writeFile(t, filepath.Join(root, "other.md"), "x")

	cache, err := scancache.Open(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	defer func() {
		require.NoError(t, cache.Close())
	}()

	checks := []validate.Check{
		validate.NoRemainingReferences{Pattern: "a.md"},
		validate.LinksResolve{},
	}

	// First run populates the cache; the second must agree with it.
	for i := 0; i < 2; i++ {
		suite, err := validate.New(validate.Options{Root: root, Cache: cache})
		require.NoError(t, err)

		report := run(t, suite, checks)
		require.Len(t, report.Results, 2, "run %d", i)
		assert.False(t, report.Results[0].Passed, "run %d", i)
		assert.True(t, report.Results[1].Passed, "run %d", i)
	}
}

func TestRunCancelled(t *testing.T) {
	root := t.TempDir()
	suite := newSuite(t, root)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := suite.Run(ctx, []validate.Check{validate.MustExist{Path: "a"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRejectsMissingRoot(t *testing.T) {
	_, err := validate.New(validate.Options{Root: filepath.Join(t.TempDir(), "missing")})
	require.Error(t, err)
}

func TestFromPlan(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.md"), "x")
	writeFile(t, filepath.Join(root, "c.md"), "a.md")
	writeFile(t, filepath.Join(root, "old", "f.txt"), "x")

	resolver, err := pathres.NewResolver(root)
	require.NoError(t, err)

	p, err := plan.Build(resolver, []plan.Operation{
		plan.Rename{Source: "a.md", Destination: "b.md"},
		plan.TextReplace{Files: []string{"c.md"}, Pattern: "a.md", Replacement: "b.md"},
		plan.Move{Source: "old/f.txt", Destination: "new/f.txt"},
		plan.DeleteEmptyDir{Target: "old"},
	})
	require.NoError(t, err)

	checks := validate.FromPlan(p)

	var descriptions []string
	for _, c := range checks {
		descriptions = append(descriptions, c.Describe())
	}

	assert.Contains(t, descriptions, validate.MustNotExist{Path: filepath.Join(root, "a.md")}.Describe())
	assert.Contains(t, descriptions, validate.MustExist{Path: filepath.Join(root, "b.md")}.Describe())
	assert.Contains(t, descriptions, validate.NoRemainingReferences{Pattern: "a.md"}.Describe())
	assert.Contains(t, descriptions, validate.MustNotExist{Path: filepath.Join(root, "old")}.Describe())
	assert.Contains(t, descriptions, validate.MustExist{Path: filepath.Join(root, "new", "f.txt")}.Describe())
}

func TestFromPlanSkipsContainedPattern(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "c.md"), "pkg")

	resolver, err := pathres.NewResolver(root)
	require.NoError(t, err)

	// Replacement still contains the pattern, so references necessarily
	// remain and the derived check would always fail.
	p, err := plan.Build(resolver, []plan.Operation{
		plan.TextReplace{Files: []string{"c.md"}, Pattern: "pkg", Replacement: "pkg/util"},
	})
	require.NoError(t, err)

	assert.Empty(t, validate.FromPlan(p))
}
