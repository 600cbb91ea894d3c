package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/restruct/pkg/restruct/backup"
	"github.com/jamesainslie/restruct/pkg/restruct/engine"
	"github.com/jamesainslie/restruct/pkg/restruct/manifest"
	"github.com/jamesainslie/restruct/pkg/restruct/planfile"
)

func TestBuildPlan(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "old"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "old", "a.md"), []byte("x"), 0o644))

	file, err := planfile.Parse([]byte(`
operations:
  - kind: move
    source: old/a.md
    destination: new/a.md
`))
	require.NoError(t, err)

	p, err := buildPlan(file, root)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Len())
	assert.NotEmpty(t, p.ID())
}

func TestBuildPlanRejectsEscapingPath(t *testing.T) {
	root := t.TempDir()

	file, err := planfile.Parse([]byte(`
operations:
  - kind: move
    source: ../outside
    destination: inside
`))
	require.NoError(t, err)

	_, err = buildPlan(file, root)
	assert.Error(t, err)
}

func TestReleaseBackups(t *testing.T) {
	newTestSession := func(t *testing.T) *backup.Session {
		t.Helper()
		s, err := backup.NewSession(t.TempDir())
		require.NoError(t, err)
		return s
	}

	t.Run("purged after completed rollback", func(t *testing.T) {
		s := newTestSession(t)
		purged := releaseBackups(s, &engine.Result{RolledBack: true})
		assert.True(t, purged)
		assert.NoDirExists(t, s.Dir())
	})

	t.Run("retained when rollback incomplete", func(t *testing.T) {
		s := newTestSession(t)
		purged := releaseBackups(s, &engine.Result{RolledBack: false})
		assert.False(t, purged)
		assert.DirExists(t, s.Dir())
	})

	t.Run("retained when execution produced no result", func(t *testing.T) {
		s := newTestSession(t)
		purged := releaseBackups(s, nil)
		assert.False(t, purged)
		assert.DirExists(t, s.Dir())
	})
}

func TestEntryOutcome(t *testing.T) {
	tests := []struct {
		name     string
		entry    manifest.Entry
		expected string
	}{
		{"applied", manifest.Entry{Applied: 2}, "applied"},
		{"previewed", manifest.Entry{DryRun: true}, "previewed"},
		{"rolled back", manifest.Entry{RolledBack: true}, "rolled-back"},
		{
			"unverified",
			manifest.Entry{Validation: &manifest.ValidationSummary{Passed: false, Total: 1}},
			"unverified",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, entryOutcome(tt.entry))
		})
	}
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "exact", truncateString("exact", 5))
	assert.Equal(t, "long...", truncateString("longer-than-that", 7))
	assert.Equal(t, "ab", truncateString("abcdef", 2))
}

func TestOrDefault(t *testing.T) {
	assert.Equal(t, "value", orDefault("value", "fallback"))
	assert.Equal(t, "fallback", orDefault("", "fallback"))
}

func TestRootCommandWiring(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"apply", "verify", "history", "backups", "config", "version"} {
		assert.True(t, names[want], "command %s should be registered", want)
	}
}
