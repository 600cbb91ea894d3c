package pathres

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResolver(t *testing.T) {
	t.Run("accepts existing directory", func(t *testing.T) {
		root := t.TempDir()

		r, err := NewResolver(root)
		require.NoError(t, err)
		assert.True(t, filepath.IsAbs(r.Root()))
	})

	t.Run("rejects missing root", func(t *testing.T) {
		_, err := NewResolver(filepath.Join(t.TempDir(), "missing"))
		assert.Error(t, err)
	})

	t.Run("rejects file root", func(t *testing.T) {
		root := t.TempDir()
		file := filepath.Join(root, "file.txt")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

		_, err := NewResolver(file)
		assert.ErrorIs(t, err, ErrNotDirectory)
	})
}

func TestResolver_Resolve(t *testing.T) {
	root := t.TempDir()
	r, err := NewResolver(root)
	require.NoError(t, err)

	t.Run("relative path joins root", func(t *testing.T) {
		p, err := r.Resolve("docs/readme.md")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(r.Root(), "docs", "readme.md"), p)
	})

	t.Run("absolute path inside root", func(t *testing.T) {
		p, err := r.Resolve(filepath.Join(r.Root(), "a", "b"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(r.Root(), "a", "b"), p)
	})

	t.Run("root itself resolves", func(t *testing.T) {
		p, err := r.Resolve(".")
		require.NoError(t, err)
		assert.Equal(t, r.Root(), p)
	})

	t.Run("dotdot escape rejected", func(t *testing.T) {
		_, err := r.Resolve("../outside")
		assert.ErrorIs(t, err, ErrEscapesRoot)
	})

	t.Run("nested dotdot escape rejected", func(t *testing.T) {
		_, err := r.Resolve("docs/../../outside")
		assert.ErrorIs(t, err, ErrEscapesRoot)
	})

	t.Run("absolute path outside root rejected", func(t *testing.T) {
		_, err := r.Resolve(string(filepath.Separator) + "etc")
		assert.ErrorIs(t, err, ErrEscapesRoot)
	})

	t.Run("empty path rejected", func(t *testing.T) {
		_, err := r.Resolve("")
		assert.ErrorIs(t, err, ErrEscapesRoot)
	})

	t.Run("dotdot that stays inside is allowed", func(t *testing.T) {
		p, err := r.Resolve("docs/../examples")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(r.Root(), "examples"), p)
	})

	t.Run("nonexistent destination resolves", func(t *testing.T) {
		p, err := r.Resolve("not/yet/created.md")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(r.Root(), "not", "yet", "created.md"), p)
	})
}

func TestResolver_Resolve_SymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation requires privileges on windows")
	}

	base := t.TempDir()
	root := filepath.Join(base, "root")
	outside := filepath.Join(base, "outside")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.MkdirAll(outside, 0o755))

	// root/escape -> ../outside
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "escape")))

	r, err := NewResolver(root)
	require.NoError(t, err)

	t.Run("symlink target outside root rejected", func(t *testing.T) {
		_, err := r.Resolve("escape")
		assert.ErrorIs(t, err, ErrEscapesRoot)
	})

	t.Run("path through escaping symlink rejected", func(t *testing.T) {
		_, err := r.Resolve("escape/file.md")
		assert.ErrorIs(t, err, ErrEscapesRoot)
	})

	t.Run("symlink inside root allowed", func(t *testing.T) {
		target := filepath.Join(root, "real")
		require.NoError(t, os.MkdirAll(target, 0o755))
		require.NoError(t, os.Symlink(target, filepath.Join(root, "alias")))

		p, err := r.Resolve("alias/file.md")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(r.Root(), "real", "file.md"), p)
	})
}

func TestResolver_ResolveAll(t *testing.T) {
	root := t.TempDir()
	r, err := NewResolver(root)
	require.NoError(t, err)

	resolved, errs := r.ResolveAll([]string{"a.md", "../escape", "b/c.md"})
	assert.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrEscapesRoot)
	assert.Equal(t, filepath.Join(r.Root(), "a.md"), resolved[0])
	assert.Empty(t, resolved[1])
	assert.Equal(t, filepath.Join(r.Root(), "b", "c.md"), resolved[2])
}

func TestResolver_Rel(t *testing.T) {
	root := t.TempDir()
	r, err := NewResolver(root)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("docs", "a.md"), r.Rel(filepath.Join(r.Root(), "docs", "a.md")))
	assert.Equal(t, "/somewhere/else", r.Rel("/somewhere/else"))
}
