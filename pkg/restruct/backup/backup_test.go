package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNewSession(t *testing.T) {
	base := t.TempDir()

	s, err := NewSession(base)
	require.NoError(t, err)

	info, err := os.Stat(s.Dir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, base, filepath.Dir(s.Dir()))
}

func TestSession_ShadowFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.md")
	writeFile(t, path, "hello\n")

	s, err := NewSession(t.TempDir())
	require.NoError(t, err)

	rec, err := s.Shadow(path)
	require.NoError(t, err)

	assert.Equal(t, path, rec.Original)
	assert.NotEmpty(t, rec.SHA256)
	assert.False(t, rec.IsDir)

	saved, err := os.ReadFile(rec.Copy)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(saved))
}

func TestSession_ShadowMissingPath(t *testing.T) {
	s, err := NewSession(t.TempDir())
	require.NoError(t, err)

	_, err = s.Shadow(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrShadowFailed)
	assert.Empty(t, s.Records())
}

func TestSession_ShadowDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "dir", "a.md"), "a")
	writeFile(t, filepath.Join(root, "dir", "sub", "b.md"), "b")

	s, err := NewSession(t.TempDir())
	require.NoError(t, err)

	rec, err := s.Shadow(filepath.Join(root, "dir"))
	require.NoError(t, err)
	assert.True(t, rec.IsDir)

	saved, err := os.ReadFile(filepath.Join(rec.Copy, "sub", "b.md"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(saved))
}

func TestSession_RestoreFileContent(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.md")
	writeFile(t, path, "original")

	s, err := NewSession(t.TempDir())
	require.NoError(t, err)
	_, err = s.Shadow(path)
	require.NoError(t, err)

	// Mutate, then restore.
	require.NoError(t, os.WriteFile(path, []byte("mutated"), 0o644))
	require.NoError(t, s.Restore())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "original", string(content))
}

func TestSession_RestoreDeletedFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "nested", "a.md")
	writeFile(t, path, "original")

	s, err := NewSession(t.TempDir())
	require.NoError(t, err)
	_, err = s.Shadow(path)
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(filepath.Join(root, "nested")))
	require.NoError(t, s.Restore())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "original", string(content))
}

func TestSession_RestoreRelocation(t *testing.T) {
	t.Run("completed relocation renamed back", func(t *testing.T) {
		root := t.TempDir()
		src := filepath.Join(root, "a.md")
		dst := filepath.Join(root, "b.md")
		writeFile(t, src, "content")

		s, err := NewSession(t.TempDir())
		require.NoError(t, err)
		_, err = s.ShadowRelocation(src, dst, false)
		require.NoError(t, err)

		require.NoError(t, os.Rename(src, dst))
		require.NoError(t, s.Restore())

		assert.FileExists(t, src)
		assert.NoFileExists(t, dst)
	})

	t.Run("partial relocation debris removed", func(t *testing.T) {
		root := t.TempDir()
		src := filepath.Join(root, "a.md")
		dst := filepath.Join(root, "b.md")
		writeFile(t, src, "content")

		s, err := NewSession(t.TempDir())
		require.NoError(t, err)
		_, err = s.ShadowRelocation(src, dst, false)
		require.NoError(t, err)

		// Simulate a copy fallback that died before deleting the source.
		writeFile(t, dst, "partial")
		require.NoError(t, s.Restore())

		assert.FileExists(t, src)
		assert.NoFileExists(t, dst)
	})
}

// recordingMover renames through os.Rename while remembering each call, the
// way a version control wrapper would.
type recordingMover struct {
	moves [][2]string
	fail  bool
}

func (m *recordingMover) Move(_ context.Context, source, destination string) error {
	if m.fail {
		return errors.New("mover unavailable")
	}
	m.moves = append(m.moves, [2]string{source, destination})
	return os.Rename(source, destination)
}

func TestSession_RestoreRelocationViaVCS(t *testing.T) {
	t.Run("inverted with the mover", func(t *testing.T) {
		root := t.TempDir()
		src := filepath.Join(root, "a.md")
		dst := filepath.Join(root, "b.md")
		writeFile(t, src, "content")

		s, err := NewSession(t.TempDir())
		require.NoError(t, err)
		mover := &recordingMover{}
		s.SetMover(mover)

		_, err = s.ShadowRelocation(src, dst, true)
		require.NoError(t, err)

		require.NoError(t, os.Rename(src, dst))
		require.NoError(t, s.Restore())

		assert.FileExists(t, src)
		assert.NoFileExists(t, dst)
		require.Len(t, mover.moves, 1)
		assert.Equal(t, [2]string{dst, src}, mover.moves[0])
	})

	t.Run("plain rename when the mover fails", func(t *testing.T) {
		root := t.TempDir()
		src := filepath.Join(root, "a.md")
		dst := filepath.Join(root, "b.md")
		writeFile(t, src, "content")

		s, err := NewSession(t.TempDir())
		require.NoError(t, err)
		s.SetMover(&recordingMover{fail: true})

		_, err = s.ShadowRelocation(src, dst, true)
		require.NoError(t, err)

		require.NoError(t, os.Rename(src, dst))
		require.NoError(t, s.Restore())

		assert.FileExists(t, src)
		assert.NoFileExists(t, dst)
	})

	t.Run("no mover set", func(t *testing.T) {
		root := t.TempDir()
		src := filepath.Join(root, "a.md")
		dst := filepath.Join(root, "b.md")
		writeFile(t, src, "content")

		s, err := NewSession(t.TempDir())
		require.NoError(t, err)

		_, err = s.ShadowRelocation(src, dst, true)
		require.NoError(t, err)

		require.NoError(t, os.Rename(src, dst))
		require.NoError(t, s.Restore())

		assert.FileExists(t, src)
		assert.NoFileExists(t, dst)
	})
}

func TestSession_RestoreReverseOrder(t *testing.T) {
	// Two shadows of the same file: restore must apply the oldest last, so
	// the final content is the state before the first mutation.
	root := t.TempDir()
	path := filepath.Join(root, "a.md")
	writeFile(t, path, "v1")

	s, err := NewSession(t.TempDir())
	require.NoError(t, err)

	_, err = s.Shadow(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))

	_, err = s.Shadow(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("v3"), 0o644))

	require.NoError(t, s.Restore())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(content))
}

func TestSession_Purge(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.md")
	writeFile(t, path, "x")

	s, err := NewSession(t.TempDir())
	require.NoError(t, err)
	_, err = s.Shadow(path)
	require.NoError(t, err)

	require.NoError(t, s.Purge())
	assert.NoDirExists(t, s.Dir())
	assert.Empty(t, s.Records())
}

func TestCleanOrphans(t *testing.T) {
	base := t.TempDir()

	old := filepath.Join(base, "old-session")
	recent := filepath.Join(base, "recent-session")
	require.NoError(t, os.MkdirAll(old, 0o755))
	require.NoError(t, os.MkdirAll(recent, 0o755))

	stale := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old, stale, stale))

	removed, err := CleanOrphans(base, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"old-session"}, removed)
	assert.NoDirExists(t, old)
	assert.DirExists(t, recent)
}

func TestCleanOrphans_MissingBase(t *testing.T) {
	removed, err := CleanOrphans(filepath.Join(t.TempDir(), "nope"), 0)
	require.NoError(t, err)
	assert.Empty(t, removed)
}
