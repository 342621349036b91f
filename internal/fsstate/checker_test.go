package fsstate_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/cortexidx/internal/fsstate"
)

func TestMtimeMissingFileIsNotExist(t *testing.T) {
	c, err := fsstate.New(fsstate.ModifiedFiles, nil)
	require.NoError(t, err)

	m := c.Mtime(filepath.Join(t.TempDir(), "nope.swift"))
	require.True(t, m.NotExist)
	require.False(t, c.Exists(filepath.Join(t.TempDir(), "nope.swift")))
}

func TestMtimeRegularFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.swift")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	c, err := fsstate.New(fsstate.ModifiedFiles, nil)
	require.NoError(t, err)

	m := c.Mtime(path)
	require.False(t, m.NotExist)
	require.True(t, c.Exists(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.WithinDuration(t, info.ModTime(), m.Time, time.Second)
}

func TestMtimeFollowsSymlinkAndTakesMax(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real.swift")
	link := filepath.Join(dir, "link.swift")

	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))
	require.NoError(t, os.Symlink(target, link))

	older := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(target, older, older))

	c, err := fsstate.New(fsstate.ModifiedFiles, nil)
	require.NoError(t, err)

	m := c.Mtime(link)
	require.False(t, m.NotExist)
	// The link's own mtime (just created, "now") dominates the older target.
	require.WithinDuration(t, time.Now(), m.Time, 10*time.Second)
}

func TestMtimeDetectsSymlinkCycle(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	require.NoError(t, os.Symlink(b, a))
	require.NoError(t, os.Symlink(a, b))

	c, err := fsstate.New(fsstate.ModifiedFiles, nil)
	require.NoError(t, err)

	m := c.Mtime(a)
	require.True(t, m.NotExist, "a symlink cycle must resolve to NotExist, not hang or panic")
}

func TestMtimeIsCachedAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.swift")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	c, err := fsstate.New(fsstate.ModifiedFiles, nil)
	require.NoError(t, err)

	first := c.Mtime(path)
	require.NoError(t, os.Remove(path))
	second := c.Mtime(path)

	require.Equal(t, first, second, "a per-request Checker must never re-stat after the first lookup")
}

type fakeDocManager struct {
	unsaved map[string]bool
}

func (f fakeDocManager) HasUnsavedEdits(uri string) bool { return f.unsaved[uri] }

func TestIsStaleLevels(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.swift")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	recordedBeforeEdit := time.Now().Add(-time.Hour)

	deleted, err := fsstate.New(fsstate.DeletedFiles, nil)
	require.NoError(t, err)
	require.False(t, deleted.IsStale(path, recordedBeforeEdit), "DeletedFiles only cares about existence")

	modified, err := fsstate.New(fsstate.ModifiedFiles, nil)
	require.NoError(t, err)
	require.True(t, modified.IsStale(path, recordedBeforeEdit))

	dm := fakeDocManager{unsaved: map[string]bool{path: true}}
	inMemory, err := fsstate.New(fsstate.InMemoryModifiedFiles, dm)
	require.NoError(t, err)
	require.True(t, inMemory.IsStale(path, time.Now().Add(time.Hour)), "unsaved edits are stale even when disk mtime is old")

	missing, err := fsstate.New(fsstate.DeletedFiles, nil)
	require.NoError(t, err)
	require.True(t, missing.IsStale(filepath.Join(dir, "gone.swift"), time.Now()))
}
