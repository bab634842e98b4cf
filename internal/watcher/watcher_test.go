package watcher

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counts struct {
	removed atomic.Int32
	changed atomic.Int32
}

func (c *counts) handlers() Handlers {
	return Handlers{
		OnRemove: func() { c.removed.Add(1) },
		OnChange: func() { c.changed.Add(1) },
	}
}

func startWatcher(t *testing.T, target string, c *counts) *Watcher {
	t.Helper()
	w, err := NewWithDelay(target, c.handlers(), 20*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

func TestWatcher_Remove(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "promptrium.db")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0600))

	var c counts
	startWatcher(t, target, &c)

	require.NoError(t, os.Remove(target))
	assert.Eventually(t, func() bool { return c.removed.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, c.changed.Load())
}

func TestWatcher_Change(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "settings.json")
	require.NoError(t, os.WriteFile(target, []byte("{}"), 0600))

	var c counts
	startWatcher(t, target, &c)

	// A burst of writes collapses into one notification.
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(target, []byte(`{"a":1}`), 0600))
	}
	assert.Eventually(t, func() bool { return c.changed.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), c.changed.Load())
	assert.Zero(t, c.removed.Load())
}

func TestWatcher_IgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "promptrium.db")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0600))

	var c counts
	startWatcher(t, target, &c)

	sibling := filepath.Join(dir, "promptrium.db-wal")
	require.NoError(t, os.WriteFile(sibling, []byte("x"), 0600))
	require.NoError(t, os.Remove(sibling))

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, c.removed.Load())
	assert.Zero(t, c.changed.Load())
}

func TestWatcher_StopDropsPending(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "settings.json")
	require.NoError(t, os.WriteFile(target, []byte("{}"), 0600))

	var c counts
	w, err := NewWithDelay(target, c.handlers(), time.Hour)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	assert.Equal(t, target, w.Path())

	require.NoError(t, os.WriteFile(target, []byte("{}"), 0600))
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
	assert.Zero(t, c.changed.Load())
}

func TestWatcher_MissingParent(t *testing.T) {
	var c counts
	w, err := New(filepath.Join(t.TempDir(), "gone", "promptrium.db"), c.handlers())
	require.NoError(t, err)

	// Start succeeds even when the directory does not exist yet.
	require.NoError(t, w.Start())
	require.NoError(t, w.Stop())
}
