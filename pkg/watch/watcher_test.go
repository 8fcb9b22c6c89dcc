package watch

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_FileChangeTriggersCallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yar")
	require.NoError(t, os.WriteFile(path, []byte("// v1\n"), 0o644))

	var calls atomic.Int64
	w, err := New(dir, func() { calls.Add(1) }, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("// v2\n"), 0o644))

	assert.Eventually(t, func() bool {
		return calls.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yar")
	require.NoError(t, os.WriteFile(path, []byte("// v1\n"), 0o644))

	var calls atomic.Int64
	w, err := New(dir, func() { calls.Add(1) }, WithDebounce(100*time.Millisecond))
	require.NoError(t, err)
	defer w.Stop()

	// A burst of writes inside the debounce window coalesces.
	for i := range 5 {
		require.NoError(t, os.WriteFile(path, []byte{byte('0' + i)}, 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	assert.Eventually(t, func() bool {
		return calls.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.LessOrEqual(t, calls.Load(), int64(2))
}

func TestWatcher_NewSubdirectoryIsWatched(t *testing.T) {
	dir := t.TempDir()

	var calls atomic.Int64
	w, err := New(dir, func() { calls.Add(1) }, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)
	defer w.Stop()

	sub := filepath.Join(dir, "extra")
	require.NoError(t, os.Mkdir(sub, 0o755))

	assert.Eventually(t, func() bool {
		return calls.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	before := calls.Load()
	require.NoError(t, os.WriteFile(filepath.Join(sub, "new.yar"), []byte("// x\n"), 0o644))

	assert.Eventually(t, func() bool {
		return calls.Load() > before
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_SingleFileSurvivesRenameOver(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yar")
	require.NoError(t, os.WriteFile(path, []byte("// v1\n"), 0o644))

	var calls atomic.Int64
	w, err := New(path, func() { calls.Add(1) }, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)
	defer w.Stop()

	// Atomic save: write a temp file, then rename it over the target.
	tmp := filepath.Join(dir, "rules.yar.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("// v2\n"), 0o644))
	require.NoError(t, os.Rename(tmp, path))

	assert.Eventually(t, func() bool {
		return calls.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	// The watch survives the inode swap: later in-place edits are still
	// observed.
	before := calls.Load()
	require.NoError(t, os.WriteFile(path, []byte("// v3\n"), 0o644))

	assert.Eventually(t, func() bool {
		return calls.Load() > before
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_SingleFileIgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yar")
	require.NoError(t, os.WriteFile(path, []byte("// v1\n"), 0o644))

	var calls atomic.Int64
	w, err := New(path, func() { calls.Add(1) }, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("noise"), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int64(0), calls.Load())

	require.NoError(t, os.WriteFile(path, []byte("// v2\n"), 0o644))
	assert.Eventually(t, func() bool {
		return calls.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, func() {})
	require.NoError(t, err)

	w.Stop()
	require.NotPanics(t, w.Stop)
}

func TestWatcher_NoCallbackAfterStop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yar")
	require.NoError(t, os.WriteFile(path, []byte("// v1\n"), 0o644))

	var calls atomic.Int64
	w, err := New(dir, func() { calls.Add(1) }, WithDebounce(10*time.Millisecond))
	require.NoError(t, err)

	w.Stop()
	after := calls.Load()

	require.NoError(t, os.WriteFile(path, []byte("// v2\n"), 0o644))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, after, calls.Load())
}

func TestWatcher_MissingPath(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "absent"), func() {})
	require.Error(t, err)
}
