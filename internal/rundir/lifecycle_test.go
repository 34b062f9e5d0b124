package rundir

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hnrobert/rundird/internal/counter"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := New(filepath.Join(t.TempDir(), "users"))
	m.Policy = counter.Policy{Attempts: 3, Delay: 0}
	return m
}

func testIdentity() (int, int) {
	return os.Getuid(), os.Getgid()
}

func counterContent(t *testing.T, m *Manager, uid int) string {
	t.Helper()
	p, err := BuildPaths(m.Parent, uid)
	require.NoError(t, err)
	b, err := os.ReadFile(p.Counter)
	require.NoError(t, err)
	return string(b)
}

func TestAcquireCreatesDirectoryAndCounts(t *testing.T) {
	m := newTestManager(t)
	uid, gid := testIdentity()

	dir, err := m.Acquire(uid, gid)
	require.NoError(t, err)

	st, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, st.IsDir())
	assert.Equal(t, os.FileMode(0700), st.Mode().Perm())
	assert.Equal(t, "1", counterContent(t, m, uid))

	// A second concurrent session bumps the count, same directory.
	dir2, err := m.Acquire(uid, gid)
	require.NoError(t, err)
	assert.Equal(t, dir, dir2)
	assert.Equal(t, "2", counterContent(t, m, uid))
}

func TestBalancedSessionsTearDown(t *testing.T) {
	m := newTestManager(t)
	uid, gid := testIdentity()

	const n = 5
	var dir string
	for i := 0; i < n; i++ {
		d, err := m.Acquire(uid, gid)
		require.NoError(t, err)
		dir = d
	}

	// Sessions leave files behind; the last release must sweep them too.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "app", "cache"), 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app", "cache", "sock"), []byte("x"), 0600))

	for i := 0; i < n-1; i++ {
		require.NoError(t, m.Release(uid))
		assert.DirExists(t, dir)
	}
	require.NoError(t, m.Release(uid))

	assert.NoDirExists(t, dir)
	assert.Equal(t, "0", counterContent(t, m, uid))

	// The counter file itself stays; it is cheap to recreate state from.
	p, err := BuildPaths(m.Parent, uid)
	require.NoError(t, err)
	assert.FileExists(t, p.Counter)
}

func TestAcquireTreatsSentinelAsZero(t *testing.T) {
	m := newTestManager(t)
	uid, gid := testIdentity()

	p, err := BuildPaths(m.Parent, uid)
	require.NoError(t, err)
	require.NoError(t, EnsureParent(m.Parent))
	require.NoError(t, os.WriteFile(p.Counter, []byte("-"), 0644))

	dir, err := m.Acquire(uid, gid)
	require.NoError(t, err)
	assert.DirExists(t, dir)
	assert.Equal(t, "1", counterContent(t, m, uid))
}

func TestReleaseTreatsSentinelAsNoOp(t *testing.T) {
	m := newTestManager(t)
	uid, gid := testIdentity()

	dir, err := m.Acquire(uid, gid)
	require.NoError(t, err)

	p, err := BuildPaths(m.Parent, uid)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(p.Counter, []byte("-"), 0644))

	require.NoError(t, m.Release(uid))

	// Nothing was decremented, nothing removed.
	assert.DirExists(t, dir)
	assert.Equal(t, "-", counterContent(t, m, uid))
}

func TestCorruptCounterAborts(t *testing.T) {
	m := newTestManager(t)
	uid, gid := testIdentity()

	p, err := BuildPaths(m.Parent, uid)
	require.NoError(t, err)
	require.NoError(t, EnsureParent(m.Parent))
	require.NoError(t, os.WriteFile(p.Counter, []byte("12a3"), 0644))

	_, err = m.Acquire(uid, gid)
	require.ErrorIs(t, err, counter.ErrCorrupt)

	err = m.Release(uid)
	require.ErrorIs(t, err, counter.ErrCorrupt)

	// The content was not guessed at or reset.
	assert.Equal(t, "12a3", counterContent(t, m, uid))
}

func TestReleaseRemovalFailureMarksCounterUnusable(t *testing.T) {
	m := newTestManager(t)
	uid, gid := testIdentity()

	dir, err := m.Acquire(uid, gid)
	require.NoError(t, err)

	// Pull the directory out from under the last release.
	require.NoError(t, os.Remove(dir))

	err = m.Release(uid)
	require.Error(t, err)

	// The decrement was still recorded, as the fail-safe sentinel.
	assert.Equal(t, "-", counterContent(t, m, uid))

	// The next session starts from a clean zero.
	dir2, err := m.Acquire(uid, gid)
	require.NoError(t, err)
	assert.DirExists(t, dir2)
	assert.Equal(t, "1", counterContent(t, m, uid))
}

func TestConcurrentAcquiresLoseNoUpdate(t *testing.T) {
	m := newTestManager(t)
	m.Policy = counter.Policy{Attempts: 500, Delay: time.Millisecond}
	uid, gid := testIdentity()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.Acquire(uid, gid)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	require.Equal(t, n, succeeded)
	assert.Equal(t, strconv.Itoa(n), counterContent(t, m, uid))

	for i := 0; i < n; i++ {
		require.NoError(t, m.Release(uid))
	}
	assert.Equal(t, "0", counterContent(t, m, uid))
}

func TestAcquireRejectsUnrepresentableUID(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Acquire(-1, 0)
	require.ErrorIs(t, err, ErrBadUID)

	err = m.Release(12345678901)
	require.ErrorIs(t, err, ErrBadUID)
}
