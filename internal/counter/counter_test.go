package counter

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func testPolicy() Policy {
	return Policy{Attempts: 3, Delay: 0}
}

func openTemp(t *testing.T) (*File, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".1000")
	cf, err := Open(path, testPolicy())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cf.Close() })
	return cf, path
}

func TestOpenCreatesFile(t *testing.T) {
	cf, path := openTemp(t)
	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), st.Mode().Perm())
	assert.Equal(t, path, cf.Path())
}

func TestOpenCreatesMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users", ".1000")
	cf, err := Open(path, testPolicy())
	require.NoError(t, err)
	defer cf.Close()

	st, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, st.IsDir())
}

func TestOpenParentNotADirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "users")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	_, err := Open(filepath.Join(file, ".1000"), testPolicy())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestReadEmptyIsZero(t *testing.T) {
	cf, _ := openTemp(t)
	n, err := cf.Read()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestReadSentinelIsUnusable(t *testing.T) {
	cf, path := openTemp(t)
	require.NoError(t, os.WriteFile(path, []byte("-"), 0644))

	_, err := cf.Read()
	require.ErrorIs(t, err, ErrUnusable)
}

func TestReadCorruption(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "digit then letter", content: "12a3"},
		{name: "sentinel with trailing bytes", content: "-5"},
		{name: "whitespace", content: "7\n"},
		{name: "letters only", content: "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cf, path := openTemp(t)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			_, err := cf.Read()
			require.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	for _, k := range []int{0, 1, 9, 10, 42, 255, 99999, 1<<31 - 1} {
		t.Run(strconv.Itoa(k), func(t *testing.T) {
			cf, path := openTemp(t)
			require.NoError(t, cf.Write(k))

			n, err := cf.Read()
			require.NoError(t, err)
			assert.Equal(t, k, n)

			// On disk: exactly the minimal decimal form.
			b, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, strconv.Itoa(k), string(b))
		})
	}
}

func TestWriteTruncatesShrinkingValue(t *testing.T) {
	cf, path := openTemp(t)
	require.NoError(t, cf.Write(100))
	require.NoError(t, cf.Write(5))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "5", string(b))
}

func TestWriteNegativeMarksUnusable(t *testing.T) {
	cf, path := openTemp(t)
	require.NoError(t, cf.Write(-1))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "-", string(b))

	_, err = cf.Read()
	require.ErrorIs(t, err, ErrUnusable)
}

func TestWriteFailureInvalidates(t *testing.T) {
	cf, path := openTemp(t)
	require.NoError(t, cf.Write(7))

	orig := ftruncate
	ftruncate = func(fd int, length int64) error { return unix.EIO }
	t.Cleanup(func() { ftruncate = orig })

	err := cf.Write(123)
	require.Error(t, err)
	ftruncate = orig

	// The partial state collapsed to exactly the one-byte sentinel.
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "-", string(b))

	_, err = cf.Read()
	require.ErrorIs(t, err, ErrUnusable)
}

func TestLockContention(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".1000")
	first, err := Open(path, testPolicy())
	require.NoError(t, err)
	defer first.Close()

	_, err = Open(path, testPolicy())
	require.ErrorIs(t, err, ErrLockTimeout)

	// Releasing the first lock lets the next open succeed.
	require.NoError(t, first.Close())
	second, err := Open(path, testPolicy())
	require.NoError(t, err)
	assert.NoError(t, second.Close())
}

func TestPolicyDefaults(t *testing.T) {
	p := Policy{}.withDefaults()
	assert.Equal(t, DefaultPolicy().Attempts, p.Attempts)

	p = Policy{Attempts: 2, Delay: -1}.withDefaults()
	assert.Equal(t, 2, p.Attempts)
	assert.Zero(t, p.Delay)
}
