package probe

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
}

func TestSize_File(t *testing.T) {
	p := filepath.Join(t.TempDir(), "a.bin")
	writeFile(t, p, 100)

	r := Size(context.Background(), p)
	assert.Equal(t, uint64(100), r.Bytes)
	assert.Equal(t, uint64(1), r.Files)
	assert.False(t, r.Partial())
}

func TestSize_Tree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a"), 100)
	writeFile(t, filepath.Join(root, "sub", "b"), 250)
	writeFile(t, filepath.Join(root, "sub", "deeper", "c"), 4096)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))

	r := Size(context.Background(), root)
	assert.Equal(t, uint64(100+250+4096), r.Bytes)
	assert.Equal(t, uint64(3), r.Files)
	assert.GreaterOrEqual(t, r.Dirs, uint64(3))
}

func TestSize_Missing(t *testing.T) {
	r := Size(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Zero(t, r.Bytes)
	assert.True(t, r.Partial())
}

func TestSize_SymlinkNotFollowed(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	outside := t.TempDir()
	writeFile(t, filepath.Join(outside, "big"), 1<<20)

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "small"), 10)
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link")))

	r := Size(context.Background(), root)
	assert.Equal(t, uint64(10), r.Bytes)
}

func TestSize_UnreadableDirIsSkipped(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "ok"), 100)
	locked := filepath.Join(root, "locked")
	writeFile(t, filepath.Join(locked, "hidden"), 999)
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	r := Size(context.Background(), root)
	assert.Equal(t, uint64(100), r.Bytes)
	assert.True(t, r.Partial())
}
