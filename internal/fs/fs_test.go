package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sub")
	lfs := LocalFS{}
	require.NoError(t, lfs.MkdirAll(dir, 0o755))

	f, err := lfs.CreateTemp(dir, "blob-*")
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())

	target := filepath.Join(dir, "blob")
	require.NoError(t, lfs.Rename(f.Name(), target))

	info, err := lfs.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())

	entries, err := lfs.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, lfs.Remove(target))
	_, err = lfs.Stat(target)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFaultyFS(t *testing.T) {
	dir := t.TempDir()
	ffs := NewFaultyFS(nil)

	t.Run("write limit", func(t *testing.T) {
		ffs.AddRule("limited", Fault{FailAfterBytes: 4})
		f, err := ffs.OpenFile(filepath.Join(dir, "limited"), os.O_CREATE|os.O_WRONLY, 0o644)
		require.NoError(t, err)
		defer f.Close()

		_, err = f.Write([]byte("1234"))
		require.NoError(t, err)
		_, err = f.Write([]byte("5"))
		assert.ErrorIs(t, err, ErrInjected)
	})

	t.Run("sync", func(t *testing.T) {
		ffs.AddRule("tmp-sync", Fault{FailAfterBytes: -1, FailOnSync: true})
		f, err := ffs.CreateTemp(dir, "tmp-sync-*")
		require.NoError(t, err)
		defer f.Close()
		assert.ErrorIs(t, f.Sync(), ErrInjected)
	})

	t.Run("rename", func(t *testing.T) {
		ffs.AddRule("CURRENT", Fault{FailAfterBytes: -1, FailOnRename: true})
		src := filepath.Join(dir, "src")
		require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))
		assert.ErrorIs(t, ffs.Rename(src, filepath.Join(dir, "CURRENT")), ErrInjected)

		ffs.ClearRules()
		assert.NoError(t, ffs.Rename(src, filepath.Join(dir, "CURRENT")))
	})
}
