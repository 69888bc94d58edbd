package disk

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocationStartsAfterReservedPage(t *testing.T) {
	f, err := OpenFile(filepath.Join(t.TempDir(), "test.blob"))
	require.NoError(t, err)
	defer f.Close()

	assert.EqualValues(t, 1, f.AllocatePage())
	assert.EqualValues(t, 2, f.AllocatePage())
	assert.EqualValues(t, 3, f.NumPages())
}

func TestReadWritePage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.blob")
	f, err := OpenFile(path)
	require.NoError(t, err)

	hello := make([]byte, PageSize)
	copy(hello, "hello")
	world := make([]byte, PageSize)
	copy(world, "world")

	p1 := f.AllocatePage()
	p2 := f.AllocatePage()
	require.NoError(t, f.WritePage(p1, hello))
	require.NoError(t, f.WritePage(p2, world))
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())

	f, err = OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	// Page accounting is derived from the file size on reopen.
	assert.EqualValues(t, 3, f.NumPages())

	buf := make([]byte, PageSize)
	require.NoError(t, f.ReadPage(p1, buf))
	assert.Equal(t, hello, buf)
	require.NoError(t, f.ReadPage(p2, buf))
	assert.Equal(t, world, buf)
}

func TestReadUnwrittenPageIsZeroed(t *testing.T) {
	f, err := OpenFile(filepath.Join(t.TempDir(), "test.blob"))
	require.NoError(t, err)
	defer f.Close()

	pageNo := f.AllocatePage()
	buf := make([]byte, PageSize)
	for i := range buf {
		buf[i] = 0xFF
	}
	require.NoError(t, f.ReadPage(pageNo, buf))
	for _, b := range buf {
		require.Zero(t, b)
	}
}

func TestExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.blob")
	assert.False(t, Exists(path))

	f, err := OpenFile(path)
	require.NoError(t, err)
	f.Close()
	assert.True(t, Exists(path))
}
