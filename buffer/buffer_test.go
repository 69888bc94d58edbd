package buffer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relixdb/relix/disk"
)

func openFile(t *testing.T) *disk.File {
	t.Helper()
	f, err := disk.OpenFile(filepath.Join(t.TempDir(), "test.blob"))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestAllocReadUnpin(t *testing.T) {
	f := openFile(t)
	m := NewManager(4)

	pageNo, page, err := m.AllocPage(f)
	require.NoError(t, err)
	copy(page[:], "alpha")
	require.NoError(t, m.UnpinPage(f, pageNo, true))

	got, err := m.ReadPage(f, pageNo)
	require.NoError(t, err)
	assert.Equal(t, []byte("alpha"), got[:5])
	require.NoError(t, m.UnpinPage(f, pageNo, false))
}

func TestUnpinErrors(t *testing.T) {
	f := openFile(t)
	m := NewManager(4)

	pageNo, _, err := m.AllocPage(f)
	require.NoError(t, err)
	require.NoError(t, m.UnpinPage(f, pageNo, false))

	assert.ErrorIs(t, m.UnpinPage(f, pageNo, false), ErrPageNotPinned)
	assert.ErrorIs(t, m.UnpinPage(f, pageNo+42, false), ErrPageNotFound)
}

func TestEvictionWritesBackDirtyPages(t *testing.T) {
	f := openFile(t)
	m := NewManager(2)

	// More pages than frames: earlier pages get evicted and written back.
	var pages []disk.PageID
	for i := 0; i < 6; i++ {
		pageNo, page, err := m.AllocPage(f)
		require.NoError(t, err)
		page[0] = byte(0xA0 + i)
		require.NoError(t, m.UnpinPage(f, pageNo, true))
		pages = append(pages, pageNo)
	}

	for i, pageNo := range pages {
		page, err := m.ReadPage(f, pageNo)
		require.NoError(t, err)
		assert.Equal(t, byte(0xA0+i), page[0], "page %d", pageNo)
		require.NoError(t, m.UnpinPage(f, pageNo, false))
	}
}

func TestPinnedPagesAreNeverEvicted(t *testing.T) {
	f := openFile(t)
	m := NewManager(2)

	p1, page1, err := m.AllocPage(f)
	require.NoError(t, err)
	page1[0] = 0x11
	p2, _, err := m.AllocPage(f)
	require.NoError(t, err)

	// Both frames pinned: nothing to evict.
	_, _, err = m.AllocPage(f)
	assert.ErrorIs(t, err, ErrNoFreeFrames)

	require.NoError(t, m.UnpinPage(f, p2, false))
	p3, _, err := m.AllocPage(f)
	require.NoError(t, err)

	// The still-pinned page kept its frame and contents.
	got, err := m.ReadPage(f, p1)
	require.NoError(t, err)
	assert.Equal(t, byte(0x11), got[0])
	require.NoError(t, m.UnpinPage(f, p1, true))
	require.NoError(t, m.UnpinPage(f, p1, false))
	require.NoError(t, m.UnpinPage(f, p3, false))
}

func TestFlushFilePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.blob")
	f, err := disk.OpenFile(path)
	require.NoError(t, err)

	m := NewManager(4)
	pageNo, page, err := m.AllocPage(f)
	require.NoError(t, err)
	copy(page[:], "durable")
	require.NoError(t, m.UnpinPage(f, pageNo, true))
	require.NoError(t, m.FlushFile(f))
	require.NoError(t, f.Close())

	f2, err := disk.OpenFile(path)
	require.NoError(t, err)
	defer f2.Close()
	buf := make([]byte, disk.PageSize)
	require.NoError(t, f2.ReadPage(pageNo, buf))
	assert.Equal(t, []byte("durable"), buf[:7])
}

func TestPinnedPagesCount(t *testing.T) {
	f := openFile(t)
	m := NewManager(4)

	assert.Zero(t, m.PinnedPages(f))
	p1, _, err := m.AllocPage(f)
	require.NoError(t, err)
	_, err = m.ReadPage(f, p1)
	require.NoError(t, err)
	assert.Equal(t, 1, m.PinnedPages(f))

	require.NoError(t, m.UnpinPage(f, p1, false))
	assert.Equal(t, 1, m.PinnedPages(f))
	require.NoError(t, m.UnpinPage(f, p1, true))
	assert.Zero(t, m.PinnedPages(f))
}
