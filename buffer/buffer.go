// Package buffer provides a pin-counted page cache between callers and blob
// files. A page read or allocated through the Manager is pinned in memory
// until the caller releases it with UnpinPage; the dirty flag passed at
// unpin time decides whether the frame is written back before eviction.
package buffer

import (
	"errors"
	"sync"

	"github.com/relixdb/relix/disk"
)

var (
	// ErrNoFreeFrames is returned when every frame in the pool is pinned.
	ErrNoFreeFrames = errors.New("no free frame available in buffer pool")
	// ErrPageNotPinned is returned when unpinning a page whose pin count is zero.
	ErrPageNotPinned = errors.New("page is not pinned")
	// ErrPageNotFound is returned when unpinning a page that is not resident.
	ErrPageNotFound = errors.New("page is not in the buffer pool")
)

// Page is a fixed-size page image held by a frame.
type Page = [disk.PageSize]byte

type frameKey struct {
	file   *disk.File
	pageNo disk.PageID
}

// frame wraps one page image with the bookkeeping the clock sweep needs.
type frame struct {
	key        frameKey
	page       Page
	pinCount   int
	referenced bool
	dirty      bool
	valid      bool
}

// Manager coordinates disk I/O and a fixed pool of frames. It maintains a
// page table mapping (file, page number) to frames and evicts with a clock
// sweep that never touches a pinned frame.
type Manager struct {
	frames []*frame
	table  map[frameKey]int
	hand   int
	mu     sync.Mutex
}

func NewManager(poolSize int) *Manager {
	frames := make([]*frame, poolSize)
	for i := range frames {
		frames[i] = &frame{}
	}
	return &Manager{
		frames: frames,
		table:  make(map[frameKey]int, poolSize),
	}
}

func (m *Manager) PoolSize() int {
	return len(m.frames)
}

// evict picks a victim frame with the clock sweep, writing it back first if
// dirty. The caller holds m.mu.
func (m *Manager) evict() (int, error) {
	poolSize := len(m.frames)
	// Two full sweeps: the first may only clear referenced bits.
	for i := 0; i < 2*poolSize; i++ {
		fr := m.frames[m.hand]
		id := m.hand
		m.hand = (m.hand + 1) % poolSize

		if fr.pinCount > 0 {
			continue
		}
		if fr.referenced {
			fr.referenced = false
			continue
		}
		if fr.valid {
			if fr.dirty {
				if err := fr.key.file.WritePage(fr.key.pageNo, fr.page[:]); err != nil {
					return 0, err
				}
			}
			delete(m.table, fr.key)
		}
		return id, nil
	}
	return 0, ErrNoFreeFrames
}

// ReadPage returns the in-memory image of the given page, pinned. Every
// successful call must be paired with exactly one UnpinPage.
func (m *Manager) ReadPage(f *disk.File, pageNo disk.PageID) (*Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := frameKey{file: f, pageNo: pageNo}
	if id, ok := m.table[key]; ok {
		fr := m.frames[id]
		fr.pinCount++
		fr.referenced = true
		return &fr.page, nil
	}

	id, err := m.evict()
	if err != nil {
		return nil, err
	}
	fr := m.frames[id]
	if err := f.ReadPage(pageNo, fr.page[:]); err != nil {
		fr.valid = false
		return nil, err
	}
	fr.key = key
	fr.pinCount = 1
	fr.referenced = true
	fr.dirty = false
	fr.valid = true
	m.table[key] = id
	return &fr.page, nil
}

// AllocPage allocates a fresh page in the file and returns its zeroed image,
// pinned. The page reaches disk once it is unpinned dirty and evicted or
// flushed.
func (m *Manager) AllocPage(f *disk.File) (disk.PageID, *Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.evict()
	if err != nil {
		return 0, nil, err
	}
	pageNo := f.AllocatePage()
	fr := m.frames[id]
	fr.page = Page{}
	fr.key = frameKey{file: f, pageNo: pageNo}
	fr.pinCount = 1
	fr.referenced = true
	fr.dirty = false
	fr.valid = true
	m.table[fr.key] = id
	return pageNo, &fr.page, nil
}

// UnpinPage releases one pin on the page and records whether the caller
// mutated it. The dirty flags of repeated unpins accumulate.
func (m *Manager) UnpinPage(f *disk.File, pageNo disk.PageID, dirty bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.table[frameKey{file: f, pageNo: pageNo}]
	if !ok {
		return ErrPageNotFound
	}
	fr := m.frames[id]
	if fr.pinCount == 0 {
		return ErrPageNotPinned
	}
	fr.pinCount--
	if dirty {
		fr.dirty = true
	}
	return nil
}

// FlushFile writes back every dirty frame of f and syncs the file.
// Pinned frames are flushed too; their pins stay intact.
func (m *Manager) FlushFile(f *disk.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, id := range m.table {
		if key.file != f {
			continue
		}
		fr := m.frames[id]
		if !fr.dirty {
			continue
		}
		if err := f.WritePage(key.pageNo, fr.page[:]); err != nil {
			return err
		}
		fr.dirty = false
	}
	return f.Sync()
}

// PinnedPages reports the number of resident pages of f with a nonzero pin
// count. Useful for verifying that operations release everything they take.
func (m *Manager) PinnedPages(f *disk.File) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for key, id := range m.table {
		if key.file == f && m.frames[id].pinCount > 0 {
			n++
		}
	}
	return n
}
