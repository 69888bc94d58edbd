// Package heap provides the relation file: an append-only heap of records
// stored in slotted pages, plus the scanner the index bulk-load iterates.
package heap

import (
	"encoding/binary"

	"github.com/relixdb/relix/buffer"
	"github.com/relixdb/relix/disk"
)

// Slotted record page layout:
//
//	[0:2]                numRecords
//	[2:4]                dataStart (offset of the lowest record byte)
//	[4:8]                padding
//	[8 : 8+4*numRecords] slot array, one 4-byte slot per record
//	...                  free space
//	[dataStart : end]    record bytes, growing downward
//
// Each slot stores the record's absolute offset and length as two uint16s.
// Records are append-only; slots are never reused.
const (
	pageHeaderSize = 8
	slotSize       = 4
)

// recordPage interprets a pinned page as a slotted record page.
type recordPage struct {
	p *buffer.Page
}

func (rp recordPage) init() {
	binary.LittleEndian.PutUint16(rp.p[0:], 0)
	binary.LittleEndian.PutUint16(rp.p[2:], uint16(disk.PageSize))
}

func (rp recordPage) numRecords() int {
	return int(binary.LittleEndian.Uint16(rp.p[0:]))
}

func (rp recordPage) dataStart() int {
	return int(binary.LittleEndian.Uint16(rp.p[2:]))
}

func (rp recordPage) freeSpace() int {
	return rp.dataStart() - (pageHeaderSize + slotSize*rp.numRecords())
}

func (rp recordPage) slot(i int) (offset, length int) {
	base := pageHeaderSize + slotSize*i
	offset = int(binary.LittleEndian.Uint16(rp.p[base:]))
	length = int(binary.LittleEndian.Uint16(rp.p[base+2:]))
	return offset, length
}

// record returns the bytes of record i, viewing the page directly.
func (rp recordPage) record(i int) []byte {
	if i < 0 || i >= rp.numRecords() {
		return nil
	}
	offset, length := rp.slot(i)
	if offset+length > disk.PageSize {
		return nil
	}
	return rp.p[offset : offset+length]
}

// insert appends data to the page, returning the slot it landed in.
// It reports false when the page lacks room.
func (rp recordPage) insert(data []byte) (int, bool) {
	if rp.freeSpace() < slotSize+len(data) {
		return 0, false
	}
	n := rp.numRecords()
	start := rp.dataStart() - len(data)
	copy(rp.p[start:], data)

	base := pageHeaderSize + slotSize*n
	binary.LittleEndian.PutUint16(rp.p[base:], uint16(start))
	binary.LittleEndian.PutUint16(rp.p[base+2:], uint16(len(data)))

	binary.LittleEndian.PutUint16(rp.p[0:], uint16(n+1))
	binary.LittleEndian.PutUint16(rp.p[2:], uint16(start))
	return n, true
}
