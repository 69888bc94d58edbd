package index

import (
	"encoding/binary"

	"github.com/relixdb/relix/bsearch"
	"github.com/relixdb/relix/buffer"
	"github.com/relixdb/relix/disk"
	"github.com/relixdb/relix/heap"
)

// Node pages hold fixed-width arrays whose lengths depend only on the key
// width, so both occupancies are derived from the page size.
//
// Leaf layout:
//
//	[0 : occ*w]                keyArray
//	[occ*w : occ*(w+8)]        ridArray, 8 bytes per entry
//	[occ*(w+8) : occ*(w+8)+4]  rightSibPageNo
//
// Entries are dense from slot 0 and key-sorted; the first slot whose RID has
// page number 0 marks the end.
//
// Non-leaf layout:
//
//	[0:4]              level (distance above the leaves; 1 means the
//	                   children are leaves)
//	[4 : 4+occ*w]      keyArray
//	[4+occ*w : ...]    pageNoArray, occ+1 entries of 4 bytes
//
// n live keys imply n+1 live children; the first zero entry of pageNoArray
// marks the end.
const (
	ridSize    = 8
	pageNoSize = 4
	levelSize  = 4
)

func leafOccupancy(keyWidth int) int {
	return (disk.PageSize - pageNoSize) / (keyWidth + ridSize)
}

func nodeOccupancy(keyWidth int) int {
	return (disk.PageSize - levelSize - pageNoSize) / (keyWidth + pageNoSize)
}

// leafNode is a typed view of a pinned leaf page.
type leafNode[K any] struct {
	p   *buffer.Page
	cdc *keyCodec[K]
	occ int
}

func (l leafNode[K]) key(i int) K {
	return l.cdc.read(l.p[i*l.cdc.width:])
}

func (l leafNode[K]) setKey(i int, k K) {
	l.cdc.write(l.p[i*l.cdc.width:], k)
}

func (l leafNode[K]) zeroKey(i int) {
	buf := l.p[i*l.cdc.width : (i+1)*l.cdc.width]
	for j := range buf {
		buf[j] = 0
	}
}

func (l leafNode[K]) ridOffset(i int) int {
	return l.occ*l.cdc.width + i*ridSize
}

func (l leafNode[K]) rid(i int) heap.RecordID {
	off := l.ridOffset(i)
	return heap.RecordID{
		PageNo: binary.LittleEndian.Uint32(l.p[off:]),
		Slot:   binary.LittleEndian.Uint16(l.p[off+4:]),
	}
}

func (l leafNode[K]) setRID(i int, r heap.RecordID) {
	off := l.ridOffset(i)
	binary.LittleEndian.PutUint32(l.p[off:], r.PageNo)
	binary.LittleEndian.PutUint16(l.p[off+4:], r.Slot)
	binary.LittleEndian.PutUint16(l.p[off+6:], 0)
}

func (l leafNode[K]) clearRID(i int) {
	l.setRID(i, heap.RecordID{})
}

func (l leafNode[K]) rightSib() disk.PageID {
	return disk.PageID(binary.LittleEndian.Uint32(l.p[l.occ*(l.cdc.width+ridSize):]))
}

func (l leafNode[K]) setRightSib(pageNo disk.PageID) {
	binary.LittleEndian.PutUint32(l.p[l.occ*(l.cdc.width+ridSize):], uint32(pageNo))
}

// entryCount returns the number of live entries: the index of the first
// slot whose RID page number is zero.
func (l leafNode[K]) entryCount() int {
	return bsearch.LowerBound(l.occ, func(i int) bool {
		return l.rid(i).PageNo == 0
	})
}

func (l leafNode[K]) isFull() bool {
	return l.rid(l.occ - 1).PageNo != 0
}

// insertPos returns the slot a new entry with key k belongs in: the first
// position among n live entries whose key compares >= k.
func (l leafNode[K]) insertPos(k K, n int) int {
	return bsearch.LowerBound(n, func(i int) bool {
		return l.cdc.compare(l.key(i), k) >= 0
	})
}

// lowBoundPos returns the first live slot satisfying the low-bound
// predicate, or n when no entry of this leaf qualifies.
func (l leafNode[K]) lowBoundPos(low K, op Operator, n int) int {
	return bsearch.LowerBound(n, func(i int) bool {
		c := l.cdc.compare(l.key(i), low)
		if op == GT {
			return c > 0
		}
		return c >= 0
	})
}

// nonLeafNode is a typed view of a pinned internal page.
type nonLeafNode[K any] struct {
	p   *buffer.Page
	cdc *keyCodec[K]
	occ int
}

func (n nonLeafNode[K]) level() int32 {
	return int32(binary.LittleEndian.Uint32(n.p[0:]))
}

func (n nonLeafNode[K]) setLevel(level int32) {
	binary.LittleEndian.PutUint32(n.p[0:], uint32(level))
}

func (n nonLeafNode[K]) key(i int) K {
	return n.cdc.read(n.p[levelSize+i*n.cdc.width:])
}

func (n nonLeafNode[K]) setKey(i int, k K) {
	n.cdc.write(n.p[levelSize+i*n.cdc.width:], k)
}

func (n nonLeafNode[K]) zeroKey(i int) {
	buf := n.p[levelSize+i*n.cdc.width : levelSize+(i+1)*n.cdc.width]
	for j := range buf {
		buf[j] = 0
	}
}

func (n nonLeafNode[K]) childOffset(i int) int {
	return levelSize + n.occ*n.cdc.width + i*pageNoSize
}

func (n nonLeafNode[K]) child(i int) disk.PageID {
	return disk.PageID(binary.LittleEndian.Uint32(n.p[n.childOffset(i):]))
}

func (n nonLeafNode[K]) setChild(i int, pageNo disk.PageID) {
	binary.LittleEndian.PutUint32(n.p[n.childOffset(i):], uint32(pageNo))
}

func (n nonLeafNode[K]) clearChild(i int) {
	n.setChild(i, 0)
}

// childCount returns the number of live child pointers: the index of the
// first zero entry of pageNoArray.
func (n nonLeafNode[K]) childCount() int {
	return bsearch.LowerBound(n.occ+1, func(i int) bool {
		return n.child(i) == 0
	})
}

// keyCount returns the number of live separator keys.
func (n nonLeafNode[K]) keyCount() int {
	c := n.childCount()
	if c == 0 {
		return 0
	}
	return c - 1
}

func (n nonLeafNode[K]) isFull() bool {
	return n.child(n.occ) != 0
}

// searchChildPos picks the descent child for key k: the first separator
// strictly greater than k bounds the subtree on its left.
func (n nonLeafNode[K]) searchChildPos(k K) int {
	return bsearch.LowerBound(n.keyCount(), func(i int) bool {
		return n.cdc.compare(n.key(i), k) > 0
	})
}

// separatorPos returns the slot a new separator with key k belongs in.
func (n nonLeafNode[K]) separatorPos(k K) int {
	return bsearch.LowerBound(n.keyCount(), func(i int) bool {
		return n.cdc.compare(n.key(i), k) >= 0
	})
}
