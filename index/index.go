// Package index implements a disk-backed B+ tree secondary index over one
// attribute of a relation. Keys map to the record identifiers where they
// occur; scans yield identifiers in key order by walking the leaf chain.
package index

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/relixdb/relix/buffer"
	"github.com/relixdb/relix/disk"
	"github.com/relixdb/relix/heap"
)

// headerPageNum is where IndexMetaInfo lives; the initial root leaf is
// allocated right after it. A root page number of initialRootPageNum on
// disk means the tree is still a lone leaf.
const (
	headerPageNum      = disk.PageID(1)
	initialRootPageNum = disk.PageID(2)
)

// IndexName derives the index file name for a relation and attribute.
func IndexName(relationName string, attrByteOffset int) string {
	return fmt.Sprintf("%s.%d", relationName, attrByteOffset)
}

// treeOps is the type-erased surface of the per-key-type tree. The
// concrete instantiation is picked once, at Open, from the attribute type.
type treeOps interface {
	insertEntry(key []byte, rid heap.RecordID) error
	startScan(low []byte, lowOp Operator, high []byte, highOp Operator) error
	scanNext() (heap.RecordID, error)
	endScan() error
	scanActive() bool
}

// Index is a B+ tree secondary index bound to one index file. An Index is
// owned by a single logical task from Open to Close; it is not safe for
// concurrent use.
type Index struct {
	log            *zap.Logger
	bufmgr         *buffer.Manager
	file           *disk.File
	relationName   string
	attrByteOffset int
	attrType       AttrType
	headerPageNum  disk.PageID
	rootPageNum    disk.PageID
	onlyRoot       bool
	leafOcc        int
	nodeOcc        int
	ops            treeOps
}

// Open opens the index for (relationName, attrByteOffset), creating and
// bulk-loading it from the relation file when no index file exists yet.
// It returns the index and the index file name. A nil logger disables
// logging.
func Open(log *zap.Logger, bufmgr *buffer.Manager, relationName string, attrByteOffset int, attrType AttrType) (*Index, string, error) {
	if log == nil {
		log = zap.NewNop()
	}
	name := IndexName(relationName, attrByteOffset)
	idx := &Index{
		log:            log.With(zap.String("index", name)),
		bufmgr:         bufmgr,
		relationName:   relationName,
		attrByteOffset: attrByteOffset,
		attrType:       attrType,
		headerPageNum:  headerPageNum,
		leafOcc:        leafOccupancy(keyWidth(attrType)),
		nodeOcc:        nodeOccupancy(keyWidth(attrType)),
	}
	switch attrType {
	case IntType:
		idx.ops = newTree(idx, intCodec)
	case DoubleType:
		idx.ops = newTree(idx, doubleCodec)
	case StringType:
		idx.ops = newTree(idx, stringCodec)
	default:
		return nil, "", pkgerrors.Errorf("unsupported attribute type %d", attrType)
	}

	existed := disk.Exists(name)
	file, err := disk.OpenFile(name)
	if err != nil {
		return nil, "", err
	}
	idx.file = file

	if existed {
		if err := idx.restore(); err != nil {
			file.Close()
			return nil, "", err
		}
		idx.log.Info("index opened",
			zap.Uint32("rootPage", uint32(idx.rootPageNum)),
			zap.Stringer("attrType", attrType))
		return idx, name, nil
	}

	if err := idx.create(); err != nil {
		file.Close()
		return nil, "", err
	}
	if err := idx.bulkLoad(); err != nil {
		file.Close()
		return nil, "", err
	}
	if err := bufmgr.FlushFile(file); err != nil {
		file.Close()
		return nil, "", err
	}
	idx.log.Info("index created",
		zap.String("relation", relationName),
		zap.Int("attrByteOffset", attrByteOffset),
		zap.Stringer("attrType", attrType))
	return idx, name, nil
}

// restore reads the meta page of an existing index file.
func (idx *Index) restore() error {
	pin, err := idx.pin(idx.headerPageNum)
	if err != nil {
		return err
	}
	meta := metaPage{p: pin.page}
	idx.rootPageNum = meta.rootPageNo()
	idx.onlyRoot = idx.rootPageNum == initialRootPageNum
	return pin.release(false)
}

// create lays out a fresh index file: meta on page 1, an empty root leaf on
// page 2.
func (idx *Index) create() error {
	metaNo, metaPin, err := idx.alloc()
	if err != nil {
		return err
	}
	rootNo, rootPin, err := idx.alloc()
	if err != nil {
		metaPin.release(false)
		return err
	}
	// A zeroed page already is an empty leaf: no live RIDs, no sibling.
	meta := metaPage{p: metaPin.page}
	meta.setRelationName(idx.relationName)
	meta.setAttrByteOffset(idx.attrByteOffset)
	meta.setAttrType(idx.attrType)
	meta.setRootPageNo(rootNo)

	if err := rootPin.release(true); err != nil {
		metaPin.release(true)
		return err
	}
	if err := metaPin.release(true); err != nil {
		return err
	}
	idx.headerPageNum = metaNo
	idx.rootPageNum = rootNo
	idx.onlyRoot = true
	return nil
}

// bulkLoad seeds the fresh index by scanning the relation file and
// inserting the designated attribute of every record. A missing relation
// file loads nothing.
func (idx *Index) bulkLoad() error {
	if !disk.Exists(idx.relationName) {
		idx.log.Debug("no relation file, skipping bulk load",
			zap.String("relation", idx.relationName))
		return nil
	}
	rel, err := heap.OpenRelation(idx.bufmgr, idx.relationName)
	if err != nil {
		return err
	}
	defer rel.Close()

	scan := heap.NewFileScan(rel)
	defer scan.Close()

	width := keyWidth(idx.attrType)
	count := 0
	for {
		rid, err := scan.Next()
		if err == heap.ErrEndOfFile {
			break
		}
		if err != nil {
			return err
		}
		rec, err := scan.GetRecord()
		if err != nil {
			return err
		}
		if len(rec) < idx.attrByteOffset+width {
			return pkgerrors.Errorf("record of %d bytes too short for attribute at offset %d", len(rec), idx.attrByteOffset)
		}
		if err := idx.Insert(rec[idx.attrByteOffset:idx.attrByteOffset+width], rid); err != nil {
			return err
		}
		count++
	}
	idx.log.Debug("bulk load finished", zap.Int("records", count))
	return nil
}

// Insert adds one (key, rid) entry. key holds the attribute's raw bytes as
// they appear in the record at the configured offset.
func (idx *Index) Insert(key []byte, rid heap.RecordID) error {
	return idx.ops.insertEntry(key, rid)
}

// StartScan begins a range scan over [low, high] under the given bound
// operators. Only GT/GTE are valid low operators and LT/LTE high operators.
func (idx *Index) StartScan(low []byte, lowOp Operator, high []byte, highOp Operator) error {
	if (lowOp != GT && lowOp != GTE) || (highOp != LT && highOp != LTE) {
		return ErrBadOpcodes
	}
	return idx.ops.startScan(low, lowOp, high, highOp)
}

// ScanNext returns the record identifier of the next entry in key order.
// ErrIndexScanCompleted reports that the range is exhausted.
func (idx *Index) ScanNext() (heap.RecordID, error) {
	return idx.ops.scanNext()
}

// EndScan terminates the current scan and releases its pinned pages.
func (idx *Index) EndScan() error {
	return idx.ops.endScan()
}

// Close flushes the index file and releases resources. An active scan is
// torn down first.
func (idx *Index) Close() error {
	if idx.ops.scanActive() {
		if err := idx.ops.endScan(); err != nil {
			idx.log.Warn("end scan during close", zap.Error(err))
		}
	}
	if err := idx.bufmgr.FlushFile(idx.file); err != nil {
		idx.file.Close()
		return err
	}
	idx.log.Info("index closed")
	return idx.file.Close()
}

// File exposes the underlying index file.
func (idx *Index) File() *disk.File {
	return idx.file
}

// RootPageNum returns the current root page.
func (idx *Index) RootPageNum() disk.PageID {
	return idx.rootPageNum
}

// OnlyRoot reports whether the tree is still a single leaf.
func (idx *Index) OnlyRoot() bool {
	return idx.onlyRoot
}

// LeafOccupancy returns the per-leaf entry capacity for the index key type.
func (idx *Index) LeafOccupancy() int {
	return idx.leafOcc
}

// NodeOccupancy returns the per-internal-node key capacity.
func (idx *Index) NodeOccupancy() int {
	return idx.nodeOcc
}

// pagePin tracks one pinned page so that every exit path releases it
// exactly once.
type pagePin struct {
	idx      *Index
	pageNo   disk.PageID
	page     *buffer.Page
	released bool
}

func (idx *Index) pin(pageNo disk.PageID) (*pagePin, error) {
	page, err := idx.bufmgr.ReadPage(idx.file, pageNo)
	if err != nil {
		return nil, err
	}
	return &pagePin{idx: idx, pageNo: pageNo, page: page}, nil
}

func (idx *Index) alloc() (disk.PageID, *pagePin, error) {
	pageNo, page, err := idx.bufmgr.AllocPage(idx.file)
	if err != nil {
		return 0, nil, err
	}
	return pageNo, &pagePin{idx: idx, pageNo: pageNo, page: page}, nil
}

// release unpins the page, recording whether it was mutated. Repeated
// release is a no-op so error paths can release unconditionally.
func (p *pagePin) release(dirty bool) error {
	if p.released {
		return nil
	}
	p.released = true
	return p.idx.bufmgr.UnpinPage(p.idx.file, p.pageNo, dirty)
}

// unpinQuiet releases a pin on an error path where the first failure
// matters more than the unpin result.
func (idx *Index) unpinQuiet(pageNo disk.PageID) {
	if err := idx.bufmgr.UnpinPage(idx.file, pageNo, false); err != nil {
		idx.log.Warn("unpin failed", zap.Uint32("page", uint32(pageNo)), zap.Error(err))
	}
}
