package index

import (
	"errors"

	"github.com/relixdb/relix/buffer"
	"github.com/relixdb/relix/disk"
	"github.com/relixdb/relix/heap"
)

// Operator selects a scan bound. Low bounds take GT or GTE, high bounds LT
// or LTE.
type Operator int

const (
	LT Operator = iota
	LTE
	GTE
	GT
)

func (op Operator) String() string {
	switch op {
	case LT:
		return "LT"
	case LTE:
		return "LTE"
	case GTE:
		return "GTE"
	case GT:
		return "GT"
	default:
		return "UNKNOWN"
	}
}

// scanState is the persistent cursor of a range scan. While a scan is
// executing the current leaf and the root stay pinned; EndScan releases
// both. currentPageNum == 0 marks the exhausted state.
type scanState[K any] struct {
	executing      bool
	lowOp          Operator
	highOp         Operator
	low            K
	high           K
	rootNo         disk.PageID
	currentPageNum disk.PageID
	currentPage    *buffer.Page
	nextEntry      int
}

// startScan validates the range, positions the cursor on the first
// qualifying entry and leaves the scan active. With no qualifying key
// anywhere the scan becomes active but exhausted and ErrIndexScanCompleted
// is returned.
func (t *tree[K]) startScan(lowBytes []byte, lowOp Operator, highBytes []byte, highOp Operator) error {
	low := t.cdc.read(lowBytes)
	high := t.cdc.read(highBytes)
	if t.cdc.compare(low, high) > 0 {
		return ErrBadScanRange
	}
	if t.scan.executing {
		if err := t.endScan(); err != nil {
			return err
		}
	}

	rootNo := t.idx.rootPageNum
	rootPin, err := t.idx.pin(rootNo)
	if err != nil {
		return err
	}

	// Descend to the leaf that should hold the low bound. The root stays
	// pinned for the scan's lifetime; interior nodes are released as soon
	// as their child is pinned.
	leafNo := rootNo
	leafPage := rootPin.page
	if !t.idx.onlyRoot {
		curNo, curPage := rootNo, rootPin.page
		for {
			node := nonLeafNode[K]{p: curPage, cdc: t.cdc, occ: t.nodeOcc}
			pos := node.searchChildPos(low)
			childNo := node.child(pos)
			if !childNo.Valid() && pos > 0 {
				pos--
				childNo = node.child(pos)
			}
			atLeafLevel := node.level() == 1

			childPin, err := t.idx.pin(childNo)
			if err != nil {
				if curNo != rootNo {
					t.idx.unpinQuiet(curNo)
				}
				rootPin.release(false)
				return err
			}
			if curNo != rootNo {
				if err := t.idx.bufmgr.UnpinPage(t.idx.file, curNo, false); err != nil {
					childPin.release(false)
					rootPin.release(false)
					return err
				}
			}
			curNo, curPage = childNo, childPin.page
			if atLeafLevel {
				leafNo, leafPage = curNo, curPage
				break
			}
		}
	}

	// Find the first entry satisfying the low bound, following the sibling
	// chain when the target leaf holds none (all its keys sit below the
	// bound; later leaves may still qualify when duplicates span pages).
	leaf := leafNode[K]{p: leafPage, cdc: t.cdc, occ: t.leafOcc}
	n := leaf.entryCount()
	pos := leaf.lowBoundPos(low, lowOp, n)
	for pos == n {
		sib := leaf.rightSib()
		if !sib.Valid() {
			t.scan = scanState[K]{
				executing:      true,
				lowOp:          lowOp,
				highOp:         highOp,
				low:            low,
				high:           high,
				rootNo:         rootNo,
				currentPageNum: 0,
			}
			if leafNo != rootNo {
				if err := t.idx.bufmgr.UnpinPage(t.idx.file, leafNo, false); err != nil {
					return err
				}
			}
			return ErrIndexScanCompleted
		}
		sibPin, err := t.idx.pin(sib)
		if err != nil {
			if leafNo != rootNo {
				t.idx.unpinQuiet(leafNo)
			}
			rootPin.release(false)
			return err
		}
		if leafNo != rootNo {
			if err := t.idx.bufmgr.UnpinPage(t.idx.file, leafNo, false); err != nil {
				sibPin.release(false)
				rootPin.release(false)
				return err
			}
		}
		leafNo, leafPage = sib, sibPin.page
		leaf = leafNode[K]{p: leafPage, cdc: t.cdc, occ: t.leafOcc}
		n = leaf.entryCount()
		pos = leaf.lowBoundPos(low, lowOp, n)
	}

	t.scan = scanState[K]{
		executing:      true,
		lowOp:          lowOp,
		highOp:         highOp,
		low:            low,
		high:           high,
		rootNo:         rootNo,
		currentPageNum: leafNo,
		currentPage:    leafPage,
		nextEntry:      pos,
	}
	return nil
}

// scanNext emits the record identifier under the cursor and advances it,
// hopping to the right sibling at leaf boundaries. Crossing the high bound
// or running off the leaf chain makes the scan terminal.
func (t *tree[K]) scanNext() (heap.RecordID, error) {
	s := &t.scan
	if !s.executing {
		return heap.RecordID{}, ErrScanNotInitialized
	}
	if !s.currentPageNum.Valid() {
		return heap.RecordID{}, ErrIndexScanCompleted
	}

	leaf := leafNode[K]{p: s.currentPage, cdc: t.cdc, occ: t.leafOcc}
	k := leaf.key(s.nextEntry)
	if s.highOp == LT && t.cdc.compare(k, s.high) >= 0 {
		return heap.RecordID{}, ErrIndexScanCompleted
	}
	if s.highOp == LTE && t.cdc.compare(k, s.high) > 0 {
		return heap.RecordID{}, ErrIndexScanCompleted
	}
	rid := leaf.rid(s.nextEntry)

	if s.nextEntry == t.leafOcc-1 || leaf.rid(s.nextEntry+1).PageNo == 0 {
		sib := leaf.rightSib()
		if !sib.Valid() {
			// End of the leaf chain; release the leaf now, the root at
			// EndScan.
			err := t.idx.bufmgr.UnpinPage(t.idx.file, s.currentPageNum, false)
			s.currentPage = nil
			s.currentPageNum = 0
			if err != nil {
				return heap.RecordID{}, err
			}
		} else {
			sibPin, err := t.idx.pin(sib)
			if err != nil {
				return heap.RecordID{}, err
			}
			if err := t.idx.bufmgr.UnpinPage(t.idx.file, s.currentPageNum, false); err != nil {
				sibPin.release(false)
				return heap.RecordID{}, err
			}
			s.currentPageNum = sib
			s.currentPage = sibPin.page
			s.nextEntry = 0
		}
	} else {
		s.nextEntry++
	}
	return rid, nil
}

// endScan tears the cursor down: best-effort unpins of the current leaf and
// the root, tolerating pages already released.
func (t *tree[K]) endScan() error {
	s := &t.scan
	if !s.executing {
		return ErrScanNotInitialized
	}
	if s.currentPage != nil {
		if err := t.idx.bufmgr.UnpinPage(t.idx.file, s.currentPageNum, false); err != nil &&
			!errors.Is(err, buffer.ErrPageNotPinned) && !errors.Is(err, buffer.ErrPageNotFound) {
			return err
		}
	}
	if err := t.idx.bufmgr.UnpinPage(t.idx.file, s.rootNo, false); err != nil &&
		!errors.Is(err, buffer.ErrPageNotPinned) && !errors.Is(err, buffer.ErrPageNotFound) {
		return err
	}
	t.scan = scanState[K]{}
	return nil
}

func (t *tree[K]) scanActive() bool {
	return t.scan.executing
}
