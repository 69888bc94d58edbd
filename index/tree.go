package index

import (
	"go.uber.org/zap"

	"github.com/relixdb/relix/disk"
	"github.com/relixdb/relix/heap"
)

// promotion carries a split upward: pageNo is the freshly allocated right
// sibling and key its smallest reachable key. The parent absorbs it as a
// new separator or splits in turn.
type promotion[K any] struct {
	pageNo disk.PageID
	key    K
}

// tree binds one key type's codec and occupancies to the shared index
// state. All node-level logic lives here; Index dispatches into it.
type tree[K any] struct {
	idx     *Index
	cdc     *keyCodec[K]
	leafOcc int
	nodeOcc int
	scan    scanState[K]
}

func newTree[K any](idx *Index, cdc *keyCodec[K]) *tree[K] {
	return &tree[K]{
		idx:     idx,
		cdc:     cdc,
		leafOcc: leafOccupancy(cdc.width),
		nodeOcc: nodeOccupancy(cdc.width),
	}
}

func (t *tree[K]) leaf(p *pagePin) leafNode[K] {
	return leafNode[K]{p: p.page, cdc: t.cdc, occ: t.leafOcc}
}

func (t *tree[K]) nonLeaf(p *pagePin) nonLeafNode[K] {
	return nonLeafNode[K]{p: p.page, cdc: t.cdc, occ: t.nodeOcc}
}

// insertEntry is the top-level insert. The root page stays pinned for the
// whole operation so it cannot be evicted mid-descent.
func (t *tree[K]) insertEntry(keyBytes []byte, rid heap.RecordID) error {
	k := t.cdc.read(keyBytes)

	rootNo := t.idx.rootPageNum
	root, err := t.idx.pin(rootNo)
	if err != nil {
		return err
	}

	if t.idx.onlyRoot {
		leaf := t.leaf(root)
		if !leaf.isFull() {
			t.insertInLeaf(leaf, k, rid)
			return root.release(true)
		}
		promo, err := t.splitLeaf(leaf, k, rid)
		if err != nil {
			root.release(true)
			return err
		}
		if err := t.createNewRoot(rootNo, promo, 1); err != nil {
			root.release(true)
			return err
		}
		return root.release(true)
	}

	promo, err := t.insertDescend(rootNo, k, rid)
	if err != nil {
		root.release(false)
		return err
	}
	if promo != nil {
		level := t.nonLeaf(root).level() + 1
		if err := t.createNewRoot(rootNo, promo, level); err != nil {
			root.release(false)
			return err
		}
	}
	return root.release(false)
}

// insertDescend walks from an internal node down to the target leaf,
// inserting there and absorbing any child split on the way back up. A
// non-nil promotion means this node itself split and the caller must absorb
// it. Each node is pinned only for its own step; the recursion re-pins the
// parent to apply a returned promotion.
func (t *tree[K]) insertDescend(pageNo disk.PageID, k K, rid heap.RecordID) (*promotion[K], error) {
	pin, err := t.idx.pin(pageNo)
	if err != nil {
		return nil, err
	}
	node := t.nonLeaf(pin)
	pos := node.searchChildPos(k)
	childNo := node.child(pos)
	if !childNo.Valid() && pos > 0 {
		pos--
		childNo = node.child(pos)
	}

	if node.level() == 1 {
		// The child is the target leaf.
		leafPin, err := t.idx.pin(childNo)
		if err != nil {
			pin.release(false)
			return nil, err
		}
		leaf := t.leaf(leafPin)
		if !leaf.isFull() {
			t.insertInLeaf(leaf, k, rid)
			if err := leafPin.release(true); err != nil {
				pin.release(false)
				return nil, err
			}
			return nil, pin.release(false)
		}
		promo, err := t.splitLeaf(leaf, k, rid)
		if err != nil {
			leafPin.release(true)
			pin.release(false)
			return nil, err
		}
		if err := leafPin.release(true); err != nil {
			pin.release(false)
			return nil, err
		}
		return t.absorb(pin, node, promo)
	}

	// Unpin before recursing; only one level is held at a time.
	if err := pin.release(false); err != nil {
		return nil, err
	}
	promo, err := t.insertDescend(childNo, k, rid)
	if err != nil || promo == nil {
		return nil, err
	}

	pin, err = t.idx.pin(pageNo)
	if err != nil {
		return nil, err
	}
	return t.absorb(pin, t.nonLeaf(pin), promo)
}

// absorb applies a child promotion to a pinned internal node, splitting it
// when full, and releases the pin. The returned promotion, if any, belongs
// to the caller's parent.
func (t *tree[K]) absorb(pin *pagePin, node nonLeafNode[K], promo *promotion[K]) (*promotion[K], error) {
	if !node.isFull() {
		t.insertInNonLeaf(node, promo)
		return nil, pin.release(true)
	}
	up, err := t.splitNonLeaf(node, promo)
	if err != nil {
		pin.release(true)
		return nil, err
	}
	return up, pin.release(true)
}

// insertInLeaf places (k, rid) into a leaf with at least one free slot,
// shifting larger entries right.
func (t *tree[K]) insertInLeaf(leaf leafNode[K], k K, rid heap.RecordID) {
	n := leaf.entryCount()
	pos := leaf.insertPos(k, n)
	for i := n; i > pos; i-- {
		leaf.setKey(i, leaf.key(i-1))
		leaf.setRID(i, leaf.rid(i-1))
	}
	leaf.setKey(pos, k)
	leaf.setRID(pos, rid)
}

// insertInNonLeaf places a separator into a non-full internal node. The
// promoted child pointer becomes the right neighbour of the key. An empty
// node (no live children) takes the pointer alone at slot 0.
func (t *tree[K]) insertInNonLeaf(node nonLeafNode[K], promo *promotion[K]) {
	if !node.child(0).Valid() {
		node.setChild(0, promo.pageNo)
		return
	}
	n := node.keyCount()
	pos := node.separatorPos(promo.key)
	for i := n; i > pos; i-- {
		node.setKey(i, node.key(i-1))
	}
	for i := n + 1; i > pos+1; i-- {
		node.setChild(i, node.child(i-1))
	}
	node.setKey(pos, promo.key)
	node.setChild(pos+1, promo.pageNo)
}

// splitLeaf divides a full leaf around half = occupancy/2+1, links the new
// right sibling into the leaf chain, places the incoming entry on the
// correct side and returns the new sibling's first key for the parent.
func (t *tree[K]) splitLeaf(leaf leafNode[K], k K, rid heap.RecordID) (*promotion[K], error) {
	newNo, newPin, err := t.idx.alloc()
	if err != nil {
		return nil, err
	}
	newLeaf := t.leaf(newPin)

	half := t.leafOcc/2 + 1
	for i := half; i < t.leafOcc; i++ {
		newLeaf.setKey(i-half, leaf.key(i))
		newLeaf.setRID(i-half, leaf.rid(i))
		leaf.zeroKey(i)
		leaf.clearRID(i)
	}
	newLeaf.setRightSib(leaf.rightSib())
	leaf.setRightSib(newNo)

	promoted := newLeaf.key(0)
	if t.cdc.compare(k, promoted) < 0 {
		t.insertInLeaf(leaf, k, rid)
	} else {
		t.insertInLeaf(newLeaf, k, rid)
	}

	if err := newPin.release(true); err != nil {
		return nil, err
	}
	t.idx.log.Debug("leaf split",
		zap.Uint32("newPage", uint32(newNo)))
	return &promotion[K]{pageNo: newNo, key: promoted}, nil
}

// splitNonLeaf divides a full internal node around mid = occupancy/2+1. The
// separator is copied, not pulled up: it stays as key 0 of the new node,
// whose pageNoArray[0] keeps a duplicate of the middle child that parent
// routing never descends for keys below the separator. Vacated slots in the
// left node are zeroed so sentinel scans stay exact.
func (t *tree[K]) splitNonLeaf(node nonLeafNode[K], promo *promotion[K]) (*promotion[K], error) {
	newNo, newPin, err := t.idx.alloc()
	if err != nil {
		return nil, err
	}
	newNode := t.nonLeaf(newPin)
	newNode.setLevel(node.level())

	mid := t.nodeOcc/2 + 1
	for i := mid; i < t.nodeOcc; i++ {
		newNode.setChild(i-mid, node.child(i))
		newNode.setKey(i-mid, node.key(i))
		if i != mid {
			node.clearChild(i)
		}
		node.zeroKey(i)
	}
	newNode.setChild(t.nodeOcc-mid, node.child(t.nodeOcc))
	node.clearChild(t.nodeOcc)

	promoted := newNode.key(0)
	incoming := &promotion[K]{pageNo: promo.pageNo, key: promo.key}
	if t.cdc.compare(promo.key, promoted) < 0 {
		t.insertInNonLeaf(node, incoming)
	} else {
		t.insertInNonLeaf(newNode, incoming)
	}

	if err := newPin.release(true); err != nil {
		return nil, err
	}
	t.idx.log.Debug("internal node split",
		zap.Uint32("newPage", uint32(newNo)),
		zap.Int32("level", node.level()))
	return &promotion[K]{pageNo: newNo, key: promoted}, nil
}

// createNewRoot grows the tree by one level: a fresh internal node whose
// two children are the old root and the promoted sibling. The meta page is
// updated to name the new root.
func (t *tree[K]) createNewRoot(leftNo disk.PageID, promo *promotion[K], level int32) error {
	newRootNo, pin, err := t.idx.alloc()
	if err != nil {
		return err
	}
	node := t.nonLeaf(pin)
	node.setLevel(level)
	node.setChild(0, leftNo)
	node.setChild(1, promo.pageNo)
	node.setKey(0, promo.key)
	if err := pin.release(true); err != nil {
		return err
	}

	t.idx.rootPageNum = newRootNo
	t.idx.onlyRoot = false

	metaPin, err := t.idx.pin(t.idx.headerPageNum)
	if err != nil {
		return err
	}
	metaPage{p: metaPin.page}.setRootPageNo(newRootNo)
	if err := metaPin.release(true); err != nil {
		return err
	}
	t.idx.log.Debug("root promoted",
		zap.Uint32("rootPage", uint32(newRootNo)),
		zap.Int32("level", level))
	return nil
}
