package index

import (
	"encoding/binary"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relixdb/relix/buffer"
	"github.com/relixdb/relix/heap"
	"github.com/relixdb/relix/record"
)

func intKey(v int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}

func doubleKey(v float64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	return b
}

func stringKey(s string) []byte {
	k := MakeStringKey([]byte(s))
	return k[:]
}

func rid(n uint32) heap.RecordID {
	return heap.RecordID{PageNo: n, Slot: uint16(n % 7)}
}

func newTestIndex(t *testing.T, attrType AttrType, poolSize int) (*Index, *buffer.Manager) {
	t.Helper()
	bufmgr := buffer.NewManager(poolSize)
	relation := filepath.Join(t.TempDir(), "employees")
	idx, name, err := Open(zap.NewNop(), bufmgr, relation, 0, attrType)
	require.NoError(t, err)
	require.Equal(t, relation+".0", name)
	t.Cleanup(func() { idx.Close() })
	return idx, bufmgr
}

// drain runs a scan to completion and returns the emitted record ids.
func drain(t *testing.T, idx *Index) []heap.RecordID {
	t.Helper()
	var out []heap.RecordID
	for {
		r, err := idx.ScanNext()
		if err == ErrIndexScanCompleted {
			return out
		}
		require.NoError(t, err)
		out = append(out, r)
	}
}

func TestInsertThenScan(t *testing.T) {
	idx, bufmgr := newTestIndex(t, IntType, 16)

	keys := []int32{5, 2, 8, 1, 9, 3}
	for _, k := range keys {
		require.NoError(t, idx.Insert(intKey(k), rid(uint32(k))))
	}

	require.NoError(t, idx.StartScan(intKey(2), GTE, intKey(8), LTE))
	got := drain(t, idx)
	require.NoError(t, idx.EndScan())

	want := []heap.RecordID{rid(2), rid(3), rid(5), rid(8)}
	assert.Equal(t, want, got)
	assert.Zero(t, bufmgr.PinnedPages(idx.File()))
}

func TestScanExclusiveBounds(t *testing.T) {
	idx, _ := newTestIndex(t, IntType, 16)

	for _, k := range []int32{10, 20, 30, 40} {
		require.NoError(t, idx.Insert(intKey(k), rid(uint32(k))))
	}

	require.NoError(t, idx.StartScan(intKey(10), GT, intKey(40), LT))
	got := drain(t, idx)
	require.NoError(t, idx.EndScan())

	assert.Equal(t, []heap.RecordID{rid(20), rid(30)}, got)
}

func TestScanEmptyResult(t *testing.T) {
	idx, bufmgr := newTestIndex(t, IntType, 16)

	for _, k := range []int32{100, 200} {
		require.NoError(t, idx.Insert(intKey(k), rid(uint32(k))))
	}

	err := idx.StartScan(intKey(300), GTE, intKey(400), LTE)
	require.ErrorIs(t, err, ErrIndexScanCompleted)

	// The scan is active but terminal until EndScan.
	_, err = idx.ScanNext()
	assert.ErrorIs(t, err, ErrIndexScanCompleted)
	require.NoError(t, idx.EndScan())
	assert.Zero(t, bufmgr.PinnedPages(idx.File()))
}

func TestScanEmptyTree(t *testing.T) {
	idx, bufmgr := newTestIndex(t, IntType, 16)

	err := idx.StartScan(intKey(0), GTE, intKey(10), LTE)
	require.ErrorIs(t, err, ErrIndexScanCompleted)
	require.NoError(t, idx.EndScan())
	assert.Zero(t, bufmgr.PinnedPages(idx.File()))
}

func TestScanBadOpcodes(t *testing.T) {
	idx, _ := newTestIndex(t, IntType, 16)

	assert.ErrorIs(t, idx.StartScan(intKey(1), LT, intKey(2), LTE), ErrBadOpcodes)
	assert.ErrorIs(t, idx.StartScan(intKey(1), GTE, intKey(2), GT), ErrBadOpcodes)

	// Structural errors leave the scan state untouched.
	_, err := idx.ScanNext()
	assert.ErrorIs(t, err, ErrScanNotInitialized)
}

func TestScanBadRange(t *testing.T) {
	idx, _ := newTestIndex(t, IntType, 16)

	assert.ErrorIs(t, idx.StartScan(intKey(10), GTE, intKey(5), LTE), ErrBadScanRange)
	_, err := idx.ScanNext()
	assert.ErrorIs(t, err, ErrScanNotInitialized)
	assert.ErrorIs(t, idx.EndScan(), ErrScanNotInitialized)
}

func TestScanNotInitialized(t *testing.T) {
	idx, _ := newTestIndex(t, IntType, 16)

	_, err := idx.ScanNext()
	assert.ErrorIs(t, err, ErrScanNotInitialized)
	assert.ErrorIs(t, idx.EndScan(), ErrScanNotInitialized)
}

func TestDuplicateKeys(t *testing.T) {
	idx, _ := newTestIndex(t, IntType, 16)

	dups := []heap.RecordID{
		{PageNo: 11, Slot: 0},
		{PageNo: 12, Slot: 3},
		{PageNo: 13, Slot: 6},
	}
	for _, r := range dups {
		require.NoError(t, idx.Insert(intKey(7), r))
	}
	require.NoError(t, idx.Insert(intKey(6), rid(6)))
	require.NoError(t, idx.Insert(intKey(8), rid(8)))

	require.NoError(t, idx.StartScan(intKey(7), GTE, intKey(7), LTE))
	got := drain(t, idx)
	require.NoError(t, idx.EndScan())

	assert.ElementsMatch(t, dups, got)
}

func TestScanRestartEndsPreviousScan(t *testing.T) {
	idx, bufmgr := newTestIndex(t, IntType, 16)

	for k := int32(0); k < 20; k++ {
		require.NoError(t, idx.Insert(intKey(k), rid(uint32(k))))
	}

	require.NoError(t, idx.StartScan(intKey(0), GTE, intKey(19), LTE))
	_, err := idx.ScanNext()
	require.NoError(t, err)

	// Starting again releases the previous scan's pins.
	require.NoError(t, idx.StartScan(intKey(5), GTE, intKey(6), LTE))
	got := drain(t, idx)
	require.NoError(t, idx.EndScan())

	assert.Equal(t, []heap.RecordID{rid(5), rid(6)}, got)
	assert.Zero(t, bufmgr.PinnedPages(idx.File()))
}

func TestRootLeafSplit(t *testing.T) {
	idx, bufmgr := newTestIndex(t, IntType, 16)

	occ := idx.LeafOccupancy()
	for k := 0; k < occ; k++ {
		require.NoError(t, idx.Insert(intKey(int32(k)), rid(uint32(k+1))))
	}
	// Exactly full: the root is still a lone leaf.
	assert.True(t, idx.OnlyRoot())
	assert.EqualValues(t, 2, idx.RootPageNum())

	// One more entry forces the split and the root promotion.
	require.NoError(t, idx.Insert(intKey(int32(occ)), rid(uint32(occ+1))))
	assert.False(t, idx.OnlyRoot())
	assert.NotEqualValues(t, 2, idx.RootPageNum())

	require.NoError(t, idx.StartScan(intKey(0), GTE, intKey(int32(occ)), LTE))
	got := drain(t, idx)
	require.NoError(t, idx.EndScan())
	require.Len(t, got, occ+1)
	for i, r := range got {
		assert.Equal(t, rid(uint32(i+1)), r)
	}
	assert.Zero(t, bufmgr.PinnedPages(idx.File()))
}

func TestFullScanSortedAfterRandomInserts(t *testing.T) {
	idx, _ := newTestIndex(t, IntType, 16)

	rng := rand.New(rand.NewSource(1))
	n := 5000
	perm := rng.Perm(n)
	for _, k := range perm {
		require.NoError(t, idx.Insert(intKey(int32(k)), rid(uint32(k+1))))
	}

	require.NoError(t, idx.StartScan(intKey(0), GTE, intKey(int32(n-1)), LTE))
	got := drain(t, idx)
	require.NoError(t, idx.EndScan())

	require.Len(t, got, n)
	for i, r := range got {
		assert.Equal(t, rid(uint32(i+1)), r, "position %d", i)
	}
}

func TestEqualRangeFindsEveryEntry(t *testing.T) {
	idx, _ := newTestIndex(t, IntType, 16)

	n := 2000
	rng := rand.New(rand.NewSource(7))
	keys := rng.Perm(n)
	for _, k := range keys {
		require.NoError(t, idx.Insert(intKey(int32(k)), rid(uint32(k+1))))
	}

	for _, k := range []int32{0, 1, 999, 1500, int32(n - 1)} {
		require.NoError(t, idx.StartScan(intKey(k), GTE, intKey(k), LTE))
		got := drain(t, idx)
		require.NoError(t, idx.EndScan())
		assert.Equal(t, []heap.RecordID{rid(uint32(k + 1))}, got, "key %d", k)
	}
}

func TestMultiLevelGrowth(t *testing.T) {
	if testing.Short() {
		t.Skip("multi-level growth inserts hundreds of thousands of keys")
	}
	idx, bufmgr := newTestIndex(t, IntType, 64)

	// Sequential inserts leave leaves about half full, so this drives the
	// first internal node past its occupancy and splits the root twice.
	n := 400000
	for k := 0; k < n; k++ {
		require.NoError(t, idx.Insert(intKey(int32(k)), heap.RecordID{PageNo: uint32(k + 1), Slot: 1}))
	}
	firstRoot := idx.RootPageNum()
	assert.False(t, idx.OnlyRoot())

	require.NoError(t, idx.StartScan(intKey(0), GTE, intKey(int32(n-1)), LTE))
	count := 0
	prev := int32(-1)
	for {
		r, err := idx.ScanNext()
		if err == ErrIndexScanCompleted {
			break
		}
		if err != nil {
			t.Fatalf("scan next: %v", err)
		}
		k := int32(r.PageNo - 1)
		if k <= prev {
			t.Fatalf("out of order: %d after %d", k, prev)
		}
		prev = k
		count++
	}
	require.NoError(t, idx.EndScan())
	assert.Equal(t, n, count)
	assert.NotEqualValues(t, 2, firstRoot)
	assert.Zero(t, bufmgr.PinnedPages(idx.File()))
}

func TestSmallPoolPinDiscipline(t *testing.T) {
	// A pool barely larger than the deepest pin chain: any leaked pin
	// starves the pool and surfaces as ErrNoFreeFrames.
	idx, bufmgr := newTestIndex(t, IntType, 6)

	n := 20000
	for k := 0; k < n; k++ {
		require.NoError(t, idx.Insert(intKey(int32(k)), rid(uint32(k+1))))
	}
	for i := 0; i < 50; i++ {
		lo := int32(i * 100)
		require.NoError(t, idx.StartScan(intKey(lo), GTE, intKey(lo+500), LTE))
		drain(t, idx)
		require.NoError(t, idx.EndScan())
		assert.Zero(t, bufmgr.PinnedPages(idx.File()))
	}
}

func TestDoubleKeys(t *testing.T) {
	idx, _ := newTestIndex(t, DoubleType, 16)

	vals := []float64{3.25, -1.5, 0.0, 99.75, 2.5}
	for i, v := range vals {
		require.NoError(t, idx.Insert(doubleKey(v), rid(uint32(i+1))))
	}

	require.NoError(t, idx.StartScan(doubleKey(0.0), GTE, doubleKey(4.0), LTE))
	got := drain(t, idx)
	require.NoError(t, idx.EndScan())

	// Keys in range, ascending: 0.0, 2.5, 3.25.
	assert.Equal(t, []heap.RecordID{rid(3), rid(5), rid(1)}, got)
}

func TestStringKeys(t *testing.T) {
	idx, _ := newTestIndex(t, StringType, 16)

	words := []string{"apple", "banana", "cherry", "date"}
	for i, w := range words {
		require.NoError(t, idx.Insert(stringKey(w), rid(uint32(i+1))))
	}

	require.NoError(t, idx.StartScan(stringKey("b"), GTE, stringKey("d"), LT))
	got := drain(t, idx)
	require.NoError(t, idx.EndScan())

	assert.Equal(t, []heap.RecordID{rid(2), rid(3)}, got)
}

func TestReopenPreservesScanResults(t *testing.T) {
	dir := t.TempDir()
	relation := filepath.Join(dir, "parts")

	bufmgr := buffer.NewManager(16)
	idx, _, err := Open(zap.NewNop(), bufmgr, relation, 0, IntType)
	require.NoError(t, err)

	n := 3000
	rng := rand.New(rand.NewSource(42))
	keys := rng.Perm(n)
	for _, k := range keys {
		require.NoError(t, idx.Insert(intKey(int32(k)), rid(uint32(k+1))))
	}

	require.NoError(t, idx.StartScan(intKey(100), GTE, intKey(2100), LTE))
	before := drain(t, idx)
	require.NoError(t, idx.EndScan())
	require.NoError(t, idx.Close())

	// A fresh manager and index handle must see the same tree from disk.
	bufmgr2 := buffer.NewManager(16)
	idx2, _, err := Open(zap.NewNop(), bufmgr2, relation, 0, IntType)
	require.NoError(t, err)
	defer idx2.Close()
	assert.Equal(t, idx.RootPageNum(), idx2.RootPageNum())

	require.NoError(t, idx2.StartScan(intKey(100), GTE, intKey(2100), LTE))
	after := drain(t, idx2)
	require.NoError(t, idx2.EndScan())

	assert.Equal(t, before, after)
}

func TestBulkLoadFromRelation(t *testing.T) {
	dir := t.TempDir()
	relation := filepath.Join(dir, "items")

	layout := record.NewLayout(
		record.Char("name", 10),
		record.Int32("qty"),
		record.Float64("price"),
	)

	bufmgr := buffer.NewManager(16)
	rel, err := heap.OpenRelation(bufmgr, relation)
	require.NoError(t, err)

	n := 500
	rids := make(map[int32]heap.RecordID, n)
	for i := 0; i < n; i++ {
		rec := layout.New()
		layout.PutChar(rec, "name", "item")
		layout.PutInt32(rec, "qty", int32(n-i))
		layout.PutFloat64(rec, "price", float64(i)/4)
		r, err := rel.InsertRecord(rec)
		require.NoError(t, err)
		rids[int32(n-i)] = r
	}
	require.NoError(t, rel.Close())

	idx, name, err := Open(zap.NewNop(), bufmgr, relation, layout.Offset("qty"), IntType)
	require.NoError(t, err)
	defer idx.Close()
	assert.Equal(t, relation+".10", name)

	require.NoError(t, idx.StartScan(intKey(1), GTE, intKey(int32(n)), LTE))
	got := drain(t, idx)
	require.NoError(t, idx.EndScan())

	require.Len(t, got, n)
	for i, r := range got {
		assert.Equal(t, rids[int32(i+1)], r, "qty %d", i+1)
	}
}

func TestOccupanciesFitOnePage(t *testing.T) {
	for _, tc := range []struct {
		attrType AttrType
		width    int
	}{
		{IntType, 4},
		{DoubleType, 8},
		{StringType, StringSize},
	} {
		leafOcc := leafOccupancy(tc.width)
		nodeOcc := nodeOccupancy(tc.width)
		assert.LessOrEqual(t, leafOcc*(tc.width+ridSize)+pageNoSize, 8192, "%v leaf", tc.attrType)
		assert.LessOrEqual(t, levelSize+nodeOcc*tc.width+(nodeOcc+1)*pageNoSize, 8192, "%v node", tc.attrType)
		assert.Greater(t, leafOcc, 2)
		assert.Greater(t, nodeOcc, 2)
	}
}
