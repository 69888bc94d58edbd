// Package relix demonstrates how the pieces fit together: a relation file
// of fixed-width records, a buffer manager, and a B+ tree secondary index
// over one attribute.
package relix

import (
	"encoding/binary"
	"fmt"

	"go.uber.org/zap"

	"github.com/relixdb/relix/buffer"
	"github.com/relixdb/relix/heap"
	"github.com/relixdb/relix/index"
	"github.com/relixdb/relix/record"
)

// ExampleBuildAndScan creates a small relation, bulk-loads an index over
// its integer attribute and scans a key range.
func ExampleBuildAndScan() {
	bufmgr := buffer.NewManager(32)

	// Records: name char(10), age int32. The index goes over age.
	layout := record.NewLayout(
		record.Char("name", 10),
		record.Int32("age"),
	)

	rel, err := heap.OpenRelation(bufmgr, "people")
	if err != nil {
		fmt.Printf("open relation: %v\n", err)
		return
	}
	people := []struct {
		name string
		age  int32
	}{
		{"Alice", 34},
		{"Bob", 29},
		{"Charlie", 41},
		{"Dave", 29},
	}
	for _, p := range people {
		rec := layout.New()
		layout.PutChar(rec, "name", p.name)
		layout.PutInt32(rec, "age", p.age)
		if _, err := rel.InsertRecord(rec); err != nil {
			fmt.Printf("insert record: %v\n", err)
			return
		}
	}
	if err := rel.Close(); err != nil {
		fmt.Printf("close relation: %v\n", err)
		return
	}

	// Open creates "people.10" and bulk-loads it from the relation.
	logger, _ := zap.NewDevelopment()
	idx, indexName, err := index.Open(logger, bufmgr, "people", layout.Offset("age"), index.IntType)
	if err != nil {
		fmt.Printf("open index: %v\n", err)
		return
	}
	defer idx.Close()
	fmt.Printf("index file: %s\n", indexName)

	// Everyone between 29 and 40, inclusive on the left only.
	low := make([]byte, 4)
	binary.LittleEndian.PutUint32(low, 29)
	high := make([]byte, 4)
	binary.LittleEndian.PutUint32(high, 40)
	if err := idx.StartScan(low, index.GTE, high, index.LT); err != nil {
		fmt.Printf("start scan: %v\n", err)
		return
	}
	defer idx.EndScan()

	for {
		rid, err := idx.ScanNext()
		if err == index.ErrIndexScanCompleted {
			break
		}
		if err != nil {
			fmt.Printf("scan: %v\n", err)
			return
		}
		fmt.Printf("match at page %d slot %d\n", rid.PageNo, rid.Slot)
	}
}
