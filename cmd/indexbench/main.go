// Command indexbench measures the index against a pebble baseline: bulk
// load, point lookups and range scans over the same key set. Results go to
// a CSV and a latency chart.
package main

import (
	"encoding/binary"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/relixdb/relix/buffer"
	"github.com/relixdb/relix/heap"
	"github.com/relixdb/relix/index"
	"github.com/relixdb/relix/record"
)

var testTypes = []string{"BulkLoad", "PointScan", "RangeScan"}

type result struct {
	structure string
	latencies map[string]int64 // test type -> ns/op
}

func main() {
	var (
		records = flag.Int("records", 100000, "records in the generated relation")
		frames  = flag.Int("frames", 256, "buffer pool frames")
		points  = flag.Int("points", 5000, "point lookups per suite")
		ranges  = flag.Int("ranges", 500, "range scans per suite")
		span    = flag.Int("span", 100, "key span of one range scan")
		csvPath = flag.String("csv", "indexbench.csv", "CSV output path")
		pngPath = flag.String("png", "indexbench.png", "latency chart output path")
		workDir = flag.String("dir", "", "working directory (default: a temp dir)")
	)
	flag.Parse()

	dir := *workDir
	if dir == "" {
		var err error
		dir, err = os.MkdirTemp("", "indexbench")
		if err != nil {
			log.Fatalf("create working dir: %v", err)
		}
		defer os.RemoveAll(dir)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	keys := rng.Perm(*records)

	results := []result{
		runIndexSuite(dir, *frames, keys, *points, *ranges, *span, rng),
		runPebbleSuite(dir, keys, *points, *ranges, *span, rng),
	}

	if err := writeCSV(*csvPath, results); err != nil {
		log.Fatalf("write csv: %v", err)
	}
	if err := writeChart(*pngPath, results); err != nil {
		log.Fatalf("write chart: %v", err)
	}
	fmt.Printf("benchmark complete: %s, %s\n", *csvPath, *pngPath)
}

func intKey(v int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}

func runIndexSuite(dir string, frames int, keys []int, points, ranges, span int, rng *rand.Rand) result {
	fmt.Printf("relix: loading %d records\n", len(keys))
	bufmgr := buffer.NewManager(frames)
	relation := filepath.Join(dir, "bench_relation")

	layout := record.NewLayout(record.Int32("key"), record.Char("payload", 16))
	rel, err := heap.OpenRelation(bufmgr, relation)
	if err != nil {
		log.Fatalf("open relation: %v", err)
	}
	for _, k := range keys {
		rec := layout.New()
		layout.PutInt32(rec, "key", int32(k))
		layout.PutChar(rec, "payload", "x")
		if _, err := rel.InsertRecord(rec); err != nil {
			log.Fatalf("insert record: %v", err)
		}
	}
	if err := rel.Close(); err != nil {
		log.Fatalf("close relation: %v", err)
	}

	start := time.Now()
	idx, _, err := index.Open(zap.NewNop(), bufmgr, relation, layout.Offset("key"), index.IntType)
	if err != nil {
		log.Fatalf("open index: %v", err)
	}
	defer idx.Close()
	loadNs := time.Since(start).Nanoseconds() / int64(len(keys))

	drain := func() int {
		n := 0
		for {
			if _, err := idx.ScanNext(); err != nil {
				if err == index.ErrIndexScanCompleted {
					return n
				}
				log.Fatalf("scan next: %v", err)
			}
			n++
		}
	}

	start = time.Now()
	for i := 0; i < points; i++ {
		k := int32(rng.Intn(len(keys)))
		err := idx.StartScan(intKey(k), index.GTE, intKey(k), index.LTE)
		if err != nil && err != index.ErrIndexScanCompleted {
			log.Fatalf("start scan: %v", err)
		}
		drain()
		if err := idx.EndScan(); err != nil {
			log.Fatalf("end scan: %v", err)
		}
	}
	pointNs := time.Since(start).Nanoseconds() / int64(points)

	start = time.Now()
	for i := 0; i < ranges; i++ {
		lo := int32(rng.Intn(len(keys)))
		err := idx.StartScan(intKey(lo), index.GTE, intKey(lo+int32(span)), index.LT)
		if err != nil && err != index.ErrIndexScanCompleted {
			log.Fatalf("start scan: %v", err)
		}
		drain()
		if err := idx.EndScan(); err != nil {
			log.Fatalf("end scan: %v", err)
		}
	}
	rangeNs := time.Since(start).Nanoseconds() / int64(ranges)

	return result{
		structure: "relix",
		latencies: map[string]int64{
			"BulkLoad":  loadNs,
			"PointScan": pointNs,
			"RangeScan": rangeNs,
		},
	}
}

func runPebbleSuite(dir string, keys []int, points, ranges, span int, rng *rand.Rand) result {
	fmt.Printf("pebble: loading %d records\n", len(keys))
	db, err := pebble.Open(filepath.Join(dir, "pebble"), &pebble.Options{})
	if err != nil {
		log.Fatalf("open pebble: %v", err)
	}
	defer db.Close()

	// Big-endian keys so pebble's byte order matches numeric order.
	beKey := func(v int32) []byte {
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(v))
		return b
	}

	start := time.Now()
	for i, k := range keys {
		rid := make([]byte, 8)
		binary.LittleEndian.PutUint64(rid, uint64(i))
		if err := db.Set(beKey(int32(k)), rid, pebble.NoSync); err != nil {
			log.Fatalf("pebble set: %v", err)
		}
	}
	loadNs := time.Since(start).Nanoseconds() / int64(len(keys))

	start = time.Now()
	for i := 0; i < points; i++ {
		k := int32(rng.Intn(len(keys)))
		if _, closer, err := db.Get(beKey(k)); err == nil {
			closer.Close()
		} else if err != pebble.ErrNotFound {
			log.Fatalf("pebble get: %v", err)
		}
	}
	pointNs := time.Since(start).Nanoseconds() / int64(points)

	start = time.Now()
	for i := 0; i < ranges; i++ {
		lo := int32(rng.Intn(len(keys)))
		iter, err := db.NewIter(&pebble.IterOptions{
			LowerBound: beKey(lo),
			UpperBound: beKey(lo + int32(span)),
		})
		if err != nil {
			log.Fatalf("pebble iter: %v", err)
		}
		for iter.First(); iter.Valid(); iter.Next() {
		}
		iter.Close()
	}
	rangeNs := time.Since(start).Nanoseconds() / int64(ranges)

	return result{
		structure: "pebble",
		latencies: map[string]int64{
			"BulkLoad":  loadNs,
			"PointScan": pointNs,
			"RangeScan": rangeNs,
		},
	}
}

func writeCSV(path string, results []result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"Structure", "TestType", "LatencyNs"}); err != nil {
		return err
	}
	for _, r := range results {
		for _, tt := range testTypes {
			if err := w.Write([]string{r.structure, tt, strconv.FormatInt(r.latencies[tt], 10)}); err != nil {
				return err
			}
		}
	}
	w.Flush()
	return w.Error()
}

func writeChart(path string, results []result) error {
	p := plot.New()
	p.Title.Text = "Index operation latency"
	p.Y.Label.Text = "ns/op"
	p.NominalX(testTypes...)

	width := vg.Points(20)
	offsets := []vg.Length{-width / 2, width / 2}
	for i, r := range results {
		vals := make(plotter.Values, len(testTypes))
		for j, tt := range testTypes {
			vals[j] = float64(r.latencies[tt])
		}
		bars, err := plotter.NewBarChart(vals, width)
		if err != nil {
			return err
		}
		bars.Offset = offsets[i%len(offsets)]
		bars.Color = plotutil.Color(i)
		p.Add(bars)
		p.Legend.Add(r.structure, bars)
	}
	p.Legend.Top = true

	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
