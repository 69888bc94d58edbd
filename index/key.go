package index

import (
	"bytes"
	"encoding/binary"
	"math"
)

// StringSize is the width of string keys. String keys are raw byte arrays
// with no trailing-NUL convention, ordered by memcmp over all bytes.
const StringSize = 10

// AttrType selects the key type of an index. It is fixed at creation and
// persisted on the meta page.
type AttrType int32

const (
	IntType AttrType = iota
	DoubleType
	StringType
)

func (t AttrType) String() string {
	switch t {
	case IntType:
		return "INTEGER"
	case DoubleType:
		return "DOUBLE"
	case StringType:
		return "STRING"
	default:
		return "UNKNOWN"
	}
}

// StringKey is an owned fixed-width string key.
type StringKey [StringSize]byte

// MakeStringKey copies up to StringSize bytes of b into an owned key,
// zero-padding the remainder.
func MakeStringKey(b []byte) StringKey {
	var k StringKey
	copy(k[:], b)
	return k
}

// keyCodec fixes one key type's byte width, page encoding and total order.
// The tree is generic over it; the three instances below are the only ones.
type keyCodec[K any] struct {
	width   int
	read    func(b []byte) K
	write   func(b []byte, k K)
	compare func(a, b K) int
}

var intCodec = &keyCodec[int32]{
	width: 4,
	read: func(b []byte) int32 {
		return int32(binary.LittleEndian.Uint32(b))
	},
	write: func(b []byte, k int32) {
		binary.LittleEndian.PutUint32(b, uint32(k))
	},
	compare: func(a, b int32) int {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	},
}

var doubleCodec = &keyCodec[float64]{
	width: 8,
	read: func(b []byte) float64 {
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	},
	write: func(b []byte, k float64) {
		binary.LittleEndian.PutUint64(b, math.Float64bits(k))
	},
	compare: func(a, b float64) int {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	},
}

var stringCodec = &keyCodec[StringKey]{
	width: StringSize,
	read: func(b []byte) StringKey {
		return MakeStringKey(b)
	},
	write: func(b []byte, k StringKey) {
		copy(b, k[:])
	},
	compare: func(a, b StringKey) int {
		return bytes.Compare(a[:], b[:])
	},
}

// keyWidth returns the byte width of the given attribute type's keys.
func keyWidth(t AttrType) int {
	switch t {
	case IntType:
		return intCodec.width
	case DoubleType:
		return doubleCodec.width
	case StringType:
		return stringCodec.width
	default:
		return 0
	}
}
