// Package record provides fixed-width record layouts: named int32, float64
// and fixed-size character fields at computed byte offsets. Callers that
// build relations (tests, the bench tool) compose records through a Layout;
// the index itself only ever reads the bytes at one field's offset.
package record

import (
	"encoding/binary"
	"math"
)

type FieldKind int

const (
	Int32Field FieldKind = iota
	Float64Field
	CharField
)

// Field describes one fixed-width attribute.
type Field struct {
	Name string
	Kind FieldKind
	Size int
}

func Int32(name string) Field {
	return Field{Name: name, Kind: Int32Field, Size: 4}
}

func Float64(name string) Field {
	return Field{Name: name, Kind: Float64Field, Size: 8}
}

// Char declares a fixed-width character field of size bytes. Shorter values
// are zero-padded, longer ones truncated.
func Char(name string, size int) Field {
	return Field{Name: name, Kind: CharField, Size: size}
}

// Layout maps field names to byte offsets within a fixed-size record.
type Layout struct {
	fields  []Field
	offsets map[string]int
	size    int
}

func NewLayout(fields ...Field) Layout {
	offsets := make(map[string]int, len(fields))
	size := 0
	for _, f := range fields {
		offsets[f.Name] = size
		size += f.Size
	}
	return Layout{fields: fields, offsets: offsets, size: size}
}

// Size returns the byte width of one record.
func (l Layout) Size() int {
	return l.size
}

// Offset returns the byte offset of the named field.
func (l Layout) Offset(name string) int {
	return l.offsets[name]
}

// New returns a zeroed record of the layout's size.
func (l Layout) New() []byte {
	return make([]byte, l.size)
}

func (l Layout) PutInt32(rec []byte, name string, v int32) {
	binary.LittleEndian.PutUint32(rec[l.offsets[name]:], uint32(v))
}

func (l Layout) PutFloat64(rec []byte, name string, v float64) {
	binary.LittleEndian.PutUint64(rec[l.offsets[name]:], math.Float64bits(v))
}

func (l Layout) PutChar(rec []byte, name string, v string) {
	off := l.offsets[name]
	size := l.fieldSize(name)
	buf := rec[off : off+size]
	for i := range buf {
		buf[i] = 0
	}
	copy(buf, v)
}

func (l Layout) Int32(rec []byte, name string) int32 {
	return int32(binary.LittleEndian.Uint32(rec[l.offsets[name]:]))
}

func (l Layout) Float64(rec []byte, name string) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(rec[l.offsets[name]:]))
}

func (l Layout) Char(rec []byte, name string) []byte {
	off := l.offsets[name]
	return rec[off : off+l.fieldSize(name)]
}

func (l Layout) fieldSize(name string) int {
	for _, f := range l.fields {
		if f.Name == name {
			return f.Size
		}
	}
	return 0
}
