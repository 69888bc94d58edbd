package index

import (
	"encoding/binary"

	"github.com/relixdb/relix/buffer"
	"github.com/relixdb/relix/disk"
)

// RelationNameSize is the width of the fixed name buffer on the meta page.
const RelationNameSize = 20

// Meta page layout:
//
//	[0:20]  relationName, zero-padded
//	[20:24] attrByteOffset (int32)
//	[24:28] attrType (int32)
//	[28:32] rootPageNo (uint32)
const (
	metaNameOffset     = 0
	metaAttrOffset     = RelationNameSize
	metaAttrTypeOffset = metaAttrOffset + 4
	metaRootOffset     = metaAttrTypeOffset + 4
)

// metaPage interprets the index header page as IndexMetaInfo.
type metaPage struct {
	p *buffer.Page
}

func (m metaPage) relationName() string {
	buf := m.p[metaNameOffset : metaNameOffset+RelationNameSize]
	end := 0
	for end < len(buf) && buf[end] != 0 {
		end++
	}
	return string(buf[:end])
}

func (m metaPage) setRelationName(name string) {
	buf := m.p[metaNameOffset : metaNameOffset+RelationNameSize]
	for i := range buf {
		buf[i] = 0
	}
	copy(buf, name)
}

func (m metaPage) attrByteOffset() int {
	return int(int32(binary.LittleEndian.Uint32(m.p[metaAttrOffset:])))
}

func (m metaPage) setAttrByteOffset(off int) {
	binary.LittleEndian.PutUint32(m.p[metaAttrOffset:], uint32(int32(off)))
}

func (m metaPage) attrType() AttrType {
	return AttrType(int32(binary.LittleEndian.Uint32(m.p[metaAttrTypeOffset:])))
}

func (m metaPage) setAttrType(t AttrType) {
	binary.LittleEndian.PutUint32(m.p[metaAttrTypeOffset:], uint32(int32(t)))
}

func (m metaPage) rootPageNo() disk.PageID {
	return disk.PageID(binary.LittleEndian.Uint32(m.p[metaRootOffset:]))
}

func (m metaPage) setRootPageNo(pageNo disk.PageID) {
	binary.LittleEndian.PutUint32(m.p[metaRootOffset:], uint32(pageNo))
}
