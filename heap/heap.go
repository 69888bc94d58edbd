package heap

import (
	"errors"

	pkgerrors "github.com/pkg/errors"

	"github.com/relixdb/relix/buffer"
	"github.com/relixdb/relix/disk"
)

// ErrEndOfFile signals that a scan has visited every record. It terminates
// bulk-load loops and is not a failure.
var ErrEndOfFile = errors.New("end of file")

// RecordID locates a record: the page it lives on and its slot within the
// page. Page number 0 never holds records, so a zero RecordID doubles as the
// empty sentinel.
type RecordID struct {
	PageNo uint32
	Slot   uint16
}

// Relation is a heap file of records. Record pages start at page 1;
// page 0 stays reserved like every blob file.
type Relation struct {
	file   *disk.File
	bufmgr *buffer.Manager
}

// OpenRelation opens the relation stored at path, creating an empty one if
// the file does not exist.
func OpenRelation(bufmgr *buffer.Manager, path string) (*Relation, error) {
	file, err := disk.OpenFile(path)
	if err != nil {
		return nil, err
	}
	return &Relation{file: file, bufmgr: bufmgr}, nil
}

func (r *Relation) File() *disk.File {
	return r.file
}

// InsertRecord appends a record, filling the last page before allocating a
// new one, and returns where it landed.
func (r *Relation) InsertRecord(data []byte) (RecordID, error) {
	if len(data) > disk.PageSize-pageHeaderSize-slotSize {
		return RecordID{}, pkgerrors.Errorf("record of %d bytes exceeds page capacity", len(data))
	}

	if last := r.file.NumPages() - 1; last.Valid() {
		page, err := r.bufmgr.ReadPage(r.file, last)
		if err != nil {
			return RecordID{}, err
		}
		rp := recordPage{p: page}
		if slot, ok := rp.insert(data); ok {
			if err := r.bufmgr.UnpinPage(r.file, last, true); err != nil {
				return RecordID{}, err
			}
			return RecordID{PageNo: uint32(last), Slot: uint16(slot)}, nil
		}
		if err := r.bufmgr.UnpinPage(r.file, last, false); err != nil {
			return RecordID{}, err
		}
	}

	pageNo, page, err := r.bufmgr.AllocPage(r.file)
	if err != nil {
		return RecordID{}, err
	}
	rp := recordPage{p: page}
	rp.init()
	slot, ok := rp.insert(data)
	if !ok {
		r.bufmgr.UnpinPage(r.file, pageNo, false)
		return RecordID{}, pkgerrors.Errorf("record of %d bytes does not fit a fresh page", len(data))
	}
	if err := r.bufmgr.UnpinPage(r.file, pageNo, true); err != nil {
		return RecordID{}, err
	}
	return RecordID{PageNo: uint32(pageNo), Slot: uint16(slot)}, nil
}

func (r *Relation) Flush() error {
	return r.bufmgr.FlushFile(r.file)
}

func (r *Relation) Close() error {
	if err := r.bufmgr.FlushFile(r.file); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// FileScan iterates every record of a relation in file order. The page under
// the cursor stays pinned between calls; Close releases it.
type FileScan struct {
	rel    *Relation
	pageNo disk.PageID
	page   *buffer.Page
	slot   int
}

func NewFileScan(rel *Relation) *FileScan {
	return &FileScan{rel: rel, pageNo: 0, slot: -1}
}

// Next advances to the next record and returns its RecordID.
// ErrEndOfFile reports that no records remain.
func (s *FileScan) Next() (RecordID, error) {
	for {
		if s.page != nil {
			s.slot++
			if s.slot < (recordPage{p: s.page}).numRecords() {
				return RecordID{PageNo: uint32(s.pageNo), Slot: uint16(s.slot)}, nil
			}
			if err := s.rel.bufmgr.UnpinPage(s.rel.file, s.pageNo, false); err != nil {
				return RecordID{}, err
			}
			s.page = nil
		}

		next := s.pageNo + 1
		if next >= s.rel.file.NumPages() {
			return RecordID{}, ErrEndOfFile
		}
		page, err := s.rel.bufmgr.ReadPage(s.rel.file, next)
		if err != nil {
			return RecordID{}, err
		}
		s.pageNo = next
		s.page = page
		s.slot = -1
	}
}

// GetRecord returns a copy of the record under the cursor.
func (s *FileScan) GetRecord() ([]byte, error) {
	if s.page == nil {
		return nil, pkgerrors.New("file scan has no current record")
	}
	data := (recordPage{p: s.page}).record(s.slot)
	if data == nil {
		return nil, pkgerrors.Errorf("corrupt slot %d on page %d", s.slot, s.pageNo)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Close releases the pin held on the current page, if any.
func (s *FileScan) Close() error {
	if s.page == nil {
		return nil
	}
	err := s.rel.bufmgr.UnpinPage(s.rel.file, s.pageNo, false)
	s.page = nil
	return err
}
