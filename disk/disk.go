// Package disk provides page-granular I/O over a blob file.
// A blob file is a sequence of fixed-size pages addressed by page number;
// page 0 is reserved by the file container and doubles as the null page.
package disk

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// PageSize is the size of a page in bytes (8KB).
const PageSize = 8192

// PageID identifies a page within a blob file.
// Page number 0 is never allocated and serves as the null page.
type PageID uint32

func (p PageID) Valid() bool {
	return p != 0
}

// File is an open blob file. Pages are read and written whole; allocation
// only hands out fresh page numbers and never reuses old ones.
type File struct {
	path       string
	f          *os.File
	nextPageNo PageID
}

// Exists reports whether a blob file is already present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// OpenFile opens the blob file at path, creating it if necessary.
// On a fresh file the reserved page 0 is accounted for so that the first
// allocation returns page 1.
func OpenFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "open blob file %s", path)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "stat blob file %s", path)
	}
	nextPageNo := PageID(stat.Size() / PageSize)
	if nextPageNo == 0 {
		nextPageNo = 1
	}
	return &File{
		path:       path,
		f:          f,
		nextPageNo: nextPageNo,
	}, nil
}

func (f *File) Path() string {
	return f.path
}

// NumPages returns the number of pages the file accounts for,
// including the reserved page 0.
func (f *File) NumPages() PageID {
	return f.nextPageNo
}

// ReadPage fills data with the contents of page pageNo.
// A page that was allocated but never written back reads as zeroes.
func (f *File) ReadPage(pageNo PageID, data []byte) error {
	offset := int64(PageSize) * int64(pageNo)
	if _, err := f.f.Seek(offset, io.SeekStart); err != nil {
		return errors.Wrapf(err, "seek page %d of %s", pageNo, f.path)
	}
	if _, err := io.ReadFull(f.f, data); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			// Allocated but not yet flushed; the page is all zeroes.
			for i := range data {
				data[i] = 0
			}
			return nil
		}
		return errors.Wrapf(err, "read page %d of %s", pageNo, f.path)
	}
	return nil
}

func (f *File) WritePage(pageNo PageID, data []byte) error {
	offset := int64(PageSize) * int64(pageNo)
	if _, err := f.f.Seek(offset, io.SeekStart); err != nil {
		return errors.Wrapf(err, "seek page %d of %s", pageNo, f.path)
	}
	if _, err := f.f.Write(data); err != nil {
		return errors.Wrapf(err, "write page %d of %s", pageNo, f.path)
	}
	return nil
}

// AllocatePage reserves the next page number. The page contents exist only
// in memory until a buffer manager writes them back.
func (f *File) AllocatePage() PageID {
	pageNo := f.nextPageNo
	f.nextPageNo++
	return pageNo
}

func (f *File) Sync() error {
	return errors.Wrapf(f.f.Sync(), "sync %s", f.path)
}

func (f *File) Close() error {
	return f.f.Close()
}
