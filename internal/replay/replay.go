// Package replay reads a binary record capture, the output of the binary
// printer, back as a record source.
package replay

import (
	"io"
	"iter"

	"golang.org/x/exp/mmap"

	"ethosumonitor/internal/common"
	"ethosumonitor/internal/emon"
	"ethosumonitor/internal/evr"
)

// Reader yields the records of a capture in file order. Record indexes are
// the record's position in the capture.
type Reader struct {
	r      io.ReaderAt
	size   int64
	off    int64
	closer io.Closer
	done   bool
}

// Open maps the capture file at path.
func Open(path string) (*Reader, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, common.WrapError(emon.ErrSevError, emon.ErrFileError, err, "capture "+path)
	}
	r := NewReader(m, int64(m.Len()))
	r.closer = m
	return r, nil
}

// NewReader reads size bytes of capture from r.
func NewReader(r io.ReaderAt, size int64) *Reader {
	return &Reader{r: r, size: size}
}

// Poll yields the records not read yet followed by io.EOF. A trailing
// partial record is reported with a recoverable MalformedRecord error
// before io.EOF.
func (r *Reader) Poll() iter.Seq2[evr.EventRecord, error] {
	return func(yield func(evr.EventRecord, error) bool) {
		var buf [evr.RecordSize]byte
		for r.size-r.off >= evr.RecordSize {
			if _, err := r.r.ReadAt(buf[:], r.off); err != nil {
				yield(evr.EventRecord{}, common.WrapError(emon.ErrSevError, emon.ErrFileError, err, "capture read"))
				return
			}
			rec, err := evr.DecodeRecord(buf[:])
			if err != nil {
				yield(evr.EventRecord{}, err)
				return
			}
			rec.Index = uint32(r.off / evr.RecordSize)
			r.off += evr.RecordSize
			if !yield(rec, nil) {
				return
			}
		}

		if rem := r.size - r.off; rem > 0 && !r.done {
			r.done = true
			err := common.NewErrorWithIdxMsg(emon.ErrSevWarn, emon.ErrMalformedRecord, uint64(r.off/evr.RecordSize),
				"capture ends with a partial record")
			if !yield(evr.EventRecord{}, err) {
				return
			}
		}
		yield(evr.EventRecord{}, io.EOF)
	}
}

// Records returns the number of records read so far.
func (r *Reader) Records() uint64 {
	return uint64(r.off / evr.RecordSize)
}

func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
