package memacc

import (
	"fmt"

	"golang.org/x/exp/mmap"

	"ethosumonitor/internal/common"
	"ethosumonitor/internal/emon"
)

// FileAccessor maps a captured memory image file, or a window of it, to a
// target address range.
type FileAccessor struct {
	BaseAccessor
	filePath   string
	r          *mmap.ReaderAt
	fileOffset int64
}

// NewFileAccessor maps size bytes of path, starting at offset, to startAddr.
// A zero size maps everything from offset to the end of the file.
func NewFileAccessor(path string, startAddr uint64, offset int64, size int64) (*FileAccessor, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, common.WrapError(emon.ErrSevError, emon.ErrFileError, err, "memory image "+path)
	}

	fileSize := int64(r.Len())
	if size == 0 {
		size = fileSize - offset
	}
	if offset < 0 || size <= 0 || offset+size > fileSize {
		r.Close()
		return nil, common.Errorf(emon.ErrInvalidParamVal,
			"memory image %s: range offset=%d size=%d exceeds file size %d", path, offset, size, fileSize)
	}

	return &FileAccessor{
		BaseAccessor: BaseAccessor{
			StartAddress: startAddr,
			EndAddress:   startAddr + uint64(size) - 1,
			AccType:      TypeFile,
		},
		filePath:   path,
		r:          r,
		fileOffset: offset,
	}, nil
}

// ReadMemory implements the Reader interface.
func (f *FileAccessor) ReadMemory(address uint64, reqBytes uint32) ([]byte, error) {
	if err := f.checkRead(address, reqBytes); err != nil {
		return nil, err
	}
	data := make([]byte, reqBytes)
	off := f.fileOffset + int64(address-f.StartAddress)
	if n, err := f.r.ReadAt(data, off); n != len(data) {
		return nil, transportErr(err, "memory image %s: short read at offset %d", f.filePath, off)
	}
	return data, nil
}

func (f *FileAccessor) Close() error {
	return f.r.Close()
}

func (f *FileAccessor) String() string {
	return fmt.Sprintf("%s; File: %s+%d", f.BaseAccessor.String(), f.filePath, f.fileOffset)
}
