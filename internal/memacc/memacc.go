// Package memacc provides access to target memory.
//
// The ring buffer consumer only needs the Reader capability. Accessors cover
// an address range of the target and are combined by a Mapper when the
// target's memory is spread over several backing stores.
package memacc

import (
	"fmt"

	"ethosumonitor/internal/common"
	"ethosumonitor/internal/emon"
)

// Reader reads target memory. Implementations return exactly size bytes or
// an error with code emon.ErrTransport; they must not cache, every call goes
// to the target.
type Reader interface {
	ReadMemory(addr uint64, size uint32) ([]byte, error)
}

// ReaderFunc adapts a function to the Reader interface.
type ReaderFunc func(addr uint64, size uint32) ([]byte, error)

func (f ReaderFunc) ReadMemory(addr uint64, size uint32) ([]byte, error) { return f(addr, size) }

func transportErr(err error, format string, args ...any) error {
	return common.WrapError(emon.ErrSevError, emon.ErrTransport, err, fmt.Sprintf(format, args...))
}
