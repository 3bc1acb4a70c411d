package memacc

import (
	"fmt"
)

// Type describes the storage type of the underlying memory accessor.
type Type int

const (
	TypeUnknown Type = iota
	TypeFile         // Memory image file accessor
	TypeBufPtr       // Memory buffer accessor
	TypeCBIf         // Callback interface accessor - use for live memory access
	TypeDevMem       // Physical memory mapping
)

func (t Type) String() string {
	switch t {
	case TypeFile:
		return "File"
	case TypeBufPtr:
		return "Buffer"
	case TypeCBIf:
		return "Callback"
	case TypeDevMem:
		return "DevMem"
	default:
		return "Unknown"
	}
}

// Accessor defines the interface for a memory range access.
type Accessor interface {
	Reader

	// AddrInRange tests if an address is in the inclusive range for this accessor.
	AddrInRange(address uint64) bool

	// BytesInRange tests number of bytes available from the start address, up to the number of requested bytes.
	BytesInRange(address uint64, reqBytes uint32) uint32

	// OverlapRange tests if supplied range accessor overlaps this range.
	OverlapRange(testAcc Accessor) bool

	// GetType returns the storage type of this accessor.
	GetType() Type

	// GetRange returns the start and end addresses of this accessor.
	GetRange() (uint64, uint64)
}

// BaseAccessor implements the common logic for memory accessors.
type BaseAccessor struct {
	StartAddress uint64
	EndAddress   uint64
	AccType      Type
}

func (b *BaseAccessor) AddrInRange(address uint64) bool {
	return address >= b.StartAddress && address <= b.EndAddress
}

func (b *BaseAccessor) BytesInRange(address uint64, reqBytes uint32) uint32 {
	if !b.AddrInRange(address) {
		return 0
	}
	avail := b.EndAddress - address + 1
	if avail > uint64(reqBytes) {
		return reqBytes
	}
	return uint32(avail)
}

func (b *BaseAccessor) OverlapRange(testAcc Accessor) bool {
	st, en := testAcc.GetRange()
	return st <= b.EndAddress && b.StartAddress <= en
}

func (b *BaseAccessor) GetType() Type {
	return b.AccType
}

func (b *BaseAccessor) GetRange() (uint64, uint64) {
	return b.StartAddress, b.EndAddress
}

// checkRead validates that the full request lies inside the accessor.
func (b *BaseAccessor) checkRead(address uint64, reqBytes uint32) error {
	if b.BytesInRange(address, reqBytes) != reqBytes {
		return transportErr(nil, "read 0x%x+%d outside %s range 0x%x-0x%x",
			address, reqBytes, b.AccType, b.StartAddress, b.EndAddress)
	}
	return nil
}

func (b *BaseAccessor) String() string {
	return fmt.Sprintf("Range: 0x%X - 0x%X; Type: %s", b.StartAddress, b.EndAddress, b.AccType)
}
