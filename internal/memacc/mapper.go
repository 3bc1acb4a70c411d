package memacc

import (
	"errors"
	"io"

	"ethosumonitor/internal/common"
	"ethosumonitor/internal/emon"
)

// Mapper routes target addresses to the accessor that covers them.
type Mapper struct {
	accessors []Accessor
	accCurr   Accessor
}

func NewMapper() *Mapper {
	return &Mapper{}
}

// AddAccessor adds a new memory accessor to the mapper. Accessors may not
// overlap.
func (m *Mapper) AddAccessor(accessor Accessor) error {
	st, en := accessor.GetRange()
	if en < st {
		return common.Errorf(emon.ErrInvalidParamVal, "accessor range 0x%x-0x%x invalid", st, en)
	}
	for _, a := range m.accessors {
		if a.OverlapRange(accessor) {
			ast, aen := a.GetRange()
			return common.Errorf(emon.ErrMemAccOverlap, "range 0x%x-0x%x overlaps 0x%x-0x%x", st, en, ast, aen)
		}
	}
	m.accessors = append(m.accessors, accessor)
	return nil
}

// RemoveAllAccessors closes and drops every accessor.
func (m *Mapper) RemoveAllAccessors() error {
	var errs []error
	for _, a := range m.accessors {
		if c, ok := a.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	m.accessors = nil
	m.accCurr = nil
	return errors.Join(errs...)
}

// Close implements io.Closer.
func (m *Mapper) Close() error {
	return m.RemoveAllAccessors()
}

func (m *Mapper) GetAccessors() []Accessor {
	return m.accessors
}

// ReadMemory implements the Reader interface. The whole request must be
// covered by a single accessor.
func (m *Mapper) ReadMemory(address uint64, reqBytes uint32) ([]byte, error) {
	if !m.findAccessor(address, reqBytes) {
		return nil, transportErr(
			common.Errorf(emon.ErrNoMapping, "no mapping found for device address 0x%x size %d", address, reqBytes),
			"mapper")
	}
	return m.accCurr.ReadMemory(address, reqBytes)
}

func (m *Mapper) findAccessor(address uint64, reqBytes uint32) bool {
	if m.accCurr != nil && m.accCurr.BytesInRange(address, reqBytes) == reqBytes {
		return true
	}
	for _, acc := range m.accessors {
		if acc.BytesInRange(address, reqBytes) == reqBytes {
			m.accCurr = acc
			return true
		}
	}
	return false
}
