package memacc

// BufferAccessor represents a memory accessor for a memory buffer.
// Buffer may be modified between reads; every read copies out of it.
type BufferAccessor struct {
	BaseAccessor
	Buffer []byte
}

// NewBufferAccessor creates a new buffer accessor.
func NewBufferAccessor(startAddr uint64, buffer []byte) *BufferAccessor {
	return &BufferAccessor{
		BaseAccessor: BaseAccessor{
			StartAddress: startAddr,
			EndAddress:   startAddr + uint64(len(buffer)) - 1,
			AccType:      TypeBufPtr,
		},
		Buffer: buffer,
	}
}

// ReadMemory implements the Reader interface.
func (b *BufferAccessor) ReadMemory(address uint64, reqBytes uint32) ([]byte, error) {
	if err := b.checkRead(address, reqBytes); err != nil {
		return nil, err
	}
	offset := address - b.StartAddress
	out := make([]byte, reqBytes)
	copy(out, b.Buffer[offset:offset+uint64(reqBytes)])
	return out, nil
}

// WriteMemory stores data at address. Simulated targets use it to play the
// firmware side; the monitor itself never writes target memory.
func (b *BufferAccessor) WriteMemory(address uint64, data []byte) error {
	if err := b.checkRead(address, uint32(len(data))); err != nil {
		return err
	}
	copy(b.Buffer[address-b.StartAddress:], data)
	return nil
}

