package evr

import (
	"encoding/binary"
	"fmt"
)

// InfoSize is the wire size of the EventRecorderInfo descriptor.
const InfoSize = 24

// InfoSymbol is the firmware symbol holding the descriptor.
const InfoSymbol = "EventRecorderInfo"

// Info is the EventRecorderInfo descriptor. The firmware writes it once at
// initialisation; the same bytes are present in the linked image.
type Info struct {
	ProtocolType    uint8
	ProtocolVersion uint16
	RecordCount     uint32
	EventBuffer     uint32
	EventFilter     uint32
	EventStatus     uint32
	TSSource        uint8
}

func DecodeInfo(data []byte) (Info, error) {
	if len(data) != InfoSize {
		return Info{}, malformed("event recorder info", len(data), InfoSize)
	}
	le := binary.LittleEndian
	return Info{
		ProtocolType:    data[0],
		ProtocolVersion: le.Uint16(data[2:]),
		RecordCount:     le.Uint32(data[4:]),
		EventBuffer:     le.Uint32(data[8:]),
		EventFilter:     le.Uint32(data[12:]),
		EventStatus:     le.Uint32(data[16:]),
		TSSource:        data[20],
	}, nil
}

// Encode returns the wire form of the descriptor. Reserved bytes are zero.
func (i Info) Encode() [InfoSize]byte {
	var b [InfoSize]byte
	le := binary.LittleEndian
	b[0] = i.ProtocolType
	le.PutUint16(b[2:], i.ProtocolVersion)
	le.PutUint32(b[4:], i.RecordCount)
	le.PutUint32(b[8:], i.EventBuffer)
	le.PutUint32(b[12:], i.EventFilter)
	le.PutUint32(b[16:], i.EventStatus)
	b[20] = i.TSSource
	return b
}

// Matches reports whether two descriptors describe the same ring buffer:
// protocol type, protocol version, record buffer and status addresses.
func (i Info) Matches(other Info) bool {
	return i.ProtocolType == other.ProtocolType &&
		i.ProtocolVersion == other.ProtocolVersion &&
		i.EventBuffer == other.EventBuffer &&
		i.EventStatus == other.EventStatus
}

// RecordAddr returns the target address of the slot holding record index.
func (i Info) RecordAddr(index uint32) uint64 {
	return uint64(i.EventBuffer) + RecordSize*uint64(index%i.RecordCount)
}

func (i Info) String() string {
	return fmt.Sprintf("{ protocolType=%#x, protocolVersion=%#x, recordCount=%d, eventBuffer=%#x, eventFilter=%#x, eventStatus=%#x, tsSource=%d }",
		i.ProtocolType, i.ProtocolVersion, i.RecordCount, i.EventBuffer, i.EventFilter, i.EventStatus, i.TSSource)
}
