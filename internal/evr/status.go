package evr

import (
	"encoding/binary"
	"fmt"
)

// StatusSize is the wire size of the EventStatus block.
const StatusSize = 36

// Status is the live Event Recorder status block. The firmware updates it
// after every record it writes.
type Status struct {
	State          uint8
	Context        uint8
	InfoCRC        uint16
	RecordIndex    uint32
	RecordsWritten uint32
	RecordsDumped  uint32
	TSOverflow     uint32
	TSFreq         uint32
	TSLast         uint32
	InitCount      uint32
	Signature      uint32
}

func DecodeStatus(data []byte) (Status, error) {
	if len(data) != StatusSize {
		return Status{}, malformed("event status", len(data), StatusSize)
	}
	le := binary.LittleEndian
	return Status{
		State:          data[0],
		Context:        data[1],
		InfoCRC:        le.Uint16(data[2:]),
		RecordIndex:    le.Uint32(data[4:]),
		RecordsWritten: le.Uint32(data[8:]),
		RecordsDumped:  le.Uint32(data[12:]),
		TSOverflow:     le.Uint32(data[16:]),
		TSFreq:         le.Uint32(data[20:]),
		TSLast:         le.Uint32(data[24:]),
		InitCount:      le.Uint32(data[28:]),
		Signature:      le.Uint32(data[32:]),
	}, nil
}

// Encode returns the wire form of the status block.
func (s Status) Encode() [StatusSize]byte {
	var b [StatusSize]byte
	le := binary.LittleEndian
	b[0] = s.State
	b[1] = s.Context
	le.PutUint16(b[2:], s.InfoCRC)
	le.PutUint32(b[4:], s.RecordIndex)
	le.PutUint32(b[8:], s.RecordsWritten)
	le.PutUint32(b[12:], s.RecordsDumped)
	le.PutUint32(b[16:], s.TSOverflow)
	le.PutUint32(b[20:], s.TSFreq)
	le.PutUint32(b[24:], s.TSLast)
	le.PutUint32(b[28:], s.InitCount)
	le.PutUint32(b[32:], s.Signature)
	return b
}

func (s Status) String() string {
	return fmt.Sprintf("{ state=%d, context=%d, info_crc=%d, record_index=%d, records_written=%d, records_dumped=%d, "+
		"ts_overflow=%d, ts_freq=%d, ts_last=%d, init_count=%d, signature=%d }",
		s.State, s.Context, s.InfoCRC, s.RecordIndex, s.RecordsWritten, s.RecordsDumped,
		s.TSOverflow, s.TSFreq, s.TSLast, s.InitCount, s.Signature)
}
