// Package evr decodes the Event Recorder structures written by the target
// firmware: the 16 byte event record, the live status block and the static
// descriptor that locates both.
package evr

import (
	"encoding/binary"
	"fmt"

	"ethosumonitor/internal/common"
	"ethosumonitor/internal/emon"
)

// RecordSize is the wire size of one event record.
const RecordSize = 16

// Info word layout.
const (
	InfoIDMask        uint32 = 0x0000FFFF
	InfoMessageMask   uint32 = 0x000000FF
	InfoComponentMask uint32 = 0x0000FF00
	InfoComponentPos         = 8
	InfoFirst         uint32 = 0x01000000
	InfoLast          uint32 = 0x02000000
	InfoLocked        uint32 = 0x04000000
	InfoValid         uint32 = 0x08000000
	InfoMSBTS         uint32 = 0x10000000
	InfoMSBVal1       uint32 = 0x20000000
	InfoMSBVal2       uint32 = 0x40000000
	InfoTBit          uint32 = 0x80000000

	infoMSBMask = InfoMSBTS | InfoMSBVal1 | InfoMSBVal2
)

// Component identifiers.
const (
	ComponentEvent  uint8 = 0xFF
	ComponentEthosU uint8 = 0x00
)

// Event Recorder message identifiers.
const (
	MessageInit  uint8 = 0x00
	MessageStart uint8 = 0x01
	MessageStop  uint8 = 0x02
	MessageClock uint8 = 0x03
)

const (
	IDInit  = uint16(ComponentEvent)<<8 | uint16(MessageInit)
	IDStart = uint16(ComponentEvent)<<8 | uint16(MessageStart)
	IDStop  = uint16(ComponentEvent)<<8 | uint16(MessageStop)
	IDClock = uint16(ComponentEvent)<<8 | uint16(MessageClock)
)

// EventRecord is one decoded ring buffer record.
//
// Timestamp, Val1 and Val2 hold the full 32 bit values: the producer clears
// bit 31 of every word and carries it in the MSB flags of Info instead.
// Raw keeps the record exactly as read so it can be written out again.
type EventRecord struct {
	Index     uint32
	Timestamp uint32
	Val1      uint32
	Val2      uint32
	Info      uint32
	Raw       [RecordSize]byte
}

// DecodeRecord decodes one record. Index is left at zero.
func DecodeRecord(data []byte) (EventRecord, error) {
	var rec EventRecord
	if len(data) != RecordSize {
		return rec, malformed("event record", len(data), RecordSize)
	}
	copy(rec.Raw[:], data)

	ts := binary.LittleEndian.Uint32(data[0:])
	v1 := binary.LittleEndian.Uint32(data[4:])
	v2 := binary.LittleEndian.Uint32(data[8:])
	info := binary.LittleEndian.Uint32(data[12:])

	rec.Timestamp = ts&^InfoTBit | (info&InfoMSBTS)<<3
	rec.Val1 = v1&^InfoTBit | (info&InfoMSBVal1)<<2
	rec.Val2 = v2&^InfoTBit | (info&InfoMSBVal2)<<1
	rec.Info = info
	return rec, nil
}

// NewRecord builds the record the producer would write for the given
// values. The MSB flags of info are replaced with bit 31 of each value.
func NewRecord(timestamp, val1, val2, info uint32) EventRecord {
	info = info&^infoMSBMask |
		(timestamp&InfoTBit)>>3 |
		(val1&InfoTBit)>>2 |
		(val2&InfoTBit)>>1

	rec := EventRecord{
		Timestamp: timestamp,
		Val1:      val1,
		Val2:      val2,
		Info:      info,
	}
	binary.LittleEndian.PutUint32(rec.Raw[0:], timestamp&^InfoTBit)
	binary.LittleEndian.PutUint32(rec.Raw[4:], val1&^InfoTBit)
	binary.LittleEndian.PutUint32(rec.Raw[8:], val2&^InfoTBit)
	binary.LittleEndian.PutUint32(rec.Raw[12:], info)
	return rec
}

// MakeInfo composes an info word from component, message and flag bits.
func MakeInfo(component, message uint8, flags uint32) uint32 {
	return uint32(component)<<InfoComponentPos | uint32(message) | flags
}

func (r EventRecord) First() bool  { return r.Info&InfoFirst != 0 }
func (r EventRecord) Last() bool   { return r.Info&InfoLast != 0 }
func (r EventRecord) Locked() bool { return r.Info&InfoLocked != 0 }
func (r EventRecord) Valid() bool  { return r.Info&InfoValid != 0 }

func (r EventRecord) Component() uint8 {
	return uint8((r.Info & InfoComponentMask) >> InfoComponentPos)
}

func (r EventRecord) Message() uint8 { return uint8(r.Info & InfoMessageMask) }

// ID is the combined component and message identifier.
func (r EventRecord) ID() uint16 { return uint16(r.Info & InfoIDMask) }

func (r EventRecord) String() string {
	return fmt.Sprintf(`{ "timestamp": %#x, "val1": %#x, "val2": %#x, "info": "%#x" }`,
		r.Timestamp, r.Val1, r.Val2, r.Info)
}

func malformed(what string, got, want int) error {
	return common.Errorf(emon.ErrMalformedRecord, "%s: got %d bytes, want %d", what, got, want)
}
