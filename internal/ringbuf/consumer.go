// Package ringbuf consumes Event Recorder records out of the ring buffer in
// target memory.
//
// The firmware appends records to a fixed size ring and publishes a
// monotonic record index and the timestamp of the latest record in its
// status block. Each poll reads the status, works out which records are new
// and reads only those slots.
package ringbuf

import (
	"fmt"
	"io"
	"iter"

	"ethosumonitor/internal/common"
	"ethosumonitor/internal/emon"
	"ethosumonitor/internal/evr"
	"ethosumonitor/internal/memacc"
)

// State of a Consumer.
type State int

const (
	StateUninitialized State = iota
	StateAttached
	StatePolling
	StateDetached
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateAttached:
		return "attached"
	case StatePolling:
		return "polling"
	case StateDetached:
		return "detached"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Stats are the running counters of a Consumer.
type Stats struct {
	Polls     uint64
	Records   uint64
	Overflows uint64
	Reinits   uint64
}

// Consumer tracks how far the ring buffer of one target has been read.
// A Consumer is not safe for concurrent use.
type Consumer struct {
	common.Component

	state  State
	reader memacc.Reader
	info   evr.Info

	lastTimestamp   uint32
	lastRecordIndex uint32
	stats           Stats
}

func NewConsumer() *Consumer {
	c := &Consumer{}
	c.InitComponent("ringbuf")
	return c
}

// Attach validates the descriptor found in target memory at infoAddr
// against static, the descriptor bytes from the firmware image, and seeds
// the read position from the current status.
func (c *Consumer) Attach(r memacc.Reader, infoAddr uint64, static []byte) error {
	if c.state != StateUninitialized {
		return common.Errorf(emon.ErrInvalidParamVal, "attach: consumer is %s", c.state)
	}

	want, err := evr.DecodeInfo(static)
	if err != nil {
		return fmt.Errorf("image descriptor: %w", err)
	}
	data, err := r.ReadMemory(infoAddr, evr.InfoSize)
	if err != nil {
		return fmt.Errorf("read descriptor: %w", err)
	}
	live, err := evr.DecodeInfo(data)
	if err != nil {
		return fmt.Errorf("target descriptor: %w", err)
	}

	if !want.Matches(live) {
		return common.Errorf(emon.ErrDescriptorMismatch, "EventRecorder info mismatch. elf=%s, mem=%s", want, live)
	}
	if want.RecordCount == 0 {
		return common.Errorf(emon.ErrMalformedRecord, "EventRecorder info has zero record count")
	}

	c.reader = r
	c.info = want
	status, err := c.readStatus()
	if err != nil {
		c.reader = nil
		return fmt.Errorf("read status: %w", err)
	}

	c.lastTimestamp = status.TSLast
	c.lastRecordIndex = status.RecordIndex
	c.state = StateAttached
	return nil
}

func (c *Consumer) readStatus() (evr.Status, error) {
	data, err := c.reader.ReadMemory(uint64(c.info.EventStatus), evr.StatusSize)
	if err != nil {
		return evr.Status{}, err
	}
	return evr.DecodeStatus(data)
}

// Poll returns the records written since the previous poll, oldest first.
//
// Each call reads the status once. Nothing is yielded when the status
// timestamp has not moved. A read error is yielded once and ends the
// sequence; records already yielded are not yielded again and the rest of
// the range is read by the next poll. Stopping the iteration early has the
// same effect.
func (c *Consumer) Poll() iter.Seq2[evr.EventRecord, error] {
	return func(yield func(evr.EventRecord, error) bool) {
		if c.state != StateAttached && c.state != StatePolling {
			yield(evr.EventRecord{}, common.Errorf(emon.ErrNotInit, "poll: consumer is %s", c.state))
			return
		}
		c.state = StatePolling
		c.stats.Polls++

		status, err := c.readStatus()
		if err != nil {
			yield(evr.EventRecord{}, fmt.Errorf("read status: %w", err))
			return
		}
		if status.TSLast == c.lastTimestamp {
			return
		}

		if status.RecordIndex < c.lastRecordIndex {
			c.stats.Reinits++
			c.LogError(common.NewErrorWithIdxMsg(emon.ErrSevWarn, emon.ErrReinitDetected, uint64(status.RecordIndex),
				fmt.Sprintf("record index went back from %d to %d", c.lastRecordIndex, status.RecordIndex)))
			c.lastRecordIndex = 0
		}

		if delta := status.RecordIndex - c.lastRecordIndex; delta > c.info.RecordCount {
			c.stats.Overflows++
			c.LogError(common.NewErrorWithIdxMsg(emon.ErrSevWarn, emon.ErrRingOverflow, uint64(c.lastRecordIndex),
				fmt.Sprintf("Ring buffer overflow: %d records lost", delta)))
			c.lastRecordIndex = status.RecordIndex
		}

		for c.lastRecordIndex != status.RecordIndex {
			idx := c.lastRecordIndex
			data, err := c.reader.ReadMemory(c.info.RecordAddr(idx), evr.RecordSize)
			if err != nil {
				yield(evr.EventRecord{}, fmt.Errorf("read record %d: %w", idx, err))
				return
			}
			rec, err := evr.DecodeRecord(data)
			if err != nil {
				yield(evr.EventRecord{}, fmt.Errorf("record %d: %w", idx, err))
				return
			}
			rec.Index = idx

			c.lastRecordIndex++
			c.stats.Records++
			if !yield(rec, nil) {
				return
			}
		}
		c.lastTimestamp = status.TSLast
	}
}

// Detach releases the reader, closing it if it is an io.Closer. The
// consumer cannot be attached again.
func (c *Consumer) Detach() error {
	if c.state == StateDetached {
		return nil
	}
	var err error
	if cl, ok := c.reader.(io.Closer); ok {
		err = cl.Close()
	}
	c.reader = nil
	c.state = StateDetached
	return err
}

func (c *Consumer) State() State { return c.state }

// Info returns the validated descriptor.
func (c *Consumer) Info() evr.Info { return c.info }

func (c *Consumer) Stats() Stats { return c.stats }

// Position returns the last consumed record index and status timestamp.
func (c *Consumer) Position() (recordIndex, timestamp uint32) {
	return c.lastRecordIndex, c.lastTimestamp
}

func (c *Consumer) String() string {
	return fmt.Sprintf("%s: %s; index=%d ts=%d; records=%d overflows=%d reinits=%d",
		c.ComponentName(), c.state, c.lastRecordIndex, c.lastTimestamp,
		c.stats.Records, c.stats.Overflows, c.stats.Reinits)
}
