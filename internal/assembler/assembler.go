// Package assembler groups Event Recorder records into profiling samples.
//
// The NPU driver writes one sample as a group of records sharing a
// timestamp: a first record with message 0 carrying the cycle count, a
// record with message 1 carrying the queue read position and status, and
// one record per PMU event counter with message 2, 3, ... The last record
// of the group is flagged.
package assembler

import (
	"fmt"
	"math"

	"ethosumonitor/internal/common"
	"ethosumonitor/internal/emon"
	"ethosumonitor/internal/evr"
)

// Sample is one assembled profiling sample. EventConfig[i] is the event
// counted in EventCount[i].
type Sample struct {
	Timestamp   uint32   `json:"timestamp"`
	QRead       uint32   `json:"qread"`
	Status      uint32   `json:"status"`
	CycleCount  uint64   `json:"cycleCount"`
	EventConfig []uint32 `json:"eventConfig"`
	EventCount  []uint32 `json:"eventCount"`
}

const (
	msgCycleCount = 0
	msgQueue      = 1
)

type state int

const (
	// waiting for a first record, dropping anything else
	stateResync state = iota
	stateAssembling
	// a sample was just completed
	stateIdle
)

// Stats are the running counters of an Assembler.
type Stats struct {
	Samples          uint64
	SequencingErrors uint64
	// Filtered counts records from other components.
	Filtered uint64
	// Dropped counts records discarded while resynchronising or as part of
	// a broken group.
	Dropped uint64
}

// Assembler is a record sink producing samples. It is not safe for
// concurrent use.
type Assembler struct {
	common.Component

	component uint8
	state     state
	cur       Sample
	nextID    uint8
	haveQueue bool
	groupLen  uint64
	stats     Stats
}

// New returns an assembler accepting records from the given component id,
// normally evr.ComponentEthosU.
func New(component uint8) *Assembler {
	a := &Assembler{component: component}
	a.InitComponent("assembler")
	return a
}

// RecordIn consumes one record and returns the sample it completes, if any.
// Broken groups are reported to the error logger and never returned.
func (a *Assembler) RecordIn(rec evr.EventRecord) (Sample, bool) {
	if rec.Component() != a.component {
		a.stats.Filtered++
		return Sample{}, false
	}

	if rec.First() {
		if a.state == stateAssembling {
			a.sequenceError(rec, fmt.Sprintf("sample at timestamp %d truncated by a new first record, expected record id %d",
				a.cur.Timestamp, a.nextID))
		}
		a.start(rec)
	} else {
		switch a.state {
		case stateResync:
			a.stats.Dropped++
			return Sample{}, false
		case stateIdle:
			a.drop(rec, fmt.Sprintf("expected a first record but got id %d and timestamp %d", rec.Message(), rec.Timestamp))
			return Sample{}, false
		}
	}

	msg := rec.Message()
	if msg != a.nextID || rec.Timestamp != a.cur.Timestamp {
		a.drop(rec, fmt.Sprintf("expected record id %d and timestamp %d but got %d and %d",
			a.nextID, a.cur.Timestamp, msg, rec.Timestamp))
		return Sample{}, false
	}
	if msg == math.MaxUint8 && !rec.Last() {
		a.drop(rec, fmt.Sprintf("sample at timestamp %d continues past record id %d", a.cur.Timestamp, msg))
		return Sample{}, false
	}
	a.nextID = msg + 1
	a.groupLen++

	switch msg {
	case msgCycleCount:
		a.cur.CycleCount = uint64(rec.Val2)<<32 | uint64(rec.Val1)
	case msgQueue:
		a.cur.QRead = rec.Val1
		a.cur.Status = rec.Val2
		a.haveQueue = true
	default:
		a.cur.EventConfig = append(a.cur.EventConfig, rec.Val1)
		a.cur.EventCount = append(a.cur.EventCount, rec.Val2)
	}

	if !rec.Last() {
		return Sample{}, false
	}
	if !a.haveQueue {
		// drop counts rec itself
		a.groupLen--
		a.drop(rec, fmt.Sprintf("sample at timestamp %d ended before record id %d", a.cur.Timestamp, msgQueue))
		return Sample{}, false
	}

	out := a.cur
	a.cur = Sample{}
	a.groupLen = 0
	a.state = stateIdle
	a.stats.Samples++
	return out, true
}

func (a *Assembler) start(rec evr.EventRecord) {
	a.cur = Sample{
		Timestamp:   rec.Timestamp,
		EventConfig: []uint32{},
		EventCount:  []uint32{},
	}
	a.nextID = msgCycleCount
	a.haveQueue = false
	a.groupLen = 0
	a.state = stateAssembling
}

// drop reports rec as out of sequence, discards the sample in progress
// together with rec and waits for the next first record.
func (a *Assembler) drop(rec evr.EventRecord, msg string) {
	a.sequenceError(rec, msg)
	a.stats.Dropped++
	a.cur = Sample{}
	a.state = stateResync
}

func (a *Assembler) sequenceError(rec evr.EventRecord, msg string) {
	a.stats.SequencingErrors++
	a.stats.Dropped += a.groupLen
	a.groupLen = 0
	a.LogError(common.NewErrorWithIdxMsg(emon.ErrSevWarn, emon.ErrSequencing, uint64(rec.Index),
		fmt.Sprintf("%s; samples=%d, locked=%t, valid=%t, record=%s",
			msg, a.stats.Samples, rec.Locked(), rec.Valid(), rec)))
}

// Reset discards any sample in progress and waits for a first record.
// Counters are kept.
func (a *Assembler) Reset() {
	a.cur = Sample{}
	a.nextID = 0
	a.haveQueue = false
	a.groupLen = 0
	a.state = stateResync
}

func (a *Assembler) Stats() Stats { return a.stats }

// ComponentID returns the accepted component id.
func (a *Assembler) ComponentID() uint8 { return a.component }
