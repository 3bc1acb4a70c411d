// Package printers writes monitor output: raw records or assembled samples.
package printers

import (
	"fmt"
	"io"

	"ethosumonitor/internal/assembler"
	"ethosumonitor/internal/evr"
)

// RecordSink receives raw records in ring buffer order.
type RecordSink interface {
	RecordIn(rec evr.EventRecord) error
	Flush() error
}

// SampleSink receives completed samples.
type SampleSink interface {
	SampleIn(s assembler.Sample) error
	Flush() error
}

// RecordPrinter prints one diagnostic line per record.
type RecordPrinter struct {
	ItemPrinter
}

func NewRecordPrinter(writer io.Writer) *RecordPrinter {
	return &RecordPrinter{
		ItemPrinter: *NewItemPrinter(writer),
	}
}

// RecordIn prints "Idx:<N>; ID:<id>; <record>".
func (p *RecordPrinter) RecordIn(rec evr.EventRecord) error {
	line := fmt.Sprintf("Idx:%d; ID:%04x; %s\n", rec.Index, rec.ID(), rec)
	return p.ItemPrint([]byte(line))
}
