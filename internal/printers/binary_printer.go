package printers

import (
	"io"

	"ethosumonitor/internal/evr"
)

// BinaryPrinter writes every record's 16 wire bytes unchanged. The output
// can be replayed through the replay package.
type BinaryPrinter struct {
	ItemPrinter
}

func NewBinaryPrinter(writer io.Writer) *BinaryPrinter {
	return &BinaryPrinter{
		ItemPrinter: *NewItemPrinter(writer),
	}
}

func (p *BinaryPrinter) RecordIn(rec evr.EventRecord) error {
	return p.ItemPrint(rec.Raw[:])
}
