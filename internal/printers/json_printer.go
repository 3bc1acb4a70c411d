package printers

import (
	"encoding/json"
	"io"

	"ethosumonitor/internal/assembler"
)

// JSONPrinter writes one JSON object per sample and line.
type JSONPrinter struct {
	ItemPrinter
}

func NewJSONPrinter(writer io.Writer) *JSONPrinter {
	return &JSONPrinter{
		ItemPrinter: *NewItemPrinter(writer),
	}
}

func (p *JSONPrinter) SampleIn(s assembler.Sample) error {
	if s.EventConfig == nil {
		s.EventConfig = []uint32{}
	}
	if s.EventCount == nil {
		s.EventCount = []uint32{}
	}
	line, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return p.ItemPrint(append(line, '\n'))
}
