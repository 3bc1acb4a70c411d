package printers

import (
	"bufio"
	"io"
)

// ItemPrinter is the buffered output shared by all printers. The first
// write error sticks and is returned by every later call.
type ItemPrinter struct {
	w     *bufio.Writer
	err   error
	items uint64
	muted bool
}

// NewItemPrinter constructs an ItemPrinter using the given io.Writer.
func NewItemPrinter(writer io.Writer) *ItemPrinter {
	return &ItemPrinter{
		w: bufio.NewWriter(writer),
	}
}

// ItemPrint writes one output item.
func (p *ItemPrinter) ItemPrint(data []byte) error {
	if p.err != nil {
		return p.err
	}
	p.items++
	if p.muted {
		return nil
	}
	if _, err := p.w.Write(data); err != nil {
		p.err = err
	}
	return p.err
}

// Flush writes buffered output to the underlying writer.
func (p *ItemPrinter) Flush() error {
	if p.err != nil {
		return p.err
	}
	p.err = p.w.Flush()
	return p.err
}

// Items returns the number of items printed, muted or not.
func (p *ItemPrinter) Items() uint64 { return p.items }

// SetMute sets the printer to mute (counts items, avoids output).
func (p *ItemPrinter) SetMute(mute bool) { p.muted = mute }

// IsMuted returns true if the printer is muted.
func (p *ItemPrinter) IsMuted() bool { return p.muted }
