package monitor

import (
	"fmt"

	"ethosumonitor/internal/evr"
	"ethosumonitor/internal/memacc"
	"ethosumonitor/internal/ringbuf"
)

// SymbolTable resolves firmware symbols. *elfimage.Image implements it.
type SymbolTable interface {
	Symbol(name string) (addr, size uint64, err error)
	SymbolData(name string) ([]byte, error)
}

// AttachTarget locates the Event Recorder descriptor through syms and
// attaches a consumer to the ring buffer in target memory.
func AttachTarget(r memacc.Reader, syms SymbolTable) (*ringbuf.Consumer, error) {
	addr, _, err := syms.Symbol(evr.InfoSymbol)
	if err != nil {
		return nil, err
	}
	static, err := syms.SymbolData(evr.InfoSymbol)
	if err != nil {
		return nil, fmt.Errorf("%s initial data: %w", evr.InfoSymbol, err)
	}

	c := ringbuf.NewConsumer()
	if err := c.Attach(r, addr, static); err != nil {
		return nil, err
	}
	return c, nil
}
