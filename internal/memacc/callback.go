package memacc

import (
	"errors"
	"time"
)

// ReadFn is the live read function behind a CallbackAccessor.
type ReadFn func(address uint64, reqBytes uint32) ([]byte, error)

// CallbackAccessor represents a callback trace memory accessor. It is the
// adapter for debug probes: reads go to the probe on every call and failed
// reads are retried a bounded number of times.
type CallbackAccessor struct {
	BaseAccessor
	fn      ReadFn
	retries int
	backoff time.Duration
	closer  func() error

	// Retried counts failed attempts that were retried.
	Retried uint64
}

// NewCallbackAccessor creates a new callback accessor.
func NewCallbackAccessor(startAddr uint64, endAddr uint64, fn ReadFn) *CallbackAccessor {
	return &CallbackAccessor{
		BaseAccessor: BaseAccessor{
			StartAddress: startAddr,
			EndAddress:   endAddr,
			AccType:      TypeCBIf,
		},
		fn:      fn,
		retries: 1,
	}
}

// SetRetries sets how many attempts a read gets before its error is
// returned, and the pause between attempts.
func (c *CallbackAccessor) SetRetries(attempts int, backoff time.Duration) {
	if attempts < 1 {
		attempts = 1
	}
	c.retries = attempts
	c.backoff = backoff
}

// SetCloser registers the function Close calls.
func (c *CallbackAccessor) SetCloser(fn func() error) {
	c.closer = fn
}

// ReadMemory implements the Reader interface.
func (c *CallbackAccessor) ReadMemory(address uint64, reqBytes uint32) ([]byte, error) {
	if err := c.checkRead(address, reqBytes); err != nil {
		return nil, err
	}
	if c.fn == nil {
		return nil, transportErr(nil, "callback not set")
	}

	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			c.Retried++
			if c.backoff > 0 {
				time.Sleep(c.backoff)
			}
		}
		data, err := c.fn(address, reqBytes)
		if err == nil && len(data) == int(reqBytes) {
			return data, nil
		}
		if err == nil {
			err = errors.New("short read")
		}
		lastErr = err
	}
	return nil, transportErr(lastErr, "read 0x%x+%d failed after %d attempts", address, reqBytes, c.retries)
}

func (c *CallbackAccessor) Close() error {
	if c.closer != nil {
		return c.closer()
	}
	return nil
}
