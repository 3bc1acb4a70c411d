// Package probe reads target memory through a debug probe managed by an
// OpenOCD server, using its Tcl RPC port.
//
// Commands and replies on the RPC port are terminated by 0x1a. Memory is
// read with "read_memory <addr> 8 <count>", which replies with one hex
// value per byte and works while the core is running.
package probe

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"ethosumonitor/internal/common"
	"ethosumonitor/internal/emon"
	"ethosumonitor/internal/memacc"
)

const (
	// DefaultAddr is OpenOCD's default Tcl RPC endpoint.
	DefaultAddr = "localhost:6666"

	DefaultTimeout = 5 * time.Second

	terminator = 0x1a

	// maxChunk bounds a single read_memory reply.
	maxChunk = 4096
)

// Client is a connection to an OpenOCD Tcl RPC server. Commands are
// serialised. A command that fails leaves the reply stream in an unknown
// state, so the connection is dropped and the next command dials again.
type Client struct {
	mu      sync.Mutex
	addr    string
	conn    net.Conn
	r       *bufio.Reader
	timeout time.Duration
	closed  bool
	redials uint64
}

// Dial connects to the RPC server at addr. timeout bounds every command;
// zero means no deadline.
func Dial(ctx context.Context, addr string, timeout time.Duration) (*Client, error) {
	c := &Client{addr: addr, timeout: timeout}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect(ctx context.Context) error {
	d := net.Dialer{Timeout: c.timeout}
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return common.WrapError(emon.ErrSevError, emon.ErrTransport, err, "openocd dial "+c.addr)
	}
	c.conn = conn
	c.r = bufio.NewReader(conn)
	return nil
}

func (c *Client) drop() {
	if c.conn != nil {
		c.conn.Close()
		c.conn, c.r = nil, nil
	}
}

// Command runs one Tcl command and returns its result.
func (c *Client) Command(cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", common.Errorf(emon.ErrTransport, "openocd: client closed")
	}
	if c.conn == nil {
		if err := c.connect(context.Background()); err != nil {
			return "", err
		}
		c.redials++
	}
	reply, err := c.roundTrip(cmd)
	if err != nil {
		c.drop()
		return "", err
	}
	return reply, nil
}

// Redials returns the number of connections made after a failed command.
func (c *Client) Redials() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.redials
}

func (c *Client) roundTrip(cmd string) (string, error) {
	if c.timeout > 0 {
		if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
			return "", common.WrapError(emon.ErrSevError, emon.ErrTransport, err, "openocd")
		}
	}
	if _, err := c.conn.Write(append([]byte(cmd), terminator)); err != nil {
		return "", common.WrapError(emon.ErrSevError, emon.ErrTransport, err, "openocd write")
	}
	reply, err := c.r.ReadString(terminator)
	if err != nil {
		return "", common.WrapError(emon.ErrSevError, emon.ErrTransport, err, "openocd read")
	}
	return strings.TrimSpace(strings.TrimSuffix(reply, string(rune(terminator)))), nil
}

// ReadMemory reads size bytes starting at addr.
func (c *Client) ReadMemory(addr uint64, size uint32) ([]byte, error) {
	out := make([]byte, 0, size)
	for remaining := size; remaining > 0; {
		n := min(remaining, maxChunk)
		chunk, err := c.readChunk(addr+uint64(len(out)), n)
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
		remaining -= n
	}
	return out, nil
}

func (c *Client) readChunk(addr uint64, n uint32) ([]byte, error) {
	reply, err := c.Command(fmt.Sprintf("read_memory 0x%x 8 %d", addr, n))
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(reply)
	if len(fields) != int(n) {
		return nil, common.Errorf(emon.ErrTransport, "read_memory 0x%x: %q", addr, truncate(reply))
	}
	data := make([]byte, n)
	for i, f := range fields {
		v, err := strconv.ParseUint(f, 0, 8)
		if err != nil {
			return nil, common.Errorf(emon.ErrTransport, "read_memory 0x%x: bad value %q", addr, f)
		}
		data[i] = byte(v)
	}
	return data, nil
}

func truncate(s string) string {
	if len(s) > 80 {
		return s[:80] + "..."
	}
	return s
}

// Reset restarts the target and lets it run.
func (c *Client) Reset() error {
	reply, err := c.Command("reset run")
	if err != nil {
		return err
	}
	if reply != "" {
		return common.Errorf(emon.ErrTransport, "reset run: %s", truncate(reply))
	}
	return nil
}

// Accessor wraps the client in a callback accessor covering the 32 bit
// address space. Each read is tried up to attempts times; closing the
// accessor closes the client.
func (c *Client) Accessor(attempts int, backoff time.Duration) *memacc.CallbackAccessor {
	acc := memacc.NewCallbackAccessor(0, 0xffffffff, c.ReadMemory)
	acc.SetRetries(attempts, backoff)
	acc.SetCloser(c.Close)
	return acc
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn, c.r = nil, nil
	return err
}
