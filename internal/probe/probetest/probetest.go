// Package probetest provides an in-process OpenOCD Tcl RPC server for
// tests. It answers read_memory from a byte slice and accepts reset run.
package probetest

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

const terminator = 0x1a

// Server is a fake OpenOCD serving memory mapped at a base address.
type Server struct {
	ln   net.Listener
	base uint64

	mu       sync.Mutex
	mem      []byte
	commands []string
	conns    int
	failNext int
	delay    time.Duration
}

// NewServer starts a server on a loopback port. It is closed when the test
// ends.
func NewServer(t testing.TB, base uint64, mem []byte) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("probetest: listen: %v", err)
	}
	s := &Server{ln: ln, base: base, mem: mem}
	go s.serve()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *Server) Addr() string { return s.ln.Addr().String() }

// Commands returns every command received so far, in order.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Conns returns the number of accepted connections.
func (s *Server) Conns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

// FailNext makes the next n reads reply with an OpenOCD read failure.
func (s *Server) FailNext(n int) {
	s.mu.Lock()
	s.failNext = n
	s.mu.Unlock()
}

// DelayNext holds back the reply to the next command for d.
func (s *Server) DelayNext(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

// WriteMemory updates the served memory.
func (s *Server) WriteMemory(addr uint64, data []byte) {
	s.mu.Lock()
	copy(s.mem[addr-s.base:], data)
	s.mu.Unlock()
}

func (s *Server) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns++
		s.mu.Unlock()
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		cmd, err := r.ReadString(terminator)
		if err != nil {
			return
		}
		reply, delay := s.reply(strings.TrimSuffix(cmd, string(rune(terminator))))
		if delay > 0 {
			time.Sleep(delay)
		}
		if _, err := conn.Write([]byte(reply + string(rune(terminator)))); err != nil {
			return
		}
	}
}

func (s *Server) reply(cmd string) (string, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, cmd)
	delay := s.delay
	s.delay = 0

	var addr uint64
	var width, count int
	switch {
	case cmd == "reset run":
		return "", delay
	case strings.HasPrefix(cmd, "read_memory"):
		if _, err := fmt.Sscanf(cmd, "read_memory 0x%x %d %d", &addr, &width, &count); err != nil || width != 8 {
			return "invalid command", delay
		}
	default:
		return "invalid command name \"" + cmd + "\"", delay
	}

	if s.failNext > 0 {
		s.failNext--
		return fmt.Sprintf("Failed to read memory at 0x%x", addr), delay
	}
	if addr < s.base || addr+uint64(count) > s.base+uint64(len(s.mem)) {
		return "Failed to read memory", delay
	}
	vals := make([]string, count)
	for i := range vals {
		vals[i] = fmt.Sprintf("0x%02x", s.mem[addr-s.base+uint64(i)])
	}
	return strings.Join(vals, " "), delay
}
