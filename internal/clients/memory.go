// ABOUTME: In-memory Transport that records frames and close calls.
// ABOUTME: Used by tests across packages to observe fan-out without real sockets.

package clients

import (
	"errors"
	"sync"
)

// ErrTransportClosed is returned by MemoryTransport writes after Close.
var ErrTransportClosed = errors.New("transport closed")

// MemoryTransport is a Transport that keeps written frames in memory.
// When Stall is set, writes block until Release is called, which lets
// tests build up a backlog in the client's queue.
type MemoryTransport struct {
	mu          sync.Mutex
	frames      [][]byte
	closed      bool
	closeCode   int
	closeReason string
	writeErr    error

	stall   chan struct{}
	written chan struct{}
	closedC chan struct{}
}

// NewMemoryTransport creates a transport that accepts writes immediately.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		written: make(chan struct{}, 1024),
		closedC: make(chan struct{}),
	}
}

// Stall makes subsequent writes block until Release.
func (m *MemoryTransport) Stall() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stall == nil {
		m.stall = make(chan struct{})
	}
}

// Release unblocks stalled writes.
func (m *MemoryTransport) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stall != nil {
		close(m.stall)
		m.stall = nil
	}
}

// FailWrites makes every subsequent write return err.
func (m *MemoryTransport) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// WriteMessage records data.
func (m *MemoryTransport) WriteMessage(data []byte) error {
	m.mu.Lock()
	stall := m.stall
	m.mu.Unlock()
	if stall != nil {
		select {
		case <-stall:
		case <-m.closedC:
			return ErrTransportClosed
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrTransportClosed
	}
	if m.writeErr != nil {
		return m.writeErr
	}
	m.frames = append(m.frames, append([]byte(nil), data...))
	select {
	case m.written <- struct{}{}:
	default:
	}
	return nil
}

// Close records the close code and reason.
func (m *MemoryTransport) Close(code int, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.closeCode = code
	m.closeReason = reason
	close(m.closedC)
	return nil
}

// Frames returns a copy of every frame written so far.
func (m *MemoryTransport) Frames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.frames))
	copy(out, m.frames)
	return out
}

// Written signals after each successful write.
func (m *MemoryTransport) Written() <-chan struct{} {
	return m.written
}

// Closed is closed once Close has been called.
func (m *MemoryTransport) Closed() <-chan struct{} {
	return m.closedC
}

// CloseStatus returns the close code and reason, and whether Close was called.
func (m *MemoryTransport) CloseStatus() (int, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCode, m.closeReason, m.closed
}
