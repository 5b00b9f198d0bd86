// ABOUTME: An authenticated connection with its own outbound queue and writer goroutine.
// ABOUTME: Queued-but-unwritten bytes are the buffered amount used for backpressure decisions.

package clients

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/moltbot-gateway/internal/auth"
)

// ErrClientClosed is returned when enqueueing to a closed client.
var ErrClientClosed = errors.New("client closed")

// Transport is the write side of a client connection. WriteMessage is only
// ever called from the client's writer goroutine; Close may be called from
// any goroutine.
type Transport interface {
	WriteMessage(data []byte) error
	Close(code int, reason string) error
}

// Info describes the software on the other end of a connection, as
// declared in its connect request.
type Info struct {
	ClientID    string `json:"clientId,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Version     string `json:"version,omitempty"`
	Platform    string `json:"platform,omitempty"`
	Mode        string `json:"mode,omitempty"`
	RemoteAddr  string `json:"remoteAddr,omitempty"`
}

// Client is a registered, authenticated connection.
type Client struct {
	ID          string
	Auth        *auth.AuthContext
	Info        Info
	ConnectedAt time.Time

	transport Transport
	logger    *slog.Logger

	mu       sync.Mutex
	queue    [][]byte
	buffered atomic.Int64
	notify   chan struct{}

	done      chan struct{}
	closeOnce sync.Once
	started   atomic.Bool
}

// NewClient wraps transport. Frames enqueued before Start are held until the
// writer goroutine runs.
func NewClient(id string, authCtx *auth.AuthContext, info Info, transport Transport, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		ID:          id,
		Auth:        authCtx,
		Info:        info,
		ConnectedAt: time.Now(),
		transport:   transport,
		logger:      logger.With("component", "client", "conn_id", id),
		notify:      make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
}

// Start launches the writer goroutine. Calling it more than once has no effect.
func (c *Client) Start() {
	if c.started.CompareAndSwap(false, true) {
		go c.writePump()
	}
}

// Enqueue appends frame to the outbound queue without blocking.
func (c *Client) Enqueue(frame []byte) error {
	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		return ErrClientClosed
	default:
	}
	c.queue = append(c.queue, frame)
	c.buffered.Add(int64(len(frame)))
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

// Role returns the connection role, or "" when unauthenticated.
func (c *Client) Role() string {
	if c.Auth == nil {
		return ""
	}
	return c.Auth.Role
}

// BufferedBytes reports how many enqueued bytes have not been written yet.
func (c *Client) BufferedBytes() int64 {
	return c.buffered.Load()
}

// Close drops any queued frames and closes the transport with code and
// reason. It is safe to call multiple times and from any goroutine.
func (c *Client) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		close(c.done)
		c.queue = nil
		c.buffered.Store(0)
		c.mu.Unlock()

		if err := c.transport.Close(code, reason); err != nil {
			c.logger.Debug("transport close failed", "error", err)
		}
		c.logger.Debug("client closed", "code", code, "reason", reason)
	})
}

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// writePump drains the queue in order until the client closes or a write fails.
func (c *Client) writePump() {
	for {
		select {
		case <-c.done:
			return
		case <-c.notify:
		}

		for {
			frame, ok := c.dequeue()
			if !ok {
				break
			}
			if err := c.transport.WriteMessage(frame); err != nil {
				c.logger.Debug("write failed, closing client", "error", err)
				c.Close(websocket.CloseInternalServerErr, "write failed")
				return
			}
			c.markWritten(len(frame))
		}
	}
}

// markWritten releases n bytes from the buffered count. Close already zeroed
// the count, so a write that lands after Close releases nothing.
func (c *Client) markWritten(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
	default:
		c.buffered.Add(-int64(n))
	}
}

func (c *Client) dequeue() ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil, false
	}
	frame := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	return frame, true
}
