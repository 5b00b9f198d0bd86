// ABOUTME: gorilla/websocket implementation of Transport with write deadlines and keepalive.
// ABOUTME: Close frames go out via WriteControl so a blocked writer cannot delay them.

package clients

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// DefaultWriteTimeout bounds a single frame write.
	DefaultWriteTimeout = 10 * time.Second

	// wsPingInterval is how often the gateway sends WebSocket ping frames.
	wsPingInterval = 30 * time.Second
	// wsPongWait is the maximum time to wait for a pong from the peer.
	wsPongWait = 60 * time.Second

	pingWriteWait  = 10 * time.Second
	closeWriteWait = time.Second
)

// WSTransport writes text frames to a gorilla websocket connection.
type WSTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	// mu serializes data and ping writes. Close frames bypass it.
	mu sync.Mutex
}

// NewWSTransport wraps conn.
func NewWSTransport(conn *websocket.Conn) *WSTransport {
	return &WSTransport{conn: conn, writeTimeout: DefaultWriteTimeout}
}

// WriteMessage writes data as a single text frame.
func (t *WSTransport) WriteMessage(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame with code and reason, then closes the socket.
func (t *WSTransport) Close(code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait))
	return t.conn.Close()
}

// StartKeepalive sets a read deadline that is extended by every pong and
// starts a goroutine sending periodic pings. The returned function stops it.
func (t *WSTransport) StartKeepalive() (cancel func()) {
	_ = t.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	t.conn.SetPongHandler(func(string) error {
		return t.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	done := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.mu.Lock()
				err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pingWriteWait))
				t.mu.Unlock()
				if err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	return func() { once.Do(func() { close(done) }) }
}
