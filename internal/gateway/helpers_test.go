// ABOUTME: Shared fixtures for gateway tests: an in-process gateway and a WebSocket test client
// ABOUTME: Runs the echo runtime without chunk delay so runs complete immediately

package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/2389/moltbot-gateway/internal/agent"
	"github.com/2389/moltbot-gateway/internal/config"
	"github.com/2389/moltbot-gateway/internal/events"
)

const (
	testToken     = "test-operator-token"
	testJWTSecret = "test-jwt-secret-that-is-at-least-32-bytes"
	readTimeout   = 3 * time.Second
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server:   config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Database: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "gateway.db")},
		Auth:     config.AuthConfig{Token: testToken, JWTSecret: testJWTSecret},
		Agents:   config.AgentsConfig{DefaultID: "main", Runtime: "echo"},
	}
}

// newTestGateway starts a gateway behind an httptest server. Background
// tasks are not started unless a test starts them. opts run before the
// server accepts connections.
func newTestGateway(t *testing.T, opts ...func(*Gateway)) (*Gateway, *httptest.Server) {
	t.Helper()
	gw, err := New(testConfig(t), testLogger())
	require.NoError(t, err)
	gw.runtime = agent.NewEchoRuntime(testLogger()).WithChunkDelay(0)
	for _, opt := range opts {
		opt(gw)
	}

	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = gw.Shutdown(ctx)
		srv.Close()
	})
	return gw, srv
}

// wireFrame decodes any frame the gateway sends.
type wireFrame struct {
	Type         string               `json:"type"`
	Event        string               `json:"event"`
	ID           string               `json:"id"`
	OK           bool                 `json:"ok"`
	Payload      json.RawMessage      `json:"payload"`
	Error        *events.ErrorShape   `json:"error"`
	Seq          uint64               `json:"seq"`
	StateVersion *events.StateVersion `json:"stateVersion"`
}

func (f wireFrame) decode(t *testing.T, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(f.Payload, v))
}

type wsClient struct {
	t     *testing.T
	conn  *websocket.Conn
	reqID atomic.Int64
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, srv *httptest.Server, header http.Header) *wsClient {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) read() wireFrame {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(readTimeout)))
	_, data, err := c.conn.ReadMessage()
	require.NoError(c.t, err)
	var f wireFrame
	require.NoError(c.t, json.Unmarshal(data, &f))
	return f
}

// readUntil skips frames until match returns true.
func (c *wsClient) readUntil(match func(wireFrame) bool) wireFrame {
	c.t.Helper()
	for i := 0; i < 100; i++ {
		if f := c.read(); match(f) {
			return f
		}
	}
	c.t.Fatal("expected frame never arrived")
	return wireFrame{}
}

// readCloseCode reads until the server closes the socket and returns the code.
func (c *wsClient) readCloseCode() (int, string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(readTimeout)))
	for {
		_, _, err := c.conn.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		require.ErrorAs(c.t, err, &ce)
		return ce.Code, ce.Text
	}
}

func (c *wsClient) send(v any) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(v))
}

// request sends a request frame and returns its id.
func (c *wsClient) request(method string, params any) string {
	c.t.Helper()
	id := "req-" + strconv.FormatInt(c.reqID.Add(1), 10)
	frame := map[string]any{"type": events.FrameRequest, "id": id, "method": method}
	if params != nil {
		frame["params"] = params
	}
	c.send(frame)
	return id
}

func (c *wsClient) response(id string) wireFrame {
	c.t.Helper()
	return c.readUntil(func(f wireFrame) bool { return f.Type == events.FrameResponse && f.ID == id })
}

func (c *wsClient) call(method string, params any) wireFrame {
	c.t.Helper()
	return c.response(c.request(method, params))
}

// connect performs the handshake and returns the connect response.
func (c *wsClient) connect(params ConnectParams) wireFrame {
	c.t.Helper()
	challenge := c.read()
	require.Equal(c.t, events.EventConnectChallenge, challenge.Event)
	return c.call(methodConnect, params)
}

// connectOK performs the handshake and requires success.
func (c *wsClient) connectOK(params ConnectParams) HelloOK {
	c.t.Helper()
	res := c.connect(params)
	require.True(c.t, res.OK, "connect failed: %+v", res.Error)
	var hello HelloOK
	res.decode(c.t, &hello)
	return hello
}

func adminParams(name string) ConnectParams {
	return ConnectParams{
		MinProtocol: ProtocolVersion,
		MaxProtocol: ProtocolVersion,
		Auth:        ConnectAuth{Token: testToken},
		Client:      ConnectClient{ID: name, DisplayName: name, Platform: "test", Mode: "cli"},
	}
}

func isEvent(name string) func(wireFrame) bool {
	return func(f wireFrame) bool { return f.Type == events.FrameEvent && f.Event == name }
}

// nextNonPresence returns the next event other than presence.
func (c *wsClient) nextNonPresence() wireFrame {
	c.t.Helper()
	return c.readUntil(func(f wireFrame) bool { return f.Type == events.FrameEvent && f.Event != events.EventPresence })
}
