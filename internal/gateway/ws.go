// ABOUTME: WebSocket endpoint: upgrade, connect handshake, and the request read loop
// ABOUTME: After the handshake all writes go through the client's outbound queue

package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/2389/moltbot-gateway/internal/auth"
	"github.com/2389/moltbot-gateway/internal/clients"
	"github.com/2389/moltbot-gateway/internal/events"
)

// makeUpgrader creates a WebSocket upgrader with origin checking. Requests
// without an Origin header come from non-browser clients and are accepted.
// With no allow-list only same-host origins pass; "*" allows all.
func makeUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := len(allowedOrigins) == 1 && allowedOrigins[0] == "*"
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowAll || originSet[origin] {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			return strings.EqualFold(u.Host, r.Host)
		},
	}
}

func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Debug("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	conn.SetReadLimit(MaxPayloadBytes)

	tr := clients.NewWSTransport(conn)
	connID := uuid.NewString()
	logger := g.logger.With("conn_id", connID, "remote", r.RemoteAddr)

	if !g.trackPending(tr) {
		_ = tr.Close(websocket.CloseGoingAway, shutdownReason)
		return
	}

	timeout := HandshakeTimeout()
	timer := time.AfterFunc(timeout, func() {
		if g.untrackPending(tr) {
			logger.Debug("handshake timed out", "timeout", timeout)
			_ = tr.Close(websocket.ClosePolicyViolation, "handshake timeout")
		}
	})

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	c, ok := g.handshake(ctx, conn, tr, connID, auth.BearerToken(r), r.RemoteAddr, logger)
	cancel()
	timer.Stop()
	if !ok {
		return
	}
	defer c.Close(websocket.CloseNormalClosure, "")

	stopKeepalive := tr.StartKeepalive()
	defer stopKeepalive()

	g.readLoop(conn, c, logger)
}

// handshake runs the challenge/connect exchange. On success the client is
// registered and its writer is running; on failure the socket is closed.
func (g *Gateway) handshake(ctx context.Context, conn *websocket.Conn, tr *clients.WSTransport, connID, bearer, remoteAddr string, logger *slog.Logger) (*clients.Client, bool) {
	fail := func(id, code, message string) (*clients.Client, bool) {
		if g.untrackPending(tr) {
			if id != "" || code != "" {
				writeDirect(tr, events.ErrorResponse(id, code, message))
			}
			_ = tr.Close(websocket.ClosePolicyViolation, message)
		}
		return nil, false
	}

	challenge := events.EventFrame{
		Type:    events.FrameEvent,
		Event:   events.EventConnectChallenge,
		Payload: events.ChallengePayload{Nonce: uuid.NewString(), TS: time.Now().UnixMilli()},
	}
	if !writeDirect(tr, challenge) {
		return fail("", "", "write failed")
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		logger.Debug("handshake read failed", "error", err)
		return fail("", "", "read failed")
	}

	req, params, err := parseConnect(data)
	if err != nil {
		logger.Debug("invalid handshake", "error", err)
		return fail(req.ID, events.CodeInvalidRequest, err.Error())
	}

	ac, err := g.authn.Authenticate(ctx, params.credentials(bearer))
	if err != nil {
		logger.Info("connect rejected", "error", err, "client", params.Client.DisplayName)
		return fail(req.ID, events.CodeUnauthorized, "unauthorized")
	}

	if !g.untrackPending(tr) {
		// Timed out or shutting down; the socket is already closed.
		return nil, false
	}

	c := clients.NewClient(connID, ac, params.info(remoteAddr), tr, g.logger)
	frame, err := json.Marshal(events.OKResponse(req.ID, g.hello(connID, ac)))
	if err != nil {
		logger.Error("failed to encode hello", "error", err)
		_ = tr.Close(websocket.CloseInternalServerErr, "internal error")
		return nil, false
	}
	_ = c.Enqueue(frame)

	g.registry.Add(c)
	c.Start()

	if g.isClosing() {
		c.Close(websocket.CloseGoingAway, shutdownReason)
		return nil, false
	}
	return c, true
}

// readLoop dispatches request frames until the socket closes.
func (g *Gateway) readLoop(conn *websocket.Conn, c *clients.Client, logger *slog.Logger) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("client read error", "error", err)
			}
			return
		}

		var req events.RequestFrame
		if err := json.Unmarshal(data, &req); err != nil || req.Type != events.FrameRequest || req.ID == "" || req.Method == "" {
			g.reply(c, events.ErrorResponse(req.ID, events.CodeInvalidRequest, "invalid request frame"))
			continue
		}

		resp, after := g.handleRequest(c, req)
		g.reply(c, resp)
		if after != nil {
			after()
		}
	}
}

// reply queues resp on the client's outbound queue.
func (g *Gateway) reply(c *clients.Client, resp events.ResponseFrame) {
	frame, err := json.Marshal(resp)
	if err != nil {
		g.logger.Error("failed to encode response", "id", resp.ID, "error", err)
		return
	}
	if err := c.Enqueue(frame); err != nil {
		g.logger.Debug("dropping response for closed client", "conn_id", c.ID, "id", resp.ID)
	}
}

// writeDirect writes a frame straight to the transport. Only valid before
// the client's writer goroutine exists.
func writeDirect(tr clients.Transport, v any) bool {
	frame, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return tr.WriteMessage(frame) == nil
}
