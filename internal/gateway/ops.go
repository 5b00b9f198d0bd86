// ABOUTME: Operational HTTP endpoints: liveness, readiness, client listing, event publishing
// ABOUTME: Client listing and publishing require operator.admin

package gateway

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/2389/moltbot-gateway/internal/clients"
	"github.com/2389/moltbot-gateway/internal/events"
	"github.com/2389/moltbot-gateway/internal/httpapi"
)

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httpapi.SendText(w, http.StatusOK, "OK")
}

// ReadyResponse is the body of GET /health/ready.
type ReadyResponse struct {
	events.HealthSnapshot
	StateVersion events.StateVersion `json:"stateVersion"`
}

// handleReady returns the cached health snapshot, or 503 once shutdown has begun.
func (g *Gateway) handleReady(w http.ResponseWriter, _ *http.Request) {
	if g.isClosing() {
		httpapi.SendError(w, http.StatusServiceUnavailable, httpapi.ErrorTypeServer, shutdownReason)
		return
	}
	snap, _ := g.health.Snapshot()
	snap.Clients = g.registry.Len()
	snap.Runs = g.runs.Active()
	httpapi.SendJSON(w, http.StatusOK, ReadyResponse{HealthSnapshot: snap, StateVersion: g.stateVersion()})
}

// ClientResponse describes one live connection.
type ClientResponse struct {
	ConnID        string       `json:"connId"`
	Role          string       `json:"role"`
	Scopes        []string     `json:"scopes"`
	Client        clients.Info `json:"client"`
	ConnectedAt   time.Time    `json:"connectedAt"`
	BufferedBytes int64        `json:"bufferedBytes"`
}

func (g *Gateway) handleListClients(w http.ResponseWriter, _ *http.Request) {
	snapshot := g.registry.Snapshot()
	out := make([]ClientResponse, 0, len(snapshot))
	for _, c := range snapshot {
		resp := ClientResponse{
			ConnID:        c.ID,
			Role:          c.Role(),
			Client:        c.Info,
			ConnectedAt:   c.ConnectedAt,
			BufferedBytes: c.BufferedBytes(),
		}
		if c.Auth != nil {
			resp.Scopes = c.Auth.Scopes
		}
		out = append(out, resp)
	}
	httpapi.SendJSON(w, http.StatusOK, map[string]any{"clients": out})
}

// PublishEventRequest is the body of POST /api/events.
type PublishEventRequest struct {
	Event      string          `json:"event"`
	Payload    json.RawMessage `json:"payload"`
	DropIfSlow bool            `json:"dropIfSlow"`
}

// reservedEvents are produced by the gateway itself and cannot be published.
var reservedEvents = map[string]bool{
	events.EventConnectChallenge: true,
	events.EventTick:             true,
	events.EventPresence:         true,
	events.EventHealth:           true,
	events.EventShutdown:         true,
}

// handlePublishEvent lets external producers such as channel adapters and
// schedulers inject events into the broadcast stream.
func (g *Gateway) handlePublishEvent(w http.ResponseWriter, r *http.Request) {
	var req PublishEventRequest
	if !httpapi.ReadJSONBodyOrError(w, r, g.maxBodyBytes, &req) {
		return
	}
	name := strings.TrimSpace(req.Event)
	if name == "" {
		httpapi.SendInvalidRequest(w, "event is required")
		return
	}
	if reservedEvents[name] {
		httpapi.SendInvalidRequest(w, "event "+name+" is reserved")
		return
	}

	var payload any
	if len(req.Payload) > 0 {
		payload = req.Payload
	}
	seq := g.broadcaster.Broadcast(name, payload, events.BroadcastOptions{DropIfSlow: req.DropIfSlow})
	httpapi.SendJSON(w, http.StatusAccepted, map[string]any{"seq": seq})
}
