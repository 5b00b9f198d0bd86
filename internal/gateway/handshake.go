// ABOUTME: Connect handshake for WebSocket clients: challenge, connect request, hello-ok
// ABOUTME: Sockets that do not authenticate within the handshake window are closed with 1008

package gateway

import (
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/2389/moltbot-gateway/internal/auth"
	"github.com/2389/moltbot-gateway/internal/clients"
	"github.com/2389/moltbot-gateway/internal/events"
)

// ProtocolVersion is the wire protocol spoken by this gateway.
const ProtocolVersion = 3

// DefaultHandshakeTimeout bounds the unauthenticated window of a socket.
const DefaultHandshakeTimeout = 10 * time.Second

// handshakeTimeoutEnv shortens the handshake window, but only inside test binaries.
const handshakeTimeoutEnv = "MOLTBOT_TEST_HANDSHAKE_TIMEOUT_MS"

const methodConnect = "connect"

var (
	errNotConnect       = errors.New("first request must be connect")
	errProtocolMismatch = errors.New("protocol mismatch")
)

// HandshakeTimeout returns how long a new socket may stay unauthenticated.
func HandshakeTimeout() time.Duration {
	if testing.Testing() {
		if raw := os.Getenv(handshakeTimeoutEnv); raw != "" {
			if ms, err := strconv.Atoi(raw); err == nil && ms > 0 {
				return time.Duration(ms) * time.Millisecond
			}
		}
	}
	return DefaultHandshakeTimeout
}

// ConnectParams are the params of the connect request.
type ConnectParams struct {
	MinProtocol int           `json:"minProtocol,omitempty"`
	MaxProtocol int           `json:"maxProtocol,omitempty"`
	Auth        ConnectAuth   `json:"auth"`
	Role        string        `json:"role,omitempty"`
	Scopes      []string      `json:"scopes,omitempty"`
	Client      ConnectClient `json:"client"`
}

// ConnectAuth carries exactly one credential.
type ConnectAuth struct {
	Token    string `json:"token,omitempty"`
	Password string `json:"password,omitempty"`
}

// ConnectClient describes the connecting software.
type ConnectClient struct {
	ID          string `json:"id,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Version     string `json:"version,omitempty"`
	Platform    string `json:"platform,omitempty"`
	Mode        string `json:"mode,omitempty"`
}

// HelloOK is the payload of a successful connect response.
type HelloOK struct {
	Type     string        `json:"type"`
	Protocol int           `json:"protocol"`
	Server   HelloServer   `json:"server"`
	Auth     HelloAuth     `json:"auth"`
	Features HelloFeatures `json:"features"`
	Snapshot HelloSnapshot `json:"snapshot"`
	Policy   HelloPolicy   `json:"policy"`
}

// HelloServer identifies the gateway and the new connection.
type HelloServer struct {
	Version string `json:"version"`
	ConnID  string `json:"connId"`
}

// HelloAuth echoes the granted role and scopes.
type HelloAuth struct {
	Role   string   `json:"role"`
	Scopes []string `json:"scopes"`
}

// HelloFeatures lists what the client may call and receive.
type HelloFeatures struct {
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

// HelloSnapshot is the state a client starts from.
type HelloSnapshot struct {
	Presence     []events.PresenceEntry `json:"presence"`
	Health       events.HealthSnapshot  `json:"health"`
	StateVersion events.StateVersion    `json:"stateVersion"`
}

// HelloPolicy tells the client the connection limits.
type HelloPolicy struct {
	MaxPayload       int   `json:"maxPayload"`
	MaxBufferedBytes int64 `json:"maxBufferedBytes"`
	TickIntervalMs   int64 `json:"tickIntervalMs"`
}

var supportedEvents = []string{
	events.EventTick,
	events.EventPresence,
	events.EventHealth,
	events.EventAgent,
	events.EventChat,
	events.EventShutdown,
	events.EventExecApprovalRequested,
	events.EventExecApprovalResolved,
	events.EventDevicePairRequested,
	events.EventDevicePairResolved,
	events.EventNodePairRequested,
	events.EventNodePairResolved,
}

// parseConnect validates the first frame a socket sends.
func parseConnect(data []byte) (events.RequestFrame, *ConnectParams, error) {
	var req events.RequestFrame
	if err := json.Unmarshal(data, &req); err != nil {
		return req, nil, errNotConnect
	}
	if req.Type != events.FrameRequest || req.Method != methodConnect {
		return req, nil, errNotConnect
	}

	var params ConnectParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return req, nil, errNotConnect
		}
	}
	if params.MinProtocol > ProtocolVersion || (params.MaxProtocol > 0 && params.MaxProtocol < ProtocolVersion) {
		return req, nil, errProtocolMismatch
	}
	return req, &params, nil
}

// credentials merges connect params with a bearer token from the upgrade request.
func (p *ConnectParams) credentials(bearer string) auth.Credentials {
	token := p.Auth.Token
	if token == "" && p.Auth.Password == "" {
		token = bearer
	}
	return auth.Credentials{
		Token:    token,
		Password: p.Auth.Password,
		Role:     p.Role,
		Scopes:   p.Scopes,
	}
}

func (p *ConnectParams) info(remoteAddr string) clients.Info {
	return clients.Info{
		ClientID:    p.Client.ID,
		DisplayName: p.Client.DisplayName,
		Version:     p.Client.Version,
		Platform:    p.Client.Platform,
		Mode:        p.Client.Mode,
		RemoteAddr:  remoteAddr,
	}
}

// hello builds the hello-ok payload. The presence snapshot is taken before
// the new client is registered, so it does not include the client itself.
func (g *Gateway) hello(connID string, ac *auth.AuthContext) HelloOK {
	list, presenceVersion := g.presence.Snapshot()
	snap, healthVersion := g.health.Snapshot()
	return HelloOK{
		Type:     "hello-ok",
		Protocol: ProtocolVersion,
		Server:   HelloServer{Version: Version, ConnID: connID},
		Auth:     HelloAuth{Role: ac.Role, Scopes: ac.Scopes},
		Features: HelloFeatures{Methods: supportedMethods(), Events: supportedEvents},
		Snapshot: HelloSnapshot{
			Presence:     list,
			Health:       snap,
			StateVersion: events.StateVersion{Presence: presenceVersion, Health: healthVersion},
		},
		Policy: HelloPolicy{
			MaxPayload:       MaxPayloadBytes,
			MaxBufferedBytes: g.maxBufferedBytes,
			TickIntervalMs:   g.tickInterval.Milliseconds(),
		},
	}
}

// trackPending registers a socket that has not finished its handshake. It
// reports false when the gateway is already shutting down.
func (g *Gateway) trackPending(tr *clients.WSTransport) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closing {
		return false
	}
	g.pending[tr] = struct{}{}
	return true
}

// untrackPending removes tr and reports whether it was still pending.
func (g *Gateway) untrackPending(tr *clients.WSTransport) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.pending[tr]; !ok {
		return false
	}
	delete(g.pending, tr)
	return true
}
