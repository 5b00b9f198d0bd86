// ABOUTME: Typed payloads for every event the gateway emits.
// ABOUTME: Unknown producers may still broadcast raw JSON via json.RawMessage.

package events

// Event names.
const (
	EventConnectChallenge = "connect.challenge"
	EventTick             = "tick"
	EventPresence         = "presence"
	EventHealth           = "health"
	EventAgent            = "agent"
	EventChat             = "chat"
	EventShutdown         = "shutdown"

	EventExecApprovalRequested = "exec.approval.requested"
	EventExecApprovalResolved  = "exec.approval.resolved"
	EventDevicePairRequested   = "device.pair.requested"
	EventDevicePairResolved    = "device.pair.resolved"
	EventNodePairRequested     = "node.pair.requested"
	EventNodePairResolved      = "node.pair.resolved"
)

// ChallengePayload is sent to every socket right after upgrade.
type ChallengePayload struct {
	Nonce string `json:"nonce"`
	TS    int64  `json:"ts"`
}

// TickPayload is the periodic heartbeat.
type TickPayload struct {
	TS int64 `json:"ts"`
}

// ShutdownPayload announces an orderly gateway stop.
type ShutdownPayload struct {
	Reason string `json:"reason"`
}

// PresenceEntry describes one connected client.
type PresenceEntry struct {
	ConnID      string   `json:"connId"`
	ClientID    string   `json:"clientId,omitempty"`
	DisplayName string   `json:"displayName,omitempty"`
	Platform    string   `json:"platform,omitempty"`
	Version     string   `json:"version,omitempty"`
	Mode        string   `json:"mode,omitempty"`
	Role        string   `json:"role"`
	Scopes      []string `json:"scopes,omitempty"`
	ConnectedAt int64    `json:"connectedAt"`
}

// PresencePayload is the full presence list.
type PresencePayload struct {
	Presence []PresenceEntry `json:"presence"`
}

// HealthSnapshot summarizes gateway health.
type HealthSnapshot struct {
	OK       bool  `json:"ok"`
	TS       int64 `json:"ts"`
	UptimeMs int64 `json:"uptimeMs"`
	Clients  int   `json:"clients"`
	Runs     int   `json:"runs"`
}

// Agent stream names.
const (
	StreamAssistant = "assistant"
	StreamLifecycle = "lifecycle"
)

// Lifecycle phases.
const (
	PhaseStart = "start"
	PhaseEnd   = "end"
	PhaseError = "error"
)

// AgentEventPayload carries incremental agent output for one run.
type AgentEventPayload struct {
	RunID      string         `json:"runId"`
	SessionKey string         `json:"sessionKey"`
	AgentID    string         `json:"agentId"`
	Stream     string         `json:"stream"`
	Seq        int            `json:"seq"`
	TS         int64          `json:"ts"`
	Data       AgentEventData `json:"data"`
}

// AgentEventData holds either an assistant delta or a lifecycle phase.
type AgentEventData struct {
	Delta string `json:"delta,omitempty"`
	Text  string `json:"text,omitempty"`
	Phase string `json:"phase,omitempty"`
	Error string `json:"error,omitempty"`
}

// Chat states.
const (
	ChatStateFinal = "final"
	ChatStateError = "error"
)

// ChatEventPayload is the final transcript entry for a run.
type ChatEventPayload struct {
	RunID        string       `json:"runId"`
	SessionKey   string       `json:"sessionKey"`
	State        string       `json:"state"`
	Message      *ChatMessage `json:"message,omitempty"`
	ErrorMessage string       `json:"errorMessage,omitempty"`
}

// ChatMessage is one transcript message.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ExecApprovalRequest asks operators to approve a command.
type ExecApprovalRequest struct {
	ID         string `json:"id"`
	Command    string `json:"command"`
	Cwd        string `json:"cwd,omitempty"`
	AgentID    string `json:"agentId,omitempty"`
	SessionKey string `json:"sessionKey,omitempty"`
	ExpiresAt  int64  `json:"expiresAtMs,omitempty"`
}

// ExecApprovalResolved reports an operator's decision.
type ExecApprovalResolved struct {
	ID         string `json:"id"`
	Decision   string `json:"decision"`
	ResolvedBy string `json:"resolvedBy,omitempty"`
	TS         int64  `json:"ts"`
}

// PairRequest asks operators to approve a device or node pairing.
type PairRequest struct {
	RequestID   string `json:"requestId"`
	DeviceID    string `json:"deviceId,omitempty"`
	NodeID      string `json:"nodeId,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Platform    string `json:"platform,omitempty"`
	TS          int64  `json:"ts"`
}

// PairResolved reports the outcome of a pairing request.
type PairResolved struct {
	RequestID string `json:"requestId"`
	Decision  string `json:"decision"`
	TS        int64  `json:"ts"`
}
