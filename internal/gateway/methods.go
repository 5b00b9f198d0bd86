// ABOUTME: Request methods available to connected WebSocket clients
// ABOUTME: Scope checks run before dispatch; unknown methods are rejected

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/moltbot-gateway/internal/agent"
	"github.com/2389/moltbot-gateway/internal/auth"
	"github.com/2389/moltbot-gateway/internal/clients"
	"github.com/2389/moltbot-gateway/internal/events"
	"github.com/2389/moltbot-gateway/internal/routing"
)

const (
	methodHealth    = "health"
	methodPresence  = "presence"
	methodStatus    = "status"
	methodAgentSend = "agent.send"
)

// Agent send outcomes.
const (
	SendStatusAccepted  = "accepted"
	SendStatusDuplicate = "duplicate"
)

// errRunIncomplete reports a runtime stream that closed without a terminal response.
var errRunIncomplete = errors.New("agent stream ended without a result")

// methodHandler returns the response payload and, optionally, work to start
// once the response has been queued.
type methodHandler func(g *Gateway, c *clients.Client, params json.RawMessage) (any, func(), *events.ErrorShape)

var methodHandlers = map[string]methodHandler{
	methodHealth:    (*Gateway).methodHealth,
	methodPresence:  (*Gateway).methodPresence,
	methodStatus:    (*Gateway).methodStatus,
	methodAgentSend: (*Gateway).methodAgentSend,
}

func supportedMethods() []string {
	names := make([]string, 0, len(methodHandlers))
	for name := range methodHandlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// handleRequest authorizes and dispatches one request frame. The returned
// function, if any, must run after the response is queued.
func (g *Gateway) handleRequest(c *clients.Client, req events.RequestFrame) (events.ResponseFrame, func()) {
	if req.Method == methodConnect {
		return events.ErrorResponse(req.ID, events.CodeInvalidRequest, "already connected"), nil
	}

	handler, ok := methodHandlers[req.Method]
	if !ok {
		return events.ErrorResponse(req.ID, events.CodeInvalidRequest, "unknown method: "+req.Method), nil
	}

	if !auth.IsAuthorizedForMethod(c.Auth, req.Method) {
		return events.ErrorResponse(req.ID, events.CodeForbidden, "missing scope for "+req.Method), nil
	}

	payload, after, errShape := handler(g, c, req.Params)
	if errShape != nil {
		return events.ResponseFrame{Type: events.FrameResponse, ID: req.ID, Error: errShape}, nil
	}
	return events.OKResponse(req.ID, payload), after
}

func invalidRequest(message string) *events.ErrorShape {
	return &events.ErrorShape{Code: events.CodeInvalidRequest, Message: message}
}

func (g *Gateway) methodHealth(_ *clients.Client, _ json.RawMessage) (any, func(), *events.ErrorShape) {
	snap, _ := g.health.Snapshot()
	return snap, nil, nil
}

// PresenceResult answers the presence method.
type PresenceResult struct {
	Presence     []events.PresenceEntry `json:"presence"`
	StateVersion events.StateVersion    `json:"stateVersion"`
}

func (g *Gateway) methodPresence(_ *clients.Client, _ json.RawMessage) (any, func(), *events.ErrorShape) {
	list, _ := g.presence.Snapshot()
	return PresenceResult{Presence: list, StateVersion: g.stateVersion()}, nil, nil
}

// StatusResult answers the status method.
type StatusResult struct {
	Version      string              `json:"version"`
	Clients      int                 `json:"clients"`
	Runs         []agent.RunInfo     `json:"runs"`
	Seq          uint64              `json:"seq"`
	StateVersion events.StateVersion `json:"stateVersion"`
	DedupeSize   int                 `json:"dedupeSize"`
}

func (g *Gateway) methodStatus(_ *clients.Client, _ json.RawMessage) (any, func(), *events.ErrorShape) {
	return StatusResult{
		Version:      Version,
		Clients:      g.registry.Len(),
		Runs:         g.runs.List(),
		Seq:          g.broadcaster.Seq(),
		StateVersion: g.stateVersion(),
		DedupeSize:   g.dedupe.Size(),
	}, nil, nil
}

// AgentSendParams are the params of agent.send.
type AgentSendParams struct {
	Message        string `json:"message"`
	AgentID        string `json:"agentId,omitempty"`
	SessionKey     string `json:"sessionKey,omitempty"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// AgentSendResult acknowledges agent.send. Output arrives later as agent
// and chat events carrying RunID.
type AgentSendResult struct {
	Status     string `json:"status"`
	RunID      string `json:"runId,omitempty"`
	AgentID    string `json:"agentId,omitempty"`
	SessionKey string `json:"sessionKey,omitempty"`
}

func (g *Gateway) methodAgentSend(c *clients.Client, raw json.RawMessage) (any, func(), *events.ErrorShape) {
	var params AgentSendParams
	if len(raw) == 0 {
		return nil, nil, invalidRequest("params are required")
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, nil, invalidRequest("invalid params: " + err.Error())
	}
	if strings.TrimSpace(params.Message) == "" {
		return nil, nil, invalidRequest("message is required")
	}
	key := strings.TrimSpace(params.IdempotencyKey)
	if key == "" {
		return nil, nil, invalidRequest("idempotencyKey is required")
	}

	if g.dedupe.Check("agent:" + key) {
		g.logger.Debug("duplicate agent.send", "conn_id", c.ID, "idempotency_key", key)
		return AgentSendResult{Status: SendStatusDuplicate}, nil, nil
	}

	agentID := g.defaultAgentID
	if strings.TrimSpace(params.AgentID) != "" {
		agentID = routing.NormalizeAgentID(params.AgentID)
	}
	sessionKey := strings.TrimSpace(params.SessionKey)
	if sessionKey == "" {
		sessionKey = routing.BuildAgentSessionKey(agentID, routing.DefaultMainKey)
	}

	req := &agent.RunRequest{
		RunID:      uuid.NewString(),
		AgentID:    agentID,
		SessionKey: sessionKey,
		Sender:     c.ID,
		Message:    params.Message,
	}

	start := func() {
		go func() {
			if _, err := g.runAgent(g.runCtx, req, nil); err != nil {
				g.logger.Warn("agent run failed", "run_id", req.RunID, "error", err)
			}
		}()
	}

	return AgentSendResult{
		Status:     SendStatusAccepted,
		RunID:      req.RunID,
		AgentID:    agentID,
		SessionKey: sessionKey,
	}, start, nil
}

// runAgent executes req on the runtime, broadcasting agent events for each
// delta and a final chat event. sink, if set, sees every runtime response.
// It returns the final reply text.
func (g *Gateway) runAgent(ctx context.Context, req *agent.RunRequest, sink func(*agent.Response)) (string, error) {
	ch, err := g.runtime.Run(ctx, req)
	if err != nil {
		return "", err
	}
	end := g.runs.Begin(req)
	defer end()

	stream := &runStream{g: g, req: req}
	stream.lifecycle(events.PhaseStart, "")

	var sb strings.Builder
	for resp := range ch {
		if sink != nil {
			sink(resp)
		}
		switch resp.Event {
		case agent.EventText:
			sb.WriteString(resp.Text)
			stream.delta(resp.Text, sb.String())
		case agent.EventDone:
			final := resp.Text
			if final == "" {
				final = sb.String()
			}
			stream.lifecycle(events.PhaseEnd, "")
			stream.chat(events.ChatStateFinal, final, "")
			return final, nil
		case agent.EventError:
			stream.lifecycle(events.PhaseError, resp.Error)
			stream.chat(events.ChatStateError, "", resp.Error)
			return sb.String(), errors.New(resp.Error)
		}
	}

	stream.lifecycle(events.PhaseError, errRunIncomplete.Error())
	stream.chat(events.ChatStateError, "", errRunIncomplete.Error())
	return sb.String(), errRunIncomplete
}

// runStream numbers the agent events of one run.
type runStream struct {
	g   *Gateway
	req *agent.RunRequest
	seq int
}

func (s *runStream) emit(streamName string, data events.AgentEventData, dropIfSlow bool) {
	s.seq++
	s.g.broadcaster.Broadcast(events.EventAgent, events.AgentEventPayload{
		RunID:      s.req.RunID,
		SessionKey: s.req.SessionKey,
		AgentID:    s.req.AgentID,
		Stream:     streamName,
		Seq:        s.seq,
		TS:         time.Now().UnixMilli(),
		Data:       data,
	}, events.BroadcastOptions{DropIfSlow: dropIfSlow})
}

func (s *runStream) lifecycle(phase, errMsg string) {
	s.emit(events.StreamLifecycle, events.AgentEventData{Phase: phase, Error: errMsg}, false)
}

func (s *runStream) delta(delta, text string) {
	s.emit(events.StreamAssistant, events.AgentEventData{Delta: delta, Text: text}, true)
}

func (s *runStream) chat(state, text, errMsg string) {
	payload := events.ChatEventPayload{
		RunID:        s.req.RunID,
		SessionKey:   s.req.SessionKey,
		State:        state,
		ErrorMessage: errMsg,
	}
	if state == events.ChatStateFinal {
		payload.Message = &events.ChatMessage{Role: "assistant", Content: text}
	}
	s.g.broadcaster.Broadcast(events.EventChat, payload, events.BroadcastOptions{})
}
