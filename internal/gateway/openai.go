// ABOUTME: OpenAI-compatible POST /v1/chat/completions endpoint backed by the agent runtime
// ABOUTME: Streams chat.completion.chunk frames over SSE or returns a single chat.completion

package gateway

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/moltbot-gateway/internal/agent"
	"github.com/2389/moltbot-gateway/internal/auth"
	"github.com/2389/moltbot-gateway/internal/httpapi"
	"github.com/2389/moltbot-gateway/internal/routing"
)

const (
	openAISessionPrefix  = "openai"
	idempotencyKeyHeader = "Idempotency-Key"
	defaultModelName     = "moltbot"
)

// ChatCompletionRequest is the subset of the OpenAI request the gateway reads.
type ChatCompletionRequest struct {
	Model    string               `json:"model"`
	Messages []ChatRequestMessage `json:"messages"`
	Stream   bool                 `json:"stream"`
	User     string               `json:"user"`
}

// ChatRequestMessage holds content as either a string or a list of parts.
type ChatRequestMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// ChatCompletion is the non-streaming response.
type ChatCompletion struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   ChatCompletionUsage    `json:"usage"`
}

// ChatCompletionChoice is one answer.
type ChatCompletionChoice struct {
	Index        int                   `json:"index"`
	Message      ChatCompletionMessage `json:"message"`
	FinishReason string                `json:"finish_reason"`
}

// ChatCompletionMessage is an assistant reply.
type ChatCompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionUsage is reported as zeros; the runtime does not count tokens.
type ChatCompletionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionChunk is one streamed frame.
type ChatCompletionChunk struct {
	ID      string                `json:"id"`
	Object  string                `json:"object"`
	Created int64                 `json:"created"`
	Model   string                `json:"model"`
	Choices []ChatCompletionDelta `json:"choices"`
}

// ChatCompletionDelta is the incremental part of a chunk.
type ChatCompletionDelta struct {
	Index        int       `json:"index"`
	Delta        ChatDelta `json:"delta"`
	FinishReason *string   `json:"finish_reason"`
}

// ChatDelta carries a role announcement or a content fragment.
type ChatDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// handleChatCompletions serves POST /v1/chat/completions.
func (g *Gateway) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpapi.SendMethodNotAllowed(w, http.MethodPost)
		return
	}

	token := auth.BearerToken(r)
	if token == "" {
		httpapi.SendUnauthorized(w)
		return
	}
	ac, err := g.authn.Authenticate(r.Context(), auth.Credentials{Token: token, Role: auth.RoleOperator})
	if err != nil {
		g.logger.Debug("chat completion rejected", "error", err)
		httpapi.SendUnauthorized(w)
		return
	}
	if !auth.IsAuthorizedForMethod(ac, methodAgentSend) {
		httpapi.SendError(w, http.StatusForbidden, httpapi.ErrorTypeForbidden, "operator.write scope required")
		return
	}

	var req ChatCompletionRequest
	if !httpapi.ReadJSONBodyOrError(w, r, g.maxBodyBytes, &req) {
		return
	}

	prompt := lastUserMessage(req.Messages)
	if prompt == "" {
		httpapi.SendInvalidRequest(w, "Missing user message in `messages`.")
		return
	}

	if key := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader)); key != "" {
		if g.dedupe.Check("openai:" + key) {
			httpapi.SendError(w, http.StatusConflict, httpapi.ErrorTypeConflict, "duplicate request for Idempotency-Key")
			return
		}
	}

	agentID := g.resolveAgentID(r, req.Model)
	run := &agent.RunRequest{
		RunID:      uuid.NewString(),
		AgentID:    agentID,
		SessionKey: routing.ResolveSessionKey(r, agentID, req.User, openAISessionPrefix),
		Sender:     ac.PrincipalID,
		Message:    prompt,
	}

	model := req.Model
	if model == "" {
		model = defaultModelName
	}
	id := "chatcmpl_" + run.RunID
	created := time.Now().Unix()

	if req.Stream {
		g.streamCompletion(w, r, run, id, model, created)
		return
	}

	text, err := g.runAgent(r.Context(), run, nil)
	if err != nil {
		g.logger.Warn("chat completion failed", "run_id", run.RunID, "error", err)
		httpapi.SendError(w, http.StatusInternalServerError, httpapi.ErrorTypeServer, "agent run failed")
		return
	}

	httpapi.SendJSON(w, http.StatusOK, ChatCompletion{
		ID:      id,
		Object:  "chat.completion",
		Created: created,
		Model:   model,
		Choices: []ChatCompletionChoice{{
			Index:        0,
			Message:      ChatCompletionMessage{Role: "assistant", Content: text},
			FinishReason: "stop",
		}},
	})
}

func (g *Gateway) streamCompletion(w http.ResponseWriter, r *http.Request, run *agent.RunRequest, id, model string, created int64) {
	chunk := func(delta ChatDelta, finish *string) ChatCompletionChunk {
		return ChatCompletionChunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   model,
			Choices: []ChatCompletionDelta{{Index: 0, Delta: delta, FinishReason: finish}},
		}
	}

	httpapi.SetSSEHeaders(w)
	_ = httpapi.WriteSSEData(w, chunk(ChatDelta{Role: "assistant"}, nil))

	_, err := g.runAgent(r.Context(), run, func(resp *agent.Response) {
		if resp.Event == agent.EventText && resp.Text != "" {
			_ = httpapi.WriteSSEData(w, chunk(ChatDelta{Content: resp.Text}, nil))
		}
	})
	if err != nil {
		g.logger.Warn("chat completion stream failed", "run_id", run.RunID, "error", err)
		_ = httpapi.WriteSSEData(w, httpapi.ErrorBody{Error: httpapi.ErrorDetail{
			Message: "agent run failed",
			Type:    httpapi.ErrorTypeServer,
		}})
	} else {
		stop := "stop"
		_ = httpapi.WriteSSEData(w, chunk(ChatDelta{}, &stop))
	}
	httpapi.WriteSSEDone(w)
}

// resolveAgentID applies header and model routing, falling back to the
// configured default agent.
func (g *Gateway) resolveAgentID(r *http.Request, model string) string {
	if id, ok := routing.AgentIDFromHeaders(r.Header); ok {
		return id
	}
	if id, ok := routing.AgentIDFromModel(model); ok {
		return id
	}
	return g.defaultAgentID
}

// lastUserMessage returns the text of the final user message.
func lastUserMessage(messages []ChatRequestMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != "user" {
			continue
		}
		if text := strings.TrimSpace(messageText(messages[i].Content)); text != "" {
			return text
		}
	}
	return ""
}

// messageText flattens string content or an array of text parts.
func messageText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Type == "text" && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}
