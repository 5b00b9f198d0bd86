// ABOUTME: Development runtime that echoes the user's message back in chunks
// ABOUTME: Streams word-sized deltas with a small delay to exercise the event path

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const defaultChunkDelay = 50 * time.Millisecond

// EchoRuntime replies to every message with a formatted echo.
type EchoRuntime struct {
	chunkDelay time.Duration
	logger     *slog.Logger
}

// NewEchoRuntime creates an echo runtime with the default chunk pacing.
func NewEchoRuntime(logger *slog.Logger) *EchoRuntime {
	if logger == nil {
		logger = slog.Default()
	}
	return &EchoRuntime{
		chunkDelay: defaultChunkDelay,
		logger:     logger.With("component", "echo-runtime"),
	}
}

// WithChunkDelay sets the pause between streamed chunks.
func (e *EchoRuntime) WithChunkDelay(d time.Duration) *EchoRuntime {
	e.chunkDelay = d
	return e
}

// Run implements Runtime.
func (e *EchoRuntime) Run(ctx context.Context, req *RunRequest) (<-chan *Response, error) {
	if req == nil || strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}

	reply := echoReply(req.Message)
	out := make(chan *Response, 16)

	e.logger.Debug("run started",
		"run_id", req.RunID,
		"agent_id", req.AgentID,
		"session_key", req.SessionKey,
	)

	go func() {
		defer close(out)
		for _, chunk := range splitChunks(reply) {
			select {
			case <-ctx.Done():
				out <- &Response{Event: EventError, Error: "context cancelled", Done: true}
				return
			case out <- &Response{Event: EventText, Text: chunk}:
			}
			if e.chunkDelay > 0 {
				select {
				case <-ctx.Done():
					out <- &Response{Event: EventError, Error: "context cancelled", Done: true}
					return
				case <-time.After(e.chunkDelay):
				}
			}
		}
		out <- &Response{Event: EventDone, Text: reply, Done: true}
	}()

	return out, nil
}

func echoReply(input string) string {
	lower := strings.ToLower(input)
	if strings.Contains(lower, "markdown") || strings.Contains(lower, "bullet") || strings.Contains(lower, "list") {
		return "Here is a **markdown** response:\n\n- First item\n- Second item with `code`\n- Third item\n"
	}
	return fmt.Sprintf("Echo: %s", strings.TrimSpace(input))
}

// splitChunks breaks s into word-sized pieces that concatenate back to s.
func splitChunks(s string) []string {
	var chunks []string
	start := 0
	for i := 1; i < len(s); i++ {
		if s[i] == ' ' || s[i] == '\n' {
			chunks = append(chunks, s[start:i])
			start = i
		}
	}
	if start < len(s) {
		chunks = append(chunks, s[start:])
	}
	return chunks
}
