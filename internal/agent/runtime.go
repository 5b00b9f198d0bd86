// ABOUTME: Agent runtime interface and the streamed response events it produces
// ABOUTME: The gateway dispatches agent.send and chat completions through a Runtime

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrEmptyMessage indicates a run was requested without any message text.
var ErrEmptyMessage = errors.New("message is required")

// ErrUnknownRuntime indicates the configured runtime name is not supported.
var ErrUnknownRuntime = errors.New("unknown agent runtime")

// ResponseEvent identifies the kind of a streamed runtime response.
type ResponseEvent string

const (
	EventText  ResponseEvent = "text"
	EventDone  ResponseEvent = "done"
	EventError ResponseEvent = "error"
)

// Response is one streamed event from a running agent. Text carries a delta
// for EventText and the full reply for EventDone.
type Response struct {
	Event ResponseEvent
	Text  string
	Error string
	Done  bool
}

// RunRequest describes a single agent turn.
type RunRequest struct {
	RunID      string
	AgentID    string
	SessionKey string
	Sender     string
	Message    string
}

// Runtime executes agent turns. Run returns a channel that receives
// responses until one with Done set, after which it is closed.
type Runtime interface {
	Run(ctx context.Context, req *RunRequest) (<-chan *Response, error)
}

// NewRuntime builds the runtime registered under name.
func NewRuntime(name string, logger *slog.Logger) (Runtime, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "echo":
		return NewEchoRuntime(logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRuntime, name)
	}
}

// Collect drains a response channel and returns the final reply text.
func Collect(ctx context.Context, ch <-chan *Response) (string, error) {
	var sb strings.Builder
	for {
		select {
		case <-ctx.Done():
			return sb.String(), ctx.Err()
		case resp, ok := <-ch:
			if !ok {
				return sb.String(), nil
			}
			switch resp.Event {
			case EventText:
				sb.WriteString(resp.Text)
			case EventError:
				return sb.String(), errors.New(resp.Error)
			case EventDone:
				if resp.Text != "" {
					return resp.Text, nil
				}
				return sb.String(), nil
			}
		}
	}
}
