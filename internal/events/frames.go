// ABOUTME: Wire frames exchanged with WebSocket clients: events, requests, and responses.
// ABOUTME: Every frame is a JSON object discriminated by its "type" field.

package events

import "encoding/json"

// Frame types.
const (
	FrameEvent    = "event"
	FrameRequest  = "req"
	FrameResponse = "res"
)

// Error codes carried in response frames.
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeForbidden      = "FORBIDDEN"
	CodeUnavailable    = "UNAVAILABLE"
)

// StateVersion stamps an event with the generation of the presence and
// health substates so clients can detect missed updates.
type StateVersion struct {
	Presence uint64 `json:"presence,omitempty"`
	Health   uint64 `json:"health,omitempty"`
}

// EventFrame is the broadcast envelope.
type EventFrame struct {
	Type         string        `json:"type"`
	Event        string        `json:"event"`
	Payload      any           `json:"payload,omitempty"`
	Seq          uint64        `json:"seq,omitempty"`
	StateVersion *StateVersion `json:"stateVersion,omitempty"`
}

// RequestFrame is a client-initiated call.
type RequestFrame struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ResponseFrame answers a RequestFrame with the same ID.
type ResponseFrame struct {
	Type    string      `json:"type"`
	ID      string      `json:"id"`
	OK      bool        `json:"ok"`
	Payload any         `json:"payload,omitempty"`
	Error   *ErrorShape `json:"error,omitempty"`
}

// ErrorShape describes a failed request.
type ErrorShape struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// OKResponse builds a successful response.
func OKResponse(id string, payload any) ResponseFrame {
	return ResponseFrame{Type: FrameResponse, ID: id, OK: true, Payload: payload}
}

// ErrorResponse builds a failed response.
func ErrorResponse(id, code, message string) ResponseFrame {
	return ResponseFrame{Type: FrameResponse, ID: id, OK: false, Error: &ErrorShape{Code: code, Message: message}}
}
