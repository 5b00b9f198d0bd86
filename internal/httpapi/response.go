// ABOUTME: Response shaping helpers shared by the gateway's HTTP endpoints.
// ABOUTME: JSON/text success, 400/401/405 error bodies in the OpenAI error envelope.

package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Error types used in the error envelope.
const (
	ErrorTypeInvalidRequest = "invalid_request_error"
	ErrorTypeUnauthorized   = "unauthorized"
	ErrorTypeForbidden      = "forbidden"
	ErrorTypeConflict       = "conflict_error"
	ErrorTypeServer         = "api_error"
)

// ErrorBody is the JSON error envelope: {"error":{"message":...,"type":...}}.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the message and machine-readable type of an error.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// SendJSON writes body as JSON with the given status.
func SendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Default().Debug("writing JSON response failed", "error", err)
	}
}

// SendText writes a plain-text body with the given status.
func SendText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// SendMethodNotAllowed responds 405 and advertises the allowed method(s).
func SendMethodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	SendText(w, http.StatusMethodNotAllowed, "Method Not Allowed")
}

// SendError writes the JSON error envelope.
func SendError(w http.ResponseWriter, status int, errType, message string) {
	SendJSON(w, status, ErrorBody{Error: ErrorDetail{Message: message, Type: errType}})
}

// SendUnauthorized responds 401 with the standard unauthorized envelope.
func SendUnauthorized(w http.ResponseWriter) {
	SendError(w, http.StatusUnauthorized, ErrorTypeUnauthorized, "Unauthorized")
}

// SendInvalidRequest responds 400 with an invalid_request_error envelope.
func SendInvalidRequest(w http.ResponseWriter, message string) {
	SendError(w, http.StatusBadRequest, ErrorTypeInvalidRequest, message)
}
