// ABOUTME: Server-Sent Events helpers for streaming HTTP responses.
// ABOUTME: Sets stream headers, flushes eagerly, and writes data frames and the [DONE] marker.

package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// DoneFrame terminates an OpenAI-style event stream.
const DoneFrame = "data: [DONE]\n\n"

// SetSSEHeaders prepares w for an event stream and flushes the headers so
// the client sees the stream open before the first event.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flush(w)
}

// WriteSSEData writes one `data:` frame containing data encoded as JSON.
func WriteSSEData(w http.ResponseWriter, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling SSE data: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	flush(w)
	return nil
}

// WriteSSEDone writes the terminal [DONE] marker.
func WriteSSEDone(w http.ResponseWriter) {
	_, _ = w.Write([]byte(DoneFrame))
	flush(w)
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
