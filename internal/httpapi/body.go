// ABOUTME: Bounded JSON request body parsing for HTTP endpoints.
// ABOUTME: Writes the 400 response itself so handlers can early-return on failure.

package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// DefaultMaxBodyBytes bounds request bodies when the caller passes no limit.
const DefaultMaxBodyBytes int64 = 1 << 20

// Body parsing errors
var (
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrInvalidJSON     = errors.New("invalid JSON")
)

// ReadJSONBody reads at most maxBytes from the request and decodes them into
// dst. An empty body decodes as an empty object and leaves dst untouched.
func ReadJSONBody(r *http.Request, maxBytes int64, dst any) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}

	// One extra byte distinguishes "exactly maxBytes" from "over the limit".
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}
	if int64(len(raw)) > maxBytes {
		return ErrPayloadTooLarge
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return nil
}

// ReadJSONBodyOrError decodes the body into dst. On failure it writes a 400
// invalid_request_error response and returns false; the caller must return
// without writing anything else.
func ReadJSONBodyOrError(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) bool {
	if err := ReadJSONBody(r, maxBytes, dst); err != nil {
		SendInvalidRequest(w, err.Error())
		return false
	}
	return true
}
