// Package httpapi holds the response-shaping and request-parsing helpers used
// by every HTTP endpoint of the gateway.
//
// Errors use the OpenAI envelope so OpenAI-compatible clients can surface
// them unchanged:
//
//	{"error":{"message":"Unauthorized","type":"unauthorized"}}
//
// ReadJSONBodyOrError writes its own 400 response, so handlers follow the
// pattern:
//
//	var req chatRequest
//	if !httpapi.ReadJSONBodyOrError(w, r, maxBytes, &req) {
//	    return
//	}
package httpapi
