// Package gateway is the control plane that ties clients, events, and agent
// runs together.
//
// A Gateway serves one HTTP listener (plain TCP or a tailnet node) carrying
// the WebSocket control channel at /ws, the OpenAI-compatible endpoint at
// /v1/chat/completions, liveness and readiness probes, and a small admin API.
//
// WebSocket clients must complete the connect handshake within the handshake
// window. After hello-ok they receive every broadcast they are authorized for
// and may call the request methods listed in the hello features.
package gateway
