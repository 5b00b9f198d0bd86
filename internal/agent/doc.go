// Package agent defines how the gateway talks to the agent execution engine.
//
// # Runtime
//
// A Runtime accepts a RunRequest and streams Response events back on a
// channel:
//
//	ch, err := rt.Run(ctx, &agent.RunRequest{RunID: id, AgentID: "main", Message: "hi"})
//
// Zero or more EventText responses carry deltas. The stream ends with exactly
// one response whose Done field is set: EventDone with the full reply, or
// EventError. The channel is closed afterwards.
//
// EchoRuntime is the development runtime. It echoes the message back in
// word-sized chunks so that clients can exercise streaming without an LLM.
//
// # Run tracking
//
// RunTracker counts in-flight runs. The gateway feeds Active into the health
// snapshot and List into the status method.
package agent
