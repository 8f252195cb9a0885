// Package mcp implements the JSON-RPC 2.0 protocol session layer.
//
// The package turns the stateless HTTP endpoint into a session-aware
// tool invocation channel. Each POST runs a fixed state machine:
// authenticate the bearer token, resolve the session named by the
// Mcp-Session-Id header, dispatch the method, and respond with the
// session header set. Sessions are bound to the identity that created
// them; initialize always starts a fresh session, and unknown session
// ids are recovered silently unless recovery is disabled.
//
// Tools are registered on a Registry and invoked through the Tool
// interface. Tool-level failures come back as isError content inside a
// successful envelope; only protocol violations produce JSON-RPC errors.
package mcp
