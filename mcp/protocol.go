package mcp

import "encoding/json"

// ProtocolVersion is the protocol revision this server speaks
const ProtocolVersion = "2025-03-26"

// SessionHeader carries the session identifier on requests and responses
const SessionHeader = "Mcp-Session-Id"

// JSON-RPC 2.0 error codes
const (
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// CodeUnauthorized covers failed bearer authentication and session
	// binding violations
	CodeUnauthorized = -32001
)

// Request is a JSON-RPC 2.0 request envelope. ID is kept raw so the
// response echoes it byte for byte, whatever scalar type the client sent.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no id and therefore
// expects no response body. An explicit null id is still an id and gets
// a response.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// Response is a JSON-RPC 2.0 response envelope
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// ErrorObject is a JSON-RPC 2.0 error member
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// NewResult builds a success response echoing the request id
func NewResult(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: "2.0", ID: normalizeID(id), Result: result}
}

// NewError builds an error response echoing the request id
func NewError(id json.RawMessage, code int, message string) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      normalizeID(id),
		Error:   &ErrorObject{Code: code, Message: message},
	}
}

// normalizeID maps an absent id to an explicit null so the error member
// of the envelope is always well-formed
func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}

// InitializeParams is the client half of the initialize handshake
type InitializeParams struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    json.RawMessage `json:"capabilities,omitempty"`
	ClientInfo      Implementation  `json:"clientInfo,omitempty"`
}

// Implementation identifies one side of the protocol handshake
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the server half of the initialize handshake
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

// ServerCapabilities declares what the server supports
type ServerCapabilities struct {
	Tools ToolsCapability `json:"tools"`
}

// ToolsCapability declares tool-related capabilities
type ToolsCapability struct {
	ListChanged bool `json:"listChanged"`
}

// ToolDefinition describes one tool in the catalog
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ToolsListResult is the tools/list payload
type ToolsListResult struct {
	Tools []ToolDefinition `json:"tools"`
}

// ToolsCallParams is the tools/call request payload
type ToolsCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Content is one typed content block in a tool result
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// TextContent builds a plain text content block
func TextContent(text string) Content {
	return Content{Type: "text", Text: text}
}

// ToolsCallResult is the tools/call payload. IsError marks a tool-level
// failure; it is still a successful JSON-RPC envelope.
type ToolsCallResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}
