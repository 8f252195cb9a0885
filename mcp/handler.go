package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ddellecasedata/sql-mcp/instrumentation"
	"github.com/ddellecasedata/sql-mcp/security"
	"github.com/ddellecasedata/sql-mcp/server"
	"github.com/ddellecasedata/sql-mcp/storage"
)

// CodeParseError is the JSON-RPC 2.0 parse error code
const CodeParseError = -32700

// Config holds protocol handler configuration
type Config struct {
	// ServerName and ServerVersion identify this server in the
	// initialize handshake
	ServerName    string
	ServerVersion string

	// Instructions is free text returned from initialize describing how
	// to use the server
	Instructions string

	// ResourceMetadataURL is advertised in the WWW-Authenticate
	// challenge on 401 responses
	ResourceMetadataURL string

	// DisableSessionRecovery rejects requests whose session id is
	// missing or unknown instead of silently creating a session. The
	// permissive default matches clients that predate session headers.
	DisableSessionRecovery bool
}

// Handler is the JSON-RPC dispatcher for the protocol endpoint. Each
// request runs the same state machine: authenticate, resolve the
// session, dispatch the method, respond with the session header set.
type Handler struct {
	auth     Authenticator
	sessions *SessionManager
	registry *Registry
	config   Config
	logger   *slog.Logger

	Auditor *security.Auditor

	instrumentation *instrumentation.Instrumentation
}

// NewHandler creates the protocol endpoint handler
func NewHandler(auth Authenticator, sessions *SessionManager, registry *Registry, config Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.ServerName == "" {
		config.ServerName = "sql-mcp"
	}
	return &Handler{
		auth:     auth,
		sessions: sessions,
		registry: registry,
		config:   config,
		logger:   logger,
	}
}

// SetInstrumentation wires observability into the handler
func (h *Handler) SetInstrumentation(inst *instrumentation.Instrumentation) {
	h.instrumentation = inst
}

func (h *Handler) metrics() *instrumentation.Metrics {
	if h.instrumentation == nil {
		return nil
	}
	return h.instrumentation.Metrics()
}

// ServeHTTP routes the protocol endpoint
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.serveRPC(w, r)
	case http.MethodDelete:
		h.serveTerminate(w, r)
	default:
		w.Header().Set("Allow", "POST, DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// startSpan starts a protocol-layer span when instrumentation is wired.
// The nil span from the unwired case is accepted by every helper.
func (h *Handler) startSpan(r *http.Request, name string) (*http.Request, trace.Span) {
	if h.instrumentation == nil {
		return r, nil
	}
	ctx, span := h.instrumentation.Tracer("mcp").Start(r.Context(), name)
	return r.WithContext(ctx), span
}

// serveRPC runs the per-request state machine
func (h *Handler) serveRPC(w http.ResponseWriter, r *http.Request) {
	r, span := h.startSpan(r, "mcp.rpc")
	if span != nil {
		defer span.End()
	}

	// Decode before auth so error envelopes can echo the request id
	var req Request
	decodeErr := json.NewDecoder(r.Body).Decode(&req)

	auth, err := h.auth.Authenticate(r)
	if err != nil {
		h.logger.Debug("Protocol request rejected", "error", err)
		w.Header().Set("WWW-Authenticate", server.FormatWWWAuthenticate(
			h.config.ResourceMetadataURL, "", "invalid_token", "authentication required"))
		h.writeResponse(w, http.StatusUnauthorized, "",
			NewError(req.ID, CodeUnauthorized, "authentication required"))
		return
	}

	if decodeErr != nil {
		// Unlike the 401 path above, a parse error must carry a null id:
		// an id pulled from a half-decoded body cannot be trusted
		h.writeResponse(w, http.StatusBadRequest, "",
			NewError(nil, CodeParseError, "request body is not valid JSON"))
		return
	}
	if req.JSONRPC != "2.0" {
		h.writeResponse(w, http.StatusBadRequest, "",
			NewError(req.ID, CodeInvalidRequest, `jsonrpc must be "2.0"`))
		return
	}

	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrRPCMethod, req.Method))

	session, errResp, status := h.resolveSession(r, &req, auth)
	if errResp != nil {
		instrumentation.SetSpanError(span, errResp.Error.Message)
		h.writeResponse(w, status, "", errResp)
		return
	}
	instrumentation.AddSessionAttributes(span, session.ID, false)

	if req.IsNotification() {
		// Notifications get no response body
		w.Header().Set(SessionHeader, session.ID)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	resp := h.dispatch(r.Context(), &req, session, auth)
	h.writeResponse(w, http.StatusOK, session.ID, resp)
}

// resolveSession implements the session binding rules: initialize always
// starts fresh, other methods reuse, recover, or fail closed depending
// on configuration.
func (h *Handler) resolveSession(r *http.Request, req *Request, auth *server.AuthContext) (*storage.Session, *Response, int) {
	ctx := r.Context()
	suppliedID := r.Header.Get(SessionHeader)

	if req.Method == "initialize" {
		session, err := h.sessions.Create(ctx, auth)
		if err != nil {
			h.logger.Error("Failed to create session", "error", err)
			return nil, NewError(req.ID, CodeInternalError, "internal error"), http.StatusInternalServerError
		}
		h.logSessionCreated(ctx, auth, session.ID, false)
		return session, nil, 0
	}

	if suppliedID == "" {
		if h.config.DisableSessionRecovery {
			return nil, NewError(req.ID, CodeUnauthorized, "session required: call initialize first"), http.StatusBadRequest
		}
		session, err := h.sessions.Create(ctx, auth)
		if err != nil {
			h.logger.Error("Failed to create session", "error", err)
			return nil, NewError(req.ID, CodeInternalError, "internal error"), http.StatusInternalServerError
		}
		h.logSessionCreated(ctx, auth, session.ID, false)
		return session, nil, 0
	}

	session, err := h.sessions.Get(ctx, suppliedID)
	if err != nil {
		h.logger.Error("Session lookup failed", "error", err)
		return nil, NewError(req.ID, CodeInternalError, "internal error"), http.StatusInternalServerError
	}

	if session == nil {
		if h.config.DisableSessionRecovery {
			return nil, NewError(req.ID, CodeUnauthorized, "unknown session"), http.StatusNotFound
		}
		// Recreate under the supplied id so the client survives a
		// server restart without renegotiating
		session, err = h.sessions.CreateWithID(ctx, suppliedID, auth)
		if err != nil {
			h.logger.Error("Failed to recover session", "error", err)
			return nil, NewError(req.ID, CodeInternalError, "internal error"), http.StatusInternalServerError
		}
		h.logger.Info("Recovered unknown session id", "session_id", suppliedID)
		h.logSessionCreated(ctx, auth, session.ID, true)
		return session, nil, 0
	}

	// A session is usable only by the identity that created it
	if session.Subject != auth.Subject {
		h.logger.Warn("Session identity mismatch",
			"session_id", session.ID,
			"session_subject", session.Subject,
			"request_subject", auth.Subject)
		return nil, NewError(req.ID, CodeUnauthorized, "session is bound to another identity"), http.StatusForbidden
	}

	return session, nil, 0
}

// dispatch resolves the method to behavior
func (h *Handler) dispatch(ctx context.Context, req *Request, session *storage.Session, auth *server.AuthContext) *Response {
	switch req.Method {
	case "initialize":
		return NewResult(req.ID, &InitializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities: ServerCapabilities{
				Tools: ToolsCapability{ListChanged: false},
			},
			ServerInfo: Implementation{
				Name:    h.config.ServerName,
				Version: h.config.ServerVersion,
			},
			Instructions: h.config.Instructions,
		})

	case "tools/list":
		return NewResult(req.ID, &ToolsListResult{Tools: h.registry.List()})

	case "tools/call":
		return h.dispatchToolCall(ctx, req, auth)

	default:
		return NewError(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (h *Handler) dispatchToolCall(ctx context.Context, req *Request, auth *server.AuthContext) *Response {
	var params ToolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return NewError(req.ID, CodeInvalidParams, "params must carry a tool name and arguments")
	}
	if params.Name == "" {
		return NewError(req.ID, CodeInvalidParams, "tool name is required")
	}

	tool, ok := h.registry.Get(params.Name)
	if !ok {
		return NewError(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown tool: %s", params.Name))
	}

	content, err := h.executeTool(ctx, tool, params.Arguments, auth)
	instrumentation.AddToolAttributes(trace.SpanFromContext(ctx), params.Name, err != nil)

	if h.Auditor != nil {
		h.Auditor.LogToolInvoked(auth.Subject, auth.ClientID, params.Name, err != nil)
	}
	if m := h.metrics(); m != nil {
		m.RecordToolCall(ctx, params.Name, err != nil)
	}

	if err != nil {
		// Tool failures are domain results, not protocol errors
		h.logger.Warn("Tool execution failed", "tool", params.Name, "error", err)
		return NewResult(req.ID, &ToolsCallResult{
			Content: []Content{TextContent(err.Error())},
			IsError: true,
		})
	}

	return NewResult(req.ID, &ToolsCallResult{Content: content})
}

// executeTool invokes the tool with panic containment so a misbehaving
// collaborator cannot take down the dispatcher or leak internals
func (h *Handler) executeTool(ctx context.Context, tool Tool, args map[string]any, auth *server.AuthContext) (content []Content, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("Tool panicked", "panic", rec)
			content = nil
			err = fmt.Errorf("tool execution failed")
		}
	}()
	return tool.Execute(ctx, args, auth)
}

// serveTerminate handles DELETE: explicit session termination
func (h *Handler) serveTerminate(w http.ResponseWriter, r *http.Request) {
	auth, err := h.auth.Authenticate(r)
	if err != nil {
		w.Header().Set("WWW-Authenticate", server.FormatWWWAuthenticate(
			h.config.ResourceMetadataURL, "", "invalid_token", "authentication required"))
		h.writeResponse(w, http.StatusUnauthorized, "",
			NewError(nil, CodeUnauthorized, "authentication required"))
		return
	}

	sessionID := r.Header.Get(SessionHeader)
	if sessionID == "" {
		h.writeResponse(w, http.StatusBadRequest, "",
			NewError(nil, CodeInvalidRequest, "Mcp-Session-Id header is required"))
		return
	}

	// The identity binding applies to termination too: only the subject
	// that owns a session may destroy it
	session, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("Session lookup failed", "error", err)
		h.writeResponse(w, http.StatusInternalServerError, "",
			NewError(nil, CodeInternalError, "internal error"))
		return
	}
	if session != nil && session.Subject != auth.Subject {
		h.logger.Warn("Session termination identity mismatch",
			"session_id", sessionID,
			"session_subject", session.Subject,
			"request_subject", auth.Subject)
		h.writeResponse(w, http.StatusForbidden, "",
			NewError(nil, CodeUnauthorized, "session is bound to another identity"))
		return
	}

	if err := h.sessions.Destroy(r.Context(), sessionID); err != nil {
		h.logger.Error("Failed to destroy session", "error", err)
		h.writeResponse(w, http.StatusInternalServerError, "",
			NewError(nil, CodeInternalError, "internal error"))
		return
	}

	h.logger.Info("Session terminated", "session_id", sessionID)
	if h.Auditor != nil {
		h.Auditor.LogSessionTerminated(auth.Subject, sessionID)
	}
	if m := h.metrics(); m != nil {
		m.RecordSessionTerminated(r.Context())
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) logSessionCreated(ctx context.Context, auth *server.AuthContext, sessionID string, recovered bool) {
	if h.Auditor != nil {
		h.Auditor.LogSessionCreated(auth.Subject, auth.ClientID, sessionID, recovered)
	}
	if m := h.metrics(); m != nil {
		m.RecordSessionCreated(ctx, recovered)
	}
}

// writeResponse emits the JSON-RPC envelope. The session header is set
// whenever a session is in play, including on method and tool errors.
func (h *Handler) writeResponse(w http.ResponseWriter, status int, sessionID string, resp *Response) {
	if sessionID != "" {
		w.Header().Set(SessionHeader, sessionID)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}
