package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common span attribute keys
//
// SECURITY WARNING: Never log actual sensitive values (access tokens,
// authorization codes, client secrets, PKCE verifiers) in traces or metrics.
// Only log metadata such as token types, expiry times, and validation results.
const (
	// OAuth flow attributes - SAFE to use for metadata only
	AttrClientID    = "oauth.client_id"   // Client identifier (non-secret)
	AttrSubject     = "oauth.subject"     // Authenticated subject (non-secret)
	AttrScope       = "oauth.scope"       // Requested scopes
	AttrPKCEMethod  = "oauth.pkce.method" // PKCE method used (S256, plain)
	AttrGrantType   = "oauth.grant_type"  // OAuth grant type
	AttrClientType  = "oauth.client_type" // Client type (public/confidential)
	AttrError       = "oauth.error"       // Error code
	AttrTokenType   = "oauth.token_type"  //nolint:gosec // Token type (bearer) - NOT the actual token
	AttrExpiresIn   = "oauth.expires_in"  // Token expiry duration
	AttrRedirectURI = "oauth.redirect_uri"

	// Protocol session attributes
	AttrSessionID        = "mcp.session_id"
	AttrSessionRecovered = "mcp.session.recovered"
	AttrRPCMethod        = "mcp.rpc.method"
	AttrToolName         = "mcp.tool.name"
	AttrToolIsError      = "mcp.tool.is_error"

	// Storage attributes
	AttrStorageOperation = "storage.operation"
	AttrStorageResult    = "storage.result"

	// Security attributes
	AttrRateLimiterType = "security.rate_limiter.type"
	AttrClientIP        = "security.client_ip"
	AttrAuditEventType  = "security.audit.event_type"

	// HTTP attributes (in addition to standard semantic conventions)
	AttrHTTPEndpoint   = "http.endpoint"
	AttrHTTPMethod     = "http.method"
	AttrHTTPStatusCode = "http.status_code"
)

// RecordError records an error on a span with proper status codes (nil-safe)
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks a span as successful (nil-safe)
func SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// SetSpanError sets an error status on a span (nil-safe)
func SetSpanError(span trace.Span, message string) {
	if span != nil {
		span.SetStatus(codes.Error, message)
	}
}

// SetSpanAttributes sets attributes on a span (nil-safe)
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}

// AddOAuthFlowAttributes adds common OAuth flow attributes to a span (nil-safe)
func AddOAuthFlowAttributes(span trace.Span, clientID, subject, scope string) {
	if clientID != "" {
		SetSpanAttributes(span, attribute.String(AttrClientID, clientID))
	}
	if subject != "" {
		SetSpanAttributes(span, attribute.String(AttrSubject, subject))
	}
	if scope != "" {
		SetSpanAttributes(span, attribute.String(AttrScope, scope))
	}
}

// AddPKCEAttributes adds PKCE-related attributes to a span (nil-safe)
func AddPKCEAttributes(span trace.Span, method string) {
	if method != "" {
		SetSpanAttributes(span, attribute.String(AttrPKCEMethod, method))
	}
}

// AddSessionAttributes adds protocol session attributes to a span (nil-safe)
func AddSessionAttributes(span trace.Span, sessionID string, recovered bool) {
	if sessionID != "" {
		SetSpanAttributes(span,
			attribute.String(AttrSessionID, sessionID),
			attribute.Bool(AttrSessionRecovered, recovered),
		)
	}
}

// AddToolAttributes adds tool invocation attributes to a span (nil-safe)
func AddToolAttributes(span trace.Span, tool string, isError bool) {
	if tool != "" {
		SetSpanAttributes(span,
			attribute.String(AttrToolName, tool),
			attribute.Bool(AttrToolIsError, isError),
		)
	}
}

// AddHTTPAttributes adds HTTP request attributes to a span (nil-safe)
func AddHTTPAttributes(span trace.Span, method, endpoint string, statusCode int) {
	SetSpanAttributes(span,
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPEndpoint, endpoint),
		attribute.Int(AttrHTTPStatusCode, statusCode),
	)
}

// AddSecurityAttributes adds security-related attributes to a span (nil-safe)
//
// PRIVACY NOTE: Client IP addresses may be PII. Check
// instrumentation.ShouldLogClientIPs() before calling this function.
func AddSecurityAttributes(span trace.Span, clientIP string) {
	if clientIP != "" {
		SetSpanAttributes(span, attribute.String(AttrClientIP, clientIP))
	}
}
