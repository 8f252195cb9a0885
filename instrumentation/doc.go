// Package instrumentation provides OpenTelemetry (OTEL) instrumentation for sql-mcp.
//
// This package enables observability across all service layers through:
// - Metrics: Counters, histograms, and gauges for OAuth and protocol operations
// - Traces: Distributed tracing for request flows across components
//
// # Quick Start
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:    "sql-mcp",
//		ServiceVersion: "1.0.0",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
// # Available Metrics
//
// HTTP Layer:
//   - http.requests.total{method, endpoint, status}
//   - http.request.duration{endpoint}
//
// OAuth Flows:
//   - oauth.codes.issued{client_id}
//   - oauth.codes.exchanged{client_id, pkce_method}
//   - oauth.tokens.issued{client_id}
//   - oauth.tokens.revoked{client_id}
//   - oauth.clients.registered{client_type}
//   - oauth.auth.failures{reason}
//
// Protocol Sessions:
//   - mcp.sessions.created / mcp.sessions.terminated / mcp.sessions.recovered
//   - mcp.tool.calls{tool, is_error}
//
// Security:
//   - security.rate_limit.exceeded{limiter_type}
//   - security.pkce.validation_failed{method}
//   - security.audit.events.total{event_type}
//
// Storage:
//   - storage.codes.count / storage.tokens.count / storage.sessions.count / storage.clients.count
//
// # Performance
//
// When instrumentation is not configured or disabled, no-op providers are
// used and recording has no measurable overhead.
//
// # Security Considerations
//
// This package collects observability data, not credentials. Never record
// actual token values, authorization codes, client secrets, or PKCE
// verifiers as attributes; only metadata such as token types, expiry times,
// and validation results. Client IP addresses may be PII in some
// jurisdictions; gate them on Config.LogClientIPs.
package instrumentation
