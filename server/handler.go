package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ddellecasedata/sql-mcp/instrumentation"
	"github.com/ddellecasedata/sql-mcp/security"
)

// Handler exposes the OAuth server over HTTP. It owns endpoint routing,
// request parsing, and the JSON and redirect error conventions; all
// protocol decisions live on Server.
type Handler struct {
	srv *Server
}

// NewHandler creates an HTTP handler for the given server
func NewHandler(srv *Server) *Handler {
	return &Handler{srv: srv}
}

// RegisterRoutes registers all OAuth endpoints on the mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/authorize", h.ServeAuthorization)
	mux.HandleFunc("/token", h.ServeToken)
	mux.HandleFunc("/register", h.ServeClientRegistration)
	mux.HandleFunc("/revoke", h.ServeRevocation)
	mux.HandleFunc("/.well-known/oauth-protected-resource", h.ServeProtectedResourceMetadata)
	mux.HandleFunc("/.well-known/oauth-authorization-server", h.ServeAuthorizationServerMetadata)
}

// clientIP extracts the caller's IP honoring the proxy configuration
func (h *Handler) clientIP(r *http.Request) string {
	return security.GetClientIP(r, h.srv.Config.TrustProxy, h.srv.Config.TrustedProxyCount)
}

// startSpan starts an HTTP-layer span when instrumentation is wired.
// The returned span is nil otherwise; the instrumentation helpers are
// nil-safe so callers do not need to branch.
func (h *Handler) startSpan(r *http.Request, name string) (*http.Request, trace.Span) {
	if h.srv.instrumentation == nil {
		return r, nil
	}
	ctx, span := h.srv.instrumentation.Tracer("http").Start(r.Context(), name)
	return r.WithContext(ctx), span
}

func endSpan(span trace.Span) {
	if span != nil {
		span.End()
	}
}

// ServeAuthorization handles GET /authorize.
//
// Errors before the redirect URI is validated are rendered directly to
// the user agent; everything after is delivered via redirect with the
// client's state echoed back.
func (h *Handler) ServeAuthorization(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	r, span := h.startSpan(r, "oauth.http.authorization")
	defer endSpan(span)

	if r.Method != http.MethodGet {
		h.writeError(w, r, ErrInvalidRequest("method not allowed"), http.StatusMethodNotAllowed)
		h.recordHTTP(r, "/authorize", http.StatusMethodNotAllowed, start)
		return
	}

	q := r.URL.Query()
	req := &AuthorizationRequest{
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		ResponseType:        q.Get("response_type"),
		Scope:               q.Get("scope"),
		State:               q.Get("state"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
		ClientIP:            h.clientIP(r),
	}

	instrumentation.AddOAuthFlowAttributes(span, req.ClientID, "", req.Scope)
	instrumentation.AddPKCEAttributes(span, req.CodeChallengeMethod)
	if h.srv.instrumentation != nil && h.srv.instrumentation.ShouldLogClientIPs() {
		instrumentation.AddSecurityAttributes(span, req.ClientIP)
	}

	code, err := h.srv.IssueAuthorizationCode(r.Context(), req)
	if err != nil {
		oauthErr := asOAuthError(err)
		instrumentation.SetSpanError(span, oauthErr.Code)

		// Never redirect when the client or redirect URI could not be
		// validated; doing so would create an open redirector.
		switch oauthErr.Code {
		case ErrorCodeInvalidClient, ErrorCodeInvalidRedirectURI:
			h.writeError(w, r, oauthErr, 0)
			h.recordHTTP(r, "/authorize", oauthErr.Status, start)
			return
		}
		if req.ClientID == "" || req.RedirectURI == "" {
			h.writeError(w, r, oauthErr, 0)
			h.recordHTTP(r, "/authorize", oauthErr.Status, start)
			return
		}

		h.redirectError(w, r, req.RedirectURI, oauthErr, req.State)
		h.recordHTTP(r, "/authorize", http.StatusFound, start)
		return
	}

	redirect, _ := url.Parse(req.RedirectURI)
	values := redirect.Query()
	values.Set("code", code.Code)
	if req.State != "" {
		values.Set("state", req.State)
	}
	redirect.RawQuery = values.Encode()

	instrumentation.SetSpanSuccess(span)
	security.SetSecurityHeaders(w, h.srv.Config.Issuer)
	http.Redirect(w, r, redirect.String(), http.StatusFound)
	h.recordHTTP(r, "/authorize", http.StatusFound, start)
}

// ServeToken handles POST /token
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	r, span := h.startSpan(r, "oauth.http.token")
	defer endSpan(span)

	if r.Method != http.MethodPost {
		h.writeError(w, r, ErrInvalidRequest("method not allowed"), http.StatusMethodNotAllowed)
		h.recordHTTP(r, "/token", http.StatusMethodNotAllowed, start)
		return
	}

	ip := h.clientIP(r)
	if !h.allowRequest(r, ip, "token") {
		h.writeError(w, r,
			NewOAuthError(ErrorCodeRateLimitExceeded, "too many requests", http.StatusTooManyRequests), 0)
		h.recordHTTP(r, "/token", http.StatusTooManyRequests, start)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.writeError(w, r, ErrInvalidRequest("malformed form body"), 0)
		h.recordHTTP(r, "/token", http.StatusBadRequest, start)
		return
	}

	req := &TokenRequest{
		GrantType:    r.PostFormValue("grant_type"),
		Code:         r.PostFormValue("code"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		ClientID:     r.PostFormValue("client_id"),
		CodeVerifier: r.PostFormValue("code_verifier"),
		ClientIP:     ip,
	}

	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrGrantType, req.GrantType))
	instrumentation.AddOAuthFlowAttributes(span, req.ClientID, "", "")

	resp, err := h.srv.ExchangeAuthorizationCode(r.Context(), req)
	if err != nil {
		oauthErr := asOAuthError(err)
		instrumentation.SetSpanError(span, oauthErr.Code)
		h.writeError(w, r, oauthErr, 0)
		h.recordHTTP(r, "/token", oauthErr.Status, start)
		return
	}
	instrumentation.SetSpanSuccess(span)

	// RFC 6749 5.1: token responses must not be cached
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	h.writeJSON(w, http.StatusOK, resp)
	h.recordHTTP(r, "/token", http.StatusOK, start)
}

// ServeClientRegistration handles POST /register (RFC 7591)
func (h *Handler) ServeClientRegistration(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodPost {
		h.writeError(w, r, ErrInvalidRequest("method not allowed"), http.StatusMethodNotAllowed)
		h.recordHTTP(r, "/register", http.StatusMethodNotAllowed, start)
		return
	}

	ip := h.clientIP(r)
	if !h.allowRequest(r, ip, "register") {
		h.writeError(w, r,
			NewOAuthError(ErrorCodeRateLimitExceeded, "too many requests", http.StatusTooManyRequests), 0)
		h.recordHTTP(r, "/register", http.StatusTooManyRequests, start)
		return
	}

	var req ClientRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, ErrInvalidRequest("malformed JSON body"), 0)
		h.recordHTTP(r, "/register", http.StatusBadRequest, start)
		return
	}

	info, err := h.srv.RegisterClient(r.Context(), &req, ip)
	if err != nil {
		oauthErr := asOAuthError(err)
		h.writeError(w, r, oauthErr, 0)
		h.recordHTTP(r, "/register", oauthErr.Status, start)
		return
	}

	h.writeJSON(w, http.StatusCreated, info)
	h.recordHTTP(r, "/register", http.StatusCreated, start)
}

// ServeRevocation handles POST /revoke (RFC 7009)
func (h *Handler) ServeRevocation(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodPost {
		h.writeError(w, r, ErrInvalidRequest("method not allowed"), http.StatusMethodNotAllowed)
		h.recordHTTP(r, "/revoke", http.StatusMethodNotAllowed, start)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.writeError(w, r, ErrInvalidRequest("malformed form body"), 0)
		h.recordHTTP(r, "/revoke", http.StatusBadRequest, start)
		return
	}

	if err := h.srv.RevokeAccessToken(r.Context(), r.PostFormValue("token"), h.clientIP(r)); err != nil {
		oauthErr := asOAuthError(err)
		h.writeError(w, r, oauthErr, 0)
		h.recordHTTP(r, "/revoke", oauthErr.Status, start)
		return
	}

	security.SetSecurityHeaders(w, h.srv.Config.Issuer)
	w.WriteHeader(http.StatusOK)
	h.recordHTTP(r, "/revoke", http.StatusOK, start)
}

// ServeProtectedResourceMetadata handles the RFC 9728 discovery document
func (h *Handler) ServeProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	cfg := h.srv.Config
	h.writeJSON(w, http.StatusOK, map[string]any{
		"resource": cfg.Issuer,
		"authorization_servers": []map[string]string{
			{
				"issuer":                 cfg.Issuer,
				"authorization_endpoint": cfg.AuthorizationEndpoint(),
			},
		},
		"scopes_supported": cfg.SupportedScopes,
		"bearer_methods_supported": []string{
			"header",
		},
	})
	h.recordHTTP(r, "/.well-known/oauth-protected-resource", http.StatusOK, start)
}

// ServeAuthorizationServerMetadata handles the RFC 8414 discovery document
func (h *Handler) ServeAuthorizationServerMetadata(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	cfg := h.srv.Config
	h.writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                cfg.Issuer,
		"authorization_endpoint":                cfg.AuthorizationEndpoint(),
		"token_endpoint":                        cfg.TokenEndpoint(),
		"registration_endpoint":                 cfg.RegistrationEndpoint(),
		"revocation_endpoint":                   cfg.RevocationEndpoint(),
		"response_types_supported":              []string{"code"},
		"grant_types_supported":                 []string{GrantTypeAuthorizationCode},
		"code_challenge_methods_supported":      cfg.CodeChallengeMethodsSupported(),
		"token_endpoint_auth_methods_supported": []string{TokenEndpointAuthMethodNone, TokenEndpointAuthMethodBasic, TokenEndpointAuthMethodPost},
		"scopes_supported":                      cfg.SupportedScopes,
	})
	h.recordHTTP(r, "/.well-known/oauth-authorization-server", http.StatusOK, start)
}

// allowRequest applies the IP rate limiter when one is configured
func (h *Handler) allowRequest(r *http.Request, ip, limiterType string) bool {
	if h.srv.RateLimiter == nil {
		return true
	}
	if h.srv.RateLimiter.Allow(ip) {
		return true
	}
	h.srv.Logger.Warn("Rate limit exceeded", "ip", ip, "endpoint", limiterType)
	if h.srv.Auditor != nil {
		h.srv.Auditor.LogRateLimitExceeded(ip, "")
	}
	if m := h.srv.metrics(); m != nil {
		m.RecordRateLimitExceeded(r.Context(), limiterType)
	}
	return false
}

// redirectError delivers an OAuth error to the client via redirect,
// echoing the state parameter per RFC 6749 4.1.2.1
func (h *Handler) redirectError(w http.ResponseWriter, r *http.Request, redirectURI string, oauthErr *OAuthError, state string) {
	redirect, err := url.Parse(redirectURI)
	if err != nil {
		h.writeError(w, r, ErrInvalidRedirectURI("malformed redirect_uri"), 0)
		return
	}

	values := redirect.Query()
	values.Set("error", oauthErr.Code)
	if oauthErr.Description != "" {
		values.Set("error_description", oauthErr.Description)
	}
	if state != "" {
		values.Set("state", state)
	}
	redirect.RawQuery = values.Encode()

	security.SetSecurityHeaders(w, h.srv.Config.Issuer)
	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

// writeError writes an OAuth error as JSON. statusOverride replaces the
// error's own status when non-zero.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, oauthErr *OAuthError, statusOverride int) {
	status := oauthErr.Status
	if statusOverride != 0 {
		status = statusOverride
	}

	security.SetSecurityHeaders(w, h.srv.Config.Issuer)
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", FormatWWWAuthenticate(
			h.srv.Config.ProtectedResourceMetadataEndpoint(), "", oauthErr.Code, oauthErr.Description))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"error":             oauthErr.Code,
		"error_description": oauthErr.Description,
	}); err != nil {
		h.srv.Logger.Error("Failed to encode error response", "error", err)
	}
}

// writeJSON writes a JSON response with security headers
func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	security.SetSecurityHeaders(w, h.srv.Config.Issuer)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.srv.Logger.Error("Failed to encode response", "error", err)
	}
}

// recordHTTP records request metrics when instrumentation is wired
func (h *Handler) recordHTTP(r *http.Request, endpoint string, status int, start time.Time) {
	if m := h.srv.metrics(); m != nil {
		m.RecordHTTPRequest(r.Context(), r.Method, endpoint, status, float64(time.Since(start).Milliseconds()))
	}
}

// FormatWWWAuthenticate builds a WWW-Authenticate challenge for 401
// responses. The resource_metadata parameter (RFC 9728) comes first so
// clients can discover the authorization server.
func FormatWWWAuthenticate(resourceMetadataURL, scope, errorCode, errorDescription string) string {
	params := []string{
		fmt.Sprintf(`resource_metadata="%s"`, escapeQuotes(resourceMetadataURL)),
	}
	if scope != "" {
		params = append(params, fmt.Sprintf(`scope="%s"`, escapeQuotes(scope)))
	}
	if errorCode != "" {
		params = append(params, fmt.Sprintf(`error="%s"`, escapeQuotes(errorCode)))
	}
	if errorDescription != "" {
		params = append(params, fmt.Sprintf(`error_description="%s"`, escapeQuotes(errorDescription)))
	}
	return "Bearer " + strings.Join(params, ", ")
}

// escapeQuotes escapes backslashes and double quotes for use inside a
// quoted-string header parameter
func escapeQuotes(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

// asOAuthError normalizes any error to an *OAuthError
func asOAuthError(err error) *OAuthError {
	var oauthErr *OAuthError
	if errors.As(err, &oauthErr) {
		return oauthErr
	}
	return ErrServerError("internal error")
}
