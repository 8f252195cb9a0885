package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ddellecasedata/sql-mcp/internal/util"
	"github.com/ddellecasedata/sql-mcp/storage"
)

const (
	// tokenPrefixLogLength is the number of token characters shown in logs
	tokenPrefixLogLength = 8

	// GrantTypeAuthorizationCode is the only grant this server supports
	GrantTypeAuthorizationCode = "authorization_code"

	// TokenTypeBearer is the token_type value in token responses
	TokenTypeBearer = "bearer"
)

// AuthorizationRequest holds the parameters of a GET /authorize request
type AuthorizationRequest struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	ClientIP            string
}

// TokenRequest holds the parameters of a POST /token request
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	ClientID     string
	CodeVerifier string
	ClientIP     string
}

// TokenResponse is the success payload of the token endpoint
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

// AuthContext is the authenticated identity derived from a bearer token
type AuthContext struct {
	Subject  string
	ClientID string
	Scope    string
}

// Scopes returns the granted scopes as a slice
func (a *AuthContext) Scopes() []string {
	return strings.Fields(a.Scope)
}

// HasScope reports whether the given scope was granted
func (a *AuthContext) HasScope(scope string) bool {
	for _, s := range a.Scopes() {
		if s == scope {
			return true
		}
	}
	return false
}

// IssueAuthorizationCode validates an authorization request, obtains
// consent, and issues a single-use authorization code bound to the
// client, redirect URI, and PKCE challenge.
//
// Failures for client identity or redirect URI return an *OAuthError
// that must be rendered to the user agent directly; redirecting to an
// unvalidated URI would create an open redirector.
func (s *Server) IssueAuthorizationCode(ctx context.Context, req *AuthorizationRequest) (*storage.AuthorizationCode, error) {
	if req.ClientID == "" {
		return nil, ErrInvalidRequest("client_id is required")
	}
	if req.RedirectURI == "" {
		return nil, ErrInvalidRequest("redirect_uri is required")
	}

	client, err := s.clientStore.GetClient(ctx, req.ClientID)
	switch {
	case err == nil:
		if err := s.validateRedirectURI(client, req.RedirectURI); err != nil {
			s.Logger.Warn("Authorization request with invalid redirect URI",
				"client_id", req.ClientID, "error", err)
			return nil, ErrInvalidRedirectURI(err.Error())
		}
	case errors.Is(err, storage.ErrClientNotFound) && !s.Config.RequireClientRegistration:
		// Registration is an optional convenience. Unknown clients get
		// structural redirect URI checks only; there is no registered
		// URI list to match against.
		if err := validateRedirectURISecurity(req.RedirectURI, s.Config.Issuer); err != nil {
			s.Logger.Warn("Authorization request with invalid redirect URI",
				"client_id", req.ClientID, "error", err)
			return nil, ErrInvalidRedirectURI(err.Error())
		}
		client = &storage.Client{ClientID: req.ClientID, ClientType: ClientTypePublic}
		s.Logger.Debug("Authorization request from unregistered client",
			"client_id", req.ClientID)
	default:
		s.Logger.Warn("Authorization request for unknown client",
			"client_id", req.ClientID, "error", err)
		return nil, ErrInvalidClient("unknown client")
	}

	// From here on the redirect URI has been validated against the
	// registration, so errors are safe to deliver via redirect.

	if req.ResponseType != "code" {
		return nil, ErrInvalidRequest(fmt.Sprintf("unsupported response_type: %s", req.ResponseType))
	}

	if err := s.validateChallengeMethod(req.CodeChallenge, req.CodeChallengeMethod); err != nil {
		return nil, ErrInvalidRequest(err.Error())
	}

	scope := s.resolveScope(req.Scope)
	if err := s.validateScopes(scope); err != nil {
		return nil, ErrInvalidScope(err.Error())
	}

	subject := s.Config.DefaultSubject

	if err := s.Consent.Approve(ctx, &ConsentRequest{
		Subject:     subject,
		ClientID:    client.ClientID,
		ClientName:  client.ClientName,
		RedirectURI: req.RedirectURI,
		Scope:       scope,
	}); err != nil {
		if errors.Is(err, ErrConsentDenied) {
			if s.Auditor != nil {
				s.Auditor.LogConsentDenied(subject, client.ClientID, req.ClientIP)
			}
			return nil, ErrAccessDenied("the resource owner denied the request")
		}
		s.Logger.Error("Consent provider failed", "error", err)
		return nil, ErrServerError("consent check failed")
	}

	// Omitted challenge method defaults to S256
	method := req.CodeChallengeMethod
	if req.CodeChallenge != "" && method == "" {
		method = PKCEMethodS256
	}

	now := time.Now()
	code := &storage.AuthorizationCode{
		Code:                generateRandomToken(),
		ClientID:            client.ClientID,
		RedirectURI:         req.RedirectURI,
		Scope:               scope,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: method,
		Subject:             subject,
		CreatedAt:           now,
		ExpiresAt:           now.Add(time.Duration(s.Config.AuthorizationCodeTTL) * time.Second),
	}

	if err := s.codeStore.SaveAuthorizationCode(ctx, code); err != nil {
		s.Logger.Error("Failed to save authorization code", "error", err)
		return nil, ErrServerError("failed to issue authorization code")
	}

	s.Logger.Info("Authorization code issued",
		"client_id", client.ClientID,
		"scope", scope,
		"pkce", req.CodeChallenge != "",
		"code_prefix", util.SafeTruncate(code.Code, tokenPrefixLogLength))

	if s.Auditor != nil {
		s.Auditor.LogCodeIssued(subject, client.ClientID, req.ClientIP, scope)
	}
	if m := s.metrics(); m != nil {
		m.RecordCodeIssued(ctx, client.ClientID)
	}

	return code, nil
}

// ExchangeAuthorizationCode redeems an authorization code for an opaque
// access token. The code is consumed atomically before any further
// validation, so a failed exchange still burns it.
//
// Client-facing failures collapse to generic OAuth errors; the specific
// reason is only logged server-side.
func (s *Server) ExchangeAuthorizationCode(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	if req.GrantType != GrantTypeAuthorizationCode {
		return nil, ErrUnsupportedGrantType(fmt.Sprintf("unsupported grant_type: %s", req.GrantType))
	}
	if req.Code == "" {
		return nil, ErrInvalidRequest("code is required")
	}
	if req.ClientID == "" {
		return nil, ErrInvalidRequest("client_id is required")
	}
	if req.RedirectURI == "" {
		return nil, ErrInvalidRequest("redirect_uri is required")
	}

	code, err := s.codeStore.ConsumeAuthorizationCode(ctx, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrCodeExpired):
			s.Logger.Warn("Token exchange with expired code",
				"client_id", req.ClientID,
				"code_prefix", util.SafeTruncate(req.Code, tokenPrefixLogLength))
		case errors.Is(err, storage.ErrCodeNotFound):
			s.Logger.Warn("Token exchange with unknown or already used code",
				"client_id", req.ClientID,
				"code_prefix", util.SafeTruncate(req.Code, tokenPrefixLogLength))
		default:
			s.Logger.Error("Failed to consume authorization code", "error", err)
			return nil, ErrServerError("token exchange failed")
		}
		// Generic error: do not reveal whether the code ever existed
		return nil, ErrInvalidGrant("invalid or expired authorization code")
	}

	if code.ClientID != req.ClientID {
		s.Logger.Warn("Token exchange client mismatch",
			"code_client_id", code.ClientID,
			"request_client_id", req.ClientID)
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure(code.Subject, req.ClientID, req.ClientIP, "client_mismatch")
		}
		return nil, ErrInvalidGrant("invalid or expired authorization code")
	}

	if code.RedirectURI != req.RedirectURI {
		s.Logger.Warn("Token exchange redirect URI mismatch",
			"client_id", req.ClientID)
		return nil, ErrInvalidGrant("invalid or expired authorization code")
	}

	// A missing verifier is a malformed request, not a bad grant, and
	// the distinction must survive to the client
	if code.CodeChallenge != "" && req.CodeVerifier == "" {
		s.Logger.Warn("Token exchange missing code_verifier",
			"client_id", req.ClientID,
			"method", code.CodeChallengeMethod)
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure(code.Subject, req.ClientID, req.ClientIP, "missing_verifier")
		}
		if m := s.metrics(); m != nil {
			m.RecordPKCEValidationFailed(ctx, code.CodeChallengeMethod)
		}
		return nil, ErrInvalidRequest("code_verifier is required")
	}

	if err := s.validatePKCE(code.CodeChallenge, code.CodeChallengeMethod, req.CodeVerifier); err != nil {
		s.Logger.Warn("PKCE validation failed",
			"client_id", req.ClientID,
			"method", code.CodeChallengeMethod,
			"error", err)
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure(code.Subject, req.ClientID, req.ClientIP, "pkce_failed")
		}
		if m := s.metrics(); m != nil {
			m.RecordPKCEValidationFailed(ctx, code.CodeChallengeMethod)
		}
		return nil, ErrInvalidGrant("invalid or expired authorization code")
	}

	now := time.Now()
	token := &storage.AccessToken{
		Token:     generateRandomToken(),
		Subject:   code.Subject,
		ClientID:  code.ClientID,
		Scope:     code.Scope,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Duration(s.Config.AccessTokenTTL) * time.Second),
	}

	if err := s.tokenStore.SaveAccessToken(ctx, token); err != nil {
		s.Logger.Error("Failed to save access token", "error", err)
		return nil, ErrServerError("token exchange failed")
	}

	s.Logger.Info("Access token issued",
		"client_id", code.ClientID,
		"scope", code.Scope,
		"expires_in", s.Config.AccessTokenTTL,
		"token_prefix", util.SafeTruncate(token.Token, tokenPrefixLogLength))

	if s.Auditor != nil {
		s.Auditor.LogTokenIssued(code.Subject, code.ClientID, req.ClientIP, code.Scope)
	}
	if m := s.metrics(); m != nil {
		m.RecordCodeExchange(ctx, code.ClientID, code.CodeChallengeMethod)
		m.RecordTokenIssued(ctx, code.ClientID)
	}

	return &TokenResponse{
		AccessToken: token.Token,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   s.Config.AccessTokenTTL,
		Scope:       token.Scope,
	}, nil
}

// ValidateAccessToken resolves an opaque bearer token to the identity it
// was issued to. Unknown and expired tokens produce the same
// caller-facing error.
func (s *Server) ValidateAccessToken(ctx context.Context, token string) (*AuthContext, error) {
	if token == "" {
		return nil, ErrInvalidToken("missing access token")
	}

	stored, err := s.tokenStore.GetAccessToken(ctx, token)
	if err != nil {
		reason := "not_found"
		if errors.Is(err, storage.ErrTokenExpired) {
			reason = "expired"
		} else if !errors.Is(err, storage.ErrTokenNotFound) {
			s.Logger.Error("Token lookup failed", "error", err)
			return nil, ErrServerError("token validation failed")
		}

		s.Logger.Debug("Bearer token rejected",
			"reason", reason,
			"token_prefix", util.SafeTruncate(token, tokenPrefixLogLength))
		if m := s.metrics(); m != nil {
			m.RecordAuthFailure(ctx, reason)
		}
		return nil, ErrInvalidToken("invalid or expired access token")
	}

	return &AuthContext{
		Subject:  stored.Subject,
		ClientID: stored.ClientID,
		Scope:    stored.Scope,
	}, nil
}

// RevokeAccessToken removes a token. Revoking an unknown token is not an
// error per RFC 7009.
func (s *Server) RevokeAccessToken(ctx context.Context, token, clientIP string) error {
	if token == "" {
		return ErrInvalidRequest("token is required")
	}

	stored, err := s.tokenStore.GetAccessToken(ctx, token)
	if err != nil {
		// Already gone or expired; revocation is idempotent
		return nil
	}

	if err := s.tokenStore.DeleteAccessToken(ctx, token); err != nil {
		s.Logger.Error("Failed to delete access token", "error", err)
		return ErrServerError("revocation failed")
	}

	s.Logger.Info("Access token revoked",
		"client_id", stored.ClientID,
		"token_prefix", util.SafeTruncate(token, tokenPrefixLogLength))

	if s.Auditor != nil {
		s.Auditor.LogTokenRevoked(stored.Subject, stored.ClientID, clientIP)
	}
	if m := s.metrics(); m != nil {
		m.RecordTokenRevocation(ctx, stored.ClientID)
	}

	return nil
}
