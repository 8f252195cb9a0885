package mcp

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/ddellecasedata/sql-mcp/server"
)

// Authenticator resolves an HTTP request to an authenticated identity
type Authenticator interface {
	Authenticate(r *http.Request) (*server.AuthContext, error)
}

// BearerAuthenticator validates Authorization: Bearer headers against
// the OAuth server's token store
type BearerAuthenticator struct {
	srv *server.Server
}

// NewBearerAuthenticator creates the production authenticator
func NewBearerAuthenticator(srv *server.Server) *BearerAuthenticator {
	return &BearerAuthenticator{srv: srv}
}

// Authenticate extracts and validates the bearer token
func (a *BearerAuthenticator) Authenticate(r *http.Request) (*server.AuthContext, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, server.ErrInvalidToken("missing Authorization header")
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return nil, server.ErrInvalidToken("Authorization header must use the Bearer scheme")
	}

	return a.srv.ValidateAccessToken(r.Context(), token)
}

// StaticAuthenticator returns a fixed synthetic identity for every
// request. Debugging only: it removes all authentication. Construction
// logs an error-level message so it cannot be enabled quietly.
type StaticAuthenticator struct {
	auth server.AuthContext
}

// NewStaticAuthenticator creates the debug bypass authenticator
func NewStaticAuthenticator(subject, scope string, logger *slog.Logger) *StaticAuthenticator {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error("AUTHENTICATION DISABLED: all requests use a synthetic identity",
		"subject", subject,
		"action_required", "Never run this configuration in production")
	return &StaticAuthenticator{
		auth: server.AuthContext{
			Subject:  subject,
			ClientID: "debug-bypass",
			Scope:    scope,
		},
	}
}

// Authenticate returns a copy of the fixed identity
func (a *StaticAuthenticator) Authenticate(r *http.Request) (*server.AuthContext, error) {
	auth := a.auth
	return &auth, nil
}
