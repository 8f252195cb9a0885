package server

import (
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/ddellecasedata/sql-mcp/instrumentation"
	"github.com/ddellecasedata/sql-mcp/security"
	"github.com/ddellecasedata/sql-mcp/storage"
)

// Server implements the OAuth 2.1 authorization server logic. It issues
// its own authorization codes and opaque bearer tokens and coordinates
// the flow using the storage backends.
type Server struct {
	codeStore   storage.CodeStore
	tokenStore  storage.TokenStore
	clientStore storage.ClientStore

	Consent     ConsentProvider
	Auditor     *security.Auditor
	RateLimiter *security.RateLimiter // IP-based rate limiter
	Logger      *slog.Logger
	Config      *Config

	instrumentation *instrumentation.Instrumentation
}

// New creates a new OAuth server
func New(
	codeStore storage.CodeStore,
	tokenStore storage.TokenStore,
	clientStore storage.ClientStore,
	config *Config,
	logger *slog.Logger,
) (*Server, error) {
	if codeStore == nil {
		return nil, fmt.Errorf("code store is required")
	}
	if tokenStore == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if clientStore == nil {
		return nil, fmt.Errorf("client store is required")
	}
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	config = applyDefaults(config, logger)

	srv := &Server{
		codeStore:   codeStore,
		tokenStore:  tokenStore,
		clientStore: clientStore,
		Consent:     AutoApproveConsent{},
		Config:      config,
		Logger:      logger,
	}

	// OAuth 2.1 requires HTTPS for all endpoints except localhost
	if err := srv.validateHTTPSEnforcement(); err != nil {
		return nil, err
	}

	return srv, nil
}

// SetAuditor sets the security auditor
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.Auditor = aud
}

// SetRateLimiter sets the IP-based rate limiter
func (s *Server) SetRateLimiter(rl *security.RateLimiter) {
	s.RateLimiter = rl
}

// SetConsentProvider overrides the default auto-approve consent policy
func (s *Server) SetConsentProvider(cp ConsentProvider) {
	if cp != nil {
		s.Consent = cp
	}
}

// SetInstrumentation wires observability into the server
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.instrumentation = inst
}

// metrics returns the metrics holder, or nil when instrumentation is unset
func (s *Server) metrics() *instrumentation.Metrics {
	if s.instrumentation == nil {
		return nil
	}
	return s.instrumentation.Metrics()
}

// generateRandomToken generates a cryptographically secure random token.
// This is an alias for oauth2.GenerateVerifier() which produces a URL-safe,
// base64-encoded random string suitable for codes, tokens, and secrets.
func generateRandomToken() string {
	return oauth2.GenerateVerifier()
}
