package server

import (
	"log/slog"

	"github.com/ddellecasedata/sql-mcp/internal/util"
)

// Config holds OAuth server configuration
type Config struct {
	// Issuer is the server's issuer identifier (base URL)
	Issuer string

	// AuthorizationCodeTTL is how long authorization codes are valid
	AuthorizationCodeTTL int64 // seconds, default: 600 (10 minutes)

	// AccessTokenTTL is how long access tokens are valid
	AccessTokenTTL int64 // seconds, default: 2592000 (30 days)

	// DefaultSubject is the identity bound to approved authorization
	// requests. This server issues its own credentials for a single
	// resource owner; multi-user federation is out of scope.
	DefaultSubject string // default: "demo-user"

	// DefaultScope is granted when a request carries no scope parameter
	DefaultScope string // default: "inventory"

	// SupportedScopes lists the scopes that are allowed for clients.
	// If empty, all scopes are allowed.
	SupportedScopes []string

	// DisablePKCEPlain rejects the 'plain' code_challenge_method.
	// The 'plain' method is deprecated in OAuth 2.1; S256 is preferred.
	// Default: false (both methods accepted, matching deployed clients)
	DisablePKCEPlain bool

	// RequirePKCE makes the code_challenge parameter mandatory on
	// authorization requests. When false, codes issued without a
	// challenge skip PKCE verification at exchange time.
	// Default: false
	RequirePKCE bool

	// RequireClientRegistration rejects authorization requests whose
	// client_id was never registered. When false, unknown clients are
	// accepted with structural redirect URI checks only.
	// Default: false (matching clients that skip /register)
	RequireClientRegistration bool

	// AllowInsecureHTTP permits a non-localhost http:// issuer.
	// Only for development; production must use HTTPS.
	AllowInsecureHTTP bool

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers.
	// WARNING: Only enable if behind a trusted reverse proxy.
	// Default: false
	TrustProxy bool

	// TrustedProxyCount is the number of trusted proxies in front of
	// this server, used with TrustProxy to extract the client IP.
	// Default: 1
	TrustedProxyCount int

	// MaxClientsPerIP limits client registrations per IP address.
	// Prevents DoS via mass client registration.
	// Default: 10
	MaxClientsPerIP int
}

// Default configuration values
const (
	DefaultAuthorizationCodeTTL = 600     // 10 minutes
	DefaultAccessTokenTTL       = 2592000 // 30 days
	DefaultMaxClientsPerIP      = 10
)

// AuthorizationEndpoint returns the absolute authorization endpoint URL.
func (c *Config) AuthorizationEndpoint() string {
	return util.NormalizeURL(c.Issuer) + "/authorize"
}

// TokenEndpoint returns the absolute token endpoint URL.
func (c *Config) TokenEndpoint() string {
	return util.NormalizeURL(c.Issuer) + "/token"
}

// RegistrationEndpoint returns the absolute client registration endpoint URL.
func (c *Config) RegistrationEndpoint() string {
	return util.NormalizeURL(c.Issuer) + "/register"
}

// RevocationEndpoint returns the absolute token revocation endpoint URL.
func (c *Config) RevocationEndpoint() string {
	return util.NormalizeURL(c.Issuer) + "/revoke"
}

// ProtectedResourceMetadataEndpoint returns the RFC 9728 metadata URL.
func (c *Config) ProtectedResourceMetadataEndpoint() string {
	return util.NormalizeURL(c.Issuer) + "/.well-known/oauth-protected-resource"
}

// AuthorizationServerMetadataEndpoint returns the RFC 8414 metadata URL.
func (c *Config) AuthorizationServerMetadataEndpoint() string {
	return util.NormalizeURL(c.Issuer) + "/.well-known/oauth-authorization-server"
}

// CodeChallengeMethodsSupported lists the PKCE methods this server accepts.
func (c *Config) CodeChallengeMethodsSupported() []string {
	if c.DisablePKCEPlain {
		return []string{PKCEMethodS256}
	}
	return []string{PKCEMethodS256, PKCEMethodPlain}
}

// applyDefaults fills in zero-valued configuration and logs warnings for
// settings that weaken security.
func applyDefaults(config *Config, logger *slog.Logger) *Config {
	if config.AuthorizationCodeTTL == 0 {
		config.AuthorizationCodeTTL = DefaultAuthorizationCodeTTL
	}
	if config.AccessTokenTTL == 0 {
		config.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if config.DefaultSubject == "" {
		config.DefaultSubject = "demo-user"
	}
	if config.DefaultScope == "" {
		config.DefaultScope = "inventory"
	}
	if len(config.SupportedScopes) == 0 {
		config.SupportedScopes = []string{"inventory", "search", "fetch"}
	}
	if config.TrustedProxyCount == 0 {
		config.TrustedProxyCount = 1
	}
	if config.MaxClientsPerIP == 0 {
		config.MaxClientsPerIP = DefaultMaxClientsPerIP
	}

	if !config.DisablePKCEPlain {
		logger.Warn("Plain PKCE method is allowed",
			"risk", "Weak code challenge protection",
			"recommendation", "Set DisablePKCEPlain=true to require S256")
	}
	if !config.RequirePKCE {
		logger.Warn("PKCE is optional for authorization requests",
			"risk", "Authorization code interception for clients that skip PKCE",
			"recommendation", "Set RequirePKCE=true for OAuth 2.1 compliance")
	}
	if !config.RequireClientRegistration {
		logger.Warn("Unregistered clients may request authorization",
			"risk", "Any client_id is accepted at the authorization endpoint",
			"recommendation", "Set RequireClientRegistration=true to require /register first")
	}
	if config.TrustProxy {
		logger.Warn("Trusting proxy headers",
			"risk", "IP spoofing if proxy is not properly configured",
			"config", "TrustedProxyCount should match your proxy chain length")
	}

	return config
}
