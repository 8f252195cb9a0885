package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/ddellecasedata/sql-mcp/storage"
)

// PKCE validation constants (RFC 7636)
const (
	MinCodeVerifierLength = 43
	MaxCodeVerifierLength = 128
	PKCEMethodS256        = "S256"
	PKCEMethodPlain       = "plain"
)

// validateHTTPSEnforcement ensures the server runs over HTTPS outside of
// localhost development. OAuth over plain HTTP exposes codes and tokens
// to interception.
func (s *Server) validateHTTPSEnforcement() error {
	// Empty Issuer fails elsewhere with a more appropriate error
	if s.Config.Issuer == "" {
		return nil
	}

	issuerURL, err := url.Parse(s.Config.Issuer)
	if err != nil {
		return fmt.Errorf("invalid issuer URL: %w", err)
	}

	switch issuerURL.Scheme {
	case "https":
		return nil
	case "http":
		hostname := issuerURL.Hostname()

		if isLocalhostHostname(hostname) {
			s.Logger.Warn("Running OAuth over HTTP on localhost",
				"issuer", s.Config.Issuer,
				"recommendation", "Use HTTPS for production-like testing")
			return nil
		}

		if !s.Config.AllowInsecureHTTP {
			return fmt.Errorf(
				"issuer must use HTTPS in production (got http://%s); "+
					"set AllowInsecureHTTP=true only for development", hostname)
		}

		s.Logger.Error("Running OAuth server over HTTP on a non-localhost host",
			"issuer", s.Config.Issuer,
			"risk", "Tokens and credentials exposed to network interception",
			"action_required", "Switch to HTTPS")
		return nil
	default:
		return fmt.Errorf("invalid issuer URL scheme: %s (must be http or https)", issuerURL.Scheme)
	}
}

// isLocalhostHostname checks if a hostname refers to the local machine.
// Covers the localhost name, 0.0.0.0, the full 127.0.0.0/8 range, and
// the IPv6 loopback.
func isLocalhostHostname(hostname string) bool {
	if hostname == "localhost" || hostname == "0.0.0.0" {
		return true
	}

	// url.Hostname() may keep brackets on IPv6 literals
	clean := hostname
	if len(hostname) > 2 && hostname[0] == '[' && hostname[len(hostname)-1] == ']' {
		clean = hostname[1 : len(hostname)-1]
	}

	if ip := net.ParseIP(clean); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// validateRedirectURI validates that a redirect URI is registered for the
// client and structurally safe.
func (s *Server) validateRedirectURI(client *storage.Client, redirectURI string) error {
	found := false
	for _, uri := range client.RedirectURIs {
		if uri == redirectURI {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("redirect URI not registered for client")
	}

	return validateRedirectURISecurity(redirectURI, s.Config.Issuer)
}

// validateRedirectURISecurity performs structural security checks on a
// redirect URI per OAuth 2.0 Security Best Current Practice.
func validateRedirectURISecurity(redirectURI, serverIssuer string) error {
	parsed, err := url.Parse(redirectURI)
	if err != nil {
		return fmt.Errorf("invalid redirect_uri format: %w", err)
	}

	// Security BCP 4.1.3: redirect_uri MUST NOT contain fragments
	if parsed.Fragment != "" {
		return fmt.Errorf("redirect_uri must not contain fragments")
	}

	scheme := strings.ToLower(parsed.Scheme)
	switch scheme {
	case "http", "https":
		hostname := strings.ToLower(parsed.Hostname())
		if scheme == "http" && !isLocalhostHostname(hostname) {
			// Only require HTTPS redirect targets when the server
			// itself runs over HTTPS
			if serverParsed, err := url.Parse(serverIssuer); err == nil && serverParsed.Scheme == "https" {
				return fmt.Errorf("redirect_uri must use HTTPS in production (got http://)")
			}
		}
		return nil
	case "javascript", "data", "file", "vbscript", "about":
		return fmt.Errorf("redirect_uri scheme %q is not allowed", scheme)
	case "":
		return fmt.Errorf("redirect_uri must be absolute")
	default:
		// Custom schemes for native clients (e.g. myapp://callback)
		return nil
	}
}

// validateScopes validates that requested scopes are allowed
func (s *Server) validateScopes(scope string) error {
	// If no scopes configured, allow all
	if len(s.Config.SupportedScopes) == 0 {
		return nil
	}
	if scope == "" {
		return nil
	}

	for _, reqScope := range strings.Fields(scope) {
		found := false
		for _, supported := range s.Config.SupportedScopes {
			if reqScope == supported {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unsupported scope: %s", reqScope)
		}
	}

	return nil
}

// resolveScope applies the configured default when no scope was requested
func (s *Server) resolveScope(scope string) string {
	if strings.TrimSpace(scope) == "" {
		return s.Config.DefaultScope
	}
	return scope
}

// validatePKCE validates the PKCE code verifier against the challenge per RFC 7636
func (s *Server) validatePKCE(challenge, method, verifier string) error {
	if challenge == "" {
		// No PKCE bound to this code
		return nil
	}

	if verifier == "" {
		return fmt.Errorf("code_verifier is required when code_challenge is present")
	}

	// RFC 7636: code_verifier must be 43-128 characters
	if len(verifier) < MinCodeVerifierLength {
		return fmt.Errorf("code_verifier must be at least %d characters (RFC 7636)", MinCodeVerifierLength)
	}
	if len(verifier) > MaxCodeVerifierLength {
		return fmt.Errorf("code_verifier must be at most %d characters (RFC 7636)", MaxCodeVerifierLength)
	}

	// RFC 7636: code_verifier can only contain [A-Z] / [a-z] / [0-9] / "-" / "." / "_" / "~"
	for _, ch := range verifier {
		isValid := (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') ||
			ch == '-' || ch == '.' || ch == '_' || ch == '~'
		if !isValid {
			return fmt.Errorf("code_verifier contains invalid characters (must be [A-Za-z0-9-._~])")
		}
	}

	var computedChallenge string

	switch method {
	case PKCEMethodS256:
		hash := sha256.Sum256([]byte(verifier))
		computedChallenge = base64.RawURLEncoding.EncodeToString(hash[:])

	case PKCEMethodPlain:
		if s.Config.DisablePKCEPlain {
			return fmt.Errorf("'%s' code_challenge_method is not allowed", PKCEMethodPlain)
		}
		computedChallenge = verifier
		s.Logger.Warn("Using insecure 'plain' PKCE method",
			"recommendation", "Upgrade client to use S256")

	default:
		return fmt.Errorf("unsupported code_challenge_method: %s (supported: %s)",
			method, strings.Join(s.Config.CodeChallengeMethodsSupported(), ", "))
	}

	// Constant-time comparison to prevent timing attacks
	if subtle.ConstantTimeCompare([]byte(computedChallenge), []byte(challenge)) != 1 {
		return fmt.Errorf("code_verifier does not match code_challenge")
	}

	return nil
}

// validateChallengeMethod checks the challenge method at authorization time
// so bad requests fail before a code is issued.
func (s *Server) validateChallengeMethod(challenge, method string) error {
	if challenge == "" {
		if s.Config.RequirePKCE {
			return fmt.Errorf("code_challenge is required")
		}
		return nil
	}

	switch method {
	case PKCEMethodS256:
		return nil
	case PKCEMethodPlain:
		if s.Config.DisablePKCEPlain {
			return fmt.Errorf("'%s' code_challenge_method is not allowed", PKCEMethodPlain)
		}
		return nil
	case "":
		// Omitted method defaults to S256, which is always accepted
		return nil
	default:
		return fmt.Errorf("unsupported code_challenge_method: %s (supported: %s)",
			method, strings.Join(s.Config.CodeChallengeMethodsSupported(), ", "))
	}
}
