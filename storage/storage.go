package storage

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by store implementations. Callers translate
// these into protocol-level errors; the distinction between "not found"
// and "expired" must never reach a client.
var (
	ErrCodeNotFound    = errors.New("authorization code not found")
	ErrCodeExpired     = errors.New("authorization code expired")
	ErrTokenNotFound   = errors.New("access token not found")
	ErrTokenExpired    = errors.New("access token expired")
	ErrSessionNotFound = errors.New("session not found")
	ErrClientNotFound  = errors.New("client not found")
)

// AuthorizationCode represents a single-use authorization code bound to a
// client, redirect URI, and PKCE challenge at issuance time.
type AuthorizationCode struct {
	Code                string
	ClientID            string
	RedirectURI         string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
	Subject             string
	CreatedAt           time.Time
	ExpiresAt           time.Time
}

// AccessToken represents an opaque bearer token and the identity it was
// issued to. The token string itself is the lookup key.
type AccessToken struct {
	Token     string
	Subject   string
	ClientID  string
	Scope     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Session represents a protocol session bound to an authenticated identity.
type Session struct {
	ID              string
	Subject         string
	ClientID        string
	ProtocolVersion string
	CreatedAt       time.Time
}

// Client represents a registered OAuth client.
type Client struct {
	ClientID                string
	ClientSecretHash        string // bcrypt hash, empty for public clients
	ClientType              string // "public" or "confidential"
	RedirectURIs            []string
	TokenEndpointAuthMethod string
	GrantTypes              []string
	ResponseTypes           []string
	ClientName              string
	Scopes                  []string
	RegistrationIP          string
	CreatedAt               time.Time
}

// CodeStore manages issued authorization codes.
// All methods accept context.Context for tracing and cancellation.
type CodeStore interface {
	// SaveAuthorizationCode stores an issued code
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// ConsumeAuthorizationCode atomically retrieves and deletes a code.
	// The code is removed whether or not the caller's subsequent checks
	// succeed, so a failed exchange still burns the code. Returns
	// ErrCodeNotFound for unknown or already-consumed codes and
	// ErrCodeExpired for codes past their expiry.
	// SECURITY: This operation MUST be atomic to prevent concurrent
	// code exchange attacks.
	ConsumeAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// DeleteAuthorizationCode removes a code without returning it
	DeleteAuthorizationCode(ctx context.Context, code string) error
}

// TokenStore manages opaque access tokens.
// All methods accept context.Context for tracing and cancellation.
type TokenStore interface {
	// SaveAccessToken stores an issued token
	SaveAccessToken(ctx context.Context, token *AccessToken) error

	// GetAccessToken retrieves a token by its opaque value. Returns
	// ErrTokenNotFound for unknown tokens and ErrTokenExpired for
	// tokens past their expiry.
	GetAccessToken(ctx context.Context, token string) (*AccessToken, error)

	// DeleteAccessToken removes a token (revocation)
	DeleteAccessToken(ctx context.Context, token string) error
}

// SessionStore manages protocol sessions.
// All methods accept context.Context for tracing and cancellation.
type SessionStore interface {
	// SaveSession stores a session
	SaveSession(ctx context.Context, session *Session) error

	// GetSession retrieves a session by ID
	GetSession(ctx context.Context, id string) (*Session, error)

	// DeleteSession removes a session. Deleting an unknown session is
	// not an error; termination is idempotent.
	DeleteSession(ctx context.Context, id string) error
}

// ClientStore manages OAuth client registrations.
// All methods accept context.Context for tracing and cancellation.
type ClientStore interface {
	// SaveClient saves a registered client
	SaveClient(ctx context.Context, client *Client) error

	// GetClient retrieves a client by ID
	GetClient(ctx context.Context, clientID string) (*Client, error)

	// ListClients lists all registered clients (for admin purposes)
	ListClients(ctx context.Context) ([]*Client, error)

	// CountClientsByIP returns how many clients were registered from
	// the given IP, used to enforce per-IP registration limits
	CountClientsByIP(ctx context.Context, ip string) (int, error)
}

// Store combines all store interfaces. The in-memory implementation
// satisfies the whole set; callers may depend on narrower interfaces.
type Store interface {
	CodeStore
	TokenStore
	SessionStore
	ClientStore
}
