package server

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ddellecasedata/sql-mcp/storage"
)

// Client type constants
const (
	// ClientTypeConfidential represents a confidential OAuth client
	ClientTypeConfidential = "confidential"

	// ClientTypePublic represents a public OAuth client
	ClientTypePublic = "public"
)

// Token endpoint authentication method constants (RFC 7591)
const (
	// TokenEndpointAuthMethodNone represents no authentication (public clients)
	TokenEndpointAuthMethodNone = "none"

	// TokenEndpointAuthMethodBasic represents HTTP Basic authentication
	TokenEndpointAuthMethodBasic = "client_secret_basic"

	// TokenEndpointAuthMethodPost represents POST form parameters
	TokenEndpointAuthMethodPost = "client_secret_post"
)

// ClientRegistrationRequest is the RFC 7591 registration request body
type ClientRegistrationRequest struct {
	ClientName              string   `json:"client_name"`
	RedirectURIs            []string `json:"redirect_uris"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	Scope                   string   `json:"scope,omitempty"`
}

// ClientInformation is the RFC 7591 registration response. ClientSecret
// is only present for confidential clients and only at registration time.
type ClientInformation struct {
	ClientID                string   `json:"client_id"`
	ClientSecret            string   `json:"client_secret,omitempty"`
	ClientName              string   `json:"client_name,omitempty"`
	RedirectURIs            []string `json:"redirect_uris"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	ClientIDIssuedAt        int64    `json:"client_id_issued_at"`
}

// RegisterClient registers a new OAuth client (RFC 7591 dynamic
// registration). Registration is open but rate limited per IP to
// prevent mass registration abuse.
//
// Public clients (token_endpoint_auth_method "none") get no secret and
// rely on PKCE. Confidential clients get a generated secret whose bcrypt
// hash is stored; the plaintext is returned once and never again.
func (s *Server) RegisterClient(ctx context.Context, req *ClientRegistrationRequest, clientIP string) (*ClientInformation, error) {
	if len(req.RedirectURIs) == 0 {
		return nil, ErrInvalidRequest("redirect_uris is required")
	}

	count, err := s.clientStore.CountClientsByIP(ctx, clientIP)
	if err != nil {
		s.Logger.Error("Failed to count clients for IP", "error", err)
		return nil, ErrServerError("registration failed")
	}
	if count >= s.Config.MaxClientsPerIP {
		s.Logger.Warn("Client registration limit reached for IP",
			"ip", clientIP, "limit", s.Config.MaxClientsPerIP)
		if s.Auditor != nil {
			s.Auditor.LogRateLimitExceeded(clientIP, "")
		}
		return nil, ErrInvalidRequest(
			fmt.Sprintf("registration limit reached (max %d clients per IP)", s.Config.MaxClientsPerIP))
	}

	for _, uri := range req.RedirectURIs {
		if err := validateRedirectURISecurity(uri, s.Config.Issuer); err != nil {
			s.Logger.Warn("Client registration with invalid redirect URI",
				"redirect_uri", uri, "error", err)
			return nil, ErrInvalidRedirectURI(err.Error())
		}
	}

	authMethod := req.TokenEndpointAuthMethod
	if authMethod == "" {
		// Default to public: MCP clients are native apps using PKCE
		authMethod = TokenEndpointAuthMethodNone
	}

	var clientType, clientSecret, clientSecretHash string
	switch authMethod {
	case TokenEndpointAuthMethodNone:
		clientType = ClientTypePublic
	case TokenEndpointAuthMethodBasic, TokenEndpointAuthMethodPost:
		clientType = ClientTypeConfidential
		clientSecret = generateRandomToken()
		hash, err := bcrypt.GenerateFromPassword([]byte(clientSecret), bcrypt.DefaultCost)
		if err != nil {
			s.Logger.Error("Failed to hash client secret", "error", err)
			return nil, ErrServerError("registration failed")
		}
		clientSecretHash = string(hash)
	default:
		return nil, ErrInvalidRequest(
			fmt.Sprintf("unsupported token_endpoint_auth_method: %s", authMethod))
	}

	grantTypes := req.GrantTypes
	if len(grantTypes) == 0 {
		grantTypes = []string{GrantTypeAuthorizationCode}
	}
	responseTypes := req.ResponseTypes
	if len(responseTypes) == 0 {
		responseTypes = []string{"code"}
	}

	now := time.Now()
	client := &storage.Client{
		ClientID:                uuid.NewString(),
		ClientSecretHash:        clientSecretHash,
		ClientType:              clientType,
		RedirectURIs:            req.RedirectURIs,
		TokenEndpointAuthMethod: authMethod,
		GrantTypes:              grantTypes,
		ResponseTypes:           responseTypes,
		ClientName:              req.ClientName,
		Scopes:                  strings.Fields(req.Scope),
		RegistrationIP:          clientIP,
		CreatedAt:               now,
	}

	if err := s.clientStore.SaveClient(ctx, client); err != nil {
		s.Logger.Error("Failed to save client", "error", err)
		return nil, ErrServerError("registration failed")
	}

	s.Logger.Info("Client registered",
		"client_id", client.ClientID,
		"client_name", client.ClientName,
		"client_type", clientType,
		"redirect_uris", len(client.RedirectURIs))

	if s.Auditor != nil {
		s.Auditor.LogClientRegistered(client.ClientID, clientType, clientIP)
	}
	if m := s.metrics(); m != nil {
		m.RecordClientRegistration(ctx, clientType)
	}

	return &ClientInformation{
		ClientID:                client.ClientID,
		ClientSecret:            clientSecret,
		ClientName:              client.ClientName,
		RedirectURIs:            client.RedirectURIs,
		TokenEndpointAuthMethod: authMethod,
		GrantTypes:              grantTypes,
		ResponseTypes:           responseTypes,
		ClientIDIssuedAt:        now.Unix(),
	}, nil
}

// VerifyClientSecret checks a confidential client's secret against the
// stored bcrypt hash. Public clients always fail this check.
func (s *Server) VerifyClientSecret(ctx context.Context, clientID, clientSecret string) error {
	client, err := s.clientStore.GetClient(ctx, clientID)
	if err != nil {
		return ErrInvalidClient("unknown client")
	}
	if client.ClientType != ClientTypeConfidential || client.ClientSecretHash == "" {
		return ErrInvalidClient("client has no secret")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(client.ClientSecretHash), []byte(clientSecret)); err != nil {
		return ErrInvalidClient("invalid client credentials")
	}
	return nil
}
