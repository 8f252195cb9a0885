// Package server implements a self-issuing OAuth 2.1 authorization server.
//
// The server runs the authorization code flow with PKCE and issues its
// own opaque bearer tokens; there is no upstream identity provider. It
// coordinates storage backends, consent, and security features.
//
// Key features:
//   - Authorization code flow with PKCE (RFC 7636, S256 and plain)
//   - Single-use authorization codes consumed atomically
//   - Dynamic client registration (RFC 7591) with per-IP limits
//   - Authorization server metadata (RFC 8414) and protected resource
//     metadata (RFC 9728) discovery documents
//   - Token revocation (RFC 7009)
//   - Security auditing and IP-based rate limiting
//
// Example usage:
//
//	store := memory.New(memory.WithLogger(logger))
//
//	config := &server.Config{
//	    Issuer: "https://auth.example.com",
//	    RequirePKCE: true,
//	}
//
//	srv, err := server.New(store, store, store, config, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	handler := server.NewHandler(srv)
//	handler.RegisterRoutes(mux)
package server
