// Package storage provides interfaces and record types for authorization
// code, access token, session, and client persistence.
//
// The storage package defines the core interfaces used throughout sql-mcp:
//   - CodeStore: Manages single-use authorization codes
//   - TokenStore: Manages opaque bearer access tokens
//   - SessionStore: Manages protocol sessions
//   - ClientStore: Manages registered OAuth clients
//
// Implementations are provided in subpackages:
//   - storage/memory: In-memory storage for single-instance deployments
package storage
