// Package memory provides an in-memory implementation of the storage interfaces.
//
// This package implements CodeStore, TokenStore, SessionStore, and ClientStore
// using Go's built-in maps with mutex protection for thread safety. It is
// suitable for development, testing, and single-instance deployments where
// persistence is not required.
//
// Features:
//   - Thread-safe operations using sync.RWMutex
//   - Atomic single-use redemption of authorization codes
//   - Automatic cleanup of expired codes and tokens
//   - Configurable cleanup intervals
//
// Example usage:
//
//	store := memory.New()
//	defer store.Stop()
//
//	// Use store for CodeStore, TokenStore, SessionStore, and ClientStore
//	srv, _ := server.New(store, store, store, cfg, logger)
package memory
