package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ddellecasedata/sql-mcp/server"
	"github.com/ddellecasedata/sql-mcp/storage"
)

// SessionManager creates, resolves, and destroys protocol sessions. Each
// session is bound to the identity that was authenticated when it was
// created.
type SessionManager struct {
	store storage.SessionStore
}

// NewSessionManager creates a session manager on the given store
func NewSessionManager(store storage.SessionStore) *SessionManager {
	return &SessionManager{store: store}
}

// Create starts a new session with a fresh random id bound to auth
func (m *SessionManager) Create(ctx context.Context, auth *server.AuthContext) (*storage.Session, error) {
	return m.CreateWithID(ctx, uuid.NewString(), auth)
}

// CreateWithID starts a session under a caller-supplied id. Used by the
// recovery path to resurrect a session id presented by a client after a
// process restart.
func (m *SessionManager) CreateWithID(ctx context.Context, id string, auth *server.AuthContext) (*storage.Session, error) {
	session := &storage.Session{
		ID:              id,
		Subject:         auth.Subject,
		ClientID:        auth.ClientID,
		ProtocolVersion: ProtocolVersion,
		CreatedAt:       time.Now(),
	}
	if err := m.store.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}
	return session, nil
}

// Get resolves a session id. Returns (nil, nil) when the session does
// not exist; destroyed and never-created are indistinguishable.
func (m *SessionManager) Get(ctx context.Context, id string) (*storage.Session, error) {
	session, err := m.store.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("looking up session: %w", err)
	}
	return session, nil
}

// Destroy removes a session. Destroying an absent session is a no-op.
func (m *SessionManager) Destroy(ctx context.Context, id string) error {
	return m.store.DeleteSession(ctx, id)
}
