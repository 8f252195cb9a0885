package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ddellecasedata/sql-mcp/instrumentation"
	"github.com/ddellecasedata/sql-mcp/storage"
)

const defaultCleanupInterval = 5 * time.Minute

// Store is an in-memory implementation of all storage interfaces.
// Safe for concurrent use. All state is lost on process exit.
type Store struct {
	mu       sync.RWMutex
	codes    map[string]*storage.AuthorizationCode
	tokens   map[string]*storage.AccessToken
	sessions map[string]*storage.Session
	clients  map[string]*storage.Client

	logger          *slog.Logger
	instrumentation *instrumentation.Instrumentation

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for cleanup reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCleanupInterval overrides how often expired entries are evicted.
func WithCleanupInterval(interval time.Duration) Option {
	return func(s *Store) {
		if interval > 0 {
			s.cleanupInterval = interval
		}
	}
}

// New creates a new in-memory store and starts its background cleanup
// loop. Call Stop when the store is no longer needed.
func New(opts ...Option) *Store {
	s := &Store{
		codes:           make(map[string]*storage.AuthorizationCode),
		tokens:          make(map[string]*storage.AccessToken),
		sessions:        make(map[string]*storage.Session),
		clients:         make(map[string]*storage.Client),
		logger:          slog.Default(),
		cleanupInterval: defaultCleanupInterval,
		stopCleanup:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	go s.cleanupLoop()

	return s
}

// SetInstrumentation wires observability into the store and registers
// storage size gauges.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	if inst == nil {
		return
	}
	s.instrumentation = inst

	if err := inst.RegisterStorageSizeCallbacks(
		func() int64 { s.mu.RLock(); defer s.mu.RUnlock(); return int64(len(s.codes)) },
		func() int64 { s.mu.RLock(); defer s.mu.RUnlock(); return int64(len(s.tokens)) },
		func() int64 { s.mu.RLock(); defer s.mu.RUnlock(); return int64(len(s.sessions)) },
		func() int64 { s.mu.RLock(); defer s.mu.RUnlock(); return int64(len(s.clients)) },
	); err != nil {
		s.logger.Warn("Failed to register storage size callbacks", "error", err)
	}
}

// Stop terminates the background cleanup goroutine. Idempotent.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
}

// Ping reports store liveness. The in-memory store is live as long as
// the process is.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// --- CodeStore ---

// SaveAuthorizationCode stores an issued authorization code.
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *code
	s.codes[code.Code] = &c
	return nil
}

// ConsumeAuthorizationCode atomically retrieves and deletes a code.
// Lookup and delete happen under the same write lock, so two concurrent
// exchanges of the same code cannot both succeed.
func (s *Store) ConsumeAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.codes[code]
	if !ok {
		return nil, storage.ErrCodeNotFound
	}

	// Single use on every path: the code is gone even if the caller's
	// PKCE check fails afterwards.
	delete(s.codes, code)

	if !time.Now().Before(stored.ExpiresAt) {
		return nil, storage.ErrCodeExpired
	}

	c := *stored
	return &c, nil
}

// DeleteAuthorizationCode removes a code without returning it.
func (s *Store) DeleteAuthorizationCode(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.codes, code)
	return nil
}

// --- TokenStore ---

// SaveAccessToken stores an issued access token.
func (s *Store) SaveAccessToken(ctx context.Context, token *storage.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := *token
	s.tokens[token.Token] = &t
	return nil
}

// GetAccessToken retrieves a token by its opaque value. Expired tokens
// are evicted on read rather than waiting for the cleanup loop.
func (s *Store) GetAccessToken(ctx context.Context, token string) (*storage.AccessToken, error) {
	s.mu.RLock()
	stored, ok := s.tokens[token]
	s.mu.RUnlock()

	if !ok {
		return nil, storage.ErrTokenNotFound
	}

	if !time.Now().Before(stored.ExpiresAt) {
		s.mu.Lock()
		delete(s.tokens, token)
		s.mu.Unlock()
		return nil, storage.ErrTokenExpired
	}

	t := *stored
	return &t, nil
}

// DeleteAccessToken removes a token.
func (s *Store) DeleteAccessToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, token)
	return nil
}

// --- SessionStore ---

// SaveSession stores a session.
func (s *Store) SaveSession(ctx context.Context, session *storage.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := *session
	s.sessions[session.ID] = &sess
	return nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(ctx context.Context, id string) (*storage.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.sessions[id]
	if !ok {
		return nil, storage.ErrSessionNotFound
	}

	sess := *stored
	return &sess, nil
}

// DeleteSession removes a session. Unknown IDs are not an error, so
// termination stays idempotent.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

// --- ClientStore ---

// SaveClient saves a registered client.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *client
	s.clients[client.ClientID] = &c
	return nil
}

// GetClient retrieves a client by ID.
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.clients[clientID]
	if !ok {
		return nil, storage.ErrClientNotFound
	}

	c := *stored
	return &c, nil
}

// ListClients lists all registered clients.
func (s *Store) ListClients(ctx context.Context) ([]*storage.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]*storage.Client, 0, len(s.clients))
	for _, stored := range s.clients {
		c := *stored
		clients = append(clients, &c)
	}
	return clients, nil
}

// CountClientsByIP returns how many clients were registered from an IP.
func (s *Store) CountClientsByIP(ctx context.Context, ip string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, c := range s.clients {
		if c.RegistrationIP == ip {
			count++
		}
	}
	return count, nil
}

// --- Cleanup ---

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanupExpired()
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanupExpired removes expired codes and tokens. Sessions and clients
// have no TTL and are only removed explicitly.
func (s *Store) cleanupExpired() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removedCodes := 0
	for code, c := range s.codes {
		if !now.Before(c.ExpiresAt) {
			delete(s.codes, code)
			removedCodes++
		}
	}

	removedTokens := 0
	for token, t := range s.tokens {
		if !now.Before(t.ExpiresAt) {
			delete(s.tokens, token)
			removedTokens++
		}
	}

	if removedCodes > 0 || removedTokens > 0 {
		s.logger.Debug("Cleaned up expired entries",
			"codes", removedCodes,
			"tokens", removedTokens)
	}
}
