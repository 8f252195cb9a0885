package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ddellecasedata/sql-mcp/storage"
)

const (
	testSubject  = "user-123"
	testClientID = "client-abc"
)

func testCode(code string, ttl time.Duration) *storage.AuthorizationCode {
	now := time.Now()
	return &storage.AuthorizationCode{
		Code:                code,
		ClientID:            testClientID,
		RedirectURI:         "http://localhost:8080/callback",
		Scope:               "inventory",
		CodeChallenge:       "challenge",
		CodeChallengeMethod: "S256",
		Subject:             testSubject,
		CreatedAt:           now,
		ExpiresAt:           now.Add(ttl),
	}
}

// ============================================================
// CodeStore Tests
// ============================================================

func TestStore_ConsumeAuthorizationCode(t *testing.T) {
	store := New()
	defer store.Stop()

	ctx := context.Background()
	if err := store.SaveAuthorizationCode(ctx, testCode("code-1", 10*time.Minute)); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}

	got, err := store.ConsumeAuthorizationCode(ctx, "code-1")
	if err != nil {
		t.Fatalf("ConsumeAuthorizationCode() error = %v", err)
	}
	if got.Subject != testSubject {
		t.Errorf("Subject = %q, want %q", got.Subject, testSubject)
	}
	if got.CodeChallenge != "challenge" {
		t.Errorf("CodeChallenge = %q, want %q", got.CodeChallenge, "challenge")
	}
}

func TestStore_ConsumeAuthorizationCode_SingleUse(t *testing.T) {
	store := New()
	defer store.Stop()

	ctx := context.Background()
	if err := store.SaveAuthorizationCode(ctx, testCode("code-1", 10*time.Minute)); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}

	if _, err := store.ConsumeAuthorizationCode(ctx, "code-1"); err != nil {
		t.Fatalf("first ConsumeAuthorizationCode() error = %v", err)
	}

	_, err := store.ConsumeAuthorizationCode(ctx, "code-1")
	if !errors.Is(err, storage.ErrCodeNotFound) {
		t.Errorf("second ConsumeAuthorizationCode() error = %v, want ErrCodeNotFound", err)
	}
}

func TestStore_ConsumeAuthorizationCode_Concurrent(t *testing.T) {
	store := New()
	defer store.Stop()

	ctx := context.Background()
	if err := store.SaveAuthorizationCode(ctx, testCode("code-1", 10*time.Minute)); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}

	const goroutines = 20
	var wg sync.WaitGroup
	successes := make(chan struct{}, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.ConsumeAuthorizationCode(ctx, "code-1"); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	count := 0
	for range successes {
		count++
	}
	if count != 1 {
		t.Errorf("exactly one concurrent consume should succeed, got %d", count)
	}
}

func TestStore_ConsumeAuthorizationCode_Expired(t *testing.T) {
	store := New()
	defer store.Stop()

	ctx := context.Background()
	if err := store.SaveAuthorizationCode(ctx, testCode("code-1", -time.Minute)); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}

	_, err := store.ConsumeAuthorizationCode(ctx, "code-1")
	if !errors.Is(err, storage.ErrCodeExpired) {
		t.Errorf("ConsumeAuthorizationCode() error = %v, want ErrCodeExpired", err)
	}

	// An expired code is consumed too; a retry sees not-found.
	_, err = store.ConsumeAuthorizationCode(ctx, "code-1")
	if !errors.Is(err, storage.ErrCodeNotFound) {
		t.Errorf("retry error = %v, want ErrCodeNotFound", err)
	}
}

func TestStore_ConsumeAuthorizationCode_NotFound(t *testing.T) {
	store := New()
	defer store.Stop()

	_, err := store.ConsumeAuthorizationCode(context.Background(), "nonexistent")
	if !errors.Is(err, storage.ErrCodeNotFound) {
		t.Errorf("ConsumeAuthorizationCode() error = %v, want ErrCodeNotFound", err)
	}
}

func TestStore_DeleteAuthorizationCode(t *testing.T) {
	store := New()
	defer store.Stop()

	ctx := context.Background()
	if err := store.SaveAuthorizationCode(ctx, testCode("code-1", 10*time.Minute)); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}
	if err := store.DeleteAuthorizationCode(ctx, "code-1"); err != nil {
		t.Fatalf("DeleteAuthorizationCode() error = %v", err)
	}

	_, err := store.ConsumeAuthorizationCode(ctx, "code-1")
	if !errors.Is(err, storage.ErrCodeNotFound) {
		t.Errorf("ConsumeAuthorizationCode() after delete error = %v, want ErrCodeNotFound", err)
	}
}

// ============================================================
// TokenStore Tests
// ============================================================

func TestStore_SaveAccessToken(t *testing.T) {
	store := New()
	defer store.Stop()

	ctx := context.Background()
	now := time.Now()
	token := &storage.AccessToken{
		Token:     "tok-1",
		Subject:   testSubject,
		ClientID:  testClientID,
		Scope:     "inventory search",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	if err := store.SaveAccessToken(ctx, token); err != nil {
		t.Fatalf("SaveAccessToken() error = %v", err)
	}

	got, err := store.GetAccessToken(ctx, "tok-1")
	if err != nil {
		t.Fatalf("GetAccessToken() error = %v", err)
	}
	if got.Subject != testSubject {
		t.Errorf("Subject = %q, want %q", got.Subject, testSubject)
	}
	if got.Scope != "inventory search" {
		t.Errorf("Scope = %q, want %q", got.Scope, "inventory search")
	}
}

func TestStore_GetAccessToken_NotFound(t *testing.T) {
	store := New()
	defer store.Stop()

	_, err := store.GetAccessToken(context.Background(), "nonexistent")
	if !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("GetAccessToken() error = %v, want ErrTokenNotFound", err)
	}
}

func TestStore_GetAccessToken_Expired(t *testing.T) {
	store := New()
	defer store.Stop()

	ctx := context.Background()
	now := time.Now()
	token := &storage.AccessToken{
		Token:     "tok-1",
		Subject:   testSubject,
		ClientID:  testClientID,
		CreatedAt: now.Add(-2 * time.Hour),
		ExpiresAt: now.Add(-time.Hour),
	}
	if err := store.SaveAccessToken(ctx, token); err != nil {
		t.Fatalf("SaveAccessToken() error = %v", err)
	}

	_, err := store.GetAccessToken(ctx, "tok-1")
	if !errors.Is(err, storage.ErrTokenExpired) {
		t.Errorf("GetAccessToken() error = %v, want ErrTokenExpired", err)
	}

	// Expired tokens are evicted on read.
	_, err = store.GetAccessToken(ctx, "tok-1")
	if !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("GetAccessToken() after eviction error = %v, want ErrTokenNotFound", err)
	}
}

func TestStore_DeleteAccessToken(t *testing.T) {
	store := New()
	defer store.Stop()

	ctx := context.Background()
	now := time.Now()
	token := &storage.AccessToken{
		Token:     "tok-1",
		Subject:   testSubject,
		ClientID:  testClientID,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	if err := store.SaveAccessToken(ctx, token); err != nil {
		t.Fatalf("SaveAccessToken() error = %v", err)
	}
	if err := store.DeleteAccessToken(ctx, "tok-1"); err != nil {
		t.Fatalf("DeleteAccessToken() error = %v", err)
	}

	_, err := store.GetAccessToken(ctx, "tok-1")
	if !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("GetAccessToken() after delete error = %v, want ErrTokenNotFound", err)
	}
}

// ============================================================
// SessionStore Tests
// ============================================================

func TestStore_SaveSession(t *testing.T) {
	store := New()
	defer store.Stop()

	ctx := context.Background()
	session := &storage.Session{
		ID:              "sess-1",
		Subject:         testSubject,
		ClientID:        testClientID,
		ProtocolVersion: "2025-03-26",
		CreatedAt:       time.Now(),
	}
	if err := store.SaveSession(ctx, session); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	got, err := store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.Subject != testSubject {
		t.Errorf("Subject = %q, want %q", got.Subject, testSubject)
	}
}

func TestStore_GetSession_NotFound(t *testing.T) {
	store := New()
	defer store.Stop()

	_, err := store.GetSession(context.Background(), "nonexistent")
	if !errors.Is(err, storage.ErrSessionNotFound) {
		t.Errorf("GetSession() error = %v, want ErrSessionNotFound", err)
	}
}

func TestStore_DeleteSession_Idempotent(t *testing.T) {
	store := New()
	defer store.Stop()

	ctx := context.Background()
	session := &storage.Session{
		ID:        "sess-1",
		Subject:   testSubject,
		CreatedAt: time.Now(),
	}
	if err := store.SaveSession(ctx, session); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	if err := store.DeleteSession(ctx, "sess-1"); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	// Deleting again is not an error.
	if err := store.DeleteSession(ctx, "sess-1"); err != nil {
		t.Errorf("repeated DeleteSession() error = %v", err)
	}
	if err := store.DeleteSession(ctx, "never-existed"); err != nil {
		t.Errorf("DeleteSession() of unknown ID error = %v", err)
	}
}

// ============================================================
// ClientStore Tests
// ============================================================

func TestStore_SaveClient(t *testing.T) {
	store := New()
	defer store.Stop()

	ctx := context.Background()
	client := &storage.Client{
		ClientID:     testClientID,
		ClientType:   "public",
		RedirectURIs: []string{"http://localhost:8080/callback"},
		ClientName:   "Test Client",
		CreatedAt:    time.Now(),
	}
	if err := store.SaveClient(ctx, client); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}

	got, err := store.GetClient(ctx, testClientID)
	if err != nil {
		t.Fatalf("GetClient() error = %v", err)
	}
	if got.ClientName != "Test Client" {
		t.Errorf("ClientName = %q, want %q", got.ClientName, "Test Client")
	}
}

func TestStore_GetClient_NotFound(t *testing.T) {
	store := New()
	defer store.Stop()

	_, err := store.GetClient(context.Background(), "nonexistent")
	if !errors.Is(err, storage.ErrClientNotFound) {
		t.Errorf("GetClient() error = %v, want ErrClientNotFound", err)
	}
}

func TestStore_CountClientsByIP(t *testing.T) {
	store := New()
	defer store.Stop()

	ctx := context.Background()
	for _, id := range []string{"c1", "c2"} {
		client := &storage.Client{
			ClientID:       id,
			ClientType:     "public",
			RegistrationIP: "192.0.2.1",
			CreatedAt:      time.Now(),
		}
		if err := store.SaveClient(ctx, client); err != nil {
			t.Fatalf("SaveClient() error = %v", err)
		}
	}

	count, err := store.CountClientsByIP(ctx, "192.0.2.1")
	if err != nil {
		t.Fatalf("CountClientsByIP() error = %v", err)
	}
	if count != 2 {
		t.Errorf("CountClientsByIP() = %d, want 2", count)
	}

	count, err = store.CountClientsByIP(ctx, "198.51.100.7")
	if err != nil {
		t.Fatalf("CountClientsByIP() error = %v", err)
	}
	if count != 0 {
		t.Errorf("CountClientsByIP() for unknown IP = %d, want 0", count)
	}
}

// ============================================================
// Cleanup Tests
// ============================================================

func TestStore_CleanupExpired(t *testing.T) {
	store := New()
	defer store.Stop()

	ctx := context.Background()
	if err := store.SaveAuthorizationCode(ctx, testCode("expired", -time.Minute)); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}
	if err := store.SaveAuthorizationCode(ctx, testCode("live", 10*time.Minute)); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}

	now := time.Now()
	if err := store.SaveAccessToken(ctx, &storage.AccessToken{
		Token:     "expired-tok",
		Subject:   testSubject,
		ExpiresAt: now.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("SaveAccessToken() error = %v", err)
	}

	store.cleanupExpired()

	store.mu.RLock()
	_, expiredCodePresent := store.codes["expired"]
	_, liveCodePresent := store.codes["live"]
	_, expiredTokenPresent := store.tokens["expired-tok"]
	store.mu.RUnlock()

	if expiredCodePresent {
		t.Error("expired code should have been removed")
	}
	if !liveCodePresent {
		t.Error("live code should have been kept")
	}
	if expiredTokenPresent {
		t.Error("expired token should have been removed")
	}
}

func TestStore_Stop_Idempotent(t *testing.T) {
	store := New(WithCleanupInterval(time.Millisecond))
	store.Stop()
	store.Stop()
}
