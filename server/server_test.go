package server

import (
	"log/slog"
	"testing"

	"github.com/ddellecasedata/sql-mcp/security"
	"github.com/ddellecasedata/sql-mcp/storage/memory"
)

func TestNew(t *testing.T) {
	store := memory.New()
	defer store.Stop()

	config := &Config{Issuer: "https://auth.example.com"}

	srv, err := New(store, store, store, config, slog.Default())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if srv.Consent == nil {
		t.Error("expected a default consent provider")
	}
	if srv.Config.AuthorizationCodeTTL != DefaultAuthorizationCodeTTL {
		t.Errorf("AuthorizationCodeTTL = %d, want default %d",
			srv.Config.AuthorizationCodeTTL, DefaultAuthorizationCodeTTL)
	}
}

func TestNew_RequiresStores(t *testing.T) {
	store := memory.New()
	defer store.Stop()

	config := &Config{Issuer: "https://auth.example.com"}

	if _, err := New(nil, store, store, config, nil); err == nil {
		t.Error("New() without code store should fail")
	}
	if _, err := New(store, nil, store, config, nil); err == nil {
		t.Error("New() without token store should fail")
	}
	if _, err := New(store, store, nil, config, nil); err == nil {
		t.Error("New() without client store should fail")
	}
}

func TestNew_RejectsInsecureIssuer(t *testing.T) {
	store := memory.New()
	defer store.Stop()

	_, err := New(store, store, store, &Config{Issuer: "http://auth.example.com"}, nil)
	if err == nil {
		t.Error("New() with a non-localhost http issuer should fail")
	}

	if _, err := New(store, store, store, &Config{Issuer: "http://localhost:8080"}, nil); err != nil {
		t.Errorf("New() with localhost http issuer error = %v", err)
	}
}

func TestServer_Setters(t *testing.T) {
	store := memory.New()
	defer store.Stop()

	srv, err := New(store, store, store, &Config{Issuer: "https://auth.example.com"}, slog.Default())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	aud := security.NewAuditor(slog.Default(), true)
	srv.SetAuditor(aud)
	if srv.Auditor != aud {
		t.Error("SetAuditor did not take effect")
	}

	rl := security.NewRateLimiter(10, 20, slog.Default())
	defer rl.Stop()
	srv.SetRateLimiter(rl)
	if srv.RateLimiter != rl {
		t.Error("SetRateLimiter did not take effect")
	}

	srv.SetConsentProvider(nil)
	if srv.Consent == nil {
		t.Error("SetConsentProvider(nil) must keep the existing provider")
	}
}

func TestGenerateRandomToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token := generateRandomToken()
		if token == "" {
			t.Fatal("generateRandomToken() returned empty string")
		}
		if seen[token] {
			t.Fatalf("generateRandomToken() produced a duplicate: %q", token)
		}
		seen[token] = true
	}
}
