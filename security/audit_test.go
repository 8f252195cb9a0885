package security

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewAuditor(t *testing.T) {
	tests := []struct {
		name    string
		logger  *slog.Logger
		enabled bool
	}{
		{
			name:    "enabled with logger",
			logger:  slog.Default(),
			enabled: true,
		},
		{
			name:    "disabled with logger",
			logger:  slog.Default(),
			enabled: false,
		},
		{
			name:    "enabled with nil logger",
			logger:  nil,
			enabled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auditor := NewAuditor(tt.logger, tt.enabled)
			if auditor == nil {
				t.Fatal("NewAuditor() returned nil")
			}
			if auditor.enabled != tt.enabled {
				t.Errorf("enabled = %v, want %v", auditor.enabled, tt.enabled)
			}
			if auditor.logger == nil {
				t.Error("logger should not be nil")
			}
		})
	}
}

func TestAuditor_LogEvent(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		wantLog bool
	}{
		{name: "enabled", enabled: true, wantLog: true},
		{name: "disabled", enabled: false, wantLog: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))

			auditor := NewAuditor(logger, tt.enabled)
			auditor.LogEvent(Event{
				Type:      "test_event",
				Subject:   "user-123",
				ClientID:  "client-456",
				IPAddress: "192.0.2.1",
				Details:   map[string]any{"key": "value"},
			})

			got := buf.String()
			if tt.wantLog && !strings.Contains(got, "security_audit") {
				t.Errorf("expected audit log output, got %q", got)
			}
			if !tt.wantLog && got != "" {
				t.Errorf("expected no output when disabled, got %q", got)
			}
		})
	}
}

func TestAuditor_HashesSubject(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	auditor := NewAuditor(logger, true)
	auditor.LogTokenIssued("sensitive-user-id", "client-1", "192.0.2.1", "inventory")

	got := buf.String()
	if strings.Contains(got, "sensitive-user-id") {
		t.Error("raw subject must not appear in audit output")
	}
	if !strings.Contains(got, "subject_hash") {
		t.Error("audit output should contain hashed subject")
	}
}

func TestAuditor_EventHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	auditor := NewAuditor(logger, true)

	auditor.LogCodeIssued("user-1", "client-1", "192.0.2.1", "inventory")
	auditor.LogTokenIssued("user-1", "client-1", "192.0.2.1", "inventory search")
	auditor.LogTokenRevoked("user-1", "client-1", "192.0.2.1")
	auditor.LogAuthFailure("user-1", "client-1", "192.0.2.1", "expired")
	auditor.LogConsentDenied("user-1", "client-1", "192.0.2.1")
	auditor.LogRateLimitExceeded("192.0.2.1", "user-1")
	auditor.LogClientRegistered("client-1", "public", "192.0.2.1")
	auditor.LogSessionCreated("user-1", "client-1", "sess-1", false)
	auditor.LogSessionTerminated("user-1", "sess-1")
	auditor.LogToolInvoked("user-1", "client-1", "search", false)

	got := buf.String()
	for _, event := range []string{
		EventCodeIssued,
		EventTokenIssued,
		EventTokenRevoked,
		EventAuthFailure,
		EventConsentDenied,
		EventRateLimitExceeded,
		EventClientRegistered,
		EventSessionCreated,
		EventSessionTerminated,
		EventToolInvoked,
	} {
		if !strings.Contains(got, event) {
			t.Errorf("audit output missing event type %q", event)
		}
	}
}

func TestHashForLogging(t *testing.T) {
	if got := hashForLogging(""); got != "<empty>" {
		t.Errorf("hashForLogging(\"\") = %q, want %q", got, "<empty>")
	}

	h1 := hashForLogging("user-1")
	h2 := hashForLogging("user-1")
	h3 := hashForLogging("user-2")

	if h1 != h2 {
		t.Error("hash should be deterministic")
	}
	if h1 == h3 {
		t.Error("different inputs should produce different hashes")
	}
	if len(h1) != 16 {
		t.Errorf("hash length = %d, want 16", len(h1))
	}
}
