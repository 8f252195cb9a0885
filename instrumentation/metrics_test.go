package instrumentation

import (
	"context"
	"testing"
)

func TestMetrics_RecordHTTPRequest(t *testing.T) {
	ctx := context.Background()
	inst, err := New(Config{
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	metrics := inst.Metrics()

	tests := []struct {
		name       string
		method     string
		endpoint   string
		statusCode int
		durationMs float64
	}{
		{"successful GET", "GET", "/authorize", 302, 123.45},
		{"successful POST", "POST", "/token", 200, 234.56},
		{"bad request", "POST", "/token", 400, 45.67},
		{"server error", "POST", "/mcp", 500, 567.89},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Should not panic
			metrics.RecordHTTPRequest(ctx, tt.method, tt.endpoint, tt.statusCode, tt.durationMs)
		})
	}
}

func TestMetrics_RecordFlowEvents(t *testing.T) {
	ctx := context.Background()
	inst, err := New(Config{
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	metrics := inst.Metrics()

	// Should not panic with any attribute combination
	metrics.RecordCodeIssued(ctx, "client-1")
	metrics.RecordCodeExchange(ctx, "client-1", "S256")
	metrics.RecordCodeExchange(ctx, "client-2", "plain")
	metrics.RecordTokenIssued(ctx, "client-1")
	metrics.RecordTokenRevocation(ctx, "client-1")
	metrics.RecordClientRegistration(ctx, "confidential")
	metrics.RecordAuthFailure(ctx, "not_found")
}

func TestMetrics_RecordSessionEvents(t *testing.T) {
	ctx := context.Background()
	inst, err := New(Config{
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	metrics := inst.Metrics()

	metrics.RecordSessionCreated(ctx, false)
	metrics.RecordSessionCreated(ctx, true)
	metrics.RecordSessionTerminated(ctx)
	metrics.RecordToolCall(ctx, "search", false)
	metrics.RecordToolCall(ctx, "fetch", true)
}
