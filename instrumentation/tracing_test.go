package instrumentation

import (
	"context"
	"errors"
	"testing"
)

func TestRecordError(t *testing.T) {
	inst, err := New(Config{
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	ctx := context.Background()
	_, span := inst.Tracer("server").Start(ctx, "test-span")
	defer span.End()

	RecordError(span, errors.New("test error"))

	// Nil span and nil error must be safe
	RecordError(nil, errors.New("test error"))
	RecordError(span, nil)
}

func TestSpanStatusHelpers(t *testing.T) {
	inst, err := New(Config{
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	ctx := context.Background()
	_, span := inst.Tracer("server").Start(ctx, "test-span")
	defer span.End()

	SetSpanSuccess(span)
	SetSpanError(span, "something failed")

	// Nil spans must be safe
	SetSpanSuccess(nil)
	SetSpanError(nil, "ignored")
}

func TestAddAttributeHelpers(t *testing.T) {
	inst, err := New(Config{
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	ctx := context.Background()
	_, span := inst.Tracer("mcp").Start(ctx, "test-span")
	defer span.End()

	AddOAuthFlowAttributes(span, "client-1", "user-1", "inventory")
	AddOAuthFlowAttributes(span, "", "", "")
	AddPKCEAttributes(span, "S256")
	AddSessionAttributes(span, "sess-1", true)
	AddSessionAttributes(span, "", false)
	AddToolAttributes(span, "search", false)
	AddHTTPAttributes(span, "POST", "/mcp", 200)
	AddSecurityAttributes(span, "192.0.2.1")
	AddSecurityAttributes(span, "")

	// All helpers must tolerate nil spans
	AddOAuthFlowAttributes(nil, "client-1", "user-1", "inventory")
	AddPKCEAttributes(nil, "S256")
	AddSessionAttributes(nil, "sess-1", false)
	AddToolAttributes(nil, "search", true)
	AddHTTPAttributes(nil, "GET", "/health", 200)
	AddSecurityAttributes(nil, "192.0.2.1")
}
