package otelexport

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/walkthrough/internal/tracing"
)

func TestUUIDToTraceID(t *testing.T) {
	id := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	tid := uuidToTraceID(id)
	if tid == (trace.TraceID{}) {
		t.Error("expected non-zero trace ID")
	}
	for i := range tid {
		if tid[i] != id[i] {
			t.Fatalf("byte %d: expected %02x, got %02x", i, id[i], tid[i])
		}
	}
}

func TestUUIDToSpanID(t *testing.T) {
	id := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	sid := uuidToSpanID(id)
	// SpanID is the last 8 bytes of the UUID
	for i := 0; i < 8; i++ {
		if sid[i] != id[8+i] {
			t.Errorf("byte %d: expected %02x, got %02x", i, id[8+i], sid[i])
		}
	}

	other := uuidToSpanID(uuid.MustParse("550e8400-e29b-41d4-b827-557766550001"))
	if sid == other {
		t.Error("different UUIDs should produce different span IDs")
	}
}

func TestNewRequiresEndpoint(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Error("expected error for empty endpoint")
	}
}

func TestNilExporter(t *testing.T) {
	var exp *Exporter
	exp.ExportSpans(context.Background(), []tracing.SpanData{{
		ID:        uuid.New(),
		TraceID:   uuid.New(),
		SpanType:  tracing.SpanTypeStep,
		Name:      "step 0",
		StartTime: time.Now(),
	}})
	if err := exp.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown on nil exporter: %v", err)
	}
}
