package otelexport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/walkthrough/internal/tracing"
)

// Config configures the OpenTelemetry OTLP exporter.
type Config struct {
	Endpoint    string            // OTLP endpoint (e.g. "localhost:4317")
	Protocol    string            // "grpc" (default) or "http"
	Insecure    bool              // skip TLS for local dev
	ServiceName string            // OTEL service name (default "walkthrough")
	Headers     map[string]string // extra headers (auth tokens, etc.)
	// ServiceVersion is reported as service.version (default "dev").
	ServiceVersion string
}

// Exporter converts walkthrough spans to OTel spans and exports via OTLP.
// It implements the tracing.SpanExporter interface.
type Exporter struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// New creates an OTLP exporter with the given config.
func New(ctx context.Context, cfg Config) (*Exporter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("OTLP endpoint is required")
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "walkthrough"
	}

	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = "dev"
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Protocol {
	case "http":
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(cfg.Endpoint),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	default: // "grpc"
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("otel exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxExportBatchSize(100),
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(res),
	)

	return &Exporter{
		provider: tp,
		tracer:   tp.Tracer("github.com/nextlevelbuilder/walkthrough"),
	}, nil
}

// ExportSpans converts walkthrough spans to OTel spans and exports them.
// Called by the Collector during flush.
func (e *Exporter) ExportSpans(ctx context.Context, spans []tracing.SpanData) {
	if e == nil || len(spans) == 0 {
		return
	}

	for _, s := range spans {
		e.exportSpan(ctx, s)
	}
}

func (e *Exporter) exportSpan(ctx context.Context, s tracing.SpanData) {
	traceID := uuidToTraceID(s.TraceID)

	attrs := []attribute.KeyValue{
		attribute.String("walkthrough.span_type", s.SpanType),
		attribute.Int("walkthrough.step.index", s.StepIndex),
		attribute.String("walkthrough.trace_id", s.TraceID.String()),
		attribute.String("walkthrough.span_id", s.ID.String()),
	}
	if s.SessionID != "" {
		attrs = append(attrs, attribute.String("walkthrough.session_id", s.SessionID))
	}
	if s.Selector != "" {
		attrs = append(attrs, attribute.String("walkthrough.step.selector", s.Selector))
	}
	if s.ExitKind != "" {
		attrs = append(attrs, attribute.String("walkthrough.exit_kind", s.ExitKind))
	}
	if s.DurationMS > 0 {
		attrs = append(attrs, attribute.Int("walkthrough.duration_ms", s.DurationMS))
	}

	// Parent relationship via a remote span context built from our IDs.
	parentCtx := ctx
	if s.ParentSpanID != nil {
		parentSpanCtx := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    traceID,
			SpanID:     uuidToSpanID(*s.ParentSpanID),
			TraceFlags: trace.FlagsSampled,
			Remote:     true,
		})
		parentCtx = trace.ContextWithRemoteSpanContext(parentCtx, parentSpanCtx)
	}

	_, span := e.tracer.Start(parentCtx, s.Name,
		trace.WithTimestamp(s.StartTime),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)

	if s.Status == tracing.StatusError {
		span.SetStatus(codes.Error, s.Error)
		if s.Error != "" {
			span.RecordError(errors.New(s.Error))
		}
	} else {
		span.SetStatus(codes.Ok, "")
	}

	endTime := s.StartTime.Add(time.Duration(s.DurationMS) * time.Millisecond)
	if s.EndTime != nil {
		endTime = *s.EndTime
	}
	span.End(trace.WithTimestamp(endTime))
}

// Shutdown gracefully shuts down the OTel exporter, flushing remaining spans.
func (e *Exporter) Shutdown(ctx context.Context) error {
	if e == nil {
		return nil
	}
	slog.Info("otel exporter shutting down")
	return e.provider.Shutdown(ctx)
}

// uuidToTraceID converts a UUID to an OTel TraceID (16 bytes).
func uuidToTraceID(id [16]byte) trace.TraceID {
	return trace.TraceID(id)
}

// uuidToSpanID converts a UUID to an OTel SpanID (8 bytes, uses last 8 bytes of UUID).
func uuidToSpanID(id [16]byte) trace.SpanID {
	var sid trace.SpanID
	copy(sid[:], id[8:16])
	return sid
}
