package tracing

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultFlushInterval = 5 * time.Second
	defaultBufferSize    = 1000
	defaultKeepRecent    = 200
)

// SpanExporter is implemented by backends that receive finished spans
// (e.g. OpenTelemetry OTLP). The OTel dependency lives in the otelexport
// sub-package so builds without the otel tag do not link it.
type SpanExporter interface {
	ExportSpans(ctx context.Context, spans []SpanData)
	Shutdown(ctx context.Context) error
}

// Collector buffers spans in memory and periodically flushes them to the
// exporter in batches. The most recent spans are kept for inspection.
type Collector struct {
	spanCh chan SpanData
	stopCh chan struct{}
	wg     sync.WaitGroup

	recentMu sync.Mutex
	recent   []SpanData
	keep     int

	verbose  bool         // when true, spans are also logged at debug level
	exporter SpanExporter // optional external exporter (nil = disabled)
}

// NewCollector creates a collector.
// Set WALKTHROUGH_TRACE_VERBOSE=1 to log every span.
func NewCollector() *Collector {
	verbose := os.Getenv("WALKTHROUGH_TRACE_VERBOSE") != ""
	if verbose {
		slog.Info("tracing: verbose mode enabled (WALKTHROUGH_TRACE_VERBOSE)")
	}
	return &Collector{
		spanCh:  make(chan SpanData, defaultBufferSize),
		stopCh:  make(chan struct{}),
		keep:    defaultKeepRecent,
		verbose: verbose,
	}
}

// SetExporter attaches an external span exporter.
func (c *Collector) SetExporter(exp SpanExporter) {
	c.exporter = exp
}

// Start begins the background flush loop.
func (c *Collector) Start() {
	c.wg.Add(1)
	go c.flushLoop(defaultFlushInterval)
	slog.Info("tracing collector started")
}

// Stop gracefully shuts down the collector, flushing remaining spans.
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()

	if c.exporter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.exporter.Shutdown(ctx); err != nil {
			slog.Warn("tracing: span exporter shutdown failed", "error", err)
		}
	}

	slog.Info("tracing collector stopped")
}

// EmitSpan enqueues a finished span.
// Non-blocking: drops the span if the buffer is full.
func (c *Collector) EmitSpan(span SpanData) {
	if span.ID == uuid.Nil {
		span.ID = uuid.New()
	}
	if span.Status == "" {
		span.Status = StatusOK
	}

	select {
	case c.spanCh <- span:
	default:
		slog.Warn("tracing: span buffer full, dropping span",
			"span_type", span.SpanType, "name", span.Name)
	}
}

// Recent returns the most recently flushed spans, oldest first.
func (c *Collector) Recent() []SpanData {
	c.recentMu.Lock()
	defer c.recentMu.Unlock()
	return append([]SpanData(nil), c.recent...)
}

// Flush drains buffered spans now.
func (c *Collector) Flush() { c.flush() }

func (c *Collector) flushLoop(interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.flush()
		case <-c.stopCh:
			c.flush()
			return
		}
	}
}

func (c *Collector) flush() {
	var spans []SpanData
drain:
	for {
		select {
		case span := <-c.spanCh:
			spans = append(spans, span)
		default:
			break drain
		}
	}
	if len(spans) == 0 {
		return
	}

	c.recentMu.Lock()
	c.recent = append(c.recent, spans...)
	if over := len(c.recent) - c.keep; over > 0 {
		c.recent = append([]SpanData(nil), c.recent[over:]...)
	}
	c.recentMu.Unlock()

	if c.verbose {
		for _, s := range spans {
			slog.Debug("tracing: span",
				"type", s.SpanType, "name", s.Name, "step", s.StepIndex,
				"duration_ms", s.DurationMS, "status", s.Status)
		}
	}

	if c.exporter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		c.exporter.ExportSpans(ctx, spans)
	}
	slog.Debug("tracing: flushed spans", "count", len(spans))
}
