package tracing

import (
	"time"

	"github.com/google/uuid"
)

// Span types.
const (
	SpanTypeSession = "session"
	SpanTypeStep    = "step"
	SpanTypeNotice  = "notice"
)

// Span statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// SpanData is one finished unit of walkthrough activity: a whole session
// run, the time spent on one step, or a notice raised on a step.
type SpanData struct {
	ID           uuid.UUID  `json:"id"`
	TraceID      uuid.UUID  `json:"traceId"`
	ParentSpanID *uuid.UUID `json:"parentSpanId,omitempty"`
	SpanType     string     `json:"spanType"`
	Name         string     `json:"name"`

	SessionID string `json:"sessionId,omitempty"`
	StepIndex int    `json:"stepIndex"`
	Selector  string `json:"selector,omitempty"`
	// ExitKind is the transition that ended a step span (next, back, ...).
	ExitKind string `json:"exitKind,omitempty"`

	StartTime  time.Time  `json:"startTime"`
	EndTime    *time.Time `json:"endTime,omitempty"`
	DurationMS int        `json:"durationMs"`

	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}
