package tracing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/walkthrough/pkg/walkthrough"
)

// SessionTracer turns a session's transitions into spans: one session span
// per run (start to finish or skip) with a child span per visited step.
// Notices become error spans under the current step.
type SessionTracer struct {
	collector *Collector
	sessionID string
	tourName  string
	now       func() time.Time

	mu      sync.Mutex
	traceID uuid.UUID
	runSpan uuid.UUID
	runFrom time.Time
	step    *openStep
}

type openStep struct {
	id       uuid.UUID
	index    int
	selector string
	start    time.Time
}

// NewSessionTracer creates a tracer emitting into c.
func NewSessionTracer(c *Collector, sessionID, tourName string) *SessionTracer {
	return &SessionTracer{collector: c, sessionID: sessionID, tourName: tourName, now: time.Now}
}

// Attach subscribes the tracer to s and returns the unsubscribe func.
func (t *SessionTracer) Attach(s *walkthrough.Session) func() {
	return s.Subscribe(func(tr walkthrough.Transition) { t.Observe(s, tr) })
}

// Observe records one transition.
func (t *SessionTracer) Observe(s *walkthrough.Session, tr walkthrough.Transition) {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()

	if tr.From.Active {
		t.closeStepLocked(now, string(tr.Kind))
	}
	if !tr.From.Active && tr.To.Active {
		t.traceID = uuid.New()
		t.runSpan = uuid.New()
		t.runFrom = now
	}
	if tr.From.Active && !tr.To.Active {
		t.closeRunLocked(now, string(tr.Kind))
	}
	if tr.To.Active {
		st, _ := s.Step(tr.To.Index)
		t.step = &openStep{id: uuid.New(), index: tr.To.Index, selector: st.Selector, start: now}
	}
}

// Notifier returns a notifier recording notices as error spans.
func (t *SessionTracer) Notifier() walkthrough.Notifier {
	return walkthrough.NotifierFunc(func(_ context.Context, n walkthrough.Notice) {
		now := t.now()
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.traceID == uuid.Nil {
			return
		}
		parent := t.runSpan
		if t.step != nil {
			parent = t.step.id
		}
		t.collector.EmitSpan(SpanData{
			TraceID:      t.traceID,
			ParentSpanID: &parent,
			SpanType:     SpanTypeNotice,
			Name:         string(n.Kind),
			SessionID:    t.sessionID,
			StepIndex:    n.Index,
			StartTime:    now,
			EndTime:      &now,
			Status:       StatusError,
			Error:        n.Message,
		})
	})
}

// closeStepLocked must be called with t.mu held.
func (t *SessionTracer) closeStepLocked(now time.Time, kind string) {
	if t.step == nil {
		return
	}
	parent := t.runSpan
	end := now
	t.collector.EmitSpan(SpanData{
		ID:           t.step.id,
		TraceID:      t.traceID,
		ParentSpanID: &parent,
		SpanType:     SpanTypeStep,
		Name:         fmt.Sprintf("step %d", t.step.index),
		SessionID:    t.sessionID,
		StepIndex:    t.step.index,
		Selector:     t.step.selector,
		ExitKind:     kind,
		StartTime:    t.step.start,
		EndTime:      &end,
		DurationMS:   int(now.Sub(t.step.start).Milliseconds()),
		Status:       StatusOK,
	})
	t.step = nil
}

// closeRunLocked must be called with t.mu held.
func (t *SessionTracer) closeRunLocked(now time.Time, kind string) {
	if t.runSpan == uuid.Nil {
		return
	}
	name := t.tourName
	if name == "" {
		name = "walkthrough"
	}
	end := now
	t.collector.EmitSpan(SpanData{
		ID:         t.runSpan,
		TraceID:    t.traceID,
		SpanType:   SpanTypeSession,
		Name:       name,
		SessionID:  t.sessionID,
		ExitKind:   kind,
		StartTime:  t.runFrom,
		EndTime:    &end,
		DurationMS: int(now.Sub(t.runFrom).Milliseconds()),
		Status:     StatusOK,
	})
	t.runSpan = uuid.Nil
}
