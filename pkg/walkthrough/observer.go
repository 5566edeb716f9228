package walkthrough

import (
	"log/slog"
	"sync/atomic"
)

// LoggingObserver returns a Subscribe callback that logs every transition.
// If logger is nil, slog.Default() is used.
func LoggingObserver(logger *slog.Logger, sessionID string) func(Transition) {
	if logger == nil {
		logger = slog.Default()
	}
	return func(t Transition) {
		logger.Info("walkthrough_transition",
			slog.String("session", sessionID),
			slog.String("kind", string(t.Kind)),
			slog.Int("from", t.From.Index),
			slog.Int("to", t.To.Index),
			slog.Bool("active", t.To.Active),
			slog.Uint64("generation", t.Generation),
		)
	}
}

// Counters tallies transitions by kind. Attach it with
// session.Subscribe(c.Observe).
type Counters struct {
	starts   atomic.Int64
	nexts    atomic.Int64
	backs    atomic.Int64
	skips    atomic.Int64
	finishes atomic.Int64
	jumps    atomic.Int64
}

// CountersSnapshot is an immutable copy of Counters.
type CountersSnapshot struct {
	Starts   int64 `json:"starts"`
	Nexts    int64 `json:"nexts"`
	Backs    int64 `json:"backs"`
	Skips    int64 `json:"skips"`
	Finishes int64 `json:"finishes"`
	Jumps    int64 `json:"jumps"`
}

func (c *Counters) Observe(t Transition) {
	switch t.Kind {
	case KindStart:
		c.starts.Add(1)
	case KindNext:
		c.nexts.Add(1)
	case KindBack:
		c.backs.Add(1)
	case KindSkip:
		c.skips.Add(1)
	case KindFinish:
		c.finishes.Add(1)
	case KindGoTo:
		c.jumps.Add(1)
	}
}

func (c *Counters) Snapshot() CountersSnapshot {
	return CountersSnapshot{
		Starts:   c.starts.Load(),
		Nexts:    c.nexts.Load(),
		Backs:    c.backs.Load(),
		Skips:    c.skips.Load(),
		Finishes: c.finishes.Load(),
		Jumps:    c.jumps.Load(),
	}
}
