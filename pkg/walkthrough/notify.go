package walkthrough

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/nextlevelbuilder/walkthrough/internal/bus"
)

// NoticeKind classifies a user-facing notice.
type NoticeKind string

const (
	NoticeGateRejected     NoticeKind = "gate_rejected"
	NoticeBeforeNextFailed NoticeKind = "before_next_failed"
	NoticeTargetNotFound   NoticeKind = "target_not_found"
	NoticeActionFailed     NoticeKind = "action_failed"
)

// Notice is a human-readable message for the user.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
	Index   int        `json:"index"`
	Err     error      `json:"-"`
}

// Notifier is the side channel for recoverable failures: rejected gates,
// unresolved targets and failing hooks.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notice)

func (f NotifierFunc) Notify(ctx context.Context, n Notice) { f(ctx, n) }

// LogNotifier writes notices as slog warnings. It is the default.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) Notify(ctx context.Context, n Notice) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{"kind", n.Kind, "step", n.Index}
	if n.Err != nil {
		attrs = append(attrs, "error", n.Err)
	}
	logger.WarnContext(ctx, n.Message, attrs...)
}

// MultiNotifier fans a notice out to every non-nil notifier.
func MultiNotifier(ns ...Notifier) Notifier {
	filtered := make([]Notifier, 0, len(ns))
	for _, n := range ns {
		if n != nil {
			filtered = append(filtered, n)
		}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return NotifierFunc(func(ctx context.Context, n Notice) {
		for _, f := range filtered {
			f.Notify(ctx, n)
		}
	})
}

// DedupeNotifier drops a notice identical (kind, step, message) to one
// forwarded within ttl. Retries are never blocked; only the repeated
// message is collapsed.
func DedupeNotifier(next Notifier, ttl time.Duration) Notifier {
	if ttl <= 0 {
		return next
	}
	cache := bus.NewDedupeCache(ttl, 256)
	return NotifierFunc(func(ctx context.Context, n Notice) {
		if cache.IsDuplicate(noticeKey(n)) {
			return
		}
		next.Notify(ctx, n)
	})
}

func noticeKey(n Notice) string {
	return string(n.Kind) + "\x00" + strconv.Itoa(n.Index) + "\x00" + n.Message
}
