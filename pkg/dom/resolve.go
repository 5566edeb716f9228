package dom

import (
	"context"
	"fmt"
	"time"
)

const (
	DefaultResolveTimeout  = 5 * time.Second
	DefaultResolveInterval = 100 * time.Millisecond
)

// ResolveOptions bounds the wait in Resolve. Zero values use the defaults.
type ResolveOptions struct {
	Timeout  time.Duration
	Interval time.Duration
}

func (o ResolveOptions) withDefaults() ResolveOptions {
	if o.Timeout <= 0 {
		o.Timeout = DefaultResolveTimeout
	}
	if o.Interval <= 0 {
		o.Interval = DefaultResolveInterval
	}
	return o
}

// TargetNotFoundError is returned when a selector does not match anything
// before the timeout.
type TargetNotFoundError struct {
	Selector string
	Timeout  time.Duration
}

func (e *TargetNotFoundError) Error() string {
	return fmt.Sprintf("selector %q not found within %s", e.Selector, e.Timeout)
}

// Resolve polls doc for selector every opts.Interval until it matches or
// opts.Timeout elapses. Cancelling ctx abandons the wait and returns the
// context error; no query is issued after that.
func Resolve(ctx context.Context, doc Document, selector string, opts ResolveOptions) (Element, error) {
	opts = opts.withDefaults()
	deadline := time.Now().Add(opts.Timeout)

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		el, err := doc.Query(ctx, selector)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("query %q: %w", selector, err)
		}
		if el != nil {
			return el, nil
		}
		if !time.Now().Before(deadline) {
			return nil, &TargetNotFoundError{Selector: selector, Timeout: opts.Timeout}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
