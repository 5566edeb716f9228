package bus

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer coalesces bursts of triggers per key and calls flushFn once
// the key has been quiet for the window (trailing edge).
type Debouncer struct {
	window  time.Duration
	mu      sync.Mutex
	pending map[string]*debounceEntry
	flushFn func(key string)
	stopped bool
}

type debounceEntry struct {
	count int
	timer *time.Timer
}

// NewDebouncer creates a debouncer with the given window and flush callback.
// If window <= 0, triggers are flushed immediately (debouncing disabled).
func NewDebouncer(window time.Duration, flushFn func(key string)) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]*debounceEntry),
		flushFn: flushFn,
	}
}

// Trigger schedules a flush of key, pushing back any pending one.
func (d *Debouncer) Trigger(key string) {
	if d.window <= 0 {
		d.mu.Lock()
		stopped := d.stopped
		d.mu.Unlock()
		if !stopped {
			d.flushFn(key)
		}
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	e, ok := d.pending[key]
	if !ok {
		e = &debounceEntry{}
		d.pending[key] = e
	}
	e.count++

	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(d.window, func() {
		d.flushKey(key, e)
	})
}

// Flush runs any pending flush for key now.
func (d *Debouncer) Flush(key string) {
	d.mu.Lock()
	e, ok := d.pending[key]
	d.mu.Unlock()
	if ok {
		d.flushKey(key, e)
	}
}

// Cancel drops any pending flush for key.
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.pending[key]; ok {
		e.timer.Stop()
		delete(d.pending, key)
	}
}

// Stop drops all pending flushes; later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for k, e := range d.pending {
		e.timer.Stop()
		delete(d.pending, k)
	}
}

func (d *Debouncer) flushKey(key string, e *debounceEntry) {
	d.mu.Lock()
	cur, ok := d.pending[key]
	if !ok || cur != e || d.stopped {
		d.mu.Unlock()
		return
	}
	e.timer.Stop()
	count := e.count
	delete(d.pending, key)
	d.mu.Unlock()

	if count > 1 {
		slog.Debug("debounce: coalesced triggers", "key", key, "count", count)
	}
	d.flushFn(key)
}
