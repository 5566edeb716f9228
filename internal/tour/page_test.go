package tour

import (
	"context"
	"fmt"
	"sync"
)

// fakePage records actions and answers probes from in-memory state.
type fakePage struct {
	mu       sync.Mutex
	calls    []string
	present  map[string]bool
	texts    map[string]string
	values   map[string]string
	counts   map[string]int
	failures map[string]int // remaining failures per call key
	probeErr error
}

func newFakePage() *fakePage {
	return &fakePage{
		present:  map[string]bool{},
		texts:    map[string]string{},
		values:   map[string]string{},
		counts:   map[string]int{},
		failures: map[string]int{},
	}
}

func (p *fakePage) record(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, key)
	if p.failures[key] > 0 {
		p.failures[key]--
		return fmt.Errorf("%s: element detached", key)
	}
	return nil
}

func (p *fakePage) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakePage) set(sel string, present bool) {
	p.mu.Lock()
	p.present[sel] = present
	p.mu.Unlock()
}

func (p *fakePage) Click(_ context.Context, sel string) error {
	return p.record("click " + sel)
}

func (p *fakePage) Type(_ context.Context, sel, text string) error {
	return p.record("type " + sel + " " + text)
}

func (p *fakePage) Press(_ context.Context, key string) error {
	return p.record("press " + key)
}

func (p *fakePage) Eval(_ context.Context, js string) error {
	return p.record("eval " + js)
}

func (p *fakePage) Navigate(_ context.Context, u string) error {
	return p.record("navigate " + u)
}

func (p *fakePage) Exists(_ context.Context, sel string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.present[sel], p.probeErr
}

func (p *fakePage) Visible(ctx context.Context, sel string) (bool, error) { return p.Exists(ctx, sel) }

func (p *fakePage) Text(_ context.Context, sel string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.texts[sel], p.probeErr
}

func (p *fakePage) Value(_ context.Context, sel string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.values[sel], p.probeErr
}

func (p *fakePage) Count(_ context.Context, sel string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[sel], p.probeErr
}
