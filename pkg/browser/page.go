package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/nextlevelbuilder/walkthrough/pkg/dom"
	"github.com/nextlevelbuilder/walkthrough/pkg/layout"
)

const (
	eventBinding = "__walkthroughEvent"
	maxConsole   = 500
)

// Page is one browser tab. It implements dom.Document, and the action and
// probe sets tour hooks run against.
type Page struct {
	page   *rod.Page
	logger *slog.Logger

	// ActionTimeout bounds waiting for an element in Click and Type.
	ActionTimeout time.Duration

	mu        sync.Mutex
	listeners map[int]func(dom.Event)
	nextID    int
	exposed   bool
	console   []ConsoleMessage
}

func newPage(rp *rod.Page, logger *slog.Logger) *Page {
	p := &Page{
		page:          rp,
		logger:        logger,
		ActionTimeout: 5 * time.Second,
		listeners:     make(map[int]func(dom.Event)),
	}
	p.setupConsoleListener()
	return p
}

// TargetID returns the DevTools target ID of the tab.
func (p *Page) TargetID() string { return string(p.page.TargetID) }

// Rod returns the underlying rod page.
func (p *Page) Rod() *rod.Page { return p.page }

// --- dom.Document ---

// Query returns the first element matching selector without waiting.
func (p *Page) Query(ctx context.Context, selector string) (dom.Element, error) {
	has, el, err := p.page.Context(ctx).Has(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	if !has {
		return nil, nil
	}
	return &element{el: el}, nil
}

const viewportJS = `() => {
	const de = document.documentElement, b = document.body || de;
	return {
		scrollX: window.scrollX, scrollY: window.scrollY,
		width: window.innerWidth, height: window.innerHeight,
		docWidth: Math.max(de.scrollWidth, b.scrollWidth),
		docHeight: Math.max(de.scrollHeight, b.scrollHeight),
	};
}`

// Viewport reads the scroll offsets and window and document sizes.
func (p *Page) Viewport(ctx context.Context) (dom.Viewport, error) {
	res, err := p.page.Context(ctx).Eval(viewportJS)
	if err != nil {
		return dom.Viewport{}, fmt.Errorf("read viewport: %w", err)
	}
	v := res.Value
	return dom.Viewport{
		ScrollX: v.Get("scrollX").Num(),
		ScrollY: v.Get("scrollY").Num(),
		Width:   v.Get("width").Num(),
		Height:  v.Get("height").Num(),
		Document: layout.Size{
			Width:  v.Get("docWidth").Num(),
			Height: v.Get("docHeight").Num(),
		},
	}, nil
}

const listenJS = `(binding) => {
	if (window.__walkthroughListening) return;
	window.__walkthroughListening = true;
	const send = (type) => { if (window[binding]) window[binding]({type}); };
	window.addEventListener('scroll', () => send('scroll'), {passive: true, capture: true});
	window.addEventListener('resize', () => send('resize'));
}`

// Subscribe forwards window scroll and resize events to fn. Listeners are
// reinstalled after navigation.
func (p *Page) Subscribe(ctx context.Context, fn func(dom.Event)) (func(), error) {
	if fn == nil {
		return nil, errors.New("browser: nil listener")
	}
	if err := p.ensureEventBinding(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}, nil
}

func (p *Page) ensureEventBinding(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exposed {
		return nil
	}

	_, err := p.page.Expose(eventBinding, func(j gson.JSON) (any, error) {
		ev := dom.Event{Type: dom.EventType(j.Get("type").Str())}
		p.mu.Lock()
		fns := make([]func(dom.Event), 0, len(p.listeners))
		for _, fn := range p.listeners {
			fns = append(fns, fn)
		}
		p.mu.Unlock()
		for _, fn := range fns {
			fn(ev)
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("expose event binding: %w", err)
	}
	install := fmt.Sprintf("(%s)(%q)", listenJS, eventBinding)
	if _, err := p.page.EvalOnNewDocument(install); err != nil {
		return fmt.Errorf("install listeners: %w", err)
	}
	if _, err := p.page.Context(ctx).Eval(listenJS, eventBinding); err != nil {
		return fmt.Errorf("install listeners: %w", err)
	}
	p.exposed = true
	return nil
}

// element adapts a rod element to dom.Element.
type element struct {
	el *rod.Element
}

const rectJS = `function() {
	const r = this.getBoundingClientRect();
	return {left: r.left, top: r.top, width: r.width, height: r.height};
}`

func (e *element) Rect(ctx context.Context) (layout.Rect, error) {
	res, err := e.el.Context(ctx).Eval(rectJS)
	if err != nil {
		return layout.Rect{}, fmt.Errorf("measure element: %w", err)
	}
	v := res.Value
	return layout.Rect{
		Left:   v.Get("left").Num(),
		Top:    v.Get("top").Num(),
		Width:  v.Get("width").Num(),
		Height: v.Get("height").Num(),
	}, nil
}

const scrollJS = `function(smooth, block) {
	this.scrollIntoView({behavior: smooth ? 'smooth' : 'auto', block: block || 'center', inline: 'nearest'});
}`

func (e *element) ScrollIntoView(ctx context.Context, opts dom.ScrollOptions) error {
	if _, err := e.el.Context(ctx).Eval(scrollJS, opts.Smooth, string(opts.Block)); err != nil {
		return fmt.Errorf("scroll into view: %w", err)
	}
	return nil
}

// --- probes ---

func (p *Page) find(ctx context.Context, selector string) (*rod.Element, error) {
	has, el, err := p.page.Context(ctx).Has(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	if !has {
		return nil, nil
	}
	return el.Context(ctx), nil
}

// Exists reports whether selector matches now.
func (p *Page) Exists(ctx context.Context, selector string) (bool, error) {
	el, err := p.find(ctx, selector)
	return el != nil, err
}

// Text returns the trimmed text of the first match, "" when none.
func (p *Page) Text(ctx context.Context, selector string) (string, error) {
	el, err := p.find(ctx, selector)
	if el == nil || err != nil {
		return "", err
	}
	s, err := el.Text()
	return strings.TrimSpace(s), err
}

// Value returns the value property of the first match, "" when none.
func (p *Page) Value(ctx context.Context, selector string) (string, error) {
	el, err := p.find(ctx, selector)
	if el == nil || err != nil {
		return "", err
	}
	v, err := el.Property("value")
	if err != nil {
		return "", err
	}
	if v.Nil() {
		return "", nil
	}
	return v.Str(), nil
}

// Visible reports whether the first match is rendered and visible.
func (p *Page) Visible(ctx context.Context, selector string) (bool, error) {
	el, err := p.find(ctx, selector)
	if el == nil || err != nil {
		return false, err
	}
	return el.Visible()
}

// Count returns the number of matches.
func (p *Page) Count(ctx context.Context, selector string) (int, error) {
	els, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return 0, fmt.Errorf("query %q: %w", selector, err)
	}
	return len(els), nil
}

// --- capture ---

// Screenshot captures the visible viewport, or the whole page, as PNG.
func (p *Page) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	return p.page.Context(ctx).Screenshot(fullPage, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

// ConsoleMessages returns and clears the captured console messages.
func (p *Page) ConsoleMessages() []ConsoleMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.console
	p.console = nil
	if out == nil {
		return []ConsoleMessage{}
	}
	return out
}

// setupConsoleListener records console output of the page, keeping the
// most recent maxConsole messages.
func (p *Page) setupConsoleListener() {
	go p.page.EachEvent(func(e *proto.RuntimeConsoleAPICalled) {
		var parts []string
		for _, arg := range e.Args {
			s := arg.Value.String()
			if s != "" && s != "null" {
				parts = append(parts, s)
			}
		}

		level := "log"
		switch e.Type {
		case proto.RuntimeConsoleAPICalledTypeWarning:
			level = "warn"
		case proto.RuntimeConsoleAPICalledTypeError:
			level = "error"
		case proto.RuntimeConsoleAPICalledTypeInfo:
			level = "info"
		}
		if level == "error" {
			p.logger.Debug("page console error", "text", strings.Join(parts, " "))
		}

		p.mu.Lock()
		if len(p.console) >= maxConsole {
			p.console = p.console[1:]
		}
		p.console = append(p.console, ConsoleMessage{Level: level, Text: strings.Join(parts, " ")})
		p.mu.Unlock()
	})()
}
