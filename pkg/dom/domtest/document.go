// Package domtest provides an in-memory dom.Document for tests.
package domtest

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/nextlevelbuilder/walkthrough/pkg/dom"
	"github.com/nextlevelbuilder/walkthrough/pkg/layout"
)

// Document is a fake page. Elements are keyed by the exact selector string
// they were added under; the first element added for a selector wins.
type Document struct {
	mu        sync.Mutex
	elements  map[string][]*Element
	viewport  dom.Viewport
	listeners map[int]func(dom.Event)
	nextID    int
	queries   map[string]int
	scrolls   []ScrollCall
	queryErr  error
}

// ScrollCall records one ScrollIntoView invocation.
type ScrollCall struct {
	Selector string
	Opts     dom.ScrollOptions
}

// New returns a document with the given window and document sizes.
func New(width, height float64, doc layout.Size) *Document {
	return &Document{
		elements:  make(map[string][]*Element),
		listeners: make(map[int]func(dom.Event)),
		queries:   make(map[string]int),
		viewport: dom.Viewport{
			Width:    width,
			Height:   height,
			Document: doc,
		},
	}
}

// Add inserts an element at a document-space rectangle.
func (d *Document) Add(selector string, rect layout.Rect) *Element {
	el := &Element{doc: d, selector: selector, rect: rect}
	d.mu.Lock()
	d.elements[selector] = append(d.elements[selector], el)
	d.mu.Unlock()
	return el
}

// Remove deletes every element registered under selector.
func (d *Document) Remove(selector string) {
	d.mu.Lock()
	delete(d.elements, selector)
	d.mu.Unlock()
}

// FailQueries makes every subsequent Query return err (nil clears it).
func (d *Document) FailQueries(err error) {
	d.mu.Lock()
	d.queryErr = err
	d.mu.Unlock()
}

// ScrollTo sets the scroll offsets and fires a scroll event.
func (d *Document) ScrollTo(x, y float64) {
	d.mu.Lock()
	d.viewport.ScrollX, d.viewport.ScrollY = x, y
	d.mu.Unlock()
	d.Fire(dom.EventScroll)
}

// Resize changes the window and document sizes and fires a resize event.
func (d *Document) Resize(width, height float64, doc layout.Size) {
	d.mu.Lock()
	d.viewport.Width, d.viewport.Height = width, height
	d.viewport.Document = doc
	d.mu.Unlock()
	d.Fire(dom.EventResize)
}

// Fire delivers an event to every listener.
func (d *Document) Fire(t dom.EventType) {
	d.mu.Lock()
	fns := make([]func(dom.Event), 0, len(d.listeners))
	for _, fn := range d.listeners {
		fns = append(fns, fn)
	}
	d.mu.Unlock()
	for _, fn := range fns {
		fn(dom.Event{Type: t})
	}
}

// Listeners returns the number of attached listeners.
func (d *Document) Listeners() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.listeners)
}

// Queries returns how many times selector was queried.
func (d *Document) Queries(selector string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queries[selector]
}

// Scrolls returns the recorded ScrollIntoView calls.
func (d *Document) Scrolls() []ScrollCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]ScrollCall, len(d.scrolls))
	copy(out, d.scrolls)
	return out
}

func (d *Document) Query(ctx context.Context, selector string) (dom.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queries[selector]++
	if d.queryErr != nil {
		return nil, d.queryErr
	}
	els := d.elements[selector]
	if len(els) == 0 {
		return nil, nil
	}
	return els[0], nil
}

func (d *Document) Viewport(ctx context.Context) (dom.Viewport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.viewport, nil
}

func (d *Document) Subscribe(ctx context.Context, fn func(dom.Event)) (func(), error) {
	if fn == nil {
		return nil, errors.New("domtest: nil listener")
	}
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.listeners[id] = fn
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.listeners, id)
			d.mu.Unlock()
		})
	}, nil
}

// Element is a fake element positioned in document space.
type Element struct {
	doc      *Document
	selector string

	mu   sync.Mutex
	rect layout.Rect
}

// Move repositions the element (document space).
func (e *Element) Move(rect layout.Rect) {
	e.mu.Lock()
	e.rect = rect
	e.mu.Unlock()
}

func (e *Element) docRect() layout.Rect {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rect
}

func (e *Element) Rect(ctx context.Context) (layout.Rect, error) {
	vp, _ := e.doc.Viewport(ctx)
	return e.docRect().Translate(-vp.ScrollX, -vp.ScrollY), nil
}

// ScrollIntoView jumps so the element is centered vertically, clamped to
// the scrollable range. Smooth scrolling is recorded but not animated.
func (e *Element) ScrollIntoView(ctx context.Context, opts dom.ScrollOptions) error {
	r := e.docRect()
	d := e.doc

	d.mu.Lock()
	d.scrolls = append(d.scrolls, ScrollCall{Selector: e.selector, Opts: opts})
	vp := d.viewport
	d.mu.Unlock()

	y := vp.ScrollY
	switch opts.Block {
	case dom.BlockStart:
		y = r.Top
	case dom.BlockEnd:
		y = r.Bottom() - vp.Height
	default:
		y = r.CenterY() - vp.Height/2
	}
	maxY := math.Max(vp.Document.Height-vp.Height, 0)
	y = math.Max(0, math.Min(y, maxY))
	d.ScrollTo(vp.ScrollX, y)
	return nil
}
