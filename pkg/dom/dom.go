// Package dom defines the small slice of a document object model the
// walkthrough engine needs, and the polling target resolver built on it.
package dom

import (
	"context"

	"github.com/nextlevelbuilder/walkthrough/pkg/layout"
)

// Document is a queryable page.
type Document interface {
	// Query returns the first element matching selector, or (nil, nil)
	// when nothing matches yet.
	Query(ctx context.Context, selector string) (Element, error)

	// Viewport reports the current scroll offsets and sizes.
	Viewport(ctx context.Context) (Viewport, error)

	// Subscribe registers fn for scroll and resize events. The returned
	// cancel func detaches the listener and is safe to call twice.
	Subscribe(ctx context.Context, fn func(Event)) (cancel func(), err error)
}

// Element is a resolved target.
type Element interface {
	// Rect returns the element's viewport-relative bounding rectangle.
	Rect(ctx context.Context) (layout.Rect, error)

	// ScrollIntoView scrolls the document so the element is visible.
	ScrollIntoView(ctx context.Context, opts ScrollOptions) error
}

// Viewport describes scroll position and extents.
type Viewport struct {
	ScrollX float64 `json:"scrollX"`
	ScrollY float64 `json:"scrollY"`
	// Width and Height are the visible window size.
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	// Document is the full scrollable size: the larger of the root
	// element's and the body's scroll size.
	Document layout.Size `json:"document"`
}

// ScrollBlock is the vertical alignment used by ScrollIntoView.
type ScrollBlock string

const (
	BlockStart   ScrollBlock = "start"
	BlockCenter  ScrollBlock = "center"
	BlockEnd     ScrollBlock = "end"
	BlockNearest ScrollBlock = "nearest"
)

// ScrollOptions mirrors the scrollIntoView options the engine uses.
type ScrollOptions struct {
	Smooth bool
	Block  ScrollBlock
}

// EventType identifies a document event.
type EventType string

const (
	EventScroll EventType = "scroll"
	EventResize EventType = "resize"
)

// Event is delivered to Subscribe listeners.
type Event struct {
	Type EventType
}
