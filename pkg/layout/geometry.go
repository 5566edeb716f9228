// Package layout computes highlight, tooltip and backdrop geometry for a
// walkthrough step. All values are in CSS pixels.
package layout

import "math"

// DefaultSpacing is the gap between a target and its tooltip.
const DefaultSpacing = 10.0

// Point is a document-space position.
type Point struct {
	Top  float64 `json:"top"`
	Left float64 `json:"left"`
}

// Size is a width/height pair.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect is an axis-aligned rectangle anchored at its top-left corner.
type Rect struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Rect) Bottom() float64  { return r.Top + r.Height }
func (r Rect) Right() float64   { return r.Left + r.Width }
func (r Rect) CenterX() float64 { return r.Left + r.Width/2 }
func (r Rect) CenterY() float64 { return r.Top + r.Height/2 }
func (r Rect) Size() Size       { return Size{Width: r.Width, Height: r.Height} }

// Area returns the rectangle's area; degenerate rectangles have none.
func (r Rect) Area() float64 {
	if r.Empty() {
		return 0
	}
	return r.Width * r.Height
}

// Empty reports whether the rectangle covers no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Contains reports whether (x, y) lies inside r. Right and bottom edges are
// exclusive.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.Left && x < r.Right() && y >= r.Top && y < r.Bottom()
}

// Intersect returns the overlap of r and o, or the zero Rect.
func (r Rect) Intersect(o Rect) Rect {
	top := math.Max(r.Top, o.Top)
	left := math.Max(r.Left, o.Left)
	bottom := math.Min(r.Bottom(), o.Bottom())
	right := math.Min(r.Right(), o.Right())
	if bottom <= top || right <= left {
		return Rect{}
	}
	return Rect{Top: top, Left: left, Width: right - left, Height: bottom - top}
}

// Translate shifts r by (dx, dy).
func (r Rect) Translate(dx, dy float64) Rect {
	r.Left += dx
	r.Top += dy
	return r
}

// ToDocument converts a viewport-relative rectangle (getBoundingClientRect)
// into document space using the current scroll offsets.
func ToDocument(viewport Rect, scrollX, scrollY float64) Rect {
	return viewport.Translate(scrollX, scrollY)
}

// clamp bounds v to [lo, hi]; when the range is empty lo wins.
func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
