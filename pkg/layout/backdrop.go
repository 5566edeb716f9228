package layout

import "math"

// Band indexes into the slice returned by Backdrop.
const (
	BandAbove = iota
	BandLeft
	BandRight
	BandBelow
)

// Backdrop returns the four bands that darken the document around target:
// above (full width), left and right (target height) and below (full
// width). The target is first clipped to the document box, so the bands
// tile the box minus the target with no gaps and no overlap. Bands may be
// empty when the target touches an edge.
func Backdrop(target Rect, doc Size) [4]Rect {
	box := Rect{Width: math.Max(doc.Width, 0), Height: math.Max(doc.Height, 0)}
	hole := target.Intersect(box)
	if hole.Empty() {
		return [4]Rect{
			BandAbove: box,
		}
	}

	var bands [4]Rect
	bands[BandAbove] = Rect{Top: 0, Left: 0, Width: box.Width, Height: hole.Top}
	bands[BandLeft] = Rect{Top: hole.Top, Left: 0, Width: hole.Left, Height: hole.Height}
	bands[BandRight] = Rect{
		Top:    hole.Top,
		Left:   hole.Right(),
		Width:  box.Width - hole.Right(),
		Height: hole.Height,
	}
	bands[BandBelow] = Rect{
		Top:    hole.Bottom(),
		Left:   0,
		Width:  box.Width,
		Height: box.Height - hole.Bottom(),
	}
	return bands
}
