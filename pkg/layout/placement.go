package layout

import "strings"

// Placement names the side of the target the tooltip is anchored to.
type Placement string

const (
	PlacementTop    Placement = "top"
	PlacementBottom Placement = "bottom"
	PlacementLeft   Placement = "left"
	PlacementRight  Placement = "right"
	// PlacementAuto picks the first side the tooltip fits on, in the order
	// bottom, top, right, left.
	PlacementAuto Placement = "auto"
)

// ParsePlacement maps a user supplied name to a Placement. Empty or unknown
// names fall back to bottom.
func ParsePlacement(s string) Placement {
	p := Placement(strings.ToLower(strings.TrimSpace(s)))
	if p.Valid() {
		return p
	}
	return PlacementBottom
}

// Valid reports whether p is one of the known placements.
func (p Placement) Valid() bool {
	switch p {
	case PlacementTop, PlacementBottom, PlacementLeft, PlacementRight, PlacementAuto:
		return true
	}
	return false
}

// Normalize returns p, or bottom when p is empty or unknown.
func (p Placement) Normalize() Placement {
	if p.Valid() {
		return p
	}
	return PlacementBottom
}

// TooltipOrigin returns the unclamped document-space origin of a tooltip of
// size tip placed on side p of target, separated by spacing.
// PlacementAuto must be resolved by the caller (see ResolveAuto).
func TooltipOrigin(target Rect, tip Size, p Placement, spacing float64) Point {
	switch p.Normalize() {
	case PlacementTop:
		return Point{
			Top:  target.Top - tip.Height - spacing,
			Left: target.CenterX() - tip.Width/2,
		}
	case PlacementLeft:
		return Point{
			Top:  target.CenterY() - tip.Height/2,
			Left: target.Left - tip.Width - spacing,
		}
	case PlacementRight:
		return Point{
			Top:  target.CenterY() - tip.Height/2,
			Left: target.Right() + spacing,
		}
	default:
		return Point{
			Top:  target.Bottom() + spacing,
			Left: target.CenterX() - tip.Width/2,
		}
	}
}

// ClampTooltip keeps the tooltip inside the document: each axis is bounded
// to [spacing, docExtent-tipExtent-spacing].
func ClampTooltip(p Point, tip Size, doc Size, spacing float64) Point {
	return Point{
		Top:  clamp(p.Top, spacing, doc.Height-tip.Height-spacing),
		Left: clamp(p.Left, spacing, doc.Width-tip.Width-spacing),
	}
}

// ResolveAuto chooses a concrete side for PlacementAuto. Other placements
// are returned normalized.
func ResolveAuto(p Placement, target Rect, tip Size, doc Size, spacing float64) Placement {
	if p != PlacementAuto {
		return p.Normalize()
	}
	room := map[Placement]float64{
		PlacementBottom: doc.Height - target.Bottom() - spacing - tip.Height,
		PlacementTop:    target.Top - spacing - tip.Height,
		PlacementRight:  doc.Width - target.Right() - spacing - tip.Width,
		PlacementLeft:   target.Left - spacing - tip.Width,
	}
	order := []Placement{PlacementBottom, PlacementTop, PlacementRight, PlacementLeft}
	for _, side := range order {
		if room[side] >= spacing {
			return side
		}
	}
	best := PlacementBottom
	for _, side := range order {
		if room[side] > room[best] {
			best = side
		}
	}
	return best
}

// PlaceTooltip resolves p, computes the origin and clamps it to the
// document. The concrete placement used is returned alongside.
func PlaceTooltip(target Rect, tip Size, p Placement, doc Size, spacing float64) (Point, Placement) {
	side := ResolveAuto(p, target, tip, doc, spacing)
	origin := TooltipOrigin(target, tip, side, spacing)
	return ClampTooltip(origin, tip, doc, spacing), side
}
