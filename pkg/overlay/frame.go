// Package overlay drives the visual side of a walkthrough: it follows a
// session's transitions, resolves each step's target, scrolls it into view
// and renders the highlight, backdrop and tooltip through a Renderer.
package overlay

import (
	"context"

	"github.com/nextlevelbuilder/walkthrough/pkg/layout"
	"github.com/nextlevelbuilder/walkthrough/pkg/walkthrough"
)

// Frame is one rendered state of the overlay. All rectangles are in
// document coordinates.
type Frame struct {
	Index int `json:"index"`
	Total int `json:"total"`
	// Pass is 1 for the first render of a step (tooltip size unknown) and
	// increases for every re-render.
	Pass int `json:"pass"`

	Step           walkthrough.Step  `json:"-"`
	Selector       string            `json:"selector"`
	Content        string            `json:"content"`
	TooltipClass   string            `json:"tooltipClass,omitempty"`
	TooltipStyle   map[string]string `json:"tooltipStyle,omitempty"`
	NavButtonClass string            `json:"navButtonClass,omitempty"`
	NavButtonStyle map[string]string `json:"navButtonStyle,omitempty"`

	Target      layout.Rect      `json:"target"`
	Placement   layout.Placement `json:"placement"`
	Tooltip     layout.Point     `json:"tooltip"`
	TooltipSize layout.Size      `json:"tooltipSize"`

	ShowBackdrop bool           `json:"showBackdrop"`
	Backdrop     [4]layout.Rect `json:"backdrop"`
	Document     layout.Size    `json:"document"`

	Buttons []walkthrough.NavButton `json:"buttons,omitempty"`

	First bool `json:"first"`
	Last  bool `json:"last"`
}

// Renderer draws frames. Render returns the measured size of the tooltip
// it drew; the engine re-renders when that differs from Frame.TooltipSize.
type Renderer interface {
	Render(ctx context.Context, f Frame) (layout.Size, error)
	Clear(ctx context.Context) error
}

// NopRenderer draws nothing and reports a zero tooltip size.
type NopRenderer struct{}

func (NopRenderer) Render(context.Context, Frame) (layout.Size, error) { return layout.Size{}, nil }
func (NopRenderer) Clear(context.Context) error                        { return nil }

// FixedSizeRenderer draws nothing and reports Size for every tooltip.
// Headless runs use it so placement matches a browser with a known
// tooltip size.
type FixedSizeRenderer struct {
	Size layout.Size
}

func (r FixedSizeRenderer) Render(context.Context, Frame) (layout.Size, error) { return r.Size, nil }
func (FixedSizeRenderer) Clear(context.Context) error                          { return nil }

// BuildFrame computes a frame for step at index from the target's document
// rectangle, the document size and the tooltip size.
func BuildFrame(step walkthrough.Step, index, total int, target layout.Rect, doc layout.Size, tip layout.Size, spacing float64) Frame {
	origin, side := layout.PlaceTooltip(target, tip, step.Placement, doc, spacing)
	f := Frame{
		Index:          index,
		Total:          total,
		Step:           step,
		Selector:       step.Selector,
		Content:        step.Content,
		TooltipClass:   step.TooltipClass,
		TooltipStyle:   step.TooltipStyle,
		NavButtonClass: step.NavButtonClass,
		NavButtonStyle: step.NavButtonStyle,
		Target:         target,
		Placement:      side,
		Tooltip:        origin,
		TooltipSize:    tip,
		ShowBackdrop:   step.BackdropEnabled(),
		Document:       doc,
		First:          index == 0,
		Last:           index == total-1,
	}
	if f.ShowBackdrop {
		f.Backdrop = layout.Backdrop(target, doc)
	}
	return f
}
