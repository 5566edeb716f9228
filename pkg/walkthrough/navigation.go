package walkthrough

import (
	"context"
	"fmt"
)

// Controls is the navigation surface handed to renderers.
type Controls interface {
	Next(ctx context.Context) error
	Back(ctx context.Context)
	Skip(ctx context.Context)
	Finish(ctx context.Context)
	GoToStep(ctx context.Context, index int)
}

// Action is what a navigation button does when pressed.
type Action string

const (
	ActionNext   Action = "next"
	ActionBack   Action = "back"
	ActionSkip   Action = "skip"
	ActionFinish Action = "finish"
	ActionGoTo   Action = "goto"
)

// NavButton is one rendered navigation control.
type NavButton struct {
	Action   Action `json:"action"`
	Label    string `json:"label"`
	Disabled bool   `json:"disabled,omitempty"`
	// Target is the step index for ActionGoTo.
	Target int `json:"target,omitempty"`
}

// NavContext is what a NavigationRenderer sees.
type NavContext struct {
	Controls Controls
	Index    int
	Total    int
}

func (n NavContext) First() bool { return n.Index == 0 }
func (n NavContext) Last() bool  { return n.Index == n.Total-1 }

// NavigationRenderer produces the navigation controls for a step.
type NavigationRenderer interface {
	Buttons(nav NavContext) []NavButton
}

// NavigationFunc adapts a function to NavigationRenderer.
type NavigationFunc func(nav NavContext) []NavButton

func (f NavigationFunc) Buttons(nav NavContext) []NavButton { return f(nav) }

// DefaultNavigation renders Back, Next (Finish on the last step) and Skip.
var DefaultNavigation NavigationRenderer = NavigationFunc(func(nav NavContext) []NavButton {
	next := NavButton{Action: ActionNext, Label: "Next"}
	if nav.Last() {
		next.Label = "Finish"
	}
	return []NavButton{
		{Action: ActionBack, Label: "Back", Disabled: nav.First()},
		next,
		{Action: ActionSkip, Label: "Skip"},
	}
})

// CompactNavigation renders only Next and Skip.
var CompactNavigation NavigationRenderer = NavigationFunc(func(nav NavContext) []NavButton {
	label := "Next"
	if nav.Last() {
		label = "Done"
	}
	return []NavButton{
		{Action: ActionNext, Label: label},
		{Action: ActionSkip, Label: "Skip"},
	}
})

// NoNavigation renders nothing; the step is driven by the host.
var NoNavigation NavigationRenderer = NavigationFunc(func(NavContext) []NavButton { return nil })

// NavigationFor returns the step's renderer or DefaultNavigation.
func NavigationFor(s Step) NavigationRenderer {
	if s.Navigation != nil {
		return s.Navigation
	}
	return DefaultNavigation
}

// Invoke performs a button's action on c. Disabled buttons do nothing.
func Invoke(ctx context.Context, c Controls, b NavButton) error {
	if b.Disabled {
		return nil
	}
	switch b.Action {
	case ActionNext:
		return c.Next(ctx)
	case ActionBack:
		c.Back(ctx)
	case ActionSkip:
		c.Skip(ctx)
	case ActionFinish:
		c.Finish(ctx)
	case ActionGoTo:
		c.GoToStep(ctx, b.Target)
	default:
		return fmt.Errorf("unknown navigation action %q", b.Action)
	}
	return nil
}
