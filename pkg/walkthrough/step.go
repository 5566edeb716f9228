package walkthrough

import (
	"context"

	"github.com/nextlevelbuilder/walkthrough/pkg/layout"
)

// DefaultGateMessage is shown when a gate rejects Next without its own
// message.
const DefaultGateMessage = "Complete this step to continue!"

// Step describes one stop of a walkthrough. Steps are copied into the
// session on construction and never mutated afterwards.
type Step struct {
	// Selector identifies the target element; the first match wins.
	Selector string
	// Content is the tooltip body, markup or plain text.
	Content string
	// Placement is the tooltip side. Empty or unknown means bottom.
	Placement layout.Placement
	// ShowBackdrop dims the page around the target. nil means true.
	ShowBackdrop *bool

	TooltipClass   string
	TooltipStyle   map[string]string
	NavButtonClass string
	NavButtonStyle map[string]string

	// Navigation replaces the default next/back/skip buttons.
	Navigation NavigationRenderer

	// OnEnter runs synchronously once per entry into the step, after the
	// index has been committed.
	OnEnter func(ctx context.Context, ev StepEvent)
	// OnExit runs synchronously once when the step is left, whatever the
	// transition.
	OnExit func(ctx context.Context, ev StepEvent)

	// BeforeNext runs before the gate on every Next call. It may block.
	// A non-nil error aborts the transition.
	BeforeNext func(ctx context.Context) error
	// CanGoNext must pass before Next commits.
	CanGoNext *Gate
}

// BackdropEnabled reports the effective ShowBackdrop value.
func (s Step) BackdropEnabled() bool {
	return s.ShowBackdrop == nil || *s.ShowBackdrop
}

// EffectivePlacement returns the normalized placement.
func (s Step) EffectivePlacement() layout.Placement {
	return s.Placement.Normalize()
}

// Gate is a predicate that must hold before advancing. Validate may block;
// returning false (or an error) keeps the session on the current step and
// reports ErrorString, or DefaultGateMessage when it is empty.
type Gate struct {
	Validate    func(ctx context.Context) (bool, error)
	ErrorString string
}

// Message returns the user-visible rejection message.
func (g *Gate) Message() string {
	if g == nil || g.ErrorString == "" {
		return DefaultGateMessage
	}
	return g.ErrorString
}

// Bool returns a pointer to b, for Step.ShowBackdrop.
func Bool(b bool) *bool { return &b }

// StepEvent is passed to OnEnter and OnExit.
type StepEvent struct {
	Index int
	Total int
	Step  Step
	Kind  TransitionKind
}
