package gateway

import (
	"context"

	"github.com/nextlevelbuilder/walkthrough/internal/bus"
	"github.com/nextlevelbuilder/walkthrough/pkg/overlay"
	"github.com/nextlevelbuilder/walkthrough/pkg/protocol"
	"github.com/nextlevelbuilder/walkthrough/pkg/walkthrough"
)

// StateOf builds the state payload of s. t, when non-nil, is the
// transition that produced the state.
func StateOf(s *walkthrough.Session, tourName string, t *walkthrough.Transition) protocol.StatePayload {
	st := s.State()
	p := protocol.StatePayload{Session: s.ID(), Tour: tourName}
	if t != nil {
		st = t.To
		p.Kind = string(t.Kind)
		p.Generation = t.Generation
	}
	p.Index, p.Active, p.Total = st.Index, st.Active, st.Total
	if st.Active {
		if step, ok := s.Step(st.Index); ok {
			p.Step = &protocol.StepBrief{
				Selector:  step.Selector,
				Content:   step.Content,
				Placement: string(step.EffectivePlacement()),
			}
		}
	}
	return p
}

// Publisher puts a walkthrough's state, frames and notices on the bus.
type Publisher struct {
	bus  *bus.MessageBus
	tour string
}

func NewPublisher(b *bus.MessageBus, tourName string) *Publisher {
	return &Publisher{bus: b, tour: tourName}
}

// AttachSession publishes every transition of s and the current state.
func (p *Publisher) AttachSession(s *walkthrough.Session) (detach func()) {
	p.bus.Broadcast(bus.Event{Name: protocol.EventState, Payload: StateOf(s, p.tour, nil)})
	return s.Subscribe(func(t walkthrough.Transition) {
		p.bus.Broadcast(bus.Event{Name: protocol.EventState, Payload: StateOf(s, p.tour, &t)})
	})
}

// AttachEngine publishes every rendered frame of e.
func (p *Publisher) AttachEngine(e *overlay.Engine) (detach func()) {
	return e.Subscribe(func(f overlay.Frame) {
		p.bus.Broadcast(bus.Event{Name: protocol.EventStepFrame, Payload: f})
	})
}

// Notify implements walkthrough.Notifier.
func (p *Publisher) Notify(_ context.Context, n walkthrough.Notice) {
	p.bus.Broadcast(bus.Event{Name: protocol.EventNotice, Payload: protocol.NoticePayload{
		Kind:    string(n.Kind),
		Message: n.Message,
		Index:   n.Index,
	}})
}

// TourLoaded announces a (re)loaded tour.
func (p *Publisher) TourLoaded(path string, steps int) {
	p.bus.Broadcast(bus.Event{Name: protocol.EventTour, Payload: map[string]any{
		"name":  p.tour,
		"path":  path,
		"steps": steps,
	}})
}
