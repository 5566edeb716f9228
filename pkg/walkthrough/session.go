// Package walkthrough implements the step navigation state machine of a
// guided tour: an ordered list of steps, a current index and an active
// flag, moved by Start, Next, Back, Skip, Finish and GoToStep.
//
// A Session is an explicit object; hosts pass it to whatever renders the
// overlay and whatever exposes controls. All methods are safe for
// concurrent use. Step hooks run outside the session lock and may call
// back into the session.
package walkthrough

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// TransitionKind names the operation that produced a transition.
type TransitionKind string

const (
	KindStart  TransitionKind = "start"
	KindNext   TransitionKind = "next"
	KindBack   TransitionKind = "back"
	KindSkip   TransitionKind = "skip"
	KindFinish TransitionKind = "finish"
	KindGoTo   TransitionKind = "goto"
)

// State is the navigation state. Index is always in [0, Total) while
// Active, and 0 after Finish.
type State struct {
	Index  int  `json:"index"`
	Active bool `json:"active"`
	Total  int  `json:"total"`
}

// Transition is published to subscribers after every committed change.
// Generation increases by one per transition; a consumer holding an older
// generation is looking at stale state.
type Transition struct {
	Kind       TransitionKind `json:"kind"`
	From       State          `json:"from"`
	To         State          `json:"to"`
	Generation uint64         `json:"generation"`
}

// Option configures a Session.
type Option func(*Session)

// WithNotifier sets the notice sink (default LogNotifier).
func WithNotifier(n Notifier) Option {
	return func(s *Session) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithID overrides the generated session ID.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// Session owns the navigation state of one walkthrough.
type Session struct {
	id       string
	steps    []Step
	notifier Notifier
	logger   *slog.Logger

	mu        sync.Mutex
	index     int
	active    bool
	gen       uint64
	advancing bool
	closed    bool
	subs      map[int]func(Transition)
	nextSub   int
}

// New creates an inactive session at index 0. steps must be non-empty and
// every step needs a selector.
func New(steps []Step, opts ...Option) (*Session, error) {
	if len(steps) == 0 {
		return nil, errors.New("walkthrough: at least one step is required")
	}
	for i, st := range steps {
		if st.Selector == "" {
			return nil, fmt.Errorf("walkthrough: step %d has no selector", i)
		}
	}
	s := &Session{
		id:     uuid.NewString(),
		steps:  append([]Step(nil), steps...),
		logger: slog.Default(),
		subs:   make(map[int]func(Transition)),
	}
	for _, o := range opts {
		o(s)
	}
	if s.notifier == nil {
		s.notifier = LogNotifier{Logger: s.logger}
	}
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	s.guard("ID")
	return s.id
}

// State returns a snapshot of the navigation state.
func (s *Session) State() State {
	s.guard("State")
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) Index() int {
	return s.State().Index
}

func (s *Session) Active() bool {
	return s.State().Active
}

// Total returns the number of steps.
func (s *Session) Total() int {
	s.guard("Total")
	return len(s.steps)
}

// CurrentStep returns the step at the current index.
func (s *Session) CurrentStep() Step {
	s.guard("CurrentStep")
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.steps[s.index]
}

// Step returns the step at index i.
func (s *Session) Step(i int) (Step, bool) {
	s.guard("Step")
	if i < 0 || i >= len(s.steps) {
		return Step{}, false
	}
	return s.steps[i], true
}

// Steps returns a copy of the step list.
func (s *Session) Steps() []Step {
	s.guard("Steps")
	return append([]Step(nil), s.steps...)
}

// Controls returns the session as the Controls interface.
func (s *Session) Controls() Controls {
	s.guard("Controls")
	return s
}

// Subscribe registers fn for every committed transition. Callbacks run
// synchronously on the goroutine that committed the transition.
func (s *Session) Subscribe(fn func(Transition)) (unsubscribe func()) {
	s.guard("Subscribe")
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Start activates the walkthrough at step 0.
func (s *Session) Start(ctx context.Context) {
	s.guard("Start")
	s.mu.Lock()
	t, ok := s.commitLocked(KindStart, 0, true)
	s.mu.Unlock()
	if ok {
		s.dispatch(ctx, t)
	}
}

// Next runs the current step's BeforeNext hook and CanGoNext gate, then
// advances, or finishes on the last step. Hook failures and gate
// rejections are reported through the notifier and returned; the state is
// left unchanged.
func (s *Session) Next(ctx context.Context) error {
	s.guard("Next")
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return ErrNotActive
	}
	if s.advancing {
		s.mu.Unlock()
		return ErrNavigationBusy
	}
	s.advancing = true
	gen, idx := s.gen, s.index
	step := s.steps[idx]
	s.mu.Unlock()

	if err := s.runHooks(ctx, idx, step); err != nil {
		stale := s.endAdvance(gen)
		if stale {
			return ErrStaleTransition
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.report(ctx, err)
		return err
	}

	s.mu.Lock()
	s.advancing = false
	if s.gen != gen || !s.active {
		s.mu.Unlock()
		return ErrStaleTransition
	}
	var (
		t  Transition
		ok bool
	)
	if idx < len(s.steps)-1 {
		t, ok = s.commitLocked(KindNext, idx+1, true)
	} else {
		t, ok = s.commitLocked(KindFinish, 0, false)
	}
	s.mu.Unlock()
	if ok {
		s.dispatch(ctx, t)
	}
	return nil
}

type beforeNextError struct {
	index int
	err   error
}

func (e *beforeNextError) Error() string {
	return fmt.Sprintf("step %d before next: %v", e.index, e.err)
}

func (e *beforeNextError) Unwrap() error { return e.err }

func (s *Session) runHooks(ctx context.Context, idx int, step Step) error {
	if step.BeforeNext != nil {
		if err := step.BeforeNext(ctx); err != nil {
			return &beforeNextError{index: idx, err: err}
		}
	}
	if step.CanGoNext == nil || step.CanGoNext.Validate == nil {
		return nil
	}
	ok, err := step.CanGoNext.Validate(ctx)
	if err != nil || !ok {
		return &GateRejectedError{Index: idx, Message: step.CanGoNext.Message(), Err: err}
	}
	return nil
}

// endAdvance clears the in-flight flag and reports whether the state moved
// on since gen.
func (s *Session) endAdvance(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advancing = false
	return s.gen != gen || !s.active
}

func (s *Session) report(ctx context.Context, err error) {
	var gate *GateRejectedError
	var before *beforeNextError
	switch {
	case errors.As(err, &gate):
		s.notifier.Notify(ctx, Notice{Kind: NoticeGateRejected, Message: gate.Message, Index: gate.Index, Err: gate.Err})
	case errors.As(err, &before):
		s.notifier.Notify(ctx, Notice{Kind: NoticeBeforeNextFailed, Message: before.err.Error(), Index: before.index, Err: before.err})
	}
}

// Back moves to the previous step. It is a no-op on the first step or
// when inactive.
func (s *Session) Back(ctx context.Context) {
	s.guard("Back")
	s.mu.Lock()
	if !s.active || s.index == 0 {
		s.mu.Unlock()
		return
	}
	t, ok := s.commitLocked(KindBack, s.index-1, true)
	s.mu.Unlock()
	if ok {
		s.dispatch(ctx, t)
	}
}

// Skip stops the walkthrough and keeps the index.
func (s *Session) Skip(ctx context.Context) {
	s.guard("Skip")
	s.mu.Lock()
	t, ok := s.commitLocked(KindSkip, s.index, false)
	s.mu.Unlock()
	if ok {
		s.dispatch(ctx, t)
	}
}

// Finish stops the walkthrough and resets the index to 0.
func (s *Session) Finish(ctx context.Context) {
	s.guard("Finish")
	s.mu.Lock()
	t, ok := s.commitLocked(KindFinish, 0, false)
	s.mu.Unlock()
	if ok {
		s.dispatch(ctx, t)
	}
}

// GoToStep activates the walkthrough at index. Out-of-range indexes are
// ignored.
func (s *Session) GoToStep(ctx context.Context, index int) {
	s.guard("GoToStep")
	if index < 0 || index >= len(s.steps) {
		s.logger.Debug("walkthrough: goto out of range ignored", "session", s.id, "index", index, "total", len(s.steps))
		return
	}
	s.mu.Lock()
	t, ok := s.commitLocked(KindGoTo, index, true)
	s.mu.Unlock()
	if ok {
		s.dispatch(ctx, t)
	}
}

// Close ends the session scope. Later calls panic with *UsageError.
func (s *Session) Close() {
	s.guard("Close")
	s.mu.Lock()
	s.closed = true
	s.subs = map[int]func(Transition){}
	s.mu.Unlock()
}

// commitLocked applies a state change. It returns false when nothing
// changed, except for Start, which always re-enters step 0.
// Must be called with s.mu held.
func (s *Session) commitLocked(kind TransitionKind, index int, active bool) (Transition, bool) {
	from := s.stateLocked()
	if kind != KindStart && from.Index == index && from.Active == active {
		return Transition{}, false
	}
	s.index = index
	s.active = active
	s.gen++
	return Transition{Kind: kind, From: from, To: s.stateLocked(), Generation: s.gen}, true
}

func (s *Session) stateLocked() State {
	return State{Index: s.index, Active: s.active, Total: len(s.steps)}
}

// dispatch runs exit/enter hooks and notifies subscribers, outside the lock.
func (s *Session) dispatch(ctx context.Context, t Transition) {
	s.logger.Debug("walkthrough transition",
		"session", s.id,
		"kind", t.Kind,
		"from", t.From.Index,
		"to", t.To.Index,
		"active", t.To.Active,
	)

	if t.From.Active {
		if st := s.steps[t.From.Index]; st.OnExit != nil {
			st.OnExit(ctx, StepEvent{Index: t.From.Index, Total: t.From.Total, Step: st, Kind: t.Kind})
		}
	}
	if t.To.Active {
		if st := s.steps[t.To.Index]; st.OnEnter != nil {
			st.OnEnter(ctx, StepEvent{Index: t.To.Index, Total: t.To.Total, Step: st, Kind: t.Kind})
		}
	}

	s.mu.Lock()
	subs := make([]func(Transition), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn(t)
	}
}

func (s *Session) guard(op string) {
	if s == nil {
		panic(&UsageError{Op: op})
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		panic(&UsageError{Op: op})
	}
}
