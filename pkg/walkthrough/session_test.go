package walkthrough_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/walkthrough/pkg/walkthrough"
)

type recordingNotifier struct {
	mu      sync.Mutex
	notices []walkthrough.Notice
}

func (r *recordingNotifier) Notify(_ context.Context, n walkthrough.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recordingNotifier) all() []walkthrough.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]walkthrough.Notice(nil), r.notices...)
}

func steps(n int) []walkthrough.Step {
	out := make([]walkthrough.Step, n)
	for i := range out {
		out[i] = walkthrough.Step{Selector: "#s" + string(rune('a'+i))}
	}
	return out
}

func newSession(t *testing.T, st []walkthrough.Step, opts ...walkthrough.Option) (*walkthrough.Session, *recordingNotifier) {
	t.Helper()
	rec := &recordingNotifier{}
	s, err := walkthrough.New(st, append([]walkthrough.Option{walkthrough.WithNotifier(rec)}, opts...)...)
	require.NoError(t, err)
	return s, rec
}

func state(index int, active bool, total int) walkthrough.State {
	return walkthrough.State{Index: index, Active: active, Total: total}
}

func TestNewValidation(t *testing.T) {
	_, err := walkthrough.New(nil)
	assert.Error(t, err)

	_, err = walkthrough.New([]walkthrough.Step{{Selector: "#a"}, {}})
	assert.ErrorContains(t, err, "step 1")

	s, err := walkthrough.New(steps(2))
	require.NoError(t, err)
	assert.Equal(t, state(0, false, 2), s.State())
	assert.NotEmpty(t, s.ID())
}

func TestSessionIsolatedFromCallerSlice(t *testing.T) {
	st := steps(2)
	s, _ := newSession(t, st)
	st[0].Selector = "#mutated"
	assert.Equal(t, "#sa", s.Steps()[0].Selector)
}

func TestBasicNavigation(t *testing.T) {
	ctx := context.Background()
	s, _ := newSession(t, steps(3))

	s.Start(ctx)
	assert.Equal(t, state(0, true, 3), s.State())

	require.NoError(t, s.Next(ctx))
	assert.Equal(t, 1, s.Index())

	require.NoError(t, s.Next(ctx))
	assert.Equal(t, 2, s.Index())

	s.Back(ctx)
	assert.Equal(t, 1, s.Index())

	require.NoError(t, s.Next(ctx))
	require.NoError(t, s.Next(ctx))
	assert.Equal(t, state(0, false, 3), s.State(), "next on the last step finishes")
}

func TestNextWhenInactive(t *testing.T) {
	s, _ := newSession(t, steps(2))
	err := s.Next(context.Background())
	assert.ErrorIs(t, err, walkthrough.ErrNotActive)
	assert.Equal(t, state(0, false, 2), s.State())
}

func TestBackBoundaries(t *testing.T) {
	ctx := context.Background()
	s, _ := newSession(t, steps(2))

	s.Back(ctx)
	assert.Equal(t, state(0, false, 2), s.State(), "back while inactive")

	s.Start(ctx)
	s.Back(ctx)
	assert.Equal(t, state(0, true, 2), s.State(), "back on first step")
}

func TestSkipKeepsIndexFinishResets(t *testing.T) {
	ctx := context.Background()
	s, _ := newSession(t, steps(3))

	s.GoToStep(ctx, 2)
	s.Skip(ctx)
	assert.Equal(t, state(2, false, 3), s.State())

	s.GoToStep(ctx, 1)
	s.Finish(ctx)
	assert.Equal(t, state(0, false, 3), s.State())
}

func TestGoToStep(t *testing.T) {
	ctx := context.Background()
	s, _ := newSession(t, steps(3))

	tests := []struct {
		name  string
		index int
		want  walkthrough.State
	}{
		{"activates from inactive", 2, state(2, true, 3)},
		{"negative ignored", -1, state(2, true, 3)},
		{"past end ignored", 3, state(2, true, 3)},
		{"jump back", 0, state(0, true, 3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.GoToStep(ctx, tt.index)
			assert.Equal(t, tt.want, s.State())
		})
	}
}

func TestIndexInRangeWhileActive(t *testing.T) {
	ctx := context.Background()
	s, _ := newSession(t, steps(4))
	ops := []func(){
		func() { s.Start(ctx) },
		func() { _ = s.Next(ctx) },
		func() { s.Back(ctx) },
		func() { s.GoToStep(ctx, 3) },
		func() { _ = s.Next(ctx) },
		func() { s.GoToStep(ctx, 1) },
		func() { s.Skip(ctx) },
		func() { _ = s.Next(ctx) },
		func() { s.GoToStep(ctx, 2) },
		func() { s.Finish(ctx) },
	}
	for i := 0; i < 5; i++ {
		for _, op := range ops {
			op()
			st := s.State()
			if st.Active {
				assert.GreaterOrEqual(t, st.Index, 0)
				assert.Less(t, st.Index, st.Total)
			}
		}
	}
}

func TestGateRejected(t *testing.T) {
	ctx := context.Background()
	st := steps(2)
	st[0].CanGoNext = &walkthrough.Gate{
		Validate: func(context.Context) (bool, error) { return false, nil },
	}
	s, rec := newSession(t, st)
	s.Start(ctx)

	err := s.Next(ctx)
	var gate *walkthrough.GateRejectedError
	require.ErrorAs(t, err, &gate)
	assert.Equal(t, 0, gate.Index)
	assert.Equal(t, walkthrough.DefaultGateMessage, gate.Message)
	assert.Equal(t, state(0, true, 2), s.State())

	notices := rec.all()
	require.Len(t, notices, 1)
	assert.Equal(t, walkthrough.NoticeGateRejected, notices[0].Kind)
	assert.Equal(t, "Complete this step to continue!", notices[0].Message)

	// A rejected gate does not block a later retry.
	st[0].CanGoNext = nil
	err = s.Next(ctx)
	assert.ErrorAs(t, err, &gate, "steps are copied at construction")
}

func TestGateCustomMessageAndValidatorError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("probe failed")
	st := steps(2)
	st[0].CanGoNext = &walkthrough.Gate{
		Validate:    func(context.Context) (bool, error) { return true, boom },
		ErrorString: "Fill the form",
	}
	s, rec := newSession(t, st)
	s.Start(ctx)

	err := s.Next(ctx)
	assert.ErrorIs(t, err, boom)
	var gate *walkthrough.GateRejectedError
	require.ErrorAs(t, err, &gate)
	assert.Equal(t, "Fill the form", gate.Message)
	assert.Equal(t, 0, s.Index())
	require.Len(t, rec.all(), 1)
	assert.Equal(t, boom, rec.all()[0].Err)
}

func TestGatePassesEventually(t *testing.T) {
	ctx := context.Background()
	ready := false
	st := steps(2)
	st[0].CanGoNext = &walkthrough.Gate{
		Validate: func(context.Context) (bool, error) { return ready, nil },
	}
	s, _ := newSession(t, st)
	s.Start(ctx)

	assert.Error(t, s.Next(ctx))
	ready = true
	assert.NoError(t, s.Next(ctx))
	assert.Equal(t, 1, s.Index())
}

func TestBeforeNextRunsBeforeGate(t *testing.T) {
	ctx := context.Background()
	var order []string
	st := steps(2)
	st[0].BeforeNext = func(context.Context) error {
		order = append(order, "before")
		return nil
	}
	st[0].CanGoNext = &walkthrough.Gate{Validate: func(context.Context) (bool, error) {
		order = append(order, "gate")
		return true, nil
	}}
	s, _ := newSession(t, st)
	s.Start(ctx)
	require.NoError(t, s.Next(ctx))
	assert.Equal(t, []string{"before", "gate"}, order)
}

func TestBeforeNextFailure(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("click failed")
	gateCalled := false
	st := steps(2)
	st[0].BeforeNext = func(context.Context) error { return boom }
	st[0].CanGoNext = &walkthrough.Gate{Validate: func(context.Context) (bool, error) {
		gateCalled = true
		return true, nil
	}}
	s, rec := newSession(t, st)
	s.Start(ctx)

	err := s.Next(ctx)
	assert.ErrorIs(t, err, boom)
	assert.False(t, gateCalled)
	assert.Equal(t, 0, s.Index())
	require.Len(t, rec.all(), 1)
	assert.Equal(t, walkthrough.NoticeBeforeNextFailed, rec.all()[0].Kind)
}

func TestNextBusyWhileGatePending(t *testing.T) {
	ctx := context.Background()
	entered := make(chan struct{})
	release := make(chan struct{})
	st := steps(3)
	st[0].CanGoNext = &walkthrough.Gate{Validate: func(context.Context) (bool, error) {
		close(entered)
		<-release
		return true, nil
	}}
	s, _ := newSession(t, st)
	s.Start(ctx)

	done := make(chan error, 1)
	go func() { done <- s.Next(ctx) }()
	<-entered

	assert.ErrorIs(t, s.Next(ctx), walkthrough.ErrNavigationBusy)
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, s.Index(), "only one advance")
}

func TestNextAbandonedWhenSuperseded(t *testing.T) {
	ctx := context.Background()
	entered := make(chan struct{})
	release := make(chan struct{})
	st := steps(3)
	st[1].CanGoNext = &walkthrough.Gate{Validate: func(context.Context) (bool, error) {
		close(entered)
		<-release
		return true, nil
	}}
	s, _ := newSession(t, st)
	s.GoToStep(ctx, 1)

	done := make(chan error, 1)
	go func() { done <- s.Next(ctx) }()
	<-entered

	s.Back(ctx)
	close(release)
	assert.ErrorIs(t, <-done, walkthrough.ErrStaleTransition)
	assert.Equal(t, state(0, true, 3), s.State())
}

func TestNextCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	st := steps(2)
	st[0].BeforeNext = func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	}
	s, rec := newSession(t, st)
	s.Start(context.Background())

	err := s.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.all(), "cancellation is not reported")
	assert.Equal(t, 0, s.Index())
}

type hookLog struct {
	mu     sync.Mutex
	events []string
}

func (h *hookLog) add(s string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, s)
}

func (h *hookLog) take() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.events
	h.events = nil
	return out
}

func hookedSteps(n int, log *hookLog) []walkthrough.Step {
	st := steps(n)
	for i := range st {
		name := string(rune('a' + i))
		st[i].OnEnter = func(_ context.Context, ev walkthrough.StepEvent) { log.add("enter " + name) }
		st[i].OnExit = func(_ context.Context, ev walkthrough.StepEvent) { log.add("exit " + name) }
	}
	return st
}

func TestEnterExitSymmetric(t *testing.T) {
	ctx := context.Background()
	log := &hookLog{}
	s, _ := newSession(t, hookedSteps(3, log))

	tests := []struct {
		name string
		op   func()
		want []string
	}{
		{"start", func() { s.Start(ctx) }, []string{"enter a"}},
		{"next", func() { _ = s.Next(ctx) }, []string{"exit a", "enter b"}},
		{"back", func() { s.Back(ctx) }, []string{"exit b", "enter a"}},
		{"back at first", func() { s.Back(ctx) }, nil},
		{"goto", func() { s.GoToStep(ctx, 2) }, []string{"exit a", "enter c"}},
		{"goto same index", func() { s.GoToStep(ctx, 2) }, nil},
		{"next on last", func() { _ = s.Next(ctx) }, []string{"exit c"}},
		{"finish while inactive", func() { s.Finish(ctx) }, nil},
		{"goto from inactive", func() { s.GoToStep(ctx, 1) }, []string{"enter b"}},
		{"restart", func() { s.Start(ctx) }, []string{"exit b", "enter a"}},
		{"restart on first", func() { s.Start(ctx) }, []string{"exit a", "enter a"}},
		{"skip", func() { s.Skip(ctx) }, []string{"exit a"}},
		{"skip while inactive", func() { s.Skip(ctx) }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.op()
			assert.Equal(t, tt.want, log.take())
		})
	}
}

func TestStepEventCarriesKind(t *testing.T) {
	ctx := context.Background()
	var got []walkthrough.StepEvent
	st := steps(2)
	st[1].OnEnter = func(_ context.Context, ev walkthrough.StepEvent) { got = append(got, ev) }
	s, _ := newSession(t, st)
	s.Start(ctx)
	require.NoError(t, s.Next(ctx))
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Index)
	assert.Equal(t, 2, got[0].Total)
	assert.Equal(t, walkthrough.KindNext, got[0].Kind)
	assert.Equal(t, "#sb", got[0].Step.Selector)
}

func TestOnExitKindDistinguishesNextAndBack(t *testing.T) {
	ctx := context.Background()
	var kinds []walkthrough.TransitionKind
	st := steps(3)
	st[1].OnExit = func(_ context.Context, ev walkthrough.StepEvent) { kinds = append(kinds, ev.Kind) }
	s, _ := newSession(t, st)

	s.Start(ctx)
	require.NoError(t, s.Next(ctx))
	require.NoError(t, s.Next(ctx))
	s.Back(ctx)
	s.Back(ctx)

	assert.Equal(t, []walkthrough.TransitionKind{walkthrough.KindNext, walkthrough.KindBack}, kinds)
}

func TestHooksMayReenterSession(t *testing.T) {
	ctx := context.Background()
	st := steps(3)
	var s *walkthrough.Session
	st[1].OnEnter = func(ctx context.Context, _ walkthrough.StepEvent) {
		_ = s.Next(ctx)
	}
	s, _ = newSession(t, st)
	s.Start(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Next(ctx)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("re-entrant hook deadlocked")
	}
	assert.Equal(t, 2, s.Index())
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	s, _ := newSession(t, steps(2))

	var got []walkthrough.Transition
	unsub := s.Subscribe(func(tr walkthrough.Transition) { got = append(got, tr) })

	s.Start(ctx)
	require.NoError(t, s.Next(ctx))
	s.Back(ctx) // commits
	s.Back(ctx) // no-op, not published
	unsub()
	unsub()
	s.Finish(ctx)

	require.Len(t, got, 3)
	assert.Equal(t, walkthrough.KindStart, got[0].Kind)
	assert.Equal(t, state(0, false, 2), got[0].From)
	assert.Equal(t, state(0, true, 2), got[0].To)
	assert.Equal(t, walkthrough.KindNext, got[1].Kind)
	assert.Equal(t, walkthrough.KindBack, got[2].Kind)
	for i := 1; i < len(got); i++ {
		assert.Equal(t, got[i-1].Generation+1, got[i].Generation)
	}
}

func TestCounters(t *testing.T) {
	ctx := context.Background()
	s, _ := newSession(t, steps(3))
	var c walkthrough.Counters
	s.Subscribe(c.Observe)

	s.Start(ctx)
	_ = s.Next(ctx)
	s.Back(ctx)
	s.GoToStep(ctx, 2)
	_ = s.Next(ctx)

	snap := c.Snapshot()
	assert.Equal(t, int64(1), snap.Starts)
	assert.Equal(t, int64(1), snap.Nexts)
	assert.Equal(t, int64(1), snap.Backs)
	assert.Equal(t, int64(1), snap.Jumps)
	assert.Equal(t, int64(1), snap.Finishes)
}

func assertUsagePanic(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected panic")
		err, ok := r.(error)
		require.True(t, ok, "panic value %v is not an error", r)
		var usage *walkthrough.UsageError
		assert.ErrorAs(t, err, &usage)
	}()
	fn()
}

func TestUsageOutsideSession(t *testing.T) {
	ctx := context.Background()
	s, _ := newSession(t, steps(2))
	s.Close()

	assertUsagePanic(t, func() { s.Start(ctx) })
	assertUsagePanic(t, func() { _ = s.Next(ctx) })
	assertUsagePanic(t, func() { s.State() })

	var nilSession *walkthrough.Session
	assertUsagePanic(t, func() { nilSession.Back(ctx) })

	assertUsagePanic(t, func() { walkthrough.MustFromContext(ctx) })
}

func TestContextRoundTrip(t *testing.T) {
	s, _ := newSession(t, steps(1))
	ctx := walkthrough.NewContext(context.Background(), s)

	got, ok := walkthrough.FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.Same(t, s, walkthrough.MustFromContext(ctx))

	_, ok = walkthrough.FromContext(context.Background())
	assert.False(t, ok)
}
