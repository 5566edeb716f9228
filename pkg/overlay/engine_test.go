package overlay_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/walkthrough/pkg/dom"
	"github.com/nextlevelbuilder/walkthrough/pkg/dom/domtest"
	"github.com/nextlevelbuilder/walkthrough/pkg/layout"
	"github.com/nextlevelbuilder/walkthrough/pkg/overlay"
	"github.com/nextlevelbuilder/walkthrough/pkg/walkthrough"
)

type fakeRenderer struct {
	size layout.Size

	mu     sync.Mutex
	frames []overlay.Frame
	clears int
}

func (r *fakeRenderer) Render(_ context.Context, f overlay.Frame) (layout.Size, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
	return r.size, nil
}

func (r *fakeRenderer) Clear(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clears++
	return nil
}

func (r *fakeRenderer) all() []overlay.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]overlay.Frame(nil), r.frames...)
}

func (r *fakeRenderer) framesFor(index int) []overlay.Frame {
	var out []overlay.Frame
	for _, f := range r.all() {
		if f.Index == index {
			out = append(out, f)
		}
	}
	return out
}

type noticeLog struct {
	mu      sync.Mutex
	notices []walkthrough.Notice
}

func (n *noticeLog) Notify(_ context.Context, no walkthrough.Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, no)
}

func (n *noticeLog) all() []walkthrough.Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]walkthrough.Notice(nil), n.notices...)
}

type harness struct {
	doc      *domtest.Document
	session  *walkthrough.Session
	renderer *fakeRenderer
	notices  *noticeLog
	engine   *overlay.Engine
	cancel   context.CancelFunc
	done     chan error
}

func newHarness(t *testing.T, steps []walkthrough.Step, opts ...overlay.Option) *harness {
	t.Helper()
	h := &harness{
		doc:      domtest.New(1000, 800, layout.Size{Width: 1000, Height: 2000}),
		renderer: &fakeRenderer{size: layout.Size{Width: 100, Height: 50}},
		notices:  &noticeLog{},
		done:     make(chan error, 1),
	}
	s, err := walkthrough.New(steps)
	require.NoError(t, err)
	h.session = s
	h.engine = overlay.New(s, h.doc, h.renderer, append([]overlay.Option{
		overlay.WithNotifier(h.notices),
		overlay.WithSettleDelay(0),
		overlay.WithDebounce(5*time.Millisecond),
		overlay.WithResolveOptions(dom.ResolveOptions{Timeout: 80 * time.Millisecond, Interval: 10 * time.Millisecond}),
	}, opts...)...)
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.engine.Run(ctx) }()
	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	h.cancel()
	<-h.done
	h.done <- nil
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

func TestEngineTwoPassRender(t *testing.T) {
	h := newHarness(t, []walkthrough.Step{{Selector: "#a", Content: "hello"}})
	h.doc.Add("#a", layout.Rect{Top: 100, Left: 50, Width: 200, Height: 20})

	h.session.Start(context.Background())
	waitFor(t, func() bool { return len(h.renderer.framesFor(0)) >= 2 }, "two passes")

	frames := h.renderer.framesFor(0)
	first, second := frames[0], frames[1]
	assert.Equal(t, 1, first.Pass)
	assert.Equal(t, layout.Size{}, first.TooltipSize)
	assert.Equal(t, layout.Point{Top: 130, Left: 150}, first.Tooltip)

	assert.Equal(t, 2, second.Pass)
	assert.Equal(t, layout.Size{Width: 100, Height: 50}, second.TooltipSize)
	assert.Equal(t, layout.Point{Top: 130, Left: 100}, second.Tooltip)
	assert.Equal(t, layout.PlacementBottom, second.Placement)
	assert.Equal(t, "hello", second.Content)
	assert.True(t, second.First)
	assert.True(t, second.Last)
	assert.True(t, second.ShowBackdrop)
	assert.Equal(t, layout.Backdrop(second.Target, second.Document), second.Backdrop)

	got, ok := h.engine.Frame()
	require.True(t, ok)
	assert.Equal(t, second.Pass, got.Pass)

	scrolls := h.doc.Scrolls()
	require.Len(t, scrolls, 1)
	assert.Equal(t, dom.ScrollOptions{Smooth: true, Block: dom.BlockCenter}, scrolls[0].Opts)

	time.Sleep(30 * time.Millisecond)
	assert.Len(t, h.renderer.framesFor(0), 2, "stable size renders no third pass")
}

func TestEngineWaitsForSettle(t *testing.T) {
	const settle = 150 * time.Millisecond
	h := newHarness(t, []walkthrough.Step{{Selector: "#a"}}, overlay.WithSettleDelay(settle))
	h.doc.Add("#a", layout.Rect{Top: 100, Left: 50, Width: 200, Height: 20})

	began := time.Now()
	h.session.Start(context.Background())

	time.Sleep(settle / 3)
	assert.Empty(t, h.renderer.all(), "rendered before the scroll settled")
	_, ok := h.engine.Frame()
	assert.False(t, ok)

	waitFor(t, func() bool { return len(h.renderer.framesFor(0)) > 0 }, "frame after settle")
	assert.GreaterOrEqual(t, time.Since(began), settle)
}

func TestEngineAbandonsSettleOnNavigation(t *testing.T) {
	const settle = 150 * time.Millisecond
	h := newHarness(t, []walkthrough.Step{{Selector: "#a"}, {Selector: "#b"}}, overlay.WithSettleDelay(settle))
	h.doc.Add("#a", layout.Rect{Top: 100, Left: 50, Width: 200, Height: 20})
	h.doc.Add("#b", layout.Rect{Top: 400, Left: 300, Width: 100, Height: 40})

	ctx := context.Background()
	h.session.Start(ctx)
	time.Sleep(settle / 3)
	require.NoError(t, h.session.Next(ctx))

	waitFor(t, func() bool { return len(h.renderer.framesFor(1)) >= 2 }, "both passes of step 1")
	time.Sleep(settle)
	assert.Empty(t, h.renderer.framesFor(0), "superseded step rendered after its settle")

	f, ok := h.engine.Frame()
	require.True(t, ok)
	assert.Equal(t, 1, f.Index)
}

func TestEngineTargetInDocumentSpace(t *testing.T) {
	h := newHarness(t, []walkthrough.Step{{Selector: "#deep"}})
	h.doc.Add("#deep", layout.Rect{Top: 1500, Left: 10, Width: 100, Height: 40})

	h.session.Start(context.Background())
	waitFor(t, func() bool { return len(h.renderer.framesFor(0)) >= 2 }, "rendered")

	f := h.renderer.framesFor(0)[1]
	assert.Equal(t, layout.Rect{Top: 1500, Left: 10, Width: 100, Height: 40}, f.Target)
	vp, _ := h.doc.Viewport(context.Background())
	assert.Greater(t, vp.ScrollY, 0.0, "scrolled into view")
}

func TestEngineFollowsNavigation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []walkthrough.Step{{Selector: "#a"}, {Selector: "#b", Placement: layout.PlacementRight}})
	h.doc.Add("#a", layout.Rect{Top: 100, Left: 50, Width: 200, Height: 20})
	h.doc.Add("#b", layout.Rect{Top: 300, Left: 400, Width: 100, Height: 100})

	h.session.Start(ctx)
	waitFor(t, func() bool { return len(h.renderer.framesFor(0)) >= 2 }, "step 0")
	require.NoError(t, h.session.Next(ctx))
	waitFor(t, func() bool { return len(h.renderer.framesFor(1)) >= 1 }, "step 1")

	waitFor(t, func() bool {
		f, ok := h.engine.Frame()
		return ok && f.Index == 1 && f.TooltipSize.Width == 100
	}, "final frame for step 1")
	f, _ := h.engine.Frame()
	assert.Equal(t, layout.PlacementRight, f.Placement)
	assert.Equal(t, layout.Point{Top: 325, Left: 510}, f.Tooltip)
	assert.True(t, f.Last)
	assert.False(t, f.First)
	assert.Equal(t, 1, h.doc.Listeners(), "previous step's listener detached")
}

func TestEngineTargetNotFound(t *testing.T) {
	h := newHarness(t, []walkthrough.Step{{Selector: "#missing"}})

	h.session.Start(context.Background())
	waitFor(t, func() bool { return len(h.notices.all()) == 1 }, "notice")

	n := h.notices.all()[0]
	assert.Equal(t, walkthrough.NoticeTargetNotFound, n.Kind)
	assert.Equal(t, `selector "#missing" not found within 80ms`, n.Message)
	var nf *dom.TargetNotFoundError
	assert.ErrorAs(t, n.Err, &nf)

	assert.Empty(t, h.renderer.all())
	_, ok := h.engine.Frame()
	assert.False(t, ok)
	assert.Equal(t, walkthrough.State{Index: 0, Active: true, Total: 1}, h.session.State())
	assert.Zero(t, h.doc.Listeners())
}

func TestEngineDiscardsStaleResolution(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []walkthrough.Step{{Selector: "#late"}, {Selector: "#b"}})
	h.doc.Add("#b", layout.Rect{Top: 10, Left: 10, Width: 10, Height: 10})

	h.session.Start(ctx)
	waitFor(t, func() bool { return h.doc.Queries("#late") > 0 }, "resolving step 0")
	require.NoError(t, h.session.Next(ctx))

	h.doc.Add("#late", layout.Rect{Top: 10, Left: 10, Width: 10, Height: 10})
	waitFor(t, func() bool { return len(h.renderer.framesFor(1)) >= 1 }, "step 1 rendered")
	time.Sleep(150 * time.Millisecond)

	assert.Empty(t, h.renderer.framesFor(0), "abandoned step never renders")
	assert.Empty(t, h.notices.all(), "abandoned step never reports")
}

func TestEngineReflowsOnScroll(t *testing.T) {
	h := newHarness(t, []walkthrough.Step{{Selector: "#a"}})
	el := h.doc.Add("#a", layout.Rect{Top: 100, Left: 50, Width: 200, Height: 20})

	h.session.Start(context.Background())
	waitFor(t, func() bool { return len(h.renderer.framesFor(0)) >= 2 }, "rendered")

	el.Move(layout.Rect{Top: 400, Left: 50, Width: 200, Height: 20})
	for i := 0; i < 5; i++ {
		h.doc.Fire(dom.EventScroll)
	}
	waitFor(t, func() bool {
		f, _ := h.engine.Frame()
		return f.Target.Top == 400
	}, "reflowed")
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, h.renderer.framesFor(0), 3, "burst coalesced into one render")

	h.doc.Resize(500, 400, layout.Size{Width: 500, Height: 2000})
	waitFor(t, func() bool {
		f, _ := h.engine.Frame()
		return f.Document.Width == 500
	}, "reflowed after resize")
}

func TestEngineClearsWhenInactive(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []walkthrough.Step{{Selector: "#a"}})
	h.doc.Add("#a", layout.Rect{Top: 100, Left: 50, Width: 200, Height: 20})

	h.session.Start(ctx)
	waitFor(t, func() bool { return len(h.renderer.framesFor(0)) >= 2 }, "rendered")
	require.Equal(t, 1, h.doc.Listeners())

	h.session.Skip(ctx)
	waitFor(t, func() bool { return h.doc.Listeners() == 0 }, "listener detached")
	_, ok := h.engine.Frame()
	assert.False(t, ok)

	before := len(h.renderer.all())
	h.doc.Fire(dom.EventScroll)
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, h.renderer.all(), before, "no render after skip")
}

func TestEngineBackdropDisabled(t *testing.T) {
	h := newHarness(t, []walkthrough.Step{{Selector: "#a", ShowBackdrop: walkthrough.Bool(false)}})
	h.doc.Add("#a", layout.Rect{Top: 100, Left: 50, Width: 200, Height: 20})

	h.session.Start(context.Background())
	waitFor(t, func() bool { return len(h.renderer.framesFor(0)) >= 2 }, "rendered")
	f := h.renderer.framesFor(0)[1]
	assert.False(t, f.ShowBackdrop)
	assert.Equal(t, [4]layout.Rect{}, f.Backdrop)
}

func TestEngineButtons(t *testing.T) {
	h := newHarness(t, []walkthrough.Step{{Selector: "#a"}, {Selector: "#a", Navigation: walkthrough.CompactNavigation}})
	h.doc.Add("#a", layout.Rect{Top: 100, Left: 50, Width: 200, Height: 20})
	ctx := context.Background()

	h.session.Start(ctx)
	waitFor(t, func() bool { return len(h.renderer.framesFor(0)) >= 2 }, "step 0")
	assert.Len(t, h.renderer.framesFor(0)[1].Buttons, 3)

	require.NoError(t, h.session.Next(ctx))
	waitFor(t, func() bool { return len(h.renderer.framesFor(1)) >= 1 }, "step 1")
	btns := h.renderer.framesFor(1)[0].Buttons
	require.Len(t, btns, 2)
	assert.Equal(t, "Done", btns[0].Label)
}

func TestEngineStopClears(t *testing.T) {
	h := newHarness(t, []walkthrough.Step{{Selector: "#a"}})
	h.doc.Add("#a", layout.Rect{Top: 100, Left: 50, Width: 200, Height: 20})
	h.session.Start(context.Background())
	waitFor(t, func() bool { return len(h.renderer.framesFor(0)) >= 2 }, "rendered")

	h.cancel()
	require.NoError(t, <-h.done)
	h.done <- nil
	assert.Zero(t, h.doc.Listeners())
	_, ok := h.engine.Frame()
	assert.False(t, ok)
}
