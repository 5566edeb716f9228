package overlay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/walkthrough/internal/bus"
	"github.com/nextlevelbuilder/walkthrough/pkg/dom"
	"github.com/nextlevelbuilder/walkthrough/pkg/layout"
	"github.com/nextlevelbuilder/walkthrough/pkg/walkthrough"
)

const (
	DefaultSettleDelay = 400 * time.Millisecond
	DefaultDebounce    = 16 * time.Millisecond
)

const reflowKey = "reflow"

// Option configures an Engine.
type Option func(*Engine)

// WithResolveOptions sets the target polling timeout and interval.
func WithResolveOptions(o dom.ResolveOptions) Option {
	return func(e *Engine) { e.resolve = o }
}

// WithSettleDelay sets the wait between scrolling and measuring.
func WithSettleDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.settle = d
		}
	}
}

// WithSpacing sets the tooltip gap and edge margin.
func WithSpacing(px float64) Option {
	return func(e *Engine) {
		if px >= 0 {
			e.spacing = px
		}
	}
}

// WithDebounce sets the scroll/resize coalescing window.
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) { e.debounce = d }
}

// WithNotifier sets where unresolved targets are reported.
func WithNotifier(n walkthrough.Notifier) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// Engine renders the current step of a session. Create with New and drive
// with Run.
type Engine struct {
	session  *walkthrough.Session
	doc      dom.Document
	renderer Renderer
	notifier walkthrough.Notifier
	logger   *slog.Logger

	resolve  dom.ResolveOptions
	settle   time.Duration
	spacing  float64
	debounce time.Duration

	debouncer *bus.Debouncer
	renderMu  sync.Mutex // serializes Render and Clear

	mu       sync.Mutex
	runCtx   context.Context
	gen      uint64
	cur      *stepRun
	frame    Frame
	hasFrame bool
	subs     map[int]func(Frame)
	nextSub  int
	wg       sync.WaitGroup
}

// stepRun is the liveness token of one step display. Its context is
// cancelled as soon as another transition commits.
type stepRun struct {
	ctx    context.Context
	cancel context.CancelFunc
	gen    uint64
	index  int
	total  int
	step   walkthrough.Step

	el     dom.Element
	detach func()
	tip    layout.Size
	pass   int
}

// New creates an engine. renderer may be nil (NopRenderer).
func New(session *walkthrough.Session, doc dom.Document, renderer Renderer, opts ...Option) *Engine {
	if renderer == nil {
		renderer = NopRenderer{}
	}
	e := &Engine{
		session:  session,
		doc:      doc,
		renderer: renderer,
		logger:   slog.Default(),
		settle:   DefaultSettleDelay,
		spacing:  layout.DefaultSpacing,
		debounce: DefaultDebounce,
		subs:     make(map[int]func(Frame)),
	}
	for _, o := range opts {
		o(e)
	}
	if e.notifier == nil {
		e.notifier = walkthrough.LogNotifier{Logger: e.logger}
	}
	e.debouncer = bus.NewDebouncer(e.debounce, func(string) { e.reflow() })
	return e
}

// Run follows the session until ctx is done, then clears the overlay.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.runCtx != nil {
		e.mu.Unlock()
		return errors.New("overlay: engine already running")
	}
	e.runCtx = ctx
	e.mu.Unlock()

	unsubscribe := e.session.Subscribe(func(t walkthrough.Transition) {
		e.apply(t.To, t.Generation)
	})
	if st := e.session.State(); st.Active {
		e.apply(st, 0)
	}

	<-ctx.Done()
	unsubscribe()

	e.mu.Lock()
	e.stopLocked()
	e.hasFrame = false
	e.mu.Unlock()
	e.debouncer.Stop()
	e.wg.Wait()

	e.clear(context.WithoutCancel(ctx))
	return nil
}

// Frame returns the last rendered frame of the current step.
func (e *Engine) Frame() (Frame, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frame, e.hasFrame
}

// Subscribe registers fn for every rendered frame.
func (e *Engine) Subscribe(fn func(Frame)) (unsubscribe func()) {
	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, id)
			e.mu.Unlock()
		})
	}
}

// Refresh re-measures and re-renders the current step.
func (e *Engine) Refresh() {
	e.debouncer.Cancel(reflowKey)
	e.reflow()
}

// apply tears down the previous step and starts showing st. gen 0 is the
// initial state read by Run.
func (e *Engine) apply(st walkthrough.State, gen uint64) {
	e.mu.Lock()
	if e.runCtx == nil || e.runCtx.Err() != nil {
		e.mu.Unlock()
		return
	}
	if (gen == 0 && e.gen != 0) || (gen != 0 && gen <= e.gen) {
		e.mu.Unlock()
		return
	}
	if gen != 0 {
		e.gen = gen
	}
	e.stopLocked()
	e.hasFrame = false
	e.debouncer.Cancel(reflowKey)

	var run *stepRun
	if st.Active {
		step, ok := e.session.Step(st.Index)
		if ok {
			ctx, cancel := context.WithCancel(e.runCtx)
			run = &stepRun{ctx: ctx, cancel: cancel, gen: gen, index: st.Index, total: st.Total, step: step}
			e.cur = run
			e.wg.Add(1)
		}
	}
	e.mu.Unlock()

	e.clearFor(gen)
	if run != nil {
		go func() {
			defer e.wg.Done()
			e.show(run)
		}()
	}
}

// stopLocked cancels the current step and detaches its listeners.
// Must be called with e.mu held.
func (e *Engine) stopLocked() {
	if e.cur == nil {
		return
	}
	e.cur.cancel()
	if e.cur.detach != nil {
		e.cur.detach()
	}
	e.cur = nil
}

func (e *Engine) show(run *stepRun) {
	ctx := run.ctx
	log := e.logger.With("step", run.index, "selector", run.step.Selector)

	el, err := dom.Resolve(ctx, e.doc, run.step.Selector, e.resolve)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		var nf *dom.TargetNotFoundError
		if !errors.As(err, &nf) {
			log.Warn("overlay: resolve target failed", "error", err)
		}
		e.notifier.Notify(ctx, walkthrough.Notice{
			Kind:    walkthrough.NoticeTargetNotFound,
			Message: err.Error(),
			Index:   run.index,
			Err:     err,
		})
		return
	}

	if err := el.ScrollIntoView(ctx, dom.ScrollOptions{Smooth: true, Block: dom.BlockCenter}); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Warn("overlay: scroll into view failed", "error", err)
	}

	if e.settle > 0 {
		timer := time.NewTimer(e.settle)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	detach, err := e.doc.Subscribe(ctx, func(dom.Event) {
		e.debouncer.Trigger(reflowKey)
	})
	if err != nil {
		log.Warn("overlay: subscribe to scroll/resize failed", "error", err)
		detach = nil
	}

	e.mu.Lock()
	if e.cur != run {
		e.mu.Unlock()
		if detach != nil {
			detach()
		}
		return
	}
	run.el = el
	run.detach = detach
	e.mu.Unlock()

	e.render(run)
}

// reflow re-renders the current step after a scroll or resize.
func (e *Engine) reflow() {
	e.mu.Lock()
	run := e.cur
	if run == nil || run.el == nil {
		e.mu.Unlock()
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()
	defer e.wg.Done()

	e.render(run)
}

// render measures the target and draws the frame, a second time when the
// renderer reports a tooltip size different from the one used.
func (e *Engine) render(run *stepRun) {
	ctx := run.ctx

	e.mu.Lock()
	tip := run.tip
	e.mu.Unlock()

	for attempt := 0; attempt < 2; attempt++ {
		rect, err := run.el.Rect(ctx)
		if err != nil {
			if ctx.Err() == nil {
				e.logger.Warn("overlay: measure target failed", "step", run.index, "error", err)
			}
			return
		}
		vp, err := e.doc.Viewport(ctx)
		if err != nil {
			if ctx.Err() == nil {
				e.logger.Warn("overlay: read viewport failed", "step", run.index, "error", err)
			}
			return
		}

		f := BuildFrame(run.step, run.index, run.total, layout.ToDocument(rect, vp.ScrollX, vp.ScrollY), vp.Document, tip, e.spacing)
		f.Buttons = walkthrough.NavigationFor(run.step).Buttons(walkthrough.NavContext{
			Controls: e.session,
			Index:    run.index,
			Total:    run.total,
		})

		measured, ok := e.draw(run, f)
		if !ok {
			return
		}
		if measured == tip {
			return
		}
		tip = measured
		e.mu.Lock()
		run.tip = measured
		e.mu.Unlock()
	}
}

// draw renders f if run is still current and publishes it.
func (e *Engine) draw(run *stepRun, f Frame) (layout.Size, bool) {
	e.renderMu.Lock()
	if run.ctx.Err() != nil {
		e.renderMu.Unlock()
		return layout.Size{}, false
	}
	e.mu.Lock()
	run.pass++
	f.Pass = run.pass
	e.mu.Unlock()

	measured, err := e.renderer.Render(run.ctx, f)
	e.renderMu.Unlock()
	if err != nil {
		if run.ctx.Err() == nil {
			e.logger.Warn("overlay: render failed", "step", run.index, "error", err)
		}
		return layout.Size{}, false
	}

	e.mu.Lock()
	if e.cur != run {
		e.mu.Unlock()
		return layout.Size{}, false
	}
	e.frame = f
	e.hasFrame = true
	subs := make([]func(Frame), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.mu.Unlock()

	for _, fn := range subs {
		fn(f)
	}
	return measured, true
}

// clearFor clears the overlay unless a newer transition than gen has been
// applied; that transition owns the renderer now.
func (e *Engine) clearFor(gen uint64) {
	e.renderMu.Lock()
	defer e.renderMu.Unlock()
	e.mu.Lock()
	ctx, stale := e.runCtx, e.gen != gen
	e.mu.Unlock()
	if stale || ctx == nil {
		return
	}
	if err := e.renderer.Clear(ctx); err != nil {
		e.logger.Warn("overlay: clear failed", "error", err)
	}
}

func (e *Engine) clear(ctx context.Context) {
	e.renderMu.Lock()
	defer e.renderMu.Unlock()
	if err := e.renderer.Clear(ctx); err != nil {
		e.logger.Warn("overlay: clear failed", "error", err)
	}
}
