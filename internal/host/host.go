// Package host keeps one tour running against a page: it builds the
// session and overlay engine from a tour, fans notices out to the bus and
// tracer, and swaps in a reloaded tour once the current run is inactive.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/walkthrough/internal/bus"
	"github.com/nextlevelbuilder/walkthrough/internal/gateway"
	"github.com/nextlevelbuilder/walkthrough/internal/tour"
	"github.com/nextlevelbuilder/walkthrough/internal/tracing"
	"github.com/nextlevelbuilder/walkthrough/pkg/dom"
	"github.com/nextlevelbuilder/walkthrough/pkg/overlay"
	"github.com/nextlevelbuilder/walkthrough/pkg/walkthrough"
)

// Config wires a Host.
type Config struct {
	Doc dom.Document
	// Renderer draws frames. Nil uses overlay.NopRenderer.
	Renderer overlay.Renderer
	// Runtime supplies the actuator and probe of built steps. Its Notifier
	// is replaced by the host's notifier chain.
	Runtime tour.Runtime
	// Bus, when set, receives state, frame, notice and tour events.
	Bus *bus.MessageBus
	// Collector, when set, receives session and step spans.
	Collector *tracing.Collector
	// Notifier is an extra notice sink (the TUI).
	Notifier      walkthrough.Notifier
	DedupeTTL     time.Duration
	EngineOptions []overlay.Option
	Logger        *slog.Logger
}

// activeRun is one tour bound to its session and engine.
type activeRun struct {
	tour    *tour.Tour
	session *walkthrough.Session
	engine  *overlay.Engine
	detach  []func()
}

func (r *activeRun) close() {
	for _, d := range r.detach {
		d()
	}
}

// Host owns the current run. Superseded sessions are detached but not
// closed, so a caller still holding one never panics.
type Host struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	cur       *activeRun
	pending   *tour.Tour
	swapped   chan struct{}
	frameSubs map[int]func(overlay.Frame)
	transSubs map[int]func(walkthrough.Transition)
	nextSub   int

	counters walkthrough.Counters
}

// New builds the first run from t.
func New(t *tour.Tour, cfg Config) (*Host, error) {
	if cfg.Doc == nil {
		return nil, errors.New("host: document is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Runtime.Gates == nil {
		g, err := tour.NewGateCompiler(64)
		if err != nil {
			return nil, err
		}
		cfg.Runtime.Gates = g
	}
	h := &Host{
		cfg:       cfg,
		logger:    cfg.Logger,
		swapped:   make(chan struct{}, 1),
		frameSubs: make(map[int]func(overlay.Frame)),
		transSubs: make(map[int]func(walkthrough.Transition)),
	}
	run, err := h.build(t)
	if err != nil {
		return nil, err
	}
	h.cur = run
	return h, nil
}

func (h *Host) build(t *tour.Tour) (*activeRun, error) {
	id := uuid.NewString()
	log := h.logger.With("tour", t.Name, "session", id)

	var pub *gateway.Publisher
	sinks := []walkthrough.Notifier{walkthrough.LogNotifier{Logger: log}}
	if h.cfg.Bus != nil {
		pub = gateway.NewPublisher(h.cfg.Bus, t.Name)
		sinks = append(sinks, pub)
	}
	var tracer *tracing.SessionTracer
	if h.cfg.Collector != nil {
		tracer = tracing.NewSessionTracer(h.cfg.Collector, id, t.Name)
		sinks = append(sinks, tracer.Notifier())
	}
	if h.cfg.Notifier != nil {
		sinks = append(sinks, h.cfg.Notifier)
	}
	notifier := walkthrough.DedupeNotifier(walkthrough.MultiNotifier(sinks...), h.cfg.DedupeTTL)

	rt := h.cfg.Runtime
	rt.Notifier = notifier
	rt.Logger = log
	steps, err := tour.Build(t, rt)
	if err != nil {
		return nil, err
	}
	s, err := walkthrough.New(steps,
		walkthrough.WithID(id),
		walkthrough.WithNotifier(notifier),
		walkthrough.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	opts := append([]overlay.Option{
		overlay.WithNotifier(notifier),
		overlay.WithLogger(log),
	}, h.cfg.EngineOptions...)
	eng := overlay.New(s, h.cfg.Doc, h.cfg.Renderer, opts...)

	run := &activeRun{tour: t, session: s, engine: eng}
	run.detach = append(run.detach,
		s.Subscribe(walkthrough.LoggingObserver(log, id)),
		s.Subscribe(h.counters.Observe),
		s.Subscribe(h.emitTransition),
		s.Subscribe(func(tr walkthrough.Transition) { h.afterTransition(run, tr) }),
		eng.Subscribe(h.emitFrame),
	)
	if pub != nil {
		run.detach = append(run.detach, pub.AttachSession(s), pub.AttachEngine(eng))
	}
	if tracer != nil {
		run.detach = append(run.detach, tracer.Attach(s))
	}
	return run, nil
}

// Run drives the current engine until ctx is done, restarting on the new
// engine whenever a reload is applied.
func (h *Host) Run(ctx context.Context) error {
	for {
		h.mu.Lock()
		run := h.cur
		h.mu.Unlock()

		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- run.engine.Run(runCtx) }()

		if !h.waitSwap(ctx, run) {
			cancel()
			err := <-done
			run.close()
			return err
		}
		cancel()
		if err := <-done; err != nil {
			return err
		}
	}
}

// waitSwap blocks until run is replaced (true) or ctx is done (false).
func (h *Host) waitSwap(ctx context.Context, run *activeRun) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-h.swapped:
			h.mu.Lock()
			replaced := h.cur != run
			h.mu.Unlock()
			if replaced {
				return true
			}
		}
	}
}

// Current implements gateway.Target.
func (h *Host) Current() (*walkthrough.Session, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cur.session, h.cur.tour.Name
}

// Tour returns the tour of the current run.
func (h *Host) Tour() *tour.Tour {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cur.tour
}

// Frame returns the last frame rendered by the current engine.
func (h *Host) Frame() (overlay.Frame, bool) {
	h.mu.Lock()
	eng := h.cur.engine
	h.mu.Unlock()
	return eng.Frame()
}

// Refresh re-measures the current step.
func (h *Host) Refresh() {
	h.mu.Lock()
	eng := h.cur.engine
	h.mu.Unlock()
	eng.Refresh()
}

// Pending reports whether a reloaded tour is waiting for the current run
// to end.
func (h *Host) Pending() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pending != nil
}

// Reload replaces the tour. It applies immediately when the walkthrough is
// inactive and otherwise once it stops; the step list never changes under
// an active run.
func (h *Host) Reload(t *tour.Tour) error {
	if err := t.Validate(h.cfg.Runtime.Gates); err != nil {
		return err
	}
	h.mu.Lock()
	run := h.cur
	h.mu.Unlock()

	if run.session.Active() {
		h.mu.Lock()
		h.pending = t
		h.mu.Unlock()
		// The run may have stopped before pending was set.
		if run.session.Active() {
			h.logger.Info("tour reload deferred until the walkthrough stops", "tour", t.Name)
			return nil
		}
		h.mu.Lock()
		t, h.pending = h.pending, nil
		h.mu.Unlock()
		if t == nil {
			return nil
		}
	}
	return h.swap(run, t)
}

// ReloadFile loads path and reloads it. Errors keep the current tour.
func (h *Host) ReloadFile(path string) error {
	t, err := tour.Load(path)
	if err != nil {
		return fmt.Errorf("reload %s: %w", path, err)
	}
	return h.Reload(t)
}

func (h *Host) afterTransition(run *activeRun, tr walkthrough.Transition) {
	if tr.To.Active {
		return
	}
	h.mu.Lock()
	t := h.pending
	h.pending = nil
	h.mu.Unlock()
	if t == nil {
		return
	}
	if err := h.swap(run, t); err != nil {
		h.logger.Warn("apply reloaded tour failed", "tour", t.Name, "error", err)
	}
}

// swap installs a run for t if old is still current.
func (h *Host) swap(old *activeRun, t *tour.Tour) error {
	next, err := h.build(t)
	if err != nil {
		return err
	}
	h.mu.Lock()
	if h.cur != old {
		h.mu.Unlock()
		next.close()
		return errors.New("host: run changed during reload")
	}
	h.cur = next
	h.mu.Unlock()
	old.close()

	select {
	case h.swapped <- struct{}{}:
	default:
	}
	if h.cfg.Bus != nil {
		gateway.NewPublisher(h.cfg.Bus, t.Name).TourLoaded(t.Path, len(t.Steps))
	}
	h.logger.Info("tour reloaded", "tour", t.Name, "steps", len(t.Steps))
	return nil
}

// Subscribe registers fn for frames of every run. It satisfies
// capture.Frames.
func (h *Host) Subscribe(fn func(overlay.Frame)) (unsubscribe func()) {
	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	h.frameSubs[id] = fn
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		delete(h.frameSubs, id)
		h.mu.Unlock()
	}
}

// Observe registers fn for transitions of every run.
func (h *Host) Observe(fn func(walkthrough.Transition)) (unsubscribe func()) {
	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	h.transSubs[id] = fn
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		delete(h.transSubs, id)
		h.mu.Unlock()
	}
}

func (h *Host) emitFrame(f overlay.Frame) {
	h.mu.Lock()
	fns := make([]func(overlay.Frame), 0, len(h.frameSubs))
	for _, fn := range h.frameSubs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(f)
	}
}

func (h *Host) emitTransition(t walkthrough.Transition) {
	h.mu.Lock()
	fns := make([]func(walkthrough.Transition), 0, len(h.transSubs))
	for _, fn := range h.transSubs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(t)
	}
}

func (h *Host) session() *walkthrough.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cur.session
}

// State returns the navigation state of the current session.
func (h *Host) State() walkthrough.State { return h.session().State() }

// Total returns the step count of the current tour.
func (h *Host) Total() int { return h.session().Total() }

// Start activates the walkthrough at index, or at step 0 when index is 0
// or out of range.
func (h *Host) Start(ctx context.Context, index int) {
	s := h.session()
	if index > 0 && index < s.Total() {
		s.GoToStep(ctx, index)
		return
	}
	s.Start(ctx)
}

// The methods below make Host a walkthrough.Controls that always acts on
// the current session, so a renderer outlives reloads.

func (h *Host) Next(ctx context.Context) error {
	s := h.session()
	return s.Next(walkthrough.NewContext(ctx, s))
}

func (h *Host) Back(ctx context.Context) {
	h.session().Back(ctx)
}

func (h *Host) Skip(ctx context.Context) {
	h.session().Skip(ctx)
}

func (h *Host) Finish(ctx context.Context) {
	h.session().Finish(ctx)
}

func (h *Host) GoToStep(ctx context.Context, index int) {
	h.session().GoToStep(ctx, index)
}

// Stats tallies transitions across every tour this host has loaded.
func (h *Host) Stats() walkthrough.CountersSnapshot {
	return h.counters.Snapshot()
}
