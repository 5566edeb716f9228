package tour

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/walkthrough/pkg/layout"
	"github.com/nextlevelbuilder/walkthrough/pkg/walkthrough"
)

// Runtime is what built steps need to act on a page.
type Runtime struct {
	Actuator Actuator
	Probe    Probe
	// Notifier receives OnEnter/OnExit action failures. Nil logs them.
	Notifier walkthrough.Notifier
	Retry    RetryConfig
	// Gates is shared across tours; nil creates one per Build.
	Gates       *GateCompiler
	WaitTimeout time.Duration
	Logger      *slog.Logger
}

// Build converts the tour into session steps. Hook actions run through a
// Runner bound to rt; canGoNext expressions are evaluated with rt.Probe.
func Build(t *Tour, rt Runtime) ([]walkthrough.Step, error) {
	if t == nil {
		return nil, errors.New("nil tour")
	}
	if rt.Logger == nil {
		rt.Logger = slog.Default()
	}
	if rt.Notifier == nil {
		rt.Notifier = walkthrough.LogNotifier{Logger: rt.Logger}
	}
	if rt.Retry == (RetryConfig{}) {
		rt.Retry = DefaultRetryConfig()
	}
	if rt.Gates == nil {
		g, err := NewGateCompiler(len(t.Steps))
		if err != nil {
			return nil, err
		}
		rt.Gates = g
	}
	if err := t.Validate(rt.Gates); err != nil {
		return nil, err
	}

	runner := &Runner{
		Actuator:    rt.Actuator,
		Probe:       rt.Probe,
		Retry:       rt.Retry,
		WaitTimeout: rt.WaitTimeout,
		Logger:      rt.Logger.With("tour", t.Name),
	}

	steps := make([]walkthrough.Step, 0, len(t.Steps))
	for i, spec := range t.Steps {
		st, err := buildStep(spec, GateVars{Step: i, Total: len(t.Steps)}, runner, rt)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		steps = append(steps, st)
	}
	return steps, nil
}

func buildStep(spec StepSpec, pos GateVars, runner *Runner, rt Runtime) (walkthrough.Step, error) {
	st := walkthrough.Step{
		Selector:       spec.Selector,
		Content:        spec.Content,
		Placement:      layout.Placement(spec.Placement),
		ShowBackdrop:   spec.ShowBackdrop,
		TooltipClass:   spec.TooltipClass,
		TooltipStyle:   spec.TooltipStyle,
		NavButtonClass: spec.NavButtonClass,
		NavButtonStyle: spec.NavButtonStyle,
	}
	switch spec.Navigation {
	case NavigationCompact:
		st.Navigation = walkthrough.CompactNavigation
	case NavigationNone:
		st.Navigation = walkthrough.NoNavigation
	}

	onEnter, err := ParseActions(spec.OnEnter)
	if err != nil {
		return st, fmt.Errorf("onEnter: %w", err)
	}
	onExit, err := ParseActions(spec.OnExit)
	if err != nil {
		return st, fmt.Errorf("onExit: %w", err)
	}
	beforeNext, err := ParseActions(spec.BeforeNext)
	if err != nil {
		return st, fmt.Errorf("beforeNext: %w", err)
	}

	if len(onEnter) > 0 {
		st.OnEnter = func(ctx context.Context, ev walkthrough.StepEvent) {
			runHook(ctx, runner, rt.Notifier, ev.Index, onEnter)
		}
	}
	if len(onExit) > 0 {
		st.OnExit = func(ctx context.Context, ev walkthrough.StepEvent) {
			runHook(ctx, runner, rt.Notifier, ev.Index, onExit)
		}
	}
	if len(beforeNext) > 0 {
		st.BeforeNext = func(ctx context.Context) error {
			return runner.Run(ctx, pos.Step, beforeNext)
		}
	}

	if spec.CanGoNext != nil {
		expr := spec.CanGoNext.Expr
		st.CanGoNext = &walkthrough.Gate{
			ErrorString: spec.CanGoNext.Error,
			Validate: func(ctx context.Context) (bool, error) {
				if rt.Probe == nil {
					return false, errors.New("no page attached")
				}
				return rt.Gates.Eval(ctx, expr, rt.Probe, pos)
			},
		}
	}
	return st, nil
}

// runHook runs enter/exit actions. Failures cannot abort the transition,
// so they are reported as notices.
func runHook(ctx context.Context, runner *Runner, n walkthrough.Notifier, index int, actions []Action) {
	if err := runner.Run(ctx, index, actions); err != nil {
		if ctx.Err() != nil {
			return
		}
		n.Notify(ctx, walkthrough.Notice{
			Kind:    walkthrough.NoticeActionFailed,
			Message: err.Error(),
			Index:   index,
			Err:     err,
		})
	}
}
