package tour

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
)

// Verb is the first word of an action line.
type Verb string

const (
	VerbClick    Verb = "click"    // click <selector>
	VerbType     Verb = "type"     // type <selector> <text>
	VerbPress    Verb = "press"    // press <key>
	VerbWait     Verb = "wait"     // wait <duration> | wait <selector>
	VerbEval     Verb = "eval"     // eval <js>
	VerbNavigate Verb = "navigate" // navigate <url>
	VerbLog      Verb = "log"      // log <message...>
)

// Action is one parsed hook line such as `click "#signup"`.
type Action struct {
	Verb Verb
	Args []string
	Raw  string
}

func (a Action) String() string { return a.Raw }

// Actuator performs page side effects.
type Actuator interface {
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	Press(ctx context.Context, key string) error
	Eval(ctx context.Context, js string) error
	Navigate(ctx context.Context, url string) error
}

var arity = map[Verb][2]int{ // min, max (-1 = unbounded)
	VerbClick:    {1, 1},
	VerbType:     {2, 2},
	VerbPress:    {1, 1},
	VerbWait:     {1, 1},
	VerbEval:     {1, 1},
	VerbNavigate: {1, 1},
	VerbLog:      {1, -1},
}

// ParseAction splits line with shell quoting rules and checks the verb and
// argument count.
func ParseAction(line string) (Action, error) {
	words, err := shellwords.Parse(line)
	if err != nil {
		return Action{}, fmt.Errorf("action %q: %w", line, err)
	}
	if len(words) == 0 {
		return Action{}, errors.New("empty action")
	}
	verb := Verb(strings.ToLower(words[0]))
	bounds, ok := arity[verb]
	if !ok {
		return Action{}, fmt.Errorf("action %q: unknown verb %q", line, words[0])
	}
	args := words[1:]
	if len(args) < bounds[0] || (bounds[1] >= 0 && len(args) > bounds[1]) {
		return Action{}, fmt.Errorf("action %q: %s takes %s", line, verb, describeArity(bounds))
	}
	return Action{Verb: verb, Args: args, Raw: line}, nil
}

func describeArity(b [2]int) string {
	switch {
	case b[1] < 0:
		return fmt.Sprintf("at least %d argument(s)", b[0])
	case b[0] == b[1]:
		return fmt.Sprintf("%d argument(s)", b[0])
	default:
		return fmt.Sprintf("%d to %d arguments", b[0], b[1])
	}
}

// ParseActions parses every line, stopping at the first error.
func ParseActions(lines []string) ([]Action, error) {
	out := make([]Action, 0, len(lines))
	for i, l := range lines {
		a, err := ParseAction(l)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// Runner executes actions against a page.
type Runner struct {
	Actuator Actuator
	Probe    Probe
	Retry    RetryConfig
	// WaitTimeout bounds `wait <selector>`.
	WaitTimeout time.Duration
	// PollInterval is the `wait <selector>` polling period.
	PollInterval time.Duration
	Logger       *slog.Logger
}

// ActionError reports which action failed.
type ActionError struct {
	Action   Action
	Attempts int
	Err      error
}

func (e *ActionError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("%s failed after %d attempts: %v", e.Action.Raw, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Action.Raw, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// Run executes actions in order and stops at the first failure.
// Page actions are retried with backoff; wait and log are not.
func (r *Runner) Run(ctx context.Context, step int, actions []Action) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, a := range actions {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch a.Verb {
		case VerbLog:
			logger.InfoContext(ctx, strings.Join(a.Args, " "), "step", step)
			continue
		case VerbWait:
			if err := r.wait(ctx, a.Args[0]); err != nil {
				return &ActionError{Action: a, Attempts: 1, Err: err}
			}
			continue
		}

		if r.Actuator == nil {
			return &ActionError{Action: a, Attempts: 0, Err: errors.New("no page attached")}
		}
		attempts, err := executeWithRetry(ctx, r.Retry, func(ctx context.Context) error {
			return r.do(ctx, a)
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &ActionError{Action: a, Attempts: attempts, Err: err}
		}
		if attempts > 1 {
			logger.Debug("tour: action succeeded after retry", "step", step, "action", a.Raw, "attempts", attempts)
		}
	}
	return nil
}

func (r *Runner) do(ctx context.Context, a Action) error {
	switch a.Verb {
	case VerbClick:
		return r.Actuator.Click(ctx, a.Args[0])
	case VerbType:
		return r.Actuator.Type(ctx, a.Args[0], a.Args[1])
	case VerbPress:
		return r.Actuator.Press(ctx, a.Args[0])
	case VerbEval:
		return r.Actuator.Eval(ctx, a.Args[0])
	case VerbNavigate:
		return r.Actuator.Navigate(ctx, a.Args[0])
	}
	return fmt.Errorf("unsupported verb %q", a.Verb)
}

// wait sleeps for a duration argument, or polls until a selector exists.
func (r *Runner) wait(ctx context.Context, arg string) error {
	if d, err := time.ParseDuration(arg); err == nil {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}

	if r.Probe == nil {
		return errors.New("no page attached")
	}
	timeout, interval := r.WaitTimeout, r.PollInterval
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		ok, err := r.Probe.Exists(ctx, arg)
		if err != nil && ctx.Err() == nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("selector %q did not appear within %s", arg, timeout)
		case <-ticker.C:
		}
	}
}
