package tour

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		line string
		verb Verb
		args []string
	}{
		{`click "#signup"`, VerbClick, []string{"#signup"}},
		{`type "input[name=email]" 'a b@example.test'`, VerbType, []string{"input[name=email]", "a b@example.test"}},
		{`press Enter`, VerbPress, []string{"Enter"}},
		{`wait 300ms`, VerbWait, []string{"300ms"}},
		{`WAIT .ready`, VerbWait, []string{".ready"}},
		{`eval "window.scrollTo(0, 0)"`, VerbEval, []string{"window.scrollTo(0, 0)"}},
		{`navigate https://example.test/next`, VerbNavigate, []string{"https://example.test/next"}},
		{`log step two shown`, VerbLog, []string{"step", "two", "shown"}},
	}
	for _, tt := range tests {
		a, err := ParseAction(tt.line)
		if err != nil {
			t.Errorf("ParseAction(%q): %v", tt.line, err)
			continue
		}
		if a.Verb != tt.verb || !reflect.DeepEqual(a.Args, tt.args) {
			t.Errorf("ParseAction(%q) = %s %q, want %s %q", tt.line, a.Verb, a.Args, tt.verb, tt.args)
		}
		if a.String() != tt.line {
			t.Errorf("String() = %q, want %q", a.String(), tt.line)
		}
	}
}

func TestParseActionErrors(t *testing.T) {
	for _, line := range []string{"", "   ", "hover a", "click", "click a b", `click "unterminated`, "log"} {
		if _, err := ParseAction(line); err == nil {
			t.Errorf("ParseAction(%q): expected error", line)
		}
	}
}

func TestParseActionsReportsLine(t *testing.T) {
	_, err := ParseActions([]string{"click a", "nope"})
	if err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Errorf("error = %v, want line 1", err)
	}
}

func mustActions(t *testing.T, lines ...string) []Action {
	t.Helper()
	as, err := ParseActions(lines)
	if err != nil {
		t.Fatal(err)
	}
	return as
}

func TestRunnerRunsInOrder(t *testing.T) {
	page := newFakePage()
	r := &Runner{Actuator: page, Probe: page, Retry: fastRetry}
	err := r.Run(context.Background(), 0, mustActions(t,
		`click "#a"`,
		`type "#email" hi`,
		`press Enter`,
		`log typed`,
		`wait 1ms`,
		`eval "1+1"`,
		`navigate /next`,
	))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"click #a", "type #email hi", "press Enter", "eval 1+1", "navigate /next"}
	if got := page.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %q, want %q", got, want)
	}
}

func TestRunnerRetriesActions(t *testing.T) {
	page := newFakePage()
	page.failures["click #a"] = 2
	r := &Runner{Actuator: page, Retry: fastRetry}
	if err := r.Run(context.Background(), 0, mustActions(t, `click "#a"`)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := len(page.Calls()); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestRunnerStopsAtFirstFailure(t *testing.T) {
	page := newFakePage()
	page.failures["click #a"] = 10
	r := &Runner{Actuator: page, Retry: RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}}
	err := r.Run(context.Background(), 2, mustActions(t, `click "#a"`, `click "#b"`))

	var ae *ActionError
	if !errors.As(err, &ae) {
		t.Fatalf("error = %v, want *ActionError", err)
	}
	if ae.Attempts != 2 || ae.Action.Raw != `click "#a"` {
		t.Errorf("ActionError = %+v", ae)
	}
	for _, c := range page.Calls() {
		if c == "click #b" {
			t.Error("second action ran after a failure")
		}
	}
}

func TestRunnerWithoutPage(t *testing.T) {
	r := &Runner{}
	err := r.Run(context.Background(), 0, mustActions(t, `click a`))
	if err == nil || !strings.Contains(err.Error(), "no page attached") {
		t.Errorf("error = %v", err)
	}
	if err := r.Run(context.Background(), 0, mustActions(t, `log fine`, `wait 1ms`)); err != nil {
		t.Errorf("log/wait without page: %v", err)
	}
}

func TestRunnerWaitForSelector(t *testing.T) {
	page := newFakePage()
	r := &Runner{Probe: page, WaitTimeout: time.Second, PollInterval: 5 * time.Millisecond}

	go func() {
		time.Sleep(20 * time.Millisecond)
		page.set(".ready", true)
	}()
	if err := r.Run(context.Background(), 0, mustActions(t, `wait .ready`)); err != nil {
		t.Fatalf("wait: %v", err)
	}

	r.WaitTimeout = 20 * time.Millisecond
	err := r.Run(context.Background(), 0, mustActions(t, `wait .never`))
	if err == nil || !strings.Contains(err.Error(), "did not appear") {
		t.Errorf("error = %v, want timeout", err)
	}
}

func TestRunnerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &Runner{Actuator: newFakePage()}
	if err := r.Run(ctx, 0, mustActions(t, `click a`)); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
