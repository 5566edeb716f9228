package cmd

import (
	"context"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nextlevelbuilder/walkthrough/internal/tour"
	"github.com/nextlevelbuilder/walkthrough/pkg/protocol"
	"github.com/nextlevelbuilder/walkthrough/pkg/walkthrough"
)

type fakeControls struct {
	mu      sync.Mutex
	calls   []string
	state   walkthrough.State
	tour    *tour.Tour
	nextErr error
}

func (f *fakeControls) record(c string) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
}

func (f *fakeControls) Start(_ context.Context, i int) {
	f.record("start")
	f.mu.Lock()
	f.state.Active, f.state.Index = true, i
	f.mu.Unlock()
}

func (f *fakeControls) Next(context.Context) error {
	f.record("next")
	return f.nextErr
}

func (f *fakeControls) Back(context.Context)   { f.record("back") }
func (f *fakeControls) Skip(context.Context)   { f.record("skip") }
func (f *fakeControls) Finish(context.Context) { f.record("finish") }
func (f *fakeControls) GoToStep(_ context.Context, i int) {
	f.record("goto")
	f.mu.Lock()
	f.state.Active, f.state.Index = true, i
	f.mu.Unlock()
}
func (f *fakeControls) Refresh() { f.record("refresh") }

func (f *fakeControls) State() walkthrough.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeControls) Tour() *tour.Tour { return f.tour }
func (f *fakeControls) Pending() bool    { return false }

func (f *fakeControls) Stats() walkthrough.CountersSnapshot {
	return walkthrough.CountersSnapshot{Starts: 1, Nexts: 2}
}

func (f *fakeControls) lastCall() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return ""
	}
	return f.calls[len(f.calls)-1]
}

func newTestPanel() (panelModel, *fakeControls) {
	ctl := &fakeControls{
		state: walkthrough.State{Total: 3},
		tour: &tour.Tour{Name: "onboarding", Steps: []tour.StepSpec{
			{Selector: "#signup", Content: "<b>Create</b> an account"},
			{Selector: "#profile", Content: "Fill in your profile"},
			{Selector: "#done"},
		}},
	}
	return newPanelModel(context.Background(), ctl, make(chan tea.Msg), panelInfo{gateway: "127.0.0.1:1"}), ctl
}

func press(t *testing.T, m panelModel, key string) (panelModel, tea.Msg) {
	t.Helper()
	var msg tea.KeyMsg
	switch key {
	case "right":
		msg = tea.KeyMsg{Type: tea.KeyRight}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	next, cmd := m.Update(msg)
	var out tea.Msg
	if cmd != nil {
		out = cmd()
	}
	return next.(panelModel), out
}

func TestPanelKeys(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"s", "start"},
		{"n", "next"},
		{"right", "next"},
		{"b", "back"},
		{"k", "skip"},
		{"esc", "skip"},
		{"f", "finish"},
		{"r", "refresh"},
		{"2", "goto"},
	}
	for _, tt := range tests {
		m, ctl := newTestPanel()
		press(t, m, tt.key)
		if got := ctl.lastCall(); got != tt.want {
			t.Errorf("key %q called %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestPanelGoToDigit(t *testing.T) {
	m, ctl := newTestPanel()
	m, msg := press(t, m, "3")
	next, _ := m.Update(msg)
	m = next.(panelModel)
	if ctl.State().Index != 2 || m.state.Index != 2 {
		t.Errorf("index = %d (model %d), want 2", ctl.State().Index, m.state.Index)
	}
}

func TestPanelNextBusy(t *testing.T) {
	m, ctl := newTestPanel()
	m, msg := press(t, m, "n")
	if !m.busy {
		t.Fatal("panel should be busy while next runs")
	}
	m2, _ := press(t, m, "n")
	ctl.mu.Lock()
	calls := len(ctl.calls)
	ctl.mu.Unlock()
	if calls != 1 {
		t.Errorf("next called %d times while busy, want 1", calls)
	}

	next, _ := m2.Update(msg)
	if next.(panelModel).busy {
		t.Error("busy not cleared after next finished")
	}
}

func TestPanelNextError(t *testing.T) {
	m, ctl := newTestPanel()
	ctl.nextErr = walkthrough.ErrNotActive
	m, msg := press(t, m, "n")
	next, _ := m.Update(msg)
	m = next.(panelModel)
	if m.notice == nil || !strings.Contains(m.notice.Message, "not running") {
		t.Errorf("notice = %+v, want not running message", m.notice)
	}
}

func TestPanelNoticeAndView(t *testing.T) {
	m, ctl := newTestPanel()
	ctl.Start(context.Background(), 0)

	next, cmd := m.Update(noticeMsg(walkthrough.Notice{Kind: walkthrough.NoticeGateRejected, Message: "Finish sign-up first"}))
	if cmd == nil {
		t.Error("notice should keep listening for events")
	}
	m = next.(panelModel)
	next, _ = m.Update(transitionMsg(walkthrough.Transition{Kind: walkthrough.KindStart}))
	m = next.(panelModel)

	view := m.View()
	for _, want := range []string{"onboarding", "step 1 / 3", "#signup", "Create an account", "Finish sign-up first", "127.0.0.1:1", "2 next"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestPanelQuit(t *testing.T) {
	m, _ := newTestPanel()
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"<b>Create</b> an account", "Create an account"},
		{"Tom &amp; Jerry", "Tom & Jerry"},
		{"<script>alert(1)</script>hi", "hi"},
		{"  spaced\n\tout  ", "spaced out"},
	}
	for _, tt := range tests {
		if got := plainText(tt.in); got != tt.want {
			t.Errorf("plainText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello world", 5); got != "hell…" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("hi", 5); got != "hi" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("hi", 0); got != "" {
		t.Errorf("truncate = %q", got)
	}
}

func TestFormatRemoteError(t *testing.T) {
	tests := []struct {
		in   *protocol.ErrorShape
		want string
	}{
		{nil, "unknown error"},
		{&protocol.ErrorShape{Code: protocol.ErrGateRejected, Message: "Finish sign-up first"}, "Finish sign-up first"},
		{&protocol.ErrorShape{Code: protocol.ErrNotActive}, "not running"},
		{&protocol.ErrorShape{Code: protocol.ErrBusy, Retryable: true, RetryAfterMs: 250}, "Retry in 250ms"},
		{&protocol.ErrorShape{Code: protocol.ErrInvalidRequest, Message: "unsupported protocol 9 (server speaks 1)"}, "Protocol mismatch"},
		{&protocol.ErrorShape{Code: "WEIRD", Message: "odd"}, "odd (WEIRD)"},
	}
	for _, tt := range tests {
		if got := formatRemoteError(tt.in); !strings.Contains(got, tt.want) {
			t.Errorf("formatRemoteError(%+v) = %q, want it to contain %q", tt.in, got, tt.want)
		}
	}
}
