package cmd

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/microcosm-cc/bluemonday"

	"github.com/nextlevelbuilder/walkthrough/internal/tour"
	"github.com/nextlevelbuilder/walkthrough/pkg/walkthrough"
)

// noticeReload reports a tour file that changed but failed to load.
const noticeReload walkthrough.NoticeKind = "tour_reload_failed"

const (
	panelRefresh  = time.Second
	panelMaxSteps = 9
)

var (
	primaryColor = lipgloss.Color("212")
	mutedColor   = lipgloss.Color("241")
	warningColor = lipgloss.Color("214")
	errorColor   = lipgloss.Color("196")
	successColor = lipgloss.Color("42")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	warningStyle = lipgloss.NewStyle().Foreground(warningColor)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	activeStyle  = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	cursorStyle  = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)

	currentStepStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("237")).
				Foreground(lipgloss.Color("255")).
				Bold(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

var plainPolicy = bluemonday.StrictPolicy()

// plainText flattens step markup for the terminal.
func plainText(content string) string {
	return strings.Join(strings.Fields(html.UnescapeString(plainPolicy.Sanitize(content))), " ")
}

func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return runewidth.Truncate(s, width, "…")
}

type (
	transitionMsg walkthrough.Transition
	noticeMsg     walkthrough.Notice
	tickMsg       time.Time
	actionDoneMsg struct{ err error }
)

// panelNotifier forwards notices to the panel without blocking.
func panelNotifier(ch chan<- tea.Msg) walkthrough.Notifier {
	return walkthrough.NotifierFunc(func(_ context.Context, n walkthrough.Notice) {
		select {
		case ch <- noticeMsg(n):
		default:
		}
	})
}

// panelControls is what the panel drives; *host.Host implements it.
type panelControls interface {
	Start(ctx context.Context, index int)
	Next(ctx context.Context) error
	Back(ctx context.Context)
	Skip(ctx context.Context)
	Finish(ctx context.Context)
	GoToStep(ctx context.Context, index int)
	Refresh()
	State() walkthrough.State
	Tour() *tour.Tour
	Pending() bool
	Stats() walkthrough.CountersSnapshot
}

type panelInfo struct {
	gateway string
	logFile string
}

// panelModel is the bubbletea model of the terminal control panel.
type panelModel struct {
	ctx    context.Context
	ctl    panelControls
	events <-chan tea.Msg
	info   panelInfo

	state   walkthrough.State
	tour    *tour.Tour
	pending bool
	stats   walkthrough.CountersSnapshot
	busy    bool
	notice  *walkthrough.Notice
	width   int
}

func newPanelModel(ctx context.Context, ctl panelControls, events <-chan tea.Msg, info panelInfo) panelModel {
	m := panelModel{ctx: ctx, ctl: ctl, events: events, info: info, width: 80}
	m.refresh()
	return m
}

func (m *panelModel) refresh() {
	m.state = m.ctl.State()
	m.tour = m.ctl.Tour()
	m.pending = m.ctl.Pending()
	m.stats = m.ctl.Stats()
}

func listen(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg { return <-ch }
}

func tick() tea.Cmd {
	return tea.Tick(panelRefresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m panelModel) Init() tea.Cmd {
	return tea.Batch(listen(m.events), tick())
}

func (m panelModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	case transitionMsg:
		m.refresh()
		return m, listen(m.events)
	case noticeMsg:
		n := walkthrough.Notice(msg)
		m.notice = &n
		return m, listen(m.events)
	case actionDoneMsg:
		m.busy = false
		if text := panelError(msg.err); text != "" {
			m.notice = &walkthrough.Notice{Kind: "error", Message: text, Index: m.state.Index}
		}
		m.refresh()
		return m, nil
	case tickMsg:
		m.refresh()
		return m, tick()
	}
	return m, nil
}

func (m panelModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "s":
		m.notice = nil
		return m, m.do(func(ctx context.Context) error { m.ctl.Start(ctx, 0); return nil })
	case "n", "right", "enter", " ":
		if m.busy {
			return m, nil
		}
		m.busy = true
		m.notice = nil
		return m, m.do(m.ctl.Next)
	case "b", "left":
		m.notice = nil
		return m, m.do(func(ctx context.Context) error { m.ctl.Back(ctx); return nil })
	case "k", "esc":
		return m, m.do(func(ctx context.Context) error { m.ctl.Skip(ctx); return nil })
	case "f":
		return m, m.do(func(ctx context.Context) error { m.ctl.Finish(ctx); return nil })
	case "r":
		m.ctl.Refresh()
		return m, nil
	}
	if len(key) == 1 && key[0] >= '1' && key[0] <= '9' {
		idx := int(key[0] - '1')
		m.notice = nil
		return m, m.do(func(ctx context.Context) error { m.ctl.GoToStep(ctx, idx); return nil })
	}
	return m, nil
}

// do runs a navigation call off the UI goroutine; hooks may block.
func (m panelModel) do(fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg { return actionDoneMsg{err: fn(ctx)} }
}

// panelError returns the text for Next errors the notifier does not
// already report.
func panelError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, walkthrough.ErrNotActive):
		return "the walkthrough is not running, press s to start"
	case errors.Is(err, walkthrough.ErrNavigationBusy):
		return "still checking the current step"
	case errors.Is(err, walkthrough.ErrStaleTransition):
		return "the step changed while it was being checked"
	}
	return ""
}

func (m panelModel) View() string {
	inner := m.width - 4
	if inner < 20 {
		inner = 20
	}
	var b strings.Builder

	status := mutedStyle.Render("○ stopped")
	if m.state.Active {
		status = activeStyle.Render("● running")
	}
	name := "walkthrough"
	if m.tour != nil && m.tour.Name != "" {
		name = m.tour.Name
	}
	fmt.Fprintf(&b, "%s  %s  %s\n", titleStyle.Render(truncate(name, inner/2)), status,
		mutedStyle.Render(fmt.Sprintf("step %d / %d", m.state.Index+1, m.state.Total)))

	if m.tour != nil && m.state.Index < len(m.tour.Steps) {
		st := m.tour.Steps[m.state.Index]
		b.WriteString("\n")
		b.WriteString(cursorStyle.Render(truncate(st.Selector, inner)))
		b.WriteString("\n")
		if text := plainText(st.Content); text != "" {
			b.WriteString(lipgloss.NewStyle().Width(inner).Render(text))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(m.stepList(inner))
	}

	if m.busy {
		b.WriteString("\n" + mutedStyle.Render("checking step…"))
	}
	if m.notice != nil {
		style := warningStyle
		switch m.notice.Kind {
		case walkthrough.NoticeBeforeNextFailed, walkthrough.NoticeActionFailed, noticeReload:
			style = errorStyle
		}
		b.WriteString("\n" + style.Render(truncate(m.notice.Message, inner)))
	}

	var footer []string
	if st := m.stats; st.Starts+st.Nexts+st.Jumps > 0 {
		footer = append(footer, fmt.Sprintf("%d next · %d back · %d skip", st.Nexts, st.Backs, st.Skips))
	}
	if m.info.gateway != "" {
		footer = append(footer, "gateway "+m.info.gateway)
	}
	if m.pending {
		footer = append(footer, "reload pending")
	}
	if m.info.logFile != "" {
		footer = append(footer, "log "+m.info.logFile)
	}
	if len(footer) > 0 {
		b.WriteString("\n\n" + mutedStyle.Render(truncate(strings.Join(footer, " · "), inner)))
	}
	b.WriteString("\n" + mutedStyle.Render(truncate("s start · n next · b back · k skip · f finish · 1-9 go to · r refresh · q quit", inner)))

	return panelStyle.Width(inner + 2).Render(b.String())
}

// stepList renders a window of steps around the current one.
func (m panelModel) stepList(width int) string {
	steps := m.tour.Steps
	from := m.state.Index - panelMaxSteps/2
	if from > len(steps)-panelMaxSteps {
		from = len(steps) - panelMaxSteps
	}
	if from < 0 {
		from = 0
	}
	to := min(from+panelMaxSteps, len(steps))

	var lines []string
	for i := from; i < to; i++ {
		line := truncate(stepLabel(i, steps[i]), width-2)
		if i == m.state.Index {
			lines = append(lines, cursorStyle.Render("▸ ")+currentStepStyle.Render(line))
			continue
		}
		lines = append(lines, "  "+line)
	}
	return strings.Join(lines, "\n")
}
