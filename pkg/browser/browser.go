// Package browser drives a Chrome tab through the DevTools protocol and
// adapts it to the walkthrough engine: a dom.Document for target
// resolution, an overlay.Renderer that injects the tooltip and backdrop,
// and the page actions and probes tour hooks use.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Manager handles the Chrome browser lifecycle and page management.
type Manager struct {
	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
	pages    map[string]*Page // targetID → page
	headless bool
	bin      string
	width    int
	height   int
	logger   *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithHeadless sets headless mode (default false).
func WithHeadless(h bool) Option {
	return func(m *Manager) { m.headless = h }
}

// WithBin sets the Chrome executable. Empty lets rod find or download one.
func WithBin(path string) Option {
	return func(m *Manager) { m.bin = path }
}

// WithWindowSize sets the window size of new pages.
func WithWindowSize(width, height int) Option {
	return func(m *Manager) {
		if width > 0 && height > 0 {
			m.width, m.height = width, height
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// New creates a Manager with options.
func New(opts ...Option) *Manager {
	m := &Manager{
		pages:  make(map[string]*Page),
		width:  1280,
		height: 800,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Start launches a Chrome browser.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		return fmt.Errorf("browser already running")
	}

	l := launcher.New().
		Context(ctx).
		Headless(m.headless).
		Set("disable-gpu").
		Set("no-first-run").
		Set("no-default-browser-check").
		Set("window-size", fmt.Sprintf("%d,%d", m.width, m.height))
	if m.bin != "" {
		l = l.Bin(m.bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch Chrome: %w", err)
	}

	m.logger.Info("Chrome launched", "cdp", controlURL, "headless", m.headless)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return fmt.Errorf("connect to Chrome: %w", err)
	}

	m.browser = b
	m.launcher = l
	return nil
}

// Stop closes the Chrome browser.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser == nil {
		return nil
	}

	err := m.browser.Close()
	if m.launcher != nil {
		m.launcher.Cleanup()
	}
	m.browser = nil
	m.launcher = nil
	m.pages = make(map[string]*Page)
	return err
}

// Status returns current browser status.
func (m *Manager) Status() *StatusInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser == nil {
		return &StatusInfo{Running: false}
	}

	pages, _ := m.browser.Pages()
	info := &StatusInfo{
		Running: true,
		Tabs:    len(pages),
	}
	if len(pages) > 0 {
		if pageInfo, err := pages[0].Info(); err == nil {
			info.URL = pageInfo.URL
		}
	}
	return info
}

// Open opens a new tab at url and waits for it to settle.
func (m *Manager) Open(ctx context.Context, url string) (*Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser == nil {
		return nil, fmt.Errorf("browser not running")
	}

	rp, err := m.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}
	rp = rp.Context(context.WithoutCancel(ctx))
	if err := rp.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  m.width,
		Height: m.height,
	}); err != nil {
		m.logger.Warn("set viewport size failed", "error", err)
	}
	if err := rp.Timeout(30 * time.Second).WaitStable(300 * time.Millisecond); err != nil {
		return nil, fmt.Errorf("wait stable: %w", err)
	}

	p := newPage(rp, m.logger)
	m.pages[p.TargetID()] = p
	return p, nil
}

// Pages returns the tabs opened through Open.
func (m *Manager) Pages() []*Page {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Page, 0, len(m.pages))
	for _, p := range m.pages {
		out = append(out, p)
	}
	return out
}

// Close shuts down the browser if running.
func (m *Manager) Close() error {
	return m.Stop(context.Background())
}
