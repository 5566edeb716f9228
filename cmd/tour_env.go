package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/walkthrough/internal/bus"
	"github.com/nextlevelbuilder/walkthrough/internal/config"
	"github.com/nextlevelbuilder/walkthrough/internal/host"
	"github.com/nextlevelbuilder/walkthrough/internal/tour"
	"github.com/nextlevelbuilder/walkthrough/internal/tracing"
	"github.com/nextlevelbuilder/walkthrough/pkg/browser"
	"github.com/nextlevelbuilder/walkthrough/pkg/layout"
	"github.com/nextlevelbuilder/walkthrough/pkg/overlay"
	"github.com/nextlevelbuilder/walkthrough/pkg/walkthrough"
)

// tourEnv is a tour running in a browser tab.
type tourEnv struct {
	tour      *tour.Tour
	browser   *browser.Manager
	page      *browser.Page
	host      *host.Host
	bus       *bus.MessageBus
	collector *tracing.Collector
}

type envOptions struct {
	// url overrides the tour's url.
	url string
	// drawOverlay injects the tooltip into the page. Without it frames are
	// computed for a tooltip of the configured size and nothing is drawn.
	drawOverlay bool
	notifier    walkthrough.Notifier
}

// openTour launches Chrome, opens the tour's page and builds the host.
// The caller runs env.host.Run and calls env.close.
func openTour(ctx context.Context, cfg *config.Config, t *tour.Tour, opts envOptions) (*tourEnv, error) {
	target := opts.url
	if target == "" {
		target = t.URL
	}
	if target == "" {
		return nil, errors.New("no page to open: set url in the tour or pass --url")
	}

	mgr := browser.New(
		browser.WithHeadless(cfg.Browser.Headless),
		browser.WithBin(cfg.Browser.Bin),
		browser.WithWindowSize(cfg.Browser.Width, cfg.Browser.Height),
	)
	if err := mgr.Start(ctx); err != nil {
		return nil, err
	}
	page, err := mgr.Open(ctx, target)
	if err != nil {
		mgr.Close()
		return nil, fmt.Errorf("open %s: %w", target, err)
	}

	env := &tourEnv{
		tour:      t,
		browser:   mgr,
		page:      page,
		bus:       bus.New(),
		collector: tracing.NewCollector(),
	}
	initOTelExporter(ctx, cfg, env.collector)
	env.collector.Start()

	var (
		renderer overlay.Renderer
		drawer   *browser.Renderer
	)
	if opts.drawOverlay {
		drawer = browser.NewRenderer(page, nil, slog.Default())
		drawer.SetContext(ctx)
		renderer = drawer
	} else {
		renderer = overlay.FixedSizeRenderer{Size: layout.Size{
			Width:  cfg.Overlay.TooltipWidth,
			Height: cfg.Overlay.TooltipHeight,
		}}
	}

	h, err := host.New(t, host.Config{
		Doc:      page,
		Renderer: renderer,
		Runtime: tour.Runtime{
			Actuator:    page,
			Probe:       page,
			WaitTimeout: cfg.ResolveOptions().Timeout,
		},
		Bus:           env.bus,
		Collector:     env.collector,
		Notifier:      opts.notifier,
		DedupeTTL:     cfg.Notify.Dedupe(),
		EngineOptions: engineOptions(cfg),
		Logger:        slog.Default(),
	})
	if err != nil {
		env.close()
		return nil, err
	}
	if drawer != nil {
		drawer.SetControls(h)
	}
	env.host = h
	return env, nil
}

func engineOptions(cfg *config.Config) []overlay.Option {
	return []overlay.Option{
		overlay.WithResolveOptions(cfg.ResolveOptions()),
		overlay.WithSettleDelay(cfg.Overlay.Settle()),
		overlay.WithSpacing(cfg.Overlay.Spacing),
		overlay.WithDebounce(cfg.Overlay.Debounce()),
	}
}

func (e *tourEnv) close() {
	e.collector.Stop()
	if err := e.browser.Close(); err != nil {
		slog.Warn("close browser", "error", err)
	}
}
