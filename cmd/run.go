package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/walkthrough/internal/config"
	"github.com/nextlevelbuilder/walkthrough/internal/gateway"
	"github.com/nextlevelbuilder/walkthrough/internal/tour"
	"github.com/nextlevelbuilder/walkthrough/pkg/walkthrough"
)

type runOptions struct {
	url     string
	serve   bool
	startAt int
	pick    bool
	panel   bool
	watch   bool
	logFile string
}

func runCmd() *cobra.Command {
	var (
		opts     runOptions
		headless bool
		listen   string
	)
	cmd := &cobra.Command{
		Use:   "run <tour.yaml>",
		Short: "Run a tour in Chrome with a terminal control panel",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustLoadConfig()
			if cmd.Flags().Changed("headless") {
				cfg.Browser.Headless = headless
			}
			if listen != "" {
				cfg.Gateway.Listen = listen
				opts.serve = true
			}
			if err := runTour(cmd.Context(), cfg, args[0], opts); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
		},
	}
	cmd.Flags().StringVar(&opts.url, "url", "", "page to open (default: the tour's url)")
	cmd.Flags().BoolVar(&headless, "headless", false, "run Chrome without a window")
	cmd.Flags().BoolVar(&opts.serve, "serve", false, "start the remote control gateway on gateway.listen")
	cmd.Flags().StringVar(&listen, "listen", "", "gateway listen address (implies --serve)")
	cmd.Flags().IntVar(&opts.startAt, "start-at", 0, "step to start at (0-based)")
	cmd.Flags().BoolVar(&opts.pick, "pick", false, "choose the first step interactively")
	cmd.Flags().BoolVar(&opts.panel, "panel", true, "show the terminal control panel")
	cmd.Flags().BoolVar(&opts.watch, "watch", true, "reload the tour file when it changes")
	cmd.Flags().StringVar(&opts.logFile, "log-file", filepath.Join(os.TempDir(), "walkthrough.log"), "log destination while the panel is shown")
	return cmd
}

func runTour(ctx context.Context, cfg *config.Config, path string, opts runOptions) error {
	t, err := tour.Load(path)
	if err != nil {
		return err
	}
	if opts.pick {
		idx, err := pickStep(t)
		if err != nil {
			return err
		}
		opts.startAt = idx
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan tea.Msg, 64)
	var notices walkthrough.Notifier
	if opts.panel {
		f, err := os.OpenFile(opts.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		setupLogging(f)
		notices = panelNotifier(events)
	}

	env, err := openTour(ctx, cfg, t, envOptions{url: opts.url, drawOverlay: true, notifier: notices})
	if err != nil {
		return err
	}
	defer env.close()
	h := env.host

	if opts.watch {
		w, err := config.NewWatcher(path)
		if err != nil {
			return err
		}
		w.OnChange(func(p string) {
			if err := h.ReloadFile(p); err != nil {
				slog.Warn("tour reload rejected", "path", p, "error", err)
				if notices != nil {
					notices.Notify(ctx, walkthrough.Notice{Kind: noticeReload, Message: err.Error(), Index: -1, Err: err})
				}
			}
		})
		if err := w.Start(); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		defer w.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.Run(gctx) })

	if opts.serve {
		srv := gateway.NewServer(cfg.Gateway, env.bus, h,
			gateway.WithVersion(Version),
			gateway.WithNextTimeout(30*time.Second),
		)
		g.Go(func() error { return srv.Start(gctx) })
	}

	h.Start(gctx, opts.startAt)

	if opts.panel {
		unobserve := h.Observe(func(tr walkthrough.Transition) {
			select {
			case events <- transitionMsg(tr):
			default:
			}
		})
		defer unobserve()

		g.Go(func() error {
			defer cancel()
			m := newPanelModel(gctx, h, events, panelInfo{gateway: gatewayAddr(opts.serve, cfg), logFile: opts.logFile})
			_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(gctx)).Run()
			if gctx.Err() != nil {
				return nil
			}
			return err
		})
	} else {
		slog.Info("walkthrough running; press Ctrl+C to stop", "tour", t.Name, "steps", len(t.Steps))
	}

	return g.Wait()
}

func gatewayAddr(serve bool, cfg *config.Config) string {
	if !serve {
		return ""
	}
	return cfg.Gateway.Listen
}

// pickStep asks which step to start at.
func pickStep(t *tour.Tour) (int, error) {
	options := make([]SelectOption[int], 0, len(t.Steps))
	for i, st := range t.Steps {
		options = append(options, SelectOption[int]{Label: stepLabel(i, st), Value: i})
	}
	idx, err := promptSelect(fmt.Sprintf("Start %q at", t.Name), options, 0)
	if err != nil {
		return 0, fmt.Errorf("cancelled: %w", err)
	}
	return idx, nil
}

func stepLabel(i int, st tour.StepSpec) string {
	text := plainText(st.Content)
	if text == "" {
		return fmt.Sprintf("%2d. %s", i+1, st.Selector)
	}
	return fmt.Sprintf("%2d. %s  %s", i+1, st.Selector, truncate(text, 48))
}
