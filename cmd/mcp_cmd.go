package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/walkthrough/internal/config"
	"github.com/nextlevelbuilder/walkthrough/internal/gateway"
	"github.com/nextlevelbuilder/walkthrough/internal/mcp"
	"github.com/nextlevelbuilder/walkthrough/internal/tour"
)

func mcpCmd() *cobra.Command {
	var (
		url      string
		headless bool
		serve    bool
	)
	cmd := &cobra.Command{
		Use:   "mcp <tour.yaml>",
		Short: "Run a tour controlled by an MCP client over stdio",
		Long: `Opens the tour's page and serves the walkthrough_* tools on stdin/stdout.
Logs go to stderr; stdout carries only MCP messages.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustLoadConfig()
			if cmd.Flags().Changed("headless") {
				cfg.Browser.Headless = headless
			}
			if err := serveMCP(cmd.Context(), cfg, args[0], url, serve); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "page to open (default: the tour's url)")
	cmd.Flags().BoolVar(&headless, "headless", false, "run Chrome without a window")
	cmd.Flags().BoolVar(&serve, "serve", false, "also start the remote control gateway")
	return cmd
}

func serveMCP(ctx context.Context, cfg *config.Config, path, url string, serve bool) error {
	t, err := tour.Load(path)
	if err != nil {
		return err
	}
	env, err := openTour(ctx, cfg, t, envOptions{url: url, drawOverlay: true})
	if err != nil {
		return err
	}
	defer env.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return env.host.Run(gctx) })
	if serve {
		srv := gateway.NewServer(cfg.Gateway, env.bus, env.host, gateway.WithVersion(Version))
		g.Go(func() error { return srv.Start(gctx) })
	}
	g.Go(func() error {
		// stdin closing ends the session.
		defer cancel()
		s := mcp.NewServer(env.host, Version,
			mcp.WithLogger(slog.Default()),
			mcp.WithNextTimeout(30*time.Second),
		)
		return s.ServeStdio(gctx, os.Stdin, os.Stdout)
	})
	return g.Wait()
}
