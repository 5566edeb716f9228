package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/walkthrough/internal/capture"
	"github.com/nextlevelbuilder/walkthrough/internal/tour"
)

func captureCmd() *cobra.Command {
	var (
		url     string
		out     string
		margin  float64
		overlay bool
		headed  bool
		yes     bool
	)
	cmd := &cobra.Command{
		Use:   "capture <tour.yaml>",
		Short: "Screenshot every step of a tour, cropped around its target",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustLoadConfig()
			cfg.Browser.Headless = !headed

			t, err := tour.Load(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			if !yes && dirHasFiles(out) {
				ok, err := promptConfirm(fmt.Sprintf("%s is not empty. Overwrite screenshots?", out), false)
				if err != nil || !ok {
					fmt.Println("Cancelled.")
					return
				}
			}

			ctx := cmd.Context()
			env, err := openTour(ctx, cfg, t, envOptions{url: url, drawOverlay: overlay})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			shots, err := runCapture(ctx, env, capture.Options{Dir: out, Margin: margin})
			env.close()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}

			saved := 0
			for _, s := range shots {
				if s.Err != nil {
					fmt.Printf("  step %2d  FAILED  %s\n", s.Index+1, s.Err)
					continue
				}
				saved++
				fmt.Printf("  step %2d  %s\n", s.Index+1, s.Path)
			}
			fmt.Printf("Saved %d of %d steps to %s.\n", saved, len(t.Steps), out)
			if saved < len(t.Steps) {
				os.Exit(1)
			}
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "page to open (default: the tour's url)")
	cmd.Flags().StringVarP(&out, "out", "o", "screenshots", "output directory")
	cmd.Flags().Float64Var(&margin, "margin", 24, "padding around the target in CSS pixels")
	cmd.Flags().BoolVar(&overlay, "overlay", true, "draw the tooltip and backdrop into the screenshots")
	cmd.Flags().BoolVar(&headed, "headed", false, "show the browser window")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "overwrite without asking")
	return cmd
}

// runCapture drives the host while capture walks the steps.
func runCapture(ctx context.Context, env *tourEnv, opts capture.Options) ([]capture.Shot, error) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- env.host.Run(ctx) }()

	shots, err := capture.Run(ctx, env.host, env.host, env.page, opts)
	env.host.Finish(context.WithoutCancel(ctx))

	cancel()
	select {
	case runErr := <-done:
		err = errors.Join(err, runErr)
	case <-time.After(5 * time.Second):
	}
	return shots, err
}

func dirHasFiles(dir string) bool {
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) > 0
}
