// Package capture walks a tour step by step and saves a cropped screenshot
// of every target, for documentation and visual review.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/nextlevelbuilder/walkthrough/pkg/layout"
	"github.com/nextlevelbuilder/walkthrough/pkg/overlay"
)

// Screenshotter captures the page as PNG.
type Screenshotter interface {
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
}

// Frames publishes rendered overlay frames.
type Frames interface {
	Subscribe(fn func(overlay.Frame)) (unsubscribe func())
}

// Navigator moves the walkthrough.
type Navigator interface {
	GoToStep(ctx context.Context, index int)
	Total() int
}

// Options controls a capture run.
type Options struct {
	Dir string
	// Margin is the padding kept around the target, in CSS pixels.
	Margin float64
	// StepTimeout bounds waiting for a step's frame.
	StepTimeout time.Duration
	// Quiet is how long no new frame must arrive before shooting, so the
	// re-render with the measured tooltip size is included.
	Quiet  time.Duration
	Logger *slog.Logger
}

// Shot is the outcome of one step.
type Shot struct {
	Index    int    `json:"index"`
	Selector string `json:"selector,omitempty"`
	Path     string `json:"path,omitempty"`
	Err      error  `json:"-"`
}

// ErrNoFrame is recorded for steps whose overlay never rendered, usually
// because the target did not resolve.
var ErrNoFrame = errors.New("no frame rendered")

// Run visits every step in order and writes one PNG per rendered step.
// Steps without a frame are recorded with ErrNoFrame and skipped.
func Run(ctx context.Context, nav Navigator, frames Frames, shooter Screenshotter, opts Options) ([]Shot, error) {
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = 10 * time.Second
	}
	if opts.Quiet <= 0 {
		opts.Quiet = 150 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	ch := make(chan overlay.Frame, 16)
	unsubscribe := frames.Subscribe(func(f overlay.Frame) {
		select {
		case ch <- f:
		default:
		}
	})
	defer unsubscribe()

	var shots []Shot
	for i := 0; i < nav.Total(); i++ {
		drain(ch)
		nav.GoToStep(ctx, i)

		f, err := waitFrame(ctx, ch, i, opts.StepTimeout, opts.Quiet)
		if err != nil {
			if ctx.Err() != nil {
				return shots, ctx.Err()
			}
			opts.Logger.Warn("capture: step skipped", "step", i, "error", err)
			shots = append(shots, Shot{Index: i, Err: err})
			continue
		}

		shot := Shot{Index: i, Selector: f.Selector}
		shot.Path, shot.Err = shootFrame(ctx, shooter, f, opts)
		if shot.Err != nil {
			if ctx.Err() != nil {
				return shots, ctx.Err()
			}
			opts.Logger.Warn("capture: screenshot failed", "step", i, "error", shot.Err)
		} else {
			opts.Logger.Info("capture: saved", "step", i, "path", shot.Path)
		}
		shots = append(shots, shot)
	}
	return shots, nil
}

func drain(ch <-chan overlay.Frame) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

// waitFrame returns the last frame of step index once frames stop arriving
// for quiet.
func waitFrame(ctx context.Context, ch <-chan overlay.Frame, index int, timeout, quiet time.Duration) (overlay.Frame, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	var (
		last    overlay.Frame
		have    bool
		settled <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return overlay.Frame{}, ctx.Err()
		case <-deadline.C:
			if have {
				return last, nil
			}
			return overlay.Frame{}, fmt.Errorf("step %d: %w", index, ErrNoFrame)
		case f := <-ch:
			if f.Index != index {
				continue
			}
			last, have = f, true
			settled = time.After(quiet)
		case <-settled:
			return last, nil
		}
	}
}

func shootFrame(ctx context.Context, shooter Screenshotter, f overlay.Frame, opts Options) (string, error) {
	data, err := shooter.Screenshot(ctx, true)
	if err != nil {
		return "", fmt.Errorf("screenshot: %w", err)
	}
	img, err := Crop(data, f.Target, f.Document, opts.Margin)
	if err != nil {
		return "", err
	}
	path := filepath.Join(opts.Dir, FileName(f.Index, f.Selector))
	if err := imaging.Save(img, path); err != nil {
		return "", fmt.Errorf("save %s: %w", path, err)
	}
	return path, nil
}

// Crop decodes a full-page screenshot and cuts out target, grown by margin
// and clamped to the image. target and doc are in CSS pixels; the image
// scale is derived from doc.
func Crop(png []byte, target layout.Rect, doc layout.Size, margin float64) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(png))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	b := img.Bounds()
	scale := 1.0
	if doc.Width > 0 {
		scale = float64(b.Dx()) / doc.Width
	}

	r := image.Rect(
		int(math.Floor((target.Left-margin)*scale)),
		int(math.Floor((target.Top-margin)*scale)),
		int(math.Ceil((target.Right()+margin)*scale)),
		int(math.Ceil((target.Bottom()+margin)*scale)),
	).Add(b.Min).Intersect(b)
	if r.Empty() {
		return nil, fmt.Errorf("target %+v is outside the %dx%d screenshot", target, b.Dx(), b.Dy())
	}
	return imaging.Crop(img, r), nil
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// FileName returns "NN-slug.png" for a step.
func FileName(index int, selector string) string {
	slug := strings.Trim(slugRe.ReplaceAllString(strings.ToLower(selector), "-"), "-")
	if len(slug) > 40 {
		slug = strings.TrimRight(slug[:40], "-")
	}
	if slug == "" {
		slug = "step"
	}
	return fmt.Sprintf("%02d-%s.png", index+1, slug)
}
