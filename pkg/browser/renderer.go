package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/ysmood/gson"

	"github.com/nextlevelbuilder/walkthrough/pkg/layout"
	"github.com/nextlevelbuilder/walkthrough/pkg/overlay"
	"github.com/nextlevelbuilder/walkthrough/pkg/walkthrough"
)

const navBinding = "__walkthroughNav"

// Renderer draws overlay frames into the page: four backdrop panels, a
// highlight ring around the target and the tooltip with its navigation
// buttons. Button presses are routed back to Controls.
type Renderer struct {
	page     *Page
	controls walkthrough.Controls
	policy   *bluemonday.Policy
	logger   *slog.Logger

	mu      sync.Mutex
	exposed bool
	buttons []walkthrough.NavButton
	ctx     context.Context
}

// NewRenderer creates a renderer on page. controls receives button presses
// and may be nil until SetControls.
func NewRenderer(page *Page, controls walkthrough.Controls, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		page:     page,
		controls: controls,
		policy:   bluemonday.UGCPolicy(),
		logger:   logger,
		ctx:      context.Background(),
	}
}

// SetControls replaces the receiver of button presses.
func (r *Renderer) SetControls(c walkthrough.Controls) {
	r.mu.Lock()
	r.controls = c
	r.mu.Unlock()
}

// SetContext sets the context button presses run with.
func (r *Renderer) SetContext(ctx context.Context) {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()
}

// renderPayload is what the injected script draws.
type renderPayload struct {
	Binding        string                  `json:"binding"`
	Content        string                  `json:"content"`
	TooltipClass   string                  `json:"tooltipClass,omitempty"`
	TooltipStyle   map[string]string       `json:"tooltipStyle,omitempty"`
	NavButtonClass string                  `json:"navButtonClass,omitempty"`
	NavButtonStyle map[string]string       `json:"navButtonStyle,omitempty"`
	Target         layout.Rect             `json:"target"`
	Tooltip        layout.Point            `json:"tooltip"`
	Placement      layout.Placement        `json:"placement"`
	ShowBackdrop   bool                    `json:"showBackdrop"`
	Backdrop       [4]layout.Rect          `json:"backdrop"`
	Buttons        []walkthrough.NavButton `json:"buttons"`
	Progress       string                  `json:"progress"`
}

// SanitizeContent strips scripts and unsafe attributes from step markup.
func (r *Renderer) SanitizeContent(html string) string {
	return r.policy.Sanitize(html)
}

// Render draws f and returns the measured tooltip size.
func (r *Renderer) Render(ctx context.Context, f overlay.Frame) (layout.Size, error) {
	if err := r.ensureNavBinding(); err != nil {
		return layout.Size{}, err
	}
	r.mu.Lock()
	r.buttons = append([]walkthrough.NavButton(nil), f.Buttons...)
	r.mu.Unlock()

	payload := renderPayload{
		Binding:        navBinding,
		Content:        r.SanitizeContent(f.Content),
		TooltipClass:   f.TooltipClass,
		TooltipStyle:   f.TooltipStyle,
		NavButtonClass: f.NavButtonClass,
		NavButtonStyle: f.NavButtonStyle,
		Target:         f.Target,
		Tooltip:        f.Tooltip,
		Placement:      f.Placement,
		ShowBackdrop:   f.ShowBackdrop,
		Backdrop:       f.Backdrop,
		Buttons:        f.Buttons,
		Progress:       fmt.Sprintf("%d / %d", f.Index+1, f.Total),
	}
	res, err := r.page.page.Context(ctx).Eval(renderJS, payload)
	if err != nil {
		return layout.Size{}, fmt.Errorf("render overlay: %w", err)
	}
	return layout.Size{
		Width:  res.Value.Get("width").Num(),
		Height: res.Value.Get("height").Num(),
	}, nil
}

// Clear removes the overlay.
func (r *Renderer) Clear(ctx context.Context) error {
	if _, err := r.page.page.Context(ctx).Eval(clearJS); err != nil {
		return fmt.Errorf("clear overlay: %w", err)
	}
	return nil
}

func (r *Renderer) ensureNavBinding() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.exposed {
		return nil
	}
	_, err := r.page.page.Expose(navBinding, func(j gson.JSON) (any, error) {
		idx := j.Get("button").Int()
		r.mu.Lock()
		if idx < 0 || idx >= len(r.buttons) {
			r.mu.Unlock()
			return nil, nil
		}
		b := r.buttons[idx]
		ctx, controls := r.ctx, r.controls
		r.mu.Unlock()
		if controls == nil {
			return nil, nil
		}

		// Next may block on hooks; the binding must return promptly.
		go func() {
			if err := walkthrough.Invoke(ctx, controls, b); err != nil {
				r.logger.Debug("overlay button", "action", b.Action, "error", err)
			}
		}()
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("expose navigation binding: %w", err)
	}
	r.exposed = true
	return nil
}

const clearJS = `() => {
	const root = document.getElementById('__walkthrough');
	if (root) root.remove();
}`

const renderJS = `(p) => {
	let root = document.getElementById('__walkthrough');
	if (!root) {
		root = document.createElement('div');
		root.id = '__walkthrough';
		root.style.cssText = 'position:absolute;left:0;top:0;width:0;height:0;z-index:2147483000;';
		document.body.appendChild(root);
	}
	root.textContent = '';

	const box = (r, css) => {
		const d = document.createElement('div');
		d.style.cssText = 'position:absolute;box-sizing:border-box;' + css;
		d.style.left = r.left + 'px';
		d.style.top = r.top + 'px';
		d.style.width = Math.max(r.width, 0) + 'px';
		d.style.height = Math.max(r.height, 0) + 'px';
		root.appendChild(d);
		return d;
	};
	const apply = (el, cls, style) => {
		if (cls) el.className += ' ' + cls;
		for (const k in (style || {})) el.style.setProperty(k, style[k]);
	};

	if (p.showBackdrop) {
		for (const r of p.backdrop) box(r, 'background:rgba(0,0,0,0.5);');
	}
	box(p.target, 'border:2px solid #4f8cff;border-radius:4px;pointer-events:none;');

	const tip = document.createElement('div');
	tip.className = 'walkthrough-tooltip walkthrough-' + p.placement;
	tip.style.cssText = 'position:absolute;max-width:360px;background:#fff;color:#222;' +
		'padding:12px 14px;border-radius:6px;box-shadow:0 4px 16px rgba(0,0,0,.25);font:14px/1.4 sans-serif;';
	tip.style.left = p.tooltip.left + 'px';
	tip.style.top = p.tooltip.top + 'px';
	apply(tip, p.tooltipClass, p.tooltipStyle);

	const body = document.createElement('div');
	body.innerHTML = p.content;
	tip.appendChild(body);

	const nav = document.createElement('div');
	nav.style.cssText = 'display:flex;gap:8px;align-items:center;margin-top:10px;';
	const progress = document.createElement('span');
	progress.textContent = p.progress;
	progress.style.cssText = 'margin-right:auto;color:#888;font-size:12px;';
	nav.appendChild(progress);
	(p.buttons || []).forEach((b, i) => {
		const btn = document.createElement('button');
		btn.type = 'button';
		btn.className = 'walkthrough-nav walkthrough-' + b.action;
		btn.textContent = b.label;
		btn.disabled = !!b.disabled;
		apply(btn, p.navButtonClass, p.navButtonStyle);
		btn.addEventListener('click', (e) => {
			e.preventDefault();
			e.stopPropagation();
			if (window[p.binding]) window[p.binding]({button: i});
		});
		nav.appendChild(btn);
	});
	tip.appendChild(nav);
	root.appendChild(tip);

	const r = tip.getBoundingClientRect();
	return {width: r.width, height: r.height};
}`
