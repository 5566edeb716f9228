package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

func (p *Page) waitElement(ctx context.Context, selector string) (*rod.Element, error) {
	el, err := p.page.Context(ctx).Timeout(p.ActionTimeout).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("element %q: %w", selector, err)
	}
	return el.Context(ctx), nil
}

// Click waits for selector and clicks it.
func (p *Page) Click(ctx context.Context, selector string) error {
	el, err := p.waitElement(ctx, selector)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// Type replaces the text of the input matching selector.
func (p *Page) Type(ctx context.Context, selector, text string) error {
	el, err := p.waitElement(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("select text: %w", err)
	}
	return el.Input(text)
}

// Eval runs js in the page. js may be an expression or a function.
func (p *Page) Eval(ctx context.Context, js string) error {
	if _, err := p.page.Context(ctx).Eval(js); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

// EvalString runs js and returns its result as a string.
func (p *Page) EvalString(ctx context.Context, js string) (string, error) {
	res, err := p.page.Context(ctx).Eval(js)
	if err != nil {
		return "", fmt.Errorf("evaluate: %w", err)
	}
	return res.Value.String(), nil
}

// Navigate loads url and waits for the page to settle.
func (p *Page) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	if err := page.WaitStable(300 * time.Millisecond); err != nil {
		return fmt.Errorf("wait stable after navigate: %w", err)
	}
	return nil
}

// Press presses a keyboard key on the focused element.
func (p *Page) Press(ctx context.Context, key string) error {
	return p.page.Context(ctx).Keyboard.Press(mapKey(key))
}

// mapKey converts a key name string to a Rod keyboard key.
func mapKey(key string) input.Key {
	switch key {
	case "Enter":
		return input.Enter
	case "Tab":
		return input.Tab
	case "Escape":
		return input.Escape
	case "Backspace":
		return input.Backspace
	case "Delete":
		return input.Delete
	case "ArrowUp":
		return input.ArrowUp
	case "ArrowDown":
		return input.ArrowDown
	case "ArrowLeft":
		return input.ArrowLeft
	case "ArrowRight":
		return input.ArrowRight
	case "Home":
		return input.Home
	case "End":
		return input.End
	case "PageUp":
		return input.PageUp
	case "PageDown":
		return input.PageDown
	case "Space":
		return input.Space
	default:
		// Try single character
		if len(key) == 1 {
			return input.Key(key[0])
		}
		return input.Enter
	}
}
