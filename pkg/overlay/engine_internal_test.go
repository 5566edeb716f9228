package overlay

import (
	"context"
	"testing"

	"github.com/nextlevelbuilder/walkthrough/pkg/dom/domtest"
	"github.com/nextlevelbuilder/walkthrough/pkg/layout"
	"github.com/nextlevelbuilder/walkthrough/pkg/walkthrough"
)

type clearCounter struct {
	NopRenderer
	clears int
}

func (c *clearCounter) Clear(context.Context) error {
	c.clears++
	return nil
}

func TestClearForSkipsSupersededGeneration(t *testing.T) {
	s, err := walkthrough.New([]walkthrough.Step{{Selector: "#a"}})
	if err != nil {
		t.Fatal(err)
	}
	r := &clearCounter{}
	e := New(s, domtest.New(800, 600, layout.Size{Width: 800, Height: 600}), r)
	e.runCtx = context.Background()
	e.gen = 2

	e.clearFor(1)
	if r.clears != 0 {
		t.Errorf("clears after superseded gen = %d, want 0", r.clears)
	}
	e.clearFor(2)
	if r.clears != 1 {
		t.Errorf("clears after current gen = %d, want 1", r.clears)
	}
}

func TestClearForBeforeRun(t *testing.T) {
	s, err := walkthrough.New([]walkthrough.Step{{Selector: "#a"}})
	if err != nil {
		t.Fatal(err)
	}
	r := &clearCounter{}
	e := New(s, domtest.New(800, 600, layout.Size{Width: 800, Height: 600}), r)

	e.clearFor(0)
	if r.clears != 0 {
		t.Errorf("clears without a run context = %d, want 0", r.clears)
	}
}
