package dom_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/walkthrough/pkg/dom"
	"github.com/nextlevelbuilder/walkthrough/pkg/dom/domtest"
	"github.com/nextlevelbuilder/walkthrough/pkg/layout"
)

func newDoc() *domtest.Document {
	return domtest.New(800, 600, layout.Size{Width: 800, Height: 2000})
}

func TestResolve_Immediate(t *testing.T) {
	doc := newDoc()
	want := doc.Add("#a", layout.Rect{Top: 10, Left: 10, Width: 5, Height: 5})

	got, err := dom.Resolve(context.Background(), doc, "#a", dom.ResolveOptions{Timeout: time.Second, Interval: 10 * time.Millisecond})
	require.NoError(t, err)
	assert.Same(t, want, got)
	assert.Equal(t, 1, doc.Queries("#a"))
}

func TestResolve_FirstMatchWins(t *testing.T) {
	doc := newDoc()
	first := doc.Add(".item", layout.Rect{Top: 1})
	doc.Add(".item", layout.Rect{Top: 2})

	got, err := dom.Resolve(context.Background(), doc, ".item", dom.ResolveOptions{})
	require.NoError(t, err)
	assert.Same(t, first, got)
}

func TestResolve_AppearsLater(t *testing.T) {
	doc := newDoc()
	time.AfterFunc(50*time.Millisecond, func() {
		doc.Add("#late", layout.Rect{Top: 1, Left: 1, Width: 1, Height: 1})
	})

	got, err := dom.Resolve(context.Background(), doc, "#late", dom.ResolveOptions{Timeout: 500 * time.Millisecond, Interval: 10 * time.Millisecond})
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestResolve_Timeout(t *testing.T) {
	doc := newDoc()
	timeout := 100 * time.Millisecond
	interval := 20 * time.Millisecond

	start := time.Now()
	_, err := dom.Resolve(context.Background(), doc, "#nonexistent", dom.ResolveOptions{Timeout: timeout, Interval: interval})
	took := time.Since(start)

	var nf *dom.TargetNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "#nonexistent", nf.Selector)
	assert.Equal(t, timeout, nf.Timeout)
	assert.Contains(t, err.Error(), "not found within")
	assert.GreaterOrEqual(t, took, timeout)
	assert.Less(t, took, timeout+interval+100*time.Millisecond)
}

func TestResolve_Cancel(t *testing.T) {
	doc := newDoc()
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	_, err := dom.Resolve(ctx, doc, "#never", dom.ResolveOptions{Timeout: 5 * time.Second, Interval: 10 * time.Millisecond})
	require.ErrorIs(t, err, context.Canceled)

	// No more polling after cancellation.
	n := doc.Queries("#never")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, doc.Queries("#never"))
}

func TestResolve_QueryError(t *testing.T) {
	doc := newDoc()
	boom := errors.New("boom")
	doc.FailQueries(boom)

	_, err := dom.Resolve(context.Background(), doc, "#a", dom.ResolveOptions{})
	require.ErrorIs(t, err, boom)
	var nf *dom.TargetNotFoundError
	assert.False(t, errors.As(err, &nf))
}
