package walkthrough_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/walkthrough/pkg/walkthrough"
)

func TestDefaultNavigationButtons(t *testing.T) {
	tests := []struct {
		name      string
		index     int
		backOff   bool
		nextLabel string
	}{
		{"first", 0, true, "Next"},
		{"middle", 1, false, "Next"},
		{"last", 2, false, "Finish"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			btns := walkthrough.DefaultNavigation.Buttons(walkthrough.NavContext{Index: tt.index, Total: 3})
			require.Len(t, btns, 3)
			assert.Equal(t, walkthrough.ActionBack, btns[0].Action)
			assert.Equal(t, tt.backOff, btns[0].Disabled)
			assert.Equal(t, tt.nextLabel, btns[1].Label)
			assert.Equal(t, walkthrough.ActionSkip, btns[2].Action)
		})
	}
}

func TestNavigationFor(t *testing.T) {
	custom := walkthrough.NavigationFunc(func(nav walkthrough.NavContext) []walkthrough.NavButton {
		return []walkthrough.NavButton{{Action: walkthrough.ActionGoTo, Label: "Jump", Target: nav.Total - 1}}
	})
	btns := walkthrough.NavigationFor(walkthrough.Step{Navigation: custom}).Buttons(walkthrough.NavContext{Total: 4})
	require.Len(t, btns, 1)
	assert.Equal(t, 3, btns[0].Target)

	assert.Len(t, walkthrough.NavigationFor(walkthrough.Step{}).Buttons(walkthrough.NavContext{Total: 1}), 3)
	assert.Empty(t, walkthrough.NoNavigation.Buttons(walkthrough.NavContext{Total: 1}))
	assert.Equal(t, "Done", walkthrough.CompactNavigation.Buttons(walkthrough.NavContext{Index: 0, Total: 1})[0].Label)
}

func TestInvoke(t *testing.T) {
	ctx := context.Background()
	s, _ := newSession(t, steps(3))
	c := s.Controls()

	require.NoError(t, walkthrough.Invoke(ctx, c, walkthrough.NavButton{Action: walkthrough.ActionGoTo, Target: 1}))
	assert.Equal(t, 1, s.Index())

	require.NoError(t, walkthrough.Invoke(ctx, c, walkthrough.NavButton{Action: walkthrough.ActionNext}))
	assert.Equal(t, 2, s.Index())

	require.NoError(t, walkthrough.Invoke(ctx, c, walkthrough.NavButton{Action: walkthrough.ActionBack, Disabled: true}))
	assert.Equal(t, 2, s.Index(), "disabled buttons do nothing")

	require.NoError(t, walkthrough.Invoke(ctx, c, walkthrough.NavButton{Action: walkthrough.ActionBack}))
	assert.Equal(t, 1, s.Index())

	require.NoError(t, walkthrough.Invoke(ctx, c, walkthrough.NavButton{Action: walkthrough.ActionSkip}))
	assert.False(t, s.Active())

	assert.Error(t, walkthrough.Invoke(ctx, c, walkthrough.NavButton{Action: "dance"}))
}

func TestStepDefaults(t *testing.T) {
	st := walkthrough.Step{Selector: "#a"}
	assert.True(t, st.BackdropEnabled())
	assert.Equal(t, "bottom", string(st.EffectivePlacement()))

	st.ShowBackdrop = walkthrough.Bool(false)
	st.Placement = "left"
	assert.False(t, st.BackdropEnabled())
	assert.Equal(t, "left", string(st.EffectivePlacement()))

	var g *walkthrough.Gate
	assert.Equal(t, walkthrough.DefaultGateMessage, g.Message())
}
