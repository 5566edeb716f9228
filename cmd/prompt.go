package cmd

import (
	"github.com/charmbracelet/huh"
)

// runWithHelp wraps huh fields in a Form with the key hints shown.
func runWithHelp(fields ...huh.Field) error {
	return huh.NewForm(huh.NewGroup(fields...)).WithShowHelp(true).Run()
}

const (
	// filterThreshold turns on type-to-filter for tours longer than this.
	filterThreshold = 5
	// maxSelectHeight keeps long tours scrollable instead of filling the terminal.
	maxSelectHeight = 12
)

// SelectOption is one entry of promptSelect.
type SelectOption[T any] struct {
	Label string
	Value T
}

// promptSelect shows a single-select list and returns the chosen value.
// defaultIdx starts the cursor on that option.
func promptSelect[T comparable](title string, options []SelectOption[T], defaultIdx int) (T, error) {
	value := options[0].Value
	if defaultIdx >= 0 && defaultIdx < len(options) {
		value = options[defaultIdx].Value
	}

	huhOpts := make([]huh.Option[T], len(options))
	for i, opt := range options {
		huhOpts[i] = huh.NewOption(opt.Label, opt.Value)
	}

	sel := huh.NewSelect[T]().
		Title(title).
		Options(huhOpts...).
		Value(&value)
	if len(options) > filterThreshold {
		sel = sel.Filtering(true)
	}
	if len(options) > maxSelectHeight {
		sel = sel.Height(maxSelectHeight)
	}

	if err := runWithHelp(sel); err != nil {
		var zero T
		return zero, err
	}
	return value, nil
}

// promptConfirm asks a yes/no question.
func promptConfirm(title string, defaultYes bool) (bool, error) {
	value := defaultYes
	c := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&value)
	if err := runWithHelp(c); err != nil {
		return false, err
	}
	return value, nil
}
