package walkthrough

import (
	"errors"
	"fmt"
)

var (
	// ErrNotActive is returned by Next when no walkthrough is running.
	ErrNotActive = errors.New("walkthrough is not active")
	// ErrNavigationBusy is returned by Next while another Next is still
	// waiting on its step's hooks.
	ErrNavigationBusy = errors.New("walkthrough navigation in progress")
	// ErrStaleTransition is returned by Next when another transition
	// committed while its hooks were running. Nothing changed.
	ErrStaleTransition = errors.New("walkthrough transition superseded")
)

// GateRejectedError reports a CanGoNext gate that did not pass.
type GateRejectedError struct {
	Index   int
	Message string
	// Err is the validator's error, if it failed rather than returned false.
	Err error
}

func (e *GateRejectedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("step %d gate rejected: %s: %v", e.Index, e.Message, e.Err)
	}
	return fmt.Sprintf("step %d gate rejected: %s", e.Index, e.Message)
}

func (e *GateRejectedError) Unwrap() error { return e.Err }

// UsageError is raised (as a panic) when a session is used outside its
// scope: after Close, through a nil session, or from a context that carries
// none. It signals a bug in the host, not a runtime condition.
type UsageError struct {
	Op string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("walkthrough: %s used outside an active session", e.Op)
}
