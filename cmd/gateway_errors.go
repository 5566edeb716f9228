package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/walkthrough/pkg/protocol"
)

// formatRemoteError turns a gateway error into a message for the terminal.
// Gate rejections keep the tour's own message.
func formatRemoteError(e *protocol.ErrorShape) string {
	if e == nil {
		return "unknown error"
	}
	switch e.Code {
	case protocol.ErrGateRejected:
		if e.Message != "" {
			return e.Message
		}
		return "The current step is not complete yet."
	case protocol.ErrHookFailed:
		return "The step's actions failed: " + e.Message
	case protocol.ErrNotActive:
		return "The walkthrough is not running. Start it with: walkthrough remote start"
	case protocol.ErrBusy:
		return withRetry("The current step is still being checked.", e)
	case protocol.ErrStale:
		return "The step changed while it was being checked. Try again."
	case protocol.ErrUnauthorized:
		return "The gateway rejected the token. Check gateway.token or $WALKTHROUGH_GATEWAY_TOKEN."
	case protocol.ErrResourceExhausted:
		return withRetry("Too many requests.", e)
	case protocol.ErrNotFound:
		return "No walkthrough is loaded in this gateway."
	case protocol.ErrInvalidRequest:
		if containsAny(strings.ToLower(e.Message), "protocol", "version") {
			return "Protocol mismatch between this CLI and the gateway. Update one of them."
		}
		return "Invalid request: " + e.Message
	}
	slog.Debug("unclassified gateway error", "code", e.Code, "message", e.Message)
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

func withRetry(msg string, e *protocol.ErrorShape) string {
	if e.Retryable && e.RetryAfterMs > 0 {
		return fmt.Sprintf("%s Retry in %dms.", msg, e.RetryAfterMs)
	}
	return msg
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
