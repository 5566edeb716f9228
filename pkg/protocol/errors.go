package protocol

// Error codes carried in ErrorShape.Code.
const (
	ErrInvalidRequest     = "INVALID_REQUEST"
	ErrUnauthorized       = "UNAUTHORIZED"
	ErrNotFound           = "NOT_FOUND"
	ErrResourceExhausted  = "RESOURCE_EXHAUSTED"
	ErrFailedPrecondition = "FAILED_PRECONDITION"
	ErrInternal           = "INTERNAL"

	// Navigation outcomes of walkthrough.next.
	ErrNotActive    = "NOT_ACTIVE"
	ErrBusy         = "BUSY"
	ErrStale        = "STALE"
	ErrGateRejected = "GATE_REJECTED"
	ErrHookFailed   = "HOOK_FAILED"
)
