package protocol

// WebSocket event names pushed from server to client.
const (
	EventState     = "walkthrough.state"
	EventStepFrame = "walkthrough.frame"
	EventNotice    = "walkthrough.notice"
	EventTour      = "walkthrough.tour" // tour file reloaded
)

// StatePayload is the payload of walkthrough.state and the result of
// walkthrough.status and every navigation method.
type StatePayload struct {
	Session    string     `json:"session"`
	Tour       string     `json:"tour,omitempty"`
	Index      int        `json:"index"`
	Active     bool       `json:"active"`
	Total      int        `json:"total"`
	Kind       string     `json:"kind,omitempty"` // transition that produced it
	Generation uint64     `json:"generation,omitempty"`
	Step       *StepBrief `json:"step,omitempty"`
}

// StepBrief describes the current step.
type StepBrief struct {
	Selector  string `json:"selector"`
	Content   string `json:"content"`
	Placement string `json:"placement"`
}

// NoticePayload is the payload of walkthrough.notice.
type NoticePayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Index   int    `json:"index"`
}
