package protocol

// RPC method names.
const (
	MethodConnect = "connect"
	MethodHealth  = "health"

	MethodStatus = "walkthrough.status"
	MethodStart  = "walkthrough.start"
	MethodNext   = "walkthrough.next"
	MethodBack   = "walkthrough.back"
	MethodSkip   = "walkthrough.skip"
	MethodFinish = "walkthrough.finish"
	MethodGoTo   = "walkthrough.goto"
)

// GoToParams are the params of walkthrough.goto.
type GoToParams struct {
	Index int `json:"index"`
}

// ConnectParams are the params of connect.
type ConnectParams struct {
	Token    string `json:"token,omitempty"`
	Protocol int    `json:"protocol,omitempty"`
	Client   string `json:"client,omitempty"`
}
