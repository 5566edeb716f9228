package browser

// StatusInfo describes the current browser state.
type StatusInfo struct {
	Running bool   `json:"running"`
	Tabs    int    `json:"tabs"`
	URL     string `json:"url,omitempty"` // current tab URL
}

// ConsoleMessage is a captured browser console message.
type ConsoleMessage struct {
	Level string `json:"level"` // "log", "warn", "error", "info"
	Text  string `json:"text"`
}
