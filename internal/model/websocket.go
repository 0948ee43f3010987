package model

// WebSocket message types
const (
	WSMessageTypeStage    = "stage"
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSStageMessage announces the pipeline stage currently executing.
type WSStageMessage struct {
	Type    string `json:"type"`
	NoteKey string `json:"noteKey"`
	Stage   string `json:"stage"`
}

// WSProgressMessage represents a render progress update
type WSProgressMessage struct {
	Type            string      `json:"type"`
	NoteKey         string      `json:"noteKey"`
	State           RenderState `json:"state"`
	ProgressPercent int         `json:"progressPercent"`
}

// WSCompleteMessage represents render completion
type WSCompleteMessage struct {
	Type     string `json:"type"`
	NoteKey  string `json:"noteKey"`
	VideoURL string `json:"videoUrl,omitempty"`
}

// WSErrorMessage represents an error
type WSErrorMessage struct {
	Type    string  `json:"type"`
	NoteKey string  `json:"noteKey"`
	Error   WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
