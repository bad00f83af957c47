package model

// WebSocket message types
const (
	WSMessageTypeStatus   = "status"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSStatusMessage pushes a fresh status projection to job subscribers
type WSStatusMessage struct {
	Type        string           `json:"type"`
	JobID       string           `json:"jobId"`
	Status      AutomationStatus `json:"status"`
	CurrentStep StepKey          `json:"currentStep"`
	Progress    int              `json:"progress"`
	Message     string           `json:"message,omitempty"`
}

// WSCompleteMessage announces job completion with its summary
type WSCompleteMessage struct {
	Type    string             `json:"type"`
	JobID   string             `json:"jobId"`
	Summary *AutomationSummary `json:"summary,omitempty"`
}

// WSErrorMessage announces a step failure
type WSErrorMessage struct {
	Type  string  `json:"type"`
	JobID string  `json:"jobId"`
	Step  StepKey `json:"step"`
	Error WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
