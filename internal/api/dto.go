package api

import (
	"github.com/meshkit/img2mesh/internal/service/orchestrator"
)

// GenerateEnvelope is the wire request. Input carries exactly one of image or
// prompt; stream switches the response to server-sent progress events.
type GenerateEnvelope struct {
	Input  *GenerateInput `json:"input"`
	Stream bool           `json:"stream"`
}

type GenerateInput struct {
	Image  string `json:"image"`
	Prompt string `json:"prompt"`
	Seed   int64  `json:"seed"`
}

type GenerateResponse struct {
	Success        bool                         `json:"success"`
	Filename       string                       `json:"filename"`
	FileData       string                       `json:"file_data"`
	FileSize       int                          `json:"file_size"`
	GenerationTime float64                      `json:"generation_time"`
	GenerationType string                       `json:"generation_type"`
	Progress       []orchestrator.ProgressEvent `json:"progress"`
}

// ErrorResponse is the failure envelope. The presence of the error key is the
// sole success/failure discriminator; no progress trace is attached.
type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

// SSE event names for the streaming variant.
const (
	EventTypeProgress = "progress"
	EventTypeComplete = "complete"
	EventTypeError    = "error"
)

type StreamEvent struct {
	Event     string      `json:"event"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id"`
}
