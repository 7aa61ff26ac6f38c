package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/meshkit/img2mesh/internal/infra/logger"
	"github.com/meshkit/img2mesh/internal/service/orchestrator"
	"github.com/meshkit/img2mesh/pkg/errors"
)

// Generator runs one generation pipeline to completion.
type Generator interface {
	Generate(ctx context.Context, req *orchestrator.GenerateRequest, onProgress orchestrator.ProgressCallback) (*orchestrator.Result, error)
}

type Handler struct {
	generator Generator
	logger    *logger.Logger
}

func NewHandler(gen Generator, log *logger.Logger) *Handler {
	return &Handler{
		generator: gen,
		logger:    log,
	}
}

// Generate is the single entry point: it validates the envelope, resolves the
// tagged input, runs the pipeline, and shapes the response. It is the only
// place that interprets the wire envelope.
func (h *Handler) Generate(c *gin.Context) {
	var envelope GenerateEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		h.logger.Error("invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	req, appErr := h.resolveInput(&envelope)
	if appErr != nil {
		h.logger.Error("input validation failed", "error", appErr)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: appErr.Message})
		return
	}

	if envelope.Stream {
		h.handleStreamingResponse(c, req)
		return
	}

	result, err := h.generator.Generate(c.Request.Context(), req, nil)
	if err != nil {
		h.handleError(c, req.RequestID, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(result))
}

// resolveInput enforces the envelope contract: a non-empty input object with
// exactly one of image or prompt. Both present is always an error, never a
// precedence choice.
func (h *Handler) resolveInput(envelope *GenerateEnvelope) (*orchestrator.GenerateRequest, *errors.AppError) {
	if envelope.Input == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "No input data provided")
	}

	hasImage := envelope.Input.Image != ""
	hasPrompt := strings.TrimSpace(envelope.Input.Prompt) != ""

	switch {
	case !hasImage && !hasPrompt:
		return nil, errors.New(errors.ErrCodeInvalidInput,
			"Input must include either 'image' or 'prompt'")
	case hasImage && hasPrompt:
		return nil, errors.New(errors.ErrCodeInvalidInput,
			"Input must include only one of 'image' or 'prompt'")
	}

	req := &orchestrator.GenerateRequest{
		RequestID: uuid.New().String(),
	}

	if hasPrompt {
		req.Prompt = strings.TrimSpace(envelope.Input.Prompt)
		req.Seed = envelope.Input.Seed
		return req, nil
	}

	// Accept data-URL prefixed payloads: data:image/png;base64,xxxx
	imageBase64 := envelope.Input.Image
	if idx := strings.Index(imageBase64, ","); idx >= 0 && strings.Contains(imageBase64[:idx], ";base64") {
		imageBase64 = imageBase64[idx+1:]
	}

	imageBytes, err := base64.StdEncoding.DecodeString(imageBase64)
	if err != nil {
		return nil, errors.New(errors.ErrCodeImageDecode, "Failed to decode base64 image")
	}
	req.ImageBytes = imageBytes

	return req, nil
}

func (h *Handler) handleStreamingResponse(c *gin.Context, req *orchestrator.GenerateRequest) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	sendEvent := func(eventType string, data interface{}) {
		event := StreamEvent{
			Event:     eventType,
			Data:      data,
			RequestID: req.RequestID,
		}
		jsonData, _ := json.Marshal(event)
		fmt.Fprintf(c.Writer, "event: %s\n", eventType)
		fmt.Fprintf(c.Writer, "data: %s\n\n", jsonData)
		c.Writer.Flush()
	}

	onProgress := func(event orchestrator.ProgressEvent) {
		sendEvent(EventTypeProgress, event)
	}

	result, err := h.generator.Generate(c.Request.Context(), req, onProgress)
	if err != nil {
		sendEvent(EventTypeError, ErrorResponse{Error: errorMessage(err)})
		return
	}

	sendEvent(EventTypeComplete, successResponse(result))
}

func (h *Handler) handleError(c *gin.Context, requestID string, err error) {
	h.logger.Error("generation request failed", "request_id", requestID, "error", err)

	status := http.StatusBadGateway
	switch errors.Code(err) {
	case errors.ErrCodeInvalidInput, errors.ErrCodeImageDecode:
		status = http.StatusBadRequest
	case errors.ErrCodeRateLimited:
		status = http.StatusTooManyRequests
	}

	c.JSON(status, ErrorResponse{Error: errorMessage(err)})
}

// errorMessage flattens an error to the single-string failure contract,
// keeping the stage-naming message without internal cause chains.
func errorMessage(err error) string {
	if appErr, ok := err.(*errors.AppError); ok {
		if appErr.Cause != nil {
			return fmt.Sprintf("%s: %v", appErr.Message, appErr.Cause)
		}
		return appErr.Message
	}
	return err.Error()
}

func successResponse(result *orchestrator.Result) GenerateResponse {
	return GenerateResponse{
		Success:        true,
		Filename:       result.Filename,
		FileData:       result.FileData,
		FileSize:       result.FileSize,
		GenerationTime: result.GenerationTime,
		GenerationType: result.GenerationType,
		Progress:       result.Progress,
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}
