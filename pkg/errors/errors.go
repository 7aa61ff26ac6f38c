package errors

import (
	"fmt"
)

const (
	ErrCodeInternal     = "INTERNAL_ERROR"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeImageDecode  = "IMAGE_DECODE_ERROR"
	ErrCodeImageProcess = "IMAGE_PROCESSING_ERROR"
	ErrCodePromptRender = "PROMPT_RENDER_ERROR"
	ErrCodeShapeGen     = "SHAPE_GENERATION_ERROR"
	ErrCodeTextureGen   = "TEXTURE_GENERATION_ERROR"
	ErrCodeExport       = "EXPORT_ERROR"
	ErrCodeSizeLimit    = "SIZE_LIMIT_ERROR"
	ErrCodeRateLimited  = "RATE_LIMITED"
)

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

func Is(err error, code string) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}

// Code extracts the code from an AppError, or INTERNAL_ERROR otherwise.
func Code(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}
