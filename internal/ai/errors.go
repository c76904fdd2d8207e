package ai

import (
	"context"
	"errors"
	"strings"
)

// Turn-terminal failures. None of them are retried.
var (
	ErrTransport         = errors.New("completion endpoint unreachable or failed")
	ErrMalformedResponse = errors.New("completion response has unexpected shape")
	ErrEmptyChoices      = errors.New("completion response has no choices")
	ErrUnknownTool       = errors.New("model requested an unknown tool")
	ErrToolLoopExhausted = errors.New("tool-call loop exhausted without a final answer")
)

// ErrorType categorizes tool errors for the structured payload sent back to the model.
type ErrorType string

const (
	ErrTimeout    ErrorType = "timeout"
	ErrNotFound   ErrorType = "not_found"
	ErrValidation ErrorType = "validation"
	ErrPermission ErrorType = "permission"
	ErrInternal   ErrorType = "internal"
)

// ToolError wraps a tool execution error with type classification.
type ToolError struct {
	Type     ErrorType
	Message  string // shown to the model
	RawError string // for logs
}

func (e *ToolError) Error() string { return e.RawError }

// Payload is the result handed back to the model in place of the tool's output.
func (e *ToolError) Payload() map[string]any {
	return map[string]any{
		"error":      e.Message,
		"error_type": string(e.Type),
	}
}

// ClassifyError turns any tool failure into a ToolError.
func ClassifyError(err error) *ToolError {
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	raw := err.Error()

	switch {
	case errors.Is(err, context.DeadlineExceeded) || containsAny(raw, "timeout", "deadline exceeded"):
		return &ToolError{Type: ErrTimeout, Message: "the tool took too long to respond", RawError: raw}
	case containsAny(raw, "not found", "no such file", "unknown time zone"):
		return &ToolError{Type: ErrNotFound, Message: raw, RawError: raw}
	case containsAny(raw, "permission denied", "forbidden", "401", "403"):
		return &ToolError{Type: ErrPermission, Message: "the tool is not allowed to do that", RawError: raw}
	case containsAny(raw, "invalid", "must be", "required"):
		return &ToolError{Type: ErrValidation, Message: raw, RawError: raw}
	default:
		return &ToolError{Type: ErrInternal, Message: "the tool failed unexpectedly", RawError: raw}
	}
}

func containsAny(s string, patterns ...string) bool {
	lower := strings.ToLower(s)
	for _, p := range patterns {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
