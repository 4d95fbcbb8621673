// Package errors provides the standardized error taxonomy of the dialogue manager.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Configuration errors are fatal: they surface at load time and are never retried.
const (
	ErrCodeSlotExpressionInvalid ErrorCode = "SLOT_EXPRESSION_INVALID"
	ErrCodeUnknownOperator       ErrorCode = "UNKNOWN_OPERATOR"
	ErrCodeFormSlotUndefined     ErrorCode = "FORM_SLOT_UNDEFINED"
	ErrCodeFormInvalid           ErrorCode = "FORM_INVALID"
	ErrCodeRegistryInvalid       ErrorCode = "REGISTRY_INVALID"
)

// External service errors are retried a bounded number of times.
const (
	ErrCodeLLMTimeout         ErrorCode = "LLM_TIMEOUT"
	ErrCodeLLMRequestFailed   ErrorCode = "LLM_REQUEST_FAILED"
	ErrCodeLLMMalformedOutput ErrorCode = "LLM_MALFORMED_OUTPUT"
	ErrCodeRetrievalFailed    ErrorCode = "RETRIEVAL_FAILED"
	ErrCodeRetrievalTimeout   ErrorCode = "RETRIEVAL_TIMEOUT"
	ErrCodeSessionStoreFailed ErrorCode = "SESSION_STORE_FAILED"
	ErrCodeSessionLocked      ErrorCode = "SESSION_LOCKED"
	ErrCodeFormStoreFailed    ErrorCode = "FORM_STORE_FAILED"
	ErrCodeHandoffFailed      ErrorCode = "HANDOFF_FAILED"
)

// Lookup errors.
const (
	ErrCodeFormNotFound   ErrorCode = "FORM_NOT_FOUND"
	ErrCodeActionNotFound ErrorCode = "ACTION_NOT_FOUND"
)

// Request errors.
const (
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches a metadata key and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// ==========================
// 2. Error Constructors
// ==========================

// NewSlotExpressionInvalidError creates a fatal error for a malformed slot expression.
func NewSlotExpressionInvalidError(expression, details string) *StandardError {
	return newError(ErrCodeSlotExpressionInvalid, "Malformed slot expression",
		fmt.Sprintf("expression: %q, %s", expression, details), false, nil)
}

// NewUnknownOperatorError creates a fatal error for operators other than and/or.
func NewUnknownOperatorError(expression, operator string) *StandardError {
	return newError(ErrCodeUnknownOperator, "Unsupported operator in slot expression",
		fmt.Sprintf("expression: %q, operator: %q", expression, operator), false, nil)
}

// NewFormSlotUndefinedError creates a fatal error for an expression atom absent from the form.
func NewFormSlotUndefinedError(intent, slot string) *StandardError {
	return newError(ErrCodeFormSlotUndefined, "Form references an undefined slot",
		fmt.Sprintf("intent: %s, slot: %s", intent, slot), false, nil)
}

// NewFormInvalidError creates a fatal error for structurally invalid forms.
func NewFormInvalidError(intent, details string) *StandardError {
	return newError(ErrCodeFormInvalid, "Invalid form definition",
		fmt.Sprintf("intent: %s, %s", intent, details), false, nil)
}

// NewRegistryInvalidError creates a fatal error for an invalid domain registry document.
func NewRegistryInvalidError(details string) *StandardError {
	return newError(ErrCodeRegistryInvalid, "Invalid domain registry", details, false, nil)
}

// NewLLMTimeoutError creates a retryable LLM timeout error.
func NewLLMTimeoutError(err error) *StandardError {
	return newError(ErrCodeLLMTimeout, "LLM call timeout", errDetails(err), true, err)
}

// NewLLMRequestFailedError creates a retryable LLM request error.
func NewLLMRequestFailedError(err error) *StandardError {
	return newError(ErrCodeLLMRequestFailed, "LLM request failed", errDetails(err), true, err)
}

// NewLLMMalformedOutputError creates a retryable error for replies that do not match the expected schema.
func NewLLMMalformedOutputError(details string) *StandardError {
	return newError(ErrCodeLLMMalformedOutput, "LLM reply did not match the expected format", details, true, nil)
}

// NewRetrievalFailedError creates a retryable example retrieval error.
func NewRetrievalFailedError(err error) *StandardError {
	return newError(ErrCodeRetrievalFailed, "Example retrieval failed", errDetails(err), true, err)
}

// NewRetrievalTimeoutError creates a retryable example retrieval timeout error.
func NewRetrievalTimeoutError(err error) *StandardError {
	return newError(ErrCodeRetrievalTimeout, "Example retrieval timeout", errDetails(err), true, err)
}

// NewSessionStoreFailedError creates a retryable session tracker error.
func NewSessionStoreFailedError(sessionID string, err error) *StandardError {
	return newError(ErrCodeSessionStoreFailed, "Session store operation failed",
		fmt.Sprintf("sessionId: %s, error: %s", sessionID, errDetails(err)), true, err)
}

// NewSessionLockedError creates a retryable error when another turn holds the session.
func NewSessionLockedError(sessionID string) *StandardError {
	return newError(ErrCodeSessionLocked, "Session is being processed by another request",
		fmt.Sprintf("sessionId: %s", sessionID), true, nil)
}

// NewFormStoreFailedError creates a retryable form repository error.
func NewFormStoreFailedError(intent string, err error) *StandardError {
	return newError(ErrCodeFormStoreFailed, "Form lookup failed",
		fmt.Sprintf("intent: %s, error: %s", intent, errDetails(err)), true, err)
}

// NewHandoffFailedError creates a retryable hand-off notification error.
func NewHandoffFailedError(channel string, err error) *StandardError {
	return newError(ErrCodeHandoffFailed, "Hand-off notification failed",
		fmt.Sprintf("channel: %s, error: %s", channel, errDetails(err)), true, err)
}

// NewFormNotFoundError is returned when a form is required for an intent that has none.
func NewFormNotFoundError(intent string) *StandardError {
	return newError(ErrCodeFormNotFound, "Form not found",
		fmt.Sprintf("intent: %s", intent), false, nil)
}

// NewActionNotFoundError is returned for a directive naming an unregistered action.
func NewActionNotFoundError(name string) *StandardError {
	return newError(ErrCodeActionNotFound, "Action not found",
		fmt.Sprintf("action: %s", name), false, nil)
}

// NewInvalidInputError is returned for job variables that do not describe a turn.
func NewInvalidInputError(details string) *StandardError {
	return newError(ErrCodeInvalidInput, "Invalid input", details, false, nil)
}

func errDetails(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// ==========================
// 3. Utility Functions
// ==========================

// GetRetryCount returns the recommended retry count for an error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeLLMRequestFailed,
		ErrCodeLLMMalformedOutput,
		ErrCodeRetrievalFailed,
		ErrCodeSessionStoreFailed,
		ErrCodeFormStoreFailed,
		ErrCodeHandoffFailed:
		return 3

	case ErrCodeLLMTimeout,
		ErrCodeRetrievalTimeout,
		ErrCodeSessionLocked:
		return 2

	default:
		return 0
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// AsStandardError extracts the StandardError from an error chain.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	stdErr, ok := AsStandardError(err)
	return ok && stdErr.Code == code
}

// IsConfigurationError reports whether err is a fatal configuration error.
func IsConfigurationError(err error) bool {
	stdErr, ok := AsStandardError(err)
	if !ok {
		return false
	}
	return GetErrorCategory(stdErr.Code) == "CONFIGURATION"
}

// IsRetryable reports whether err may be retried.
func IsRetryable(err error) bool {
	stdErr, ok := AsStandardError(err)
	return ok && stdErr.Retryable
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case code == ErrCodeSlotExpressionInvalid,
		code == ErrCodeUnknownOperator,
		code == ErrCodeFormSlotUndefined,
		code == ErrCodeFormInvalid,
		code == ErrCodeRegistryInvalid:
		return "CONFIGURATION"
	case strings.HasSuffix(codeStr, "NOT_FOUND"):
		return "NOT_FOUND"
	case strings.HasPrefix(codeStr, "LLM"):
		return "AI"
	case strings.HasPrefix(codeStr, "RETRIEVAL"):
		return "SEARCH"
	case strings.HasPrefix(codeStr, "SESSION"), strings.HasPrefix(codeStr, "FORM_STORE"):
		return "STORAGE"
	case strings.HasPrefix(codeStr, "HANDOFF"):
		return "NOTIFICATION"
	case code == ErrCodeInvalidInput:
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
