package errors

import (
	"fmt"
	"time"
)

// WorkflowError is the shape thrown to or failed back into the process engine.
type WorkflowError struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Retries   int                    `json:"retries"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("WorkflowError[%s]: %s", e.Code, e.Message)
}

// ToVariables returns the map set on the failed or thrown job.
func (e *WorkflowError) ToVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.Variables {
		vars[k] = v
	}
	return vars
}

// ToWorkflowError converts a StandardError for the process engine.
func ToWorkflowError(stdErr *StandardError) *WorkflowError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"errorCategory": GetErrorCategory(stdErr.Code),
		"timestamp":     stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &WorkflowError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		Variables: vars,
	}
}
