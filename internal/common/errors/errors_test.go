package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRetryCount(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected int
	}{
		{ErrCodeLLMRequestFailed, 3},
		{ErrCodeSessionStoreFailed, 3},
		{ErrCodeLLMTimeout, 2},
		{ErrCodeSessionLocked, 2},
		{ErrCodeSlotExpressionInvalid, 0},
		{ErrCodeFormSlotUndefined, 0},
		{"SOMETHING_ELSE", 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.expected, GetRetryCount(tt.code))
			assert.Equal(t, tt.expected > 0, IsRetryableErrorCode(tt.code))
		})
	}
}

func TestIsConfigurationError_Wrapped(t *testing.T) {
	base := NewUnknownOperatorError("a not b", "not")
	wrapped := fmt.Errorf("loading form: %w", base)

	assert.True(t, IsConfigurationError(wrapped))
	assert.False(t, IsRetryable(wrapped))
	assert.True(t, HasCode(wrapped, ErrCodeUnknownOperator))
	assert.False(t, IsConfigurationError(stderrors.New("plain")))
}

func TestStandardError_UnwrapCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := NewSessionStoreFailedError("s1", cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, "STORAGE", GetErrorCategory(err.Code))
	assert.Contains(t, err.Error(), "sessionId: s1")
}

func TestToWorkflowError(t *testing.T) {
	err := NewLLMTimeoutError(stderrors.New("deadline")).WithMetadata("sessionId", "s1")
	wf := ToWorkflowError(err)

	assert.Equal(t, "LLM_TIMEOUT", wf.Code)
	assert.Equal(t, 2, wf.Retries)
	vars := wf.ToVariables()
	assert.Equal(t, "AI", vars["errorCategory"])
	assert.Equal(t, "s1", vars["sessionId"])
	assert.Equal(t, true, vars["retryable"])

	fatal := ToWorkflowError(NewRegistryInvalidError("bad"))
	assert.Equal(t, 0, fatal.Retries)
}

func TestNormalize(t *testing.T) {
	std := Normalize(stderrors.New("boom"))
	require.NotNil(t, std)
	assert.Equal(t, ErrorCode("INTERNAL_ERROR"), std.Code)
	assert.False(t, std.Retryable)

	orig := NewHandoffFailedError("sns", nil)
	assert.Same(t, orig, Normalize(fmt.Errorf("wrap: %w", orig)))
}
