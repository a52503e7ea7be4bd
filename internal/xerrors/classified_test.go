package xerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassified_ErrorIncludesCauseWhenPresent(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := NewRetryable("ERR_IO", "venue unreachable", cause)

	assert.Contains(t, err.Error(), "ERR_IO")
	assert.Contains(t, err.Error(), "venue unreachable")
	assert.Contains(t, err.Error(), "dial tcp: timeout")
}

func TestClassified_ErrorOmitsCauseWhenNil(t *testing.T) {
	err := NewNonRetryable("ERR_REJECTED", "bad request", nil)
	assert.Equal(t, "ERR_REJECTED: bad request", err.Error())
}

func TestClassified_UnwrapExposesCause(t *testing.T) {
	cause := errors.New("boom")
	err := NewRetryable("ERR_IO", "failed", cause)
	assert.Same(t, cause, errors.Unwrap(err))
}

func TestIsRetryable_TrueOnlyForRetryableClassification(t *testing.T) {
	assert.True(t, IsRetryable(NewRetryable("ERR_IO", "x", nil)))
	assert.False(t, IsRetryable(NewNonRetryable("ERR_IO", "x", nil)))
	assert.False(t, IsRetryable(errors.New("plain error")))
}

func TestIsNonRetryable_TrueOnlyForNonRetryableClassification(t *testing.T) {
	assert.True(t, IsNonRetryable(NewNonRetryable("ERR_REJECTED", "x", nil)))
	assert.False(t, IsNonRetryable(NewRetryable("ERR_REJECTED", "x", nil)))
}

func TestIsRetryable_MatchesWrappedClassifiedError(t *testing.T) {
	base := NewRetryable("ERR_IO", "x", nil)
	wrapped := fmt.Errorf("calling venue: %w", base)

	assert.True(t, IsRetryable(wrapped))
}

func TestClassification_StringNamesEachValue(t *testing.T) {
	assert.Equal(t, "Retryable", Retryable.String())
	assert.Equal(t, "NonRetryable", NonRetryable.String())
	assert.Equal(t, "UserIntervention", UserIntervention.String())
}
