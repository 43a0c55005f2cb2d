package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSDIError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("original error")

	// When: wrapping with SDIError
	sdiErr := New(ErrCodeFileNotFound, "file not found: config.yaml", originalErr)

	// Then: unwrapping returns original error
	require.NotNil(t, sdiErr)
	assert.Equal(t, originalErr, errors.Unwrap(sdiErr))
	assert.True(t, errors.Is(sdiErr, originalErr))
}

func TestSDIError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *SDIError
		expected string
	}{
		{
			name:     "config error",
			err:      New(ErrCodeConfigNotFound, "config file not found", nil),
			expected: "[ERR_101_CONFIG_NOT_FOUND] config file not found",
		},
		{
			name:     "protocol error with locator",
			err:      ServiceException(CodeInvalidParameterValue, "bad version", "version"),
			expected: "[InvalidParameterValue] bad version (locator: version)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestSDIError_Is_MatchesByCode(t *testing.T) {
	err1 := ServiceException(CodeInvalidUpdateSequence, "a", "updateSequence")
	err2 := ServiceException(CodeInvalidUpdateSequence, "b", "")
	err3 := ServiceException(CodeInvalidParameterValue, "c", "")

	assert.True(t, errors.Is(err1, err2))
	assert.False(t, errors.Is(err1, err3))
}

func TestSDIError_CategoryFromCode(t *testing.T) {
	tests := []struct {
		code         string
		wantCategory Category
	}{
		{ErrCodeConfigNotFound, CategoryConfig},
		{ErrCodeContextMissing, CategoryConfig},
		{ErrCodeIndexSwap, CategoryIO},
		{ErrCodeInvalidQuery, CategoryValidation},
		{ErrCodeInternal, CategoryInternal},
		{CodeVersionNegotiationFailed, CategoryProtocol},
		{CodeNoApplicableCode, CategoryProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.wantCategory, New(tt.code, "x", nil).Category)
		})
	}
}

func TestGetCode_FindsWrappedError(t *testing.T) {
	inner := ServiceException(CodeInvalidParameterValue, "bad", "version")
	wrapped := fmt.Errorf("start worker: %w", inner)

	assert.Equal(t, CodeInvalidParameterValue, GetCode(wrapped))
	assert.Equal(t, "", GetCode(errors.New("plain")))
}

func TestReport_NonProtocolErrorsBecomeNoApplicableCode(t *testing.T) {
	report := Report(New(ErrCodeIndexFailed, "index exploded", nil))
	assert.Equal(t, CodeNoApplicableCode, report.Code)
	assert.Equal(t, "index exploded", report.Message)

	report = Report(ServiceException(CodeVersionNegotiationFailed, "no", "acceptVersions"))
	assert.Equal(t, CodeVersionNegotiationFailed, report.Code)
	assert.Equal(t, "acceptVersions", report.Locator)

	report = Report(errors.New("boom"))
	assert.Equal(t, CodeNoApplicableCode, report.Code)
}

func TestFormatJSON_IncludesLocatorAndCause(t *testing.T) {
	err := New(ErrCodeSourceFailed, "source down", errors.New("dial tcp"))
	err.Locator = "source"

	data, jerr := FormatJSON(err)
	require.NoError(t, jerr)
	assert.Contains(t, string(data), `"locator":"source"`)
	assert.Contains(t, string(data), `"cause":"dial tcp"`)
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	attempts := 0
	cfg := RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}

	err := Retry(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("locked")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_ReturnsLastError(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2}
	sentinel := errors.New("still locked")

	err := Retry(context.Background(), cfg, func() error { return sentinel })

	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	// Given: a config that only retries a lock conflict
	busy := errors.New("busy")
	cfg := RetryConfig{
		MaxRetries:   5,
		InitialDelay: time.Millisecond,
		Multiplier:   2,
		Retryable:    func(err error) bool { return errors.Is(err, busy) },
	}
	permanent := errors.New("permission denied")

	// When: the second attempt fails permanently
	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		if attempts == 1 {
			return busy
		}
		return permanent
	})

	// Then: no further attempts are made
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 2, attempts)
}

func TestRetry_CancelledContextKeepsLastError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	busy := errors.New("busy")
	cfg := RetryConfig{MaxRetries: 100, InitialDelay: time.Hour, Multiplier: 1}

	err := Retry(ctx, cfg, func() error {
		cancel()
		return busy
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, busy)
}
