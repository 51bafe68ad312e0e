package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDerivesCategoryAndSeverity(t *testing.T) {
	err := New(ErrCodeNetworkTransient, "timed out", nil)
	assert.Equal(t, CategoryNetwork, err.Category)
	assert.True(t, err.Retryable)
	assert.Equal(t, SeverityWarning, err.Severity)
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(ErrCodeMalformedField, cause)
	require.NotNil(t, err)
	assert.Same(t, cause, err.Unwrap())
	assert.True(t, errors.Is(err, err))
}

func TestIsMatchesByCode(t *testing.T) {
	sentinel := New(ErrCodeMissingDatabase, "no database", nil)
	wrapped := fWrapWithContext(sentinel)
	assert.True(t, errors.Is(wrapped, sentinel))
}

func fWrapWithContext(err *SearchError) error {
	return New(err.Code, "wrapped: "+err.Message, err)
}

func TestWithDetailAndSuggestionChain(t *testing.T) {
	err := New(ErrCodeConstraintViolation, "duplicate", nil).
		WithDetail("table", "packages").
		WithSuggestion("retry with a different name")
	assert.Equal(t, "packages", err.Details["table"])
	assert.Equal(t, "retry with a different name", err.Suggestion)
}

func TestIsRetryableAndIsFatal(t *testing.T) {
	assert.True(t, IsRetryable(New(ErrCodeNetworkTransient, "x", nil)))
	assert.False(t, IsRetryable(New(ErrCodeNetworkExhausted, "x", nil)))
	assert.True(t, IsFatal(New(ErrCodeProgressCorrupt, "x", nil)))
}

func TestGetCodeAndCategory(t *testing.T) {
	err := New(ErrCodeDecoInvalid, "bad deco", nil)
	assert.Equal(t, ErrCodeDecoInvalid, GetCode(err))
	assert.Equal(t, CategoryParse, GetCategory(err))
	assert.Equal(t, "", GetCode(errors.New("plain")))
}
