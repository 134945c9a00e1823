package dataapi

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIError_ErrorString(t *testing.T) {
	t.Run("with endpoint", func(t *testing.T) {
		apiErr := &APIError{
			StatusCode: http.StatusInternalServerError,
			Endpoint:   "/data/member/info",
			Message:    "boom",
		}
		assert.Contains(t, apiErr.Error(), "500")
		assert.Contains(t, apiErr.Error(), "/data/member/info")
		assert.Contains(t, apiErr.Error(), "boom")
	})

	t.Run("without endpoint", func(t *testing.T) {
		apiErr := &APIError{
			StatusCode: http.StatusForbidden,
			Message:    "expired",
		}
		assert.Contains(t, apiErr.Error(), "403")
		assert.NotContains(t, apiErr.Error(), "  ")
	})
}

func TestAPIError_Unwrap(t *testing.T) {
	apiErr := &APIError{
		StatusCode: http.StatusServiceUnavailable,
		Err:        ErrUnavailable,
	}

	assert.ErrorIs(t, apiErr, ErrUnavailable)
	assert.Equal(t, ErrUnavailable, errors.Unwrap(apiErr))
	assert.False(t, errors.Is(apiErr, ErrAuthentication))
}

func TestTruncateBody(t *testing.T) {
	short := []byte("short body")
	assert.Equal(t, "short body", truncateBody(short))

	long := []byte(strings.Repeat("x", errBodyLimit+100))
	truncated := truncateBody(long)
	assert.Len(t, truncated, errBodyLimit+3)
	assert.True(t, strings.HasSuffix(truncated, "..."))
}
