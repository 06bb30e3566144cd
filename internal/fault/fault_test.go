package fault

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid source", E(InvalidSource, "resolve", nil), http.StatusBadRequest},
		{"rendition unavailable", E(RenditionUnavailable, "acquire", nil), http.StatusBadRequest},
		{"resolution failed", E(ResolutionFailed, "resolve", nil), http.StatusInternalServerError},
		{"resolution rate limited", E(ResolutionFailed, "resolve", nil).WithStatus(429), http.StatusTooManyRequests},
		{"network forbidden", E(NetworkError, "acquire", nil).WithStatus(403), http.StatusForbidden},
		{"network not found", E(NetworkError, "acquire", nil).WithStatus(404), http.StatusInternalServerError},
		{"transform ignores remote status", E(TransformFailed, "transform", nil).WithStatus(429), http.StatusInternalServerError},
		{"delivery failed", E(DeliveryFailed, "deliver", nil), http.StatusInternalServerError},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
		{"wrapped fault", fmt.Errorf("outer: %w", E(InvalidSource, "resolve", nil)), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("wrap: %w", E(TransformFailed, "transform", errors.New("exit status 1")))
	assert.Equal(t, TransformFailed, KindOf(err))
	assert.True(t, Is(err, TransformFailed))
	assert.False(t, Is(err, NetworkError))
	assert.Equal(t, Unexpected, KindOf(errors.New("other")))
}

func TestErrorString(t *testing.T) {
	err := E(NetworkError, "acquire", errors.New("connection reset")).WithStatus(503)
	assert.Equal(t, "acquire: NetworkError (remote status 503): connection reset", err.Error())

	bare := &Error{Kind: InvalidSource}
	assert.Equal(t, "InvalidSource", bare.Error())
}

func TestUnwrap(t *testing.T) {
	cause := context.DeadlineExceeded
	err := E(TransformFailed, "transform", cause)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	fe, ok := As(fmt.Errorf("x: %w", err))
	require.True(t, ok)
	assert.Same(t, err, fe)
}

func TestIsCanceled(t *testing.T) {
	assert.True(t, IsCanceled(fmt.Errorf("copy: %w", context.Canceled)))
	assert.False(t, IsCanceled(context.DeadlineExceeded))
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "Invalid source URL", Message(E(InvalidSource, "", nil)))
	assert.Equal(t, "Failed to process media", Message(E(TransformFailed, "", nil)))
	assert.Contains(t, Message(E(NetworkError, "", nil).WithStatus(429)), "rate limiting")
	assert.Contains(t, Message(E(ResolutionFailed, "", nil).WithStatus(403)), "refused")
	assert.Equal(t, "Unexpected error", Message(errors.New("x")))
}

func TestKindString(t *testing.T) {
	for _, k := range Kinds() {
		assert.NotContains(t, k.String(), "Kind(")
	}
	assert.Equal(t, "Kind(42)", Kind(42).String())
}
