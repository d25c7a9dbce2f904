package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, CodeUnavailable, "failed to load contacts")

	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.True(t, Is(err, CodeUnavailable))
	assert.Equal(t, "failed to load contacts: connection refused", err.Error())
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, CodeInternal, "unused"))
}

func TestHasCodeWalksChain(t *testing.T) {
	inner := New(CodeInvariantViolation, "dangling link")
	outer := Wrap(fmt.Errorf("resolve: %w", inner), CodeInternal, "identify failed")

	assert.True(t, HasCode(outer, CodeInternal))
	assert.True(t, HasCode(outer, CodeInvariantViolation))
	assert.False(t, HasCode(outer, CodeValidation))
	assert.True(t, Is(outer, CodeInternal))
	assert.False(t, Is(outer, CodeInvariantViolation))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeValidation, CodeOf(New(CodeValidation, "bad")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeBadRequest:         http.StatusBadRequest,
		CodeValidation:         http.StatusBadRequest,
		CodeNotFound:           http.StatusNotFound,
		CodeConflict:           http.StatusConflict,
		CodeTimeout:            http.StatusGatewayTimeout,
		CodeUnavailable:        http.StatusServiceUnavailable,
		CodeInvariantViolation: http.StatusInternalServerError,
		CodeInternal:           http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, ToHTTPStatus(code), "code %s", code)
	}
}
