package httputil

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "reconcile/pkg/domain-errors"
)

type namedRequest struct {
	Name *string `json:"name"`
}

func (r *namedRequest) Validate() error {
	if r.Name == nil || strings.TrimSpace(*r.Name) == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	return nil
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode dErrors.Code
		wantMsg  string
	}{
		{name: "wrong field type", body: `{"name": 42}`, wantCode: dErrors.CodeValidation, wantMsg: "name must be a string"},
		{name: "malformed JSON", body: `{"name": `, wantCode: dErrors.CodeBadRequest, wantMsg: "invalid JSON body"},
		{name: "empty body", body: ``, wantCode: dErrors.CodeBadRequest, wantMsg: "request body is required"},
		{name: "not an object", body: `[1, 2]`, wantCode: dErrors.CodeBadRequest, wantMsg: "request body must be a JSON object"},
		{name: "too large", body: `{"name": "` + strings.Repeat("a", MaxBodyBytes) + `"}`, wantCode: dErrors.CodeBadRequest, wantMsg: "request body too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var v namedRequest

			err := DecodeJSON(httptest.NewRecorder(), req, &v)

			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, tt.wantCode), "got %v", err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestDecodeAndPrepare(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	t.Run("valid request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"doc"}`))
		w := httptest.NewRecorder()

		got, ok := DecodeAndPrepare[namedRequest](w, req, logger, req.Context(), "req-1")

		require.True(t, ok)
		assert.Equal(t, "doc", *got.Name)
	})

	t.Run("validation failure writes 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"  "}`))
		w := httptest.NewRecorder()

		_, ok := DecodeAndPrepare[namedRequest](w, req, logger, req.Context(), "req-2")

		require.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "name is required")
	})
}
