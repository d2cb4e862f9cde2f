package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	t.Run("successful write", func(t *testing.T) {
		w := httptest.NewRecorder()
		data := map[string]string{"message": "test"}

		err := WriteJSON(w, http.StatusOK, data)
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response map[string]string
		err = json.NewDecoder(w.Body).Decode(&response)
		require.NoError(t, err)
		assert.Equal(t, "test", response["message"])
	})

	t.Run("nil data", func(t *testing.T) {
		w := httptest.NewRecorder()

		err := WriteJSON(w, http.StatusNoContent, nil)
		require.NoError(t, err)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.String())
	})
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) APIError {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body.Error
}

func TestErrorWriters(t *testing.T) {
	tests := []struct {
		name       string
		write      func(w http.ResponseWriter) error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{
			name:       "bad request",
			write:      func(w http.ResponseWriter) error { return WriteBadRequest(w, "req-1", "model is required", nil) },
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeBadRequest,
			wantMsg:    "model is required",
		},
		{
			name:       "unauthorized default message",
			write:      func(w http.ResponseWriter) error { return WriteUnauthorized(w, "req-1", "") },
			wantStatus: http.StatusUnauthorized,
			wantCode:   CodeAuthInvalid,
			wantMsg:    "Authentication required",
		},
		{
			name:       "not found",
			write:      func(w http.ResponseWriter) error { return WriteNotFound(w, "req-1", "") },
			wantStatus: http.StatusNotFound,
			wantCode:   CodeNotFound,
			wantMsg:    "Resource not found",
		},
		{
			name:       "internal",
			write:      func(w http.ResponseWriter) error { return WriteInternalServerError(w, "req-1", "") },
			wantStatus: http.StatusInternalServerError,
			wantCode:   CodeInternal,
			wantMsg:    "Internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			require.NoError(t, tt.write(w))

			assert.Equal(t, tt.wantStatus, w.Code)
			apiErr := decodeError(t, w)
			assert.Equal(t, tt.wantCode, apiErr.Code)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
			assert.Equal(t, "req-1", apiErr.RequestID)
		})
	}
}

func TestWriteError_Provider(t *testing.T) {
	w := httptest.NewRecorder()
	err := WriteError(w, http.StatusBadGateway, APIError{
		Code:     CodeProviderUnavailable,
		Message:  "all providers failed",
		Provider: &ProviderErrorInfo{Name: "openai", StatusCode: 503, RawMessage: "overloaded"},
	})
	require.NoError(t, err)

	var raw map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	provider := raw["error"]["provider"].(map[string]interface{})
	assert.Equal(t, "openai", provider["name"])
	assert.Equal(t, float64(503), provider["status_code"])
	assert.NotContains(t, raw["error"], "details")
}

func TestSSEWriter(t *testing.T) {
	w := httptest.NewRecorder()
	sse := NewSSEWriter(w)

	require.NoError(t, sse.WriteEvent("response.delta", map[string]string{"delta": "hi"}))
	require.NoError(t, sse.WriteEvent("response.completed", map[string]int{"n": 1}))

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	assert.True(t, w.Flushed)
	assert.Equal(t,
		"event: response.delta\ndata: {\"delta\":\"hi\"}\n\nevent: response.completed\ndata: {\"n\":1}\n\n",
		w.Body.String())

	assert.Error(t, sse.WriteEvent("bad", func() {}))
}
