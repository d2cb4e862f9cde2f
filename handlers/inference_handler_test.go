package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/llm-gateway/middleware"
	"github.com/upb/llm-gateway/models"
	"github.com/upb/llm-gateway/services"
	"github.com/upb/llm-gateway/services/providers"
	"github.com/upb/llm-gateway/utils"
)

// MockDispatcher is a mock implementation of Dispatcher
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Generate(ctx context.Context, req *providers.Request, requestID string, auth models.AuthContext) (*providers.Response, error) {
	args := m.Called(ctx, req, requestID, auth)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*providers.Response), args.Error(1)
}

func (m *MockDispatcher) Stream(ctx context.Context, req *providers.Request, requestID string, auth models.AuthContext) (<-chan providers.Event, error) {
	args := m.Called(ctx, req, requestID, auth)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(<-chan providers.Event), args.Error(1)
}

var handlerAuth = models.AuthContext{APIKeyID: "key_1", TenantID: "tenant-a", ProjectID: "proj-1", APIKeyPrefix: "gw_liv"}

func newRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	ctx := middleware.WithRequestID(req.Context(), "req-123")
	ctx = middleware.WithAuth(ctx, handlerAuth)
	return req.WithContext(ctx)
}

func decodeAPIError(t *testing.T, w *httptest.ResponseRecorder) utils.APIError {
	t.Helper()
	var body utils.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body.Error
}

func sampleResponse() *providers.Response {
	resp := providers.NewMessageResponse("resp_1", 1700000000, &providers.Request{Model: "gpt-4.1"}, "req-123", "Hello there")
	resp.Provider = &providers.ProviderInfo{Name: "mock", Model: "mock-gpt", Region: "LOCAL"}
	resp.Usage = &providers.Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30, CostUSD: 0.0015}
	return resp
}

func eventChannel(events ...providers.Event) <-chan providers.Event {
	ch := make(chan providers.Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

func TestHandleCreateResponse(t *testing.T) {
	logger := zap.NewNop()

	t.Run("non-streaming success", func(t *testing.T) {
		dispatcher := new(MockDispatcher)
		handler := NewInferenceHandler(dispatcher, logger)

		dispatcher.On("Generate", mock.Anything, mock.MatchedBy(func(req *providers.Request) bool {
			return req.Model == "gpt-4.1" && req.Input.Prompt == "hi"
		}), "req-123", handlerAuth).Return(sampleResponse(), nil)

		w := httptest.NewRecorder()
		handler.HandleCreateResponse(w, newRequest(http.MethodPost, "/v1/responses", `{"model":"gpt-4.1","input":{"prompt":"hi"}}`))

		assert.Equal(t, http.StatusOK, w.Code)
		var resp providers.Response
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "resp_1", resp.ID)
		assert.Equal(t, "mock", resp.Provider.Name)
		assert.Equal(t, 0.0015, resp.Usage.CostUSD)
		dispatcher.AssertExpectations(t)
	})

	validation := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"malformed json", `{"model":`, "invalid request body"},
		{"missing model", `{"input":{"prompt":"hi"}}`, "model is required"},
		{"missing input", `{"model":"gpt-4.1","input":{}}`, "input.messages or input.prompt is required"},
		{"bad role", `{"model":"gpt-4.1","input":{"messages":[{"role":"robot","content":[{"type":"text","text":"x"}]}]}}`, "input.messages[0].role must be one of"},
		{"bad strategy", `{"model":"gpt-4.1","input":{"prompt":"x"},"constraints":{"routing":{"strategy":"fastest"}}}`, "constraints.routing.strategy must be one of"},
		{"invalid json schema", `{"model":"gpt-4.1","input":{"prompt":"x"},"generation":{"response_format":{"type":"json_schema","json_schema":{"type":"banana"}}}}`, "invalid json_schema"},
		{"missing json schema", `{"model":"gpt-4.1","input":{"prompt":"x"},"generation":{"response_format":{"type":"json_schema"}}}`, "json_schema is required"},
	}
	for _, tt := range validation {
		t.Run(tt.name, func(t *testing.T) {
			dispatcher := new(MockDispatcher)
			handler := NewInferenceHandler(dispatcher, logger)

			w := httptest.NewRecorder()
			handler.HandleCreateResponse(w, newRequest(http.MethodPost, "/v1/responses", tt.body))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			apiErr := decodeAPIError(t, w)
			assert.Equal(t, utils.CodeBadRequest, apiErr.Code)
			assert.Contains(t, apiErr.Message, tt.wantMsg)
			assert.Equal(t, "req-123", apiErr.RequestID)
			dispatcher.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}

	t.Run("all providers failed", func(t *testing.T) {
		dispatcher := new(MockDispatcher)
		handler := NewInferenceHandler(dispatcher, logger)

		err := services.NewDomainError(services.ErrorTypeProviderUnavailable, "upstream said no", nil).
			WithDetail("provider", map[string]interface{}{"name": "openai", "status_code": 503, "raw_message": "overloaded"})
		dispatcher.On("Generate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, err)

		w := httptest.NewRecorder()
		handler.HandleCreateResponse(w, newRequest(http.MethodPost, "/v1/responses", `{"model":"gpt-4.1","input":{"prompt":"hi"}}`))

		assert.Equal(t, http.StatusBadGateway, w.Code)
		apiErr := decodeAPIError(t, w)
		assert.Equal(t, utils.CodeProviderUnavailable, apiErr.Code)
		require.NotNil(t, apiErr.Provider)
		assert.Equal(t, "openai", apiErr.Provider.Name)
		assert.Equal(t, 503, apiErr.Provider.StatusCode)
		assert.Nil(t, apiErr.Details)
	})

	t.Run("stream flag writes server-sent events", func(t *testing.T) {
		dispatcher := new(MockDispatcher)
		handler := NewInferenceHandler(dispatcher, logger)

		events := eventChannel(
			providers.Event{Type: providers.EventCreated, Data: providers.CreatedData{RequestID: "req-123"}},
			providers.Event{Type: providers.EventDelta, Data: providers.DeltaData{Delta: "Hel"}},
			providers.Event{Type: providers.EventCompleted, Data: sampleResponse()},
		)
		dispatcher.On("Stream", mock.Anything, mock.MatchedBy(func(req *providers.Request) bool { return req.Stream }), "req-123", handlerAuth).
			Return(events, nil)

		w := httptest.NewRecorder()
		handler.HandleCreateResponse(w, newRequest(http.MethodPost, "/v1/responses", `{"model":"gpt-4.1","input":{"prompt":"hi"},"stream":true}`))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
		body := w.Body.String()
		assert.True(t, strings.HasPrefix(body, "event: response.created\ndata: {\"type\":\"response.created\""))
		assert.Contains(t, body, "event: response.delta\ndata: {\"type\":\"response.delta\",\"data\":{\"delta\":\"Hel\"}}\n\n")
		assert.Contains(t, body, "event: response.completed\n")
		assert.Equal(t, 3, strings.Count(body, "\n\n"))
	})
}

func TestHandleStreamResponse(t *testing.T) {
	logger := zap.NewNop()

	t.Run("always streams", func(t *testing.T) {
		dispatcher := new(MockDispatcher)
		handler := NewInferenceHandler(dispatcher, logger)
		dispatcher.On("Stream", mock.Anything, mock.MatchedBy(func(req *providers.Request) bool { return req.Stream }), mock.Anything, mock.Anything).
			Return(eventChannel(providers.Event{Type: providers.EventFailed, Data: providers.FailedData{Code: "HTTP_ERROR", Message: "boom"}}), nil)

		w := httptest.NewRecorder()
		handler.HandleStreamResponse(w, newRequest(http.MethodPost, "/v1/responses/stream", `{"model":"gpt-4.1","input":{"prompt":"hi"}}`))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "event: response.failed\n")
		dispatcher.AssertExpectations(t)
	})

	t.Run("failure before the first event is a json error", func(t *testing.T) {
		dispatcher := new(MockDispatcher)
		handler := NewInferenceHandler(dispatcher, logger)
		dispatcher.On("Stream", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, services.NewDomainError(services.ErrorTypeNotFound, "model not found: nope", services.ErrModelNotFound))

		w := httptest.NewRecorder()
		handler.HandleStreamResponse(w, newRequest(http.MethodPost, "/v1/responses/stream", `{"model":"nope","input":{"prompt":"hi"}}`))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		assert.Equal(t, utils.CodeNotFound, decodeAPIError(t, w).Code)
	})
}

func TestHandleChatCompletion(t *testing.T) {
	logger := zap.NewNop()

	t.Run("converts to and from the unified shape", func(t *testing.T) {
		dispatcher := new(MockDispatcher)
		handler := NewInferenceHandler(dispatcher, logger)

		dispatcher.On("Generate", mock.Anything, mock.MatchedBy(func(req *providers.Request) bool {
			return req.Model == "gpt-4.1" &&
				len(req.Input.Messages) == 2 &&
				req.Input.Messages[1].Role == "user" &&
				req.Input.Messages[1].Text() == "Hello" &&
				req.Generation.MaxOutputTokens == 64 &&
				*req.Generation.Temperature == 0.5
		}), "req-123", handlerAuth).Return(sampleResponse(), nil)

		body := `{"model":"gpt-4.1","messages":[{"role":"system","content":"be brief"},{"role":"user","content":"Hello"}],"max_tokens":64,"temperature":0.5}`
		w := httptest.NewRecorder()
		handler.HandleChatCompletion(w, newRequest(http.MethodPost, "/v1/chat.completions", body))

		assert.Equal(t, http.StatusOK, w.Code)
		var resp ChatCompletionResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, ChatCompletionResponse{
			ID:      "resp_1",
			Object:  "chat.completion",
			Created: 1700000000,
			Model:   "gpt-4.1",
			Choices: []ChatChoice{{Index: 0, Message: ChatMessage{Role: "assistant", Content: "Hello there"}, FinishReason: "stop"}},
			Usage:   ChatUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
		}, resp)
		dispatcher.AssertExpectations(t)
	})

	t.Run("stream emits unified response events", func(t *testing.T) {
		dispatcher := new(MockDispatcher)
		handler := NewInferenceHandler(dispatcher, logger)
		dispatcher.On("Stream", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(eventChannel(providers.Event{Type: providers.EventCompleted, Data: sampleResponse()}), nil)

		w := httptest.NewRecorder()
		handler.HandleChatCompletion(w, newRequest(http.MethodPost, "/v1/chat.completions", `{"model":"gpt-4.1","messages":[{"role":"user","content":"hi"}],"stream":true}`))

		assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Body.String(), "event: response.completed\n")
		assert.NotContains(t, w.Body.String(), "chat.completion.chunk")
	})

	t.Run("empty messages rejected", func(t *testing.T) {
		dispatcher := new(MockDispatcher)
		handler := NewInferenceHandler(dispatcher, logger)

		w := httptest.NewRecorder()
		handler.HandleChatCompletion(w, newRequest(http.MethodPost, "/v1/chat.completions", `{"model":"gpt-4.1","messages":[]}`))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		apiErr := decodeAPIError(t, w)
		assert.Contains(t, apiErr.Details, "fields")
	})
}

func TestValidateUnifiedRequest(t *testing.T) {
	req := &providers.Request{
		Model: "gpt-4.1",
		Input: providers.Input{Messages: []providers.Message{providers.TextMessage("user", "hi")}},
		Generation: &providers.Generation{ResponseFormat: &providers.ResponseFormat{
			Type:       providers.ResponseFormatJSONSchema,
			JSONSchema: map[string]interface{}{"name": "x", "schema": map[string]interface{}{"type": "object"}},
		}},
	}
	assert.NoError(t, ValidateUnifiedRequest(req))

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(req))
	assert.Contains(t, buf.String(), `"json_schema"`)
}
