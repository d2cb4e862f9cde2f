package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/upb/llm-gateway/services/providers"
)

func TestNewOpenAIAdapter(t *testing.T) {
	adapter := NewOpenAIAdapter(providers.ProviderConfig{APIKey: "test-key"})

	if adapter == nil {
		t.Fatal("NewOpenAIAdapter() returned nil")
	}

	if adapter.Name() != "openai" {
		t.Errorf("Name() = %s, want openai", adapter.Name())
	}

	if adapter.config.BaseURL != defaultBaseURL {
		t.Errorf("BaseURL = %s, want %s", adapter.config.BaseURL, defaultBaseURL)
	}

	if adapter.httpClient.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", adapter.httpClient.Timeout)
	}
}

func TestOpenAIAdapter_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s, want /chat/completions", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Authorization = %s", r.Header.Get("Authorization"))
		}
		if r.Header.Get("X-Trace") != "1" {
			t.Error("custom header not forwarded")
		}

		body, _ := io.ReadAll(r.Body)
		var req OpenAIChatRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("invalid request body: %v", err)
		}
		if req.Model != "gpt-4.1" {
			t.Errorf("model = %s, want provider model gpt-4.1", req.Model)
		}
		if len(req.Messages) != 1 || req.Messages[0].Content != "hello world" {
			t.Errorf("messages = %+v", req.Messages)
		}
		if req.MaxTokens == nil || *req.MaxTokens != 64 {
			t.Errorf("max_tokens = %v", req.MaxTokens)
		}
		if req.Stream {
			t.Error("stream must be false")
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-123",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4.1",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hi!"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15, "prompt_tokens_details": {"cached_tokens": 4}}
		}`))
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(providers.ProviderConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Headers: map[string]string{"X-Trace": "1"},
	})

	req := &providers.Request{
		Model: "gpt-4.1",
		Input: providers.Input{Messages: []providers.Message{{
			Role: "user",
			Content: []providers.ContentPart{
				{Type: providers.ContentTypeText, Text: "hello"},
				{Type: providers.ContentTypeText, Text: "world"},
			},
		}}},
		Generation: &providers.Generation{MaxOutputTokens: 64},
		Metadata:   map[string]interface{}{"trace": "abc"},
	}

	result, err := adapter.Generate(context.Background(), req, "req-1", "gpt-4.1")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	resp := result.Response
	if resp.ID != "chatcmpl-123" || resp.Created != 1700000000 {
		t.Errorf("id/created = %s/%d", resp.ID, resp.Created)
	}
	if resp.Text() != "Hi!" {
		t.Errorf("Text() = %q", resp.Text())
	}
	if resp.RequestID != "req-1" || resp.Model != "gpt-4.1" {
		t.Errorf("request id/model = %s/%s", resp.RequestID, resp.Model)
	}
	if resp.Metadata["trace"] != "abc" {
		t.Error("metadata not echoed")
	}
	if result.Usage.InputTokens != 12 || result.Usage.OutputTokens != 3 || result.Usage.TotalTokens != 15 {
		t.Errorf("usage = %+v", result.Usage)
	}
	if result.Usage.CachedInputTokens != 4 {
		t.Errorf("cached tokens = %d, want 4", result.Usage.CachedInputTokens)
	}
}

func TestOpenAIAdapter_Generate_Error(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantRetryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down","type":"rate_limit_error"}}`, true},
		{"server error", http.StatusServiceUnavailable, `upstream unavailable`, true},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"bad model","type":"invalid_request_error"}}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			adapter := NewOpenAIAdapter(providers.ProviderConfig{APIKey: "k", BaseURL: server.URL})
			_, err := adapter.Generate(context.Background(), &providers.Request{Model: "m", Input: providers.Input{Prompt: "x"}}, "r", "m")
			if err == nil {
				t.Fatal("expected error")
			}

			var provErr *providers.ProviderError
			if !errors.As(err, &provErr) {
				t.Fatalf("error type = %T, want *ProviderError", err)
			}
			if provErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", provErr.StatusCode, tt.status)
			}
			if provErr.Retryable != tt.wantRetryable {
				t.Errorf("Retryable = %v, want %v", provErr.Retryable, tt.wantRetryable)
			}
		})
	}
}

func TestOpenAIAdapter_Generate_MissingKey(t *testing.T) {
	adapter := NewOpenAIAdapter(providers.ProviderConfig{})

	_, err := adapter.Generate(context.Background(), &providers.Request{Model: "m"}, "r", "m")
	if err == nil {
		t.Fatal("expected error without API key")
	}
	if providers.StatusCodeOf(err) != 0 {
		t.Errorf("missing key must carry no status, got %d", providers.StatusCodeOf(err))
	}
}

func TestOpenAIAdapter_Generate_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	adapter := NewOpenAIAdapter(providers.ProviderConfig{APIKey: "k", BaseURL: url})
	_, err := adapter.Generate(context.Background(), &providers.Request{Model: "m", Input: providers.Input{Prompt: "x"}}, "r", "m")
	if err == nil {
		t.Fatal("expected transport error")
	}
	if providers.StatusCodeOf(err) != 0 {
		t.Errorf("transport errors carry no status, got %d", providers.StatusCodeOf(err))
	}
	if !providers.IsRetryable(err) {
		t.Error("transport errors should be retryable")
	}
}

func TestOpenAIAdapter_Stream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"c1","created":1,"choices":[{"message":{"role":"assistant","content":"streamed"}}],"usage":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}`))
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(providers.ProviderConfig{APIKey: "k", BaseURL: server.URL})
	stream, err := adapter.Stream(context.Background(), &providers.Request{Model: "m", Input: providers.Input{Prompt: "x"}, Stream: true}, "req-9", "m")
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	defer stream.Close()

	var got []providers.EventType
	for stream.Next() {
		got = append(got, stream.Current().Type)
	}
	want := []providers.EventType{providers.EventCreated, providers.EventDelta, providers.EventUsage, providers.EventCompleted}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if stream.Err() != nil {
		t.Errorf("Err() = %v", stream.Err())
	}
	if stream.Result() == nil || stream.Result().Usage.TotalTokens != 3 {
		t.Errorf("Result() = %+v", stream.Result())
	}
}

func TestOpenAIAdapter_Stream_ErrorBeforeEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(providers.ProviderConfig{APIKey: "k", BaseURL: server.URL})
	stream, err := adapter.Stream(context.Background(), &providers.Request{Model: "m", Input: providers.Input{Prompt: "x"}}, "r", "m")
	if err == nil {
		t.Fatal("expected error")
	}
	if stream != nil {
		t.Error("no stream should be returned on error")
	}
	if providers.StatusCodeOf(err) != http.StatusBadGateway {
		t.Errorf("StatusCodeOf() = %d", providers.StatusCodeOf(err))
	}
}

func TestBuildOpenAIRequest(t *testing.T) {
	adapter := NewOpenAIAdapter(providers.ProviderConfig{})
	temp := 0.2
	seed := int64(7)

	req := &providers.Request{
		Model: "gpt-4.1",
		Input: providers.Input{Prompt: "hi"},
		Generation: &providers.Generation{
			Temperature:    &temp,
			Seed:           &seed,
			Stop:           []string{"END"},
			Tools:          []providers.ToolSpec{{Name: "lookup", Description: "find things"}},
			ResponseFormat: &providers.ResponseFormat{Type: providers.ResponseFormatJSONSchema, JSONSchema: map[string]interface{}{"type": "object"}},
		},
	}

	out := adapter.buildOpenAIRequest(req, "gpt-4.1-2025")

	if out.Model != "gpt-4.1-2025" {
		t.Errorf("Model = %s", out.Model)
	}
	if len(out.Messages) != 1 || out.Messages[0].Role != "user" || out.Messages[0].Content != "hi" {
		t.Errorf("Messages = %+v", out.Messages)
	}
	if out.Temperature == nil || *out.Temperature != 0.2 {
		t.Errorf("Temperature = %v", out.Temperature)
	}
	if out.MaxTokens != nil {
		t.Error("MaxTokens should be unset")
	}
	if out.Seed == nil || *out.Seed != 7 {
		t.Errorf("Seed = %v", out.Seed)
	}
	if len(out.Tools) != 1 || out.Tools[0].Type != "function" || out.Tools[0].Function.Name != "lookup" {
		t.Errorf("Tools = %+v", out.Tools)
	}
	if out.ResponseFormat == nil || out.ResponseFormat.Type != "json_schema" {
		t.Errorf("ResponseFormat = %+v", out.ResponseFormat)
	}
}

func TestConvertToUnifiedResult_ToolCalls(t *testing.T) {
	adapter := NewOpenAIAdapter(providers.ProviderConfig{})
	adapter.now = func() time.Time { return time.UnixMilli(42000) }

	var raw OpenAIChatResponse
	err := json.Unmarshal([]byte(`{
		"choices":[{"message":{"role":"assistant","content":"","tool_calls":[{"id":"call_1","type":"function","function":{"name":"lookup","arguments":"{\"q\":\"go\"}"}}]}}],
		"usage":{"prompt_tokens":5,"completion_tokens":6,"total_tokens":11}
	}`), &raw)
	if err != nil {
		t.Fatal(err)
	}

	result := adapter.convertToUnifiedResult(&raw, &providers.Request{Model: "gpt-4.1"}, "r", "gpt-4.1")

	if result.Response.ID != "resp_openai_42000" {
		t.Errorf("ID = %s", result.Response.ID)
	}
	if result.Response.Created != 42 {
		t.Errorf("Created = %d", result.Response.Created)
	}
	if len(result.Response.Outputs) != 2 {
		t.Fatalf("Outputs = %+v", result.Response.Outputs)
	}
	call := result.Response.Outputs[1].ToolCall
	if call == nil || call.Name != "lookup" || call.ArgumentsJSON["q"] != "go" {
		t.Errorf("ToolCall = %+v", call)
	}
}
