package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/upb/llm-gateway/services/providers"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
)

// OpenAIAdapter implements the Provider interface for OpenAI Chat Completions
type OpenAIAdapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
	now        func() time.Time
}

// NewOpenAIAdapter creates a new OpenAI adapter
func NewOpenAIAdapter(config providers.ProviderConfig) *OpenAIAdapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}

	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &OpenAIAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		now: time.Now,
	}
}

// Name returns the provider name
func (a *OpenAIAdapter) Name() string {
	return "openai"
}

// Generate performs a chat completion request
func (a *OpenAIAdapter) Generate(ctx context.Context, req *providers.Request, requestID, providerModel string) (*providers.Result, error) {
	if a.config.APIKey == "" {
		return nil, providers.NewProviderError(a.Name(), providers.CodeMissingAPIKey, "OpenAI API key missing", 0, false, nil)
	}

	reqBody, err := json.Marshal(a.buildOpenAIRequest(req, providerModel))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "MARSHAL_ERROR", "failed to marshal request", 0, false, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "REQUEST_ERROR", "failed to create request", 0, false, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	// Retries are the dispatcher's job: one attempt per candidate.
	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), providers.CodeHTTPError, "HTTP request failed", 0, true, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "READ_ERROR", "failed to read response", httpResp.StatusCode, false, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, a.handleErrorResponse(httpResp.StatusCode, respBody)
	}

	var openaiResp OpenAIChatResponse
	if err := json.Unmarshal(respBody, &openaiResp); err != nil {
		return nil, providers.NewProviderError(a.Name(), "UNMARSHAL_ERROR", "failed to unmarshal response", httpResp.StatusCode, false, err)
	}

	return a.convertToUnifiedResult(&openaiResp, req, requestID, providerModel), nil
}

// Stream performs the completion up front and replays it as
// created, delta, usage and completed events.
func (a *OpenAIAdapter) Stream(ctx context.Context, req *providers.Request, requestID, providerModel string) (providers.EventStream, error) {
	result, err := a.Generate(ctx, req, requestID, providerModel)
	if err != nil {
		return nil, err
	}

	events := []providers.Event{
		{Type: providers.EventCreated, Data: providers.CreatedData{RequestID: requestID}},
	}
	if text := result.Response.Text(); text != "" {
		events = append(events, providers.Event{Type: providers.EventDelta, Data: providers.DeltaData{Delta: text}})
	}
	events = append(events,
		providers.Event{Type: providers.EventUsage, Data: result.Usage},
		providers.Event{Type: providers.EventCompleted, Data: result.Response},
	)

	return providers.NewSliceStream(events, result), nil
}

// buildOpenAIRequest converts a unified request to OpenAI format
func (a *OpenAIAdapter) buildOpenAIRequest(req *providers.Request, providerModel string) *OpenAIChatRequest {
	openaiReq := &OpenAIChatRequest{
		Model:    providerModel,
		Messages: mapMessages(req.Input),
	}

	if gen := req.Generation; gen != nil {
		if gen.MaxOutputTokens > 0 {
			maxTokens := gen.MaxOutputTokens
			openaiReq.MaxTokens = &maxTokens
		}
		openaiReq.Temperature = gen.Temperature
		openaiReq.TopP = gen.TopP
		openaiReq.Seed = gen.Seed
		if len(gen.Stop) > 0 {
			openaiReq.Stop = gen.Stop
		}
		for _, tool := range gen.Tools {
			openaiReq.Tools = append(openaiReq.Tools, OpenAITool{
				Type: "function",
				Function: OpenAIFunction{
					Name:        tool.Name,
					Description: tool.Description,
					Parameters:  tool.Parameters,
				},
			})
		}
		if rf := gen.ResponseFormat; rf != nil && rf.Type == providers.ResponseFormatJSONSchema {
			openaiReq.ResponseFormat = &OpenAIResponseFormat{
				Type:       providers.ResponseFormatJSONSchema,
				JSONSchema: rf.JSONSchema,
			}
		}
	}

	return openaiReq
}

func mapMessages(in providers.Input) []OpenAIMessage {
	if len(in.Messages) > 0 {
		out := make([]OpenAIMessage, len(in.Messages))
		for i, msg := range in.Messages {
			out[i] = OpenAIMessage{
				Role:       msg.Role,
				Content:    msg.Text(),
				Name:       msg.Name,
				ToolCallID: msg.ToolCallID,
			}
		}
		return out
	}
	if in.Prompt != "" {
		return []OpenAIMessage{{Role: "user", Content: in.Prompt}}
	}
	return []OpenAIMessage{}
}

// convertToUnifiedResult converts an OpenAI response to unified format
func (a *OpenAIAdapter) convertToUnifiedResult(openaiResp *OpenAIChatResponse, req *providers.Request, requestID, providerModel string) *providers.Result {
	id := openaiResp.ID
	if id == "" {
		id = fmt.Sprintf("resp_openai_%d", a.now().UnixMilli())
	}
	created := openaiResp.Created
	if created == 0 {
		created = a.now().Unix()
	}

	var text string
	var toolCalls []OpenAIToolCall
	if len(openaiResp.Choices) > 0 {
		text = openaiResp.Choices[0].Message.Content
		toolCalls = openaiResp.Choices[0].Message.ToolCalls
	}

	resp := providers.NewMessageResponse(id, created, req, requestID, text)
	resp.Provider = &providers.ProviderInfo{Name: a.Name(), Model: providerModel}
	for _, call := range toolCalls {
		args := map[string]interface{}{}
		_ = json.Unmarshal([]byte(call.Function.Arguments), &args)
		resp.Outputs = append(resp.Outputs, providers.Output{
			Type:     "tool_call",
			ToolCall: &providers.ToolCall{ID: call.ID, Name: call.Function.Name, ArgumentsJSON: args},
		})
	}

	usage := providers.Usage{
		InputTokens:  openaiResp.Usage.PromptTokens,
		OutputTokens: openaiResp.Usage.CompletionTokens,
		TotalTokens:  openaiResp.Usage.TotalTokens,
	}
	if details := openaiResp.Usage.PromptTokensDetails; details != nil {
		usage.CachedInputTokens = details.CachedTokens
	}
	resp.Usage = &usage

	return &providers.Result{Response: resp, Usage: usage}
}

// handleErrorResponse handles OpenAI error responses
func (a *OpenAIAdapter) handleErrorResponse(statusCode int, body []byte) error {
	retryable := statusCode >= 500 || statusCode == http.StatusTooManyRequests

	var errResp OpenAIErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return providers.NewProviderError(
			a.Name(),
			providers.CodeUpstreamError,
			fmt.Sprintf("OpenAI error %d: %s", statusCode, string(body)),
			statusCode,
			retryable,
			nil,
		)
	}

	return providers.NewProviderError(
		a.Name(),
		errResp.Error.Type,
		fmt.Sprintf("OpenAI error %d", statusCode),
		statusCode,
		retryable,
		errors.New(errResp.Error.Message),
	)
}

// OpenAI-specific request/response types

type OpenAIChatRequest struct {
	Model          string                `json:"model"`
	Messages       []OpenAIMessage       `json:"messages"`
	MaxTokens      *int                  `json:"max_tokens,omitempty"`
	Temperature    *float64              `json:"temperature,omitempty"`
	TopP           *float64              `json:"top_p,omitempty"`
	Seed           *int64                `json:"seed,omitempty"`
	Stream         bool                  `json:"stream"`
	Stop           []string              `json:"stop,omitempty"`
	Tools          []OpenAITool          `json:"tools,omitempty"`
	ResponseFormat *OpenAIResponseFormat `json:"response_format,omitempty"`
}

type OpenAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	Name       string           `json:"name,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	ToolCalls  []OpenAIToolCall `json:"tool_calls,omitempty"`
}

type OpenAITool struct {
	Type     string         `json:"type"`
	Function OpenAIFunction `json:"function"`
}

type OpenAIFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

type OpenAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type OpenAIResponseFormat struct {
	Type       string                 `json:"type"`
	JSONSchema map[string]interface{} `json:"json_schema,omitempty"`
}

type OpenAIChatResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []OpenAIChoice `json:"choices"`
	Usage   OpenAIUsage    `json:"usage"`
}

type OpenAIChoice struct {
	Index        int           `json:"index"`
	Message      OpenAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type OpenAIUsage struct {
	PromptTokens        int                  `json:"prompt_tokens"`
	CompletionTokens    int                  `json:"completion_tokens"`
	TotalTokens         int                  `json:"total_tokens"`
	PromptTokensDetails *OpenAITokensDetails `json:"prompt_tokens_details,omitempty"`
}

type OpenAITokensDetails struct {
	CachedTokens int `json:"cached_tokens"`
}

type OpenAIErrorResponse struct {
	Error OpenAIError `json:"error"`
}

type OpenAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}
