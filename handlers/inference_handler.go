package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/llm-gateway/middleware"
	"github.com/upb/llm-gateway/models"
	"github.com/upb/llm-gateway/services"
	"github.com/upb/llm-gateway/services/providers"
	"github.com/upb/llm-gateway/utils"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 4 << 20

// Dispatcher serves unified requests
type Dispatcher interface {
	Generate(ctx context.Context, req *providers.Request, requestID string, auth models.AuthContext) (*providers.Response, error)
	Stream(ctx context.Context, req *providers.Request, requestID string, auth models.AuthContext) (<-chan providers.Event, error)
}

// ChatCompletionRequest represents an OpenAI-compatible chat completion request
type ChatCompletionRequest struct {
	Model       string                 `json:"model" validate:"required"`
	Messages    []ChatMessage          `json:"messages" validate:"required,min=1,dive"`
	Temperature *float64               `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   *int                   `json:"max_tokens,omitempty" validate:"omitempty,gt=0"`
	TopP        *float64               `json:"top_p,omitempty" validate:"omitempty,gte=0,lte=1"`
	Stream      bool                   `json:"stream,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// ChatMessage represents a single chat message
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant tool"`
	Content string `json:"content"`
}

// ChatCompletionResponse represents an OpenAI-compatible chat completion response
type ChatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   ChatUsage    `json:"usage"`
}

// ChatChoice represents a completion choice
type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// ChatUsage represents token usage information
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// InferenceHandler handles the generation endpoints
type InferenceHandler struct {
	dispatcher Dispatcher
	logger     *zap.Logger
}

// NewInferenceHandler creates a new InferenceHandler
func NewInferenceHandler(dispatcher Dispatcher, logger *zap.Logger) *InferenceHandler {
	return &InferenceHandler{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// HandleCreateResponse handles POST /v1/responses
func (h *InferenceHandler) HandleCreateResponse(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeUnified(w, r)
	if !ok {
		return
	}
	if req.Stream {
		h.stream(w, r, req)
		return
	}
	h.generate(w, r, req)
}

// HandleStreamResponse handles POST /v1/responses/stream
func (h *InferenceHandler) HandleStreamResponse(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeUnified(w, r)
	if !ok {
		return
	}
	req.Stream = true
	h.stream(w, r, req)
}

// HandleChatCompletion handles POST /v1/chat.completions. Non-streaming
// replies use the chat.completion shape. With stream set, the route emits the
// same unified response.* SSE events as /v1/responses, not
// chat.completion.chunk frames.
func (h *InferenceHandler) HandleChatCompletion(w http.ResponseWriter, r *http.Request) {
	var chatReq ChatCompletionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&chatReq); err != nil {
		HandleValidationError(w, r, services.WrapValidation("invalid request body", err), h.logger)
		return
	}
	if err := utils.ValidateStruct(&chatReq); err != nil {
		HandleValidationError(w, r, err, h.logger)
		return
	}

	req := chatReq.toUnified()
	if req.Stream {
		h.stream(w, r, req)
		return
	}

	resp, err := h.dispatcher.Generate(r.Context(), req, middleware.GetRequestIDFromContext(r.Context()), authFrom(r))
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	if err := utils.WriteOK(w, chatCompletionFrom(resp, chatReq.Model)); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

func (h *InferenceHandler) decodeUnified(w http.ResponseWriter, r *http.Request) (*providers.Request, bool) {
	var req providers.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		HandleValidationError(w, r, services.WrapValidation("invalid request body", err), h.logger)
		return nil, false
	}
	if err := ValidateUnifiedRequest(&req); err != nil {
		HandleValidationError(w, r, err, h.logger)
		return nil, false
	}
	return &req, true
}

func (h *InferenceHandler) generate(w http.ResponseWriter, r *http.Request, req *providers.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	resp, err := h.dispatcher.Generate(ctx, req, requestID, authFrom(r))
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	if err := utils.WriteOK(w, resp); err != nil {
		h.logger.Error("failed to write response",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

// stream writes events as server-sent events. Errors before the first
// event are returned as a JSON error body.
func (h *InferenceHandler) stream(w http.ResponseWriter, r *http.Request, req *providers.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	requestID := middleware.GetRequestIDFromContext(ctx)

	events, err := h.dispatcher.Stream(ctx, req, requestID, authFrom(r))
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}

	sse := utils.NewSSEWriter(w)
	for ev := range events {
		if err := sse.WriteEvent(string(ev.Type), ev); err != nil {
			h.logger.Info("stream write failed",
				zap.String("request_id", requestID),
				zap.Error(err))
			return
		}
	}
}

// ValidateUnifiedRequest checks a unified request before dispatch
func ValidateUnifiedRequest(req *providers.Request) error {
	if req.Model == "" {
		return services.ErrModelRequired
	}
	if len(req.Input.Messages) == 0 && req.Input.Prompt == "" {
		return services.ErrInputRequired
	}
	if err := utils.ValidateStruct(req); err != nil {
		return err
	}
	if req.ResponseFormatType() == providers.ResponseFormatJSONSchema {
		if err := utils.ValidateJSONSchema(req.Generation.ResponseFormat.JSONSchema); err != nil {
			return services.NewDomainError(services.ErrorTypeValidation, err.Error(), nil).
				WithDetail("field", "generation.response_format.json_schema")
		}
	}
	return nil
}

func (c ChatCompletionRequest) toUnified() *providers.Request {
	messages := make([]providers.Message, len(c.Messages))
	for i, m := range c.Messages {
		messages[i] = providers.TextMessage(m.Role, m.Content)
	}
	gen := &providers.Generation{Temperature: c.Temperature, TopP: c.TopP}
	if c.MaxTokens != nil {
		gen.MaxOutputTokens = *c.MaxTokens
	}
	return &providers.Request{
		Model:      c.Model,
		Input:      providers.Input{Messages: messages},
		Generation: gen,
		Stream:     c.Stream,
		Metadata:   c.Metadata,
	}
}

func chatCompletionFrom(resp *providers.Response, model string) ChatCompletionResponse {
	out := ChatCompletionResponse{
		ID:      resp.ID,
		Object:  "chat.completion",
		Created: resp.Created,
		Model:   model,
		Choices: []ChatChoice{{
			Index:        0,
			Message:      ChatMessage{Role: "assistant", Content: resp.Text()},
			FinishReason: "stop",
		}},
	}
	if resp.Usage != nil {
		out.Usage = ChatUsage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return out
}

func authFrom(r *http.Request) models.AuthContext {
	auth, _ := middleware.GetAuthFromContext(r.Context())
	return auth
}
