package providers

import (
	"strings"
)

// Content part types
const (
	ContentTypeText     = "text"
	ContentTypeImageURL = "image_url"
)

// Response format types
const (
	ResponseFormatText       = "text"
	ResponseFormatJSONSchema = "json_schema"
)

// ImageURL references an image input
type ImageURL struct {
	URL string `json:"url" validate:"required"`
}

// ContentPart is one piece of message content
type ContentPart struct {
	Type     string    `json:"type" validate:"required,oneof=text image_url"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// Message represents a single message in a conversation
type Message struct {
	// Role can be "system", "user", "assistant" or "tool"
	Role       string        `json:"role" validate:"required,oneof=system user assistant tool"`
	Content    []ContentPart `json:"content" validate:"dive"`
	Name       string        `json:"name,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

// Text joins the text parts of the message with a single space
func (m Message) Text() string {
	parts := make([]string, 0, len(m.Content))
	for _, part := range m.Content {
		if part.Type == ContentTypeText {
			parts = append(parts, part.Text)
		}
	}
	return strings.Join(parts, " ")
}

// TextMessage builds a message with a single text part
func TextMessage(role, text string) Message {
	return Message{
		Role:    role,
		Content: []ContentPart{{Type: ContentTypeText, Text: text}},
	}
}

// Input is either a list of messages or a bare prompt
type Input struct {
	Messages []Message `json:"messages,omitempty" validate:"dive"`
	Prompt   string    `json:"prompt,omitempty"`
}

// Text flattens the input the way adapters that take plain text expect it:
// the prompt when set, otherwise each message's text on its own line.
func (in Input) Text() string {
	if in.Prompt != "" {
		return in.Prompt
	}
	lines := make([]string, 0, len(in.Messages))
	for _, m := range in.Messages {
		lines = append(lines, m.Text())
	}
	return strings.Join(lines, "\n")
}

// ResponseFormat requests structured output
type ResponseFormat struct {
	Type       string                 `json:"type,omitempty" validate:"omitempty,oneof=text json_schema"`
	JSONSchema map[string]interface{} `json:"json_schema,omitempty"`
}

// ToolSpec declares a callable tool
type ToolSpec struct {
	Name        string                 `json:"name" validate:"required"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// Generation holds sampling parameters
type Generation struct {
	MaxOutputTokens int             `json:"max_output_tokens,omitempty" validate:"gte=0"`
	Temperature     *float64        `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	TopP            *float64        `json:"top_p,omitempty" validate:"omitempty,gte=0,lte=1"`
	Seed            *int64          `json:"seed,omitempty"`
	Stop            []string        `json:"stop,omitempty"`
	ResponseFormat  *ResponseFormat `json:"response_format,omitempty"`
	Tools           []ToolSpec      `json:"tools,omitempty" validate:"dive"`
}

// RoutingConstraints steer variant selection
type RoutingConstraints struct {
	Strategy       string   `json:"strategy,omitempty" validate:"omitempty,oneof=cost latency reliability quality"`
	AllowProviders []string `json:"allow_providers,omitempty"`
	DenyProviders  []string `json:"deny_providers,omitempty"`
	MaxFallbacks   *int     `json:"max_fallbacks,omitempty" validate:"omitempty,gte=0"`
}

// BudgetConstraints are accepted for forward compatibility; routing ignores them
type BudgetConstraints struct {
	MaxCostUSD   float64 `json:"max_cost_usd,omitempty"`
	MaxLatencyMs int     `json:"max_latency_ms,omitempty"`
}

// RegionConstraints pin data residency
type RegionConstraints struct {
	DataResidency string `json:"data_residency,omitempty"`
}

// Constraints groups the caller's routing constraints
type Constraints struct {
	Budget  *BudgetConstraints  `json:"budget,omitempty"`
	Routing *RoutingConstraints `json:"routing,omitempty"`
	Region  *RegionConstraints  `json:"region,omitempty"`
}

// Request is the unified "generate text" request
type Request struct {
	Model       string                 `json:"model"`
	Input       Input                  `json:"input"`
	Generation  *Generation            `json:"generation,omitempty"`
	Constraints *Constraints           `json:"constraints,omitempty"`
	Stream      bool                   `json:"stream,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Tools returns the declared tools, if any
func (r *Request) Tools() []ToolSpec {
	if r.Generation == nil {
		return nil
	}
	return r.Generation.Tools
}

// ResponseFormatType returns the requested response format type or ""
func (r *Request) ResponseFormatType() string {
	if r.Generation == nil || r.Generation.ResponseFormat == nil {
		return ""
	}
	return r.Generation.ResponseFormat.Type
}

// MaxOutputTokens returns the requested output limit or fallback when unset
func (r *Request) MaxOutputTokens(fallback int) int {
	if r.Generation == nil || r.Generation.MaxOutputTokens <= 0 {
		return fallback
	}
	return r.Generation.MaxOutputTokens
}

// Routing returns the routing constraints, never nil
func (r *Request) Routing() RoutingConstraints {
	if r.Constraints == nil || r.Constraints.Routing == nil {
		return RoutingConstraints{}
	}
	return *r.Constraints.Routing
}

// DataResidency returns the pinned region or ""
func (r *Request) DataResidency() string {
	if r.Constraints == nil || r.Constraints.Region == nil {
		return ""
	}
	return r.Constraints.Region.DataResidency
}

// Tags returns string entries of metadata.tags
func (r *Request) Tags() []string {
	raw, ok := r.Metadata["tags"]
	if !ok {
		return nil
	}
	switch tags := raw.(type) {
	case []string:
		return tags
	case []interface{}:
		out := make([]string, 0, len(tags))
		for _, t := range tags {
			if s, ok := t.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// ProviderInfo identifies the backend that served a response
type ProviderInfo struct {
	Name   string `json:"name,omitempty"`
	Model  string `json:"model,omitempty"`
	Region string `json:"region,omitempty"`
}

// ToolCall is a model-issued tool invocation
type ToolCall struct {
	ID            string                 `json:"id"`
	Name          string                 `json:"name"`
	ArgumentsJSON map[string]interface{} `json:"arguments_json"`
}

// Output is one item of a response
type Output struct {
	Type     string    `json:"type"`
	Message  *Message  `json:"message,omitempty"`
	ToolCall *ToolCall `json:"tool_call,omitempty"`
}

// Usage represents token usage and the billed cost
type Usage struct {
	InputTokens       int     `json:"input_tokens"`
	OutputTokens      int     `json:"output_tokens"`
	TotalTokens       int     `json:"total_tokens"`
	CachedInputTokens int     `json:"cached_input_tokens,omitempty"`
	CostUSD           float64 `json:"cost_usd"`
}

// Response is the unified response
type Response struct {
	ID        string                 `json:"id"`
	Object    string                 `json:"object"`
	Created   int64                  `json:"created"`
	Model     string                 `json:"model"`
	Provider  *ProviderInfo          `json:"provider,omitempty"`
	Outputs   []Output               `json:"outputs"`
	Usage     *Usage                 `json:"usage,omitempty"`
	RequestID string                 `json:"request_id"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Text returns the text of the first message output
func (r *Response) Text() string {
	for _, out := range r.Outputs {
		if out.Message != nil {
			return out.Message.Text()
		}
	}
	return ""
}

// NewMessageResponse builds a response holding one assistant text message
func NewMessageResponse(id string, created int64, req *Request, requestID, text string) *Response {
	msg := TextMessage("assistant", text)
	return &Response{
		ID:        id,
		Object:    "response",
		Created:   created,
		Model:     req.Model,
		Outputs:   []Output{{Type: "message", Message: &msg}},
		RequestID: requestID,
		Metadata:  req.Metadata,
	}
}

// EventType names a streaming event
type EventType string

const (
	EventCreated   EventType = "response.created"
	EventDelta     EventType = "response.delta"
	EventUsage     EventType = "response.usage"
	EventCompleted EventType = "response.completed"
	EventFailed    EventType = "response.failed"
)

// Event is one server-sent streaming event
type Event struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data"`
}

// CreatedData is the payload of response.created
type CreatedData struct {
	RequestID string `json:"request_id"`
}

// DeltaData is the payload of response.delta
type DeltaData struct {
	Delta string `json:"delta"`
}

// FailedData is the payload of response.failed
type FailedData struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RequestID  string `json:"request_id,omitempty"`
	Provider   string `json:"provider,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
}

// Result is what an adapter returns for a completed generation
type Result struct {
	Response *Response
	Usage    Usage
}
