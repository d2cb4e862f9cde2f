// Package anthropic adapts the Anthropic Messages API to the unified provider contract.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/upb/llm-gateway/services/providers"
)

const (
	providerName     = "anthropic"
	defaultMaxTokens = 512
)

// Adapter implements providers.Provider on top of anthropic-sdk-go
type Adapter struct {
	client *anthropic.Client
	hasKey bool
	now    func() time.Time
}

// NewAdapter builds an adapter with its own SDK client
func NewAdapter(config providers.ProviderConfig) *Adapter {
	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		// The dispatcher owns fallback; SDK retries would hide upstream status.
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(config.Timeout))
	}
	for key, value := range config.Headers {
		opts = append(opts, option.WithHeader(key, value))
	}

	client := anthropic.NewClient(opts...)
	return &Adapter{client: &client, hasKey: config.APIKey != "", now: time.Now}
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return providerName
}

// Generate sends a non-streaming Messages request
func (a *Adapter) Generate(ctx context.Context, req *providers.Request, requestID, providerModel string) (*providers.Result, error) {
	if !a.hasKey {
		return nil, providers.NewProviderError(providerName, providers.CodeMissingAPIKey, "Anthropic API key missing", 0, false, nil)
	}

	message, err := a.client.Messages.New(ctx, buildParams(req, providerModel))
	if err != nil {
		return nil, mapError(err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	usage := providers.Usage{
		InputTokens:       int(message.Usage.InputTokens),
		OutputTokens:      int(message.Usage.OutputTokens),
		TotalTokens:       int(message.Usage.InputTokens + message.Usage.OutputTokens),
		CachedInputTokens: int(message.Usage.CacheReadInputTokens),
	}
	return a.result(message.ID, req, requestID, providerModel, text.String(), usage), nil
}

// Stream opens a server-sent event stream and translates it into unified events.
// The first upstream event is read eagerly so connection and HTTP errors surface
// here, before anything reached the caller.
func (a *Adapter) Stream(ctx context.Context, req *providers.Request, requestID, providerModel string) (providers.EventStream, error) {
	if !a.hasKey {
		return nil, providers.NewProviderError(providerName, providers.CodeMissingAPIKey, "Anthropic API key missing", 0, false, nil)
	}

	upstream := a.client.Messages.NewStreaming(ctx, buildParams(req, providerModel))
	if !upstream.Next() {
		err := upstream.Err()
		_ = upstream.Close()
		if err == nil {
			err = providers.NewProviderError(providerName, providers.CodeStreamIncomplete, "stream ended before message_start", 0, false, nil)
		}
		return nil, mapError(err)
	}

	s := &eventStream{
		adapter:       a,
		upstream:      upstream,
		req:           req,
		requestID:     requestID,
		providerModel: providerModel,
	}
	s.translate(upstream.Current())
	return s, nil
}

func (a *Adapter) result(id string, req *providers.Request, requestID, providerModel, text string, usage providers.Usage) *providers.Result {
	now := a.now()
	if id == "" {
		id = fmt.Sprintf("resp_anthropic_%d", now.UnixMilli())
	}
	resp := providers.NewMessageResponse(id, now.Unix(), req, requestID, text)
	resp.Provider = &providers.ProviderInfo{Name: providerName, Model: providerModel}
	resp.Usage = &usage
	return &providers.Result{Response: resp, Usage: usage}
}

// eventStream adapts the SDK's ssestream to providers.EventStream
type eventStream struct {
	adapter       *Adapter
	upstream      *ssestream.Stream[anthropic.MessageStreamEventUnion]
	req           *providers.Request
	requestID     string
	providerModel string

	pending   []providers.Event
	cur       providers.Event
	messageID string
	text      strings.Builder
	usage     providers.Usage
	result    *providers.Result
	err       error
	done      bool
}

func (s *eventStream) Next() bool {
	for len(s.pending) == 0 {
		if s.done {
			return false
		}
		if !s.upstream.Next() {
			s.done = true
			if err := s.upstream.Err(); err != nil {
				s.err = mapError(err)
			} else if s.result == nil {
				s.err = providers.NewProviderError(providerName, providers.CodeStreamIncomplete, "stream ended before message_stop", 0, false, nil)
			}
			return false
		}
		s.translate(s.upstream.Current())
	}
	s.cur = s.pending[0]
	s.pending = s.pending[1:]
	return true
}

func (s *eventStream) translate(ev anthropic.MessageStreamEventUnion) {
	switch ev.Type {
	case "message_start":
		s.messageID = ev.Message.ID
		s.usage.InputTokens = int(ev.Message.Usage.InputTokens)
		s.usage.CachedInputTokens = int(ev.Message.Usage.CacheReadInputTokens)
		s.pending = append(s.pending, providers.Event{
			Type: providers.EventCreated,
			Data: providers.CreatedData{RequestID: s.requestID},
		})
	case "content_block_delta":
		if ev.Delta.Type == "text_delta" && ev.Delta.Text != "" {
			s.text.WriteString(ev.Delta.Text)
			s.pending = append(s.pending, providers.Event{
				Type: providers.EventDelta,
				Data: providers.DeltaData{Delta: ev.Delta.Text},
			})
		}
	case "message_delta":
		s.usage.OutputTokens = int(ev.Usage.OutputTokens)
	case "message_stop":
		s.usage.TotalTokens = s.usage.InputTokens + s.usage.OutputTokens
		s.result = s.adapter.result(s.messageID, s.req, s.requestID, s.providerModel, s.text.String(), s.usage)
		s.done = true
		s.pending = append(s.pending,
			providers.Event{Type: providers.EventUsage, Data: s.usage},
			providers.Event{Type: providers.EventCompleted, Data: s.result.Response},
		)
	}
}

func (s *eventStream) Current() providers.Event { return s.cur }

func (s *eventStream) Err() error { return s.err }

func (s *eventStream) Close() error { return s.upstream.Close() }

func (s *eventStream) Result() *providers.Result {
	if s.err != nil {
		return nil
	}
	return s.result
}

func buildParams(req *providers.Request, providerModel string) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(providerModel),
		MaxTokens: int64(req.MaxOutputTokens(defaultMaxTokens)),
		Messages:  mapMessages(req.Input),
	}

	var system []anthropic.TextBlockParam
	for _, msg := range req.Input.Messages {
		if msg.Role == "system" {
			system = append(system, anthropic.TextBlockParam{Text: msg.Text()})
		}
	}
	if len(system) > 0 {
		params.System = system
	}

	if gen := req.Generation; gen != nil {
		if gen.Temperature != nil {
			params.Temperature = anthropic.Float(*gen.Temperature)
		}
		if gen.TopP != nil {
			params.TopP = anthropic.Float(*gen.TopP)
		}
		if len(gen.Stop) > 0 {
			params.StopSequences = gen.Stop
		}
	}

	return params
}

// mapMessages keeps assistant turns and sends everything else except system
// prompts as user turns.
func mapMessages(in providers.Input) []anthropic.MessageParam {
	if len(in.Messages) == 0 {
		if in.Prompt == "" {
			return []anthropic.MessageParam{}
		}
		return []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(in.Prompt))}
	}

	out := make([]anthropic.MessageParam, 0, len(in.Messages))
	for _, msg := range in.Messages {
		switch msg.Role {
		case "system":
			continue
		case "assistant":
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Text())))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Text())))
		}
	}
	return out
}

// mapError converts SDK errors into provider errors carrying the upstream status
func mapError(err error) error {
	var provErr *providers.ProviderError
	if errors.As(err, &provErr) {
		return err
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		status := apiErr.StatusCode
		return providers.NewProviderError(
			providerName,
			providers.CodeUpstreamError,
			fmt.Sprintf("Anthropic error %d", status),
			status,
			status >= 500 || status == 429,
			err,
		)
	}

	return providers.NewProviderError(providerName, providers.CodeHTTPError, "Anthropic request failed", 0, true, err)
}
