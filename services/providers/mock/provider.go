// Package mock implements a deterministic local provider used for
// development, rollouts against a synthetic backend and tests.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/upb/llm-gateway/services/providers"
)

const (
	providerName    = "mock"
	maxContentChars = 200
	region          = "LOCAL"
)

// Option configures a Provider
type Option func(*Provider)

// WithName registers the provider under another name
func WithName(name string) Option {
	return func(p *Provider) { p.name = name }
}

// WithLatency delays every call, honoring context cancellation
func WithLatency(d time.Duration) Option {
	return func(p *Provider) { p.latency = d }
}

// WithClock overrides the time source used for ids and timestamps
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

type scriptedFailure struct {
	err       error
	remaining int // < 0 fails forever
}

type streamFailure struct {
	after int
	err   error
}

// Provider is the mock backend
type Provider struct {
	name    string
	latency time.Duration
	now     func() time.Time

	mu             sync.Mutex
	failures       map[string]*scriptedFailure
	streamFailures map[string]streamFailure
	calls          map[string]int
}

// New creates a mock provider
func New(opts ...Option) *Provider {
	p := &Provider{
		name:           providerName,
		now:            time.Now,
		failures:       make(map[string]*scriptedFailure),
		streamFailures: make(map[string]streamFailure),
		calls:          make(map[string]int),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider name
func (p *Provider) Name() string {
	return p.name
}

// FailWith makes every call for providerModel fail with err
func (p *Provider) FailWith(providerModel string, err error) {
	p.FailTimes(providerModel, -1, err)
}

// FailTimes makes the next n calls for providerModel fail with err
func (p *Provider) FailTimes(providerModel string, n int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[providerModel] = &scriptedFailure{err: err, remaining: n}
}

// FailStreamAfter makes streams for providerModel fail after emitting n events
func (p *Provider) FailStreamAfter(providerModel string, n int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.streamFailures[providerModel] = streamFailure{after: n, err: err}
}

// Reset clears scripted failures and call counts
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = make(map[string]*scriptedFailure)
	p.streamFailures = make(map[string]streamFailure)
	p.calls = make(map[string]int)
}

// Calls returns how many times providerModel was invoked
func (p *Provider) Calls(providerModel string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[providerModel]
}

// Generate returns a canned response echoing the input
func (p *Provider) Generate(ctx context.Context, req *providers.Request, requestID, providerModel string) (*providers.Result, error) {
	if err := p.begin(ctx, providerModel); err != nil {
		return nil, err
	}
	return p.result(req, requestID, providerModel), nil
}

// Stream emits created, one delta per word, usage and completed
func (p *Provider) Stream(ctx context.Context, req *providers.Request, requestID, providerModel string) (providers.EventStream, error) {
	if err := p.begin(ctx, providerModel); err != nil {
		return nil, err
	}

	result := p.result(req, requestID, providerModel)

	events := []providers.Event{{Type: providers.EventCreated, Data: providers.CreatedData{RequestID: requestID}}}
	for _, word := range strings.Split(fmt.Sprintf("Mock stream for %s", req.Model), " ") {
		events = append(events, providers.Event{Type: providers.EventDelta, Data: providers.DeltaData{Delta: word + " "}})
	}
	usage := result.Usage
	events = append(events,
		providers.Event{Type: providers.EventUsage, Data: usage},
		providers.Event{Type: providers.EventCompleted, Data: result.Response},
	)

	p.mu.Lock()
	sf, failing := p.streamFailures[providerModel]
	p.mu.Unlock()
	if failing {
		if sf.after < len(events) {
			events = events[:sf.after]
		}
		return providers.NewFailingStream(events, sf.err), nil
	}

	return providers.NewSliceStream(events, result), nil
}

func (p *Provider) begin(ctx context.Context, providerModel string) error {
	p.mu.Lock()
	p.calls[providerModel]++
	var scripted error
	if f, ok := p.failures[providerModel]; ok && f.remaining != 0 {
		scripted = f.err
		if f.remaining > 0 {
			f.remaining--
		}
	}
	p.mu.Unlock()

	if p.latency > 0 {
		timer := time.NewTimer(p.latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return scripted
}

func (p *Provider) result(req *providers.Request, requestID, providerModel string) *providers.Result {
	now := p.now()
	text := truncate("Mock response to: "+req.Input.Text(), maxContentChars)

	resp := providers.NewMessageResponse(fmt.Sprintf("resp_mock_%d", now.UnixMilli()), now.Unix(), req, requestID, text)
	resp.Provider = &providers.ProviderInfo{Name: p.name, Model: providerModel, Region: region}

	usage := providers.Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30}
	resp.Usage = &usage

	return &providers.Result{Response: resp, Usage: usage}
}

// truncate cuts s to at most n characters without splitting a rune
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
