package inference

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/upb/llm-gateway/models"
	"github.com/upb/llm-gateway/services"
	"github.com/upb/llm-gateway/services/billing"
	"github.com/upb/llm-gateway/services/providers"
	"github.com/upb/llm-gateway/services/usage"
)

// Dispatcher walks routed candidates until one of them serves the request
type Dispatcher struct {
	config    Config
	router    Router
	providers ProviderLookup
	health    HealthRecorder
	usage     UsageSink
	logger    *zap.Logger
	now       func() time.Time
}

// NewDispatcher creates a dispatcher with all dependencies
func NewDispatcher(
	config Config,
	router Router,
	registry ProviderLookup,
	health HealthRecorder,
	sink UsageSink,
	logger *zap.Logger,
) *Dispatcher {
	if config.RateLimitBackoff < 0 {
		config.RateLimitBackoff = 0
	}
	return &Dispatcher{
		config:    config,
		router:    router,
		providers: registry,
		health:    health,
		usage:     sink,
		logger:    logger,
		now:       time.Now,
	}
}

// Generate serves a non-streaming request. Candidates are tried one at a
// time; the first success is billed, recorded and returned.
func (d *Dispatcher) Generate(ctx context.Context, req *providers.Request, requestID string, auth models.AuthContext) (*providers.Response, error) {
	candidates, err := d.route(ctx, req, requestID, auth)
	if err != nil {
		return nil, err
	}

	var last failure
	for _, a := range candidates {
		a.start = d.now()
		res, err := d.generateOnce(ctx, a, req, requestID)
		if err == nil {
			return d.complete(ctx, a, res, req, requestID, auth), nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		last = failure{err: err, provider: a.info()}
		d.recordFailure(ctx, a, requestID, err)

		switch classify(err) {
		case outcomeAbort:
			return nil, providerUnavailable(last, "provider rejected the request")
		case outcomeBackoff:
			if err := d.backoff(ctx); err != nil {
				return nil, err
			}
		}
	}

	return nil, providerUnavailable(last, "all providers failed")
}

// Stream serves a streaming request. Candidates are tried until one
// produces its first event; from then on events are forwarded over the
// returned channel and a failure ends the stream with response.failed.
// The channel is unbuffered and closed when the stream ends. Callers that
// stop reading must cancel ctx.
func (d *Dispatcher) Stream(ctx context.Context, req *providers.Request, requestID string, auth models.AuthContext) (<-chan providers.Event, error) {
	candidates, err := d.route(ctx, req, requestID, auth)
	if err != nil {
		return nil, err
	}

	var last failure
	for _, a := range candidates {
		a.start = d.now()
		stream, first, cancel, err := d.openStream(ctx, a, req, requestID)
		if err == nil {
			events := make(chan providers.Event)
			go d.pump(ctx, cancel, events, stream, first, a, req, requestID, auth)
			return events, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		last = failure{err: err, provider: a.info()}
		d.recordFailure(ctx, a, requestID, err)

		switch classify(err) {
		case outcomeAbort:
			return nil, providerUnavailable(last, "provider rejected the request")
		case outcomeBackoff:
			if err := d.backoff(ctx); err != nil {
				return nil, err
			}
		}
	}

	return nil, providerUnavailable(last, "all providers failed")
}

// route resolves the ordered attempts for a request
func (d *Dispatcher) route(ctx context.Context, req *providers.Request, requestID string, auth models.AuthContext) ([]attempt, error) {
	decision, err := d.router.Route(ctx, req, routeContext(req, auth))
	if err != nil {
		d.logger.Info("routing failed",
			zap.String("request_id", requestID),
			zap.String("model", req.Model),
			zap.Error(err),
		)
		if services.IsModelDisabledError(err) || services.IsNoCandidatesError(err) {
			return nil, services.NewDomainError(services.ErrorTypeProviderUnavailable, err.Error(), err).
				WithDetail("model", req.Model)
		}
		return nil, err
	}

	var attempts []attempt
	var missing []string
	for _, c := range decision.Candidates() {
		p, err := d.providers.GetProvider(c.Variant.Provider)
		if err != nil {
			missing = append(missing, c.Variant.Provider)
			continue
		}
		attempts = append(attempts, attempt{candidate: c, provider: p})
	}
	if len(missing) > 0 {
		d.logger.Warn("routed to unregistered providers",
			zap.String("request_id", requestID),
			zap.Strings("providers", missing),
		)
	}
	if len(attempts) == 0 {
		return nil, services.NewDomainError(services.ErrorTypeProviderUnavailable, "no registered provider for model "+req.Model, providers.ErrProviderNotFound).
			WithDetail("model", req.Model)
	}

	d.logger.Debug("dispatching",
		zap.String("request_id", requestID),
		zap.String("model", req.Model),
		zap.String("primary", attempts[0].candidate.Variant.ID),
		zap.Int("candidates", len(attempts)),
	)
	return attempts, nil
}

func (d *Dispatcher) generateOnce(ctx context.Context, a attempt, req *providers.Request, requestID string) (*providers.Result, error) {
	attemptCtx := ctx
	if d.config.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, d.config.AttemptTimeout)
		defer cancel()
	}

	res, err := a.provider.Generate(attemptCtx, req, requestID, a.candidate.Variant.ProviderModel)
	if err != nil {
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, d.timeoutError(a, err)
		}
		return nil, err
	}
	if res == nil || res.Response == nil {
		return nil, providers.NewProviderError(a.provider.Name(), providers.CodeUpstreamError, "provider returned no response", 0, true, nil)
	}
	return res, nil
}

// openStream starts a provider stream and waits for its first event.
// The attempt timeout only covers the wait for that first event.
func (d *Dispatcher) openStream(ctx context.Context, a attempt, req *providers.Request, requestID string) (providers.EventStream, providers.Event, context.CancelFunc, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	var timedOut atomic.Bool
	var timer *time.Timer
	if d.config.AttemptTimeout > 0 {
		timer = time.AfterFunc(d.config.AttemptTimeout, func() {
			timedOut.Store(true)
			cancel()
		})
	}
	fail := func(err error) (providers.EventStream, providers.Event, context.CancelFunc, error) {
		if timer != nil {
			timer.Stop()
		}
		cancel()
		if timedOut.Load() && ctx.Err() == nil {
			err = d.timeoutError(a, err)
		}
		return nil, providers.Event{}, nil, err
	}

	stream, err := a.provider.Stream(streamCtx, req, requestID, a.candidate.Variant.ProviderModel)
	if err != nil {
		return fail(err)
	}
	if !stream.Next() {
		err := stream.Err()
		_ = stream.Close()
		if err == nil {
			err = providers.NewProviderError(a.provider.Name(), providers.CodeStreamIncomplete, errStreamIncomplete.Error(), 0, true, errStreamIncomplete)
		}
		return fail(err)
	}
	if timer != nil && !timer.Stop() {
		_ = stream.Close()
		return fail(context.DeadlineExceeded)
	}
	return stream, stream.Current(), cancel, nil
}

// pump forwards events of a started stream. It owns the stream and
// closes both the stream and the channel when done.
func (d *Dispatcher) pump(
	ctx context.Context,
	cancel context.CancelFunc,
	events chan<- providers.Event,
	stream providers.EventStream,
	first providers.Event,
	a attempt,
	req *providers.Request,
	requestID string,
	auth models.AuthContext,
) {
	defer close(events)
	defer cancel()
	defer stream.Close()

	send := func(ev providers.Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			d.logger.Info("stream consumer gone",
				zap.String("request_id", requestID),
				zap.String("provider", a.provider.Name()),
			)
			return false
		}
	}

	var seen *providers.Usage
	ev := first
	for {
		switch ev.Type {
		case providers.EventUsage:
			if u, ok := usageOf(ev.Data); ok {
				bill := billing.Calculate(a.candidate.Variant.Price, u.InputTokens, u.OutputTokens, u.CachedInputTokens)
				u.CostUSD = bill.CostUSD
				seen = &u
				ev.Data = u
			}
		case providers.EventCompleted:
			resp, _ := ev.Data.(*providers.Response)
			if resp == nil {
				break
			}
			res := &providers.Result{Response: resp}
			switch {
			case seen != nil:
				res.Usage = *seen
			case resp.Usage != nil:
				res.Usage = *resp.Usage
			}
			ev.Data = d.complete(ctx, a, res, req, requestID, auth)
			send(ev)
			return
		}

		if !send(ev) {
			return
		}
		if !stream.Next() {
			break
		}
		ev = stream.Current()
	}

	err := stream.Err()
	if err == nil {
		if res := stream.Result(); res != nil && res.Response != nil {
			send(providers.Event{Type: providers.EventCompleted, Data: d.complete(ctx, a, res, req, requestID, auth)})
			return
		}
		err = providers.NewProviderError(a.provider.Name(), providers.CodeStreamIncomplete, errStreamIncomplete.Error(), 0, false, errStreamIncomplete)
	}
	if ctx.Err() != nil {
		return
	}

	d.recordFailure(ctx, a, requestID, err)
	send(providers.Event{Type: providers.EventFailed, Data: failedData(err, a, requestID)})
}

// complete bills a successful attempt, records it and returns the response
func (d *Dispatcher) complete(ctx context.Context, a attempt, res *providers.Result, req *providers.Request, requestID string, auth models.AuthContext) *providers.Response {
	latency := d.now().Sub(a.start).Milliseconds()
	variant := a.candidate.Variant

	if err := d.health.RecordSuccess(ctx, variant.ID, latency); err != nil {
		d.logger.Warn("failed to record success", zap.String("variant_id", variant.ID), zap.Error(err))
	}

	u := res.Usage
	bill := billing.Calculate(variant.Price, u.InputTokens, u.OutputTokens, u.CachedInputTokens)
	u.CostUSD = bill.CostUSD

	info := a.info()
	resp := res.Response
	resp.Usage = &u
	resp.Provider = &info
	resp.RequestID = requestID
	resp.Model = req.Model

	rec := usage.UsageRecord{
		RequestID:      requestID,
		APIKeyID:       auth.APIKeyID,
		TenantID:       auth.TenantID,
		ProjectID:      auth.ProjectID,
		Provider:       variant.Provider,
		Model:          req.Model,
		ModelVariantID: variant.ID,
		InputTokens:    u.InputTokens,
		OutputTokens:   u.OutputTokens,
		TotalTokens:    u.TotalTokens,
		CostUSD:        u.CostUSD,
		PriceVersion:   variant.Price.Version,
		UnitPrices:     variant.Price.UnitPrices,
		Breakdown:      bill.Breakdown,
	}
	if d.usage != nil {
		if err := d.usage.RecordUsage(ctx, rec); err != nil {
			d.logger.Error("failed to record usage",
				zap.String("request_id", requestID),
				zap.String("variant_id", variant.ID),
				zap.Error(err),
			)
		}
	}

	d.logger.Info("request served",
		zap.String("request_id", requestID),
		zap.String("provider", variant.Provider),
		zap.String("variant_id", variant.ID),
		zap.Int64("latency_ms", latency),
		zap.Int("total_tokens", u.TotalTokens),
		zap.Float64("cost_usd", u.CostUSD),
	)
	return resp
}

func (d *Dispatcher) recordFailure(ctx context.Context, a attempt, requestID string, cause error) {
	latency := d.now().Sub(a.start).Milliseconds()
	d.logger.Warn("provider attempt failed",
		zap.String("request_id", requestID),
		zap.String("provider", a.candidate.Variant.Provider),
		zap.String("variant_id", a.candidate.Variant.ID),
		zap.Int("status_code", providers.StatusCodeOf(cause)),
		zap.Int64("latency_ms", latency),
		zap.Error(cause),
	)
	if err := d.health.RecordFailure(ctx, a.candidate.Variant.ID, latency); err != nil {
		d.logger.Warn("failed to record failure", zap.String("variant_id", a.candidate.Variant.ID), zap.Error(err))
	}
}

func (d *Dispatcher) backoff(ctx context.Context) error {
	if d.config.RateLimitBackoff == 0 {
		return nil
	}
	timer := time.NewTimer(d.config.RateLimitBackoff)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) timeoutError(a attempt, cause error) error {
	return providers.NewProviderError(
		a.provider.Name(),
		providers.CodeTimeout,
		fmt.Sprintf("no response within %s", d.config.AttemptTimeout),
		http.StatusGatewayTimeout,
		true,
		cause,
	)
}

// providerUnavailable builds the terminal error of a failed dispatch
func providerUnavailable(last failure, message string) error {
	if last.err == nil {
		return services.NewDomainError(services.ErrorTypeProviderUnavailable, message, nil)
	}
	return services.NewDomainError(services.ErrorTypeProviderUnavailable, last.err.Error(), last.err).
		WithDetail("provider", map[string]interface{}{
			"name":        last.provider.Name,
			"status_code": providers.StatusCodeOf(last.err),
			"raw_message": last.err.Error(),
		})
}

func failedData(err error, a attempt, requestID string) providers.FailedData {
	code := "PROVIDER_UNAVAILABLE"
	var provErr *providers.ProviderError
	if errors.As(err, &provErr) && provErr.Code != "" {
		code = provErr.Code
	}
	return providers.FailedData{
		Code:       code,
		Message:    err.Error(),
		RequestID:  requestID,
		Provider:   a.candidate.Variant.Provider,
		StatusCode: providers.StatusCodeOf(err),
	}
}

func usageOf(data interface{}) (providers.Usage, bool) {
	switch u := data.(type) {
	case providers.Usage:
		return u, true
	case *providers.Usage:
		if u != nil {
			return *u, true
		}
	}
	return providers.Usage{}, false
}
