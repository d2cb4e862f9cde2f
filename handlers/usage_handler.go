package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/llm-gateway/models"
	"github.com/upb/llm-gateway/services"
	"github.com/upb/llm-gateway/utils"
)

// UsageAggregator summarizes a tenant's usage
type UsageAggregator interface {
	Aggregate(ctx context.Context, tenantID, projectID string, from, to time.Time) (*models.UsageSummary, error)
}

// UsageHandler serves usage summaries for the calling key
type UsageHandler struct {
	usage  UsageAggregator
	logger *zap.Logger
}

// NewUsageHandler creates a new UsageHandler
func NewUsageHandler(usage UsageAggregator, logger *zap.Logger) *UsageHandler {
	return &UsageHandler{usage: usage, logger: logger}
}

// HandleGetUsage handles GET /v1/usage?from=&to=
func (h *UsageHandler) HandleGetUsage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseTime(q.Get("from"))
	if err != nil {
		HandleValidationError(w, r, services.WrapValidation("invalid from", err), h.logger)
		return
	}
	to, err := parseTime(q.Get("to"))
	if err != nil {
		HandleValidationError(w, r, services.WrapValidation("invalid to", err), h.logger)
		return
	}

	auth := authFrom(r)
	summary, err := h.usage.Aggregate(r.Context(), auth.TenantID, auth.ProjectID, from, to)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	if err := utils.WriteOK(w, summary); err != nil {
		h.logger.Error("failed to write usage response", zap.Error(err))
	}
}

// parseTime accepts RFC 3339 timestamps or plain dates; empty means unbounded
func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not an RFC 3339 timestamp or YYYY-MM-DD date", value)
}
