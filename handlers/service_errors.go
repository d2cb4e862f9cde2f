package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/llm-gateway/middleware"
	"github.com/upb/llm-gateway/services"
	"github.com/upb/llm-gateway/utils"
)

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	if err == nil {
		return
	}
	requestID := middleware.GetRequestIDFromContext(r.Context())

	if errors.Is(err, context.Canceled) {
		logger.Info("client went away", zap.String("request_id", requestID))
		return
	}

	status, apiErr := errorBody(err)
	apiErr.RequestID = requestID

	if status >= http.StatusInternalServerError && status != http.StatusBadGateway && status != http.StatusGatewayTimeout {
		logger.Error("internal server error",
			zap.String("request_id", requestID),
			zap.String("error_type", string(services.GetErrorType(err))),
			zap.Error(err))
	} else {
		logger.Debug("handled service error",
			zap.String("request_id", requestID),
			zap.String("code", apiErr.Code),
			zap.Error(err))
	}

	if err := utils.WriteError(w, status, apiErr); err != nil {
		logger.Error("failed to write error response", zap.String("request_id", requestID), zap.Error(err))
	}
}

// errorBody picks the status and body for err
func errorBody(err error) (int, utils.APIError) {
	details, provider := splitDetails(services.GetErrorDetails(err))
	message := err.Error()
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) {
		message = domainErr.Message
	}

	switch services.GetErrorType(err) {
	case services.ErrorTypeNotFound:
		return http.StatusNotFound, utils.APIError{Code: utils.CodeNotFound, Message: message, Details: details}
	case services.ErrorTypeValidation:
		return http.StatusBadRequest, utils.APIError{Code: utils.CodeBadRequest, Message: message, Details: details}
	case services.ErrorTypeCapabilityUnsupported:
		return http.StatusBadRequest, utils.APIError{Code: utils.CodeCapabilityUnsupported, Message: message, Details: details}
	case services.ErrorTypeUnauthorized:
		return http.StatusUnauthorized, utils.APIError{Code: utils.CodeAuthInvalid, Message: message}
	case services.ErrorTypeRateLimit:
		return http.StatusTooManyRequests, utils.APIError{Code: utils.CodeRateLimited, Message: message, Details: details}
	case services.ErrorTypeProviderTimeout:
		return http.StatusGatewayTimeout, utils.APIError{Code: utils.CodeProviderTimeout, Message: message, Details: details, Provider: provider}
	case services.ErrorTypeProviderUnavailable, services.ErrorTypeModelDisabled, services.ErrorTypeNoCandidates:
		return http.StatusBadGateway, utils.APIError{Code: utils.CodeProviderUnavailable, Message: message, Details: details, Provider: provider}
	default:
		return http.StatusInternalServerError, utils.APIError{Code: utils.CodeInternal, Message: "An internal error occurred"}
	}
}

// splitDetails moves the "provider" detail into its own block
func splitDetails(details map[string]interface{}) (map[string]interface{}, *utils.ProviderErrorInfo) {
	if len(details) == 0 {
		return nil, nil
	}
	out := make(map[string]interface{}, len(details))
	var provider *utils.ProviderErrorInfo
	for k, v := range details {
		if k != "provider" {
			out[k] = v
			continue
		}
		if m, ok := v.(map[string]interface{}); ok {
			provider = &utils.ProviderErrorInfo{}
			provider.Name, _ = m["name"].(string)
			provider.StatusCode, _ = m["status_code"].(int)
			provider.RawMessage, _ = m["raw_message"].(string)
		}
	}
	if len(out) == 0 {
		out = nil
	}
	return out, provider
}

// HandleValidationError writes a 400 for request parsing and validation failures
func HandleValidationError(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	requestID := middleware.GetRequestIDFromContext(r.Context())

	message := err.Error()
	var details map[string]interface{}
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) {
		message = domainErr.Message
		if domainErr.Err != nil {
			message += ": " + domainErr.Err.Error()
		}
		if len(domainErr.Details) > 0 {
			details = domainErr.Details
		}
	}
	if fields := utils.GetValidationFields(err); len(fields) > 0 {
		details = map[string]interface{}{"fields": fields}
	}
	if err := utils.WriteBadRequest(w, requestID, message, details); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
