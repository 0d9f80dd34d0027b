package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/sungwon/messaging/internal/auth"
	"github.com/sungwon/messaging/internal/logger"
	"github.com/sungwon/messaging/internal/messaging"
	"github.com/sungwon/messaging/internal/metrics"
	"github.com/sungwon/messaging/internal/transport"
)

// Error codes returned in the "error" field.
const (
	codeValidation          = "validation_error"
	codeContractViolation   = "contract_violation"
	codeNotFound            = "not_found"
	codeDomain              = "domain_error"
	codeConfiguration       = "configuration_error"
	codeTransportAuthFailed = "transport_auth_failed"
	codeTransport           = "transport_error"
	codeRateLimited         = "rate_limited"
	codeInternal            = "internal_error"
)

// respondJSON writes a JSON response with the given status code and data.
// If data is nil, only the status code and Content-Type header are written.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondError writes a JSON error response with the given status code and message.
func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]string{"error": code, "message": message})
}

// errorStatus maps an operation error to its HTTP status and error code.
func errorStatus(err error) (int, string) {
	var terr *transport.Error
	switch {
	case errors.Is(err, messaging.ErrValidation):
		return http.StatusBadRequest, codeValidation
	case errors.Is(err, messaging.ErrContractViolation):
		return http.StatusBadRequest, codeContractViolation
	case errors.Is(err, messaging.ErrNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, messaging.ErrDomain):
		return http.StatusUnprocessableEntity, codeDomain
	case errors.Is(err, messaging.ErrConfiguration):
		return http.StatusInternalServerError, codeConfiguration
	case errors.Is(err, auth.ErrRateLimited):
		return http.StatusTooManyRequests, codeRateLimited
	case transport.IsAuthFailure(err):
		return http.StatusBadGateway, codeTransportAuthFailed
	case errors.As(err, &terr):
		return http.StatusBadGateway, codeTransport
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

// respondServiceError logs err and writes the mapped error response.
// Internal failures are logged at error level and hidden from the caller.
func respondServiceError(w http.ResponseWriter, r *http.Request, log zerolog.Logger, err error) {
	status, code := errorStatus(err)
	l := log.With().Str("correlation_id", logger.CorrelationIDFromContext(r.Context())).Logger()

	message := err.Error()
	switch {
	case code == codeInternal:
		l.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		message = "internal server error"
	case status >= http.StatusInternalServerError:
		l.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	case code == codeRateLimited:
		metrics.APIRateLimitedTotal.Inc()
		l.Warn().Err(err).Str("tenant", auth.TenantFromContext(r.Context())).Msg("rate limited")
	default:
		l.Debug().Err(err).Str("path", r.URL.Path).Msg("request rejected")
	}

	respondError(w, status, code, message)
}
