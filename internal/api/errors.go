package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ericfisherdev/roomgate/internal/api/middleware"
	"github.com/ericfisherdev/roomgate/internal/domain"
)

// Public error codes returned in {"error": "<code>"} bodies.
const (
	PublicInvalidState    = "invalid_state"
	PublicOAuthFailed     = "oauth_failed"
	PublicUnauthorized    = "unauthorized"
	PublicUnknownProvider = "unknown_provider"
	PublicNotFound        = "not_found"
	PublicInvalidRequest  = "invalid_request"
	PublicUpstream        = "upstream_unavailable"
	PublicInternal        = "internal_error"
)

// ErrorResponder writes sanitized error responses.
// Details are logged server-side with the request id and never sent to clients.
type ErrorResponder struct {
	logger *slog.Logger
}

// NewErrorResponder creates a new error responder with structured logging
func NewErrorResponder(logger *slog.Logger) *ErrorResponder {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorResponder{logger: logger}
}

// Respond logs err and aborts the request with the public code for it.
func (r *ErrorResponder) Respond(c *gin.Context, err error) {
	status, code := PublicError(err)
	r.log(c, err, status)
	c.AbortWithStatusJSON(status, gin.H{"error": code})
}

// PublicError maps an error to its HTTP status and public code.
func PublicError(err error) (int, string) {
	var domainErr *domain.DomainError
	if !errors.As(err, &domainErr) {
		return http.StatusInternalServerError, PublicInternal
	}

	switch domainErr.Code {
	case domain.CodeInvalidState:
		return http.StatusBadRequest, PublicInvalidState
	case domain.CodeUpstreamExchange:
		return http.StatusInternalServerError, PublicOAuthFailed
	case domain.CodeUnknownProvider:
		return http.StatusNotFound, PublicUnknownProvider
	}

	switch domainErr.Type {
	case domain.ValidationError:
		return http.StatusBadRequest, PublicInvalidRequest
	case domain.NotFoundError:
		return http.StatusNotFound, PublicNotFound
	case domain.AuthenticationError:
		return http.StatusUnauthorized, PublicUnauthorized
	case domain.ExternalServiceError:
		return http.StatusBadGateway, PublicUpstream
	default:
		return http.StatusInternalServerError, PublicInternal
	}
}

func (r *ErrorResponder) log(c *gin.Context, err error, status int) {
	args := []any{
		slog.String("request_id", middleware.GetRequestID(c)),
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("remote_addr", c.ClientIP()),
		slog.Int("status", status),
	}

	if claims, ok := middleware.GetClaimsFromContext(c); ok {
		args = append(args, slog.String("user_id", claims.Subject))
	}

	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		args = append(args,
			slog.String("error_type", string(domainErr.Type)),
			slog.String("error_code", domainErr.Code),
			slog.String("error_message", domainErr.Message),
		)
		if domainErr.Cause != nil {
			args = append(args, slog.String("underlying_error", domainErr.Cause.Error()))
		}
		for key, value := range domainErr.Details {
			if !isSensitiveField(key) {
				args = append(args, slog.Any(fmt.Sprintf("detail_%s", key), value))
			}
		}
	} else {
		args = append(args, slog.String("error", err.Error()))
	}

	// Client mistakes are routine; only server-side failures are errors.
	if status >= http.StatusInternalServerError {
		r.logger.ErrorContext(c.Request.Context(), "Request failed", args...)
		return
	}
	r.logger.InfoContext(c.Request.Context(), "Request rejected", args...)
}

// isSensitiveField checks if a field contains sensitive information that shouldn't be logged
func isSensitiveField(field string) bool {
	sensitiveFields := map[string]bool{
		"token":         true,
		"secret":        true,
		"key":           true,
		"authorization": true,
		"cookie":        true,
		"session":       true,
		"access_token":  true,
		"refresh_token": true,
		"jwt":           true,
		"code":          true,
		"state":         true,
		"client_secret": true,
	}
	return sensitiveFields[field]
}
