// Package handlers defines HTTP-layer error codes used across all API
// endpoints, plus the single mapping from service-level sentinel errors to
// HTTP responses.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless noted.
//   - Generic codes (bad_request, unauthorized, conflict) mirror common HTTP
//     status semantics to aid interoperability.
//   - All error responses include both an HTTP status and one of these codes.
//   - Every handler funnels service errors through mapServiceError so the
//     taxonomy lives in exactly one place.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chatbot-api/internal/services"
)

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeValidation       = "validation_error"
	ErrCodeChatbotFailed    = "chatbot_unavailable"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)

// failServiceError translates a service-layer error into the standard
// envelope. Unknown errors become an opaque 500; their detail reaches the
// logs through fail(), never the client.
func failServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrEmptyContent):
		fail(c, http.StatusUnprocessableEntity, ErrCodeValidation, "message content must not be empty")
	case errors.Is(err, services.ErrTooLong):
		fail(c, http.StatusUnprocessableEntity, ErrCodeValidation, "message content too long")
	case errors.Is(err, services.ErrMessageNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "message not found")
	case errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
	case errors.Is(err, services.ErrUserExists):
		fail(c, http.StatusBadRequest, ErrCodeConflict, "username already registered")
	case errors.Is(err, services.ErrInvalidUsername):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid username or password")
	case errors.Is(err, services.ErrInvalidCredentials):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "incorrect username or password")
	case errors.Is(err, services.ErrChatbotService):
		fail(c, http.StatusServiceUnavailable, ErrCodeChatbotFailed, "failed to generate reply")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
	}
}
