package http

import (
	"net/http"

	"live-trivia-service/internal/domain"
)

// statusFor maps the engine's error taxonomy onto HTTP statuses: NotFound
// 404, Conflict 409, Unauthorized 401, Validation 400. Anything else is a
// retryable server failure.
func statusFor(err error) int {
	switch {
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case domain.IsConflict(err):
		return http.StatusConflict
	case domain.IsUnauthorized(err):
		return http.StatusUnauthorized
	case domain.IsValidation(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
