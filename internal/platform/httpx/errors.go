// Package httpx provides HTTP response utilities.
package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/partsledger/partsledger/internal/shared"
)

// ErrMalformedBody is returned when a request body cannot be decoded.
var ErrMalformedBody = shared.Classify(shared.ErrValidation, "malformed request body")

// StatusFor maps a classified domain error to its HTTP status.
func StatusFor(err error) int {
	switch shared.ClassOf(err) {
	case shared.ErrValidation:
		return http.StatusBadRequest
	case shared.ErrBusinessRule:
		return http.StatusUnprocessableEntity
	case shared.ErrNotFound:
		return http.StatusNotFound
	case shared.ErrIntegrity, shared.ErrConflict:
		return http.StatusConflict
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	switch status {
	case http.StatusBadRequest:
		Problem(w, status, "Validation Failed", err.Error())
	case http.StatusUnprocessableEntity:
		Problem(w, status, "Business Rule Violated", err.Error())
	case http.StatusNotFound:
		Problem(w, status, "Not Found", err.Error())
	case http.StatusConflict:
		Problem(w, status, "Conflict", err.Error())
	case http.StatusGatewayTimeout:
		Problem(w, status, "Timeout", "")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
