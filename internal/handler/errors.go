package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/herald/api/internal/content"
	"github.com/herald/api/internal/subscription"
)

// Common error codes
const (
	ErrCodeInvalidJSON        = "INVALID_JSON"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeValidationError    = "VALIDATION_ERROR"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeInvalidEmail       = "INVALID_EMAIL"
	ErrCodeNotSubscribable    = "NOT_SUBSCRIBABLE"
	ErrCodeConfirmationFailed = "CONFIRMATION_FAILED"
)

func writeError(w http.ResponseWriter, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

// writeServiceError maps domain errors to responses. Anything unknown is
// logged and reported as an internal error.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, content.ErrNodeNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Content not found")
	case errors.Is(err, subscription.ErrNotSubscribable):
		writeError(w, http.StatusBadRequest, ErrCodeNotSubscribable, "Subscriptions are not available for this content")
	case errors.Is(err, subscription.ErrInvalidEmail):
		writeError(w, http.StatusBadRequest, ErrCodeInvalidEmail, "Invalid email address")
	case errors.Is(err, subscription.ErrSubscriptionFailed):
		writeError(w, http.StatusBadRequest, ErrCodeConfirmationFailed, "Subscription failed: the link is invalid or has expired")
	case errors.Is(err, subscription.ErrCancellationFailed):
		writeError(w, http.StatusBadRequest, ErrCodeConfirmationFailed, "Cancellation failed: the link is invalid or has expired")
	case errors.Is(err, subscription.ErrInvalidSubscribability),
		errors.Is(err, subscription.ErrInvalidSettings),
		errors.Is(err, content.ErrInvalidName),
		errors.Is(err, content.ErrInvalidKind),
		errors.Is(err, content.ErrParentRequired),
		errors.Is(err, content.ErrHauntedRequired):
		writeError(w, http.StatusBadRequest, ErrCodeValidationError, err.Error())
	case errors.Is(err, content.ErrRootExists),
		errors.Is(err, content.ErrPathTaken),
		errors.Is(err, content.ErrIDTaken):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		slog.Error("request failed", "component", "handler", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "An error occurred")
	}
}
