package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/bomdiff-engine/pkg/apperrors"
	"github.com/ekaya-inc/bomdiff-engine/pkg/logging"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// statusForError maps a service error to an HTTP status. Uncoded errors are internal.
func statusForError(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, apperrors.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrFeatureDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteServiceError writes the error response for a service failure. Coded errors pass their
// code and message through; anything else is logged and reported as internal_error.
func WriteServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var appErr *apperrors.Error
	var writeErr error
	if errors.As(err, &appErr) {
		writeErr = ErrorResponse(w, statusForError(err), appErr.Code, appErr.Message)
	} else {
		logger.Error("Request failed", zap.String("error", logging.SanitizeError(err)))
		writeErr = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
	if writeErr != nil {
		logger.Error("Failed to write error response", zap.Error(writeErr))
	}
}
