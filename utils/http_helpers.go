package utils

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"prestige_server/logging"
	"prestige_server/models"
)

// WriteJSONResponse writes data as JSON with the given status code.
func WriteJSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Error().Err(err).Msg("❌ Failed to encode response")
	}
}

// StatusFor maps domain errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, models.ErrDidNotConverge):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrSnapshotRead), errors.Is(err, models.ErrPublishFailed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes {"error": ...} with the status mapped from err. Internal
// errors are logged and replaced by a generic message.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logging.Error().Err(err).Msg("❌ Request failed")
		message = "internal server error"
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "30")
	}
	WriteJSONResponse(w, status, map[string]string{"error": message})
}
