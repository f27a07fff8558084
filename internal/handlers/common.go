package handlers

import (
	"encoding/json"
	"net/http"

	apperrors "dance-match-backend/pkg/errors"

	"github.com/rs/zerolog/log"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

// respondJSON sends v as a JSON body
func respondJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// respondServiceError maps a service error onto its HTTP status. Details of
// server side failures stay in the log.
func respondServiceError(w http.ResponseWriter, err error, message string) {
	status := apperrors.HTTPStatusFromError(err)
	switch {
	case status == http.StatusServiceUnavailable:
		log.Warn().Err(err).Msg(message)
		respondError(w, message+", try again", status)
	case status >= http.StatusInternalServerError:
		log.Error().Err(err).Msg(message)
		respondError(w, message, status)
	default:
		respondError(w, err.Error(), status)
	}
}
