package handlers

import (
	"net/http"

	"dance-match-backend/internal/middleware"
	"dance-match-backend/internal/services"

	"github.com/go-chi/chi/v5"
)

// InterestResponse is the interest state of the caller for one event
type InterestResponse struct {
	EventID    string `json:"event_id"`
	Interested bool   `json:"interested"`
}

// InterestHandler handles interest marks of the authenticated user
type InterestHandler struct {
	interestService *services.InterestService
}

// NewInterestHandler creates a new interest handler
func NewInterestHandler(interestService *services.InterestService) *InterestHandler {
	return &InterestHandler{interestService: interestService}
}

// GetInterest handles GET /api/v1/events/{event_id}/interest
func (h *InterestHandler) GetInterest(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	eventID := chi.URLParam(r, "event_id")

	interested, err := h.interestService.IsInterested(r.Context(), userID, eventID)
	if err != nil {
		respondServiceError(w, err, "Failed to load interest")
		return
	}
	respondJSON(w, http.StatusOK, InterestResponse{EventID: eventID, Interested: interested})
}

// MarkInterest handles PUT /api/v1/events/{event_id}/interest
func (h *InterestHandler) MarkInterest(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	eventID := chi.URLParam(r, "event_id")

	if err := h.interestService.Mark(r.Context(), userID, eventID); err != nil {
		respondServiceError(w, err, "Failed to mark interest")
		return
	}
	respondJSON(w, http.StatusOK, InterestResponse{EventID: eventID, Interested: true})
}

// UnmarkInterest handles DELETE /api/v1/events/{event_id}/interest
func (h *InterestHandler) UnmarkInterest(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	eventID := chi.URLParam(r, "event_id")

	if err := h.interestService.Unmark(r.Context(), userID, eventID); err != nil {
		respondServiceError(w, err, "Failed to unmark interest")
		return
	}
	respondJSON(w, http.StatusOK, InterestResponse{EventID: eventID, Interested: false})
}
