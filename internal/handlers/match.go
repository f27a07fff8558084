package handlers

import (
	"net/http"

	"dance-match-backend/internal/middleware"
	"dance-match-backend/internal/models"
	"dance-match-backend/internal/services"

	"github.com/go-chi/chi/v5"
)

// MatchHandler handles match listing and answers
type MatchHandler struct {
	promoter *services.MatchPromoter
}

// NewMatchHandler creates a new match handler
func NewMatchHandler(promoter *services.MatchPromoter) *MatchHandler {
	return &MatchHandler{promoter: promoter}
}

// GetMatches handles GET /api/v1/matches
func (h *MatchHandler) GetMatches(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	matches, err := h.promoter.MatchesForUser(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err, "Failed to load matches")
		return
	}
	if matches == nil {
		matches = []*models.Match{}
	}
	respondJSON(w, http.StatusOK, matches)
}

// AcceptMatch handles POST /api/v1/matches/{match_id}/accept
func (h *MatchHandler) AcceptMatch(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, true)
}

// DeclineMatch handles POST /api/v1/matches/{match_id}/decline
func (h *MatchHandler) DeclineMatch(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, false)
}

func (h *MatchHandler) respond(w http.ResponseWriter, r *http.Request, accept bool) {
	userID := middleware.GetUserID(r.Context())
	matchID := chi.URLParam(r, "match_id")

	match, err := h.promoter.Respond(r.Context(), matchID, userID, accept)
	if err != nil {
		respondServiceError(w, err, "Failed to answer match")
		return
	}
	respondJSON(w, http.StatusOK, match)
}
