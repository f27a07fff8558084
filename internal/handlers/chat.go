package handlers

import (
	"encoding/json"
	"net/http"

	"dance-match-backend/internal/middleware"
	"dance-match-backend/internal/models"
	"dance-match-backend/internal/services"
)

// CreateChatRequest asks for the chat of one of the caller's matches
type CreateChatRequest struct {
	MatchID string `json:"match_id"`
}

// ChatHandler handles chat listing and on-demand provisioning
type ChatHandler struct {
	chats    *services.ChatProvisioner
	promoter *services.MatchPromoter
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chats *services.ChatProvisioner, promoter *services.MatchPromoter) *ChatHandler {
	return &ChatHandler{chats: chats, promoter: promoter}
}

// GetChats handles GET /api/v1/chats
func (h *ChatHandler) GetChats(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	chats, err := h.chats.ChatsForUser(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err, "Failed to load chats")
		return
	}
	if chats == nil {
		chats = []*models.Chat{}
	}
	respondJSON(w, http.StatusOK, chats)
}

// CreateChat handles POST /api/v1/chats
func (h *ChatHandler) CreateChat(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req CreateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.MatchID == "" {
		respondError(w, "match_id is required", http.StatusBadRequest)
		return
	}

	chat, err := h.promoter.OpenChat(r.Context(), req.MatchID, userID)
	if err != nil {
		respondServiceError(w, err, "Failed to open chat")
		return
	}
	respondJSON(w, http.StatusOK, chat)
}
