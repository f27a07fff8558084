package handlers

import (
	"context"
	"net/http"
	"time"

	"dance-match-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// HealthResponse reports the state of the instance
type HealthResponse struct {
	Status   string `json:"status"`
	Degraded bool   `json:"degraded"`
}

// HealthHandler serves the liveness probe
type HealthHandler struct {
	ping func(ctx context.Context) error
	hub  *services.Hub
}

// NewHealthHandler creates a health handler. ping may be nil when the
// storage has nothing to check.
func NewHealthHandler(ping func(ctx context.Context) error, hub *services.Hub) *HealthHandler {
	return &HealthHandler{ping: ping, hub: hub}
}

// Health handles GET /healthz
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Degraded: h.hub.Degraded()}
	if h.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			log.Warn().Err(err).Msg("Health check failed")
			resp.Status = "unavailable"
			respondJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	respondJSON(w, http.StatusOK, resp)
}
