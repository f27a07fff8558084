package cmd

import (
	"net/http"

	"dance-match-backend/internal/handlers"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

type routerDeps struct {
	users     *handlers.UserHandler
	interests *handlers.InterestHandler
	matches   *handlers.MatchHandler
	chats     *handlers.ChatHandler
	health    *handlers.HealthHandler
	ws        *handlers.WebSocketHandler
	auth      func(http.Handler) http.Handler
}

func newRouter(d routerDeps) chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/healthz", d.health.Health)

	// Routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/users", d.users.CreateUser)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(d.auth)
			r.Get("/events/{event_id}/interest", d.interests.GetInterest)
			r.Put("/events/{event_id}/interest", d.interests.MarkInterest)
			r.Delete("/events/{event_id}/interest", d.interests.UnmarkInterest)
			r.Get("/matches", d.matches.GetMatches)
			r.Post("/matches/{match_id}/accept", d.matches.AcceptMatch)
			r.Post("/matches/{match_id}/decline", d.matches.DeclineMatch)
			r.Get("/chats", d.chats.GetChats)
			r.Post("/chats", d.chats.CreateChat)
		})
	})

	// WebSocket route
	r.Get("/ws", d.ws.HandleWebSocket)

	return r
}

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
