// Package httpserver exposes the operational surface of the server:
// health, stats, and admin session management. The SOAP/address-book
// endpoints of the historical services are out of scope and not served
// here.
package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"retroim/internal/config"
	"retroim/internal/security"
	"retroim/internal/service"
)

// NewRouter constructs the HTTP router: public health endpoints, the admin
// API, and the WebSocket bridge mount.
func NewRouter(cfg *config.Config, backend *service.Backend, adminTokens *security.AdminTokens, wsHandler http.HandlerFunc) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "retroim presence server",
			"version": "1.0.0",
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/admin/login", handleAdminLogin(cfg, adminTokens))

		r.Group(func(r chi.Router) {
			r.Use(AdminAuth(adminTokens))
			r.Get("/stats", handleStats(backend))
			r.Get("/sessions", handleSessionList(backend))
			r.Post("/sessions/{uuid}/logout", handleForceLogoff(backend))
		})
	})

	if wsHandler != nil {
		r.Get("/ws", wsHandler)
	}

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
