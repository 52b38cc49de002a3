package httpserver

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"retroim/internal/config"
	"retroim/internal/security"
	"retroim/internal/service"
)

func handleAdminLogin(cfg *config.Config, tokens *security.AdminTokens) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Admin.Password == "" {
			http.Error(w, "admin access disabled", http.StatusForbidden)
			return
		}

		var body struct {
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if subtle.ConstantTimeCompare([]byte(body.Password), []byte(cfg.Admin.Password)) != 1 {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}

		token, err := tokens.Create()
		if err != nil {
			http.Error(w, "token creation failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": token,
			"token_type":   "bearer",
		})
	}
}

func handleStats(backend *service.Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, backend.Stats())
	}
}

func handleSessionList(backend *service.Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, backend.SessionList())
	}
}

func handleForceLogoff(backend *service.Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uuid := chi.URLParam(r, "uuid")
		if uuid == "" {
			http.Error(w, "uuid is required", http.StatusBadRequest)
			return
		}

		var body struct {
			Reason string `json:"reason"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Reason == "" {
			body.Reason = "administrative logoff"
		}

		closed := backend.ForceLogoff(uuid, body.Reason)
		writeJSON(w, http.StatusOK, map[string]any{
			"closed_sessions": closed,
		})
	}
}
