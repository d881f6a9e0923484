package handlers

import (
	"net/http"
	"time"
)

// HealthHandler serves liveness and the service banner.
type HealthHandler struct{}

// NewHealthHandler creates a new health handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// HandleHealth handles GET /health.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleRoot handles GET /: a short endpoint listing for humans poking at
// the API.
func (h *HealthHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Relaygram API",
		"endpoints": []string{
			"POST /api/auth/check-phone",
			"POST /api/auth/verify-code",
			"POST /api/auth/set-username",
			"GET /api/users",
			"GET /api/users/search",
			"GET /api/chats",
			"GET /api/messages",
			"GET /api/debug/session",
			"GET /health",
			"GET /metrics",
			"GET /ws",
		},
	})
}
