package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/relaygram/server/internal/session"
)

type contextKey string

const phoneKey contextKey = "phone"

// SessionAuth resolves the session token and attaches the caller's phone
// number to the request context. The token travels as the sessionId query
// parameter (the original client contract) with an Authorization bearer
// header accepted as a fallback.
func SessionAuth(sessions *session.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.URL.Query().Get("sessionId")
			if token == "" {
				if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
					token = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
				}
			}
			if token == "" {
				respondWithError(w, http.StatusUnauthorized, "not authorized")
				return
			}

			phone, ok := sessions.Resolve(token)
			if !ok {
				respondWithError(w, http.StatusUnauthorized, "session not found")
				return
			}

			ctx := context.WithValue(r.Context(), phoneKey, phone)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPhone returns the authenticated phone number attached by SessionAuth.
func GetPhone(ctx context.Context) (string, bool) {
	phone, ok := ctx.Value(phoneKey).(string)
	return phone, ok
}

// respondWithError sends a JSON error response.
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
