package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relaygram/server/internal/http/handlers"
	"github.com/relaygram/server/internal/middleware"
	"github.com/relaygram/server/internal/session"
)

// NewRouter wires all routes. The verification endpoints carry an IP rate
// limit; the directory and conversation reads sit behind session auth.
func NewRouter(
	authHandler *handlers.AuthHandler,
	userHandler *handlers.UserHandler,
	sessions *session.Manager,
	ws http.Handler,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS)

	healthHandler := handlers.NewHealthHandler()
	r.Get("/", healthHandler.HandleRoot)
	r.Get("/health", healthHandler.HandleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/ws", ws.ServeHTTP)

	checkLimiter := middleware.NewRateLimiter(10*time.Minute, 10)
	verifyLimiter := middleware.NewRateLimiter(10*time.Minute, 20)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/check-phone", middleware.Limit(checkLimiter, authHandler.HandleCheckPhone))
		r.Post("/verify-code", middleware.Limit(verifyLimiter, authHandler.HandleVerifyCode))
		r.Post("/set-username", authHandler.HandleSetUsername)
	})
	r.Get("/api/debug/session", authHandler.HandleDebugSession)

	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionAuth(sessions))
		r.Get("/api/users", userHandler.HandleListUsers)
		r.Get("/api/users/search", userHandler.HandleSearch)
		r.Get("/api/chats", userHandler.HandleListChats)
		r.Get("/api/messages", userHandler.HandleHistory)
	})

	return r
}
