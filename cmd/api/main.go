package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/relaygram/server/internal/chatlog"
	"github.com/relaygram/server/internal/config"
	"github.com/relaygram/server/internal/directory"
	httphandler "github.com/relaygram/server/internal/http"
	"github.com/relaygram/server/internal/http/handlers"
	"github.com/relaygram/server/internal/metrics"
	"github.com/relaygram/server/internal/relay"
	"github.com/relaygram/server/internal/session"
	"github.com/relaygram/server/internal/storage"
	"github.com/relaygram/server/internal/verify"
)

func main() {
	_ = godotenv.Load(".env")

	cfg := config.Load()
	ctx := context.Background()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	dir, err := directory.Load(ctx, store)
	if err != nil {
		log.Fatalf("Failed to load directory: %v", err)
	}
	chat, err := chatlog.Load(ctx, store)
	if err != nil {
		log.Fatalf("Failed to load message log: %v", err)
	}

	m := metrics.New()
	issuer := verify.NewIssuer()
	sessions := session.NewManager()
	registry := relay.NewRegistry()
	rly := relay.New(registry, sessions, dir, chat, m)

	authHandler := handlers.NewAuthHandler(dir, issuer, sessions, m)
	userHandler := handlers.NewUserHandler(dir, chat)
	router := httphandler.NewRouter(authHandler, userHandler, sessions, rly)

	// No Read/WriteTimeout: the same listener carries long-lived WebSocket
	// connections, which keep themselves alive with pings.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s (%d users, %d messages)", cfg.Port, len(dir.All()), chat.Len())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// openStore picks the storage backend: Postgres when DATABASE_URL is set,
// JSON files under DATA_DIR otherwise.
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	if cfg.DatabaseURL != "" {
		log.Printf("Using Postgres store")
		return storage.OpenPostgres(ctx, cfg.DatabaseURL)
	}
	log.Printf("Using file store in %s", cfg.DataDir)
	return storage.NewFileStore(cfg.DataDir)
}
