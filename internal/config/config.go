package config

import "os"

// Config holds the application configuration.
type Config struct {
	// Port the HTTP/WebSocket server listens on.
	Port string
	// DataDir is where the file store keeps its JSON snapshots.
	DataDir string
	// DatabaseURL, when set, selects the Postgres store instead.
	DatabaseURL string
}

// Load reads configuration from environment variables. Everything has a
// default; the relay is meant to come up with zero configuration in
// development.
func Load() *Config {
	cfg := &Config{
		Port:    "3000",
		DataDir: "data",
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}
	if dir := os.Getenv("DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	return cfg
}
