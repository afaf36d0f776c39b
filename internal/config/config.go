package config

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds the broker daemon's settings, loaded from the
// environment (and a .env file when present).
type Config struct {
	// ListenAddr is where the broker binds. Port 0 picks a free port;
	// the real address ends up in the descriptor file.
	ListenAddr string `validate:"required,hostname_port"`
	// DescriptorPath is where the (address, authkey) descriptor is
	// written for clients to discover.
	DescriptorPath string `validate:"required"`
	// AuthKey optionally fixes the shared secret (hex). Empty means
	// generate a random one at startup.
	AuthKey string `validate:"omitempty,hexadecimal"`
}

// New loads configuration from environment variables.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		ListenAddr:     getenv("MBUS_LISTEN_ADDR", "127.0.0.1:0"),
		DescriptorPath: getenv("MBUS_DESCRIPTOR", "mbus.json"),
		AuthKey:        os.Getenv("MBUS_AUTHKEY"),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
