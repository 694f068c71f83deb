package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Credential store backends selectable through AUTHKIT_STORE_BACKEND.
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config captures the runtime configuration for the authkit CLI.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	TotalTimeout   time.Duration

	StoreBackend    string
	StorePath       string
	StorePassphrase string
	StoreDSN        string
	StoreProfile    string

	EmailCheckURL    string
	EmailCheckAPIKey string
	EmailCheckRPS    float64

	LogLevel string
	MockPort int
}

// Load reads configuration from the environment, consulting a .env file
// first when one is present, and applying sensible defaults for local
// development against the stub server.
func Load() (Config, error) {
	// Missing .env files are fine; explicit env vars win either way.
	_ = godotenv.Load()

	cfg := Config{
		BaseURL:        getString("AUTHKIT_BASE_URL", "http://localhost:8080"),
		RequestTimeout: getDuration("AUTHKIT_REQUEST_TIMEOUT", 120*time.Second),
		TotalTimeout:   getDuration("AUTHKIT_TOTAL_TIMEOUT", 600*time.Second),

		StoreBackend:    getString("AUTHKIT_STORE_BACKEND", StoreFile),
		StorePath:       getString("AUTHKIT_STORE_PATH", defaultStorePath()),
		StorePassphrase: getString("AUTHKIT_STORE_PASSPHRASE", ""),
		StoreDSN:        getString("AUTHKIT_STORE_DSN", ""),
		StoreProfile:    getString("AUTHKIT_STORE_PROFILE", "default"),

		EmailCheckURL:    getString("AUTHKIT_EMAILCHECK_URL", ""),
		EmailCheckAPIKey: getString("AUTHKIT_EMAILCHECK_API_KEY", ""),
		EmailCheckRPS:    getFloat("AUTHKIT_EMAILCHECK_RPS", 1),

		LogLevel: getString("AUTHKIT_LOG_LEVEL", "info"),
		MockPort: getInt("AUTHKIT_MOCK_PORT", 8080),
	}

	return cfg, nil
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "authkit-credentials"
	}
	return filepath.Join(home, ".authkit", "credentials")
}

func getString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return i
}

func getFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
