package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBackendURL  = "http://localhost:8081/api/v1"
	defaultFrontendURL = "http://localhost:8080"
)

// Config aggregates runtime configuration for the Trid web tier.
type Config struct {
	Environment    string
	HTTPPort       int
	LogLevel       string
	LogFormat      string
	AllowedOrigins []string

	DataStore   string
	DatabaseURL string
	RedisURL    string

	BackendURL     string
	BackendTimeout time.Duration
	FrontendURL    string

	SessionTTL    time.Duration
	FlowIdleTTL   time.Duration
	SweepInterval time.Duration

	OAuthEnabled  bool
	OAuthClientID string
}

// Load reads configuration from environment variables with sensible defaults for local development.
func Load() (Config, error) {
	databaseURL, err := getEnvOrFile("DATABASE_URL", "/run/secrets/trid_database_url")
	if err != nil {
		return Config{}, err
	}

	redisURL, err := getEnvOrFile("REDIS_URL", "/run/secrets/trid_redis_url")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Environment:    getEnv("APP_ENV", "development"),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:      strings.ToLower(getEnv("LOG_FORMAT", "text")),
		AllowedOrigins: parseCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:8080")),
		DataStore:      strings.ToLower(getEnv("DATA_STORE", "memory")),
		DatabaseURL:    databaseURL,
		RedisURL:       redisURL,
		BackendURL:     strings.TrimSuffix(os.Getenv("BACKEND_URL"), "/"),
		FrontendURL:    strings.TrimSuffix(getEnv("FRONTEND_URL", defaultFrontendURL), "/"),
		OAuthClientID:  getEnv("OAUTH_CLIENT_ID", "trid-web"),
	}

	portValue := getEnv("PORT", getEnv("HTTP_PORT", "8080"))
	port, err := strconv.Atoi(portValue)
	if err != nil {
		return Config{}, fmt.Errorf("invalid port %q: %w", portValue, err)
	}
	cfg.HTTPPort = port

	durations := []struct {
		key      string
		fallback string
		dst      *time.Duration
	}{
		{"BACKEND_TIMEOUT", "15s", &cfg.BackendTimeout},
		{"SESSION_TTL", "168h", &cfg.SessionTTL},
		{"FLOW_IDLE_TTL", "30m", &cfg.FlowIdleTTL},
		{"SWEEP_INTERVAL", "1m", &cfg.SweepInterval},
	}
	for _, d := range durations {
		value := getEnv(d.key, d.fallback)
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", d.key, value, err)
		}
		if parsed <= 0 {
			return Config{}, fmt.Errorf("%s must be positive, got %q", d.key, value)
		}
		*d.dst = parsed
	}

	oauthValue := getEnv("OAUTH_ENABLED", "true")
	cfg.OAuthEnabled, err = strconv.ParseBool(oauthValue)
	if err != nil {
		return Config{}, fmt.Errorf("invalid OAUTH_ENABLED %q: %w", oauthValue, err)
	}

	switch cfg.DataStore {
	case "memory":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATA_STORE is postgres but DATABASE_URL is not set")
		}
	case "redis":
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("DATA_STORE is redis but REDIS_URL is not set")
		}
	default:
		return Config{}, fmt.Errorf("unsupported DATA_STORE %q", cfg.DataStore)
	}

	if !cfg.IsDevelopment() {
		if cfg.BackendURL == "" {
			return Config{}, fmt.Errorf("BACKEND_URL is required when APP_ENV=%s", cfg.Environment)
		}
		if len(cfg.AllowedOrigins) == 0 {
			return Config{}, fmt.Errorf("ALLOWED_ORIGINS must define at least one origin when APP_ENV=%s", cfg.Environment)
		}
		for _, origin := range cfg.AllowedOrigins {
			if origin == "*" {
				return Config{}, fmt.Errorf("ALLOWED_ORIGINS cannot contain wildcard when APP_ENV=%s", cfg.Environment)
			}
		}
	}
	if cfg.BackendURL == "" {
		cfg.BackendURL = defaultBackendURL
	}

	for key, raw := range map[string]string{"BACKEND_URL": cfg.BackendURL, "FRONTEND_URL": cfg.FrontendURL} {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return Config{}, fmt.Errorf("%s must be an absolute URL, got %q", key, raw)
		}
	}

	return cfg, nil
}

// HTTPAddress returns the address the HTTP server should bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// IsDevelopment reports whether the service runs in development mode.
func (c Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvOrFile(key, defaultPath string) (string, error) {
	if value := os.Getenv(key); value != "" {
		return value, nil
	}

	fileKey := key + "_FILE"
	if path := os.Getenv(fileKey); path != "" {
		return readSecret(path, fileKey)
	}

	if defaultPath != "" {
		return readSecret(defaultPath, key)
	}

	return "", nil
}

func readSecret(path, name string) (string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("config: reading %s (%s): %w", name, path, err)
	}

	value := strings.TrimSpace(string(contents))
	if value == "" {
		return "", fmt.Errorf("config: %s (%s) is empty", name, path)
	}
	return value, nil
}
