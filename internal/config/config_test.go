package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATA_STORE", "memory")
	t.Setenv("PORT", "8080")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("BACKEND_URL", "")
	t.Setenv("BACKEND_TIMEOUT", "")
	t.Setenv("SESSION_TTL", "")
	t.Setenv("ALLOWED_ORIGINS", "")
	t.Setenv("OAUTH_ENABLED", "")
}

func TestLoadDefaultsInDevelopment(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.BackendURL != defaultBackendURL {
		t.Fatalf("expected default backend URL, got %q", cfg.BackendURL)
	}
	if cfg.BackendTimeout != 15*time.Second {
		t.Fatalf("expected 15s backend timeout, got %s", cfg.BackendTimeout)
	}
	if cfg.SessionTTL != 168*time.Hour {
		t.Fatalf("expected one week session TTL, got %s", cfg.SessionTTL)
	}
	if !cfg.OAuthEnabled {
		t.Fatal("expected OAuth to be enabled by default")
	}
	if cfg.HTTPAddress() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.HTTPAddress())
	}
	if !cfg.IsDevelopment() {
		t.Fatal("expected development mode")
	}
}

func TestLoadTrimsBackendURL(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("BACKEND_URL", "https://api.trid.test/api/v1/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.BackendURL != "https://api.trid.test/api/v1" {
		t.Fatalf("expected trailing slash to be trimmed, got %q", cfg.BackendURL)
	}
}

func TestLoadRequiresBackendOutsideDevelopment(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("ALLOWED_ORIGINS", "https://shop.trid.test")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when BACKEND_URL missing outside development")
	}
	if !strings.Contains(err.Error(), "BACKEND_URL is required") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadRejectsWildcardOriginsOutsideDevelopment(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("BACKEND_URL", "https://api.trid.test")
	t.Setenv("ALLOWED_ORIGINS", "https://shop.trid.test,*")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when ALLOWED_ORIGINS contains wildcard")
	}
	if !strings.Contains(err.Error(), "cannot contain wildcard") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadRequiresAllowedOriginsOutsideDevelopment(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("BACKEND_URL", "https://api.trid.test")
	t.Setenv("ALLOWED_ORIGINS", "   ")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when ALLOWED_ORIGINS is empty")
	}
	if !strings.Contains(err.Error(), "must define at least one origin") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadRequiresStoreURLs(t *testing.T) {
	cases := map[string]string{
		"postgres": "DATABASE_URL is not set",
		"redis":    "REDIS_URL is not set",
		"mongo":    "unsupported DATA_STORE",
	}
	for store, want := range cases {
		t.Run(store, func(t *testing.T) {
			setBaseEnv(t)
			t.Setenv("DATA_STORE", store)
			t.Setenv("DATABASE_URL_FILE", filepath.Join(t.TempDir(), "missing"))
			t.Setenv("REDIS_URL_FILE", filepath.Join(t.TempDir(), "missing"))

			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), want) {
				t.Fatalf("expected error containing %q, got %v", want, err)
			}
		})
	}
}

func TestLoadReadsRedisURLFromFile(t *testing.T) {
	setBaseEnv(t)
	path := filepath.Join(t.TempDir(), "redis_url")
	if err := os.WriteFile(path, []byte("redis://cache:6379/0\n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	t.Setenv("DATA_STORE", "redis")
	t.Setenv("REDIS_URL_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.RedisURL != "redis://cache:6379/0" {
		t.Fatalf("expected redis URL from file, got %q", cfg.RedisURL)
	}
}

func TestLoadRejectsEmptySecretFile(t *testing.T) {
	setBaseEnv(t)
	path := filepath.Join(t.TempDir(), "database_url")
	if err := os.WriteFile(path, []byte("  \n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	t.Setenv("DATABASE_URL_FILE", path)

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "is empty") {
		t.Fatalf("expected empty secret error, got %v", err)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		key, value, want string
	}{
		{"PORT", "http", "invalid port"},
		{"BACKEND_TIMEOUT", "soon", "invalid BACKEND_TIMEOUT"},
		{"SESSION_TTL", "-1h", "SESSION_TTL must be positive"},
		{"OAUTH_ENABLED", "maybe", "invalid OAUTH_ENABLED"},
		{"FRONTEND_URL", "shop.trid.test", "FRONTEND_URL must be an absolute URL"},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			setBaseEnv(t)
			t.Setenv(tc.key, tc.value)

			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadDisablesOAuth(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("OAUTH_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.OAuthEnabled {
		t.Fatal("expected OAuth to be disabled")
	}
}
