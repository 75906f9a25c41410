package unit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Tyrowin/parley/internal/server"
)

// pointAtMissingConfig pins the config search at a path that does not exist
// so tests start from pure defaults regardless of the working directory.
func pointAtMissingConfig(t *testing.T) {
	t.Helper()
	t.Setenv("PARLEY_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))
}

// TestLoadConfigDefaults tests that a missing config file yields the
// documented defaults.
func TestLoadConfigDefaults(t *testing.T) {
	pointAtMissingConfig(t)

	cfg, err := server.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if cfg.Server.Port != ":8080" {
		t.Errorf("Expected default port :8080, got %q", cfg.Server.Port)
	}
	if cfg.Server.MaxMessageSize != 4096 {
		t.Errorf("Expected default max message size 4096, got %d", cfg.Server.MaxMessageSize)
	}
	if cfg.Server.RateLimit.Burst != 5 {
		t.Errorf("Expected default rate limit burst 5, got %d", cfg.Server.RateLimit.Burst)
	}
	if cfg.Storage.DataDir != "data" {
		t.Errorf("Expected default data dir 'data', got %q", cfg.Storage.DataDir)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Expected default log level 'info', got %q", cfg.Log.Level)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "http://localhost:8080" {
		t.Errorf("Expected default origin list, got %v", cfg.Server.AllowedOrigins)
	}
}

// TestLoadConfigFromFile tests that values from a TOML file override the
// defaults.
func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `[server]
port = "9000"
allowedOrigins = ["https://chat.example.com"]
maxMessageSize = 512

[server.rateLimit]
burst = 10
refillIntervalSeconds = 2

[storage]
dataDir = "/tmp/parley-test-data"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	t.Setenv("PARLEY_CONFIG", path)

	cfg, err := server.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if cfg.Server.Port != ":9000" {
		t.Errorf("Expected port :9000, got %q", cfg.Server.Port)
	}
	if cfg.Server.MaxMessageSize != 512 {
		t.Errorf("Expected max message size 512, got %d", cfg.Server.MaxMessageSize)
	}
	if cfg.Server.RateLimit.Burst != 10 {
		t.Errorf("Expected rate limit burst 10, got %d", cfg.Server.RateLimit.Burst)
	}
	if cfg.Storage.DataDir != "/tmp/parley-test-data" {
		t.Errorf("Expected configured data dir, got %q", cfg.Storage.DataDir)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "https://chat.example.com" {
		t.Errorf("Expected configured origin list, got %v", cfg.Server.AllowedOrigins)
	}
}

// TestLoadConfigMalformedFile tests that a syntactically invalid config file
// is a hard error rather than a silent fallback.
func TestLoadConfigMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("this is { not toml"), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	t.Setenv("PARLEY_CONFIG", path)

	if _, err := server.LoadConfig(); err == nil {
		t.Error("Expected LoadConfig() to fail for malformed TOML")
	}
}

// TestEnvironmentOverrides tests that environment variables take precedence
// over file values and defaults.
func TestEnvironmentOverrides(t *testing.T) {
	pointAtMissingConfig(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("MAX_MESSAGE_SIZE", "2048")
	t.Setenv("RATE_LIMIT_BURST", "20")
	t.Setenv("DATA_DIR", "/tmp/parley-env-data")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := server.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if cfg.Server.Port != ":9090" {
		t.Errorf("Expected port :9090 after override, got %q", cfg.Server.Port)
	}
	if cfg.Server.MaxMessageSize != 2048 {
		t.Errorf("Expected max message size 2048, got %d", cfg.Server.MaxMessageSize)
	}
	if cfg.Server.RateLimit.Burst != 20 {
		t.Errorf("Expected rate limit burst 20, got %d", cfg.Server.RateLimit.Burst)
	}
	if cfg.Storage.DataDir != "/tmp/parley-env-data" {
		t.Errorf("Expected overridden data dir, got %q", cfg.Storage.DataDir)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level debug, got %q", cfg.Log.Level)
	}

	expected := []string{"https://a.example.com", "https://b.example.com"}
	if len(cfg.Server.AllowedOrigins) != len(expected) {
		t.Fatalf("Expected %d origins, got %v", len(expected), cfg.Server.AllowedOrigins)
	}
	for i, origin := range expected {
		if cfg.Server.AllowedOrigins[i] != origin {
			t.Errorf("Expected origin %q at index %d, got %q", origin, i, cfg.Server.AllowedOrigins[i])
		}
	}
}

// TestInvalidEnvironmentValuesFallBack tests that non-numeric or non-positive
// overrides keep the previous value instead of breaking the config.
func TestInvalidEnvironmentValuesFallBack(t *testing.T) {
	pointAtMissingConfig(t)
	t.Setenv("MAX_MESSAGE_SIZE", "not-a-number")
	t.Setenv("RATE_LIMIT_BURST", "-3")

	cfg, err := server.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if cfg.Server.MaxMessageSize != 4096 {
		t.Errorf("Expected fallback max message size 4096, got %d", cfg.Server.MaxMessageSize)
	}
	if cfg.Server.RateLimit.Burst != 5 {
		t.Errorf("Expected fallback rate limit burst 5, got %d", cfg.Server.RateLimit.Burst)
	}
}

// TestOriginNormalization tests that origin values are trimmed, lowercased,
// and stripped of trailing slashes during sanitization.
func TestOriginNormalization(t *testing.T) {
	pointAtMissingConfig(t)
	t.Setenv("ALLOWED_ORIGINS", " HTTPS://Chat.Example.COM/ ,http://localhost:8080")

	cfg, err := server.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	expected := []string{"https://chat.example.com", "http://localhost:8080"}
	if len(cfg.Server.AllowedOrigins) != len(expected) {
		t.Fatalf("Expected %d origins, got %v", len(expected), cfg.Server.AllowedOrigins)
	}
	for i, origin := range expected {
		if cfg.Server.AllowedOrigins[i] != origin {
			t.Errorf("Expected normalized origin %q, got %q", origin, cfg.Server.AllowedOrigins[i])
		}
	}
}

// TestWildcardOrigin tests that a lone "*" entry is preserved and disables
// the allow-list.
func TestWildcardOrigin(t *testing.T) {
	pointAtMissingConfig(t)
	t.Setenv("ALLOWED_ORIGINS", "*")

	cfg, err := server.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "*" {
		t.Errorf("Expected wildcard origin list, got %v", cfg.Server.AllowedOrigins)
	}
}
