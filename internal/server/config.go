// Package server provides configuration loading for the Parley service: a
// TOML config file with environment overrides, sensible defaults, and
// validation of the values the transport layer depends on.
package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst                 int `toml:"burst"`
	RefillIntervalSeconds int `toml:"refillIntervalSeconds"`
}

// refillInterval converts the configured refill window into a duration.
func (c RateLimitConfig) refillInterval() time.Duration {
	return time.Duration(c.RefillIntervalSeconds) * time.Second
}

// ServerConfig holds the HTTP/WebSocket listener settings including security
// controls.
type ServerConfig struct {
	Port           string          `toml:"port"`
	AllowedOrigins []string        `toml:"allowedOrigins"`
	MaxMessageSize int64           `toml:"maxMessageSize"`
	RateLimit      RateLimitConfig `toml:"rateLimit"`
}

// StorageConfig points the durable store at its data directory.
type StorageConfig struct {
	DataDir string `toml:"dataDir"`
}

// LogConfig configures structured logging and log rotation.
type LogConfig struct {
	LogPath    string `toml:"logPath"`
	FileName   string `toml:"fileName"`
	MaxSize    int    `toml:"maxSize"`
	MaxBackups int    `toml:"maxBackups"`
	MaxAge     int    `toml:"maxAge"`
	Level      string `toml:"level"`
	Mode       string `toml:"mode"`
}

// Config is the full application configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Storage StorageConfig `toml:"storage"`
	Log     LogConfig     `toml:"log"`

	// Derived from AllowedOrigins during sanitize.
	originSet map[string]struct{}
	allowAll  bool
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port: ":8080",
			AllowedOrigins: []string{
				"http://localhost:8080",
			},
			MaxMessageSize: 4096,
			RateLimit: RateLimitConfig{
				Burst:                 5,
				RefillIntervalSeconds: 1,
			},
		},
		Storage: StorageConfig{
			DataDir: "data",
		},
		Log: LogConfig{
			LogPath:    "logs",
			FileName:   "parley.log",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Level:      "info",
			Mode:       "dev",
		},
	}
}

// LoadConfig builds the configuration from the first config file found,
// applies environment overrides, and fills in defaults for anything missing.
// PARLEY_CONFIG pins an explicit file path; otherwise the default search
// paths are tried and a missing file is not an error.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	paths := []string{
		"configs/config.toml",
		"../../configs/config.toml",
	}
	if explicit := os.Getenv("PARLEY_CONFIG"); explicit != "" {
		paths = []string{explicit}
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %q: %w", path, err)
		}
		break
	}

	cfg.applyEnvOverrides()
	cfg.sanitize()
	return &cfg, nil
}

// applyEnvOverrides lets individual settings be overridden without editing
// the config file. Invalid values fall back to whatever was already set.
func (c *Config) applyEnvOverrides() {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Server.Port = port
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = parseOrigins(origins)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		c.Server.MaxMessageSize = parseInt64Value(maxSize, c.Server.MaxMessageSize)
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		c.Server.RateLimit.Burst = parseIntValue(burst, c.Server.RateLimit.Burst)
	}

	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		c.Server.RateLimit.RefillIntervalSeconds = parseIntValue(interval, c.Server.RateLimit.RefillIntervalSeconds)
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDir = dataDir
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}

// sanitize applies defaults for missing or invalid values and precomputes
// the normalized origin allow-list used by the WebSocket upgrader.
func (c *Config) sanitize() {
	defaults := defaultConfig()

	if c.Server.Port == "" {
		c.Server.Port = defaults.Server.Port
	}
	if !strings.HasPrefix(c.Server.Port, ":") {
		c.Server.Port = ":" + c.Server.Port
	}

	if c.Server.MaxMessageSize <= 0 {
		c.Server.MaxMessageSize = defaults.Server.MaxMessageSize
	}
	if c.Server.RateLimit.Burst <= 0 {
		c.Server.RateLimit.Burst = defaults.Server.RateLimit.Burst
	}
	if c.Server.RateLimit.RefillIntervalSeconds <= 0 {
		c.Server.RateLimit.RefillIntervalSeconds = defaults.Server.RateLimit.RefillIntervalSeconds
	}

	if c.Storage.DataDir == "" {
		c.Storage.DataDir = defaults.Storage.DataDir
	}

	if c.Log.LogPath == "" {
		c.Log.LogPath = defaults.Log.LogPath
	}
	if c.Log.FileName == "" {
		c.Log.FileName = defaults.Log.FileName
	}
	if c.Log.MaxSize <= 0 {
		c.Log.MaxSize = defaults.Log.MaxSize
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = defaults.Log.MaxBackups
	}
	if c.Log.MaxAge <= 0 {
		c.Log.MaxAge = defaults.Log.MaxAge
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Mode == "" {
		c.Log.Mode = defaults.Log.Mode
	}

	normalized, allowAll := normalizeOrigins(c.Server.AllowedOrigins)
	c.Server.AllowedOrigins = normalized
	c.allowAll = allowAll
	c.originSet = make(map[string]struct{}, len(normalized))
	for _, origin := range normalized {
		c.originSet[origin] = struct{}{}
	}
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseInt64Value(value string, defaultValue int64) int64 {
	if parsed, err := strconv.ParseInt(value, 10, 64); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}
