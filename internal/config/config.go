// Package config handles loading and validating configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage backends accepted by STORAGE_BACKEND.
var storageBackends = []string{"memory", "file", "badger", "redis"}

// Panel positions accepted by POSITION.
var positions = []string{"top-right", "top-left", "bottom-right", "bottom-left"}

// Config holds all configuration values for alertfeed.
type Config struct {
	// Alert stream
	AlertsWSURL   string
	AlertsPollURL string
	PollInterval  time.Duration
	Subscribe     string

	// Panel
	MaxAlerts int
	Position  string

	// Read-state storage
	StorageBackend string
	StoragePath    string
	ReadStateKey   string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	// Pipeline
	EventBuffer int

	// Metrics
	PrometheusPort int

	// UI
	EnableTUI     bool
	UIRefreshRate time.Duration

	// Logging
	LogLevel string
	LogFile  string
}

// Load reads configuration from environment variables with fallback to the
// YAML file named by ALERTFEED_CONFIG and the .env file.
// Priority order: Environment variables > YAML file > .env file > hardcoded defaults
func Load() (*Config, error) {
	return LoadFiles(".env", os.Getenv("ALERTFEED_CONFIG"))
}

// LoadFiles is Load with explicit file locations. An empty yamlPath skips
// the overlay; a missing .env file is ignored.
func LoadFiles(dotenvPath, yamlPath string) (*Config, error) {
	src := source{lookupEnv: os.LookupEnv}

	if dotenv, err := godotenv.Read(dotenvPath); err == nil {
		src.dotenv = dotenv
	}

	if yamlPath != "" {
		overlay, err := readOverlay(yamlPath)
		if err != nil {
			return nil, err
		}
		src.overlay = overlay
	}

	cfg := &Config{
		// Stream
		AlertsWSURL:   src.getEnv("ALERTS_WS_URL", ""),
		AlertsPollURL: src.getEnv("ALERTS_POLL_URL", ""),
		PollInterval:  time.Duration(src.getEnvInt("ALERTS_POLL_INTERVAL_SECONDS", 5)) * time.Second,
		Subscribe:     src.getEnv("ALERTS_SUBSCRIBE", ""),

		// Panel
		MaxAlerts: src.getEnvInt("MAX_ALERTS", 50),
		Position:  strings.ToLower(src.getEnv("POSITION", "top-right")),

		// Storage
		StorageBackend: strings.ToLower(src.getEnv("STORAGE_BACKEND", "file")),
		StoragePath:    src.getEnv("STORAGE_PATH", ""),
		ReadStateKey:   src.getEnv("READ_STATE_KEY", "polyinsider.readAlerts"),
		RedisAddr:      src.getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  src.getEnv("REDIS_PASSWORD", ""),
		RedisDB:        src.getEnvInt("REDIS_DB", 0),

		// Pipeline
		EventBuffer: src.getEnvInt("EVENT_BUFFER", 100),

		// Metrics
		PrometheusPort: src.getEnvInt("PROMETHEUS_PORT", 9090),

		// UI
		EnableTUI:     src.getEnvBool("ENABLE_TUI", true),
		UIRefreshRate: time.Duration(src.getEnvInt("UI_REFRESH_MS", 500)) * time.Millisecond,

		// Logging
		LogLevel: src.getEnv("LOG_LEVEL", "INFO"),
		LogFile:  src.getEnv("LOG_FILE", ""),
	}

	if cfg.StoragePath == "" {
		switch cfg.StorageBackend {
		case "file":
			cfg.StoragePath = "./data/readstate.json"
		case "badger":
			cfg.StoragePath = "./data/readstate.badger"
		}
	}

	if cfg.EnableTUI && cfg.LogFile == "" {
		cfg.LogFile = "./data/alertfeed.log"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set and valid.
func (c *Config) Validate() error {
	if c.AlertsWSURL == "" && c.AlertsPollURL == "" {
		return errors.New("one of ALERTS_WS_URL or ALERTS_POLL_URL is required")
	}

	if c.AlertsWSURL != "" && !hasPrefix(c.AlertsWSURL, "ws://", "wss://") {
		return fmt.Errorf("ALERTS_WS_URL must start with ws:// or wss://, got %q", c.AlertsWSURL)
	}

	if c.AlertsPollURL != "" && !hasPrefix(c.AlertsPollURL, "http://", "https://") {
		return fmt.Errorf("ALERTS_POLL_URL must start with http:// or https://, got %q", c.AlertsPollURL)
	}

	if c.PollInterval <= 0 {
		return errors.New("ALERTS_POLL_INTERVAL_SECONDS must be positive")
	}

	if c.MaxAlerts < 1 {
		return errors.New("MAX_ALERTS must be at least 1")
	}

	if !oneOf(c.Position, positions) {
		return fmt.Errorf("POSITION must be one of %s", strings.Join(positions, ", "))
	}

	if !oneOf(c.StorageBackend, storageBackends) {
		return fmt.Errorf("STORAGE_BACKEND must be one of %s", strings.Join(storageBackends, ", "))
	}

	if c.StorageBackend == "file" && c.StoragePath == "" {
		return errors.New("STORAGE_PATH is required for the file backend")
	}

	if c.StorageBackend == "redis" && c.RedisAddr == "" {
		return errors.New("REDIS_ADDR is required for the redis backend")
	}

	if c.RedisDB < 0 {
		return errors.New("REDIS_DB must not be negative")
	}

	if c.ReadStateKey == "" {
		return errors.New("READ_STATE_KEY must not be empty")
	}

	if c.EventBuffer < 0 {
		return errors.New("EVENT_BUFFER must not be negative")
	}

	if c.PrometheusPort < 0 || c.PrometheusPort > 65535 {
		return errors.New("PROMETHEUS_PORT must be between 0 and 65535")
	}

	if c.UIRefreshRate <= 0 {
		return errors.New("UI_REFRESH_MS must be positive")
	}

	return nil
}

// MaskedRedisPassword returns the Redis password with most characters hidden for logging.
func (c *Config) MaskedRedisPassword() string {
	return maskSecret(c.RedisPassword)
}

// maskSecret hides all but the first and last 4 characters of a secret.
func maskSecret(s string) string {
	if len(s) <= 8 {
		if len(s) == 0 {
			return "(not set)"
		}
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// readOverlay parses a flat YAML file. Keys are the lowercase variable
// names, e.g. max_alerts: 100.
func readOverlay(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse yaml %s: %w", path, err)
	}

	overlay := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		overlay[strings.ToLower(k)] = fmt.Sprint(v)
	}
	return overlay, nil
}

// source resolves a key against the environment, the YAML overlay and the
// .env file, in that order.
type source struct {
	lookupEnv func(string) (string, bool)
	overlay   map[string]string
	dotenv    map[string]string
}

func (s source) lookup(key string) (string, bool) {
	if value, ok := s.lookupEnv(key); ok && value != "" {
		return value, true
	}
	if value, ok := s.overlay[strings.ToLower(key)]; ok && value != "" {
		return value, true
	}
	if value, ok := s.dotenv[key]; ok && value != "" {
		return value, true
	}
	return "", false
}

// getEnv retrieves a value or returns a default value.
func (s source) getEnv(key, defaultValue string) string {
	if value, ok := s.lookup(key); ok {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves a value as an integer or returns a default.
func (s source) getEnvInt(key string, defaultValue int) int {
	if value, ok := s.lookup(key); ok {
		if intVal, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool retrieves a value as a boolean or returns a default.
func (s source) getEnvBool(key string, defaultValue bool) bool {
	if value, ok := s.lookup(key); ok {
		if boolVal, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func hasPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func oneOf(s string, allowed []string) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}
