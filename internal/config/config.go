package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Sync roles.
const (
	RoleClient = "client"
	RoleServer = "server"
)

// Config holds the settings of one irontrack process
type Config struct {
	// Logging configuration
	LogLevel   string `yaml:"log_level" json:"log_level"`     // Log level: DEBUG, INFO, WARN, ERROR
	LogFile    string `yaml:"log_file" json:"log_file"`       // Path to log file
	LogConsole bool   `yaml:"log_console" json:"log_console"` // Enable console logging

	DataPath string `yaml:"data_path" json:"data_path"` // Local SQLite database

	Sync   SyncConfig   `yaml:"sync" json:"sync"`
	Queue  QueueConfig  `yaml:"queue" json:"queue"`
	Server ServerConfig `yaml:"server" json:"server"`
}

// SyncConfig decides whether and how often this process syncs.
type SyncConfig struct {
	Role            string `yaml:"role" json:"role"`
	RemoteURL       string `yaml:"remote_url" json:"remote_url"`
	IntervalMinutes int    `yaml:"interval_minutes" json:"interval_minutes"` // 0 disables the timer
	Enabled         bool   `yaml:"enabled" json:"enabled"`
}

// Interval returns the scheduling period, zero when disabled.
func (s SyncConfig) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

// Active reports whether a client timer should be running.
func (s SyncConfig) Active() bool {
	return s.Enabled && s.Role == RoleClient && s.IntervalMinutes > 0 && s.RemoteURL != ""
}

// QueueConfig tunes the offline queue.
type QueueConfig struct {
	Name        string        `yaml:"name" json:"name"`
	MaxRetries  int           `yaml:"max_retries" json:"max_retries"`
	Debounce    time.Duration `yaml:"debounce" json:"debounce"`
	BackoffBase time.Duration `yaml:"backoff_base" json:"backoff_base"`
	BackoffMax  time.Duration `yaml:"backoff_max" json:"backoff_max"`
}

// ServerConfig configures `irontrack serve`.
type ServerConfig struct {
	Addr        string `yaml:"addr" json:"addr"`
	DatabaseURL string `yaml:"database_url" json:"database_url"` // postgres:// DSN or SQLite path
}

// Dir returns ~/.irontrack
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".irontrack")
}

// Path returns the default config file location.
func Path() string {
	return filepath.Join(Dir(), "config.yaml")
}

// DefaultConfig returns default settings
func DefaultConfig() *Config {
	dir := Dir()

	return &Config{
		LogLevel:   getEnv("IRONTRACK_LOG_LEVEL", "INFO"),
		LogFile:    getEnv("IRONTRACK_LOG_FILE", filepath.Join(dir, "logs", "irontrack.log")),
		LogConsole: getEnv("IRONTRACK_LOG_CONSOLE", "false") == "true",
		DataPath:   filepath.Join(dir, "irontrack.db"),
		Sync: SyncConfig{
			Role:            RoleClient,
			RemoteURL:       "",
			IntervalMinutes: 5,
			Enabled:         false,
		},
		Queue: QueueConfig{
			Name:        "default",
			MaxRetries:  3,
			Debounce:    2 * time.Second,
			BackoffBase: 5 * time.Second,
			BackoffMax:  5 * time.Minute,
		},
		Server: ServerConfig{
			Addr:        ":8080",
			DatabaseURL: filepath.Join(dir, "server.db"),
		},
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// applyEnv overrides file values with IRONTRACK_* variables.
func (c *Config) applyEnv() error {
	c.LogLevel = getEnv("IRONTRACK_LOG_LEVEL", c.LogLevel)
	c.LogFile = getEnv("IRONTRACK_LOG_FILE", c.LogFile)
	if v := os.Getenv("IRONTRACK_LOG_CONSOLE"); v != "" {
		c.LogConsole = v == "true"
	}
	c.DataPath = getEnv("IRONTRACK_DATA_PATH", c.DataPath)
	c.Sync.Role = getEnv("IRONTRACK_SYNC_ROLE", c.Sync.Role)
	c.Sync.RemoteURL = getEnv("IRONTRACK_REMOTE_URL", c.Sync.RemoteURL)
	if v := os.Getenv("IRONTRACK_SYNC_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("IRONTRACK_SYNC_INTERVAL: %w", err)
		}
		c.Sync.IntervalMinutes = n
	}
	if v := os.Getenv("IRONTRACK_SYNC_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("IRONTRACK_SYNC_ENABLED: %w", err)
		}
		c.Sync.Enabled = b
	}
	c.Server.Addr = getEnv("IRONTRACK_SERVER_ADDR", c.Server.Addr)
	c.Server.DatabaseURL = getEnv("IRONTRACK_DATABASE_URL", c.Server.DatabaseURL)
	return nil
}

// Load loads config from ~/.irontrack/config.yaml
func Load() (*Config, error) {
	return LoadFile(Path())
}

// LoadFile reads path over the defaults, applies the environment, then
// normalizes and validates the result. A missing file yields defaults.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves config to ~/.irontrack/config.yaml
func (c *Config) Save() error {
	return c.SaveFile(Path())
}

// SaveFile writes the config as YAML, creating the directory when needed.
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
