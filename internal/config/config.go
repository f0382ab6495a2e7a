// Package config loads the server configuration from YAML and the
// environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/jowharshamshiri/GoContacts/internal/logging"
	"github.com/jowharshamshiri/GoContacts/pkg/core"
	"github.com/jowharshamshiri/GoContacts/pkg/manifest"
	"github.com/jowharshamshiri/GoContacts/pkg/server"
)

// Environment variables that override the file.
const (
	EnvSocket   = "GOCONTACTS_SOCKET"
	EnvDatabase = "GOCONTACTS_DB"
	EnvLogLevel = "GOCONTACTS_LOG_LEVEL"
	EnvWorkers  = "GOCONTACTS_WORKERS"
)

// Config is the complete server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the socket server.
type ServerConfig struct {
	SocketPath         string   `yaml:"socket_path"`
	Workers            int      `yaml:"workers"`
	QueueSize          int      `yaml:"queue_size"`
	MaxConnections     int      `yaml:"max_connections"`
	RequestTimeout     string   `yaml:"request_timeout"`
	MaxMessageSize     int      `yaml:"max_message_size"`
	ValidateRequests   bool     `yaml:"validate_requests"`
	ManifestPath       string   `yaml:"manifest_path,omitempty"`
	AllowedDirectories []string `yaml:"allowed_directories,omitempty"`
}

// StorageConfig configures the contacts database.
type StorageConfig struct {
	DatabasePath         string `yaml:"database_path"`
	ThumbnailConcurrency int    `yaml:"thumbnail_concurrency"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			SocketPath:       "/tmp/gocontacts.sock",
			Workers:          server.DefaultWorkers,
			QueueSize:        server.DefaultQueueSize,
			MaxConnections:   100,
			RequestTimeout:   "30s",
			MaxMessageSize:   core.DefaultMaxMessageSize,
			ValidateRequests: true,
		},
		Storage: StorageConfig{
			DatabasePath:         "contacts.db",
			ThumbnailConcurrency: 4,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
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
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
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

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv(EnvSocket); v != "" {
		c.Server.SocketPath = v
	}
	if v := os.Getenv(EnvDatabase); v != "" {
		c.Storage.DatabasePath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvWorkers, err)
		}
		c.Server.Workers = n
	}
	return nil
}

// GetRequestTimeout returns the request timeout as a duration.
func (c *Config) GetRequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.RequestTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validator := core.NewSecurityValidator(c.Server.AllowedDirectories...)
	if err := validator.ValidateSocketPath(c.Server.SocketPath); err != nil {
		return fmt.Errorf("server.socket_path: %w", err)
	}
	if c.Server.Workers <= 0 {
		return fmt.Errorf("server.workers must be positive, got %d", c.Server.Workers)
	}
	if c.Server.QueueSize <= 0 {
		return fmt.Errorf("server.queue_size must be positive, got %d", c.Server.QueueSize)
	}
	if d, err := time.ParseDuration(c.Server.RequestTimeout); err != nil || d <= 0 {
		return fmt.Errorf("server.request_timeout: invalid duration %q", c.Server.RequestTimeout)
	}
	if c.Storage.DatabasePath == "" {
		return fmt.Errorf("storage.database_path is required")
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

// LoadManifest returns the manifest file named in the configuration, or the
// embedded contacts manifest.
func (c *Config) LoadManifest() (*manifest.Manifest, error) {
	if c.Server.ManifestPath == "" {
		return manifest.Default()
	}
	return manifest.ParseFromFile(c.Server.ManifestPath)
}

// NewLogger builds the logger described by the logging section.
func (c *Config) NewLogger() (*zap.Logger, error) {
	return logging.New(c.Logging.Level, c.Logging.Development)
}

// ServerConfig converts the server section for server.NewContactsServer.
func (c *Config) ServerConfig(m *manifest.Manifest, logger *zap.Logger) *server.ServerConfig {
	cfg := server.DefaultServerConfig(c.Server.SocketPath)
	cfg.Workers = c.Server.Workers
	cfg.QueueSize = c.Server.QueueSize
	cfg.MaxConnections = c.Server.MaxConnections
	cfg.DefaultTimeout = c.GetRequestTimeout()
	cfg.MaxMessageSize = c.Server.MaxMessageSize
	cfg.ValidateRequests = c.Server.ValidateRequests
	cfg.AllowedDirectories = c.Server.AllowedDirectories
	cfg.Manifest = m
	cfg.Logger = logger
	return cfg
}
