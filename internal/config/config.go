// Package config loads Inventra settings from a YAML file with environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
	BackendMemory = "memory"
)

// Sync transports.
const (
	TransportSimulated = "simulated"
	TransportHTTP      = "http"
	TransportPostgres  = "postgres"
)

// Config holds all runtime configuration.
type Config struct {
	DataDir      string     `yaml:"data_dir"`
	Namespace    string     `yaml:"namespace"`
	Backend      string     `yaml:"backend"`
	ListenAddr   string     `yaml:"listen_addr"`
	LogLevel     string     `yaml:"log_level"`
	QueueMaxSize int        `yaml:"queue_max_size"`
	StartOnline  bool       `yaml:"start_online"`
	Sync         SyncConfig `yaml:"sync"`
}

// SyncConfig selects and configures the remote sync transport.
type SyncConfig struct {
	Transport   string        `yaml:"transport"`
	Latency     time.Duration `yaml:"latency"`
	Endpoint    string        `yaml:"endpoint"`
	JWTSecret   string        `yaml:"jwt_secret"`
	TokenExpiry time.Duration `yaml:"token_expiry"`
	PostgresDSN string        `yaml:"postgres_dsn"`
	Timeout     time.Duration `yaml:"timeout"` // zero waits for the transport indefinitely
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		DataDir:     "./data",
		Namespace:   "inventra",
		Backend:     BackendSQLite,
		ListenAddr:  "localhost:8090",
		LogLevel:    "INFO",
		StartOnline: true,
		Sync: SyncConfig{
			Transport:   TransportSimulated,
			Latency:     time.Second,
			TokenExpiry: 24 * time.Hour,
		},
	}
}

// Load reads path over the defaults, applies INVENTRA_* environment overrides
// and validates the result. A missing or empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("INVENTRA_DATA_DIR", &c.DataDir)
	str("INVENTRA_BACKEND", &c.Backend)
	str("INVENTRA_LISTEN_ADDR", &c.ListenAddr)
	str("INVENTRA_LOG_LEVEL", &c.LogLevel)
	str("INVENTRA_SYNC_TRANSPORT", &c.Sync.Transport)
	str("INVENTRA_SYNC_ENDPOINT", &c.Sync.Endpoint)
	str("INVENTRA_JWT_SECRET", &c.Sync.JWTSecret)
	str("INVENTRA_POSTGRES_DSN", &c.Sync.PostgresDSN)
}

// Validate rejects unknown enum values and incomplete transport settings.
func (c *Config) Validate() error {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	c.Sync.Transport = strings.ToLower(strings.TrimSpace(c.Sync.Transport))

	switch c.Backend {
	case BackendSQLite, BackendBolt:
		if c.DataDir == "" {
			return fmt.Errorf("data_dir is required for backend %q", c.Backend)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown backend %q (want sqlite, bolt or memory)", c.Backend)
	}

	if c.QueueMaxSize < 0 {
		return fmt.Errorf("queue_max_size must not be negative")
	}

	switch c.Sync.Transport {
	case TransportSimulated:
		if c.Sync.Latency < 0 {
			return fmt.Errorf("sync.latency must not be negative")
		}
	case TransportHTTP:
		if c.Sync.Endpoint == "" {
			return fmt.Errorf("sync.endpoint is required for the http transport")
		}
		if c.Sync.JWTSecret == "" {
			return fmt.Errorf("sync.jwt_secret is required for the http transport")
		}
	case TransportPostgres:
		if c.Sync.PostgresDSN == "" {
			return fmt.Errorf("sync.postgres_dsn is required for the postgres transport")
		}
	default:
		return fmt.Errorf("unknown sync transport %q", c.Sync.Transport)
	}

	if c.Sync.Timeout < 0 {
		return fmt.Errorf("sync.timeout must not be negative")
	}
	if c.Sync.TokenExpiry <= 0 {
		c.Sync.TokenExpiry = 24 * time.Hour
	}
	if c.Namespace == "" {
		c.Namespace = "inventra"
	}
	return nil
}
