// Package config loads touchdelay's YAML configuration.
//
// A config file looks like:
//
//	backend: sqlite
//	database: ./touchdelay.db
//	schema_dir: ./records
//	max_passes: 10
//	metrics_addr: 127.0.0.1:9464
//	log_level: info
//
// Unknown fields are rejected so typos fail loudly.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/touchdelay/internal/engine"
)

// Backend names.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Defaults applied to missing fields.
const (
	DefaultDatabase  = "touchdelay.db"
	DefaultRedisAddr = "127.0.0.1:6379"
	DefaultLogLevel  = "info"
)

// Config is the runtime configuration of the touchdelay CLI.
type Config struct {
	// Backend selects the record store: "sqlite" or "redis".
	Backend string `yaml:"backend"`

	// Database is the SQLite file. Also holds the flush journal, which the
	// redis backend writes to SQLite as well.
	Database string `yaml:"database"`

	// RedisAddr is the host:port of the Redis server.
	RedisAddr string `yaml:"redis_addr"`

	// SchemaDir holds the CUE record type declarations.
	SchemaDir string `yaml:"schema_dir"`

	// MaxPasses bounds cascading flush passes per scope.
	MaxPasses int `yaml:"max_passes"`

	// MetricsAddr, when set, serves Prometheus metrics at /metrics.
	MetricsAddr string `yaml:"metrics_addr,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Backend:   BackendSQLite,
		Database:  DefaultDatabase,
		RedisAddr: DefaultRedisAddr,
		MaxPasses: engine.DefaultMaxPasses,
		LogLevel:  DefaultLogLevel,
	}
}

// Load reads and validates a config file. Relative paths in the file are
// resolved against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	base := filepath.Dir(path)
	cfg.Database = resolve(base, cfg.Database)
	cfg.SchemaDir = resolve(base, cfg.SchemaDir)
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks field values.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSQLite:
		if c.Database == "" {
			return fmt.Errorf("database is required for the sqlite backend")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("backend must be %q or %q, got %q", BackendSQLite, BackendRedis, c.Backend)
	}

	if c.MaxPasses < 1 {
		return fmt.Errorf("max_passes must be at least 1, got %d", c.MaxPasses)
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Level returns the slog level for LogLevel. Validate has checked it.
func (c *Config) Level() slog.Level {
	level, _ := ParseLevel(c.LogLevel)
	return level
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(name)))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level must be debug, info, warn or error, got %q", name)
	}
	return level, nil
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) || path == ":memory:" {
		return path
	}
	return filepath.Join(base, path)
}
