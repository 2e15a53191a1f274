// Package config loads and watches the server configuration. YAML is the
// primary format; files ending in .json5 or .json are parsed as JSON5.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/titanous/json5"
	"gopkg.in/yaml.v3"

	"github.com/voltgrid/ocppd/pkg/ocpp"
)

// Config is the recognized configuration surface.
type Config struct {
	// Addr is the listen address, e.g. ":9220".
	Addr string `yaml:"addr" json:"addr"`
	// Path is the WebSocket route prefix; the charge point id is the path
	// element after it, e.g. /ocpp/CP001.
	Path string `yaml:"path" json:"path"`

	// Protocols lists the accepted OCPP subprotocol names.
	Protocols []string `yaml:"protocols" json:"protocols"`
	// ActionsAllowed restricts the action set; empty allows every action.
	ActionsAllowed []string `yaml:"actions_allowed" json:"actions_allowed"`

	MaxConnections int `yaml:"max_connections" json:"max_connections"`
	// SessionTimeout is in seconds.
	SessionTimeout int `yaml:"session_timeout" json:"session_timeout"`

	BasicAuth       bool `yaml:"basic_auth" json:"basic_auth"`
	CertificateAuth bool `yaml:"certificate_auth" json:"certificate_auth"`

	SchemaValidation bool   `yaml:"schema_validation" json:"schema_validation"`
	SchemaDir        string `yaml:"schema_dir" json:"schema_dir"`
	// SchemaStrict rejects actions that have no schema file instead of
	// passing them through.
	SchemaStrict bool `yaml:"schema_strict" json:"schema_strict"`

	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Redis     RedisConfig     `yaml:"redis" json:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres" json:"postgres"`
	Log       LogConfig       `yaml:"log" json:"log"`

	// Credentials maps charge point ids to basic-auth secrets when no
	// Postgres resolver is configured.
	Credentials map[string]string `yaml:"credentials" json:"credentials"`
}

// RateLimitConfig bounds inbound message rates per connection.
type RateLimitConfig struct {
	// RPM is messages per minute; zero disables limiting.
	RPM   int `yaml:"rpm" json:"rpm"`
	Burst int `yaml:"burst" json:"burst"`
}

// RedisConfig enables the Redis-backed session store when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	Prefix   string `yaml:"prefix" json:"prefix"`
}

// PostgresConfig enables the Postgres credential resolver when DSN is set.
type PostgresConfig struct {
	DSN string `yaml:"dsn" json:"dsn"`
}

// LogConfig controls slog output.
type LogConfig struct {
	Level string `yaml:"level" json:"level"` // debug, info, warn, error
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Addr:           ":9220",
		Path:           "/ocpp",
		Protocols:      ocpp.Subprotocols(),
		MaxConnections: 1024,
		SessionTimeout: 60,
		RateLimit:      RateLimitConfig{RPM: 600, Burst: 20},
		Log:            LogConfig{Level: "info"},
	}
}

// Load reads a config file and merges it over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	switch filepath.Ext(path) {
	case ".json", ".json5":
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks for values the server cannot start with.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config: addr must not be empty")
	}
	if len(c.Protocols) == 0 {
		return fmt.Errorf("config: at least one protocol is required")
	}
	for _, p := range c.Protocols {
		if ocpp.VersionGroup(p) == "" {
			return fmt.Errorf("config: unknown protocol %q", p)
		}
	}
	if c.SessionTimeout < 0 {
		return fmt.Errorf("config: session_timeout must not be negative")
	}
	if c.SchemaValidation && c.SchemaDir == "" {
		return fmt.Errorf("config: schema_validation requires schema_dir")
	}
	return nil
}

// SessionTimeoutDuration converts the configured seconds value.
func (c *Config) SessionTimeoutDuration() time.Duration {
	return time.Duration(c.SessionTimeout) * time.Second
}
