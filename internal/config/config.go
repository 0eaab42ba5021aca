// ABOUTME: Configuration loading and validation for the tutor chat client
// ABOUTME: Reads YAML or TOML with ${ENV} expansion and raw duration strings

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/brianfields/deeplearn-sub010/internal/conversation"
	"github.com/brianfields/deeplearn-sub010/internal/socket"
)

// HeartbeatOff disables heartbeat pings when used as socket.heartbeat_interval.
const HeartbeatOff = "off"

// Config holds all client configuration.
type Config struct {
	Socket   SocketConfig   `yaml:"socket" toml:"socket"`
	Registry RegistryConfig `yaml:"registry" toml:"registry"`
	API      APIConfig      `yaml:"api" toml:"api"`
	Auth     AuthConfig     `yaml:"auth" toml:"auth"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" toml:"metrics"`
}

// SocketConfig holds learning-coach WebSocket settings.
type SocketConfig struct {
	BaseURL              string `yaml:"base_url" toml:"base_url"`
	MaxReconnectAttempts int    `yaml:"max_reconnect_attempts" toml:"max_reconnect_attempts"`
	QueueCapacity        int    `yaml:"queue_capacity" toml:"queue_capacity"`
	BaseDelayRaw         string `yaml:"base_delay" toml:"base_delay"`
	MaxDelayRaw          string `yaml:"max_delay" toml:"max_delay"`
	HeartbeatIntervalRaw string `yaml:"heartbeat_interval" toml:"heartbeat_interval"`

	// Parsed durations (populated after loading)
	BaseDelay         time.Duration `yaml:"-" toml:"-"`
	MaxDelay          time.Duration `yaml:"-" toml:"-"`
	HeartbeatInterval time.Duration `yaml:"-" toml:"-"`
}

// RegistryConfig holds conversation registry housekeeping settings.
type RegistryConfig struct {
	MaxInactivityRaw   string `yaml:"max_inactivity" toml:"max_inactivity"`
	CleanupIntervalRaw string `yaml:"cleanup_interval" toml:"cleanup_interval"`
	DedupeTTLRaw       string `yaml:"dedupe_ttl" toml:"dedupe_ttl"`
	DedupeSize         int    `yaml:"dedupe_size" toml:"dedupe_size"`

	MaxInactivity   time.Duration `yaml:"-" toml:"-"`
	CleanupInterval time.Duration `yaml:"-" toml:"-"`
	DedupeTTL       time.Duration `yaml:"-" toml:"-"`
}

// APIConfig holds settings for the session HTTP API.
type APIConfig struct {
	// BaseURL defaults to the socket base URL with ws mapped to http.
	BaseURL    string        `yaml:"base_url" toml:"base_url"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
	Timeout    time.Duration `yaml:"-" toml:"-"`
}

// AuthConfig holds the bearer token used for both the API and the socket.
type AuthConfig struct {
	Token     string `yaml:"token" toml:"token"`
	TokenFile string `yaml:"token_file" toml:"token_file"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Addr    string `yaml:"addr" toml:"addr"`
	Path    string `yaml:"path" toml:"path"`
}

// envVarPattern matches ${VAR_NAME} patterns for environment variable expansion
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Default returns a validated configuration with stock values.
func Default() *Config {
	sc := socket.DefaultConfig()
	rc := conversation.DefaultConfig()
	cfg := &Config{
		Socket: SocketConfig{
			BaseURL:              sc.BaseURL,
			MaxReconnectAttempts: sc.MaxReconnectAttempts,
			QueueCapacity:        sc.QueueCapacity,
			BaseDelay:            sc.BaseDelay,
			MaxDelay:             sc.MaxDelay,
			HeartbeatInterval:    sc.HeartbeatInterval,
		},
		Registry: RegistryConfig{
			DedupeSize:      rc.DedupeSize,
			MaxInactivity:   rc.MaxInactivity,
			CleanupInterval: rc.CleanupInterval,
			DedupeTTL:       rc.DedupeTTL,
		},
		API: APIConfig{
			Timeout: 15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9464",
			Path: "/metrics",
		},
	}
	return cfg
}

// Load reads configuration from a YAML or TOML file, chosen by extension.
// Keys absent from the file keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing TOML: %w", err)
		}
	default:
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	}

	if err := cfg.parseDurations(); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR} patterns with environment variable values
func expandEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

func parseDuration(field, raw string, dst *time.Duration) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = d
	return nil
}

// parseDurations converts raw duration strings to time.Duration values.
// Empty strings keep the current value.
func (c *Config) parseDurations() error {
	if strings.EqualFold(strings.TrimSpace(c.Socket.HeartbeatIntervalRaw), HeartbeatOff) {
		c.Socket.HeartbeatInterval = -1
	} else if err := parseDuration("socket.heartbeat_interval", c.Socket.HeartbeatIntervalRaw, &c.Socket.HeartbeatInterval); err != nil {
		return err
	}

	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"socket.base_delay", c.Socket.BaseDelayRaw, &c.Socket.BaseDelay},
		{"socket.max_delay", c.Socket.MaxDelayRaw, &c.Socket.MaxDelay},
		{"registry.max_inactivity", c.Registry.MaxInactivityRaw, &c.Registry.MaxInactivity},
		{"registry.cleanup_interval", c.Registry.CleanupIntervalRaw, &c.Registry.CleanupInterval},
		{"registry.dedupe_ttl", c.Registry.DedupeTTLRaw, &c.Registry.DedupeTTL},
		{"api.timeout", c.API.TimeoutRaw, &c.API.Timeout},
	}
	for _, f := range fields {
		if err := parseDuration(f.name, f.raw, f.dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Socket.BaseURL == "" {
		return errors.New("socket.base_url is required")
	}
	if err := checkURL("socket.base_url", c.Socket.BaseURL, "ws", "wss", "http", "https"); err != nil {
		return err
	}
	if c.API.BaseURL != "" {
		if err := checkURL("api.base_url", c.API.BaseURL, "http", "https"); err != nil {
			return err
		}
	}

	if c.Socket.MaxReconnectAttempts < 0 {
		return errors.New("socket.max_reconnect_attempts must not be negative")
	}
	if c.Socket.QueueCapacity <= 0 {
		return errors.New("socket.queue_capacity must be positive")
	}
	if c.Socket.BaseDelay <= 0 {
		return errors.New("socket.base_delay must be positive")
	}
	if c.Socket.MaxDelay < c.Socket.BaseDelay {
		return fmt.Errorf("socket.max_delay (%s) must be at least socket.base_delay (%s)",
			c.Socket.MaxDelay, c.Socket.BaseDelay)
	}
	if c.Socket.HeartbeatInterval == 0 {
		return fmt.Errorf("socket.heartbeat_interval must be positive or %q", HeartbeatOff)
	}

	if c.Registry.MaxInactivity <= 0 {
		return errors.New("registry.max_inactivity must be positive")
	}
	if c.Registry.CleanupInterval <= 0 {
		return errors.New("registry.cleanup_interval must be positive")
	}
	if c.Registry.DedupeTTL <= 0 {
		return errors.New("registry.dedupe_ttl must be positive")
	}
	if c.Registry.DedupeSize <= 0 {
		return errors.New("registry.dedupe_size must be positive")
	}
	if c.API.Timeout <= 0 {
		return errors.New("api.timeout must be positive")
	}

	if c.Auth.Token != "" && c.Auth.TokenFile != "" {
		return errors.New("auth.token and auth.token_file are mutually exclusive")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json (got %q)", c.Logging.Format)
	}

	if c.Metrics.Enabled {
		if c.Metrics.Addr == "" {
			return errors.New("metrics.addr is required when metrics are enabled")
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return errors.New("metrics.path must start with /")
		}
	}

	return nil
}

func checkURL(field, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			if u.Host == "" {
				return fmt.Errorf("%s must include a host", field)
			}
			return nil
		}
	}
	return fmt.Errorf("%s must use one of %s (got %q)", field, strings.Join(schemes, ", "), u.Scheme)
}

// SocketSettings returns the socket package configuration.
func (c *Config) SocketSettings() socket.Config {
	attempts := c.Socket.MaxReconnectAttempts
	if attempts == 0 {
		// socket.Config reads zero as "default"
		attempts = -1
	}
	return socket.Config{
		BaseURL:              c.Socket.BaseURL,
		MaxReconnectAttempts: attempts,
		BaseDelay:            c.Socket.BaseDelay,
		MaxDelay:             c.Socket.MaxDelay,
		QueueCapacity:        c.Socket.QueueCapacity,
		HeartbeatInterval:    c.Socket.HeartbeatInterval,
	}
}

// RegistrySettings returns the conversation registry configuration.
func (c *Config) RegistrySettings() conversation.Config {
	return conversation.Config{
		MaxInactivity:   c.Registry.MaxInactivity,
		CleanupInterval: c.Registry.CleanupInterval,
		DedupeTTL:       c.Registry.DedupeTTL,
		DedupeSize:      c.Registry.DedupeSize,
	}
}

// APIBaseURL returns api.base_url, falling back to the socket origin.
func (c *Config) APIBaseURL() string {
	if c.API.BaseURL != "" {
		return c.API.BaseURL
	}
	return c.Socket.BaseURL
}

// ResolveToken returns the configured bearer token, reading token_file
// when set. Surrounding whitespace is trimmed.
func (c *Config) ResolveToken() (string, error) {
	if c.Auth.TokenFile == "" {
		return strings.TrimSpace(c.Auth.Token), nil
	}
	data, err := os.ReadFile(c.Auth.TokenFile)
	if err != nil {
		return "", fmt.Errorf("reading auth.token_file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
