package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values exported for documentation and validation
const (
	DefaultAPIBase      = "https://api.websticky.app"
	DefaultAuthBase     = "https://api.websticky.app"
	DefaultRelayBind    = "127.0.0.1:4519"
	DefaultPollInterval = 1 * time.Second
	DefaultLoginTimeout = 5 * time.Minute
	DefaultMaxClients   = 32
)

// Config represents the complete websticky configuration
type Config struct {
	Remote  RemoteConfig  `yaml:"remote"`
	Relay   RelayConfig   `yaml:"relay"`
	Auth    AuthConfig    `yaml:"auth"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
}

// RemoteConfig names the remote note API and the authentication provider.
// Both default to the hosted service; self-hosters point them elsewhere.
type RemoteConfig struct {
	APIBase  string `yaml:"api_base"`
	AuthBase string `yaml:"auth_base"`
}

// RelayConfig controls the local relay endpoint serving unprivileged clients.
type RelayConfig struct {
	Bind           string   `yaml:"bind"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxClients     int      `yaml:"max_clients"`
	AllowNonLocal  bool     `yaml:"allow_non_local"`
}

// AuthConfig tunes the interactive login handshake.
type AuthConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	LoginTimeout time.Duration `yaml:"login_timeout"`
}

// StorageConfig locates the on-device note database.
type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

// LoggingConfig controls the structured event log.
type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

// DefaultConfig returns a configuration populated with defaults.
func DefaultConfig() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Remote: RemoteConfig{
			APIBase:  DefaultAPIBase,
			AuthBase: DefaultAuthBase,
		},
		Relay: RelayConfig{
			Bind:           DefaultRelayBind,
			AllowedOrigins: []string{"http://localhost", "http://127.0.0.1"},
			MaxClients:     DefaultMaxClients,
		},
		Auth: AuthConfig{
			PollInterval: DefaultPollInterval,
			LoginTimeout: DefaultLoginTimeout,
		},
		Storage: StorageConfig{
			DBPath: filepath.Join(dataDir, "notes.db"),
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   filepath.Join(dataDir, "logs"),
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	if home == "" {
		return ".websticky"
	}
	return filepath.Join(home, ".websticky")
}

// Load loads configuration from default locations with proper precedence:
// defaults, then ~/.websticky/config.yaml, then environment overrides.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path := os.Getenv("WEBSTICKY_CONFIG")
	if path == "" {
		path = filepath.Join(defaultDataDir(), "config.yaml")
	}
	if err := loadAndMerge(cfg, path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading user config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := loadAndMerge(cfg, path); err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadAndMerge loads a YAML file and merges it into the config.
func loadAndMerge(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	mergeConfigs(cfg, &override)
	return nil
}

// mergeConfigs merges override into base. Zero values never clobber defaults.
func mergeConfigs(base, override *Config) {
	if override == nil {
		return
	}

	if override.Remote.APIBase != "" {
		base.Remote.APIBase = override.Remote.APIBase
	}
	if override.Remote.AuthBase != "" {
		base.Remote.AuthBase = override.Remote.AuthBase
	}
	if override.Relay.Bind != "" {
		base.Relay.Bind = override.Relay.Bind
	}
	if len(override.Relay.AllowedOrigins) > 0 {
		base.Relay.AllowedOrigins = override.Relay.AllowedOrigins
	}
	if override.Relay.MaxClients != 0 {
		base.Relay.MaxClients = override.Relay.MaxClients
	}
	if override.Relay.AllowNonLocal {
		base.Relay.AllowNonLocal = true
	}
	if override.Auth.PollInterval != 0 {
		base.Auth.PollInterval = override.Auth.PollInterval
	}
	if override.Auth.LoginTimeout != 0 {
		base.Auth.LoginTimeout = override.Auth.LoginTimeout
	}
	if override.Storage.DBPath != "" {
		base.Storage.DBPath = override.Storage.DBPath
	}
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Dir != "" {
		base.Logging.Dir = override.Logging.Dir
	}
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WEBSTICKY_API_BASE"); v != "" {
		cfg.Remote.APIBase = v
	}
	if v := os.Getenv("WEBSTICKY_AUTH_BASE"); v != "" {
		cfg.Remote.AuthBase = v
	}
	if v := os.Getenv("WEBSTICKY_BIND"); v != "" {
		cfg.Relay.Bind = v
	}
	if v := os.Getenv("WEBSTICKY_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("WEBSTICKY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Remote.APIBase == "" {
		return fmt.Errorf("remote.api_base cannot be empty")
	}
	if !strings.HasPrefix(c.Remote.APIBase, "http://") && !strings.HasPrefix(c.Remote.APIBase, "https://") {
		return fmt.Errorf("remote.api_base must be an http(s) URL, got %q", c.Remote.APIBase)
	}
	if !strings.HasPrefix(c.Remote.AuthBase, "http://") && !strings.HasPrefix(c.Remote.AuthBase, "https://") {
		return fmt.Errorf("remote.auth_base must be an http(s) URL, got %q", c.Remote.AuthBase)
	}

	host, _, err := net.SplitHostPort(c.Relay.Bind)
	if err != nil {
		return fmt.Errorf("relay.bind must be host:port, got %q: %w", c.Relay.Bind, err)
	}
	if !c.Relay.AllowNonLocal && !isLoopbackHost(host) {
		return fmt.Errorf("relay.bind %q is not loopback; set relay.allow_non_local to expose the relay", c.Relay.Bind)
	}

	if c.Relay.MaxClients < 1 {
		return fmt.Errorf("relay.max_clients must be positive, got %d", c.Relay.MaxClients)
	}
	if c.Auth.PollInterval <= 0 {
		return fmt.Errorf("auth.poll_interval must be positive, got %v", c.Auth.PollInterval)
	}
	if c.Auth.LoginTimeout <= c.Auth.PollInterval {
		return fmt.Errorf("auth.login_timeout (%v) must exceed auth.poll_interval (%v)", c.Auth.LoginTimeout, c.Auth.PollInterval)
	}
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path cannot be empty")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug/info/warn/error, got %q", c.Logging.Level)
	}

	return nil
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
