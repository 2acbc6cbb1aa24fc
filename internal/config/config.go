package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// PathEnv names the variable holding the config file location.
	PathEnv = "SANTELLE_CONFIG"
	// EnvPrefix prefixes every override variable, e.g. SANTELLE_STORE_DRIVER.
	EnvPrefix = "SANTELLE"
)

// Config holds every runtime setting of the CLI, TUI and API server.
type Config struct {
	Store  StoreConfig  `yaml:"store"`
	Remote RemoteConfig `yaml:"remote"`
	Cache  CacheConfig  `yaml:"cache"`
	Auth   AuthConfig   `yaml:"auth"`
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
	// LocalUser is the actor id used when no remote server is configured.
	LocalUser string `yaml:"local_user"`
}

type RemoteConfig struct {
	URL        string `yaml:"url"`
	Token      string `yaml:"token"`
	TokenFile  string `yaml:"token_file"`
	TimeoutMs  int    `yaml:"timeout_ms"`
	MaxRetries int    `yaml:"max_retries"`
}

type CacheConfig struct {
	Backend       string        `yaml:"backend"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	TTL           time.Duration `yaml:"ttl"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Dir returns ~/.santelle, or ./.santelle when the home directory is unknown.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".santelle"
	}
	return filepath.Join(home, ".santelle")
}

// DefaultConfig returns a Config with sensible defaults: local SQLite store,
// no remote server, SQLite-backed cache.
func DefaultConfig() Config {
	dir := Dir()
	return Config{
		Store: StoreConfig{
			Driver:    "sqlite",
			Path:      filepath.Join(dir, "santelle.db"),
			LocalUser: "local",
		},
		Remote: RemoteConfig{
			TokenFile:  filepath.Join(dir, "token"),
			TimeoutMs:  10000,
			MaxRetries: 1,
		},
		Cache: CacheConfig{
			Backend: "sqlite",
			TTL:     24 * time.Hour,
		},
		Auth: AuthConfig{
			TokenTTL: 30 * 24 * time.Hour,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join(dir, "santelle.log"),
		},
	}
}

// Load reads the YAML file named by SANTELLE_CONFIG (default
// ~/.santelle/config.yaml; a missing file is not an error), applies
// SANTELLE_* overrides and validates the result.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path := os.Getenv(PathEnv)
	explicit := path != ""
	if !explicit {
		path = filepath.Join(Dir(), "config.yaml")
	}
	if err := loadFromFile(path, &cfg); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	if err := applyEnv(&cfg, EnvPrefix); err != nil {
		return nil, err
	}

	if cfg.Remote.Token == "" && cfg.Remote.TokenFile != "" {
		if tok, err := ReadToken(cfg.Remote.TokenFile); err == nil {
			cfg.Remote.Token = tok
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFromFile(path string, target *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read file: %w", err)
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite":
		if strings.TrimSpace(c.Store.Path) == "" {
			return errors.New("config: store.path required for sqlite")
		}
	case "postgres":
		if strings.TrimSpace(c.Store.DSN) == "" {
			return errors.New("config: store.dsn required for postgres")
		}
	default:
		return fmt.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}

	switch c.Cache.Backend {
	case "sqlite":
	case "redis":
		if strings.TrimSpace(c.Cache.RedisAddr) == "" {
			return errors.New("config: cache.redis_addr required for redis backend")
		}
	default:
		return fmt.Errorf("config: unknown cache.backend %q", c.Cache.Backend)
	}

	if c.Remote.TimeoutMs <= 0 {
		return errors.New("config: remote.timeout_ms must be positive")
	}
	if c.Remote.MaxRetries < 0 {
		return errors.New("config: remote.max_retries must not be negative")
	}
	return nil
}

// IsRemote reports whether the CLI talks to an API server instead of the
// local store.
func (c *Config) IsRemote() bool {
	return strings.TrimSpace(c.Remote.URL) != ""
}

// RemoteTimeout returns the per-request timeout of the HTTP client.
func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.Remote.TimeoutMs) * time.Millisecond
}

// StoreTarget returns the path or DSN handed to db.Open.
func (c *Config) StoreTarget() string {
	if c.Store.Driver == "postgres" {
		return c.Store.DSN
	}
	return c.Store.Path
}
