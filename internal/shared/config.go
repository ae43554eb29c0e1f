package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Log        LogConfig        `toml:"log"`
	Database   DatabaseConfig   `toml:"database"`
	Cache      CacheConfig      `toml:"cache"`
	Homeserver HomeserverConfig `toml:"homeserver"`
	Server     ServerConfig     `toml:"server"`
	Nexus      NexusConfig      `toml:"nexus"`
	Sync       SyncConfig       `toml:"sync"`
}

// LogConfig controls logger verbosity and the TUI log file.
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// DatabaseConfig contains database connection settings for the SQLite cache.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// CacheConfig selects the local cache backend.
type CacheConfig struct {
	Backend   string `toml:"backend"`
	RedisAddr string `toml:"redis_addr"`
	RedisDB   int    `toml:"redis_db"`
	KeyPrefix string `toml:"key_prefix"`
}

// HomeserverConfig contains the application namespace on the remote store.
type HomeserverConfig struct {
	AppPath         string   `toml:"app_path"`
	Capabilities    string   `toml:"capabilities"`
	PublicGateway   string   `toml:"public_gateway"`
	ApprovalTimeout Duration `toml:"approval_timeout"`
}

// ProfilePath is the remote object key holding the profile document.
func (h HomeserverConfig) ProfilePath() string {
	return strings.TrimRight(h.AppPath, "/") + "/profile.json"
}

// LinksPath is the remote object key holding the link list document.
func (h HomeserverConfig) LinksPath() string {
	return strings.TrimRight(h.AppPath, "/") + "/links.json"
}

// ServerConfig contains HTTP server settings for the approval callback and the public page.
type ServerConfig struct {
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	PublicBaseURL string `toml:"public_base_url"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// NexusConfig contains social index API settings.
type NexusConfig struct {
	BaseURL       string   `toml:"base_url"`
	StaticBaseURL string   `toml:"static_base_url"`
	RateLimit     float64  `toml:"rate_limit"`
	Timeout       Duration `toml:"timeout"`
}

// SyncConfig toggles engine behaviour.
type SyncConfig struct {
	AutoImport   bool `toml:"auto_import"`
	SeedDefaults bool `toml:"seed_defaults"`
}

// Duration wraps [time.Duration] so it can be written as "2m" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q", ErrInvalidConfig, string(text))
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// Validate checks the fields the engine cannot run without.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case "sqlite", "redis", "memory":
	default:
		return fmt.Errorf("%w: unknown cache backend %q", ErrInvalidConfig, c.Cache.Backend)
	}
	if c.Cache.Backend == "sqlite" && c.Database.Path == "" {
		return fmt.Errorf("%w: database.path is required for the sqlite cache", ErrInvalidConfig)
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		return fmt.Errorf("%w: cache.redis_addr is required for the redis cache", ErrInvalidConfig)
	}
	if !strings.HasPrefix(c.Homeserver.AppPath, "/pub/") {
		return fmt.Errorf("%w: homeserver.app_path must live under /pub/", ErrInvalidConfig)
	}
	if c.Nexus.BaseURL == "" {
		return fmt.Errorf("%w: nexus.base_url is required", ErrInvalidConfig)
	}
	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig writes config to path as TOML.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
