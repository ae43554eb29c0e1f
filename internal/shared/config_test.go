package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./pubkytree.db" {
			t.Errorf("expected database path ./pubkytree.db, got %s", config.Database.Path)
		}

		if config.Server.Port != 3000 {
			t.Errorf("expected server port 3000, got %d", config.Server.Port)
		}

		if config.Nexus.BaseURL != "https://nexus.pubky.app/v0" {
			t.Errorf("expected nexus base URL https://nexus.pubky.app/v0, got %s", config.Nexus.BaseURL)
		}

		if config.Homeserver.ApprovalTimeout.Duration != 2*time.Minute {
			t.Errorf("expected approval timeout 2m, got %v", config.Homeserver.ApprovalTimeout)
		}

		if config.Cache.Backend != "sqlite" {
			t.Errorf("expected sqlite cache backend, got %s", config.Cache.Backend)
		}

		if err := config.Validate(); err != nil {
			t.Errorf("default config should validate: %v", err)
		}
	})

	t.Run("Paths", func(t *testing.T) {
		config := DefaultConfig()

		if got := config.Homeserver.ProfilePath(); got != "/pub/pubkytree.app/profile.json" {
			t.Errorf("unexpected profile path %s", got)
		}
		if got := config.Homeserver.LinksPath(); got != "/pub/pubkytree.app/links.json" {
			t.Errorf("unexpected links path %s", got)
		}
		if got := config.Server.Addr(); got != "127.0.0.1:3000" {
			t.Errorf("unexpected server addr %s", got)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		defaultConfig := DefaultConfig()
		if config.Database.Path != defaultConfig.Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[database]
path = "/custom/path.db"

[cache]
backend = "redis"
redis_addr = "localhost:6380"

[server]
host = "0.0.0.0"
port = 8080

[nexus]
base_url = "http://localhost:9090/v0"
timeout = "3s"
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Database.Path != "/custom/path.db" {
			t.Errorf("expected database path /custom/path.db, got %s", config.Database.Path)
		}

		if config.Server.Port != 8080 {
			t.Errorf("expected server port 8080, got %d", config.Server.Port)
		}

		if config.Cache.RedisAddr != "localhost:6380" {
			t.Errorf("expected redis addr localhost:6380, got %s", config.Cache.RedisAddr)
		}

		if config.Nexus.Timeout.Duration != 3*time.Second {
			t.Errorf("expected nexus timeout 3s, got %v", config.Nexus.Timeout)
		}

		if config.Homeserver.AppPath != "/pub/pubkytree.app" {
			t.Errorf("unset keys should keep defaults, got app path %q", config.Homeserver.AppPath)
		}
	})

	t.Run("LoadConfig Invalid", func(t *testing.T) {
		tc := []struct {
			name    string
			content string
		}{
			{name: "unknown backend", content: "[cache]\nbackend = \"etcd\"\n"},
			{name: "app path outside pub", content: "[homeserver]\napp_path = \"/private/app\"\n"},
			{name: "bad duration", content: "[nexus]\ntimeout = \"soon\"\n"},
			{name: "bad log level", content: "[log]\nlevel = \"chatty\"\n"},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				configPath := filepath.Join(t.TempDir(), "config.toml")
				if err := os.WriteFile(configPath, []byte(tt.content), 0644); err != nil {
					t.Fatalf("failed to write test config: %v", err)
				}

				if _, err := LoadConfig(configPath); err == nil {
					t.Error("expected error for invalid config")
				}
			})
		}
	})

	t.Run("Validate", func(t *testing.T) {
		config := DefaultConfig()
		config.Cache.Backend = "redis"
		config.Cache.RedisAddr = ""

		if err := config.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("SaveConfig", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		config := DefaultConfig()
		config.Server.Port = 4242

		if err := SaveConfig(configPath, config); err != nil {
			t.Fatalf("failed to save config: %v", err)
		}

		loaded, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load saved config: %v", err)
		}

		if loaded.Server.Port != 4242 {
			t.Errorf("expected port 4242, got %d", loaded.Server.Port)
		}
		if loaded.Homeserver.ApprovalTimeout.Duration != 2*time.Minute {
			t.Errorf("expected approval timeout to survive round trip, got %v", loaded.Homeserver.ApprovalTimeout)
		}
	})
}
