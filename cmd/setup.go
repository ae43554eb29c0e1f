package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/pubkytree/internal/shared"
)

// Setup creates the configuration file when missing, then initializes the configured cache backend.
//
// For the sqlite backend this creates the database and runs migrations.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	var config *shared.Config
	if _, err := os.Stat(configPath); err == nil {
		if config, err = shared.LoadConfig(configPath); err != nil {
			r.logger.Warn("failed to load config, using defaults", "error", err)
			config = shared.DefaultConfig()
		}
	} else {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
			config = shared.DefaultConfig()
		} else {
			r.logger.Info("config file created", "path", configPath)
			if config, err = shared.LoadConfig(configPath); err != nil {
				r.logger.Warn("failed to load created config, using defaults", "error", err)
				config = shared.DefaultConfig()
			}
		}
	}

	r.config = config
	r.configPath = configPath

	r.logger.Info("initializing local cache", "backend", config.Cache.Backend)
	if _, err := r.openStore(ctx); err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}

	switch config.Cache.Backend {
	case "sqlite":
		r.logger.Infof("setup complete for database: %v", config.Database.Path)
	case "redis":
		r.logger.Infof("setup complete for redis: %v", config.Cache.RedisAddr)
	default:
		r.logger.Info("setup complete (memory cache, nothing is persisted)")
	}

	r.writePlain("✓ Configuration: %s\n", configPath)
	r.writePlainln("Next steps:")
	r.writePlain("1. Run 'pubkytree connect' and approve the request in Pubky Ring\n")
	r.writePlain("2. Run 'pubkytree links add <title> <url>' or 'pubkytree tui'\n")
	return nil
}
