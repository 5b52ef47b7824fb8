package main

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/taskwire/taskwire/internal/config"
	"github.com/taskwire/taskwire/internal/db"
	"github.com/taskwire/taskwire/internal/gateway"
)

const defaultConfigPath = "taskwire.yaml"

// connectFromConfig loads the config and opens the transcript store. The
// schema is migrated on every connect; AutoMigrate is a no-op when current.
func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return nil, nil, err
	}
	return cfg, gormDB, nil
}

// gatewayFromConfig builds a gateway client from the loaded config.
func gatewayFromConfig(cfg *config.Config) (*gateway.Client, error) {
	return gateway.NewClient(gateway.ClientOpts{
		BaseURL:         cfg.Gateway.BaseURL,
		Token:           cfg.Gateway.Token,
		RequestTimeout:  cfg.Gateway.RequestTimeout(),
		ResearchTimeout: cfg.Gateway.ResearchTimeout(),
	})
}
