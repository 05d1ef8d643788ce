// Package config loads the fleet server's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPListenAddress string `yaml:"httpListenAddress"`
	HTTPListenPort    int    `yaml:"httpListenPort"`

	StoragePath string `yaml:"storagePath"`

	// Path of the bridge config document the dashboard edits, and the
	// directory backups land in.
	BridgeConfigPath string `yaml:"bridgeConfigPath"`
	BackupDir        string `yaml:"backupDir"`

	UpdateFeedURL       string        `yaml:"updateFeedUrl"`
	UpdateCheckInterval time.Duration `yaml:"updateCheckInterval"`

	CORSAllowedOrigins []string `yaml:"corsAllowedOrigins"`
}

func Default() Config {
	return Config{
		HTTPListenAddress:   "127.0.0.1",
		HTTPListenPort:      8087,
		StoragePath:         "./bridgefleet-data",
		BridgeConfigPath:    "./serialbridge.json",
		BackupDir:           "./serialbridge-backups",
		UpdateCheckInterval: 6 * time.Hour,
		CORSAllowedOrigins:  []string{"http://localhost:5173"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults
// unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(body, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.UpdateCheckInterval <= 0 {
		return cfg, fmt.Errorf("updateCheckInterval must be positive")
	}
	return cfg, nil
}
