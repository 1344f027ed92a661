package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const defaultListenAddr = "127.0.0.1:48713"

// simConfig holds the simulated agent's configuration.
type simConfig struct {
	ListenAddr     string        `mapstructure:"listen-addr"`
	ScenarioPath   string        `mapstructure:"scenario"`
	StatusInterval time.Duration `mapstructure:"status-interval"`
}

func loadSimConfig(configPath string) (simConfig, error) {
	var cfg simConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("LASERSELL_SIM")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("listen-addr", defaultListenAddr)
	v.SetDefault("scenario", "")
	v.SetDefault("status-interval", 30*time.Second)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "lasersell", "sim.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}

	if cfg.StatusInterval <= 0 {
		return cfg, fmt.Errorf("invalid status-interval: %v", cfg.StatusInterval)
	}

	return cfg, nil
}
