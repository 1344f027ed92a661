package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lasersell/viewer/internal/credstore"
	"github.com/lasersell/viewer/internal/model"
)

// cliConfig holds the viewer's configuration.
type cliConfig struct {
	AgentURL       string        `mapstructure:"agent-url"`
	CredentialPath string        `mapstructure:"credential-path"`
	WaitBudget     time.Duration `mapstructure:"wait-budget"`
	BackoffFloor   time.Duration `mapstructure:"backoff-floor"`
	BackoffCeiling time.Duration `mapstructure:"backoff-ceiling"`
	RequestTimeout time.Duration `mapstructure:"request-timeout"`
}

func loadCLIConfig(configPath string) (cliConfig, error) {
	var cfg cliConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	credPath, err := credstore.DefaultPath()
	if err != nil {
		return cfg, err
	}

	v := viper.New()
	v.SetEnvPrefix("LASERSELL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("agent-url", "http://127.0.0.1:48713")
	v.SetDefault("credential-path", credPath)
	v.SetDefault("wait-budget", model.DefaultWaitBudget)
	v.SetDefault("backoff-floor", model.DefaultBackoffFloor)
	v.SetDefault("backoff-ceiling", model.DefaultBackoffCeiling)
	v.SetDefault("request-timeout", model.DefaultRequestTimeout)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "lasersell", "config.yml"))
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

	if cfg.BackoffFloor <= 0 || cfg.BackoffCeiling < cfg.BackoffFloor {
		return cfg, fmt.Errorf("invalid backoff range: floor %v, ceiling %v", cfg.BackoffFloor, cfg.BackoffCeiling)
	}
	if cfg.WaitBudget <= 0 {
		return cfg, fmt.Errorf("invalid wait-budget: %v", cfg.WaitBudget)
	}

	return cfg, nil
}
