package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load loads and merges configuration from the global config file, the
// working directory, and environment variables
func Load() (*Config, error) {
	cfg := DefaultConfig()

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, nil // Return defaults if no home dir
	}

	// Load global config first
	globalPath := filepath.Join(home, ".careloop", "config.yaml")
	if err := loadFile(globalPath, cfg); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	// Load working-directory config (overrides global)
	cwd, err := os.Getwd()
	if err == nil {
		localPath := filepath.Join(cwd, "careloop.yaml")
		if err := loadFile(localPath, cfg); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// LoadFile loads one explicit config file over the defaults,
// still honoring environment overrides.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := loadFile(path, cfg); err != nil {
		return nil, err
	}
	applyEnv(cfg)
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return err
	}

	return v.Unmarshal(cfg)
}

// applyEnv overrides the settings that make sense per-session.
func applyEnv(cfg *Config) {
	if v := os.Getenv("CARELOOP_SERVER_URL"); v != "" {
		cfg.Client.ServerURL = v
	}
	if v := os.Getenv("CARELOOP_TOKEN"); v != "" {
		cfg.Client.Token = v
	}
	if v := os.Getenv("CARELOOP_USER_ID"); v != "" {
		cfg.Client.UserID = v
	}
	if v := os.Getenv("CARELOOP_DATA_DIR"); v != "" {
		cfg.Client.DataDir = v
	}
	if v := os.Getenv("CARELOOP_PLATFORM"); v != "" {
		cfg.Client.Platform = strings.ToLower(v)
	}
}

// DebounceInterval returns the daemon debounce as a duration.
func (c *Config) DebounceInterval() time.Duration {
	return time.Duration(c.Daemon.DebounceMillis) * time.Millisecond
}

// FullSyncInterval returns the periodic sync interval as a duration.
func (c *Config) FullSyncInterval() time.Duration {
	return time.Duration(c.Daemon.FullSyncSeconds) * time.Second
}

// Save writes cfg to path, creating the parent directory if needed.
// Used by careloop login to persist session settings.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// GlobalConfigPath returns the path to the global config file
func GlobalConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".careloop", "config.yaml")
}
