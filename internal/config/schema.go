// Package config loads the careloop configuration from the global
// config file, the working directory, and CARELOOP_* environment
// variables, in increasing precedence.
package config

// Config represents the full careloop configuration
type Config struct {
	Version string `yaml:"version" mapstructure:"version"`

	// Device-side settings
	Client ClientConfig `yaml:"client" mapstructure:"client"`

	// Sync daemon settings
	Daemon DaemonConfig `yaml:"daemon" mapstructure:"daemon"`

	// Reference backend settings
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Log file settings
	Log LogConfig `yaml:"log" mapstructure:"log"`
}

// ClientConfig holds the device-side settings
type ClientConfig struct {
	// ServerURL is the backend's HTTP base URL
	ServerURL string `yaml:"server_url" mapstructure:"server_url"`

	// Token is the session bearer token
	Token string `yaml:"token" mapstructure:"token"`

	// UserID is the signed-in user
	UserID string `yaml:"user_id" mapstructure:"user_id"`

	// DataDir is where the local stores and key live
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// Platform selects the storage implementation: mobile or web
	Platform string `yaml:"platform" mapstructure:"platform"`
}

// DaemonConfig configures the sync daemon
type DaemonConfig struct {
	// DebounceMillis is the quiet period before a triggered sync runs
	DebounceMillis int `yaml:"debounce_millis" mapstructure:"debounce_millis"`

	// FullSyncSeconds is the periodic safety-net sync interval
	FullSyncSeconds int `yaml:"full_sync_seconds" mapstructure:"full_sync_seconds"`
}

// ServerConfig configures the reference backend
type ServerConfig struct {
	// Port to listen on (0 picks a free port)
	Port int `yaml:"port" mapstructure:"port"`

	// DBPath is the SQLite database file
	DBPath string `yaml:"db_path" mapstructure:"db_path"`

	// Tokens maps bearer tokens to user ids
	Tokens map[string]string `yaml:"tokens" mapstructure:"tokens"`

	// SeedFile optionally loads tasks at startup
	SeedFile string `yaml:"seed_file" mapstructure:"seed_file"`
}

// LogConfig configures rotating file logging. File empty means stderr.
type LogConfig struct {
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
}
