package config

import (
	"os"
	"path/filepath"
)

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: "1",
		Client: ClientConfig{
			ServerURL: "http://localhost:8787",
			DataDir:   defaultDataDir(),
			Platform:  "mobile",
		},
		Daemon: DaemonConfig{
			DebounceMillis:  500,
			FullSyncSeconds: 300,
		},
		Server: ServerConfig{
			Port:   8787,
			DBPath: filepath.Join(defaultDataDir(), "server.db"),
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".careloop"
	}
	return filepath.Join(home, ".careloop")
}

// WriteDefault writes a commented starter configuration to path.
func WriteDefault(path string) error {
	content := `# careloop configuration
version: "1"

# Device-side settings
client:
  server_url: http://localhost:8787
  # token: ""       # session bearer token (careloop login writes this)
  # user_id: ""
  # data_dir: ~/.careloop
  platform: mobile  # mobile (local-first) or web (passthrough)

# Sync daemon
daemon:
  debounce_millis: 500
  full_sync_seconds: 300

# Reference backend (careloop serve)
server:
  port: 8787
  # db_path: ~/.careloop/server.db
  # tokens:
  #   dev-token: u-1
  # seed_file: ""

# Log rotation (file empty = stderr)
log:
  file: ""
  max_size_mb: 10
  max_backups: 3
  max_age_days: 28
`
	return os.WriteFile(path, []byte(content), 0644)
}
