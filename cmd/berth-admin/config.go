// ABOUTME: Config loading for berth-admin
// ABOUTME: TOML file with environment variable expansion for the database path

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/BurntSushi/toml"
)

// Config holds the admin CLI settings. The CLI operates directly on the
// daemon's database, so the path must match what berthd uses.
type Config struct {
	DatabasePath string `toml:"database_path"`
}

// getConfigPath returns the path to the admin config file.
// Priority: BERTH_ADMIN_CONFIG env var > XDG_CONFIG_HOME/berth/admin.toml > ~/.config/berth/admin.toml
func getConfigPath() string {
	if envPath := os.Getenv("BERTH_ADMIN_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "admin.toml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "berth", "admin.toml")
}

// loadConfig reads the TOML config. BERTH_DB overrides the configured
// database path, and a missing config file is fine when the override is set.
func loadConfig() (*Config, error) {
	var cfg Config

	path := getConfigPath()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		expanded := expandEnvVars(string(data))
		if err := toml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// fall through to the env override
	default:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if dbPath := os.Getenv("BERTH_DB"); dbPath != "" {
		cfg.DatabasePath = dbPath
	}

	if cfg.DatabasePath == "" {
		return nil, fmt.Errorf("no database path: set database_path in %s or the BERTH_DB environment variable", path)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with environment variable
// values. Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
