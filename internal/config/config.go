// ABOUTME: Configuration loading and parsing for berthd
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ScopeAll is the server name reserved for fleet-wide capability grants.
const ScopeAll = "*"

// Config represents the complete berthd configuration
type Config struct {
	Matrix    MatrixConfig    `yaml:"matrix"`
	Docker    DockerConfig    `yaml:"docker"`
	Database  DatabaseConfig  `yaml:"database"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// MatrixConfig holds Matrix transport configuration
type MatrixConfig struct {
	Homeserver    string   `yaml:"homeserver"`
	UserID        string   `yaml:"user_id"`
	AccessToken   string   `yaml:"access_token"`
	RecoveryKey   string   `yaml:"recovery_key"` // optional, enables E2EE cross-signing
	CommandPrefix string   `yaml:"command_prefix"`
	AllowedRooms  []string `yaml:"allowed_rooms"`
}

// DockerConfig holds container engine configuration
type DockerConfig struct {
	Host string `yaml:"host"` // empty = DOCKER_HOST / default socket

	OpTimeout     time.Duration `yaml:"-"`
	StatusTimeout time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	OpTimeoutRaw     string `yaml:"op_timeout"`
	StatusTimeoutRaw string `yaml:"status_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// BootstrapConfig holds the permission state seeded at startup: the set of
// servers known to the fleet and the identities holding the admin role.
// Grants live in the database and are managed at runtime.
type BootstrapConfig struct {
	Servers []ServerEntry `yaml:"servers"`
	Admins  []string      `yaml:"admins"`
}

// ServerEntry maps a logical server name to a container reference.
// If Container is empty the server name is used as the container name.
type ServerEntry struct {
	Name      string `yaml:"name"`
	Container string `yaml:"container"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default timeouts for container engine calls.
const (
	DefaultOpTimeout     = 30 * time.Second
	DefaultStatusTimeout = 10 * time.Second
)

// DefaultCommandPrefix is used when matrix.command_prefix is not set.
const DefaultCommandPrefix = "!"

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
// Any failure here is fatal to startup: berthd must not serve commands
// against an unknown or partial permission state.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in optional fields that were left unset.
func applyDefaults(cfg *Config) {
	if cfg.Matrix.CommandPrefix == "" {
		cfg.Matrix.CommandPrefix = DefaultCommandPrefix
	}
	if cfg.Docker.OpTimeout == 0 {
		cfg.Docker.OpTimeout = DefaultOpTimeout
	}
	if cfg.Docker.StatusTimeout == 0 {
		cfg.Docker.StatusTimeout = DefaultStatusTimeout
	}
	for i := range cfg.Bootstrap.Servers {
		if cfg.Bootstrap.Servers[i].Container == "" {
			cfg.Bootstrap.Servers[i].Container = cfg.Bootstrap.Servers[i].Name
		}
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Matrix.Homeserver == "" {
		return fmt.Errorf("matrix.homeserver is required")
	}
	if _, err := url.Parse(c.Matrix.Homeserver); err != nil {
		return fmt.Errorf("matrix.homeserver is not a valid URL: %w", err)
	}
	if c.Matrix.UserID == "" {
		return fmt.Errorf("matrix.user_id is required")
	}
	if !strings.HasPrefix(c.Matrix.UserID, "@") {
		return fmt.Errorf("matrix.user_id must be a full Matrix user ID (got %q)", c.Matrix.UserID)
	}
	if c.Matrix.AccessToken == "" {
		return fmt.Errorf("matrix.access_token is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	seen := make(map[string]bool, len(c.Bootstrap.Servers))
	for _, srv := range c.Bootstrap.Servers {
		if srv.Name == "" {
			return fmt.Errorf("bootstrap.servers entries require a name")
		}
		if srv.Name == ScopeAll {
			return fmt.Errorf("server name %q is reserved for fleet-wide grants", ScopeAll)
		}
		if seen[srv.Name] {
			return fmt.Errorf("duplicate server name %q in bootstrap.servers", srv.Name)
		}
		seen[srv.Name] = true
	}

	for _, admin := range c.Bootstrap.Admins {
		if admin == "" {
			return fmt.Errorf("bootstrap.admins entries must not be empty")
		}
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Docker.OpTimeoutRaw != "" {
		cfg.Docker.OpTimeout, err = time.ParseDuration(cfg.Docker.OpTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing op_timeout %q: %w", cfg.Docker.OpTimeoutRaw, err)
		}
	}

	if cfg.Docker.StatusTimeoutRaw != "" {
		cfg.Docker.StatusTimeout, err = time.ParseDuration(cfg.Docker.StatusTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing status_timeout %q: %w", cfg.Docker.StatusTimeoutRaw, err)
		}
	}

	return nil
}
