// ABOUTME: Tests for configuration loading and validation
// ABOUTME: Covers env expansion, duration parsing, defaults, and validation rules

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig writes content to a temp file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "berthd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

const validConfig = `
matrix:
  homeserver: "https://matrix.example.org"
  user_id: "@berth:example.org"
  access_token: "syt_secret"
database:
  path: "/var/lib/berth/berth.db"
bootstrap:
  servers:
    - name: "factorio"
      container: "factorio-main"
    - name: "valheim"
  admins:
    - "@ops:example.org"
`

func TestLoad_Valid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "https://matrix.example.org", cfg.Matrix.Homeserver)
	assert.Equal(t, "@berth:example.org", cfg.Matrix.UserID)
	assert.Equal(t, "/var/lib/berth/berth.db", cfg.Database.Path)
	assert.Equal(t, []string{"@ops:example.org"}, cfg.Bootstrap.Admins)
	require.Len(t, cfg.Bootstrap.Servers, 2)
	assert.Equal(t, "factorio-main", cfg.Bootstrap.Servers[0].Container)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, DefaultCommandPrefix, cfg.Matrix.CommandPrefix)
	assert.Equal(t, DefaultOpTimeout, cfg.Docker.OpTimeout)
	assert.Equal(t, DefaultStatusTimeout, cfg.Docker.StatusTimeout)

	// Container defaults to the server name when omitted
	assert.Equal(t, "valheim", cfg.Bootstrap.Servers[1].Container)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("BERTH_TEST_TOKEN", "syt_expanded")

	content := `
matrix:
  homeserver: "https://matrix.example.org"
  user_id: "@berth:example.org"
  access_token: "${BERTH_TEST_TOKEN}"
database:
  path: "/tmp/berth.db"
`
	cfg, err := Load(writeConfig(t, content))
	require.NoError(t, err)
	assert.Equal(t, "syt_expanded", cfg.Matrix.AccessToken)
}

func TestLoad_Durations(t *testing.T) {
	content := validConfig + `
docker:
  op_timeout: "45s"
  status_timeout: "5s"
`
	cfg, err := Load(writeConfig(t, content))
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Docker.OpTimeout)
	assert.Equal(t, 5*time.Second, cfg.Docker.StatusTimeout)
}

func TestLoad_InvalidDuration(t *testing.T) {
	content := validConfig + `
docker:
  op_timeout: "not-a-duration"
`
	_, err := Load(writeConfig(t, content))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op_timeout")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "matrix: [not a mapping"))
	require.Error(t, err)
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing homeserver",
			mutate:  func(c *Config) { c.Matrix.Homeserver = "" },
			wantErr: "matrix.homeserver",
		},
		{
			name:    "missing user id",
			mutate:  func(c *Config) { c.Matrix.UserID = "" },
			wantErr: "matrix.user_id",
		},
		{
			name:    "user id without @",
			mutate:  func(c *Config) { c.Matrix.UserID = "berth:example.org" },
			wantErr: "matrix.user_id",
		},
		{
			name:    "missing access token",
			mutate:  func(c *Config) { c.Matrix.AccessToken = "" },
			wantErr: "matrix.access_token",
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name: "unnamed server",
			mutate: func(c *Config) {
				c.Bootstrap.Servers = append(c.Bootstrap.Servers, ServerEntry{})
			},
			wantErr: "require a name",
		},
		{
			name: "reserved server name",
			mutate: func(c *Config) {
				c.Bootstrap.Servers = append(c.Bootstrap.Servers, ServerEntry{Name: ScopeAll})
			},
			wantErr: "reserved",
		},
		{
			name: "duplicate server name",
			mutate: func(c *Config) {
				c.Bootstrap.Servers = append(c.Bootstrap.Servers, ServerEntry{Name: "factorio"})
			},
			wantErr: "duplicate",
		},
		{
			name: "empty admin identity",
			mutate: func(c *Config) {
				c.Bootstrap.Admins = append(c.Bootstrap.Admins, "")
			},
			wantErr: "bootstrap.admins",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, validConfig))
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
