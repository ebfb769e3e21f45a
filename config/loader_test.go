package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "gpt-4o", cfg.Agent.Model)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 1024, cfg.Channel.SnapshotCapacity)
	assert.False(t, cfg.Database.Enabled)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  http_port: 9000
browser:
  headless: false
  viewport_width: 1280
channel:
  snapshot_ttl: 10m
database:
  enabled: true
  driver: sqlite
  name: ":memory:"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 1280, cfg.Browser.ViewportWidth)
	assert.Equal(t, 10*time.Minute, cfg.Channel.SnapshotTTL)
	assert.Equal(t, "sqlite", cfg.Database.Driver)

	// Untouched sections keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 1080, cfg.Browser.ViewportHeight)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_port: 9000\n"), 0o600))

	t.Setenv("CANVASFLOW_SERVER_HTTP_PORT", "9100")
	t.Setenv("CANVASFLOW_AGENT_MODEL", "gpt-4o-mini")
	t.Setenv("CANVASFLOW_BROWSER_TIMEOUT", "45s")
	t.Setenv("CANVASFLOW_LLM_RATE_LIMIT_RPS", "2.5")
	t.Setenv("CANVASFLOW_LOG_OUTPUT_PATHS", "stdout, /var/log/canvasflow.log")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.HTTPPort)
	assert.Equal(t, "gpt-4o-mini", cfg.Agent.Model)
	assert.Equal(t, 45*time.Second, cfg.Browser.Timeout)
	assert.Equal(t, 2.5, cfg.LLM.RateLimitRPS)
	assert.Equal(t, []string{"stdout", "/var/log/canvasflow.log"}, cfg.Log.OutputPaths)
}

func TestLoad_CustomEnvPrefix(t *testing.T) {
	t.Setenv("CF_SERVER_HTTP_PORT", "7070")

	cfg, err := NewLoader().WithEnvPrefix("CF").Load()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.HTTPPort)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoad_MalformedYAMLFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o600))

	_, err := NewLoader().WithConfigPath(path).Load()
	assert.Error(t, err)
}

func TestLoad_InvalidEnvValueFails(t *testing.T) {
	t.Setenv("CANVASFLOW_SERVER_HTTP_PORT", "not-a-number")

	_, err := NewLoader().Load()
	assert.Error(t, err)
}

func TestLoad_ValidatorRejects(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(c *Config) error { return c.Validate() }).
		Load()
	require.NoError(t, err)

	_, err = NewLoader().
		WithValidator(func(c *Config) error {
			c.Server.HTTPPort = 0
			return c.Validate()
		}).
		Load()
	assert.ErrorContains(t, err, "config validation failed")
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Browser.ViewportWidth = 0
	assert.ErrorContains(t, cfg.Validate(), "viewport")

	cfg = DefaultConfig()
	cfg.Channel.SnapshotCapacity = 0
	assert.ErrorContains(t, cfg.Validate(), "snapshot_capacity")

	cfg = DefaultConfig()
	cfg.Database.Enabled = true
	cfg.Database.Driver = "oracle"
	assert.ErrorContains(t, cfg.Validate(), "unsupported database driver")
}

func TestDatabaseDSN(t *testing.T) {
	pg := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", Name: "canvasflow", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=canvasflow sslmode=disable", pg.DSN())

	my := DatabaseConfig{Driver: "mysql", Host: "db", Port: 3306, User: "u", Password: "p", Name: "canvasflow"}
	assert.Equal(t, "u:p@tcp(db:3306)/canvasflow?parseTime=true", my.DSN())

	lite := DatabaseConfig{Driver: "sqlite", Name: "state.db"}
	assert.Equal(t, "state.db", lite.DSN())

	unknown := DatabaseConfig{Driver: "oracle"}
	assert.Empty(t, unknown.DSN())
}
