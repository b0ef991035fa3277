package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faradayfan/dedicated-server-manager/internal/config"
	"github.com/faradayfan/dedicated-server-manager/internal/settings"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(t.TempDir(), "")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "data", cfg.Manager.DataDir)
	assert.Equal(t, 5*time.Second, cfg.Manager.PollInterval)
	assert.Equal(t, time.Minute, cfg.Manager.StopTimeout)
	assert.Equal(t, "127.0.0.1:8080", cfg.API.Addr)
	assert.Empty(t, cfg.API.APIKey)
	assert.Equal(t, "GameUserSettings.ini", cfg.Profiles.ConfigFile)
	assert.False(t, cfg.Profiles.Strict)
	assert.Equal(t, settings.Lenient, cfg.Mode())
	assert.Contains(t, cfg.Game.ServerExe, "{{.install_dir}}")

	opts := cfg.ManagerOptions()
	assert.Equal(t, 30*time.Second, opts.PlayerPollInterval)
	assert.Equal(t, 10*time.Second, opts.RconTimeout)
}

func TestLoad_EnvironmentAndDotenv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MANAGER_POLL_INTERVAL", "2s")
	t.Setenv("PROFILES_STRICT", "true")
	// .env overrides the environment
	t.Setenv("API_ADDR", "0.0.0.0:1")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("API_ADDR=0.0.0.0:9090\nAPI_API_KEY=abc\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("API_API_KEY") })

	cfg, err := config.Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Manager.PollInterval)
	assert.True(t, cfg.Profiles.Strict)
	assert.Equal(t, settings.Strict, cfg.Mode())
	assert.Equal(t, "0.0.0.0:9090", cfg.API.Addr)
	assert.Equal(t, "abc", cfg.API.APIKey)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "gsm.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
manager:
  data_dir: /var/lib/gsm
  stop_timeout: 90s
game:
  rcon_host: 10.0.0.2
log:
  format: console
`), 0o644))

	cfg, err := config.Load(dir, file)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/gsm", cfg.Manager.DataDir)
	assert.Equal(t, 90*time.Second, cfg.Manager.StopTimeout)
	assert.Equal(t, "10.0.0.2", cfg.Game.RconHost)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 5*time.Second, cfg.Manager.ProcessInterval)

	_, err = config.Load(dir, filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_Catalog(t *testing.T) {
	cfg, err := config.Load(t.TempDir(), "")
	require.NoError(t, err)
	c, err := cfg.Catalog()
	require.NoError(t, err)
	assert.Equal(t, settings.BuiltIn().Len(), c.Len())

	user := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(user, []byte(`
settings:
  - name: CustomRule
    kind: bool
    default: true
    section: ServerSettings
`), 0o644))
	cfg.Profiles.Catalog = user
	c, err = cfg.Catalog()
	require.NoError(t, err)
	s, ok := c.Lookup("customrule")
	require.True(t, ok)
	assert.Equal(t, settings.Bool(true), s.Default)
}

func TestValidate(t *testing.T) {
	cfg, err := config.Load(t.TempDir(), "")
	require.NoError(t, err)
	cfg.API.Addr = ""
	assert.Error(t, cfg.Validate())
}
