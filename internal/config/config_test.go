package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tastythames/credcheck/internal/config"
	"github.com/tastythames/credcheck/internal/log"
	"github.com/tastythames/credcheck/internal/validator"
)

func TestDefaults(t *testing.T) {
	c, err := config.Load(config.New())
	require.NoError(t, err)
	require.Equal(t, ":9222", c.Listen)
	require.Equal(t, "smtp", c.Protocol)
	require.Equal(t, 10*time.Second, c.Timeout)
	require.Equal(t, 10, c.MaxWorkers)
	require.Zero(t, c.GlobalLimit)
	require.Equal(t, "json", c.LogFormat)
	require.Zero(t, c.ScheduleInterval)
	require.Equal(t, "scheduler", c.ScheduleOwner)
	// without an inventory file targets come from the database
	require.Empty(t, c.Inventory)
	require.Equal(t, "credcheck.db", c.Database)
}

func TestInventoryWithoutDatabase(t *testing.T) {
	v := config.New()
	v.Set(config.KeyInventory, "targets.yaml")
	v.Set(config.KeyDatabase, "")
	c, err := config.Load(v)
	require.NoError(t, err)
	require.Equal(t, "targets.yaml", c.Inventory)
	require.Empty(t, c.Database)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CREDCHECK_PROTOCOL", "ssh")
	t.Setenv("CREDCHECK_TIMEOUT", "3s")
	t.Setenv("CREDCHECK_MAX_WORKERS", "4")
	t.Setenv("CREDCHECK_SMTP_ALLOW_PLAIN", "true")

	c, err := config.Load(config.New())
	require.NoError(t, err)
	require.Equal(t, "ssh", c.Protocol)
	require.Equal(t, 3*time.Second, c.Timeout)
	require.Equal(t, 4, c.MaxWorkers)
	require.True(t, c.SMTPAllowPlain)

	vc := c.ValidatorConfig()
	require.Equal(t, validator.Config{Timeout: 3 * time.Second, AllowPlain: true}, vc)
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credcheck.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: 127.0.0.1:8080\nglobal_limit: 25\nntfy_url: https://ntfy.sh\n"), 0o600))

	v := config.New()
	require.NoError(t, config.ReadFile(v, path))
	c, err := config.Load(v)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8080", c.Listen)
	require.Equal(t, 25, c.GlobalLimit)
	require.Equal(t, "https://ntfy.sh", c.NtfyURL)

	require.NoError(t, config.ReadFile(config.New(), ""))
	require.Error(t, config.ReadFile(config.New(), filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestValidate(t *testing.T) {
	base := func() config.Config {
		c, err := config.Load(config.New())
		require.NoError(t, err)
		return c
	}

	tests := []struct {
		scenario string
		mutate   func(*config.Config)
		wantErr  string
	}{
		{"unknown protocol", func(c *config.Config) { c.Protocol = "ftp" }, "unsupported protocol"},
		{"zero timeout", func(c *config.Config) { c.Timeout = 0 }, "timeout must be positive"},
		{"zero workers", func(c *config.Config) { c.MaxWorkers = 0 }, "max_workers must be at least 1"},
		{"negative limit", func(c *config.Config) { c.GlobalLimit = -1 }, "global_limit must not be negative"},
		{"negative schedule", func(c *config.Config) { c.ScheduleInterval = -time.Second }, "schedule_interval and schedule_jitter must not be negative"},
		{"log format", func(c *config.Config) { c.LogFormat = "xml" }, "log_format must be json or text"},
	}
	for _, tt := range tests {
		t.Run(tt.scenario, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			require.ErrorContains(t, c.Validate(), tt.wantErr)
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("CREDCHECK_API_KEY=from-dotenv\n"), 0o600))

	t.Setenv("CREDCHECK_API_KEY", "")
	os.Unsetenv("CREDCHECK_API_KEY")

	require.True(t, config.LoadEnvFile(log.Discard(), path))
	require.False(t, config.LoadEnvFile(log.Discard(), filepath.Join(dir, "missing.env")))

	c, err := config.Load(config.New())
	require.NoError(t, err)
	require.Equal(t, "from-dotenv", c.APIKey)
}
