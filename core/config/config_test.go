package config_test

import (
	"testing"
	"time"

	"cohort-copilot/core/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := config.LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "5050", cfg.Server.Port)
	assert.Equal(t, 2, cfg.Supervisor.Workers)
	assert.Equal(t, 4, cfg.Supervisor.Threads)
	assert.Equal(t, 1800*time.Second, cfg.Supervisor.RequestTimeout)
	assert.Equal(t, "/query_tools/preview/", cfg.Upstream.PreviewPath)
	assert.Equal(t, 38306, cfg.Upstream.PageSize)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
	assert.Equal(t, "exports", cfg.Storage.Bucket)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "6060")
	t.Setenv("SUPERVISOR_WORKERS", "3")
	t.Setenv("SUPERVISOR_REQUEST_TIMEOUT", "30s")
	t.Setenv("UPSTREAM_API_BASE", "https://example.org/api/v2/freeze")

	cfg, err := config.LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "6060", cfg.Server.Port)
	assert.Equal(t, 3, cfg.Supervisor.Workers)
	assert.Equal(t, 30*time.Second, cfg.Supervisor.RequestTimeout)
	assert.Equal(t, "https://example.org/api/v2/freeze", cfg.Upstream.APIBase)
}

// The container contract uses the bare PORT variable; it must beat both the
// default and SERVER_PORT.
func TestLoadConfig_PortEnv(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("SERVER_PORT", "6060")

	cfg, err := config.LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Server.Port)
}
