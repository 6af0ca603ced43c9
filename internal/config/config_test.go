package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/objreg/pkg/kobject"
	"github.com/mash-protocol/objreg/pkg/uevent"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, uevent.DefaultMaxVars, cfg.Limits.MaxVars)
	assert.Equal(t, uevent.DefaultBufferSize, cfg.Limits.BufferSize)
	assert.Equal(t, kobject.DefaultMaxNodes, cfg.Registry.MaxNodes)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Helper.Path)
	assert.False(t, cfg.Delivery.Async)
	assert.Equal(t, uevent.DefaultLimits(), cfg.UeventLimits())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "objreg.yaml")
	content := `
helper:
  path: /sbin/hotplug
  timeout: 2s
limits:
  max_vars: 16
delivery:
  async: true
log:
  level: debug
  file: /tmp/events.olog
state:
  file: /tmp/state.json
metrics:
  listen: ":9100"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/sbin/hotplug", cfg.Helper.Path)
	assert.Equal(t, 2*time.Second, cfg.Helper.Timeout)
	assert.Equal(t, 16, cfg.Limits.MaxVars)
	assert.Equal(t, uevent.DefaultBufferSize, cfg.Limits.BufferSize, "unset keys keep defaults")
	assert.True(t, cfg.Delivery.Async)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/tmp/events.olog", cfg.Log.File)
	assert.Equal(t, "/tmp/state.json", cfg.State.File)
	assert.Equal(t, ":9100", cfg.Metrics.Listen)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("OBJREG_LIMITS_BUFFER_SIZE", "4096")
	t.Setenv("OBJREG_DELIVERY_ASYNC", "true")
	t.Setenv("OBJREG_HELPER_TIMEOUT", "500ms")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4096, cfg.Limits.BufferSize)
	assert.True(t, cfg.Delivery.Async)
	assert.Equal(t, 500*time.Millisecond, cfg.Helper.Timeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "helper path at bound",
			mutate: func(c *Config) { c.Helper.Path = "/" + strings.Repeat("x", uevent.MaxHelperPathLen-1) },
			want:   "helper.path",
		},
		{
			name:   "negative timeout",
			mutate: func(c *Config) { c.Helper.Timeout = -time.Second },
			want:   "helper.timeout",
		},
		{
			name:   "zero max vars",
			mutate: func(c *Config) { c.Limits.MaxVars = 0 },
			want:   "limits.max_vars",
		},
		{
			name:   "negative buffer",
			mutate: func(c *Config) { c.Limits.BufferSize = -1 },
			want:   "limits.buffer_size",
		},
		{
			name:   "zero max nodes",
			mutate: func(c *Config) { c.Registry.MaxNodes = 0 },
			want:   "registry.max_nodes",
		},
		{
			name:   "bad level",
			mutate: func(c *Config) { c.Log.Level = "loud" },
			want:   "log.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	require.NoError(t, Defaults().Validate())
}

func TestValidateHelperPathJustUnderBound(t *testing.T) {
	cfg := Defaults()
	cfg.Helper.Path = "/" + strings.Repeat("x", uevent.MaxHelperPathLen-2)
	require.NoError(t, cfg.Validate())
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, l)

	l, err = ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, l)

	_, err = ParseLevel("")
	require.Error(t, err)
}
