package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8400", cfg.ListenAddr)
	assert.Equal(t, 2*time.Second, cfg.ReconcileInterval.Duration)
	assert.Equal(t, 3, cfg.DegradedAfter)
	assert.Equal(t, 30000, cfg.ExternalPortMin)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strata.toml")
	content := `
data_dir = "/tmp/strata-test"
listen_addr = ":9999"
reconcile_interval = "500ms"
backoff_initial = "100ms"
backoff_max = "5s"
degraded_after = 10
log_level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/strata-test", cfg.DataDir)
	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, 500*time.Millisecond, cfg.ReconcileInterval.Duration)
	assert.Equal(t, 100*time.Millisecond, cfg.BackoffInitial.Duration)
	assert.Equal(t, 10, cfg.DegradedAfter)
	assert.Equal(t, "debug", cfg.LogLevel)
	// Untouched fields keep defaults.
	assert.Equal(t, time.Second, cfg.MaterializeInterval.Duration)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"inverted port range", func(c *Config) { c.ExternalPortMin = 32000; c.ExternalPortMax = 31000 }},
		{"port above 65535", func(c *Config) { c.ExternalPortMax = 70000 }},
		{"zero degraded threshold", func(c *Config) { c.DegradedAfter = 0 }},
		{"backoff max below initial", func(c *Config) {
			c.BackoffInitial = duration{10 * time.Second}
			c.BackoffMax = duration{time.Second}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
