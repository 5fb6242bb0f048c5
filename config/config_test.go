package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadDefaults(t *testing.T) *Config {
	t.Helper()
	viper.Reset()
	cfg, err := LoadConfig()
	require.NoError(t, err)
	return cfg
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := loadDefaults(t)

	assert.Equal(t, "127.0.0.1", cfg.Wazuh.Host)
	assert.Equal(t, 9200, cfg.Wazuh.Port)
	assert.Equal(t, "wazuh-alerts-4.x-*", cfg.Wazuh.Index)
	assert.Equal(t, 5*time.Minute, cfg.Wazuh.CacheTTL)
	assert.Equal(t, 30*time.Second, cfg.Dashboards.RefreshInterval)
	assert.Equal(t, 9000, cfg.API.Port)
	assert.False(t, cfg.Dashboards.StrictNumericFilters)
	assert.Equal(t, 25, cfg.Dashboards.PageSizes.Alerts)
	assert.Equal(t, 12, cfg.Dashboards.PageSizes.ThreatIntel)
	assert.Equal(t, 20, cfg.Dashboards.PageSizes.UBA)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("ARGUS_WAZUH_HOST", "indexer.internal")
	t.Setenv("ARGUS_API_PORT", "9100")

	cfg := loadDefaults(t)

	assert.Equal(t, "indexer.internal", cfg.Wazuh.Host)
	assert.Equal(t, 9100, cfg.API.Port)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name:   "Empty wazuh host",
			mutate: func(c *Config) { c.Wazuh.Host = "" },
		},
		{
			name:   "Negative API port",
			mutate: func(c *Config) { c.API.Port = -1 },
		},
		{
			name:   "Sub-second refresh interval",
			mutate: func(c *Config) { c.Dashboards.RefreshInterval = 100 * time.Millisecond },
		},
		{
			name:   "IRIS enabled without base URL",
			mutate: func(c *Config) { c.IRIS.Enabled = true; c.IRIS.BaseURL = "" },
		},
		{
			name:   "Zero page size",
			mutate: func(c *Config) { c.Dashboards.PageSizes.FIM = 0 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadDefaults(t)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWazuhBaseURL(t *testing.T) {
	cfg := loadDefaults(t)
	assert.Equal(t, "https://127.0.0.1:9200", cfg.WazuhBaseURL())
}
