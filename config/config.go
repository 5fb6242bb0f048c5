package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the Argus dashboard data service.
type Config struct {
	Wazuh struct {
		Host      string `mapstructure:"host"`
		Port      int    `mapstructure:"port"`
		Username  string `mapstructure:"username"`
		Password  string `mapstructure:"password"`
		VerifySSL bool   `mapstructure:"verify_ssl"`
		// Index is the alert index pattern queried by every dashboard.
		Index string `mapstructure:"index"`
		// MaxAlerts caps the number of hits requested per search.
		MaxAlerts int `mapstructure:"max_alerts"`
		// CacheTTL bounds how long identical search responses are reused.
		CacheTTL time.Duration `mapstructure:"cache_ttl"`
	} `mapstructure:"wazuh"`

	IRIS struct {
		Enabled   bool   `mapstructure:"enabled"`
		BaseURL   string `mapstructure:"base_url"`
		APIKey    string `mapstructure:"api_key"`
		VerifySSL bool   `mapstructure:"verify_ssl"`
	} `mapstructure:"iris"`

	MISP struct {
		Enabled   bool   `mapstructure:"enabled"`
		BaseURL   string `mapstructure:"base_url"`
		APIKey    string `mapstructure:"api_key"`
		VerifySSL bool   `mapstructure:"verify_ssl"`
		// FeedLimit is the number of recent events pulled per refresh.
		FeedLimit int `mapstructure:"feed_limit"`
	} `mapstructure:"misp"`

	Dashboards struct {
		// RefreshInterval drives the pollers (30s in development, 60s in
		// production deployments of the original suite).
		RefreshInterval time.Duration `mapstructure:"refresh_interval"`
		EnableRealtime  bool          `mapstructure:"enable_realtime"`
		// StrictNumericFilters switches the numeric filter operators from
		// "non-numeric coerces to 0" to "fail closed".
		StrictNumericFilters bool `mapstructure:"strict_numeric_filters"`
		PageSizes            struct {
			Alerts      int `mapstructure:"alerts"`
			FIM         int `mapstructure:"fim"`
			ThreatIntel int `mapstructure:"threat_intel"`
			UBA         int `mapstructure:"uba"`
			Cases       int `mapstructure:"cases"`
			Search      int `mapstructure:"search"`
		} `mapstructure:"page_sizes"`
	} `mapstructure:"dashboards"`

	API struct {
		Host           string   `mapstructure:"host"`
		Port           int      `mapstructure:"port"`
		AllowedOrigins []string `mapstructure:"allowed_origins"`
		RateLimit      struct {
			RequestsPerSecond int `mapstructure:"requests_per_second"`
			Burst             int `mapstructure:"burst"`
		} `mapstructure:"rate_limit"`
	} `mapstructure:"api"`

	Redis struct {
		Enabled  bool   `mapstructure:"enabled"`
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
		PoolSize int    `mapstructure:"pool_size"`
		// SnapshotTTL bounds how long a cached dashboard snapshot is
		// considered worth restoring after a restart.
		SnapshotTTL time.Duration `mapstructure:"snapshot_ttl"`
	} `mapstructure:"redis"`

	SQLitePath string `mapstructure:"sqlite_path"`

	Notifications struct {
		WebhookURL string `mapstructure:"webhook_url"`
		// MaxRetained caps the in-memory notification backlog.
		MaxRetained int `mapstructure:"max_retained"`
	} `mapstructure:"notifications"`
}

// LoadConfig reads configuration from config.yaml, falling back to defaults
// and ARGUS_* environment variables.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	viper.SetEnvPrefix("ARGUS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, will use defaults and env vars
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("wazuh.host", "127.0.0.1")
	viper.SetDefault("wazuh.port", 9200)
	viper.SetDefault("wazuh.username", "admin")
	viper.SetDefault("wazuh.verify_ssl", false)
	viper.SetDefault("wazuh.index", "wazuh-alerts-4.x-*")
	viper.SetDefault("wazuh.max_alerts", 1000)
	viper.SetDefault("wazuh.cache_ttl", 5*time.Minute)

	viper.SetDefault("iris.enabled", false)
	viper.SetDefault("iris.verify_ssl", false)

	viper.SetDefault("misp.enabled", false)
	viper.SetDefault("misp.verify_ssl", false)
	viper.SetDefault("misp.feed_limit", 12)

	viper.SetDefault("dashboards.refresh_interval", 30*time.Second)
	viper.SetDefault("dashboards.enable_realtime", true)
	viper.SetDefault("dashboards.strict_numeric_filters", false)
	viper.SetDefault("dashboards.page_sizes.alerts", 25)
	viper.SetDefault("dashboards.page_sizes.fim", 25)
	viper.SetDefault("dashboards.page_sizes.threat_intel", 12)
	viper.SetDefault("dashboards.page_sizes.uba", 20)
	viper.SetDefault("dashboards.page_sizes.cases", 20)
	viper.SetDefault("dashboards.page_sizes.search", 25)

	viper.SetDefault("api.host", "0.0.0.0")
	viper.SetDefault("api.port", 9000)
	viper.SetDefault("api.allowed_origins", []string{"*"})
	viper.SetDefault("api.rate_limit.requests_per_second", 100)
	viper.SetDefault("api.rate_limit.burst", 200)

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.addr", "127.0.0.1:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.snapshot_ttl", 10*time.Minute)

	viper.SetDefault("sqlite_path", "./data/argus.db")

	viper.SetDefault("notifications.max_retained", 200)
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime behavior.
func (c *Config) Validate() error {
	if c.Wazuh.Host == "" {
		return fmt.Errorf("wazuh.host must not be empty")
	}
	if c.Wazuh.Port <= 0 || c.Wazuh.Port > 65535 {
		return fmt.Errorf("wazuh.port %d out of range", c.Wazuh.Port)
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	if c.Dashboards.RefreshInterval < time.Second {
		return fmt.Errorf("dashboards.refresh_interval %s too small (minimum 1s)", c.Dashboards.RefreshInterval)
	}
	if c.IRIS.Enabled && c.IRIS.BaseURL == "" {
		return fmt.Errorf("iris.base_url required when iris is enabled")
	}
	if c.MISP.Enabled && c.MISP.BaseURL == "" {
		return fmt.Errorf("misp.base_url required when misp is enabled")
	}
	for _, size := range []int{
		c.Dashboards.PageSizes.Alerts,
		c.Dashboards.PageSizes.FIM,
		c.Dashboards.PageSizes.ThreatIntel,
		c.Dashboards.PageSizes.UBA,
		c.Dashboards.PageSizes.Cases,
		c.Dashboards.PageSizes.Search,
	} {
		if size <= 0 || size > 1000 {
			return fmt.Errorf("dashboard page sizes must be in (0, 1000], got %d", size)
		}
	}
	return nil
}

// WazuhBaseURL returns the indexer endpoint root.
func (c *Config) WazuhBaseURL() string {
	return fmt.Sprintf("https://%s:%d", c.Wazuh.Host, c.Wazuh.Port)
}
