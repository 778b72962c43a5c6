package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port        int      `yaml:"port"`
		CORSOrigins []string `yaml:"cors_origins"`
		RateLimit   struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		Schedule      string `yaml:"schedule"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Catalog struct {
		ProvidersPath   string `yaml:"providers_path"`
		ReloadSeconds   int    `yaml:"reload_seconds"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"catalog"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Booking struct {
		Location              string `yaml:"location"`
		SessionTimeoutMinutes int    `yaml:"session_timeout_minutes"`
		CleanupSchedule       string `yaml:"cleanup_schedule"`
		HoldTTLMinutes        int    `yaml:"hold_ttl_minutes"`
		PaymentDelayMillis    int    `yaml:"payment_delay_ms"`
	} `yaml:"booking"`

	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/guardslot.db"
	}
	if c.Backup.Schedule == "" {
		c.Backup.Schedule = "@daily"
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "data/backups"
	}
	if c.Catalog.ProvidersPath == "" {
		c.Catalog.ProvidersPath = "configs/providers.yaml"
	}
	if c.Booking.CleanupSchedule == "" {
		c.Booking.CleanupSchedule = "@every 5m"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Location resolves the booking time zone; unknown names fall back to Local.
func (c *Config) Location() *time.Location {
	if c.Booking.Location == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Booking.Location)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c *Config) SessionTimeout() time.Duration {
	if c.Booking.SessionTimeoutMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Booking.SessionTimeoutMinutes) * time.Minute
}

func (c *Config) HoldTTL() time.Duration {
	if c.Booking.HoldTTLMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.Booking.HoldTTLMinutes) * time.Minute
}

func (c *Config) PaymentDelay() time.Duration {
	if c.Booking.PaymentDelayMillis < 0 {
		return 0
	}
	return time.Duration(c.Booking.PaymentDelayMillis) * time.Millisecond
}

func (c *Config) CatalogReloadInterval() time.Duration {
	if c.Catalog.ReloadSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Catalog.ReloadSeconds) * time.Second
}

func (c *Config) CatalogCacheTTL() time.Duration {
	if c.Catalog.CacheTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Catalog.CacheTTLSeconds) * time.Second
}

// RateLimit returns requests per second and burst for the API limiter.
func (c *Config) RateLimit() (float64, int) {
	rps := c.Server.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := c.Server.RateLimit.Burst
	if burst <= 0 {
		burst = 20
	}
	return rps, burst
}
