package config

import (
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Upstream   UpstreamConfig   `yaml:"upstream"`
	Timer      TimerConfig      `yaml:"timer"`
	Booking    BookingConfig    `yaml:"booking"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Cache      CacheConfig      `yaml:"cache"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	CacheTTLSeconds int           `yaml:"cache_ttl_seconds"`
	CacheTTL        time.Duration `yaml:"-"`

	// RequestIPHeader names a header carrying the client address when the
	// server runs behind a proxy, e.g. CF-Connecting-IP.
	RequestIPHeader string `yaml:"request_ip_header"`
	// AllowedOrigins lists the page origins allowed by CORS; empty allows any.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// UpstreamConfig describes the remote mentorship booking API.
type UpstreamConfig struct {
	BaseURL         string        `yaml:"base_url"`
	Token           string        `yaml:"token"`
	HTTPProxy       string        `yaml:"http_proxy"`
	TimeoutSeconds  int           `yaml:"timeout_seconds"`
	Timeout         time.Duration `yaml:"-"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
}

// TimerConfig holds the defaults for session countdowns.
type TimerConfig struct {
	DefaultThresholds []int `yaml:"default_thresholds"`
	// RetentionSeconds keeps expired timers readable; -1 drops them on expiry.
	RetentionSeconds int           `yaml:"retention_seconds"`
	Retention        time.Duration `yaml:"-"`
}

// BookingConfig controls how long booking flows are kept in memory.
type BookingConfig struct {
	FinishedFlowTTLMinutes int           `yaml:"finished_flow_ttl_minutes"`
	FinishedFlowTTL        time.Duration `yaml:"-"`
	IdleFlowTTLMinutes     int           `yaml:"idle_flow_ttl_minutes"`
	IdleFlowTTL            time.Duration `yaml:"-"`
}

// MonitorConfig controls the call monitor that starts timers for ongoing calls.
type MonitorConfig struct {
	Enabled         bool          `yaml:"enabled"`
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"`
	WarningSeconds  int           `yaml:"warning_seconds"`
	Timezone        string        `yaml:"timezone"`
}

// CacheConfig controls the slot-list cache. An empty RedisAddr selects the in-memory cache.
type CacheConfig struct {
	SlotTTLSeconds int           `yaml:"slot_ttl_seconds"`
	SlotTTL        time.Duration `yaml:"-"`
	RedisAddr      string        `yaml:"redis_addr"`
	RedisPassword  string        `yaml:"redis_password"`
	RedisDB        int           `yaml:"redis_db"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// LogConfig selects the logger flavour.
type LogConfig struct {
	Env   string `yaml:"env"`
	Level string `yaml:"level"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("BUDDY_UPSTREAM_TOKEN"); v != "" {
		cfg.Upstream.Token = v
	}
	if v := os.Getenv("BUDDY_UPSTREAM_BASE_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := os.Getenv("BUDDY_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 20
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 300
	}
	cfg.Server.CacheTTL = time.Duration(cfg.Server.CacheTTLSeconds) * time.Second

	if cfg.Upstream.TimeoutSeconds <= 0 {
		cfg.Upstream.TimeoutSeconds = 15
	}
	cfg.Upstream.Timeout = time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second
	if cfg.Upstream.RateLimitPerSec <= 0 {
		cfg.Upstream.RateLimitPerSec = 10
	}
	if cfg.Upstream.RateLimitBurst <= 0 {
		cfg.Upstream.RateLimitBurst = 10
	}

	if cfg.Timer.DefaultThresholds == nil {
		cfg.Timer.DefaultThresholds = []int{120, 60}
	}
	switch {
	case cfg.Timer.RetentionSeconds < 0:
		cfg.Timer.Retention = 0
	case cfg.Timer.RetentionSeconds == 0:
		cfg.Timer.RetentionSeconds = 60
		fallthrough
	default:
		cfg.Timer.Retention = time.Duration(cfg.Timer.RetentionSeconds) * time.Second
	}

	if cfg.Booking.FinishedFlowTTLMinutes <= 0 {
		cfg.Booking.FinishedFlowTTLMinutes = 15
	}
	cfg.Booking.FinishedFlowTTL = time.Duration(cfg.Booking.FinishedFlowTTLMinutes) * time.Minute
	if cfg.Booking.IdleFlowTTLMinutes <= 0 {
		cfg.Booking.IdleFlowTTLMinutes = 24 * 60
	}
	cfg.Booking.IdleFlowTTL = time.Duration(cfg.Booking.IdleFlowTTLMinutes) * time.Minute

	if cfg.Monitor.IntervalSeconds <= 0 {
		cfg.Monitor.IntervalSeconds = 60
	}
	cfg.Monitor.Interval = time.Duration(cfg.Monitor.IntervalSeconds) * time.Second
	if cfg.Monitor.WarningSeconds <= 0 {
		cfg.Monitor.WarningSeconds = 300
	}
	if cfg.Monitor.Timezone == "" {
		cfg.Monitor.Timezone = "UTC"
	}

	if cfg.Cache.SlotTTLSeconds <= 0 {
		cfg.Cache.SlotTTLSeconds = 60
	}
	cfg.Cache.SlotTTL = time.Duration(cfg.Cache.SlotTTLSeconds) * time.Second

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		zap.L().Warn("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	if cfg.Log.Env == "" {
		cfg.Log.Env = "development"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
