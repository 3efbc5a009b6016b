package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Redis    RedisConfig    `yaml:"redis"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Sync     SyncConfig     `yaml:"sync"`
	HTTP     HTTPConfig     `yaml:"http"`
	LogLevel string         `yaml:"log_level"`
}

// RabbitMQConfig is optional; an empty URL disables order events.
type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue_name"`
}

// RedisConfig is optional; an empty Addr falls back to an in-process sync lease.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

type UpstreamConfig struct {
	BaseURL           string        `yaml:"base_url"`
	ClientID          string        `yaml:"client_id"`
	ClientSecret      string        `yaml:"client_secret"`
	PageSize          int           `yaml:"page_size"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

// MinRequestInterval is the spacing between two upstream calls.
func (u UpstreamConfig) MinRequestInterval() time.Duration {
	if u.RequestsPerMinute <= 0 {
		return 0
	}
	return time.Minute / time.Duration(u.RequestsPerMinute)
}

type SyncConfig struct {
	Interval          time.Duration `yaml:"interval"`
	Timeout           time.Duration `yaml:"timeout"`
	InitialLookback   time.Duration `yaml:"initial_lookback"`
	WindowOverlap     time.Duration `yaml:"window_overlap"`
	WindowMaxOrders   int           `yaml:"window_max_orders"`
	FallbackMaxOrders int           `yaml:"fallback_max_orders"`
	FullMaxOrders     int           `yaml:"full_max_orders"`
	FullHistoryDays   int           `yaml:"full_history_days"`
	BackfillEnabled   bool          `yaml:"backfill_enabled"`
	BackfillLimit     int           `yaml:"backfill_limit"`
	LeaseTTL          time.Duration `yaml:"lease_ttl"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	APIToken        string        `yaml:"api_token"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "order_sync"
	}
	if c.RabbitMQ.RoutingKey == "" {
		c.RabbitMQ.RoutingKey = "orders"
	}
	if c.RabbitMQ.QueueName == "" {
		c.RabbitMQ.QueueName = "dashboard_orders"
	}
	if c.Upstream.PageSize == 0 {
		c.Upstream.PageSize = 500
	}
	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = 30 * time.Second
	}
	if c.Upstream.RequestsPerMinute == 0 {
		c.Upstream.RequestsPerMinute = 150
	}
	if c.Sync.Interval == 0 {
		c.Sync.Interval = 5 * time.Minute
	}
	if c.Sync.Timeout == 0 {
		c.Sync.Timeout = 5 * time.Minute
	}
	if c.Sync.InitialLookback == 0 {
		c.Sync.InitialLookback = 24 * time.Hour
	}
	if c.Sync.WindowOverlap == 0 {
		c.Sync.WindowOverlap = 10 * time.Minute
	}
	if c.Sync.WindowMaxOrders == 0 {
		c.Sync.WindowMaxOrders = 2000
	}
	if c.Sync.FallbackMaxOrders == 0 {
		c.Sync.FallbackMaxOrders = 500
	}
	if c.Sync.FullMaxOrders == 0 {
		c.Sync.FullMaxOrders = 6000
	}
	if c.Sync.FullHistoryDays == 0 {
		c.Sync.FullHistoryDays = 30
	}
	if c.Sync.BackfillLimit == 0 {
		c.Sync.BackfillLimit = 20
	}
	if c.Sync.LeaseTTL == 0 {
		c.Sync.LeaseTTL = 10 * time.Minute
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 15 * time.Second
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 6 * time.Minute
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = 30 * time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	if c.Upstream.ClientID == "" || c.Upstream.ClientSecret == "" {
		return fmt.Errorf("upstream.client_id and upstream.client_secret are required")
	}
	if c.Upstream.PageSize > 512 {
		return fmt.Errorf("upstream.page_size %d exceeds the upstream limit of 512", c.Upstream.PageSize)
	}
	if c.Sync.LeaseTTL < c.Sync.Timeout {
		return fmt.Errorf("sync.lease_ttl (%s) must not be shorter than sync.timeout (%s)", c.Sync.LeaseTTL, c.Sync.Timeout)
	}
	return nil
}
