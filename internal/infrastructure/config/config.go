package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Log        LogConfig
	HTTP       HTTPConfig
	Stripe     StripeConfig
	SMTP       SMTPConfig
	Metering   MeteringConfig
	Alerting   AlertingConfig
	Settlement SettlementConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	TrustedProxies []string
	CORSOrigins    []string
}

// StripeConfig holds payment processor settings
type StripeConfig struct {
	APIKey        string
	WebhookSecret string
}

// SMTPConfig holds outbound mail settings. An empty Host disables email
// dispatch entirely; alerts then stay in-app only.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// MeteringConfig holds usage tracking settings
type MeteringConfig struct {
	SummaryCacheTTL time.Duration // hot-path cache TTL for monthly summaries
	LogRetention    time.Duration // how long raw usage log entries are kept
}

// AlertingConfig holds threshold alert sweep settings
type AlertingConfig struct {
	Enabled       bool
	SweepInterval time.Duration // how often the alert sweep runs
	DedupWindow   time.Duration // suppression window for identical alerts
	WorkerCount   int           // concurrent tenants per sweep
}

// SettlementConfig holds overage settlement sweep settings
type SettlementConfig struct {
	Enabled       bool
	CheckInterval time.Duration // how often to check whether a period needs settling
	DueDays       int           // payment term in days for created invoices
	WorkerCount   int           // concurrent tenants per sweep
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with PROPFOLIO_ prefix (e.g., PROPFOLIO_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("PROPFOLIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Boolean defaults have to go through viper so an explicit false in the
	// config file is still honored
	v.SetDefault("alerting.enabled", true)
	v.SetDefault("settlement.enabled", true)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
			CORSOrigins:    v.GetStringSlice("http.cors_origins"),
		},
		Stripe: StripeConfig{
			APIKey:        v.GetString("stripe.api_key"),
			WebhookSecret: v.GetString("stripe.webhook_secret"),
		},
		SMTP: SMTPConfig{
			Host:     v.GetString("smtp.host"),
			Port:     v.GetInt("smtp.port"),
			Username: v.GetString("smtp.username"),
			Password: v.GetString("smtp.password"),
			From:     v.GetString("smtp.from"),
		},
		Metering: MeteringConfig{
			SummaryCacheTTL: v.GetDuration("metering.summary_cache_ttl"),
			LogRetention:    v.GetDuration("metering.log_retention"),
		},
		Alerting: AlertingConfig{
			Enabled:       v.GetBool("alerting.enabled"),
			SweepInterval: v.GetDuration("alerting.sweep_interval"),
			DedupWindow:   v.GetDuration("alerting.dedup_window"),
			WorkerCount:   v.GetInt("alerting.worker_count"),
		},
		Settlement: SettlementConfig{
			Enabled:       v.GetBool("settlement.enabled"),
			CheckInterval: v.GetDuration("settlement.check_interval"),
			DueDays:       v.GetInt("settlement.due_days"),
			WorkerCount:   v.GetInt("settlement.worker_count"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "propfolio-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "propfolio"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = 587
	}
	if cfg.SMTP.From == "" {
		cfg.SMTP.From = "billing@propfolio.example"
	}
	if cfg.Metering.SummaryCacheTTL == 0 {
		cfg.Metering.SummaryCacheTTL = 5 * time.Minute
	}
	if cfg.Metering.LogRetention == 0 {
		cfg.Metering.LogRetention = 24 * 30 * 13 * time.Hour // 13 months
	}
	if cfg.Alerting.SweepInterval == 0 {
		cfg.Alerting.SweepInterval = time.Hour
	}
	if cfg.Alerting.DedupWindow == 0 {
		cfg.Alerting.DedupWindow = 24 * time.Hour
	}
	if cfg.Alerting.WorkerCount == 0 {
		cfg.Alerting.WorkerCount = 8
	}
	if cfg.Settlement.CheckInterval == 0 {
		cfg.Settlement.CheckInterval = 6 * time.Hour
	}
	if cfg.Settlement.DueDays == 0 {
		cfg.Settlement.DueDays = 14
	}
	if cfg.Settlement.WorkerCount == 0 {
		cfg.Settlement.WorkerCount = 4
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Alerting.WorkerCount < 0 || c.Settlement.WorkerCount < 0 {
		return fmt.Errorf("worker counts cannot be negative")
	}
	if c.Settlement.DueDays < 0 {
		return fmt.Errorf("settlement.due_days cannot be negative")
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Settlement.Enabled && c.Stripe.APIKey == "" {
			return fmt.Errorf("stripe.api_key is required when settlement is enabled in production")
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the Redis address in host:port form
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
