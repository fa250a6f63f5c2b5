package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	applogger "CovDash/pkg/logger"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		AllowOrigins    []string      `yaml:"allow_origins"`
	} `yaml:"server"`
	Logger  applogger.Config `yaml:"logger"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Source struct {
		Type           string        `yaml:"type"` // file, clickhouse, postgres
		MatrixPath     string        `yaml:"matrix_path"`
		IndustriesPath string        `yaml:"industries_path"`
		MatrixTable    string        `yaml:"matrix_table"`
		IndustryTable  string        `yaml:"industry_table"`
		Timeout        time.Duration `yaml:"timeout"`
		Retry          struct {
			InitialInterval time.Duration `yaml:"initial_interval"`
			MaxInterval     time.Duration `yaml:"max_interval"`
			MaxElapsed      time.Duration `yaml:"max_elapsed"`
		} `yaml:"retry"`
	} `yaml:"source"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Postgres struct {
		DSN             string        `yaml:"dsn"`
		MaxOpenConns    int           `yaml:"max_open_conns"`
		MaxIdleConns    int           `yaml:"max_idle_conns"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	} `yaml:"postgres"`
	Cache struct {
		Type        string        `yaml:"type"` // memory, redis, layered
		MaxSize     int           `yaml:"max_size"`
		ArtifactTTL time.Duration `yaml:"artifact_ttl"`
		SessionTTL  time.Duration `yaml:"session_ttl"`
		Redis       struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Kafka struct {
		Enabled bool     `yaml:"enabled"`
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
		// SnapshotTopic carries reload notifications; empty disables the listener.
		SnapshotTopic string        `yaml:"snapshot_topic"`
		GroupID       string        `yaml:"group_id"`
		RequiredAcks  int           `yaml:"required_acks"`
		Compression   string        `yaml:"compression"`
		MaxAttempts   int           `yaml:"max_attempts"`
		WriteTimeout  time.Duration `yaml:"write_timeout"`
		Async         bool          `yaml:"async"`
	} `yaml:"kafka"`
	Dashboard struct {
		DefaultScale        string  `yaml:"default_scale"`
		AnnotationDecimals  int     `yaml:"annotation_decimals"`
		Columns             int     `yaml:"columns"`
		SessionCookie       string  `yaml:"session_cookie"`
		ExportRatePerSecond float64 `yaml:"export_rate_per_second"`
		ExportBurst         int     `yaml:"export_burst"`
		AdminToken          string  `yaml:"admin_token"`
	} `yaml:"dashboard"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, fills defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.overrideFromEnv(os.Getenv)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) overrideFromEnv(getenv func(string) string) {
	if v := getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logger.Level = v
	}
	if v := getenv("SOURCE_TYPE"); v != "" {
		c.Source.Type = v
	}
	if v := getenv("MATRIX_PATH"); v != "" {
		c.Source.MatrixPath = v
	}
	if v := getenv("INDUSTRIES_PATH"); v != "" {
		c.Source.IndustriesPath = v
	}
	if v := getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := getenv("CACHE_TYPE"); v != "" {
		c.Cache.Type = v
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		c.Cache.Redis.Password = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := getenv("ADMIN_TOKEN"); v != "" {
		c.Dashboard.AdminToken = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8050
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Source.Type == "" {
		c.Source.Type = "file"
	}
	if c.Source.MatrixTable == "" {
		c.Source.MatrixTable = "covariance"
	}
	if c.Source.IndustryTable == "" {
		c.Source.IndustryTable = "industry_tickers"
	}
	if c.Source.Timeout == 0 {
		c.Source.Timeout = 30 * time.Second
	}
	if c.Source.Retry.InitialInterval == 0 {
		c.Source.Retry.InitialInterval = 500 * time.Millisecond
	}
	if c.Source.Retry.MaxInterval == 0 {
		c.Source.Retry.MaxInterval = 10 * time.Second
	}
	if c.Source.Retry.MaxElapsed == 0 {
		c.Source.Retry.MaxElapsed = time.Minute
	}
	if c.Cache.Type == "" {
		c.Cache.Type = "memory"
	}
	if c.Cache.MaxSize == 0 {
		c.Cache.MaxSize = 256
	}
	if c.Cache.ArtifactTTL == 0 {
		c.Cache.ArtifactTTL = 10 * time.Minute
	}
	if c.Cache.SessionTTL == 0 {
		c.Cache.SessionTTL = 24 * time.Hour
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "covdash.exports"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "covdash"
	}
	if c.Dashboard.DefaultScale == "" {
		c.Dashboard.DefaultScale = "Viridis"
	}
	if c.Dashboard.AnnotationDecimals == 0 {
		c.Dashboard.AnnotationDecimals = 2
	}
	if c.Dashboard.Columns == 0 {
		c.Dashboard.Columns = 2
	}
	if c.Dashboard.SessionCookie == "" {
		c.Dashboard.SessionCookie = "covdash_session"
	}
	if c.Dashboard.ExportRatePerSecond == 0 {
		c.Dashboard.ExportRatePerSecond = 5
	}
	if c.Dashboard.ExportBurst == 0 {
		c.Dashboard.ExportBurst = 10
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Source.Type {
	case "file":
		if c.Source.MatrixPath == "" || c.Source.IndustriesPath == "" {
			return fmt.Errorf("source.matrix_path and source.industries_path are required for file source")
		}
	case "clickhouse":
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required for clickhouse source")
		}
	case "postgres":
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn is required for postgres source")
		}
	default:
		return fmt.Errorf("source.type must be 'file', 'clickhouse' or 'postgres', got '%s'", c.Source.Type)
	}
	switch c.Cache.Type {
	case "memory":
	case "redis", "layered":
		if c.Cache.Redis.Host == "" {
			return fmt.Errorf("cache.redis.host is required for cache type '%s'", c.Cache.Type)
		}
	default:
		return fmt.Errorf("cache.type must be 'memory', 'redis' or 'layered', got '%s'", c.Cache.Type)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Dashboard.AnnotationDecimals < 0 {
		return fmt.Errorf("dashboard.annotation_decimals must not be negative")
	}
	return nil
}
