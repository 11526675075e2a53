package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Redis   RedisConfig   `yaml:"redis"`
	MySQL   MySQLConfig   `yaml:"mysql"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	Auth    AuthConfig    `yaml:"auth"`
	Scores  ScoresConfig  `yaml:"scores"`
	Cursor  CursorConfig  `yaml:"cursor"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// MySQLConfig holds MySQL/MariaDB connection configuration. URL is a DSN in
// go-sql-driver form (user:pass@tcp(host:port)/db?parseTime=true).
type MySQLConfig struct {
	URL             string        `yaml:"url"`
	MaxConnections  int           `yaml:"max_connections"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
}

// KafkaConfig holds Kafka connection configuration for the finish-event
// ingestion path
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
	Enabled bool     `yaml:"enabled"`
}

// AuthConfig holds token and rendezvous configuration
type AuthConfig struct {
	TokenTTL          time.Duration `yaml:"token_ttl"`
	RendezvousTimeout time.Duration `yaml:"rendezvous_timeout"`
	MaxInflight       int           `yaml:"max_inflight"`
	InflightWindow    time.Duration `yaml:"inflight_window"`
}

// ScoresConfig holds the periodic score engine configuration
type ScoresConfig struct {
	EventInterval   time.Duration `yaml:"event_interval"`
	RankingInterval time.Duration `yaml:"ranking_interval"`
}

// CursorConfig holds pagination limits for cursor connections
type CursorConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

// WebhookConfig holds outbound notification configuration
type WebhookConfig struct {
	InvalidReqURL string        `yaml:"invalid_req_url"`
	Timeout       time.Duration `yaml:"timeout"`
}

// Load reads configuration from a YAML file, expands environment variables
// inside it, applies defaults, then lets the enumerated environment
// variables override individual values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	return &cfg, nil
}

// DefaultConfig returns a configuration with all defaults and environment
// overrides applied
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg
}

// applyEnv applies the enumerated environment variables on top of whatever
// the file provided
func (c *Config) applyEnv() {
	if v := os.Getenv("DB_URL"); v != "" {
		c.MySQL.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("WH_INVALID_REQ_URL"); v != "" {
		c.Webhook.InvalidReqURL = v
	}
	if d, ok := envDuration("AUTH_TOKEN_TTL"); ok {
		c.Auth.TokenTTL = d
	}
	if d, ok := envDuration("EVENT_SCORES_INTERVAL"); ok {
		c.Scores.EventInterval = d
	}
	if d, ok := envDuration("PLAYER_MAP_RANKING_SCORES_INTERVAL"); ok {
		c.Scores.RankingInterval = d
	}
	if n, ok := envInt("CURSOR_DEFAULT_LIMIT"); ok {
		c.Cursor.DefaultLimit = n
	}
	if n, ok := envInt("CURSOR_MAX_LIMIT"); ok {
		c.Cursor.MaxLimit = n
	}
}

// envDuration reads a duration variable, accepting either a Go duration
// string or a bare number of seconds
func envDuration(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, true
	}
	return 0, false
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 3001
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}

	// Redis defaults
	if c.Redis.URL == "" {
		c.Redis.URL = "redis://localhost:6379/0"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 100
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 10
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}

	// MySQL defaults
	if c.MySQL.URL == "" {
		c.MySQL.URL = "records:records@tcp(localhost:3306)/obs_records?parseTime=true"
	}
	if c.MySQL.MaxConnections == 0 {
		c.MySQL.MaxConnections = 50
	}
	if c.MySQL.MaxIdleConns == 0 {
		c.MySQL.MaxIdleConns = 10
	}
	if c.MySQL.MaxConnLifetime == 0 {
		c.MySQL.MaxConnLifetime = 1 * time.Hour
	}

	// Kafka defaults
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "obstacle-finishes"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "records-consumer"
	}

	// Auth defaults
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 365 * 24 * time.Hour
	}
	if c.Auth.RendezvousTimeout == 0 {
		c.Auth.RendezvousTimeout = 5 * time.Minute
	}
	if c.Auth.MaxInflight == 0 {
		c.Auth.MaxInflight = 20
	}
	if c.Auth.InflightWindow == 0 {
		c.Auth.InflightWindow = 1 * time.Minute
	}

	// Scores defaults
	if c.Scores.EventInterval == 0 {
		c.Scores.EventInterval = 24 * time.Hour
	}
	if c.Scores.RankingInterval == 0 {
		c.Scores.RankingInterval = 6 * time.Hour
	}

	// Cursor defaults
	if c.Cursor.DefaultLimit == 0 {
		c.Cursor.DefaultLimit = 50
	}
	if c.Cursor.MaxLimit == 0 {
		c.Cursor.MaxLimit = 100
	}

	// Webhook defaults
	if c.Webhook.Timeout == 0 {
		c.Webhook.Timeout = 10 * time.Second
	}
}
