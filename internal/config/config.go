// Package config defines the top-level configuration for the order service
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by UNISWAPX_* environment variables.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Orders   OrdersConfig   `toml:"orders"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port               int      `toml:"port"`
	CORSOrigins        []string `toml:"cors_origins"`
	APIKey             string   `toml:"api_key"`
	RateLimitPerMinute int      `toml:"rate_limit_per_minute"`
	ReadTimeout        duration `toml:"read_timeout"`
	WriteTimeout       duration `toml:"write_timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// Addr is host:port, or a comma-separated list for sentinel or cluster.
	Addr       string `toml:"addr"`
	MasterName string `toml:"master_name"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	// Namespace prefixes every key and pub/sub channel.
	Namespace string `toml:"namespace"`
}

// S3Config holds S3-compatible object storage parameters for the rejected
// submission archive. The archive is off unless Enabled is set.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// OrdersConfig controls order decoding and intake.
type OrdersConfig struct {
	// FallbackReactors allow-lists custom reactors for untyped legacy
	// submissions. Empty disables the fallback.
	FallbackReactors []string `toml:"fallback_reactors"`
	// Reactors registers deployments on top of the built-in ones.
	Reactors []ReactorConfig `toml:"reactors"`
	// SubmitRateLimit caps submissions per swapper per SubmitRateWindow.
	// Zero disables the limit.
	SubmitRateLimit  int      `toml:"submit_rate_limit"`
	SubmitRateWindow duration `toml:"submit_rate_window"`
	// DedupeTTL bounds how long a submission holds the per-hash lock.
	DedupeTTL duration `toml:"dedupe_ttl"`
}

// ReactorConfig is one [[orders.reactors]] entry.
type ReactorConfig struct {
	ChainID   int64  `toml:"chain_id"`
	OrderType string `toml:"order_type"`
	Address   string `toml:"address"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:               8080,
			RateLimitPerMinute: 600,
			ReadTimeout:        duration{15 * time.Second},
			WriteTimeout:       duration{15 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "uniswapx",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			Namespace:  "uniswapx",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "uniswapx-diagnostics",
			Prefix:         "rejected",
			ForcePathStyle: true,
		},
		Orders: OrdersConfig{
			SubmitRateLimit:  30,
			SubmitRateWindow: duration{time.Minute},
			DedupeTTL:        duration{30 * time.Second},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":  true,
	"migrate": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validOrderTypes = map[string]bool{
	"Dutch":    true,
	"Dutch_V2": true,
	"Limit":    true,
	"Relay":    true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// single error listing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, migrate)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimitPerMinute < 0 {
		errs = append(errs, "server: rate_limit_per_minute must be >= 0")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 is only checked when the archive is on.
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Orders
	for i, addr := range c.Orders.FallbackReactors {
		if !common.IsHexAddress(strings.TrimSpace(addr)) {
			errs = append(errs, fmt.Sprintf("orders: fallback_reactors[%d] %q is not an address", i, addr))
		}
	}
	for i, r := range c.Orders.Reactors {
		if r.ChainID <= 0 {
			errs = append(errs, fmt.Sprintf("orders: reactors[%d]: chain_id must be positive", i))
		}
		if !validOrderTypes[r.OrderType] {
			errs = append(errs, fmt.Sprintf("orders: reactors[%d]: unknown order_type %q", i, r.OrderType))
		}
		if !common.IsHexAddress(r.Address) {
			errs = append(errs, fmt.Sprintf("orders: reactors[%d]: %q is not an address", i, r.Address))
		}
	}
	if c.Orders.SubmitRateLimit < 0 {
		errs = append(errs, "orders: submit_rate_limit must be >= 0")
	}
	if c.Orders.SubmitRateLimit > 0 && c.Orders.SubmitRateWindow.Duration <= 0 {
		errs = append(errs, "orders: submit_rate_window must be positive when submit_rate_limit is set")
	}
	if c.Orders.DedupeTTL.Duration <= 0 {
		errs = append(errs, "orders: dedupe_ttl must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
