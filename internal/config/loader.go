package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies UNISWAPX_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config: unknown keys in %s: %v", path, undecoded)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known UNISWAPX_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setInt(&cfg.Server.Port, "UNISWAPX_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "UNISWAPX_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "UNISWAPX_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimitPerMinute, "UNISWAPX_SERVER_RATE_LIMIT_PER_MINUTE")
	setDuration(&cfg.Server.ReadTimeout, "UNISWAPX_SERVER_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "UNISWAPX_SERVER_WRITE_TIMEOUT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "UNISWAPX_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "UNISWAPX_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "UNISWAPX_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "UNISWAPX_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "UNISWAPX_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "UNISWAPX_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "UNISWAPX_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "UNISWAPX_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "UNISWAPX_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "UNISWAPX_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "UNISWAPX_REDIS_ADDR")
	setStr(&cfg.Redis.MasterName, "UNISWAPX_REDIS_MASTER_NAME")
	setStr(&cfg.Redis.Namespace, "UNISWAPX_REDIS_NAMESPACE")
	setStr(&cfg.Redis.Password, "UNISWAPX_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "UNISWAPX_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "UNISWAPX_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "UNISWAPX_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "UNISWAPX_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "UNISWAPX_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "UNISWAPX_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "UNISWAPX_S3_REGION")
	setStr(&cfg.S3.Bucket, "UNISWAPX_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "UNISWAPX_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "UNISWAPX_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "UNISWAPX_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "UNISWAPX_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "UNISWAPX_S3_FORCE_PATH_STYLE")

	// ── Orders ──
	setStringSlice(&cfg.Orders.FallbackReactors, "UNISWAPX_ORDERS_FALLBACK_REACTORS")
	setInt(&cfg.Orders.SubmitRateLimit, "UNISWAPX_ORDERS_SUBMIT_RATE_LIMIT")
	setDuration(&cfg.Orders.SubmitRateWindow, "UNISWAPX_ORDERS_SUBMIT_RATE_WINDOW")
	setDuration(&cfg.Orders.DedupeTTL, "UNISWAPX_ORDERS_DEDUPE_TTL")

	// ── Top-level ──
	setStr(&cfg.Mode, "UNISWAPX_MODE")
	setStr(&cfg.LogLevel, "UNISWAPX_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
