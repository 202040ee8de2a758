package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/security-alliance/uniswapx-service/internal/blob/s3"
	"github.com/security-alliance/uniswapx-service/internal/cache/redis"
	"github.com/security-alliance/uniswapx-service/internal/config"
	"github.com/security-alliance/uniswapx-service/internal/domain"
	"github.com/security-alliance/uniswapx-service/internal/orders"
	"github.com/security-alliance/uniswapx-service/internal/server/handler"
	"github.com/security-alliance/uniswapx-service/internal/store/postgres"
)

// Dependencies bundles the concrete implementations server mode runs on.
// It is built by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Dispatcher *orders.Dispatcher

	OrderStore domain.OrderStore
	AuditStore domain.AuditStore

	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Archive is nil unless s3.enabled is set.
	Archive domain.RejectionArchive

	// HealthChecks probes every external dependency for /api/health.
	HealthChecks map[string]handler.Check
}

// BuildDispatcher turns the orders config section into a Dispatcher. The
// allow-list is parsed once here; an empty list is not an error.
func BuildDispatcher(cfg config.OrdersConfig, logger *slog.Logger) (*orders.Dispatcher, error) {
	entries := orders.DefaultReactors()
	for _, r := range cfg.Reactors {
		entries = append(entries, orders.ReactorEntry{
			ChainID:   r.ChainID,
			OrderType: domain.OrderType(r.OrderType),
			Reactor:   common.HexToAddress(r.Address),
		})
	}
	registry, err := orders.NewRegistry(entries...)
	if err != nil {
		return nil, err
	}

	allow, err := orders.NewAllowList(cfg.FallbackReactors)
	if err != nil {
		return nil, err
	}
	if allow.Empty() {
		logger.Warn("orders: no fallback reactors configured; untyped legacy orders on custom reactors will fail")
	} else {
		logger.Info("orders: legacy fallback enabled", slog.Int("fallback_reactors", allow.Len()))
	}
	return orders.NewDispatcher(registry, allow, logger), nil
}

func postgresConfig(cfg config.PostgresConfig) postgres.ClientConfig {
	return postgres.ClientConfig{
		DSN:            cfg.DSN,
		Host:           cfg.Host,
		Port:           cfg.Port,
		Database:       cfg.Database,
		User:           cfg.User,
		Password:       cfg.Password,
		SSLMode:        cfg.SSLMode,
		MaxConns:       cfg.PoolMaxConns,
		MinConns:       cfg.PoolMinConns,
		ConnectTimeout: 10 * time.Second,
	}
}

// Wire constructs every dependency server mode needs and returns them with
// a cleanup function that releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{HealthChecks: map[string]handler.Check{}}

	dispatcher, err := BuildDispatcher(cfg.Orders, logger)
	if err != nil {
		return fail("orders", err)
	}
	deps.Dispatcher = dispatcher

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgresConfig(cfg.Postgres))
	if err != nil {
		return fail("postgres", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		applied, err := pgClient.RunMigrations(ctx)
		if err != nil {
			return fail("postgres migrations", err)
		}
		if len(applied) > 0 {
			logger.Info("wire: applied migrations", slog.Any("files", applied))
		}
	}
	pool := pgClient.Pool()
	deps.OrderStore = postgres.NewOrderStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)
	deps.HealthChecks["postgres"] = pgClient.Ping

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		MasterName: cfg.Redis.MasterName,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
		Namespace:  cfg.Redis.Namespace,
	})
	if err != nil {
		return fail("redis", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.RateLimiter = redis.NewRateLimiter(redisClient, logger.With(slog.String("component", "rate_limiter")))
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.HealthChecks["redis"] = redisClient.Ping

	// --- S3 rejection archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}
		deps.Archive = s3blob.NewArchiver(s3blob.NewWriter(s3Client), strings.TrimSpace(cfg.S3.Prefix))
		deps.HealthChecks["s3"] = s3Client.Health
	}

	logger.Info("wire: dependencies ready",
		slog.Bool("archive", deps.Archive != nil),
		slog.Int("health_checks", len(deps.HealthChecks)),
	)
	return deps, cleanup, nil
}
