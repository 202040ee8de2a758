package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/security-alliance/uniswapx-service/internal/server"
	"github.com/security-alliance/uniswapx-service/internal/server/handler"
	"github.com/security-alliance/uniswapx-service/internal/server/ws"
	"github.com/security-alliance/uniswapx-service/internal/service"
	"github.com/security-alliance/uniswapx-service/internal/store/postgres"
)

const shutdownTimeout = 10 * time.Second

// ServerMode serves the HTTP API and the order stream until ctx is
// cancelled or either fails.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "entering server mode")

	g, ctx := errgroup.WithContext(ctx)

	orderSvc := service.NewOrderService(
		deps.Dispatcher,
		deps.OrderStore,
		deps.RateLimiter,
		deps.LockManager,
		deps.SignalBus,
		deps.AuditStore,
		service.IntakeLimits{
			SubmitRateLimit:  a.cfg.Orders.SubmitRateLimit,
			SubmitRateWindow: a.cfg.Orders.SubmitRateWindow.Duration,
			DedupeTTL:        a.cfg.Orders.DedupeTTL.Duration,
		},
		a.logger.With(slog.String("component", "order_service")),
	)
	if deps.Archive != nil {
		orderSvc.WithArchive(deps.Archive)
	}

	hub := ws.NewHub(deps.SignalBus, service.OrdersChannel, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:               a.cfg.Server.Port,
		CORSOrigins:        a.cfg.Server.CORSOrigins,
		APIKey:             a.cfg.Server.APIKey,
		RateLimitPerMinute: a.cfg.Server.RateLimitPerMinute,
		ReadTimeout:        a.cfg.Server.ReadTimeout.Duration,
		WriteTimeout:       a.cfg.Server.WriteTimeout.Duration,
	}, server.Handlers{
		Health: handler.NewHealthHandler(deps.HealthChecks, a.logger),
		Orders: handler.NewOrderHandler(orderSvc, a.logger),
	}, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// MigrateMode applies the embedded schema migrations and exits.
func (a *App) MigrateMode(ctx context.Context) error {
	a.logger.InfoContext(ctx, "entering migrate mode")

	client, err := postgres.New(ctx, postgresConfig(a.cfg.Postgres))
	if err != nil {
		return fmt.Errorf("app: migrate: %w", err)
	}
	defer client.Close()

	applied, err := client.RunMigrations(ctx)
	if err != nil {
		return fmt.Errorf("app: migrate: %w", err)
	}
	if len(applied) == 0 {
		a.logger.InfoContext(ctx, "schema up to date")
		return nil
	}
	a.logger.InfoContext(ctx, "migrations applied", slog.Any("files", applied))
	return nil
}
