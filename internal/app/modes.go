package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/coinwave/tradecore/internal/server"
	"github.com/coinwave/tradecore/internal/server/handler"
	"github.com/coinwave/tradecore/internal/server/ws"
	"github.com/coinwave/tradecore/internal/service"
)

const (
	// apiRateLimit bounds API requests per client within apiRateWindow.
	apiRateLimit  = 120
	apiRateWindow = time.Minute

	shutdownTimeout = 5 * time.Second
)

// ServeMode runs the HTTP + WebSocket API server with the full order
// lifecycle wired in. It blocks until the context is cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	marketSvc := service.NewMarketService(deps.MarketStore, deps.MarketCache, a.logger)
	walletSvc := service.NewWalletService(deps.WalletStore, a.logger)
	orderSvc := service.NewOrderService(
		deps.OrderStore, deps.WalletStore, marketSvc, deps.Venue,
		deps.RateLimiter, deps.LockManager, deps.SignalBus,
		deps.AuditStore, deps.Notifier,
		a.cfg.Engine.SymmetricFees, a.logger,
	)

	checks := map[string]handler.Pinger{
		"postgres": deps.Postgres,
		"redis":    deps.Redis,
	}
	if deps.S3 != nil {
		checks["s3"] = deps.S3
	}

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(checks, a.logger),
		Markets: handler.NewMarketHandler(marketSvc, a.logger),
		Orders:  handler.NewOrderHandler(orderSvc, a.logger),
		Wallets: handler.NewWalletHandler(walletSvc, a.logger),
	}

	// Archive trigger is available only when S3 is wired.
	if deps.Archiver != nil {
		exportSvc := service.NewExportService(deps.Archiver, a.logger)
		handlers.Archive = handler.NewArchiveHandler(exportSvc, a.logger)
	}

	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("serve mode: ws hub: %w", err)
		}
		return nil
	})

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKeys:         a.cfg.Server.APIKeys,
		RateLimit:       apiRateLimit,
		RateLimitWindow: apiRateWindow,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// MigrateMode applies pending schema migrations and exits. Wire has already
// run them when this mode is selected, so this only reports completion.
func (a *App) MigrateMode(ctx context.Context, deps *Dependencies) error {
	if err := deps.Postgres.Ping(ctx); err != nil {
		return fmt.Errorf("migrate mode: %w", err)
	}
	a.logger.InfoContext(ctx, "migrations applied")
	return nil
}

// ArchiveMode runs one export pass of settled orders and audit history to
// object storage, then exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return fmt.Errorf("archive mode: blob storage is not configured")
	}

	retention := time.Duration(a.cfg.Engine.ArchiveRetentionDays) * 24 * time.Hour
	var before time.Time
	if retention > 0 {
		before = time.Now().UTC().Add(-retention)
	}

	exportSvc := service.NewExportService(deps.Archiver, a.logger)
	orders, audit, err := exportSvc.Run(ctx, before)
	if err != nil {
		return fmt.Errorf("archive mode: %w", err)
	}

	a.logger.InfoContext(ctx, "archive mode complete",
		slog.Int64("orders", orders),
		slog.Int64("audit_entries", audit),
	)
	return nil
}
