package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/coinwave/tradecore/internal/domain"
)

// MarketService serves read-only trading-pair metadata, checking the cache
// first and falling back to the persistent catalog on a miss. The catalog is
// maintained by an external collaborator; this engine never writes it.
type MarketService struct {
	markets domain.MarketStore
	cache   domain.MarketCache
	logger  *slog.Logger
}

// NewMarketService creates a MarketService with all required dependencies.
func NewMarketService(markets domain.MarketStore, cache domain.MarketCache, logger *slog.Logger) *MarketService {
	return &MarketService{
		markets: markets,
		cache:   cache,
		logger:  logger,
	}
}

// GetMarket retrieves a market by symbol, cache first.
func (s *MarketService) GetMarket(ctx context.Context, symbol string) (domain.Market, error) {
	m, err := s.cache.Get(ctx, symbol)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "market_service: cache get failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		// Non-fatal: fall through to the store.
	}

	m, err = s.markets.GetBySymbol(ctx, symbol)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("market_service: get %s: %w", symbol, err)
	}

	// Back-fill the cache; log but do not fail on cache write errors.
	if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
		s.logger.WarnContext(ctx, "market_service: cache set failed",
			slog.String("symbol", symbol),
			slog.String("error", cacheErr.Error()),
		)
	}
	return m, nil
}

// ListMarkets returns all markets currently open for trading. The listing
// always reads the store; only single-symbol lookups are cached.
func (s *MarketService) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	markets, err := s.markets.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("market_service: list active: %w", err)
	}
	return markets, nil
}

// Refresh drops a symbol's cached snapshot and re-reads the catalog. Called
// when an operator updates market rules out of band.
func (s *MarketService) Refresh(ctx context.Context, symbol string) (domain.Market, error) {
	if err := s.cache.Invalidate(ctx, symbol); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: invalidate %s: %w", symbol, err)
	}
	return s.GetMarket(ctx, symbol)
}
