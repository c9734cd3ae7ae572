package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/coinwave/tradecore/internal/domain"
)

// marketTTL bounds catalog staleness; the authoritative rows live in
// Postgres and are re-read on a cache miss.
const marketTTL = 5 * time.Minute

// MarketCache implements domain.MarketCache with JSON-serialized markets
// keyed by trading symbol.
type MarketCache struct {
	rdb *redis.Client
}

// NewMarketCache creates a MarketCache backed by the given Client.
func NewMarketCache(c *Client) *MarketCache {
	return &MarketCache{rdb: c.Underlying()}
}

func marketKey(symbol string) string {
	return "tradecore:market:" + symbol
}

// Set stores a Market in the cache with a 5-minute TTL.
func (mc *MarketCache) Set(ctx context.Context, market domain.Market) error {
	data, err := json.Marshal(market)
	if err != nil {
		return fmt.Errorf("redis: marshal market %s: %w", market.Symbol, err)
	}

	if err := mc.rdb.Set(ctx, marketKey(market.Symbol), data, marketTTL).Err(); err != nil {
		return fmt.Errorf("redis: set market %s: %w", market.Symbol, err)
	}
	return nil
}

// Get retrieves a Market by symbol. It returns domain.ErrNotFound when the
// key does not exist.
func (mc *MarketCache) Get(ctx context.Context, symbol string) (domain.Market, error) {
	data, err := mc.rdb.Get(ctx, marketKey(symbol)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get market %s: %w", symbol, err)
	}

	var market domain.Market
	if err := json.Unmarshal(data, &market); err != nil {
		return domain.Market{}, fmt.Errorf("redis: unmarshal market %s: %w", symbol, err)
	}
	return market, nil
}

// Invalidate removes a Market from the cache.
func (mc *MarketCache) Invalidate(ctx context.Context, symbol string) error {
	if err := mc.rdb.Del(ctx, marketKey(symbol)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate market %s: %w", symbol, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketCache = (*MarketCache)(nil)
