package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coinwave/tradecore/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL. The markets
// table is reference data maintained out of band; this store only reads it.
type MarketStore struct {
	pool *pgxpool.Pool
}

func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketSelectCols = `symbol, base, quote, amount_precision, price_precision,
	min_amount, max_amount, min_cost, taker_fee, maker_fee, status, updated_at`

func scanMarketFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Market, error) {
	var m domain.Market
	var status string
	err := scanner.Scan(
		&m.Symbol, &m.Base, &m.Quote, &m.AmountPrecision, &m.PricePrecision,
		&m.MinAmount, &m.MaxAmount, &m.MinCost, &m.TakerFee, &m.MakerFee,
		&status, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Status = domain.MarketStatus(status)
	return m, nil
}

// GetBySymbol retrieves a single market definition.
func (s *MarketStore) GetBySymbol(ctx context.Context, symbol string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketSelectCols+` FROM markets WHERE symbol = $1`, symbol)

	m, err := scanMarketFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", symbol, err)
	}
	return m, nil
}

// ListActive returns all markets currently open for trading.
func (s *MarketStore) ListActive(ctx context.Context) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketSelectCols+` FROM markets WHERE status = 'active' ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarketFromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

var _ domain.MarketStore = (*MarketStore)(nil)
