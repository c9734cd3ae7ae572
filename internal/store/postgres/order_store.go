package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coinwave/tradecore/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL. Orders are a
// financial record: there is no delete path, and all settlement writes are
// guarded by a status compare-and-swap inside one transaction.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// orderSelectCols lists the columns selected when reading orders.
const orderSelectCols = `id, venue_ref, user_id, symbol, side, order_type,
	price, amount, reserved, filled, remaining, average, cost, fee, fee_currency,
	status, created_at, updated_at, settled_at`

func scanOrderFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Order, error) {
	var o domain.Order
	var side, orderType, status string

	err := scanner.Scan(
		&o.ID, &o.VenueRef, &o.UserID, &o.Symbol, &side, &orderType,
		&o.Price, &o.Amount, &o.Reserved, &o.Filled, &o.Remaining, &o.Average,
		&o.Cost, &o.Fee, &o.FeeCurrency,
		&status, &o.CreatedAt, &o.UpdatedAt, &o.SettledAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	o.Side = domain.OrderSide(side)
	o.Type = domain.OrderType(orderType)
	o.Status = domain.OrderStatus(status)
	return o, nil
}

// Create inserts a new order and its initial fills.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: begin: %w", o.ID, err)
	}
	defer tx.Rollback(ctx)

	const query = `
		INSERT INTO orders (
			id, venue_ref, user_id, symbol, side, order_type,
			price, amount, reserved, filled, remaining, average, cost, fee, fee_currency,
			status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, NOW()
		)`

	_, err = tx.Exec(ctx, query,
		o.ID, o.VenueRef, o.UserID, o.Symbol,
		string(o.Side), string(o.Type),
		o.Price, o.Amount, o.Reserved, o.Filled, o.Remaining, o.Average,
		o.Cost, o.Fee, o.FeeCurrency,
		string(o.Status), o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}

	if err := upsertFills(ctx, tx, o.ID, o.Fills); err != nil {
		return fmt.Errorf("postgres: create order %s: fills: %w", o.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: create order %s: commit: %w", o.ID, err)
	}
	return nil
}

// GetByID retrieves a single order by its local ID, fills included.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE id = $1`, id)

	o, err := scanOrderFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}

	if err := s.attachFills(ctx, &o); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

// GetForUser retrieves an order scoped to its owner. An order belonging to a
// different user is reported as not found, not as forbidden.
func (s *OrderStore) GetForUser(ctx context.Context, userID, id string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE id = $1 AND user_id = $2`, id, userID)

	o, err := scanOrderFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s for user %s: %w", id, userID, err)
	}

	if err := s.attachFills(ctx, &o); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

// ListByUser returns the user's orders, newest first, with pagination.
func (s *OrderStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Order, error) {
	query := `SELECT ` + orderSelectCols + ` FROM orders WHERE user_id = $1`
	args := []any{userID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders for user %s: %w", userID, err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan orders for user %s: %w", userID, err)
	}
	return orders, nil
}

// ListSettledBefore returns terminal orders settled strictly before the
// cutoff, for archival.
func (s *OrderStore) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders
		 WHERE settled_at IS NOT NULL AND settled_at < $1
		 ORDER BY settled_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled orders: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan settled orders: %w", err)
	}
	return orders, nil
}

// SyncVenueState writes venue-reported fill fields onto an order that is
// still OPEN. A terminal row is left untouched; that is not an error, the
// caller simply observes the stored snapshot.
func (s *OrderStore) SyncVenueState(ctx context.Context, o domain.Order) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: sync order %s: begin: %w", o.ID, err)
	}
	defer tx.Rollback(ctx)

	const query = `
		UPDATE orders SET
			venue_ref = $2, filled = $3, remaining = $4, average = $5,
			cost = $6, fee = $7, fee_currency = $8, updated_at = NOW()
		WHERE id = $1 AND status = 'OPEN'`

	tag, err := tx.Exec(ctx, query,
		o.ID, o.VenueRef, o.Filled, o.Remaining, o.Average,
		o.Cost, o.Fee, o.FeeCurrency,
	)
	if err != nil {
		return fmt.Errorf("postgres: sync order %s: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		if err := s.requireOrder(ctx, o.ID); err != nil {
			return err
		}
		return nil
	}

	if err := upsertFills(ctx, tx, o.ID, o.Fills); err != nil {
		return fmt.Errorf("postgres: sync order %s: fills: %w", o.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: sync order %s: commit: %w", o.ID, err)
	}
	return nil
}

// Settle transitions the order from OPEN to the terminal status carried in
// o.Status and applies the given wallet credits in the same transaction.
// The status write is a compare-and-swap: if some concurrent settlement got
// there first the transaction is abandoned, no credit is applied, and
// applied == false is returned. Readers therefore never observe a terminal
// order without its balance change, and no order settles twice.
func (s *OrderStore) Settle(ctx context.Context, o domain.Order, credits []domain.WalletCredit) (bool, error) {
	if !o.Status.Terminal() {
		return false, fmt.Errorf("postgres: settle order %s: status %s is not terminal", o.ID, o.Status)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("postgres: settle order %s: begin: %w", o.ID, err)
	}
	defer tx.Rollback(ctx)

	const query = `
		UPDATE orders SET
			venue_ref = $2, filled = $3, remaining = $4, average = $5,
			cost = $6, fee = $7, fee_currency = $8, status = $9,
			updated_at = NOW(), settled_at = NOW()
		WHERE id = $1 AND status = 'OPEN'`

	tag, err := tx.Exec(ctx, query,
		o.ID, o.VenueRef, o.Filled, o.Remaining, o.Average,
		o.Cost, o.Fee, o.FeeCurrency, string(o.Status),
	)
	if err != nil {
		return false, fmt.Errorf("postgres: settle order %s: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		if err := s.requireOrder(ctx, o.ID); err != nil {
			return false, err
		}
		return false, nil
	}

	if err := upsertFills(ctx, tx, o.ID, o.Fills); err != nil {
		return false, fmt.Errorf("postgres: settle order %s: fills: %w", o.ID, err)
	}

	const creditQuery = `
		INSERT INTO wallets (user_id, currency, balance, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, currency)
		DO UPDATE SET balance = wallets.balance + EXCLUDED.balance, updated_at = NOW()`

	for _, c := range credits {
		if _, err := tx.Exec(ctx, creditQuery, c.UserID, c.Currency, c.Amount); err != nil {
			return false, fmt.Errorf("postgres: settle order %s: credit %s %s: %w", o.ID, c.Currency, c.UserID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("postgres: settle order %s: commit: %w", o.ID, err)
	}
	return true, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func scanOrderRows(rows pgx.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrderFromRow(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// requireOrder distinguishes "row missing" from "row already terminal" after
// a zero-row guarded update.
func (s *OrderStore) requireOrder(ctx context.Context, id string) error {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)", id,
	).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: check order %s: %w", id, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return nil
}

func (s *OrderStore) attachFills(ctx context.Context, o *domain.Order) error {
	rows, err := s.pool.Query(ctx,
		`SELECT venue_trade_id, side, amount, price, cost, executed_at
		 FROM order_fills WHERE order_id = $1 ORDER BY executed_at`, o.ID)
	if err != nil {
		return fmt.Errorf("postgres: load fills for order %s: %w", o.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var f domain.Fill
		var side string
		if err := rows.Scan(&f.VenueTradeID, &side, &f.Amount, &f.Price, &f.Cost, &f.Timestamp); err != nil {
			return fmt.Errorf("postgres: scan fill for order %s: %w", o.ID, err)
		}
		f.Side = domain.OrderSide(side)
		o.Fills = append(o.Fills, f)
	}
	return rows.Err()
}

// upsertFills inserts fill fragments, ignoring ones already recorded. Fills
// are identified by the venue's trade ID, so re-reporting the same trade on
// a later sync is a no-op.
func upsertFills(ctx context.Context, tx pgx.Tx, orderID string, fills []domain.Fill) error {
	const query = `
		INSERT INTO order_fills (order_id, venue_trade_id, side, amount, price, cost, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (order_id, venue_trade_id) DO NOTHING`

	for _, f := range fills {
		if f.VenueTradeID == "" {
			continue
		}
		if _, err := tx.Exec(ctx, query,
			orderID, f.VenueTradeID, string(f.Side), f.Amount, f.Price, f.Cost, f.Timestamp,
		); err != nil {
			return err
		}
	}
	return nil
}

// Compile-time interface check.
var _ domain.OrderStore = (*OrderStore)(nil)
