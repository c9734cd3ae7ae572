package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/coinwave/tradecore/internal/domain"
)

// WalletStore implements domain.WalletStore using PostgreSQL. Debits go
// through a conditional update so a balance can never be driven negative,
// no matter how many submissions race on the same wallet.
type WalletStore struct {
	pool *pgxpool.Pool
}

// NewWalletStore creates a new WalletStore backed by the given pool.
func NewWalletStore(pool *pgxpool.Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

const walletSelectCols = `user_id, currency, balance, updated_at`

// Get retrieves a single wallet row.
func (s *WalletStore) Get(ctx context.Context, userID, currency string) (domain.Wallet, error) {
	var w domain.Wallet
	err := s.pool.QueryRow(ctx,
		`SELECT `+walletSelectCols+` FROM wallets WHERE user_id = $1 AND currency = $2`,
		userID, currency,
	).Scan(&w.UserID, &w.Currency, &w.Balance, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Wallet{}, domain.ErrNotFound
		}
		return domain.Wallet{}, fmt.Errorf("postgres: get wallet %s %s: %w", currency, userID, err)
	}
	return w, nil
}

// ListByUser returns all of a user's wallets ordered by currency.
func (s *WalletStore) ListByUser(ctx context.Context, userID string) ([]domain.Wallet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+walletSelectCols+` FROM wallets WHERE user_id = $1 ORDER BY currency`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list wallets for user %s: %w", userID, err)
	}
	defer rows.Close()

	var wallets []domain.Wallet
	for rows.Next() {
		var w domain.Wallet
		if err := rows.Scan(&w.UserID, &w.Currency, &w.Balance, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan wallet for user %s: %w", userID, err)
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// Reserve atomically debits amount from the wallet, failing with
// domain.ErrInsufficientBalance when the current balance does not cover it.
// The check and the debit are one statement, so concurrent reserves on the
// same wallet serialize on the row and exactly one of two racing over-budget
// reserves succeeds.
func (s *WalletStore) Reserve(ctx context.Context, userID, currency string, amount decimal.Decimal) (domain.Wallet, error) {
	if amount.IsNegative() {
		return domain.Wallet{}, fmt.Errorf("postgres: reserve %s %s: %w: negative amount %s",
			currency, userID, domain.ErrValidation, amount)
	}

	var w domain.Wallet
	err := s.pool.QueryRow(ctx, `
		UPDATE wallets
		SET balance = balance - $3, updated_at = NOW()
		WHERE user_id = $1 AND currency = $2 AND balance >= $3
		RETURNING `+walletSelectCols,
		userID, currency, amount,
	).Scan(&w.UserID, &w.Currency, &w.Balance, &w.UpdatedAt)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Wallet{}, fmt.Errorf("postgres: reserve %s %s: %w", currency, userID, err)
	}

	// Zero rows: either the wallet does not exist or the balance is short.
	var exists bool
	if err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM wallets WHERE user_id = $1 AND currency = $2)",
		userID, currency,
	).Scan(&exists); err != nil {
		return domain.Wallet{}, fmt.Errorf("postgres: reserve %s %s: check: %w", currency, userID, err)
	}
	if !exists {
		return domain.Wallet{}, domain.ErrNotFound
	}
	return domain.Wallet{}, domain.ErrInsufficientBalance
}

// Credit adds amount to the wallet, creating the row if the user has never
// held the currency before.
func (s *WalletStore) Credit(ctx context.Context, userID, currency string, amount decimal.Decimal) (domain.Wallet, error) {
	if amount.IsNegative() {
		return domain.Wallet{}, fmt.Errorf("postgres: credit %s %s: %w: negative amount %s",
			currency, userID, domain.ErrValidation, amount)
	}

	var w domain.Wallet
	err := s.pool.QueryRow(ctx, `
		INSERT INTO wallets (user_id, currency, balance, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, currency)
		DO UPDATE SET balance = wallets.balance + EXCLUDED.balance, updated_at = NOW()
		RETURNING `+walletSelectCols,
		userID, currency, amount,
	).Scan(&w.UserID, &w.Currency, &w.Balance, &w.UpdatedAt)
	if err != nil {
		return domain.Wallet{}, fmt.Errorf("postgres: credit %s %s: %w", currency, userID, err)
	}
	return w, nil
}

var _ domain.WalletStore = (*WalletStore)(nil)
