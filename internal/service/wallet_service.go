package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/coinwave/tradecore/internal/domain"
)

// WalletService exposes read-only balance views. All balance mutation flows
// through order submission and settlement; there is no direct credit/debit
// endpoint in this engine.
type WalletService struct {
	wallets domain.WalletStore
	logger  *slog.Logger
}

// NewWalletService creates a WalletService backed by the given store.
func NewWalletService(wallets domain.WalletStore, logger *slog.Logger) *WalletService {
	return &WalletService{wallets: wallets, logger: logger}
}

// GetBalance returns one wallet.
func (s *WalletService) GetBalance(ctx context.Context, userID, currency string) (domain.Wallet, error) {
	w, err := s.wallets.Get(ctx, userID, currency)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Wallet{}, domain.ErrNotFound
		}
		return domain.Wallet{}, fmt.Errorf("wallet_service: get %s %s: %w", currency, userID, err)
	}
	return w, nil
}

// ListBalances returns all of the user's wallets.
func (s *WalletService) ListBalances(ctx context.Context, userID string) ([]domain.Wallet, error) {
	wallets, err := s.wallets.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("wallet_service: list for %s: %w", userID, err)
	}
	return wallets, nil
}
