package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coinwave/tradecore/internal/domain"
)

// WalletService defines the methods the wallet handler requires.
type WalletService interface {
	GetBalance(ctx context.Context, userID, currency string) (domain.Wallet, error)
	ListBalances(ctx context.Context, userID string) ([]domain.Wallet, error)
}

// WalletHandler serves balance read endpoints. Balances are mutated only by
// order submission and settlement; there is no write endpoint here.
type WalletHandler struct {
	wallets WalletService
	logger  *slog.Logger
}

// NewWalletHandler creates a WalletHandler with the given service and logger.
func NewWalletHandler(wallets WalletService, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{wallets: wallets, logger: logger}
}

// ListWallets returns all of the acting user's balances.
// GET /api/wallets
func (h *WalletHandler) ListWallets(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	wallets, err := h.wallets.ListBalances(r.Context(), userID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list wallets failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list wallets")
		return
	}

	out := make([]walletResponse, 0, len(wallets))
	for _, wallet := range wallets {
		out = append(out, toWalletResponse(wallet))
	}
	writeJSON(w, http.StatusOK, map[string]any{"wallets": out})
}

// GetWallet returns one balance.
// GET /api/wallets/{currency}
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	currency := strings.ToUpper(pathParam(r, "currency"))
	if currency == "" {
		writeError(w, http.StatusBadRequest, "missing currency")
		return
	}

	wallet, err := h.wallets.GetBalance(r.Context(), userID, currency)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "wallet not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get wallet failed",
			slog.String("user_id", userID),
			slog.String("currency", currency),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get wallet")
		return
	}

	writeJSON(w, http.StatusOK, toWalletResponse(wallet))
}
