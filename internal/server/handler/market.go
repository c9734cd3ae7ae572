package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coinwave/tradecore/internal/domain"
)

// MarketService defines the methods the market handler requires.
type MarketService interface {
	GetMarket(ctx context.Context, symbol string) (domain.Market, error)
	ListMarkets(ctx context.Context) ([]domain.Market, error)
	Refresh(ctx context.Context, symbol string) (domain.Market, error)
}

// MarketHandler serves read-only market catalog endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{markets: markets, logger: logger}
}

// ListMarkets returns all active markets.
// GET /api/markets
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := h.markets.ListMarkets(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}

	out := make([]marketResponse, 0, len(markets))
	for _, m := range markets {
		out = append(out, toMarketResponse(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": out})
}

// GetMarket returns one market's trading rules. The symbol's slash is
// URL-encoded by clients ("BTC%2FUSDT").
// GET /api/markets/{symbol}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(pathParam(r, "symbol"))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "missing symbol")
		return
	}

	m, err := h.markets.GetMarket(r.Context(), symbol)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get market failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get market")
		return
	}

	writeJSON(w, http.StatusOK, toMarketResponse(m))
}

// RefreshMarket drops the cached snapshot of one market and returns the
// freshly loaded rules. Operators call this after editing the catalog.
// POST /api/markets/{symbol}/refresh
func (h *MarketHandler) RefreshMarket(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(pathParam(r, "symbol"))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "missing symbol")
		return
	}

	m, err := h.markets.Refresh(r.Context(), symbol)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: refresh market failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to refresh market")
		return
	}

	writeJSON(w, http.StatusOK, toMarketResponse(m))
}
