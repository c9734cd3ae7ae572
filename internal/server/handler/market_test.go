package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/coinwave/tradecore/internal/domain"
)

type stubMarketService struct {
	getFn     func(ctx context.Context, symbol string) (domain.Market, error)
	listFn    func(ctx context.Context) ([]domain.Market, error)
	refreshFn func(ctx context.Context, symbol string) (domain.Market, error)
}

func (s *stubMarketService) GetMarket(ctx context.Context, symbol string) (domain.Market, error) {
	return s.getFn(ctx, symbol)
}

func (s *stubMarketService) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	return s.listFn(ctx)
}

func (s *stubMarketService) Refresh(ctx context.Context, symbol string) (domain.Market, error) {
	return s.refreshFn(ctx, symbol)
}

func sampleMarket() domain.Market {
	return domain.Market{
		Symbol:          "BTC/USDT",
		Base:            "BTC",
		Quote:           "USDT",
		AmountPrecision: 4,
		PricePrecision:  2,
		MinAmount:       decimal.RequireFromString("0.001"),
		MaxAmount:       decimal.RequireFromString("100"),
		MinCost:         decimal.RequireFromString("10"),
		TakerFee:        decimal.RequireFromString("0.002"),
		MakerFee:        decimal.RequireFromString("0.001"),
		Status:          domain.MarketStatusActive,
	}
}

func TestListMarkets(t *testing.T) {
	svc := &stubMarketService{
		listFn: func(context.Context) ([]domain.Market, error) {
			return []domain.Market{sampleMarket()}, nil
		},
	}
	h := NewMarketHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	h.ListMarkets(rec, httptest.NewRequest(http.MethodGet, "/api/markets", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Markets []marketResponse `json:"markets"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Markets) != 1 || resp.Markets[0].Symbol != "BTC/USDT" {
		t.Errorf("markets = %+v", resp.Markets)
	}
	if resp.Markets[0].TakerFee != "0.002" {
		t.Errorf("taker fee rendered as %q", resp.Markets[0].TakerFee)
	}
}

func TestGetMarketNormalizesSymbol(t *testing.T) {
	svc := &stubMarketService{
		getFn: func(_ context.Context, symbol string) (domain.Market, error) {
			if symbol != "BTC/USDT" {
				t.Errorf("symbol = %q, want uppercased BTC/USDT", symbol)
			}
			return sampleMarket(), nil
		},
	}
	h := NewMarketHandler(svc, testLogger())

	r := httptest.NewRequest(http.MethodGet, "/api/markets/btc%2Fusdt", nil)
	r.SetPathValue("symbol", "btc/usdt")
	rec := httptest.NewRecorder()
	h.GetMarket(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetMarketNotFound(t *testing.T) {
	svc := &stubMarketService{
		getFn: func(context.Context, string) (domain.Market, error) {
			return domain.Market{}, domain.ErrNotFound
		},
	}
	h := NewMarketHandler(svc, testLogger())

	r := httptest.NewRequest(http.MethodGet, "/api/markets/NOPE%2FUSDT", nil)
	r.SetPathValue("symbol", "NOPE/USDT")
	rec := httptest.NewRecorder()
	h.GetMarket(rec, r)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestRefreshMarket(t *testing.T) {
	svc := &stubMarketService{
		refreshFn: func(_ context.Context, symbol string) (domain.Market, error) {
			if symbol != "BTC/USDT" {
				t.Errorf("symbol = %q", symbol)
			}
			return sampleMarket(), nil
		},
	}
	h := NewMarketHandler(svc, testLogger())

	r := httptest.NewRequest(http.MethodPost, "/api/markets/BTC%2FUSDT/refresh", nil)
	r.SetPathValue("symbol", "BTC/USDT")
	rec := httptest.NewRecorder()
	h.RefreshMarket(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestListMarketsServiceError(t *testing.T) {
	svc := &stubMarketService{
		listFn: func(context.Context) ([]domain.Market, error) {
			return nil, errors.New("catalog load failed")
		},
	}
	h := NewMarketHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	h.ListMarkets(rec, httptest.NewRequest(http.MethodGet, "/api/markets", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}
