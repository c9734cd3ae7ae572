package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coinwave/tradecore/internal/domain"
)

type stubWalletService struct {
	getFn  func(ctx context.Context, userID, currency string) (domain.Wallet, error)
	listFn func(ctx context.Context, userID string) ([]domain.Wallet, error)
}

func (s *stubWalletService) GetBalance(ctx context.Context, userID, currency string) (domain.Wallet, error) {
	return s.getFn(ctx, userID, currency)
}

func (s *stubWalletService) ListBalances(ctx context.Context, userID string) ([]domain.Wallet, error) {
	return s.listFn(ctx, userID)
}

func TestListWallets(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	svc := &stubWalletService{
		listFn: func(_ context.Context, userID string) ([]domain.Wallet, error) {
			if userID != "u1" {
				t.Errorf("userID = %q", userID)
			}
			return []domain.Wallet{
				{UserID: "u1", Currency: "BTC", Balance: decimal.RequireFromString("1.5"), UpdatedAt: now},
				{UserID: "u1", Currency: "USDT", Balance: decimal.RequireFromString("250"), UpdatedAt: now},
			}, nil
		},
	}
	h := NewWalletHandler(svc, testLogger())

	r := httptest.NewRequest(http.MethodGet, "/api/wallets", nil)
	rec := serveAs(h.ListWallets, r, "u1")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Wallets []walletResponse `json:"wallets"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Wallets) != 2 || resp.Wallets[0].Balance != "1.5" {
		t.Errorf("wallets = %+v", resp.Wallets)
	}
}

func TestGetWalletUppercasesCurrency(t *testing.T) {
	svc := &stubWalletService{
		getFn: func(_ context.Context, _, currency string) (domain.Wallet, error) {
			if currency != "USDT" {
				t.Errorf("currency = %q, want USDT", currency)
			}
			return domain.Wallet{UserID: "u1", Currency: "USDT", Balance: decimal.RequireFromString("42")}, nil
		},
	}
	h := NewWalletHandler(svc, testLogger())

	r := httptest.NewRequest(http.MethodGet, "/api/wallets/usdt", nil)
	r.SetPathValue("currency", "usdt")
	rec := serveAs(h.GetWallet, r, "u1")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetWalletNotFound(t *testing.T) {
	svc := &stubWalletService{
		getFn: func(context.Context, string, string) (domain.Wallet, error) {
			return domain.Wallet{}, domain.ErrNotFound
		},
	}
	h := NewWalletHandler(svc, testLogger())

	r := httptest.NewRequest(http.MethodGet, "/api/wallets/DOGE", nil)
	r.SetPathValue("currency", "DOGE")
	rec := serveAs(h.GetWallet, r, "u1")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestWalletsRequireIdentity(t *testing.T) {
	h := NewWalletHandler(&stubWalletService{}, testLogger())
	r := httptest.NewRequest(http.MethodGet, "/api/wallets", nil)
	rec := serveAs(h.ListWallets, r, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
