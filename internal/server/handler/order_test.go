package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coinwave/tradecore/internal/domain"
	"github.com/coinwave/tradecore/internal/server/middleware"
	"github.com/coinwave/tradecore/internal/service"
)

type stubOrderService struct {
	submitFn    func(ctx context.Context, req service.SubmitRequest) (domain.Order, error)
	getFn       func(ctx context.Context, userID, orderID string) (domain.Order, error)
	listFn      func(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Order, error)
	cancelFn    func(ctx context.Context, userID, orderID string) (domain.Order, error)
	reconcileFn func(ctx context.Context, userID, orderID string) (domain.Order, error)
	historyFn   func(ctx context.Context, userID, orderID string) ([]domain.AuditEntry, error)
}

func (s *stubOrderService) Submit(ctx context.Context, req service.SubmitRequest) (domain.Order, error) {
	return s.submitFn(ctx, req)
}

func (s *stubOrderService) Get(ctx context.Context, userID, orderID string) (domain.Order, error) {
	return s.getFn(ctx, userID, orderID)
}

func (s *stubOrderService) List(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Order, error) {
	return s.listFn(ctx, userID, opts)
}

func (s *stubOrderService) Cancel(ctx context.Context, userID, orderID string) (domain.Order, error) {
	return s.cancelFn(ctx, userID, orderID)
}

func (s *stubOrderService) Reconcile(ctx context.Context, userID, orderID string) (domain.Order, error) {
	return s.reconcileFn(ctx, userID, orderID)
}

func (s *stubOrderService) History(ctx context.Context, userID, orderID string) ([]domain.AuditEntry, error) {
	return s.historyFn(ctx, userID, orderID)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// serveAs runs fn through the identity middleware so requireUserID sees the
// X-User-ID header the way it does in production.
func serveAs(fn http.HandlerFunc, r *http.Request, userID string) *httptest.ResponseRecorder {
	if userID != "" {
		r.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	middleware.Identity()(fn).ServeHTTP(rec, r)
	return rec
}

func sampleOrder() domain.Order {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return domain.Order{
		ID:          "o1",
		VenueRef:    "v-1",
		UserID:      "u1",
		Symbol:      "BTC/USDT",
		Side:        domain.OrderSideBuy,
		Type:        domain.OrderTypeLimit,
		Price:       decimal.RequireFromString("100"),
		Amount:      decimal.RequireFromString("2"),
		Reserved:    decimal.RequireFromString("200.4"),
		Remaining:   decimal.RequireFromString("2"),
		Fee:         decimal.RequireFromString("0.4"),
		FeeCurrency: "USDT",
		Status:      domain.OrderStatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestSubmitOrderCreated(t *testing.T) {
	var got service.SubmitRequest
	svc := &stubOrderService{
		submitFn: func(_ context.Context, req service.SubmitRequest) (domain.Order, error) {
			got = req
			return sampleOrder(), nil
		},
	}
	h := NewOrderHandler(svc, testLogger())

	body := `{"symbol":"BTC/USDT","side":"BUY","type":"LIMIT","amount":"2","price":"100"}`
	r := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body))
	rec := serveAs(h.SubmitOrder, r, "u1")

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if got.UserID != "u1" || got.Symbol != "BTC/USDT" {
		t.Errorf("service saw request %+v", got)
	}
	if !got.Amount.Equal(decimal.RequireFromString("2")) || !got.Price.Equal(decimal.RequireFromString("100")) {
		t.Errorf("decimals not parsed: amount=%s price=%s", got.Amount, got.Price)
	}

	var resp orderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if resp.ID != "o1" || resp.Status != "OPEN" || resp.Price != "100" {
		t.Errorf("response = %+v", resp)
	}
}

func TestSubmitOrderRequiresIdentity(t *testing.T) {
	h := NewOrderHandler(&stubOrderService{}, testLogger())
	r := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(`{}`))
	rec := serveAs(h.SubmitOrder, r, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestSubmitOrderBadRequests(t *testing.T) {
	h := NewOrderHandler(&stubOrderService{}, testLogger())

	bodies := map[string]string{
		"malformed json": `{`,
		"missing fields": `{"symbol":"BTC/USDT"}`,
		"bad amount":     `{"symbol":"BTC/USDT","side":"BUY","type":"LIMIT","amount":"two","price":"100"}`,
		"bad price":      `{"symbol":"BTC/USDT","side":"BUY","type":"LIMIT","amount":"2","price":""}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body))
			rec := serveAs(h.SubmitOrder, r, "u1")
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestSubmitOrderErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", domain.ErrValidation, http.StatusBadRequest},
		{"insufficient balance", domain.ErrInsufficientBalance, http.StatusPaymentRequired},
		{"market not found", domain.ErrNotFound, http.StatusNotFound},
		{"venue down", domain.ErrVenueUnavailable, http.StatusBadGateway},
		{"venue rejected", domain.ErrOrderRejected, http.StatusUnprocessableEntity},
		{"ambiguous submission", domain.ErrAmbiguousSubmission, http.StatusBadGateway},
		{"rate limited", domain.ErrRateLimited, http.StatusTooManyRequests},
		{"reconciliation required", domain.ErrReconciliationRequired, http.StatusInternalServerError},
		{"unknown", errors.New("pgx: connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubOrderService{
				submitFn: func(context.Context, service.SubmitRequest) (domain.Order, error) {
					return domain.Order{}, tt.err
				},
			}
			h := NewOrderHandler(svc, testLogger())
			body := `{"symbol":"BTC/USDT","side":"BUY","type":"LIMIT","amount":"2","price":"100"}`
			r := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body))
			rec := serveAs(h.SubmitOrder, r, "u1")
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestGetOrder(t *testing.T) {
	svc := &stubOrderService{
		getFn: func(_ context.Context, userID, orderID string) (domain.Order, error) {
			if userID != "u1" || orderID != "o1" {
				t.Errorf("Get(%q, %q)", userID, orderID)
			}
			return sampleOrder(), nil
		},
	}
	h := NewOrderHandler(svc, testLogger())

	r := httptest.NewRequest(http.MethodGet, "/api/orders/o1", nil)
	r.SetPathValue("id", "o1")
	rec := serveAs(h.GetOrder, r, "u1")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetOrderNotFound(t *testing.T) {
	svc := &stubOrderService{
		getFn: func(context.Context, string, string) (domain.Order, error) {
			return domain.Order{}, domain.ErrNotFound
		},
	}
	h := NewOrderHandler(svc, testLogger())

	r := httptest.NewRequest(http.MethodGet, "/api/orders/nope", nil)
	r.SetPathValue("id", "nope")
	rec := serveAs(h.GetOrder, r, "u1")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListOrdersParsesQuery(t *testing.T) {
	var got domain.ListOpts
	svc := &stubOrderService{
		listFn: func(_ context.Context, _ string, opts domain.ListOpts) ([]domain.Order, error) {
			got = opts
			return []domain.Order{sampleOrder()}, nil
		},
	}
	h := NewOrderHandler(svc, testLogger())

	r := httptest.NewRequest(http.MethodGet,
		"/api/orders?limit=9999&offset=20&since=2026-08-01T00:00:00Z", nil)
	rec := serveAs(h.ListOrders, r, "u1")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if got.Limit != 500 {
		t.Errorf("Limit = %d, want clamped to 500", got.Limit)
	}
	if got.Offset != 20 {
		t.Errorf("Offset = %d, want 20", got.Offset)
	}
	if got.Since == nil || !got.Since.Equal(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Since = %v", got.Since)
	}

	var resp struct {
		Orders []orderResponse `json:"orders"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Orders) != 1 {
		t.Errorf("orders = %d, want 1", len(resp.Orders))
	}
}

func TestCancelOrderConflictCarriesSnapshot(t *testing.T) {
	order := sampleOrder()
	order.Status = domain.OrderStatusClosed
	svc := &stubOrderService{
		cancelFn: func(context.Context, string, string) (domain.Order, error) {
			return order, domain.ErrOrderNotCancelable
		},
	}
	h := NewOrderHandler(svc, testLogger())

	r := httptest.NewRequest(http.MethodDelete, "/api/orders/o1", nil)
	r.SetPathValue("id", "o1")
	rec := serveAs(h.CancelOrder, r, "u1")

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	var resp struct {
		Error string        `json:"error"`
		Order orderResponse `json:"order"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error == "" {
		t.Error("conflict response lacks error message")
	}
	if resp.Order.Status != "CLOSED" {
		t.Errorf("snapshot status = %q, want CLOSED", resp.Order.Status)
	}
}

func TestCancelOrderOK(t *testing.T) {
	order := sampleOrder()
	order.Status = domain.OrderStatusCanceled
	svc := &stubOrderService{
		cancelFn: func(context.Context, string, string) (domain.Order, error) {
			return order, nil
		},
	}
	h := NewOrderHandler(svc, testLogger())

	r := httptest.NewRequest(http.MethodDelete, "/api/orders/o1", nil)
	r.SetPathValue("id", "o1")
	rec := serveAs(h.CancelOrder, r, "u1")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSyncOrder(t *testing.T) {
	order := sampleOrder()
	order.Status = domain.OrderStatusClosed
	svc := &stubOrderService{
		reconcileFn: func(_ context.Context, userID, orderID string) (domain.Order, error) {
			if userID != "u1" || orderID != "o1" {
				t.Errorf("Reconcile(%q, %q)", userID, orderID)
			}
			return order, nil
		},
	}
	h := NewOrderHandler(svc, testLogger())

	r := httptest.NewRequest(http.MethodPost, "/api/orders/o1/sync", nil)
	r.SetPathValue("id", "o1")
	rec := serveAs(h.SyncOrder, r, "u1")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp orderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "CLOSED" {
		t.Errorf("status = %q, want CLOSED", resp.Status)
	}
}

func TestOrderHistory(t *testing.T) {
	svc := &stubOrderService{
		historyFn: func(_ context.Context, userID, orderID string) ([]domain.AuditEntry, error) {
			if userID != "u1" || orderID != "o1" {
				t.Errorf("History(%q, %q)", userID, orderID)
			}
			return []domain.AuditEntry{
				{OrderID: "o1", Action: "order_settled"},
				{OrderID: "o1", Action: "order_submitted"},
			}, nil
		},
	}
	h := NewOrderHandler(svc, testLogger())

	r := httptest.NewRequest(http.MethodGet, "/api/orders/o1/audit", nil)
	r.SetPathValue("id", "o1")
	rec := serveAs(h.OrderHistory, r, "u1")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Entries []auditResponse `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Entries) != 2 || resp.Entries[0].Action != "order_settled" {
		t.Errorf("entries = %+v", resp.Entries)
	}
}

func TestOrderHistoryNotFound(t *testing.T) {
	svc := &stubOrderService{
		historyFn: func(context.Context, string, string) ([]domain.AuditEntry, error) {
			return nil, domain.ErrNotFound
		},
	}
	h := NewOrderHandler(svc, testLogger())

	r := httptest.NewRequest(http.MethodGet, "/api/orders/nope/audit", nil)
	r.SetPathValue("id", "nope")
	rec := serveAs(h.OrderHistory, r, "u1")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestSyncOrderMissingID(t *testing.T) {
	h := NewOrderHandler(&stubOrderService{}, testLogger())
	r := httptest.NewRequest(http.MethodPost, "/api/orders//sync", nil)
	rec := serveAs(h.SyncOrder, r, "u1")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
