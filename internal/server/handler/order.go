package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/coinwave/tradecore/internal/domain"
	"github.com/coinwave/tradecore/internal/service"
)

// OrderService defines the methods the order handler requires from the
// service layer.
type OrderService interface {
	Submit(ctx context.Context, req service.SubmitRequest) (domain.Order, error)
	Get(ctx context.Context, userID, orderID string) (domain.Order, error)
	List(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Order, error)
	Cancel(ctx context.Context, userID, orderID string) (domain.Order, error)
	Reconcile(ctx context.Context, userID, orderID string) (domain.Order, error)
	History(ctx context.Context, userID, orderID string) ([]domain.AuditEntry, error)
}

// OrderHandler serves order lifecycle HTTP endpoints.
type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler with the given service and logger.
func NewOrderHandler(orders OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

// submitOrderRequest is the JSON body for order submission. Numeric fields
// are strings to avoid float rounding on the wire.
type submitOrderRequest struct {
	Symbol string `json:"symbol"`
	Side   string `json:"side"`
	Type   string `json:"type"`
	Amount string `json:"amount"`
	Price  string `json:"price"`
}

// SubmitOrder creates a new order.
// POST /api/orders
func (h *OrderHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var body submitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.Symbol == "" || body.Side == "" || body.Type == "" {
		writeError(w, http.StatusBadRequest, "symbol, side and type are required")
		return
	}

	amount, err := decimal.NewFromString(body.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount: "+body.Amount)
		return
	}
	price, err := decimal.NewFromString(body.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid price: "+body.Price)
		return
	}

	order, err := h.orders.Submit(r.Context(), service.SubmitRequest{
		UserID: userID,
		Symbol: body.Symbol,
		Side:   domain.OrderSide(body.Side),
		Type:   domain.OrderType(body.Type),
		Amount: amount,
		Price:  price,
	})
	if err != nil {
		if status := domainStatus(err); status != 0 {
			writeError(w, status, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: submit order failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to submit order")
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

// ListOrders returns the acting user's orders, newest first.
// GET /api/orders?limit=50&offset=0&since=...&until=...
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	orders, err := h.orders.List(r.Context(), userID, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list orders failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"orders": toOrderResponses(orders)})
}

// GetOrder returns a single order.
// GET /api/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.orders.Get(r.Context(), userID, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get order failed",
			slog.String("order_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get order")
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// CancelOrder cancels an open order. A cancel the venue refused (already
// filled or finished) returns 409 with the authoritative order snapshot.
// DELETE /api/orders/{id}
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.orders.Cancel(r.Context(), userID, id)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyCanceled) || errors.Is(err, domain.ErrOrderNotCancelable) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"error": err.Error(),
				"order": toOrderResponse(order),
			})
			return
		}
		if status := domainStatus(err); status != 0 {
			writeError(w, status, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: cancel order failed",
			slog.String("order_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to cancel order")
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// OrderHistory returns the audit trail recorded for one order.
// GET /api/orders/{id}/audit
func (h *OrderHandler) OrderHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	entries, err := h.orders.History(r.Context(), userID, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: order history failed",
			slog.String("order_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load order history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": toAuditResponses(entries)})
}

// SyncOrder re-synchronizes one order with the venue's state.
// POST /api/orders/{id}/sync
func (h *OrderHandler) SyncOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.orders.Reconcile(r.Context(), userID, id)
	if err != nil {
		if status := domainStatus(err); status != 0 {
			writeError(w, status, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: sync order failed",
			slog.String("order_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to sync order")
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}
