// Package venue defines the interface to the external trading venue that
// actually matches and executes orders. The venue is consumed as an opaque
// remote service; its matching algorithm is out of scope.
package venue

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coinwave/tradecore/internal/domain"
)

// Order statuses as reported by the venue.
const (
	StatusOpen     = "open"
	StatusClosed   = "closed"
	StatusCanceled = "canceled"
	StatusExpired  = "expired"
	StatusRejected = "rejected"
)

// Order is the venue's authoritative view of one order.
type Order struct {
	Ref         string // venue reference identifier
	Symbol      string
	Side        string
	Type        string
	Status      string
	Price       decimal.Decimal
	Amount      decimal.Decimal
	Filled      decimal.Decimal
	Remaining   decimal.Decimal
	Average     decimal.Decimal
	Cost        decimal.Decimal
	Fee         decimal.Decimal
	FeeCurrency string
	Trades      []Trade
	Timestamp   time.Time
}

// Trade is one fill fragment reported by the venue.
type Trade struct {
	ID        string
	Side      string
	Amount    decimal.Decimal
	Price     decimal.Decimal
	Cost      decimal.Decimal
	Timestamp time.Time
}

// CreateRequest carries the parameters of a new venue order. Price is zero
// for market orders.
type CreateRequest struct {
	Symbol string
	Type   domain.OrderType
	Side   domain.OrderSide
	Amount decimal.Decimal
	Price  decimal.Decimal
}

// Connector is the capability set the engine requires from a venue. All
// calls may fail due to connectivity; unavailability is surfaced as
// domain.ErrVenueUnavailable and is retryable by the caller.
type Connector interface {
	CreateOrder(ctx context.Context, req CreateRequest) (Order, error)
	FetchOrder(ctx context.Context, ref, symbol string) (Order, error)
	// FetchOrders lists the venue's orders for a symbol. It is the fallback
	// path when fetch-by-id is unsupported or returns not-found.
	FetchOrders(ctx context.Context, symbol string) ([]Order, error)
	CancelOrder(ctx context.Context, ref, symbol string) error
}

// MapStatus maps a venue-reported status onto the local order state machine.
// Unknown strings are treated as still-open: reconciliation will pick up the
// real state on a later sync rather than guessing a terminal one.
func MapStatus(s string) domain.OrderStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case StatusClosed, "filled":
		return domain.OrderStatusClosed
	case StatusCanceled, "cancelled":
		return domain.OrderStatusCanceled
	case StatusExpired:
		return domain.OrderStatusExpired
	case StatusRejected:
		return domain.OrderStatusRejected
	default:
		return domain.OrderStatusOpen
	}
}
