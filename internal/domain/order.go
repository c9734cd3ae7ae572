package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType distinguishes market from limit orders.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrderStatus tracks the order lifecycle. OPEN is the only non-terminal
// state; no transition out of a terminal state is permitted.
type OrderStatus string

const (
	OrderStatusOpen     OrderStatus = "OPEN"
	OrderStatusClosed   OrderStatus = "CLOSED"
	OrderStatusCanceled OrderStatus = "CANCELED"
	OrderStatusExpired  OrderStatus = "EXPIRED"
	OrderStatusRejected OrderStatus = "REJECTED"
)

// Terminal reports whether the status permits no further transitions.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusClosed, OrderStatusCanceled, OrderStatusExpired, OrderStatusRejected:
		return true
	}
	return false
}

// Order represents one user's trading intent and its outcome. Orders are a
// financial record: rows are created once, mutated only by settlement and
// reconciliation, and never deleted.
type Order struct {
	ID       string // locally generated
	VenueRef string // assigned once the venue accepts the order; empty before
	UserID   string
	Symbol   string // e.g. "BTC/USDT"
	Side     OrderSide
	Type     OrderType
	// Price is the requested limit price. Market orders carry the client's
	// reference price here; it sizes the reservation and the fee.
	Price  decimal.Decimal
	Amount decimal.Decimal
	// Reserved is the exact amount debited from the paying wallet at
	// submission: price*amount+fee in quote for buys, amount in base for
	// sells. Settlement refunds Reserved minus what the fills consumed.
	Reserved    decimal.Decimal
	Filled      decimal.Decimal
	Remaining   decimal.Decimal
	Average     decimal.Decimal // average fill price
	Cost        decimal.Decimal // quote value exchanged (base amount for sells)
	Fee         decimal.Decimal
	FeeCurrency string
	Status      OrderStatus
	Fills       []Fill
	CreatedAt   time.Time
	UpdatedAt   time.Time
	SettledAt   *time.Time
}

// Fill is a single sub-execution of an order reported by the venue.
type Fill struct {
	VenueTradeID string
	Side         OrderSide
	Amount       decimal.Decimal
	Price        decimal.Decimal
	Cost         decimal.Decimal
	Timestamp    time.Time
}
