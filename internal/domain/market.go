package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MarketStatus represents the lifecycle state of a trading pair.
type MarketStatus string

const (
	MarketStatusActive    MarketStatus = "active"
	MarketStatusSuspended MarketStatus = "suspended"
)

// Market is a read-only snapshot of one trading pair's rules. It is fetched
// fresh per request; this engine consumes but never mutates it.
type Market struct {
	Symbol          string // "BTC/USDT"
	Base            string
	Quote           string
	AmountPrecision int32 // max decimal places for order amounts
	PricePrecision  int32
	MinAmount       decimal.Decimal
	MaxAmount       decimal.Decimal // zero means unbounded
	MinCost         decimal.Decimal
	TakerFee        decimal.Decimal // rate, e.g. 0.002
	MakerFee        decimal.Decimal
	Status          MarketStatus
	UpdatedAt       time.Time
}

// ParseSymbol splits a "BASE/QUOTE" trading symbol into its currencies.
func ParseSymbol(symbol string) (base, quote string, err error) {
	parts := strings.Split(symbol, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: malformed symbol %q", ErrValidation, symbol)
	}
	return strings.ToUpper(parts[0]), strings.ToUpper(parts[1]), nil
}
