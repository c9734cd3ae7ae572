package rest

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/coinwave/tradecore/internal/venue"
)

// --------------------------------------------------------------------------
// Venue API DTOs
// --------------------------------------------------------------------------

// apiOrder represents an order as returned by the venue's REST API. Numeric
// fields arrive as strings; empty strings decode to zero.
type apiOrder struct {
	OrderID     string     `json:"orderId"`
	Symbol      string     `json:"symbol"`
	Side        string     `json:"side"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	Price       string     `json:"price"`
	Amount      string     `json:"amount"`
	Filled      string     `json:"filled"`
	Remaining   string     `json:"remaining"`
	Average     string     `json:"average"`
	Cost        string     `json:"cost"`
	Fee         string     `json:"fee"`
	FeeCurrency string     `json:"feeCurrency"`
	Trades      []apiTrade `json:"trades"`
	Timestamp   int64      `json:"timestamp"` // unix milliseconds
}

// apiTrade is one fill fragment in a venue order response.
type apiTrade struct {
	TradeID   string `json:"tradeId"`
	Side      string `json:"side"`
	Amount    string `json:"amount"`
	Price     string `json:"price"`
	Cost      string `json:"cost"`
	Timestamp int64  `json:"timestamp"`
}

// apiError is the venue's error envelope on non-2xx responses.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// toVenueOrder converts an apiOrder to a venue.Order. Unparseable numeric
// strings map to zero; the lifecycle manager re-validates every venue number
// before it touches the ledger.
func (o *apiOrder) toVenueOrder() venue.Order {
	vo := venue.Order{
		Ref:         o.OrderID,
		Symbol:      o.Symbol,
		Side:        o.Side,
		Type:        o.Type,
		Status:      o.Status,
		Price:       parseDecimal(o.Price),
		Amount:      parseDecimal(o.Amount),
		Filled:      parseDecimal(o.Filled),
		Remaining:   parseDecimal(o.Remaining),
		Average:     parseDecimal(o.Average),
		Cost:        parseDecimal(o.Cost),
		Fee:         parseDecimal(o.Fee),
		FeeCurrency: o.FeeCurrency,
		Timestamp:   time.UnixMilli(o.Timestamp).UTC(),
	}
	for _, t := range o.Trades {
		vo.Trades = append(vo.Trades, venue.Trade{
			ID:        t.TradeID,
			Side:      t.Side,
			Amount:    parseDecimal(t.Amount),
			Price:     parseDecimal(t.Price),
			Cost:      parseDecimal(t.Cost),
			Timestamp: time.UnixMilli(t.Timestamp).UTC(),
		})
	}
	return vo
}

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
