package handler

import (
	"time"

	"github.com/coinwave/tradecore/internal/domain"
)

// orderResponse is the wire shape of an order. Decimal fields render as
// strings so callers never lose precision to float parsing.
type orderResponse struct {
	ID          string         `json:"id"`
	VenueRef    string         `json:"venue_ref,omitempty"`
	Symbol      string         `json:"symbol"`
	Side        string         `json:"side"`
	Type        string         `json:"type"`
	Price       string         `json:"price"`
	Amount      string         `json:"amount"`
	Filled      string         `json:"filled"`
	Remaining   string         `json:"remaining"`
	Average     string         `json:"average"`
	Cost        string         `json:"cost"`
	Fee         string         `json:"fee"`
	FeeCurrency string         `json:"fee_currency"`
	Status      string         `json:"status"`
	Fills       []fillResponse `json:"fills,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	SettledAt   *time.Time     `json:"settled_at,omitempty"`
}

type fillResponse struct {
	VenueTradeID string    `json:"venue_trade_id"`
	Side         string    `json:"side"`
	Amount       string    `json:"amount"`
	Price        string    `json:"price"`
	Cost         string    `json:"cost"`
	Timestamp    time.Time `json:"timestamp"`
}

func toOrderResponse(o domain.Order) orderResponse {
	resp := orderResponse{
		ID:          o.ID,
		VenueRef:    o.VenueRef,
		Symbol:      o.Symbol,
		Side:        string(o.Side),
		Type:        string(o.Type),
		Price:       o.Price.String(),
		Amount:      o.Amount.String(),
		Filled:      o.Filled.String(),
		Remaining:   o.Remaining.String(),
		Average:     o.Average.String(),
		Cost:        o.Cost.String(),
		Fee:         o.Fee.String(),
		FeeCurrency: o.FeeCurrency,
		Status:      string(o.Status),
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
		SettledAt:   o.SettledAt,
	}
	for _, f := range o.Fills {
		resp.Fills = append(resp.Fills, fillResponse{
			VenueTradeID: f.VenueTradeID,
			Side:         string(f.Side),
			Amount:       f.Amount.String(),
			Price:        f.Price.String(),
			Cost:         f.Cost.String(),
			Timestamp:    f.Timestamp,
		})
	}
	return resp
}

func toOrderResponses(orders []domain.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	return out
}

type auditResponse struct {
	Action    string         `json:"action"`
	OrderID   string         `json:"order_id,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func toAuditResponses(entries []domain.AuditEntry) []auditResponse {
	out := make([]auditResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditResponse{
			Action:    e.Action,
			OrderID:   e.OrderID,
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt,
		})
	}
	return out
}

type walletResponse struct {
	Currency  string    `json:"currency"`
	Balance   string    `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toWalletResponse(w domain.Wallet) walletResponse {
	return walletResponse{
		Currency:  w.Currency,
		Balance:   w.Balance.String(),
		UpdatedAt: w.UpdatedAt,
	}
}

type marketResponse struct {
	Symbol          string `json:"symbol"`
	Base            string `json:"base"`
	Quote           string `json:"quote"`
	AmountPrecision int32  `json:"amount_precision"`
	PricePrecision  int32  `json:"price_precision"`
	MinAmount       string `json:"min_amount"`
	MaxAmount       string `json:"max_amount"`
	MinCost         string `json:"min_cost"`
	TakerFee        string `json:"taker_fee"`
	MakerFee        string `json:"maker_fee"`
	Status          string `json:"status"`
}

func toMarketResponse(m domain.Market) marketResponse {
	return marketResponse{
		Symbol:          m.Symbol,
		Base:            m.Base,
		Quote:           m.Quote,
		AmountPrecision: m.AmountPrecision,
		PricePrecision:  m.PricePrecision,
		MinAmount:       m.MinAmount.String(),
		MaxAmount:       m.MaxAmount.String(),
		MinCost:         m.MinCost.String(),
		TakerFee:        m.TakerFee.String(),
		MakerFee:        m.MakerFee.String(),
		Status:          string(m.Status),
	}
}
