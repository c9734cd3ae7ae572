// Package service contains the engine's business logic: the order lifecycle
// manager, the market catalog, wallet views, and settled-order export.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coinwave/tradecore/internal/domain"
	"github.com/coinwave/tradecore/internal/venue"
)

const (
	// orderLockTTL bounds how long a crashed cancel/reconcile can keep an
	// order locked.
	orderLockTTL = 30 * time.Second

	submitRateLimit  = 10
	submitRateWindow = time.Second

	// auditHistoryLimit caps one order's returned audit trail.
	auditHistoryLimit = 100

	// Pub/Sub channels for order and balance events.
	OrdersChannel  = "tradecore:orders"
	WalletsChannel = "tradecore:wallets"
)

// MarketCatalog is the read-only trading-pair metadata lookup the lifecycle
// manager validates against.
type MarketCatalog interface {
	GetMarket(ctx context.Context, symbol string) (domain.Market, error)
}

// Alerter delivers operator alerts for conditions that imply a balance
// discrepancy. Matched by notify.Notifier.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// SubmitRequest carries one client order submission.
type SubmitRequest struct {
	UserID string
	Symbol string
	Side   domain.OrderSide
	Type   domain.OrderType
	Amount decimal.Decimal
	// Price is the limit price; market orders carry the client's reference
	// price, which sizes the reservation and the fee.
	Price decimal.Decimal
}

// OrderService orchestrates the order lifecycle: validation against market
// rules, funds reservation, venue submission, persistence, settlement, and
// reconciliation/cancellation.
type OrderService struct {
	orders  domain.OrderStore
	wallets domain.WalletStore
	markets MarketCatalog
	venue   venue.Connector
	limiter domain.RateLimiter
	locks   domain.LockManager
	bus     domain.SignalBus
	audit   domain.AuditStore
	alerts  Alerter
	logger  *slog.Logger

	// symmetricFees applies the taker rate on both sides instead of the
	// taker-on-buy / maker-on-sell split.
	symmetricFees bool
}

// NewOrderService creates an OrderService with all required dependencies.
func NewOrderService(
	orders domain.OrderStore,
	wallets domain.WalletStore,
	markets MarketCatalog,
	vc venue.Connector,
	limiter domain.RateLimiter,
	locks domain.LockManager,
	bus domain.SignalBus,
	audit domain.AuditStore,
	alerts Alerter,
	symmetricFees bool,
	logger *slog.Logger,
) *OrderService {
	return &OrderService{
		orders:        orders,
		wallets:       wallets,
		markets:       markets,
		venue:         vc,
		limiter:       limiter,
		locks:         locks,
		bus:           bus,
		audit:         audit,
		alerts:        alerts,
		symmetricFees: symmetricFees,
		logger:        logger,
	}
}

// Submit validates the request against market rules, submits it to the
// venue, reserves the paying wallet, and persists the resulting order.
//
// The debit happens only after the venue accepts: a venue rejection or
// outage leaves the wallet untouched. If the atomic reserve then loses a
// concurrent race, the already-accepted venue order is cancelled
// best-effort before the insufficient-balance error is returned.
func (s *OrderService) Submit(ctx context.Context, req SubmitRequest) (domain.Order, error) {
	allowed, err := s.limiter.Allow(ctx, "submit:"+req.UserID, submitRateLimit, submitRateWindow)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: rate limiter: %w", err)
	}
	if !allowed {
		return domain.Order{}, domain.ErrRateLimited
	}

	base, quote, err := domain.ParseSymbol(req.Symbol)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: %w", err)
	}

	market, err := s.markets.GetMarket(ctx, req.Symbol)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Order{}, fmt.Errorf("order_service: unknown market %s: %w", req.Symbol, domain.ErrValidation)
		}
		return domain.Order{}, fmt.Errorf("order_service: market lookup %s: %w", req.Symbol, err)
	}

	fee, reserved, err := s.orderEconomics(req, market)
	if err != nil {
		return domain.Order{}, err
	}

	reserveCurrency := quote
	if req.Side == domain.OrderSideSell {
		reserveCurrency = base
	}

	// Read-only precheck so an obviously unfunded order never reaches the
	// venue. The authoritative check is the atomic reserve below.
	w, err := s.wallets.Get(ctx, req.UserID, reserveCurrency)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Order{}, domain.ErrInsufficientBalance
		}
		return domain.Order{}, fmt.Errorf("order_service: wallet %s %s: %w", reserveCurrency, req.UserID, err)
	}
	if w.Balance.LessThan(reserved) {
		return domain.Order{}, domain.ErrInsufficientBalance
	}

	vo, err := s.venue.CreateOrder(ctx, venue.CreateRequest{
		Symbol: req.Symbol,
		Type:   req.Type,
		Side:   req.Side,
		Amount: req.Amount,
		Price:  req.Price,
	})
	if err != nil {
		if errors.Is(err, domain.ErrAmbiguousSubmission) {
			s.alert(ctx, "reconciliation_required", "ambiguous order submission",
				fmt.Sprintf("createOrder timed out for user %s on %s; venue order history must be checked before retrying", req.UserID, req.Symbol))
			s.auditLog(ctx, domain.AuditEntry{
				UserID: req.UserID,
				Action: "submit_ambiguous",
				Detail: map[string]any{"symbol": req.Symbol, "side": req.Side, "amount": req.Amount.String()},
			})
		}
		return domain.Order{}, fmt.Errorf("order_service: create order on %s: %w", req.Symbol, err)
	}

	if _, err := s.wallets.Reserve(ctx, req.UserID, reserveCurrency, reserved); err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) || errors.Is(err, domain.ErrNotFound) {
			// Lost the race against a concurrent submission after the venue
			// accepted. Undo the venue order so no untracked order stays live.
			if cancelErr := s.venue.CancelOrder(ctx, vo.Ref, req.Symbol); cancelErr != nil {
				s.alert(ctx, "reconciliation_required", "compensating cancel failed",
					fmt.Sprintf("venue order %s on %s is live but unfunded; manual reconciliation required", vo.Ref, req.Symbol))
				s.auditLog(ctx, domain.AuditEntry{
					UserID: req.UserID,
					Action: "compensating_cancel_failed",
					Detail: map[string]any{"venue_ref": vo.Ref, "symbol": req.Symbol, "error": cancelErr.Error()},
				})
				return domain.Order{}, fmt.Errorf("order_service: venue order %s unfunded and cancel failed: %w",
					vo.Ref, domain.ErrReconciliationRequired)
			}
			return domain.Order{}, domain.ErrInsufficientBalance
		}
		return domain.Order{}, fmt.Errorf("order_service: reserve %s %s: %w", reserveCurrency, req.UserID, err)
	}

	// Authoritative post-submission fetch: market orders may already carry
	// fills. Best-effort; the create response stands on failure.
	if fetched, fetchErr := s.venue.FetchOrder(ctx, vo.Ref, req.Symbol); fetchErr == nil {
		vo = fetched
	}

	o := domain.Order{
		ID:          uuid.New().String(),
		VenueRef:    vo.Ref,
		UserID:      req.UserID,
		Symbol:      req.Symbol,
		Side:        req.Side,
		Type:        req.Type,
		Price:       req.Price,
		Amount:      req.Amount,
		Reserved:    reserved,
		Remaining:   req.Amount,
		Fee:         fee,
		FeeCurrency: quote,
		Status:      domain.OrderStatusOpen,
		CreatedAt:   time.Now().UTC(),
	}

	venueStateTrusted := true
	if err := s.checkVenueNumerics(vo, req.Amount); err != nil {
		// Funds are reserved and the venue order is live, so the order is
		// persisted with its requested shape and flagged; reconciliation
		// picks up the authoritative state later.
		venueStateTrusted = false
		s.alert(ctx, "reconciliation_required", "venue returned inconsistent numerics",
			fmt.Sprintf("order %s (venue %s): %v", o.ID, vo.Ref, err))
		s.auditLog(ctx, domain.AuditEntry{
			UserID:  req.UserID,
			OrderID: o.ID,
			Action:  "venue_numerics_rejected",
			Detail:  map[string]any{"venue_ref": vo.Ref, "error": err.Error()},
		})
	} else {
		s.applyVenueState(&o, vo)
	}

	if err := s.orders.Create(ctx, o); err != nil {
		return domain.Order{}, fmt.Errorf("order_service: persist order %s: %w", o.ID, err)
	}

	s.auditLog(ctx, domain.AuditEntry{
		UserID:  req.UserID,
		OrderID: o.ID,
		Action:  "order_submitted",
		Detail: map[string]any{
			"venue_ref": o.VenueRef,
			"symbol":    o.Symbol,
			"side":      o.Side,
			"type":      o.Type,
			"price":     o.Price.String(),
			"amount":    o.Amount.String(),
			"reserved":  o.Reserved.String(),
		},
	})
	s.publishOrderEvent(ctx, "order_submitted", o)

	// The venue may report the order terminal straight away. A rejected
	// snapshot is never settled from: its status is as suspect as its
	// numbers, and settling here would close the order with a full refund
	// while the venue may have filled it.
	if st := venue.MapStatus(vo.Status); venueStateTrusted && st.Terminal() {
		settled, err := s.settle(ctx, o, st)
		if err != nil {
			return domain.Order{}, err
		}
		o = settled
	}

	s.logger.InfoContext(ctx, "order_service: order submitted",
		slog.String("order_id", o.ID),
		slog.String("venue_ref", o.VenueRef),
		slog.String("symbol", o.Symbol),
		slog.String("side", string(o.Side)),
		slog.String("status", string(o.Status)),
	)
	return o, nil
}

// Get returns one of the user's orders. Orders owned by other users are
// reported as not found.
func (s *OrderService) Get(ctx context.Context, userID, orderID string) (domain.Order, error) {
	o, err := s.orders.GetForUser(ctx, userID, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("order_service: get order %s: %w", orderID, err)
	}
	return o, nil
}

// List returns the user's orders, newest first.
func (s *OrderService) List(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Order, error) {
	orders, err := s.orders.ListByUser(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("order_service: list orders for %s: %w", userID, err)
	}
	return orders, nil
}

// History returns the audit trail of one of the user's orders, newest first.
// The ownership check follows Get: other users' orders read as not found.
func (s *OrderService) History(ctx context.Context, userID, orderID string) ([]domain.AuditEntry, error) {
	if _, err := s.orders.GetForUser(ctx, userID, orderID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("order_service: history %s: %w", orderID, err)
	}

	entries, err := s.audit.List(ctx, orderID, auditHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("order_service: history %s: %w", orderID, err)
	}
	return entries, nil
}

// Cancel cancels an OPEN, unfilled order. The venue's authoritative state is
// re-fetched first; an order the venue already filled or finished cannot be
// cancelled, and the venue-side cancel must succeed before the local refund
// is committed.
func (s *OrderService) Cancel(ctx context.Context, userID, orderID string) (domain.Order, error) {
	o, err := s.orders.GetForUser(ctx, userID, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("order_service: cancel order %s: %w", orderID, err)
	}
	if o.Status == domain.OrderStatusCanceled {
		return o, domain.ErrAlreadyCanceled
	}
	if o.Status.Terminal() {
		return o, domain.ErrOrderNotCancelable
	}

	unlock, err := s.locks.Acquire(ctx, "order:"+orderID, orderLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return domain.Order{}, fmt.Errorf("order_service: cancel order %s: %w", orderID, domain.ErrLockHeld)
		}
		return domain.Order{}, fmt.Errorf("order_service: cancel order %s: lock: %w", orderID, err)
	}
	defer unlock()

	// Never cancel on stale local state.
	vo, err := s.fetchVenueOrder(ctx, o)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: cancel order %s: %w", orderID, err)
	}
	if err := s.checkVenueNumerics(vo, o.Amount); err != nil {
		s.alert(ctx, "reconciliation_required", "venue returned inconsistent numerics",
			fmt.Sprintf("order %s (venue %s): %v", o.ID, o.VenueRef, err))
		return domain.Order{}, fmt.Errorf("order_service: cancel order %s: %w", orderID, domain.ErrReconciliationRequired)
	}

	if st := venue.MapStatus(vo.Status); st.Terminal() {
		// The venue finished the order while the cancel was in flight.
		// Settle the authoritative outcome instead.
		s.applyVenueState(&o, vo)
		settled, err := s.settle(ctx, o, st)
		if err != nil {
			return domain.Order{}, err
		}
		if st == domain.OrderStatusCanceled {
			return settled, domain.ErrAlreadyCanceled
		}
		return settled, domain.ErrOrderNotCancelable
	}

	if vo.Filled.IsPositive() {
		s.applyVenueState(&o, vo)
		if err := s.orders.SyncVenueState(ctx, o); err != nil {
			s.logger.WarnContext(ctx, "order_service: sync before cancel refusal failed",
				slog.String("order_id", o.ID), slog.String("error", err.Error()))
		}
		return o, domain.ErrOrderNotCancelable
	}

	if err := s.venue.CancelOrder(ctx, o.VenueRef, o.Symbol); err != nil {
		return domain.Order{}, fmt.Errorf("order_service: venue cancel %s: %w", o.VenueRef, err)
	}

	settled, err := s.settle(ctx, o, domain.OrderStatusCanceled)
	if err != nil {
		return domain.Order{}, err
	}

	s.logger.InfoContext(ctx, "order_service: order canceled",
		slog.String("order_id", o.ID),
		slog.String("venue_ref", o.VenueRef),
		slog.String("symbol", o.Symbol),
	)
	return settled, nil
}

// Reconcile re-synchronizes one order with the venue's authoritative state,
// settling it if the venue reports a terminal status. Repeated calls on an
// already-settled order return the stored snapshot without re-crediting.
func (s *OrderService) Reconcile(ctx context.Context, userID, orderID string) (domain.Order, error) {
	o, err := s.orders.GetForUser(ctx, userID, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("order_service: reconcile order %s: %w", orderID, err)
	}
	if o.Status.Terminal() {
		return o, nil
	}

	unlock, err := s.locks.Acquire(ctx, "order:"+orderID, orderLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return domain.Order{}, fmt.Errorf("order_service: reconcile order %s: %w", orderID, domain.ErrLockHeld)
		}
		return domain.Order{}, fmt.Errorf("order_service: reconcile order %s: lock: %w", orderID, err)
	}
	defer unlock()

	// Re-read under the lock; a concurrent cancel may have settled the
	// order between the first read and lock acquisition.
	o, err = s.orders.GetForUser(ctx, userID, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: reconcile order %s: %w", orderID, err)
	}
	if o.Status.Terminal() {
		return o, nil
	}

	vo, err := s.fetchVenueOrder(ctx, o)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: reconcile order %s: %w", orderID, err)
	}
	if err := s.checkVenueNumerics(vo, o.Amount); err != nil {
		s.alert(ctx, "reconciliation_required", "venue returned inconsistent numerics",
			fmt.Sprintf("order %s (venue %s): %v", o.ID, o.VenueRef, err))
		return domain.Order{}, fmt.Errorf("order_service: reconcile order %s: %w", orderID, domain.ErrReconciliationRequired)
	}

	s.applyVenueState(&o, vo)

	st := venue.MapStatus(vo.Status)
	if !st.Terminal() {
		if err := s.orders.SyncVenueState(ctx, o); err != nil {
			return domain.Order{}, fmt.Errorf("order_service: reconcile order %s: sync: %w", orderID, err)
		}
		s.publishOrderEvent(ctx, "order_synced", o)
		return o, nil
	}

	settled, err := s.settle(ctx, o, st)
	if err != nil {
		return domain.Order{}, err
	}

	s.logger.InfoContext(ctx, "order_service: order reconciled",
		slog.String("order_id", o.ID),
		slog.String("status", string(settled.Status)),
		slog.String("filled", settled.Filled.String()),
	)
	return settled, nil
}

// --------------------------------------------------------------------------
// Economics
// --------------------------------------------------------------------------

// orderEconomics validates the request against market rules and returns the
// fee and the reservation amount (fee + cost in quote for buys, the base
// amount for sells).
func (s *OrderService) orderEconomics(req SubmitRequest, m domain.Market) (fee, reserved decimal.Decimal, err error) {
	fail := func(msg string) (decimal.Decimal, decimal.Decimal, error) {
		return decimal.Zero, decimal.Zero, fmt.Errorf("order_service: %s: %w", msg, domain.ErrValidation)
	}

	if req.Side != domain.OrderSideBuy && req.Side != domain.OrderSideSell {
		return fail(fmt.Sprintf("unknown side %q", req.Side))
	}
	if req.Type != domain.OrderTypeMarket && req.Type != domain.OrderTypeLimit {
		return fail(fmt.Sprintf("unknown order type %q", req.Type))
	}
	if m.Status != domain.MarketStatusActive {
		return fail(fmt.Sprintf("market %s is %s", m.Symbol, m.Status))
	}
	if !req.Amount.IsPositive() {
		return fail("amount must be positive")
	}
	if !req.Price.IsPositive() {
		return fail("price must be positive")
	}
	// Compare against the truncated value rather than the exponent so that
	// trailing zeros ("1.00000") still read as in-precision.
	if m.AmountPrecision >= 0 && !req.Amount.Equal(req.Amount.Truncate(m.AmountPrecision)) {
		return fail(fmt.Sprintf("amount exceeds %d decimal places", m.AmountPrecision))
	}
	if m.PricePrecision >= 0 && !req.Price.Equal(req.Price.Truncate(m.PricePrecision)) {
		return fail(fmt.Sprintf("price exceeds %d decimal places", m.PricePrecision))
	}
	if req.Amount.LessThan(m.MinAmount) {
		return fail("amount too low")
	}
	if m.MaxAmount.IsPositive() && req.Amount.GreaterThan(m.MaxAmount) {
		return fail("amount too high")
	}

	fee = req.Amount.Mul(req.Price).Mul(s.feeRate(req.Side, m))

	var cost decimal.Decimal
	if req.Side == domain.OrderSideBuy {
		cost = req.Amount.Mul(req.Price).Add(fee)
	} else {
		cost = req.Amount
	}
	if cost.LessThan(m.MinCost) {
		return fail("cost too low")
	}

	return fee, cost, nil
}

// feeRate is the taker rate for buys and the maker rate for sells. The split
// matches long-standing upstream behavior; engine.symmetric_fees applies the
// taker rate on both sides instead.
func (s *OrderService) feeRate(side domain.OrderSide, m domain.Market) decimal.Decimal {
	if s.symmetricFees || side == domain.OrderSideBuy {
		return m.TakerFee
	}
	return m.MakerFee
}

// settlementCredits computes the wallet credits for an order entering a
// terminal state: the receiving wallet is credited from confirmed fills and
// the paying wallet is refunded the unspent part of the reservation. The fee
// stays retained in both cases. Zero credits are dropped; negatives are
// clamped rather than turned into debits.
func settlementCredits(o domain.Order) ([]domain.WalletCredit, error) {
	base, quote, err := domain.ParseSymbol(o.Symbol)
	if err != nil {
		return nil, err
	}

	var credits []domain.WalletCredit
	add := func(currency string, amount decimal.Decimal) {
		if amount.IsPositive() {
			credits = append(credits, domain.WalletCredit{
				UserID:   o.UserID,
				Currency: currency,
				Amount:   amount,
			})
		}
	}

	if o.Side == domain.OrderSideBuy {
		add(base, o.Filled)
		add(quote, o.Reserved.Sub(o.Cost).Sub(o.Fee))
	} else {
		add(quote, o.Cost.Sub(o.Fee))
		add(base, o.Reserved.Sub(o.Filled))
	}
	return credits, nil
}

// --------------------------------------------------------------------------
// Venue state handling
// --------------------------------------------------------------------------

// fetchVenueOrder reads the order's authoritative state, falling back to the
// symbol-wide listing when fetch-by-id reports not found. Fetches are paced
// venue-wide so a burst of cancels or reconciles stays inside the venue's
// request budget.
func (s *OrderService) fetchVenueOrder(ctx context.Context, o domain.Order) (venue.Order, error) {
	if err := s.limiter.Wait(ctx, "venue:fetch"); err != nil {
		return venue.Order{}, fmt.Errorf("venue pacing: %w", err)
	}

	vo, err := s.venue.FetchOrder(ctx, o.VenueRef, o.Symbol)
	if err == nil {
		return vo, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return venue.Order{}, err
	}

	all, listErr := s.venue.FetchOrders(ctx, o.Symbol)
	if listErr != nil {
		return venue.Order{}, listErr
	}
	for _, candidate := range all {
		if candidate.Ref == o.VenueRef {
			return candidate, nil
		}
	}

	s.alert(ctx, "reconciliation_required", "venue order missing",
		fmt.Sprintf("order %s (venue %s on %s) is unknown to the venue", o.ID, o.VenueRef, o.Symbol))
	return venue.Order{}, fmt.Errorf("venue order %s on %s: %w", o.VenueRef, o.Symbol, domain.ErrNotFound)
}

// checkVenueNumerics re-validates venue-reported numeric fields before they
// touch the ledger. The venue is authoritative on status but not trusted on
// arithmetic.
func (s *OrderService) checkVenueNumerics(vo venue.Order, requestedAmount decimal.Decimal) error {
	switch {
	case vo.Filled.IsNegative():
		return fmt.Errorf("negative filled %s", vo.Filled)
	case vo.Filled.GreaterThan(requestedAmount):
		return fmt.Errorf("filled %s exceeds requested amount %s", vo.Filled, requestedAmount)
	case vo.Cost.IsNegative():
		return fmt.Errorf("negative cost %s", vo.Cost)
	case vo.Filled.IsPositive() && !vo.Cost.IsPositive() && !tradeCostSum(vo.Trades).IsPositive():
		// Settling a fill whose cost reads zero would refund the full
		// reservation on top of crediting the fill.
		return fmt.Errorf("filled %s with cost %s and no trade costs", vo.Filled, vo.Cost)
	case vo.Fee.IsNegative():
		return fmt.Errorf("negative fee %s", vo.Fee)
	case vo.Average.IsNegative():
		return fmt.Errorf("negative average price %s", vo.Average)
	}
	for _, t := range vo.Trades {
		if t.Amount.IsNegative() || t.Cost.IsNegative() || t.Price.IsNegative() {
			return fmt.Errorf("negative trade fields on %s", t.ID)
		}
	}
	return nil
}

// tradeCostSum totals the venue-reported per-trade costs. Some venues omit
// the aggregate cost on the order and only itemize it on the trades.
func tradeCostSum(trades []venue.Trade) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range trades {
		sum = sum.Add(t.Cost)
	}
	return sum
}

// applyVenueState copies validated venue-reported fill fields onto the local
// order. Remaining is recomputed locally; the venue-reported fee replaces
// the submit-time estimate only when the venue actually reported one.
func (s *OrderService) applyVenueState(o *domain.Order, vo venue.Order) {
	if vo.Ref != "" {
		o.VenueRef = vo.Ref
	}
	o.Filled = vo.Filled
	o.Remaining = o.Amount.Sub(vo.Filled)
	o.Average = vo.Average
	o.Cost = vo.Cost
	if !o.Cost.IsPositive() && vo.Filled.IsPositive() {
		o.Cost = tradeCostSum(vo.Trades)
	}
	if vo.Fee.IsPositive() {
		o.Fee = vo.Fee
		if vo.FeeCurrency != "" {
			o.FeeCurrency = vo.FeeCurrency
		}
	}

	o.Fills = o.Fills[:0]
	for _, t := range vo.Trades {
		o.Fills = append(o.Fills, domain.Fill{
			VenueTradeID: t.ID,
			Side:         domain.OrderSide(t.Side),
			Amount:       t.Amount,
			Price:        t.Price,
			Cost:         t.Cost,
			Timestamp:    t.Timestamp,
		})
	}
}

// settle moves the order to the given terminal status and applies the wallet
// credits in one storage transaction. A lost compare-and-swap means another
// path settled first; the stored outcome is returned unchanged.
func (s *OrderService) settle(ctx context.Context, o domain.Order, status domain.OrderStatus) (domain.Order, error) {
	o.Status = status

	credits, err := settlementCredits(o)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: settle order %s: %w", o.ID, err)
	}

	applied, err := s.orders.Settle(ctx, o, credits)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: settle order %s: %w", o.ID, err)
	}

	stored, err := s.orders.GetByID(ctx, o.ID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: settle order %s: reload: %w", o.ID, err)
	}

	if !applied {
		return stored, nil
	}

	s.auditLog(ctx, domain.AuditEntry{
		UserID:  o.UserID,
		OrderID: o.ID,
		Action:  "order_settled",
		Detail: map[string]any{
			"status":  status,
			"filled":  o.Filled.String(),
			"cost":    o.Cost.String(),
			"fee":     o.Fee.String(),
			"credits": len(credits),
		},
	})
	s.publishOrderEvent(ctx, "order_settled", stored)
	s.publishWalletEvent(ctx, o.UserID, credits)

	return stored, nil
}

// --------------------------------------------------------------------------
// Side channels
// --------------------------------------------------------------------------

func (s *OrderService) publishOrderEvent(ctx context.Context, event string, o domain.Order) {
	payload, _ := json.Marshal(map[string]string{
		"event":     event,
		"order_id":  o.ID,
		"user_id":   o.UserID,
		"venue_ref": o.VenueRef,
		"symbol":    o.Symbol,
		"side":      string(o.Side),
		"status":    string(o.Status),
		"filled":    o.Filled.String(),
	})
	if err := s.bus.Publish(ctx, OrdersChannel, payload); err != nil {
		s.logger.WarnContext(ctx, "order_service: publish order event failed",
			slog.String("order_id", o.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *OrderService) publishWalletEvent(ctx context.Context, userID string, credits []domain.WalletCredit) {
	if len(credits) == 0 {
		return
	}
	summary := make(map[string]string, len(credits))
	for _, c := range credits {
		summary[c.Currency] = c.Amount.String()
	}
	payload, _ := json.Marshal(map[string]any{
		"event":   "wallet_credited",
		"user_id": userID,
		"credits": summary,
	})
	if err := s.bus.Publish(ctx, WalletsChannel, payload); err != nil {
		s.logger.WarnContext(ctx, "order_service: publish wallet event failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *OrderService) auditLog(ctx context.Context, e domain.AuditEntry) {
	if err := s.audit.Log(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "order_service: audit log failed",
			slog.String("action", e.Action),
			slog.String("error", err.Error()),
		)
	}
}

func (s *OrderService) alert(ctx context.Context, event, title, message string) {
	if s.alerts == nil {
		return
	}
	if err := s.alerts.Notify(ctx, event, title, message); err != nil {
		s.logger.ErrorContext(ctx, "order_service: alert delivery failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
