package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OrderStore persists the order record. Settlement and venue-state sync are
// the only mutation paths; there is no delete.
type OrderStore interface {
	Create(ctx context.Context, order Order) error
	GetByID(ctx context.Context, id string) (Order, error)
	// GetForUser is the authorization-scoped lookup: it returns ErrNotFound
	// when the order exists but belongs to another user.
	GetForUser(ctx context.Context, userID, id string) (Order, error)
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Order, error)
	// ListSettledBefore returns terminal orders settled strictly before the
	// cutoff, for archival.
	ListSettledBefore(ctx context.Context, before time.Time) ([]Order, error)
	// SyncVenueState writes venue-reported fill fields (filled, remaining,
	// average, cost, fee, fills) onto an order that is still OPEN. Terminal
	// rows are left untouched.
	SyncVenueState(ctx context.Context, order Order) error
	// Settle transitions the order from OPEN to the terminal status carried
	// in order.Status and applies the given wallet credits, all in one
	// storage transaction. The transition is a compare-and-swap on the
	// current status: if the row is no longer OPEN, no credit is applied and
	// Settle reports applied == false. This is what makes settlement
	// at-most-once under concurrent cancel/reconcile.
	Settle(ctx context.Context, order Order, credits []WalletCredit) (applied bool, err error)
}

// WalletStore holds per-user, per-currency balances with atomic mutation
// primitives. Reserve must express its non-negativity check inside the same
// storage operation that performs the decrement.
type WalletStore interface {
	Get(ctx context.Context, userID, currency string) (Wallet, error)
	ListByUser(ctx context.Context, userID string) ([]Wallet, error)
	// Reserve atomically decrements the balance, failing with
	// ErrInsufficientBalance if the result would be negative.
	Reserve(ctx context.Context, userID, currency string, amount decimal.Decimal) (Wallet, error)
	// Credit atomically increments the balance.
	Credit(ctx context.Context, userID, currency string, amount decimal.Decimal) (Wallet, error)
}

// MarketStore is the read-only market catalog lookup. The catalog is owned
// by an external collaborator; this engine only reads it.
type MarketStore interface {
	GetBySymbol(ctx context.Context, symbol string) (Market, error)
	ListActive(ctx context.Context) ([]Market, error)
}

// AuditEntry is a single audit log row. OrderID may be empty for events not
// tied to one order.
type AuditEntry struct {
	ID        int64
	UserID    string
	OrderID   string
	Action    string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, entry AuditEntry) error
	List(ctx context.Context, orderID string, limit int) ([]AuditEntry, error)
}
