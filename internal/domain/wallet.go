package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is a single user's balance of a single currency. Balances are
// mutated exclusively through the WalletStore's atomic primitives; a wallet
// balance must never go negative as a result of an operation of this engine.
type Wallet struct {
	UserID    string
	Currency  string
	Balance   decimal.Decimal
	UpdatedAt time.Time
}

// WalletCredit describes one balance increment to apply as part of a
// settlement transaction.
type WalletCredit struct {
	UserID   string
	Currency string
	Amount   decimal.Decimal
}
