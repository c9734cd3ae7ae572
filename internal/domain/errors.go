package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("invalid order parameters")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrVenueUnavailable    = errors.New("venue unavailable")
	ErrOrderRejected       = errors.New("order rejected by venue")
	// ErrAmbiguousSubmission signals a timed-out createOrder call: the venue
	// may or may not have accepted the order. The caller must re-query order
	// history before retrying.
	ErrAmbiguousSubmission = errors.New("venue submission outcome unknown")
	ErrOrderNotCancelable  = errors.New("order not cancelable")
	ErrAlreadyCanceled     = errors.New("order already canceled")
	// ErrReconciliationRequired marks conditions that imply a balance
	// discrepancy; these are never swallowed as generic failures.
	ErrReconciliationRequired = errors.New("reconciliation required")
	ErrRateLimited            = errors.New("rate limited")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrLockHeld               = errors.New("lock already held")
)
