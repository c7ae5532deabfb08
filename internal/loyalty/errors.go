package loyalty

import "errors"

// Engine error taxonomy. These bubble unhandled to the caller of
// ProcessRedemption; the bot layer maps them to user-visible messages.
var (
	// ErrNotFound is returned when a referenced user or place is missing.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientBalance is returned when an explicit points_to_spend
	// exceeds the user's current balance.
	ErrInsufficientBalance = errors.New("insufficient points balance")

	// ErrConfigUnavailable is returned when the global loyalty config cannot
	// be read. The engine fails closed: no hardcoded defaults enter the
	// financial computation.
	ErrConfigUnavailable = errors.New("loyalty config unavailable")

	// ErrInvalidAmount is returned when the gross purchase amount is not
	// strictly positive.
	ErrInvalidAmount = errors.New("invalid amount: must be positive")
)
