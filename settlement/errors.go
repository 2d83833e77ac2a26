package settlement

import "errors"

var (
	// ErrUnauthorized is returned when a caller lacks the role an operation needs
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUnauthorizedCallback is returned when the swap callback is not
	// invoked by the hub during an in-flight trade
	ErrUnauthorizedCallback = errors.New("unauthorized callback")

	// ErrProfitInvariantViolated is returned when the profit token balance
	// did not grow by at least the minimum net amount
	ErrProfitInvariantViolated = errors.New("profit invariant violated")

	// ErrBribeFundingFailed is returned when the bribe cannot be paid
	ErrBribeFundingFailed = errors.New("bribe funding failed")

	// ErrImmutableExecutor is returned when toggling the main executor
	ErrImmutableExecutor = errors.New("main executor is immutable")

	// ErrReentrantWork is returned when work is entered while a trade is
	// already in flight
	ErrReentrantWork = errors.New("trade already in flight")

	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrBalanceOverflow     = errors.New("balance overflow")
	ErrVenueNotPaid        = errors.New("venue not paid")
	ErrKInvariant          = errors.New("constant product invariant violated")
	ErrUnknownPool         = errors.New("unknown pool")
	ErrInvalidSwap         = errors.New("invalid swap")
	ErrCallDepth           = errors.New("call depth exceeded")
)
