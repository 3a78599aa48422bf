package proxy

import "errors"

var (
	// ErrNotOwner is returned when a non-owner calls an owner-only
	// administrative operation.
	ErrNotOwner = errors.New("caller is not the owner")

	// ErrPaused is returned when a fund-moving operation is attempted while
	// deposits are paused.
	ErrPaused = errors.New("deposits are paused")

	// ErrReentrantCall is returned when a guarded operation is entered while
	// another guarded operation is still in flight.
	ErrReentrantCall = errors.New("reentrant call into guarded operation")

	// ErrBalanceDecreased is the fatal accounting violation: the engine's
	// stablecoin balance after a swap was lower than before it.
	ErrBalanceDecreased = errors.New("stablecoin balance decreased during swap")

	// ErrBelowMinimum is returned when the measured swap output is below the
	// caller's minimum. Distinct from an adapter failure so callers can tell
	// slippage apart from a broken swap.
	ErrBelowMinimum = errors.New("swap output below minimum stablecoin amount")

	// ErrMissingForwardedSender is returned when the trusted forwarder
	// relays a call without an embedded sender.
	ErrMissingForwardedSender = errors.New("forwarded call has no embedded sender")
)
