package pool

import "errors"

// Failure classes. Reentrancy, malformed ranges, wrong-side limits and
// arithmetic overflow are invariant violations; payment shortfalls,
// permission and fee-policy failures get their own sentinels so callers
// can branch with errors.Is. Every failure leaves persistent state
// untouched.
var (
	ErrLocked             = errors.New("pool: reentrant call")
	ErrAlreadyInitialized = errors.New("pool: already initialized")
	ErrNotInitialized     = errors.New("pool: not initialized")
	ErrTickRange          = errors.New("pool: invalid tick range")
	ErrPriceLimit         = errors.New("pool: price limit on wrong side of current price")
	ErrZeroAmount         = errors.New("pool: amount must be positive")
	ErrLiquidityOverflow  = errors.New("pool: active liquidity overflow")
	ErrNoLiquidity        = errors.New("pool: no active liquidity")

	ErrInsufficientPayment = errors.New("pool: settlement callback did not deliver owed balance")

	ErrNotAuthorized = errors.New("pool: caller is not the fee authority")

	ErrInvalidFeeProtocol = errors.New("pool: protocol fee fraction must be 0 or in [4,10]")

	ErrTickNotInitialized = errors.New("pool: range boundary tick not initialized")
)
