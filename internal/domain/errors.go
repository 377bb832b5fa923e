package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Rejections returned by the engine, the sizer and the breaker bank.
// None of them is fatal: the ledger is left untouched when one is returned.
var (
	ErrInsufficientCash     = errors.New("insufficient cash")
	ErrDuplicatePosition    = errors.New("position already open for symbol")
	ErrNoSuchPosition       = errors.New("no open position for symbol")
	ErrBreakerBlocked       = errors.New("trading blocked by circuit breaker")
	ErrInsufficientHistory  = errors.New("insufficient trade history for sizing")
	ErrZeroQuantity         = errors.New("sized quantity rounds to zero")
	ErrNoClosedTrades       = errors.New("no closed trades")
	ErrInvalidOrder         = errors.New("invalid order")
	ErrInvalidSizingRequest = errors.New("invalid sizing request")
	ErrTierAllocation       = errors.New("tier allocation limit exceeded")
	ErrBreakerNotHealed     = errors.New("breaker condition still holds")
)

// BlockedError carries the breakers that blocked an operation.
// errors.Is(err, ErrBreakerBlocked) matches it.
type BlockedError struct {
	Symbol   string
	Tier     Tier
	Breakers []BreakerKind
}

func (e *BlockedError) Error() string {
	names := make([]string, len(e.Breakers))
	for i, k := range e.Breakers {
		names[i] = k.String()
	}
	return fmt.Sprintf("%s: %s (%s) blocked by [%s]",
		ErrBreakerBlocked, e.Symbol, e.Tier, strings.Join(names, ", "))
}

func (e *BlockedError) Is(target error) bool { return target == ErrBreakerBlocked }

// BlockingBreakers extracts the active breaker kinds from err, if any.
func BlockingBreakers(err error) []BreakerKind {
	var be *BlockedError
	if errors.As(err, &be) {
		return be.Breakers
	}
	return nil
}

// RejectionReason maps a rejection to a short stable label, used for
// metrics and journal rows. Unknown errors map to "error".
func RejectionReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientCash):
		return "insufficient_cash"
	case errors.Is(err, ErrDuplicatePosition):
		return "duplicate_position"
	case errors.Is(err, ErrNoSuchPosition):
		return "no_such_position"
	case errors.Is(err, ErrBreakerBlocked):
		return "breaker_blocked"
	case errors.Is(err, ErrInsufficientHistory):
		return "insufficient_history"
	case errors.Is(err, ErrZeroQuantity):
		return "zero_quantity"
	case errors.Is(err, ErrNoClosedTrades):
		return "empty"
	case errors.Is(err, ErrInvalidOrder):
		return "invalid_order"
	case errors.Is(err, ErrInvalidSizingRequest):
		return "invalid_sizing_request"
	case errors.Is(err, ErrTierAllocation):
		return "tier_allocation"
	case errors.Is(err, ErrBreakerNotHealed):
		return "breaker_not_healed"
	}
	return "error"
}
