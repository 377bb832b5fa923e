package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BreakerKind identifies one of the fixed circuit breakers.
type BreakerKind int

const (
	BreakerDailyLoss BreakerKind = iota
	BreakerWeeklyLoss
	BreakerDrawdown
	BreakerVolatility
	BreakerLiquidity
	BreakerAPIFailure
	BreakerConsecutiveLosses
)

// BreakerKinds lists every kind in evaluation order.
var BreakerKinds = []BreakerKind{
	BreakerDailyLoss,
	BreakerWeeklyLoss,
	BreakerDrawdown,
	BreakerVolatility,
	BreakerLiquidity,
	BreakerAPIFailure,
	BreakerConsecutiveLosses,
}

func (k BreakerKind) String() string {
	switch k {
	case BreakerDailyLoss:
		return "daily_loss"
	case BreakerWeeklyLoss:
		return "weekly_loss"
	case BreakerDrawdown:
		return "drawdown"
	case BreakerVolatility:
		return "volatility"
	case BreakerLiquidity:
		return "liquidity"
	case BreakerAPIFailure:
		return "api_failure"
	case BreakerConsecutiveLosses:
		return "consecutive_losses"
	default:
		return "unknown"
	}
}

// ParseBreakerKind is the inverse of String.
func ParseBreakerKind(s string) (BreakerKind, error) {
	for _, k := range BreakerKinds {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown breaker %q", s)
}

// Sticky reports whether the breaker only clears through an explicit reset
// (drawdown) or an explicit counter-reset event (consecutive losses).
func (k BreakerKind) Sticky() bool {
	return k == BreakerDrawdown || k == BreakerConsecutiveLosses
}

// BreakerEvent records a breaker tripping or clearing.
type BreakerEvent struct {
	Seq       int64 // monotonic per bank, starts at 1
	Kind      BreakerKind
	Symbol    string // only set for symbol-scoped breakers (liquidity)
	Tripped   bool   // false means the breaker cleared
	Threshold decimal.Decimal
	Actual    decimal.Decimal
	Message   string
	At        time.Time
}

// BreakerStatus is a read-only view of one breaker.
type BreakerStatus struct {
	Kind      BreakerKind
	Enabled   bool
	Active    bool
	Symbols   []string // liquidity: symbols currently below the floor
	Threshold decimal.Decimal
	Current   decimal.Decimal
	Since     time.Time
}
