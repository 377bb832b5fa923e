package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPosition_Valuation(t *testing.T) {
	p := Position{
		Symbol:     "SOL",
		EntryPrice: dec("150.30"),
		Quantity:   dec("10"),
		EntryFees:  dec("1.503"),
	}
	assert.True(t, p.CostBasis().Equal(dec("1504.503")))
	assert.True(t, p.CurrentValue(dec("160")).Equal(dec("1600")))
	assert.True(t, p.UnrealizedPnL(dec("160")).Equal(dec("95.497")))
	assert.InDelta(t, 6.3474, p.UnrealizedPnLPct(dec("160")).InexactFloat64(), 0.0001)
}

func TestPosition_UnrealizedPnLPct_ZeroBasis(t *testing.T) {
	assert.True(t, Position{}.UnrealizedPnLPct(dec("1")).IsZero())
}

func TestClosedTrade_HoldingPeriodAndWin(t *testing.T) {
	ct := ClosedTrade{EntryTime: t0, ExitTime: t0.Add(90 * time.Minute), PnL: dec("0.01")}
	assert.Equal(t, 90*time.Minute, ct.HoldingPeriod())
	assert.True(t, ct.Win())
	ct.PnL = dec("0")
	assert.False(t, ct.Win())
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier(" Growth ")
	require.NoError(t, err)
	assert.Equal(t, TierGrowth, tier)

	_, err = ParseTier("moonshot")
	assert.Error(t, err)
}

func TestParseExitReason(t *testing.T) {
	r, err := ParseExitReason("take_profit")
	require.NoError(t, err)
	assert.Equal(t, ExitTakeProfit, r)

	_, err = ParseExitReason("liquidated")
	assert.Error(t, err)
}

func TestBreakerKind_RoundTripNames(t *testing.T) {
	for _, k := range BreakerKinds {
		parsed, err := ParseBreakerKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	assert.Equal(t, "unknown", BreakerKind(99).String())
	assert.True(t, BreakerDrawdown.Sticky())
	assert.True(t, BreakerConsecutiveLosses.Sticky())
	assert.False(t, BreakerDailyLoss.Sticky())
}

func TestBlockedError(t *testing.T) {
	var err error = &BlockedError{
		Symbol:   "PEPE",
		Tier:     TierOpportunity,
		Breakers: []BreakerKind{BreakerDailyLoss, BreakerLiquidity},
	}
	wrapped := fmt.Errorf("paper.Open: %w", err)

	assert.True(t, errors.Is(wrapped, ErrBreakerBlocked))
	assert.Equal(t, []BreakerKind{BreakerDailyLoss, BreakerLiquidity}, BlockingBreakers(wrapped))
	assert.Contains(t, err.Error(), "daily_loss, liquidity")
	assert.Equal(t, "breaker_blocked", RejectionReason(wrapped))
}

func TestRejectionReason(t *testing.T) {
	assert.Equal(t, "", RejectionReason(nil))
	assert.Equal(t, "insufficient_cash", RejectionReason(fmt.Errorf("x: %w", ErrInsufficientCash)))
	assert.Equal(t, "zero_quantity", RejectionReason(ErrZeroQuantity))
	assert.Equal(t, "error", RejectionReason(errors.New("boom")))
	assert.Nil(t, BlockingBreakers(ErrInsufficientCash))
}
