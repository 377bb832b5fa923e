package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func trade(pnl, pct string, exitAfter time.Duration) ClosedTrade {
	return ClosedTrade{
		Symbol:    "BTC",
		Tier:      TierFoundation,
		EntryTime: t0,
		ExitTime:  t0.Add(exitAfter),
		PnL:       dec(pnl),
		PnLPct:    dec(pct),
		TotalFees: dec("1"),
	}
}

func TestComputeMetrics_Empty(t *testing.T) {
	_, err := ComputeMetrics(nil, dec("10000"), t0, t0.Add(time.Hour))
	assert.ErrorIs(t, err, ErrNoClosedTrades)
}

func TestComputeMetrics_Basic(t *testing.T) {
	trades := []ClosedTrade{
		trade("100", "10", time.Hour),
		trade("-50", "-5", 2*time.Hour),
		trade("200", "20", 3*time.Hour),
	}
	m, err := ComputeMetrics(trades, dec("10000"), t0, t0.Add(48*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 3, m.TotalTrades)
	assert.Equal(t, 2, m.WinningTrades)
	assert.Equal(t, 1, m.LosingTrades)
	assert.InDelta(t, 0.6667, m.WinRate.InexactFloat64(), 0.0001)
	assert.True(t, m.AvgWin.Equal(dec("150")), m.AvgWin.String())
	assert.True(t, m.AvgLoss.Equal(dec("50")), m.AvgLoss.String())
	assert.True(t, m.ProfitFactor.Equal(dec("6")), m.ProfitFactor.String())
	assert.True(t, m.TotalPnL.Equal(dec("250")))
	assert.True(t, m.TotalReturnPct.Equal(dec("2.5")))
	assert.True(t, m.TotalFees.Equal(dec("3")))
	// peak 10100, trough 10050
	assert.InDelta(t, 0.49505, m.MaxDrawdownPct.InexactFloat64(), 0.00001)
	assert.InDelta(t, 0.8111, m.SharpeRatio.InexactFloat64(), 0.001)
	assert.True(t, m.RuntimeDays.Equal(dec("2")))
	assert.True(t, m.TradesPerDay.Equal(dec("1.5")))
	assert.True(t, m.AvgHoldingHours.Equal(dec("2")))
}

func TestComputeMetrics_NoLossesUsesSentinel(t *testing.T) {
	trades := []ClosedTrade{
		trade("10", "1", time.Hour),
		trade("20", "2", 2*time.Hour),
	}
	m, err := ComputeMetrics(trades, dec("1000"), t0, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, m.ProfitFactor.Equal(ProfitFactorSentinel))
	assert.True(t, m.MaxDrawdownPct.IsZero())
}

func TestComputeMetrics_BreakevenCountsAsLoss(t *testing.T) {
	m, err := ComputeMetrics([]ClosedTrade{trade("0", "0", time.Hour)}, dec("1000"), t0, t0)
	require.NoError(t, err)
	assert.Equal(t, 0, m.WinningTrades)
	assert.Equal(t, 1, m.LosingTrades)
	// zero gross loss still reads as no losses
	assert.True(t, m.ProfitFactor.Equal(ProfitFactorSentinel))
}

func TestComputeMetrics_SharpeNeedsTwoTrades(t *testing.T) {
	m, err := ComputeMetrics([]ClosedTrade{trade("50", "5", time.Hour)}, dec("1000"), t0, t0)
	require.NoError(t, err)
	assert.True(t, m.SharpeRatio.IsZero())
}

func TestComputeMetrics_SharpeZeroStdDev(t *testing.T) {
	trades := []ClosedTrade{
		trade("50", "5", time.Hour),
		trade("50", "5", 2*time.Hour),
	}
	m, err := ComputeMetrics(trades, dec("1000"), t0, t0)
	require.NoError(t, err)
	assert.True(t, m.SharpeRatio.IsZero())
}

func TestComputeMetrics_ZeroRuntime(t *testing.T) {
	m, err := ComputeMetrics([]ClosedTrade{trade("5", "1", time.Hour)}, dec("1000"), t0, t0)
	require.NoError(t, err)
	assert.True(t, m.RuntimeDays.IsZero())
	assert.True(t, m.TradesPerDay.IsZero())
}

func TestComputeMetrics_DrawdownReplaysByExitTime(t *testing.T) {
	// Given out of order: the loss happens after the win.
	trades := []ClosedTrade{
		trade("-200", "-20", 2*time.Hour),
		trade("1000", "100", time.Hour),
	}
	m, err := ComputeMetrics(trades, dec("1000"), t0, t0)
	require.NoError(t, err)
	// 1000 -> 2000 -> 1800: 10% off the peak, not 20% off the start
	assert.True(t, m.MaxDrawdownPct.Equal(dec("10")), m.MaxDrawdownPct.String())
}

// --- Sqrt ---

func TestSqrt(t *testing.T) {
	assert.True(t, Sqrt(dec("144")).Equal(dec("12")))
	assert.True(t, Sqrt(dec("0.25")).Equal(dec("0.5")))
	assert.InDelta(t, 1.41421356, Sqrt(dec("2")).InexactFloat64(), 1e-8)
	assert.True(t, Sqrt(decimal.Zero).IsZero())
	assert.True(t, Sqrt(dec("-4")).IsZero())
}
