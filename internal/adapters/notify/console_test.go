package notify_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/riskgate/internal/adapters/notify"
	"github.com/alejandrodnm/riskgate/internal/application/risk"
	"github.com/alejandrodnm/riskgate/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var t0 = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

func snapshot() domain.PortfolioSnapshot {
	pos := domain.Position{
		ID:          "p1",
		Symbol:      "SOL",
		Tier:        domain.TierFoundation,
		EntryPrice:  d("150.3"),
		Quantity:    d("10"),
		EntryTime:   t0.Add(-time.Hour),
		StopLoss:    decimal.NewNullDecimal(d("142.785")),
		EntryFees:   d("1.503"),
		StrategyTag: "breakout-with-a-very-long-name",
	}
	return domain.PortfolioSnapshot{
		At:             t0,
		InitialCapital: d("10000"),
		Cash:           d("8495.497"),
		Equity:         d("9950"),
		Unrealized:     d("-50"),
		Positions: []domain.PositionView{
			{Position: pos, MarkPrice: d("145.5"), Unrealized: d("-49.503")},
		},
		ClosedTrades: 2,
		Breakers: []domain.BreakerStatus{
			{Kind: domain.BreakerDailyLoss, Enabled: true, Active: true, Threshold: d("5"), Current: d("5.2")},
			{Kind: domain.BreakerLiquidity, Enabled: true},
		},
	}
}

func TestConsole_NotifyCycle(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, false)

	exits := []domain.ClosedTrade{{
		Symbol: "ETH", ExitReason: domain.ExitStopLoss, ExitPrice: d("2850"),
		PnL: d("-42.1"), PnLPct: d("-5.3"),
	}}
	rejected := []domain.Rejection{{
		Symbol: "PEPE", Reason: "breaker_blocked",
		Breakers: []domain.BreakerKind{domain.BreakerDailyLoss},
	}}
	require.NoError(t, c.NotifyCycle(context.Background(), snapshot(), exits, rejected))

	out := buf.String()
	assert.Contains(t, out, "[14:30:00] eq $9950.00 (-0.50%)")
	assert.Contains(t, out, "BLOCKED: daily_loss")
	assert.NotContains(t, out, "BLOCKED: daily_loss,liquidity")
	assert.Contains(t, out, "<< ETH stop_loss @ 2850.0000 pnl -$42.10")
	assert.Contains(t, out, "!! PEPE breaker_blocked [daily_loss]")
	assert.Contains(t, out, "SOL")
	assert.Contains(t, out, "142.7850")
}

func TestConsole_NotifyCycleCompact(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, true)

	rejected := make([]domain.Rejection, 5)
	for i := range rejected {
		rejected[i] = domain.Rejection{Symbol: "X", Reason: "insufficient_cash"}
	}
	require.NoError(t, c.NotifyCycle(context.Background(), snapshot(), nil, rejected))

	out := buf.String()
	assert.Contains(t, out, "+2 more rejected")
	assert.NotContains(t, out, "142.7850", "compact mode skips the positions table")
}

func TestConsole_NotifyReport(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, false)

	m := domain.Metrics{
		TotalTrades:    3,
		WinningTrades:  3,
		WinRate:        d("1"),
		ProfitFactor:   domain.ProfitFactorSentinel,
		TotalPnL:       d("120.5"),
		TotalReturnPct: d("1.205"),
		RuntimeDays:    d("2"),
		InitialCapital: d("10000"),
		Cash:           d("10120.5"),
	}
	recent := []domain.ClosedTrade{{
		Symbol: "SOL", Tier: domain.TierFoundation, ExitReason: domain.ExitTakeProfit,
		EntryPrice: d("150"), ExitPrice: d("165"), Quantity: d("10"),
		EntryTime: t0, ExitTime: t0.Add(90 * time.Minute), PnL: d("140.55"), PnLPct: d("9.3"),
	}}
	breakers := []domain.BreakerStatus{
		{Kind: domain.BreakerLiquidity, Enabled: true, Active: true, Symbols: []string{"PEPE"}, Threshold: d("50000"), Current: d("1200")},
		{Kind: domain.BreakerAPIFailure, Enabled: false},
		{Kind: domain.BreakerDrawdown, Enabled: true, Threshold: d("15"), Current: d("3")},
	}
	require.NoError(t, c.NotifyReport(context.Background(), m, recent, breakers))

	out := buf.String()
	assert.Contains(t, out, "PAPER TRADING REPORT")
	assert.Contains(t, out, "inf")
	assert.Contains(t, out, "100.0%")
	assert.Contains(t, out, "1h30m0s")
	assert.Contains(t, out, "ACTIVE")
	assert.Contains(t, out, "PEPE")
	assert.Contains(t, out, "disabled")
	assert.Contains(t, out, "auto")
	assert.Contains(t, out, "reset")
	assert.Contains(t, out, "POSITIVE")
}

func TestConsole_NotifyReportFlat(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, false)

	require.NoError(t, c.NotifyReport(context.Background(), domain.Metrics{}, nil, nil))
	assert.Contains(t, buf.String(), "FLAT")
	assert.NotContains(t, buf.String(), "Recent trades")
}

func TestConsole_PrintSizingShowsRiskReward(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, false)

	c.PrintSizing(risk.SizingDecision{
		Symbol:     "SOL",
		Tier:       domain.TierFoundation,
		EntryPrice: d("100"),
		Quantity:   d("2"),
		StopLoss:   d("95"),
		TakeProfit: d("110"),
	})

	out := buf.String()
	assert.Contains(t, out, "Risk/reward")
	assert.Contains(t, out, "2.00")
	assert.Contains(t, out, "33.33%")
}
