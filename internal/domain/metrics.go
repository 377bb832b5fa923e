package domain

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ProfitFactorSentinel stands in for an infinite profit factor (no losing trades).
var ProfitFactorSentinel = decimal.NewFromInt(999)

// Metrics is the performance summary derived from the closed-trade log.
type Metrics struct {
	TotalTrades     int
	WinningTrades   int
	LosingTrades    int
	WinRate         decimal.Decimal // 0..1
	AvgWin          decimal.Decimal
	AvgLoss         decimal.Decimal // positive
	GrossProfit     decimal.Decimal
	GrossLoss       decimal.Decimal // positive
	ProfitFactor    decimal.Decimal
	TotalPnL        decimal.Decimal
	TotalReturnPct  decimal.Decimal
	MaxDrawdownPct  decimal.Decimal
	SharpeRatio     decimal.Decimal
	TotalFees       decimal.Decimal
	RuntimeDays     decimal.Decimal
	TradesPerDay    decimal.Decimal
	AvgHoldingHours decimal.Decimal

	// Ledger context, filled by the engine. Zero when computed from a journal.
	InitialCapital decimal.Decimal
	Cash           decimal.Decimal
	OpenPositions  int
}

// ComputeMetrics derives Metrics from closed trades. Trades are replayed in
// exit-time order over an equity curve seeded at initialCapital.
func ComputeMetrics(trades []ClosedTrade, initialCapital decimal.Decimal, start, now time.Time) (Metrics, error) {
	if len(trades) == 0 {
		return Metrics{}, ErrNoClosedTrades
	}

	ordered := make([]ClosedTrade, len(trades))
	copy(ordered, trades)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ExitTime.Before(ordered[j].ExitTime)
	})

	m := Metrics{
		TotalTrades:    len(ordered),
		InitialCapital: initialCapital,
	}

	var holding time.Duration
	for _, t := range ordered {
		m.TotalPnL = m.TotalPnL.Add(t.PnL)
		m.TotalFees = m.TotalFees.Add(t.TotalFees)
		holding += t.HoldingPeriod()
		if t.Win() {
			m.WinningTrades++
			m.GrossProfit = m.GrossProfit.Add(t.PnL)
		} else {
			m.LosingTrades++
			m.GrossLoss = m.GrossLoss.Add(t.PnL.Abs())
		}
	}

	total := decimal.NewFromInt(int64(m.TotalTrades))
	m.WinRate = decimal.NewFromInt(int64(m.WinningTrades)).Div(total)
	if m.WinningTrades > 0 {
		m.AvgWin = m.GrossProfit.Div(decimal.NewFromInt(int64(m.WinningTrades)))
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = m.GrossLoss.Div(decimal.NewFromInt(int64(m.LosingTrades)))
	}
	if m.GrossLoss.IsZero() {
		m.ProfitFactor = ProfitFactorSentinel
	} else {
		m.ProfitFactor = m.GrossProfit.Div(m.GrossLoss)
	}
	if initialCapital.IsPositive() {
		m.TotalReturnPct = m.TotalPnL.Mul(hundred).Div(initialCapital)
	}

	m.MaxDrawdownPct = maxDrawdownPct(ordered, initialCapital)
	m.SharpeRatio = sharpe(ordered)

	runtime := now.Sub(start)
	if runtime > 0 {
		m.RuntimeDays = decimal.NewFromInt(int64(runtime)).Div(decimal.NewFromInt(int64(24 * time.Hour)))
		m.TradesPerDay = total.Div(m.RuntimeDays)
	}
	m.AvgHoldingHours = decimal.NewFromInt(int64(holding)).
		Div(decimal.NewFromInt(int64(time.Hour))).
		Div(total)

	return m, nil
}

// maxDrawdownPct returns the worst peak-to-trough decline, in percent.
func maxDrawdownPct(ordered []ClosedTrade, initialCapital decimal.Decimal) decimal.Decimal {
	equity := initialCapital
	peak := initialCapital
	worst := decimal.Zero
	for _, t := range ordered {
		equity = equity.Add(t.PnL)
		if equity.GreaterThan(peak) {
			peak = equity
		}
		if !peak.IsPositive() {
			continue
		}
		dd := peak.Sub(equity).Mul(hundred).Div(peak)
		if dd.GreaterThan(worst) {
			worst = dd
		}
	}
	return worst
}

// sharpe is the mean per-trade return over its population standard deviation.
func sharpe(trades []ClosedTrade) decimal.Decimal {
	if len(trades) < 2 {
		return decimal.Zero
	}
	n := decimal.NewFromInt(int64(len(trades)))

	sum := decimal.Zero
	for _, t := range trades {
		sum = sum.Add(t.PnLPct)
	}
	mean := sum.Div(n)

	variance := decimal.Zero
	for _, t := range trades {
		d := t.PnLPct.Sub(mean)
		variance = variance.Add(d.Mul(d))
	}
	variance = variance.Div(n)

	std := Sqrt(variance)
	if std.IsZero() {
		return decimal.Zero
	}
	return mean.Div(std)
}

// Sqrt returns the square root of d using Newton's method seeded from
// float64. Non-positive inputs return zero.
func Sqrt(d decimal.Decimal) decimal.Decimal {
	if !d.IsPositive() {
		return decimal.Zero
	}
	x := decimal.NewFromFloat(math.Sqrt(d.InexactFloat64()))
	if !x.IsPositive() {
		x = d
	}
	two := decimal.NewFromInt(2)
	for i := 0; i < 10; i++ {
		next := x.Add(d.Div(x)).Div(two)
		if next.Equal(x) {
			break
		}
		x = next
	}
	return x.Round(int32(decimal.DivisionPrecision))
}
