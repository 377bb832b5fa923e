package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ExitReason says why a position was closed.
type ExitReason string

const (
	ExitManual     ExitReason = "manual"
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
	ExitTimeout    ExitReason = "timeout"
)

// Valid reports whether r is a known exit reason.
func (r ExitReason) Valid() bool {
	switch r {
	case ExitManual, ExitStopLoss, ExitTakeProfit, ExitTimeout:
		return true
	}
	return false
}

// ParseExitReason validates a reason read from storage or flags.
func ParseExitReason(s string) (ExitReason, error) {
	r := ExitReason(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown exit reason %q", s)
	}
	return r, nil
}

// Position is an open long holding in the virtual account.
type Position struct {
	ID          string
	Symbol      string
	Tier        Tier
	EntryPrice  decimal.Decimal // execution price, slippage included
	Quantity    decimal.Decimal
	EntryTime   time.Time
	StopLoss    decimal.NullDecimal
	TakeProfit  decimal.NullDecimal
	EntryFees   decimal.Decimal
	StrategyTag string
	Confidence  decimal.Decimal
}

// CostBasis is what the position cost, entry fees included.
func (p Position) CostBasis() decimal.Decimal {
	return p.EntryPrice.Mul(p.Quantity).Add(p.EntryFees)
}

// CurrentValue marks the position at price.
func (p Position) CurrentValue(price decimal.Decimal) decimal.Decimal {
	return price.Mul(p.Quantity)
}

// UnrealizedPnL is the mark-to-market gain against the cost basis.
func (p Position) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	return p.CurrentValue(price).Sub(p.CostBasis())
}

// UnrealizedPnLPct is UnrealizedPnL as a percentage of the cost basis.
func (p Position) UnrealizedPnLPct(price decimal.Decimal) decimal.Decimal {
	basis := p.CostBasis()
	if basis.IsZero() {
		return decimal.Zero
	}
	return p.UnrealizedPnL(price).Mul(hundred).DivRound(basis, 8)
}

// ClosedTrade is the immutable record appended on every exit.
type ClosedTrade struct {
	ID          string
	PositionID  string
	Symbol      string
	Tier        Tier
	EntryPrice  decimal.Decimal
	ExitPrice   decimal.Decimal
	Quantity    decimal.Decimal
	EntryTime   time.Time
	ExitTime    time.Time
	PnL         decimal.Decimal
	PnLPct      decimal.Decimal
	TotalFees   decimal.Decimal // entry + exit
	ExitReason  ExitReason
	StrategyTag string
	Confidence  decimal.Decimal
}

// HoldingPeriod is the time between entry and exit.
func (t ClosedTrade) HoldingPeriod() time.Duration {
	return t.ExitTime.Sub(t.EntryTime)
}

// Win reports whether the trade made money. Breakeven counts as a loss.
func (t ClosedTrade) Win() bool {
	return t.PnL.IsPositive()
}

// Proposal is a candidate entry produced by the trading-decision layer.
// WinRate, AvgWin, AvgLoss and TradeCount describe the strategy's history.
type Proposal struct {
	Symbol      string
	Tier        Tier
	MarketPrice decimal.Decimal
	WinRate     decimal.Decimal
	AvgWin      decimal.Decimal
	AvgLoss     decimal.Decimal
	TradeCount  int
	Confidence  decimal.Decimal
	StrategyTag string
}

// PortfolioSnapshot is a consistent read of the ledger at one instant.
type PortfolioSnapshot struct {
	At             time.Time
	InitialCapital decimal.Decimal
	Cash           decimal.Decimal
	Equity         decimal.Decimal // cash + positions marked at last prices
	Unrealized     decimal.Decimal
	Realized       decimal.Decimal
	Positions      []PositionView
	ClosedTrades   int
	Breakers       []BreakerStatus
}

// PositionView is a position together with its last mark.
type PositionView struct {
	Position
	MarkPrice  decimal.Decimal
	Unrealized decimal.Decimal
}
