package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alejandrodnm/riskgate/internal/application/engine"
	"github.com/alejandrodnm/riskgate/internal/application/risk"
	"github.com/alejandrodnm/riskgate/internal/domain"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Console implements ports.Notifier.
type Console struct {
	out     io.Writer
	compact bool
}

// NewConsole creates a notifier writing to stdout. Compact mode prints one
// line per cycle instead of a positions table.
func NewConsole(compact bool) *Console {
	return &Console{out: os.Stdout, compact: compact}
}

// NewConsoleWriter creates a notifier writing to w.
func NewConsoleWriter(w io.Writer, compact bool) *Console {
	return &Console{out: w, compact: compact}
}

// NotifyCycle prints the account status after one cycle.
func (c *Console) NotifyCycle(_ context.Context, snap domain.PortfolioSnapshot, exits []domain.ClosedTrade, rejected []domain.Rejection) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] eq $%s (%s) | cash $%s | %d pos | unrl %s | %d closed",
		snap.At.Format("15:04:05"),
		snap.Equity.StringFixed(2),
		signedPct(returnPct(snap.Equity, snap.InitialCapital)),
		snap.Cash.StringFixed(2),
		len(snap.Positions),
		signedMoney(snap.Unrealized),
		snap.ClosedTrades,
	)
	if active := activeBreakers(snap.Breakers); len(active) > 0 {
		fmt.Fprintf(&sb, " | BLOCKED: %s", strings.Join(active, ","))
	}
	for _, t := range exits {
		fmt.Fprintf(&sb, "\n  << %s %s @ %s pnl %s (%s)",
			t.Symbol, t.ExitReason, t.ExitPrice.StringFixed(4), signedMoney(t.PnL), signedPct(t.PnLPct))
	}
	for i, r := range rejected {
		if i >= 3 {
			fmt.Fprintf(&sb, "\n  !! +%d more rejected", len(rejected)-i)
			break
		}
		fmt.Fprintf(&sb, "\n  !! %s %s", r.Symbol, r.Reason)
		if len(r.Breakers) > 0 {
			fmt.Fprintf(&sb, " %v", kindNames(r.Breakers))
		}
	}
	fmt.Fprintln(c.out, sb.String())

	if !c.compact && len(snap.Positions) > 0 {
		c.printPositions(snap.Positions)
	}
	return nil
}

func (c *Console) printPositions(positions []domain.PositionView) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Symbol", "Tier", "Qty", "Entry", "Mark", "Stop", "Target", "Unrl", "Strategy")
	for _, p := range positions {
		table.Append(
			p.Symbol,
			string(p.Tier),
			p.Quantity.String(),
			p.EntryPrice.StringFixed(4),
			p.MarkPrice.StringFixed(4),
			optional(p.StopLoss),
			optional(p.TakeProfit),
			signedMoney(p.Unrealized),
			engine.TruncateStr(p.StrategyTag, 16),
		)
	}
	table.Render()
}

// NotifyReport prints the performance summary, recent trades and breakers.
func (c *Console) NotifyReport(_ context.Context, m domain.Metrics, recent []domain.ClosedTrade, breakers []domain.BreakerStatus) error {
	fmt.Fprintf(c.out, "\n")
	fmt.Fprintf(c.out, "========================================================\n")
	fmt.Fprintf(c.out, "  PAPER TRADING REPORT\n")
	fmt.Fprintf(c.out, "  %d trades over %s days\n", m.TotalTrades, m.RuntimeDays.StringFixed(1))
	fmt.Fprintf(c.out, "========================================================\n\n")

	summary := tablewriter.NewWriter(c.out)
	summary.Header("Metric", "Value")
	rows := [][2]string{
		{"Total PnL", "$" + m.TotalPnL.StringFixed(2)},
		{"Return", signedPct(m.TotalReturnPct)},
		{"Win rate", m.WinRate.Mul(hundred).StringFixed(1) + "%"},
		{"Winners / Losers", fmt.Sprintf("%d / %d", m.WinningTrades, m.LosingTrades)},
		{"Avg win", "$" + m.AvgWin.StringFixed(2)},
		{"Avg loss", "$" + m.AvgLoss.StringFixed(2)},
		{"Profit factor", profitFactor(m.ProfitFactor)},
		{"Max drawdown", m.MaxDrawdownPct.StringFixed(2) + "%"},
		{"Sharpe (per trade)", m.SharpeRatio.StringFixed(2)},
		{"Total fees", "$" + m.TotalFees.StringFixed(2)},
		{"Trades / day", m.TradesPerDay.StringFixed(2)},
		{"Avg holding", m.AvgHoldingHours.StringFixed(1) + "h"},
	}
	if !m.InitialCapital.IsZero() {
		rows = append(rows, [2]string{"Cash", "$" + m.Cash.StringFixed(2)})
		rows = append(rows, [2]string{"Open positions", fmt.Sprintf("%d", m.OpenPositions)})
	}
	for _, r := range rows {
		summary.Append(r[0], r[1])
	}
	summary.Render()

	if len(recent) > 0 {
		fmt.Fprintf(c.out, "\n  Recent trades\n")
		trades := tablewriter.NewWriter(c.out)
		trades.Header("Exit", "Symbol", "Tier", "Reason", "Entry", "Exit$", "Qty", "PnL", "PnL%", "Held")
		for _, t := range recent {
			trades.Append(
				t.ExitTime.Format("01-02 15:04"),
				t.Symbol,
				string(t.Tier),
				string(t.ExitReason),
				t.EntryPrice.StringFixed(4),
				t.ExitPrice.StringFixed(4),
				t.Quantity.String(),
				signedMoney(t.PnL),
				signedPct(t.PnLPct),
				t.HoldingPeriod().Round(time.Minute).String(),
			)
		}
		trades.Render()
	}

	if len(breakers) > 0 {
		fmt.Fprintf(c.out, "\n  Circuit breakers\n")
		tbl := tablewriter.NewWriter(c.out)
		tbl.Header("Breaker", "State", "Current", "Threshold", "Clears")
		for _, b := range breakers {
			state := "ok"
			switch {
			case !b.Enabled:
				state = "disabled"
			case b.Active && len(b.Symbols) > 0:
				state = "ACTIVE " + strings.Join(b.Symbols, ",")
			case b.Active:
				state = "ACTIVE"
			}
			tbl.Append(b.Kind.String(), state, b.Current.StringFixed(2), b.Threshold.String(), clearedBy(b.Kind))
		}
		tbl.Render()
	}

	fmt.Fprintln(c.out)
	switch {
	case m.TotalPnL.IsPositive():
		fmt.Fprintf(c.out, "  POSITIVE: paper account is net profitable.\n")
	case m.TotalPnL.IsNegative():
		fmt.Fprintf(c.out, "  NEGATIVE: paper account is losing money.\n")
	default:
		fmt.Fprintf(c.out, "  FLAT: paper account broke even.\n")
	}
	return nil
}

// --- helpers ---

func returnPct(equity, initial decimal.Decimal) decimal.Decimal {
	if !initial.IsPositive() {
		return decimal.Zero
	}
	return equity.Sub(initial).Mul(hundred).Div(initial)
}

func signedMoney(v decimal.Decimal) string {
	if v.IsNegative() {
		return "-$" + v.Abs().StringFixed(2)
	}
	return "+$" + v.StringFixed(2)
}

func signedPct(v decimal.Decimal) string {
	if v.IsNegative() {
		return v.StringFixed(2) + "%"
	}
	return "+" + v.StringFixed(2) + "%"
}

func optional(v decimal.NullDecimal) string {
	if !v.Valid {
		return "-"
	}
	return v.Decimal.StringFixed(4)
}

func profitFactor(v decimal.Decimal) string {
	if v.Equal(domain.ProfitFactorSentinel) {
		return "inf"
	}
	return v.StringFixed(2)
}

func activeBreakers(status []domain.BreakerStatus) []string {
	var out []string
	for _, s := range status {
		if s.Enabled && s.Active {
			out = append(out, s.Kind.String())
		}
	}
	return out
}

// clearedBy says what lifts a tripped breaker.
func clearedBy(k domain.BreakerKind) string {
	switch {
	case !k.Sticky():
		return "auto"
	case k == domain.BreakerConsecutiveLosses:
		return "win or reset"
	default:
		return "reset"
	}
}

func kindNames(kinds []domain.BreakerKind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = k.String()
	}
	return out
}

// PrintSizing prints every step of a sizing decision.
func (c *Console) PrintSizing(d risk.SizingDecision) {
	fmt.Fprintf(c.out, "\n  %s (%s) @ %s\n\n", d.Symbol, d.Tier, d.EntryPrice.String())

	table := tablewriter.NewWriter(c.out)
	table.Header("Step", "Value")
	table.Append("Kelly fraction", pct(d.KellyFraction))
	table.Append("Dampened", pct(d.DampenedFraction))
	table.Append("Ceiling", pct(d.Ceiling))
	capped := "no"
	if d.Capped {
		capped = "yes"
	}
	table.Append("Capped", capped)
	table.Append("Fraction", pct(d.Fraction))
	table.Append("Target notional", "$"+d.TargetNotional.StringFixed(2))
	table.Append("Quantity", d.Quantity.String())
	table.Append("Notional", "$"+d.Notional.StringFixed(2))
	table.Append("Stop-loss", d.StopLoss.StringFixed(4))
	table.Append("Take-profit", d.TakeProfit.StringFixed(4))
	table.Append("Risk", "$"+d.RiskAmount.StringFixed(2))
	rr := risk.RiskRewardRatio(d.EntryPrice, d.TakeProfit, d.StopLoss)
	table.Append("Risk/reward", rr.StringFixed(2))
	table.Append("Break-even win rate", pct(risk.MinWinRateForProfitability(rr)))
	table.Render()
}

func pct(v decimal.Decimal) string {
	return v.Mul(hundred).StringFixed(2) + "%"
}
