// Package paper simulates a single long-only cash account: fills with fees
// and slippage, stop-loss and take-profit exits and performance accounting.
// Every entry goes through the circuit breaker bank and, for sized entries,
// the position sizer.
package paper

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alejandrodnm/riskgate/internal/application/engine"
	"github.com/alejandrodnm/riskgate/internal/application/risk"
	"github.com/alejandrodnm/riskgate/internal/domain"
	"github.com/shopspring/decimal"
)

const defaultCapital = 10000

// Config holds the account and execution settings.
type Config struct {
	InitialCapital   decimal.Decimal // default 10000
	FeeRate          decimal.Decimal // per side, fraction of notional
	SlippageRate     decimal.Decimal // adverse, fraction of market price
	MaxHoldingPeriod time.Duration   // 0 disables timeout exits
	Clock            engine.Clock    // default time.Now
}

// DefaultConfig is 10k capital, 0.1% fee and 0.2% slippage.
func DefaultConfig() Config {
	return Config{
		InitialCapital: decimal.NewFromInt(defaultCapital),
		FeeRate:        decimal.RequireFromString("0.001"),
		SlippageRate:   decimal.RequireFromString("0.002"),
	}
}

// Engine owns the virtual ledger and the breaker bank. A single mutex
// serializes every operation; nothing under it performs I/O.
type Engine struct {
	mu sync.Mutex

	cfg   Config
	now   engine.Clock
	sizer *risk.PositionSizer
	bank  *risk.Bank

	cash      decimal.Decimal
	positions map[string]*domain.Position
	marks     map[string]decimal.Decimal
	closed    []domain.ClosedTrade
	start     time.Time
}

// New creates an engine with the full initial capital in cash.
func New(cfg Config, sizing risk.SizerConfig, breakers risk.BreakerConfig) (*Engine, error) {
	if cfg.InitialCapital.IsZero() {
		cfg.InitialCapital = decimal.NewFromInt(defaultCapital)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	switch {
	case cfg.InitialCapital.IsNegative():
		return nil, fmt.Errorf("paper.New: initial capital %s must be positive", cfg.InitialCapital)
	case cfg.FeeRate.IsNegative(), !cfg.FeeRate.LessThan(one):
		return nil, fmt.Errorf("paper.New: fee rate %s outside [0,1)", cfg.FeeRate)
	case cfg.SlippageRate.IsNegative(), !cfg.SlippageRate.LessThan(one):
		return nil, fmt.Errorf("paper.New: slippage rate %s outside [0,1)", cfg.SlippageRate)
	case cfg.MaxHoldingPeriod < 0:
		return nil, fmt.Errorf("paper.New: negative max holding period %s", cfg.MaxHoldingPeriod)
	}

	e := &Engine{
		cfg:       cfg,
		now:       cfg.Clock,
		sizer:     risk.NewPositionSizer(sizing),
		bank:      risk.NewBank(breakers, cfg.Clock),
		cash:      cfg.InitialCapital,
		positions: make(map[string]*domain.Position),
		marks:     make(map[string]decimal.Decimal),
		start:     cfg.Clock(),
	}
	e.bank.ObserveEquity(e.cash)
	return e, nil
}

var one = decimal.NewFromInt(1)

// Config returns the effective settings.
func (e *Engine) Config() Config { return e.cfg }

// Now reads the engine clock.
func (e *Engine) Now() time.Time { return e.now() }

// Sizer exposes the sizer for what-if calculations. It holds no state.
func (e *Engine) Sizer() *risk.PositionSizer { return e.sizer }

// Restore rebuilds the ledger from journaled positions and trades. It must be
// called before any other mutation. Cash is derived so that the ledger
// reconciles: initial + realized - open cost basis.
func (e *Engine) Restore(open []domain.Position, closed []domain.ClosedTrade) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.positions) > 0 || len(e.closed) > 0 {
		return errors.New("paper.Restore: ledger already has activity")
	}

	cash := e.cfg.InitialCapital
	for _, t := range closed {
		cash = cash.Add(t.PnL)
	}
	positions := make(map[string]*domain.Position, len(open))
	for i := range open {
		p := open[i]
		if _, dup := positions[p.Symbol]; dup {
			return fmt.Errorf("paper.Restore: %w: %s", domain.ErrDuplicatePosition, p.Symbol)
		}
		cash = cash.Sub(p.CostBasis())
		positions[p.Symbol] = &p
	}
	if cash.IsNegative() {
		return fmt.Errorf("paper.Restore: %w: restored cash %s", domain.ErrInsufficientCash, cash)
	}

	history := make([]domain.ClosedTrade, len(closed))
	copy(history, closed)
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].ExitTime.Before(history[j].ExitTime)
	})

	e.cash = cash
	e.positions = positions
	e.closed = history
	for _, p := range positions {
		e.marks[p.Symbol] = p.EntryPrice
		if p.EntryTime.Before(e.start) {
			e.start = p.EntryTime
		}
	}
	for _, t := range history {
		if t.EntryTime.Before(e.start) {
			e.start = t.EntryTime
		}
		e.bank.RecordTradeResult(t.Win())
	}
	e.bank.ObserveEquity(e.equityLocked(nil))

	slog.Info("paper: ledger restored",
		"open_positions", len(positions),
		"closed_trades", len(history),
		"cash", cash.StringFixed(2),
	)
	return nil
}

// Cash returns the uninvested balance.
func (e *Engine) Cash() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cash
}

// Position returns the open position for symbol.
func (e *Engine) Position(symbol string) (domain.Position, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.positions[symbol]
	if !ok {
		return domain.Position{}, false
	}
	return *p, true
}

// Positions returns the open positions ordered by symbol.
func (e *Engine) Positions() []domain.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Position, 0, len(e.positions))
	for _, sym := range e.symbolsLocked() {
		out = append(out, *e.positions[sym])
	}
	return out
}

// PortfolioValue is cash plus every open position marked at prices. Symbols
// missing from prices use the last mark, or the entry price.
func (e *Engine) PortfolioValue(prices map[string]decimal.Decimal) decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.equityLocked(prices)
}

// TradeHistory returns up to limit closed trades, most recent first.
// A non-positive limit returns all of them.
func (e *Engine) TradeHistory(limit int) []domain.ClosedTrade {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.closed)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.ClosedTrade, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, e.closed[i])
	}
	return out
}

// PerformanceMetrics derives statistics from the closed-trade log.
// Returns domain.ErrNoClosedTrades when nothing has closed yet.
func (e *Engine) PerformanceMetrics() (domain.Metrics, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := domain.ComputeMetrics(e.closed, e.cfg.InitialCapital, e.start, e.now())
	if err != nil {
		return domain.Metrics{}, err
	}
	m.Cash = e.cash
	m.OpenPositions = len(e.positions)
	return m, nil
}

// Snapshot is a consistent view of the whole account.
func (e *Engine) Snapshot() domain.PortfolioSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := domain.PortfolioSnapshot{
		At:             e.now(),
		InitialCapital: e.cfg.InitialCapital,
		Cash:           e.cash,
		ClosedTrades:   len(e.closed),
		Breakers:       e.bank.Status(),
	}
	for _, t := range e.closed {
		s.Realized = s.Realized.Add(t.PnL)
	}
	for _, sym := range e.symbolsLocked() {
		p := e.positions[sym]
		mark := e.markLocked(sym, nil)
		v := domain.PositionView{
			Position:   *p,
			MarkPrice:  mark,
			Unrealized: p.UnrealizedPnL(mark),
		}
		s.Unrealized = s.Unrealized.Add(v.Unrealized)
		s.Positions = append(s.Positions, v)
	}
	s.Equity = e.equityLocked(nil)
	return s
}

// --- breaker pass-through ---

// CheckTrading asks the bank whether symbol may be entered right now.
func (e *Engine) CheckTrading(symbol string, tier domain.Tier) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bank.Check(symbol, tier)
}

// RecordAPIOutcome reports a market-data call result to the bank.
func (e *Engine) RecordAPIOutcome(ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bank.RecordAPIOutcome(ok)
}

// ObserveVolatility reports the latest volatility reading.
func (e *Engine) ObserveVolatility(metric decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bank.ObserveVolatility(metric)
}

// ObserveLiquidity reports the latest liquidity of symbol.
func (e *Engine) ObserveLiquidity(symbol string, liquidity decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bank.ObserveLiquidity(symbol, liquidity)
}

// ResetBreaker clears kind if its condition no longer holds.
func (e *Engine) ResetBreaker(kind domain.BreakerKind) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bank.Reset(kind)
}

// BreakerStatus reports every breaker.
func (e *Engine) BreakerStatus() []domain.BreakerStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bank.Status()
}

// BreakerEventsAfter returns breaker transitions with Seq greater than seq.
func (e *Engine) BreakerEventsAfter(seq int64) []domain.BreakerEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bank.EventsAfter(seq)
}

// --- helpers, caller holds mu ---

func (e *Engine) symbolsLocked() []string {
	syms := make([]string, 0, len(e.positions))
	for s := range e.positions {
		syms = append(syms, s)
	}
	sort.Strings(syms)
	return syms
}

func (e *Engine) markLocked(symbol string, prices map[string]decimal.Decimal) decimal.Decimal {
	if p, ok := prices[symbol]; ok && p.IsPositive() {
		return p
	}
	if m, ok := e.marks[symbol]; ok {
		return m
	}
	return e.positions[symbol].EntryPrice
}

func (e *Engine) equityLocked(prices map[string]decimal.Decimal) decimal.Decimal {
	equity := e.cash
	for sym, p := range e.positions {
		equity = equity.Add(p.CurrentValue(e.markLocked(sym, prices)))
	}
	return equity
}

func (e *Engine) tierExposureLocked(tier domain.Tier) decimal.Decimal {
	exposure := decimal.Zero
	for sym, p := range e.positions {
		if p.Tier == tier {
			exposure = exposure.Add(p.CurrentValue(e.markLocked(sym, nil)))
		}
	}
	return exposure
}
