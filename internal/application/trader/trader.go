// Package trader drives the paper engine from the outside world: quotes in,
// proposals in, journal and notifications out. The engine itself never
// touches a port.
package trader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/alejandrodnm/riskgate/internal/application/engine/paper"
	"github.com/alejandrodnm/riskgate/internal/domain"
	"github.com/alejandrodnm/riskgate/internal/ports"
	"github.com/shopspring/decimal"
)

// Config holds the loop settings.
type Config struct {
	Symbols      []string      // always quoted, in addition to held and proposed symbols
	Interval     time.Duration // default 60s
	StopFile     string        // default "STOP"; removed when seen
	RecentTrades int           // trades shown in the report, default 10
}

func (c *Config) setDefaults() {
	if c.Interval <= 0 {
		c.Interval = 60 * time.Second
	}
	if c.StopFile == "" {
		c.StopFile = "STOP"
	}
	if c.RecentTrades <= 0 {
		c.RecentTrades = 10
	}
}

// Deps are the ports the trader talks to. Only Feed is required by Run;
// any other nil port is skipped.
type Deps struct {
	Feed     ports.PriceFeed
	Signals  ports.SignalSource
	Journal  ports.TradeJournal
	Metrics  ports.MetricsRecorder
	Notifier ports.Notifier
}

// Trader runs trading cycles against one engine.
type Trader struct {
	cfg    Config
	engine *paper.Engine
	deps   Deps

	lastSeq int64
	prices  map[string]decimal.Decimal
}

// CycleResult is what one cycle did.
type CycleResult struct {
	At       time.Time
	Exits    []domain.ClosedTrade
	Opened   []domain.Position
	Rejected []domain.Rejection
	Snapshot domain.PortfolioSnapshot
}

// New wires a trader around eng.
func New(cfg Config, eng *paper.Engine, deps Deps) *Trader {
	cfg.setDefaults()
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	return &Trader{
		cfg:    cfg,
		engine: eng,
		deps:   deps,
		prices: make(map[string]decimal.Decimal),
	}
}

// Engine returns the engine the trader drives.
func (t *Trader) Engine() *paper.Engine { return t.engine }

// Restore loads the journal into the engine. Breaker events the restore
// itself produces are not journaled again.
func (t *Trader) Restore(ctx context.Context) error {
	if t.deps.Journal == nil {
		return nil
	}
	open, err := t.deps.Journal.OpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("trader.Restore: %w", err)
	}
	closed, err := t.deps.Journal.Trades(ctx)
	if err != nil {
		return fmt.Errorf("trader.Restore: %w", err)
	}
	if err := t.engine.Restore(open, closed); err != nil {
		return fmt.Errorf("trader.Restore: %w", err)
	}
	if events := t.engine.BreakerEventsAfter(0); len(events) > 0 {
		t.lastSeq = events[len(events)-1].Seq
	}
	return nil
}

// Run executes a cycle immediately and then every Interval until ctx is
// cancelled or the stop file appears. It prints the final report on exit.
func (t *Trader) Run(ctx context.Context) error {
	if t.deps.Feed == nil {
		return errors.New("trader.Run: no price feed")
	}
	slog.Info("trader: starting",
		"interval", t.cfg.Interval,
		"symbols", len(t.cfg.Symbols),
		"stop_file", t.cfg.StopFile,
	)

	if _, err := t.Cycle(ctx); err != nil {
		slog.Error("trader: cycle failed", "err", err)
	}

	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("trader: stopped (signal)")
			return t.Report(context.WithoutCancel(ctx))
		case <-ticker.C:
			if _, err := os.Stat(t.cfg.StopFile); err == nil {
				slog.Info("trader: stop file detected, shutting down", "file", t.cfg.StopFile)
				os.Remove(t.cfg.StopFile)
				return t.Report(ctx)
			}
			if _, err := t.Cycle(ctx); err != nil {
				slog.Error("trader: cycle failed", "err", err)
			}
		}
	}
}

// Cycle fetches quotes for every symbol of interest, applies them, then
// submits the pending proposals. A failed quote fetch counts against the
// API breaker and skips exits, but proposals are still judged.
func (t *Trader) Cycle(ctx context.Context) (CycleResult, error) {
	proposals, err := t.proposals(ctx)
	if err != nil {
		slog.Warn("trader: signal source error", "err", err)
	}

	symbols := t.symbols(proposals)
	start := time.Now()
	quotes, err := t.deps.Feed.FetchQuotes(ctx, symbols)
	elapsed := time.Since(start).Seconds()
	t.deps.Metrics.QuoteFetch(err == nil, elapsed)
	t.engine.RecordAPIOutcome(err == nil)
	if err != nil {
		if ctx.Err() != nil {
			return CycleResult{}, ctx.Err()
		}
		slog.Warn("trader: quote fetch failed", "symbols", len(symbols), "err", err)
		quotes = nil
	}

	return t.apply(ctx, domain.Tick{At: start, Quotes: quotes}, proposals, true), nil
}

// Report prints performance, recent trades and breaker state.
func (t *Trader) Report(ctx context.Context) error {
	if t.deps.Notifier == nil {
		return nil
	}
	m, err := t.engine.PerformanceMetrics()
	if errors.Is(err, domain.ErrNoClosedTrades) {
		snap := t.engine.Snapshot()
		m = domain.Metrics{
			InitialCapital: snap.InitialCapital,
			Cash:           snap.Cash,
			OpenPositions:  len(snap.Positions),
		}
	} else if err != nil {
		return fmt.Errorf("trader.Report: %w", err)
	}
	if err := t.deps.Notifier.NotifyReport(ctx, m, t.engine.TradeHistory(t.cfg.RecentTrades), t.engine.BreakerStatus()); err != nil {
		return fmt.Errorf("trader.Report: %w", err)
	}
	return nil
}

// apply feeds one tick to the engine and journals everything it produced.
func (t *Trader) apply(ctx context.Context, tick domain.Tick, proposals []domain.Proposal, notify bool) CycleResult {
	t.observe(tick)
	prices := tick.Prices()
	for sym, p := range prices {
		t.prices[sym] = p
	}

	res := CycleResult{At: tick.At}
	if len(prices) > 0 {
		res.Exits = t.engine.Tick(prices)
	}
	for _, tr := range res.Exits {
		t.deps.Metrics.TradeClosed(tr)
		if t.deps.Journal == nil {
			continue
		}
		if err := t.deps.Journal.SaveTrade(ctx, tr); err != nil {
			slog.Warn("trader: journal error", "op", "save_trade", "symbol", tr.Symbol, "err", err)
		}
		if err := t.deps.Journal.DeletePosition(ctx, tr.PositionID); err != nil {
			slog.Warn("trader: journal error", "op", "delete_position", "symbol", tr.Symbol, "err", err)
		}
	}

	for _, prop := range proposals {
		pos, rej, err := t.handle(ctx, prop)
		if err != nil {
			res.Rejected = append(res.Rejected, rej)
			continue
		}
		res.Opened = append(res.Opened, pos)
	}

	t.flushEvents(ctx)

	res.Snapshot = t.engine.Snapshot()
	t.deps.Metrics.ObserveSnapshot(res.Snapshot)
	if t.deps.Journal != nil {
		if err := t.deps.Journal.SaveEquity(ctx, domain.EquityPoint{
			At:            res.Snapshot.At,
			Cash:          res.Snapshot.Cash,
			Equity:        res.Snapshot.Equity,
			OpenPositions: len(res.Snapshot.Positions),
		}); err != nil {
			slog.Warn("trader: journal error", "op", "save_equity", "err", err)
		}
	}
	if notify && t.deps.Notifier != nil {
		if err := t.deps.Notifier.NotifyCycle(ctx, res.Snapshot, res.Exits, res.Rejected); err != nil {
			slog.Warn("trader: notifier error", "err", err)
		}
	}
	return res
}

// Submit sizes and opens one proposal outside the cycle, journaling the
// position or the rejection. The error is the engine's rejection.
func (t *Trader) Submit(ctx context.Context, prop domain.Proposal) (domain.Position, error) {
	pos, _, err := t.handle(ctx, prop)
	t.flushEvents(ctx)
	return pos, err
}

// handle submits prop and records the outcome.
func (t *Trader) handle(ctx context.Context, prop domain.Proposal) (domain.Position, domain.Rejection, error) {
	pos, err := t.submit(prop)
	if err != nil {
		rej := domain.NewRejection(t.engine.Now(), prop.Symbol, prop.Tier, err)
		t.deps.Metrics.EntryRejected(rej)
		slog.Info("trader: entry rejected", "symbol", prop.Symbol, "tier", prop.Tier, "reason", rej.Reason)
		if t.deps.Journal != nil {
			if err := t.deps.Journal.SaveRejection(ctx, rej); err != nil {
				slog.Warn("trader: journal error", "op", "save_rejection", "err", err)
			}
		}
		return domain.Position{}, rej, err
	}
	t.deps.Metrics.PositionOpened(pos)
	if t.deps.Journal != nil {
		if err := t.deps.Journal.SavePosition(ctx, pos); err != nil {
			slog.Warn("trader: journal error", "op", "save_position", "symbol", pos.Symbol, "err", err)
		}
	}
	return pos, domain.Rejection{}, nil
}

// submit sizes and opens a proposal. A proposal without a price takes the
// last quote seen for its symbol.
func (t *Trader) submit(prop domain.Proposal) (domain.Position, error) {
	if !prop.MarketPrice.IsPositive() {
		last, ok := t.prices[prop.Symbol]
		if !ok {
			return domain.Position{}, fmt.Errorf("%w: no quote for %s", domain.ErrInvalidOrder, prop.Symbol)
		}
		prop.MarketPrice = last
	}
	pos, dec, err := t.engine.OpenSized(paper.SizedOpenRequest{Proposal: prop})
	if err != nil {
		return domain.Position{}, err
	}
	slog.Debug("trader: sized entry",
		"symbol", pos.Symbol,
		"kelly", dec.KellyFraction.StringFixed(4),
		"fraction", dec.Fraction.StringFixed(4),
		"capped", dec.Capped,
		"notional", dec.Notional.StringFixed(2),
	)
	return pos, nil
}

// observe reports per-symbol liquidity and the highest volatility reading
// of the tick to the breakers.
func (t *Trader) observe(tick domain.Tick) {
	var (
		vol     decimal.Decimal
		haveVol bool
	)
	for _, q := range tick.Quotes {
		if q.Liquidity.Valid {
			t.engine.ObserveLiquidity(q.Symbol, q.Liquidity.Decimal)
		}
		if q.Volatility.Valid && (!haveVol || q.Volatility.Decimal.GreaterThan(vol)) {
			vol = q.Volatility.Decimal
			haveVol = true
		}
	}
	if haveVol {
		t.engine.ObserveVolatility(vol)
	}
}

func (t *Trader) flushEvents(ctx context.Context) {
	events := t.engine.BreakerEventsAfter(t.lastSeq)
	if len(events) == 0 {
		return
	}
	t.lastSeq = events[len(events)-1].Seq
	if t.deps.Journal == nil {
		return
	}
	if err := t.deps.Journal.SaveBreakerEvents(ctx, events); err != nil {
		slog.Warn("trader: journal error", "op", "save_breaker_events", "count", len(events), "err", err)
	}
}

func (t *Trader) proposals(ctx context.Context) ([]domain.Proposal, error) {
	if t.deps.Signals == nil {
		return nil, nil
	}
	return t.deps.Signals.Proposals(ctx)
}

// symbols is the sorted union of configured, held and proposed symbols.
func (t *Trader) symbols(proposals []domain.Proposal) []string {
	set := make(map[string]struct{})
	for _, s := range t.cfg.Symbols {
		set[s] = struct{}{}
	}
	for _, p := range t.engine.Positions() {
		set[p.Symbol] = struct{}{}
	}
	for _, p := range proposals {
		set[p.Symbol] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

type nopMetrics struct{}

func (nopMetrics) PositionOpened(domain.Position) {}
func (nopMetrics) TradeClosed(domain.ClosedTrade) {}
func (nopMetrics) EntryRejected(domain.Rejection) {}
func (nopMetrics) QuoteFetch(bool, float64) {}
func (nopMetrics) ObserveSnapshot(domain.PortfolioSnapshot) {}
