package trader_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/riskgate/internal/application/engine"
	"github.com/alejandrodnm/riskgate/internal/application/engine/paper"
	"github.com/alejandrodnm/riskgate/internal/application/risk"
	"github.com/alejandrodnm/riskgate/internal/application/trader"
	"github.com/alejandrodnm/riskgate/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var start = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

// --- fakes ---

type fakeFeed struct {
	mu     sync.Mutex
	quotes []domain.Quote
	err    error
	asked  [][]string
}

func (f *fakeFeed) set(err error, quotes ...domain.Quote) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes, f.err = quotes, err
}

func (f *fakeFeed) FetchQuotes(_ context.Context, symbols []string) ([]domain.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked = append(f.asked, symbols)
	return f.quotes, f.err
}

type queue struct {
	mu    sync.Mutex
	items []domain.Proposal
}

func (q *queue) push(p ...domain.Proposal) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, p...)
}

func (q *queue) Proposals(context.Context) ([]domain.Proposal, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out, nil
}

type memJournal struct {
	positions  map[string]domain.Position
	trades     []domain.ClosedTrade
	events     []domain.BreakerEvent
	rejections []domain.Rejection
	equity     []domain.EquityPoint
}

func newJournal() *memJournal {
	return &memJournal{positions: make(map[string]domain.Position)}
}

func (j *memJournal) ApplySchema(context.Context) error { return nil }
func (j *memJournal) SavePosition(_ context.Context, p domain.Position) error {
	j.positions[p.ID] = p
	return nil
}
func (j *memJournal) DeletePosition(_ context.Context, id string) error {
	delete(j.positions, id)
	return nil
}
func (j *memJournal) OpenPositions(context.Context) ([]domain.Position, error) {
	var out []domain.Position
	for _, p := range j.positions {
		out = append(out, p)
	}
	return out, nil
}
func (j *memJournal) SaveTrade(_ context.Context, t domain.ClosedTrade) error {
	j.trades = append(j.trades, t)
	return nil
}
func (j *memJournal) Trades(context.Context) ([]domain.ClosedTrade, error) { return j.trades, nil }
func (j *memJournal) SaveBreakerEvents(_ context.Context, e []domain.BreakerEvent) error {
	j.events = append(j.events, e...)
	return nil
}
func (j *memJournal) BreakerEvents(context.Context, time.Time) ([]domain.BreakerEvent, error) {
	return j.events, nil
}
func (j *memJournal) SaveRejection(_ context.Context, r domain.Rejection) error {
	j.rejections = append(j.rejections, r)
	return nil
}
func (j *memJournal) Rejections(context.Context, time.Time) ([]domain.Rejection, error) {
	return j.rejections, nil
}
func (j *memJournal) SaveEquity(_ context.Context, p domain.EquityPoint) error {
	j.equity = append(j.equity, p)
	return nil
}
func (j *memJournal) EquityCurve(context.Context, time.Time, time.Time) ([]domain.EquityPoint, error) {
	return j.equity, nil
}

type recorder struct {
	cycles   int
	reports  int
	lastRep  domain.Metrics
	rejected []domain.Rejection
}

func (r *recorder) NotifyCycle(_ context.Context, _ domain.PortfolioSnapshot, _ []domain.ClosedTrade, rej []domain.Rejection) error {
	r.cycles++
	r.rejected = append(r.rejected, rej...)
	return nil
}

func (r *recorder) NotifyReport(_ context.Context, m domain.Metrics, _ []domain.ClosedTrade, _ []domain.BreakerStatus) error {
	r.reports++
	r.lastRep = m
	return nil
}

// --- helpers ---

type rig struct {
	trader   *trader.Trader
	engine   *paper.Engine
	clock    *engine.ManualClock
	feed     *fakeFeed
	signals  *queue
	journal  *memJournal
	notifier *recorder
}

func newRig(t *testing.T, cfg trader.Config) *rig {
	t.Helper()
	clock := engine.NewManualClock(start)
	eng, err := paper.New(paper.Config{InitialCapital: d("10000"), Clock: clock.Now}, risk.SizerConfig{}, risk.BreakerConfig{})
	require.NoError(t, err)
	r := &rig{
		engine:   eng,
		clock:    clock,
		feed:     &fakeFeed{},
		signals:  &queue{},
		journal:  newJournal(),
		notifier: &recorder{},
	}
	r.trader = trader.New(cfg, eng, trader.Deps{
		Feed:     r.feed,
		Signals:  r.signals,
		Journal:  r.journal,
		Notifier: r.notifier,
	})
	return r
}

func quote(symbol, price string) domain.Quote {
	return domain.Quote{Symbol: symbol, Price: d(price), Liquidity: decimal.NewNullDecimal(d("1000000"))}
}

// proposal sizes to 2% of a 10k account: win rate 0.6 at 2:1 has a quarter
// Kelly of 10%, capped by the hard ceiling.
func proposal(symbol string, tier domain.Tier) domain.Proposal {
	return domain.Proposal{
		Symbol:     symbol,
		Tier:       tier,
		WinRate:    d("0.6"),
		AvgWin:     d("100"),
		AvgLoss:    d("50"),
		TradeCount: 40,
		Confidence: d("1"),
	}
}

// --- tests ---

func TestTrader_CycleOpensThenStopsOut(t *testing.T) {
	ctx := context.Background()
	r := newRig(t, trader.Config{Symbols: []string{"BTC"}})

	r.feed.set(nil, quote("BTC", "64000"), quote("SOL", "100"))
	r.signals.push(proposal("SOL", domain.TierFoundation))

	res, err := r.trader.Cycle(ctx)
	require.NoError(t, err)
	require.Len(t, res.Opened, 1)
	assert.Empty(t, res.Rejected)
	assert.Equal(t, []string{"BTC", "SOL"}, r.feed.asked[0])

	pos := res.Opened[0]
	assert.True(t, pos.Quantity.Equal(d("2")), "qty %s", pos.Quantity)
	assert.True(t, pos.StopLoss.Decimal.Equal(d("95")))
	assert.True(t, pos.TakeProfit.Decimal.Equal(d("110")))
	assert.Contains(t, r.journal.positions, pos.ID)
	require.Len(t, r.journal.equity, 1)
	assert.Equal(t, 1, r.notifier.cycles)

	r.clock.Advance(time.Minute)
	r.feed.set(nil, quote("SOL", "94"))
	res, err = r.trader.Cycle(ctx)
	require.NoError(t, err)
	require.Len(t, res.Exits, 1)
	assert.Equal(t, domain.ExitStopLoss, res.Exits[0].ExitReason)
	assert.True(t, res.Exits[0].PnL.Equal(d("-12")))

	assert.Empty(t, r.journal.positions)
	require.Len(t, r.journal.trades, 1)
	assert.True(t, r.journal.equity[1].Equity.Equal(d("9988")))
	assert.Equal(t, []string{"BTC", "SOL"}, r.feed.asked[1], "held symbols are always quoted")
}

func TestTrader_LiquidityRejectsAndJournalsEvent(t *testing.T) {
	ctx := context.Background()
	r := newRig(t, trader.Config{})

	thin := domain.Quote{Symbol: "PEPE", Price: d("0.00001"), Liquidity: decimal.NewNullDecimal(d("1200"))}
	r.feed.set(nil, thin, quote("ETH", "3000"))
	r.signals.push(proposal("PEPE", domain.TierOpportunity), proposal("ETH", domain.TierFoundation))

	res, err := r.trader.Cycle(ctx)
	require.NoError(t, err)
	require.Len(t, res.Rejected, 1)
	require.Len(t, res.Opened, 1)
	assert.Equal(t, "ETH", res.Opened[0].Symbol)

	rej := res.Rejected[0]
	assert.Equal(t, "PEPE", rej.Symbol)
	assert.Equal(t, "breaker_blocked", rej.Reason)
	assert.Equal(t, []domain.BreakerKind{domain.BreakerLiquidity}, rej.Breakers)
	assert.Equal(t, start, rej.At)

	require.Len(t, r.journal.rejections, 1)
	require.Len(t, r.journal.events, 1)
	assert.Equal(t, domain.BreakerLiquidity, r.journal.events[0].Kind)
	assert.True(t, r.journal.events[0].Tripped)

	// same events are not journaled twice
	_, err = r.trader.Cycle(ctx)
	require.NoError(t, err)
	assert.Len(t, r.journal.events, 1)
}

func TestTrader_FeedFailuresTripAPIBreaker(t *testing.T) {
	ctx := context.Background()
	r := newRig(t, trader.Config{Symbols: []string{"SOL"}})

	r.feed.set(errors.New("upstream down"))
	for i := 0; i < 3; i++ {
		_, err := r.trader.Cycle(ctx)
		require.NoError(t, err)
	}

	r.signals.push(domain.Proposal{Symbol: "SOL", Tier: domain.TierFoundation, MarketPrice: d("100"),
		WinRate: d("0.6"), AvgWin: d("100"), AvgLoss: d("50"), TradeCount: 40, Confidence: d("1")})
	res, err := r.trader.Cycle(ctx)
	require.NoError(t, err)
	require.Len(t, res.Rejected, 1)
	assert.Contains(t, res.Rejected[0].Breakers, domain.BreakerAPIFailure)

	// one good fetch clears it
	r.feed.set(nil, quote("SOL", "100"))
	r.signals.push(proposal("SOL", domain.TierFoundation))
	res, err = r.trader.Cycle(ctx)
	require.NoError(t, err)
	assert.Len(t, res.Opened, 1)
}

func TestTrader_ProposalWithoutQuoteIsRejected(t *testing.T) {
	r := newRig(t, trader.Config{})
	r.feed.set(nil)
	r.signals.push(proposal("DOGE", domain.TierGrowth))

	res, err := r.trader.Cycle(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "invalid_order", res.Rejected[0].Reason)
}

func TestTrader_RestoreFromJournal(t *testing.T) {
	ctx := context.Background()
	first := newRig(t, trader.Config{})
	first.feed.set(nil, quote("SOL", "100"))
	first.signals.push(proposal("SOL", domain.TierFoundation))
	_, err := first.trader.Cycle(ctx)
	require.NoError(t, err)

	clock := engine.NewManualClock(start.Add(time.Hour))
	eng, err := paper.New(paper.Config{InitialCapital: d("10000"), Clock: clock.Now}, risk.SizerConfig{}, risk.BreakerConfig{})
	require.NoError(t, err)
	second := trader.New(trader.Config{}, eng, trader.Deps{Feed: first.feed, Journal: first.journal})
	require.NoError(t, second.Restore(ctx))

	pos, ok := eng.Position("SOL")
	require.True(t, ok)
	assert.True(t, pos.Quantity.Equal(d("2")))
	assert.True(t, eng.Cash().Equal(d("9800")))
}

func TestTrader_RunStopsOnStopFileAndReports(t *testing.T) {
	stop := filepath.Join(t.TempDir(), "STOP")
	r := newRig(t, trader.Config{Interval: 5 * time.Millisecond, StopFile: stop})
	r.feed.set(nil, quote("SOL", "100"))
	require.NoError(t, os.WriteFile(stop, nil, 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.trader.Run(ctx))

	assert.Equal(t, 1, r.notifier.cycles)
	assert.Equal(t, 1, r.notifier.reports)
	assert.True(t, r.notifier.lastRep.Cash.Equal(d("10000")))
	_, err := os.Stat(stop)
	assert.True(t, os.IsNotExist(err), "stop file is consumed")
}

func TestTrader_RunStopsOnCancel(t *testing.T) {
	r := newRig(t, trader.Config{Interval: time.Hour, StopFile: filepath.Join(t.TempDir(), "STOP")})
	r.feed.set(nil, quote("SOL", "100"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, r.trader.Run(ctx))
	assert.Equal(t, 1, r.notifier.reports)
}

// --- replay ---

type ticks struct{ items []domain.Tick }

func (s *ticks) Next(context.Context) (domain.Tick, error) {
	if len(s.items) == 0 {
		return domain.Tick{}, io.EOF
	}
	t := s.items[0]
	s.items = s.items[1:]
	return t, nil
}

// scheduled hands each proposal out once the clock reaches its time.
type scheduled struct {
	clock *engine.ManualClock
	at    []time.Time
	props []domain.Proposal
}

func (s *scheduled) Proposals(context.Context) ([]domain.Proposal, error) {
	var out []domain.Proposal
	for len(s.at) > 0 && !s.at[0].After(s.clock.Now()) {
		out = append(out, s.props[0])
		s.at, s.props = s.at[1:], s.props[1:]
	}
	return out, nil
}

func TestTrader_ReplayFollowsTickTime(t *testing.T) {
	clock := engine.NewManualClock(start)
	eng, err := paper.New(paper.Config{
		InitialCapital:   d("10000"),
		MaxHoldingPeriod: 2 * time.Hour,
		Clock:            clock.Now,
	}, risk.SizerConfig{}, risk.BreakerConfig{})
	require.NoError(t, err)

	src := &ticks{}
	for i, price := range []string{"100", "101", "102", "103", "104"} {
		src.items = append(src.items, domain.Tick{
			At:     start.Add(time.Duration(i) * time.Hour),
			Quotes: []domain.Quote{quote("SOL", price)},
		})
	}
	signals := &scheduled{
		clock: clock,
		at:    []time.Time{start.Add(time.Hour)},
		props: []domain.Proposal{proposal("SOL", domain.TierFoundation)},
	}
	journal := newJournal()
	tr := trader.New(trader.Config{}, eng, trader.Deps{Signals: signals, Journal: journal})

	first, err := src.Next(context.Background())
	require.NoError(t, err)
	res, err := tr.Replay(context.Background(), trader.Prepend(first, src), clock, false)
	require.NoError(t, err)

	assert.Equal(t, trader.ReplayResult{Ticks: 5, Opened: 1, Exits: 1}, res)
	require.Len(t, journal.trades, 1)
	tr0 := journal.trades[0]
	assert.Equal(t, domain.ExitTimeout, tr0.ExitReason)
	assert.Equal(t, start.Add(time.Hour), tr0.EntryTime)
	assert.Equal(t, start.Add(3*time.Hour), tr0.ExitTime)
	assert.Len(t, journal.equity, 5)
	assert.Equal(t, start.Add(4*time.Hour), clock.Now())
}

func TestTrader_SubmitJournalsBothOutcomes(t *testing.T) {
	ctx := context.Background()
	r := newRig(t, trader.Config{})

	prop := proposal("SOL", domain.TierFoundation)
	prop.MarketPrice = d("100")
	pos, err := r.trader.Submit(ctx, prop)
	require.NoError(t, err)
	assert.True(t, pos.Quantity.Equal(d("2")))
	assert.Contains(t, r.journal.positions, pos.ID)

	_, err = r.trader.Submit(ctx, prop)
	assert.ErrorIs(t, err, domain.ErrDuplicatePosition)
	require.Len(t, r.journal.rejections, 1)
	assert.Equal(t, "duplicate_position", r.journal.rejections[0].Reason)
}
