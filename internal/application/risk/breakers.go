package risk

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alejandrodnm/riskgate/internal/domain"
	"github.com/shopspring/decimal"
)

// BreakerConfig holds the thresholds of every breaker. Percentages are
// expressed as percent (5 = 5%). Zero values are replaced by defaults.
type BreakerConfig struct {
	DailyLossPct         decimal.Decimal // default 5
	WeeklyLossPct        decimal.Decimal // default 10
	MaxDrawdownPct       decimal.Decimal // default 15
	VolatilityCeiling    decimal.Decimal // default 100
	LiquidityFloor       decimal.Decimal // default 50000
	MaxAPIFailures       int             // default 3
	MaxConsecutiveLosses int             // default 5

	Disabled  map[domain.BreakerKind]bool
	Location  *time.Location // day and week boundaries, default UTC
	MaxEvents int            // event log capacity, default 1000
}

// DefaultBreakerConfig returns the stock thresholds.
func DefaultBreakerConfig() BreakerConfig {
	cfg := BreakerConfig{}
	cfg.setDefaults()
	return cfg
}

func (c *BreakerConfig) setDefaults() {
	if c.DailyLossPct.IsZero() {
		c.DailyLossPct = decimal.NewFromInt(5)
	}
	if c.WeeklyLossPct.IsZero() {
		c.WeeklyLossPct = decimal.NewFromInt(10)
	}
	if c.MaxDrawdownPct.IsZero() {
		c.MaxDrawdownPct = decimal.NewFromInt(15)
	}
	if c.VolatilityCeiling.IsZero() {
		c.VolatilityCeiling = decimal.NewFromInt(100)
	}
	if c.LiquidityFloor.IsZero() {
		c.LiquidityFloor = decimal.NewFromInt(50000)
	}
	if c.MaxAPIFailures == 0 {
		c.MaxAPIFailures = 3
	}
	if c.MaxConsecutiveLosses == 0 {
		c.MaxConsecutiveLosses = 5
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.MaxEvents == 0 {
		c.MaxEvents = 1000
	}
}

type breakerState struct {
	active bool
	since  time.Time
}

// Bank evaluates the seven breakers and answers whether trading is allowed.
// Bank is not safe for concurrent use; the engine serializes access.
type Bank struct {
	cfg BreakerConfig
	now func() time.Time

	state map[domain.BreakerKind]*breakerState

	seeded       bool
	lastEquity   decimal.Decimal
	peakEquity   decimal.Decimal
	dayStart     time.Time
	dayBaseline  decimal.Decimal
	weekStart    time.Time
	weekBaseline decimal.Decimal

	volatility        decimal.Decimal
	illiquid          map[string]decimal.Decimal
	apiFailures       int
	consecutiveLosses int

	events  []domain.BreakerEvent
	nextSeq int64
}

// NewBank creates a bank with every breaker inactive. A nil clock uses time.Now.
func NewBank(cfg BreakerConfig, now func() time.Time) *Bank {
	cfg.setDefaults()
	if now == nil {
		now = time.Now
	}
	b := &Bank{
		cfg:      cfg,
		now:      now,
		state:    make(map[domain.BreakerKind]*breakerState, len(domain.BreakerKinds)),
		illiquid: make(map[string]decimal.Decimal),
		nextSeq:  1,
	}
	for _, k := range domain.BreakerKinds {
		b.state[k] = &breakerState{}
	}
	return b
}

// Config returns the effective thresholds.
func (b *Bank) Config() BreakerConfig { return b.cfg }

// Enabled reports whether kind participates in Check.
func (b *Bank) Enabled(kind domain.BreakerKind) bool {
	return !b.cfg.Disabled[kind]
}

// Check returns nil when trading symbol is allowed, or a
// *domain.BlockedError naming every active breaker.
func (b *Bank) Check(symbol string, tier domain.Tier) error {
	b.roll()

	var active []domain.BreakerKind
	for _, k := range domain.BreakerKinds {
		if !b.Enabled(k) {
			continue
		}
		if b.blocks(k, symbol) {
			active = append(active, k)
		}
	}
	if len(active) == 0 {
		return nil
	}
	return &domain.BlockedError{Symbol: symbol, Tier: tier, Breakers: active}
}

// blocks reports whether kind blocks symbol right now.
func (b *Bank) blocks(kind domain.BreakerKind, symbol string) bool {
	switch kind {
	case domain.BreakerDailyLoss, domain.BreakerWeeklyLoss, domain.BreakerDrawdown,
		domain.BreakerVolatility, domain.BreakerAPIFailure, domain.BreakerConsecutiveLosses:
		return b.state[kind].active
	case domain.BreakerLiquidity:
		_, ok := b.illiquid[symbol]
		return ok
	default:
		panic(fmt.Sprintf("risk: unhandled breaker kind %d", kind))
	}
}

// ObserveEquity feeds a new equity reading to the loss and drawdown breakers.
func (b *Bank) ObserveEquity(equity decimal.Decimal) {
	if !b.seeded {
		now := b.now().In(b.cfg.Location)
		b.seeded = true
		b.lastEquity = equity
		b.peakEquity = equity
		b.dayStart, b.dayBaseline = startOfDay(now), equity
		b.weekStart, b.weekBaseline = startOfWeek(now), equity
		return
	}

	b.roll()
	b.lastEquity = equity
	if equity.GreaterThan(b.peakEquity) {
		b.peakEquity = equity
	}
	b.evaluateEquity()
}

// roll moves the day and week baselines forward when a boundary has passed.
// The new baseline is the last equity seen before the boundary.
func (b *Bank) roll() {
	if !b.seeded {
		return
	}
	now := b.now().In(b.cfg.Location)
	rolled := false
	if day := startOfDay(now); day.After(b.dayStart) {
		b.dayStart, b.dayBaseline = day, b.lastEquity
		rolled = true
	}
	if week := startOfWeek(now); week.After(b.weekStart) {
		b.weekStart, b.weekBaseline = week, b.lastEquity
		rolled = true
	}
	if rolled {
		slog.Debug("risk: loss baselines rolled",
			"day_baseline", b.dayBaseline.String(),
			"week_baseline", b.weekBaseline.String(),
		)
		b.evaluateEquity()
	}
}

func (b *Bank) evaluateEquity() {
	daily := lossPct(b.dayBaseline, b.lastEquity)
	b.set(domain.BreakerDailyLoss, "", daily.GreaterThanOrEqual(b.cfg.DailyLossPct), b.cfg.DailyLossPct, daily)

	weekly := lossPct(b.weekBaseline, b.lastEquity)
	b.set(domain.BreakerWeeklyLoss, "", weekly.GreaterThanOrEqual(b.cfg.WeeklyLossPct), b.cfg.WeeklyLossPct, weekly)

	// Drawdown only trips here; clearing goes through Reset.
	dd := lossPct(b.peakEquity, b.lastEquity)
	if dd.GreaterThanOrEqual(b.cfg.MaxDrawdownPct) {
		b.set(domain.BreakerDrawdown, "", true, b.cfg.MaxDrawdownPct, dd)
	}
}

// ObserveVolatility records the latest market volatility reading.
func (b *Bank) ObserveVolatility(metric decimal.Decimal) {
	b.volatility = metric
	b.set(domain.BreakerVolatility, "", metric.GreaterThan(b.cfg.VolatilityCeiling), b.cfg.VolatilityCeiling, metric)
}

// ObserveLiquidity records the latest liquidity reading for symbol.
func (b *Bank) ObserveLiquidity(symbol string, liquidity decimal.Decimal) {
	_, wasLow := b.illiquid[symbol]
	low := liquidity.LessThan(b.cfg.LiquidityFloor)
	switch {
	case low:
		b.illiquid[symbol] = liquidity
	case wasLow:
		delete(b.illiquid, symbol)
	}
	if low != wasLow {
		b.emit(domain.BreakerLiquidity, symbol, low, b.cfg.LiquidityFloor, liquidity)
	}
	st := b.state[domain.BreakerLiquidity]
	if len(b.illiquid) > 0 && !st.active {
		st.active, st.since = true, b.now()
	} else if len(b.illiquid) == 0 {
		st.active, st.since = false, time.Time{}
	}
}

// RecordAPIOutcome counts consecutive upstream failures. One success clears.
func (b *Bank) RecordAPIOutcome(ok bool) {
	if ok {
		b.apiFailures = 0
	} else {
		b.apiFailures++
	}
	threshold := decimal.NewFromInt(int64(b.cfg.MaxAPIFailures))
	b.set(domain.BreakerAPIFailure, "", b.apiFailures >= b.cfg.MaxAPIFailures,
		threshold, decimal.NewFromInt(int64(b.apiFailures)))
}

// RecordTradeResult counts consecutive losing trades. One win clears.
func (b *Bank) RecordTradeResult(win bool) {
	if win {
		b.consecutiveLosses = 0
	} else {
		b.consecutiveLosses++
	}
	threshold := decimal.NewFromInt(int64(b.cfg.MaxConsecutiveLosses))
	b.set(domain.BreakerConsecutiveLosses, "", b.consecutiveLosses >= b.cfg.MaxConsecutiveLosses,
		threshold, decimal.NewFromInt(int64(b.consecutiveLosses)))
}

// Reset clears kind by operator action. Counters are zeroed. Breakers whose
// condition still holds on the latest readings return domain.ErrBreakerNotHealed.
func (b *Bank) Reset(kind domain.BreakerKind) error {
	b.roll()
	switch kind {
	case domain.BreakerDailyLoss:
		if v := lossPct(b.dayBaseline, b.lastEquity); v.GreaterThanOrEqual(b.cfg.DailyLossPct) {
			return notHealed(kind, v, b.cfg.DailyLossPct)
		}
	case domain.BreakerWeeklyLoss:
		if v := lossPct(b.weekBaseline, b.lastEquity); v.GreaterThanOrEqual(b.cfg.WeeklyLossPct) {
			return notHealed(kind, v, b.cfg.WeeklyLossPct)
		}
	case domain.BreakerDrawdown:
		if v := lossPct(b.peakEquity, b.lastEquity); v.GreaterThanOrEqual(b.cfg.MaxDrawdownPct) {
			return notHealed(kind, v, b.cfg.MaxDrawdownPct)
		}
	case domain.BreakerVolatility:
		if b.volatility.GreaterThan(b.cfg.VolatilityCeiling) {
			return notHealed(kind, b.volatility, b.cfg.VolatilityCeiling)
		}
	case domain.BreakerLiquidity:
		if len(b.illiquid) > 0 {
			return fmt.Errorf("%w: %s below floor for %v", domain.ErrBreakerNotHealed, kind, sortedKeys(b.illiquid))
		}
	case domain.BreakerAPIFailure:
		b.apiFailures = 0
	case domain.BreakerConsecutiveLosses:
		b.consecutiveLosses = 0
	default:
		return fmt.Errorf("risk.Reset: unknown breaker %d", kind)
	}
	b.set(kind, "", false, b.threshold(kind), b.current(kind))
	slog.Info("risk: circuit breaker reset", "breaker", kind.String())
	return nil
}

// Status reports every breaker in evaluation order.
func (b *Bank) Status() []domain.BreakerStatus {
	b.roll()
	out := make([]domain.BreakerStatus, 0, len(domain.BreakerKinds))
	for _, k := range domain.BreakerKinds {
		st := b.state[k]
		s := domain.BreakerStatus{
			Kind:      k,
			Enabled:   b.Enabled(k),
			Active:    st.active,
			Threshold: b.threshold(k),
			Current:   b.current(k),
			Since:     st.since,
		}
		if k == domain.BreakerLiquidity {
			s.Symbols = sortedKeys(b.illiquid)
		}
		out = append(out, s)
	}
	return out
}

// Active lists the kinds currently blocking all symbols, plus liquidity when
// any symbol is below the floor.
func (b *Bank) Active() []domain.BreakerKind {
	var out []domain.BreakerKind
	for _, s := range b.Status() {
		if s.Enabled && s.Active {
			out = append(out, s.Kind)
		}
	}
	return out
}

// Events returns logged transitions at or after since, oldest first.
func (b *Bank) Events(since time.Time) []domain.BreakerEvent {
	var out []domain.BreakerEvent
	for _, e := range b.events {
		if !e.At.Before(since) {
			out = append(out, e)
		}
	}
	return out
}

// EventsAfter returns logged transitions with Seq greater than seq.
func (b *Bank) EventsAfter(seq int64) []domain.BreakerEvent {
	i := sort.Search(len(b.events), func(i int) bool { return b.events[i].Seq > seq })
	out := make([]domain.BreakerEvent, len(b.events)-i)
	copy(out, b.events[i:])
	return out
}

func (b *Bank) threshold(kind domain.BreakerKind) decimal.Decimal {
	switch kind {
	case domain.BreakerDailyLoss:
		return b.cfg.DailyLossPct
	case domain.BreakerWeeklyLoss:
		return b.cfg.WeeklyLossPct
	case domain.BreakerDrawdown:
		return b.cfg.MaxDrawdownPct
	case domain.BreakerVolatility:
		return b.cfg.VolatilityCeiling
	case domain.BreakerLiquidity:
		return b.cfg.LiquidityFloor
	case domain.BreakerAPIFailure:
		return decimal.NewFromInt(int64(b.cfg.MaxAPIFailures))
	case domain.BreakerConsecutiveLosses:
		return decimal.NewFromInt(int64(b.cfg.MaxConsecutiveLosses))
	default:
		panic(fmt.Sprintf("risk: unhandled breaker kind %d", kind))
	}
}

func (b *Bank) current(kind domain.BreakerKind) decimal.Decimal {
	switch kind {
	case domain.BreakerDailyLoss:
		return lossPct(b.dayBaseline, b.lastEquity)
	case domain.BreakerWeeklyLoss:
		return lossPct(b.weekBaseline, b.lastEquity)
	case domain.BreakerDrawdown:
		return lossPct(b.peakEquity, b.lastEquity)
	case domain.BreakerVolatility:
		return b.volatility
	case domain.BreakerLiquidity:
		lowest := decimal.Zero
		for _, v := range b.illiquid {
			if lowest.IsZero() || v.LessThan(lowest) {
				lowest = v
			}
		}
		return lowest
	case domain.BreakerAPIFailure:
		return decimal.NewFromInt(int64(b.apiFailures))
	case domain.BreakerConsecutiveLosses:
		return decimal.NewFromInt(int64(b.consecutiveLosses))
	default:
		panic(fmt.Sprintf("risk: unhandled breaker kind %d", kind))
	}
}

// set moves kind to active, logging and recording the transition if any.
// Disabled breakers never trip.
func (b *Bank) set(kind domain.BreakerKind, symbol string, active bool, threshold, actual decimal.Decimal) {
	if active && !b.Enabled(kind) {
		active = false
	}
	st := b.state[kind]
	if st.active == active {
		return
	}
	st.active = active
	if active {
		st.since = b.now()
	} else {
		st.since = time.Time{}
	}
	b.emit(kind, symbol, active, threshold, actual)
}

func (b *Bank) emit(kind domain.BreakerKind, symbol string, tripped bool, threshold, actual decimal.Decimal) {
	e := domain.BreakerEvent{
		Seq:       b.nextSeq,
		Kind:      kind,
		Symbol:    symbol,
		Tripped:   tripped,
		Threshold: threshold,
		Actual:    actual,
		At:        b.now(),
	}
	b.nextSeq++
	if tripped {
		e.Message = fmt.Sprintf("%s tripped: %s vs threshold %s", kind, actual.StringFixed(2), threshold.StringFixed(2))
		slog.Warn("risk: circuit breaker tripped",
			"breaker", kind.String(),
			"symbol", symbol,
			"actual", actual.StringFixed(4),
			"threshold", threshold.String(),
		)
	} else {
		e.Message = fmt.Sprintf("%s cleared: %s vs threshold %s", kind, actual.StringFixed(2), threshold.StringFixed(2))
		slog.Info("risk: circuit breaker cleared",
			"breaker", kind.String(),
			"symbol", symbol,
			"actual", actual.StringFixed(4),
		)
	}
	b.events = append(b.events, e)
	if over := len(b.events) - b.cfg.MaxEvents; over > 0 {
		b.events = append(b.events[:0:0], b.events[over:]...)
	}
}

func notHealed(kind domain.BreakerKind, actual, threshold decimal.Decimal) error {
	return fmt.Errorf("%w: %s at %s, threshold %s", domain.ErrBreakerNotHealed,
		kind, actual.StringFixed(2), threshold.String())
}

// lossPct is the percentage decline from base to equity; zero on gains.
func lossPct(base, equity decimal.Decimal) decimal.Decimal {
	if !base.IsPositive() || !equity.LessThan(base) {
		return decimal.Zero
	}
	return base.Sub(equity).Mul(hundred).Div(base)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// startOfWeek returns the Monday starting t's ISO week.
func startOfWeek(t time.Time) time.Time {
	day := startOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func sortedKeys(m map[string]decimal.Decimal) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
