package risk_test

import (
	"testing"
	"time"

	"github.com/alejandrodnm/riskgate/internal/application/risk"
	"github.com/alejandrodnm/riskgate/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time            { return c.t }
func (c *clock) advance(dur time.Duration) { c.t = c.t.Add(dur) }

// Monday 2026-03-02 10:00 UTC
func newBank(cfg risk.BreakerConfig) (*risk.Bank, *clock) {
	c := &clock{t: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	b := risk.NewBank(cfg, c.now)
	b.ObserveEquity(d("10000"))
	return b, c
}

func assertBlockedBy(t *testing.T, err error, kinds ...domain.BreakerKind) {
	t.Helper()
	require.ErrorIs(t, err, domain.ErrBreakerBlocked)
	assert.Equal(t, kinds, domain.BlockingBreakers(err))
}

func TestBank_StartsAllowed(t *testing.T) {
	b, _ := newBank(risk.BreakerConfig{})
	assert.NoError(t, b.Check("BTC", domain.TierFoundation))
	assert.Empty(t, b.Active())
}

func TestBank_DailyLossTripsAtThresholdAndSelfHeals(t *testing.T) {
	b, _ := newBank(risk.BreakerConfig{})

	b.ObserveEquity(d("9501"))
	assert.NoError(t, b.Check("BTC", domain.TierFoundation))

	b.ObserveEquity(d("9500"))
	assertBlockedBy(t, b.Check("BTC", domain.TierFoundation), domain.BreakerDailyLoss)

	b.ObserveEquity(d("9600"))
	assert.NoError(t, b.Check("BTC", domain.TierFoundation))
}

func TestBank_DailyLossClearsAtDayRollover(t *testing.T) {
	b, c := newBank(risk.BreakerConfig{WeeklyLossPct: d("50")})

	b.ObserveEquity(d("9400"))
	assertBlockedBy(t, b.Check("ETH", domain.TierFoundation), domain.BreakerDailyLoss)

	c.advance(14*time.Hour + time.Minute) // Tuesday 00:01
	assert.NoError(t, b.Check("ETH", domain.TierFoundation))

	// the new day measures from 9400
	b.ObserveEquity(d("8930"))
	assertBlockedBy(t, b.Check("ETH", domain.TierFoundation), domain.BreakerDailyLoss)
}

func TestBank_WeeklyLoss(t *testing.T) {
	b, c := newBank(risk.BreakerConfig{})

	c.advance(24 * time.Hour)
	b.ObserveEquity(d("9600"))
	c.advance(24 * time.Hour)
	b.ObserveEquity(d("9200"))
	c.advance(24 * time.Hour)
	b.ObserveEquity(d("8900")) // 11% on the week, 3.3% on the day

	assertBlockedBy(t, b.Check("SOL", domain.TierFoundation), domain.BreakerWeeklyLoss)

	c.advance(4 * 24 * time.Hour) // next Monday
	assert.NoError(t, b.Check("SOL", domain.TierFoundation))
}

func TestBank_DrawdownIsStickyUntilHealedAndReset(t *testing.T) {
	b, c := newBank(risk.BreakerConfig{DailyLossPct: d("50"), WeeklyLossPct: d("50")})

	b.ObserveEquity(d("11000"))
	b.ObserveEquity(d("9350")) // 15% off 11000
	assertBlockedBy(t, b.Check("BTC", domain.TierFoundation), domain.BreakerDrawdown)

	err := b.Reset(domain.BreakerDrawdown)
	assert.ErrorIs(t, err, domain.ErrBreakerNotHealed)

	b.ObserveEquity(d("10500"))
	c.advance(48 * time.Hour)
	assertBlockedBy(t, b.Check("BTC", domain.TierFoundation), domain.BreakerDrawdown)

	require.NoError(t, b.Reset(domain.BreakerDrawdown))
	assert.NoError(t, b.Check("BTC", domain.TierFoundation))
}

func TestBank_ConsecutiveLosses(t *testing.T) {
	b, _ := newBank(risk.BreakerConfig{})

	for i := 0; i < 4; i++ {
		b.RecordTradeResult(false)
	}
	assert.NoError(t, b.Check("BTC", domain.TierFoundation))

	b.RecordTradeResult(false)
	assertBlockedBy(t, b.Check("BTC", domain.TierFoundation), domain.BreakerConsecutiveLosses)

	b.RecordTradeResult(true)
	assert.NoError(t, b.Check("BTC", domain.TierFoundation))
}

func TestBank_ResetZeroesLossCounter(t *testing.T) {
	b, _ := newBank(risk.BreakerConfig{})

	for i := 0; i < 5; i++ {
		b.RecordTradeResult(false)
	}
	require.NoError(t, b.Reset(domain.BreakerConsecutiveLosses))
	assert.NoError(t, b.Check("BTC", domain.TierFoundation))

	b.RecordTradeResult(false)
	assert.NoError(t, b.Check("BTC", domain.TierFoundation))
}

func TestBank_APIFailures(t *testing.T) {
	b, _ := newBank(risk.BreakerConfig{})

	b.RecordAPIOutcome(false)
	b.RecordAPIOutcome(false)
	assert.NoError(t, b.Check("BTC", domain.TierFoundation))

	b.RecordAPIOutcome(false)
	assertBlockedBy(t, b.Check("BTC", domain.TierFoundation), domain.BreakerAPIFailure)

	b.RecordAPIOutcome(true)
	assert.NoError(t, b.Check("BTC", domain.TierFoundation))
}

func TestBank_Volatility(t *testing.T) {
	b, _ := newBank(risk.BreakerConfig{})

	b.ObserveVolatility(d("100"))
	assert.NoError(t, b.Check("BTC", domain.TierFoundation))

	b.ObserveVolatility(d("150"))
	assertBlockedBy(t, b.Check("BTC", domain.TierFoundation), domain.BreakerVolatility)
	assert.ErrorIs(t, b.Reset(domain.BreakerVolatility), domain.ErrBreakerNotHealed)

	b.ObserveVolatility(d("80"))
	assert.NoError(t, b.Check("BTC", domain.TierFoundation))
}

func TestBank_LiquidityIsPerSymbol(t *testing.T) {
	b, _ := newBank(risk.BreakerConfig{})

	b.ObserveLiquidity("PEPE", d("10000"))
	b.ObserveLiquidity("BTC", d("5000000"))

	assertBlockedBy(t, b.Check("PEPE", domain.TierOpportunity), domain.BreakerLiquidity)
	assert.NoError(t, b.Check("BTC", domain.TierFoundation))

	var liq domain.BreakerStatus
	for _, s := range b.Status() {
		if s.Kind == domain.BreakerLiquidity {
			liq = s
		}
	}
	assert.True(t, liq.Active)
	assert.Equal(t, []string{"PEPE"}, liq.Symbols)

	b.ObserveLiquidity("PEPE", d("60000"))
	assert.NoError(t, b.Check("PEPE", domain.TierOpportunity))
}

func TestBank_MultipleBreakersReportedInOrder(t *testing.T) {
	b, _ := newBank(risk.BreakerConfig{})

	b.ObserveVolatility(d("300"))
	b.ObserveEquity(d("9000"))

	assertBlockedBy(t, b.Check("BTC", domain.TierGrowth),
		domain.BreakerDailyLoss, domain.BreakerWeeklyLoss, domain.BreakerVolatility)
}

func TestBank_DisabledBreakerNeverBlocks(t *testing.T) {
	b, _ := newBank(risk.BreakerConfig{
		Disabled: map[domain.BreakerKind]bool{domain.BreakerDailyLoss: true},
	})

	b.ObserveEquity(d("9400"))
	assert.NoError(t, b.Check("BTC", domain.TierFoundation))
	assert.False(t, b.Enabled(domain.BreakerDailyLoss))
}

func TestBank_EventLog(t *testing.T) {
	b, c := newBank(risk.BreakerConfig{})

	b.RecordAPIOutcome(false)
	b.RecordAPIOutcome(false)
	b.RecordAPIOutcome(false)
	c.advance(time.Minute)
	b.RecordAPIOutcome(true)

	events := b.Events(time.Time{})
	require.Len(t, events, 2)
	assert.Equal(t, domain.BreakerAPIFailure, events[0].Kind)
	assert.True(t, events[0].Tripped)
	assert.False(t, events[1].Tripped)
	assert.Equal(t, int64(1), events[0].Seq)
	assert.Equal(t, int64(2), events[1].Seq)

	assert.Len(t, b.Events(c.t), 1)
	assert.Len(t, b.EventsAfter(1), 1)
	assert.Empty(t, b.EventsAfter(2))
}

func TestBank_StatusDefaults(t *testing.T) {
	b, _ := newBank(risk.BreakerConfig{})
	status := b.Status()
	require.Len(t, status, len(domain.BreakerKinds))

	want := map[domain.BreakerKind]string{
		domain.BreakerDailyLoss:         "5",
		domain.BreakerWeeklyLoss:        "10",
		domain.BreakerDrawdown:          "15",
		domain.BreakerVolatility:        "100",
		domain.BreakerLiquidity:         "50000",
		domain.BreakerAPIFailure:        "3",
		domain.BreakerConsecutiveLosses: "5",
	}
	for _, s := range status {
		assert.True(t, s.Enabled)
		assert.False(t, s.Active)
		assert.True(t, s.Threshold.Equal(d(want[s.Kind])), s.Kind.String())
	}
}
