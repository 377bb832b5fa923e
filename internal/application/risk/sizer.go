// Package risk holds the two leaf components that gate every entry: the
// fractional-Kelly position sizer and the circuit breaker bank.
package risk

import (
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/riskgate/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// SizerConfig bounds every sizing decision. Fractions are in [0,1]
// (0.02 = 2% of the portfolio). Zero values are replaced by defaults.
type SizerConfig struct {
	KellyMultiplier decimal.Decimal                 // fractional Kelly, default 0.25
	HardCeiling     decimal.Decimal                 // absolute cap on any position, default 0.02
	TierCeiling     map[domain.Tier]decimal.Decimal // per-position cap by tier
	TierStopPct     map[domain.Tier]decimal.Decimal // stop distance below entry
	TierAllocation  map[domain.Tier]decimal.Decimal // total exposure cap by tier
	MinRiskReward   decimal.Decimal                 // take-profit multiple of the stop distance, default 2
	MinTrades       int                             // history required before sizing, default 20
	LotSize         decimal.Decimal                 // quantity step, default 1e-8
}

// DefaultSizerConfig returns the stock limits.
func DefaultSizerConfig() SizerConfig {
	cfg := SizerConfig{}
	cfg.setDefaults()
	return cfg
}

func (c *SizerConfig) setDefaults() {
	if c.KellyMultiplier.IsZero() {
		c.KellyMultiplier = decimal.RequireFromString("0.25")
	}
	if c.HardCeiling.IsZero() {
		c.HardCeiling = decimal.RequireFromString("0.02")
	}
	if c.MinRiskReward.IsZero() {
		c.MinRiskReward = decimal.NewFromInt(2)
	}
	if c.MinTrades == 0 {
		c.MinTrades = 20
	}
	if c.LotSize.IsZero() {
		c.LotSize = decimal.New(1, -8)
	}
	c.TierCeiling = withTierDefaults(c.TierCeiling, "0.05", "0.03", "0.01")
	c.TierStopPct = withTierDefaults(c.TierStopPct, "0.05", "0.05", "0.03")
	c.TierAllocation = withTierDefaults(c.TierAllocation, "0.60", "0.40", "0.20")
}

// withTierDefaults copies m and fills missing or zero tiers.
func withTierDefaults(m map[domain.Tier]decimal.Decimal, foundation, growth, opportunity string) map[domain.Tier]decimal.Decimal {
	defaults := map[domain.Tier]string{
		domain.TierFoundation:  foundation,
		domain.TierGrowth:      growth,
		domain.TierOpportunity: opportunity,
	}
	out := make(map[domain.Tier]decimal.Decimal, len(defaults))
	for tier, def := range defaults {
		if v, ok := m[tier]; ok && !v.IsZero() {
			out[tier] = v
			continue
		}
		out[tier] = decimal.RequireFromString(def)
	}
	return out
}

// SizingRequest is the account state and strategy edge behind one entry.
type SizingRequest struct {
	Symbol         string
	Tier           domain.Tier
	PortfolioValue decimal.Decimal
	WinRate        decimal.Decimal // 0..1
	AvgWin         decimal.Decimal
	AvgLoss        decimal.Decimal // positive magnitude
	Confidence     decimal.Decimal // 0..1
	TradeCount     int
}

// SizingDecision is the outcome of Size. Every clamping step stays visible.
type SizingDecision struct {
	Symbol     string
	Tier       domain.Tier
	EntryPrice decimal.Decimal

	KellyFraction    decimal.Decimal // full Kelly clamped to [0,1]
	DampenedFraction decimal.Decimal // after multiplier and confidence
	Ceiling          decimal.Decimal // min(tier ceiling, hard ceiling)
	Fraction         decimal.Decimal // final fraction of the portfolio
	Capped           bool            // DampenedFraction exceeded Ceiling

	TargetNotional decimal.Decimal // PortfolioValue * Fraction
	Notional       decimal.Decimal // Quantity * EntryPrice, after lot flooring
	Quantity       decimal.Decimal

	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
	RiskAmount decimal.Decimal // loss if the stop is hit, fees excluded
}

// PositionSizer turns a statistical edge into a bounded quantity.
type PositionSizer struct {
	cfg SizerConfig
}

// NewPositionSizer fills unset limits with defaults.
func NewPositionSizer(cfg SizerConfig) *PositionSizer {
	cfg.setDefaults()
	return &PositionSizer{cfg: cfg}
}

// Config returns the effective limits.
func (s *PositionSizer) Config() SizerConfig { return s.cfg }

// Size computes quantity, stop-loss and take-profit for an entry at
// entryPrice. When the edge or the budget rounds down to nothing it returns
// the populated decision together with domain.ErrZeroQuantity.
func (s *PositionSizer) Size(req SizingRequest, entryPrice decimal.Decimal) (SizingDecision, error) {
	if err := s.validate(req, entryPrice); err != nil {
		return SizingDecision{}, err
	}
	if req.AvgLoss.IsZero() || req.TradeCount < s.cfg.MinTrades {
		return SizingDecision{}, fmt.Errorf("%w: %d trades (need %d), avg loss %s",
			domain.ErrInsufficientHistory, req.TradeCount, s.cfg.MinTrades, req.AvgLoss)
	}

	d := SizingDecision{
		Symbol:     req.Symbol,
		Tier:       req.Tier,
		EntryPrice: entryPrice,
	}

	d.KellyFraction = KellyFraction(req.WinRate, req.AvgWin, req.AvgLoss)
	d.DampenedFraction = d.KellyFraction.Mul(s.cfg.KellyMultiplier).Mul(req.Confidence)
	d.Ceiling = decimal.Min(s.cfg.TierCeiling[req.Tier], s.cfg.HardCeiling)
	d.Fraction = d.DampenedFraction
	if d.Fraction.GreaterThan(d.Ceiling) {
		d.Fraction = d.Ceiling
		d.Capped = true
	}

	d.TargetNotional = req.PortfolioValue.Mul(d.Fraction)
	d.Quantity = FloorToLot(d.TargetNotional.Div(entryPrice), s.cfg.LotSize)
	d.Notional = d.Quantity.Mul(entryPrice)

	d.StopLoss, d.TakeProfit = s.ProtectiveLevels(req.Tier, entryPrice)
	d.RiskAmount = entryPrice.Sub(d.StopLoss).Mul(d.Quantity)

	if !d.Quantity.IsPositive() {
		return d, fmt.Errorf("%w: %s fraction %s of %s",
			domain.ErrZeroQuantity, req.Symbol, d.Fraction, req.PortfolioValue)
	}

	slog.Debug("risk: sized position",
		"symbol", req.Symbol,
		"tier", req.Tier,
		"kelly", d.KellyFraction.StringFixed(4),
		"fraction", d.Fraction.StringFixed(4),
		"capped", d.Capped,
		"quantity", d.Quantity.String(),
	)
	return d, nil
}

func (s *PositionSizer) validate(req SizingRequest, entryPrice decimal.Decimal) error {
	switch {
	case !req.Tier.Valid():
		return fmt.Errorf("%w: unknown tier %q", domain.ErrInvalidSizingRequest, req.Tier)
	case !req.PortfolioValue.IsPositive():
		return fmt.Errorf("%w: portfolio value %s", domain.ErrInvalidSizingRequest, req.PortfolioValue)
	case !entryPrice.IsPositive():
		return fmt.Errorf("%w: entry price %s", domain.ErrInvalidSizingRequest, entryPrice)
	case !unitInterval(req.WinRate):
		return fmt.Errorf("%w: win rate %s outside [0,1]", domain.ErrInvalidSizingRequest, req.WinRate)
	case !unitInterval(req.Confidence):
		return fmt.Errorf("%w: confidence %s outside [0,1]", domain.ErrInvalidSizingRequest, req.Confidence)
	case req.AvgWin.IsNegative(), req.AvgLoss.IsNegative():
		return fmt.Errorf("%w: negative average win/loss", domain.ErrInvalidSizingRequest)
	}
	return nil
}

// ProtectiveLevels returns the tier stop below entry and the take-profit
// MinRiskReward stop distances above it.
func (s *PositionSizer) ProtectiveLevels(tier domain.Tier, entry decimal.Decimal) (stop, takeProfit decimal.Decimal) {
	stop = entry.Mul(one.Sub(s.cfg.TierStopPct[tier]))
	takeProfit = entry.Add(entry.Sub(stop).Mul(s.cfg.MinRiskReward))
	return stop, takeProfit
}

// CheckTierAllocation refuses an entry of notional that would push the
// tier's open exposure past its allocation of the portfolio.
func (s *PositionSizer) CheckTierAllocation(tier domain.Tier, exposure, notional, portfolio decimal.Decimal) error {
	if !portfolio.IsPositive() {
		return fmt.Errorf("%w: portfolio value %s", domain.ErrInvalidSizingRequest, portfolio)
	}
	limit := s.cfg.TierAllocation[tier]
	after := exposure.Add(notional).Div(portfolio)
	if after.GreaterThan(limit) {
		return fmt.Errorf("%w: %s exposure %s%% > %s%%", domain.ErrTierAllocation, tier,
			after.Mul(hundred).StringFixed(2), limit.Mul(hundred).StringFixed(2))
	}
	return nil
}

// KellyFraction is (p*b - q)/b with b = avgWin/avgLoss, clamped to [0,1].
// No average win means no edge.
func KellyFraction(winRate, avgWin, avgLoss decimal.Decimal) decimal.Decimal {
	if !avgWin.IsPositive() || !avgLoss.IsPositive() {
		return decimal.Zero
	}
	b := avgWin.Div(avgLoss)
	f := winRate.Mul(b).Sub(one.Sub(winRate)).Div(b)
	return clamp01(f)
}

// RiskRewardRatio is the reward to risk of a long entry. Zero if the stop
// is not below entry.
func RiskRewardRatio(entry, takeProfit, stop decimal.Decimal) decimal.Decimal {
	risk := entry.Sub(stop)
	if !risk.IsPositive() {
		return decimal.Zero
	}
	return takeProfit.Sub(entry).Div(risk)
}

// MinWinRateForProfitability is the breakeven win rate at risk-reward rr.
func MinWinRateForProfitability(rr decimal.Decimal) decimal.Decimal {
	if rr.IsNegative() {
		return one
	}
	return one.Div(one.Add(rr))
}

// FloorToLot rounds qty down to a multiple of lot.
func FloorToLot(qty, lot decimal.Decimal) decimal.Decimal {
	if !qty.IsPositive() {
		return decimal.Zero
	}
	if !lot.IsPositive() {
		return qty
	}
	return qty.Div(lot).Floor().Mul(lot)
}

func clamp01(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(one) {
		return one
	}
	return d
}

func unitInterval(d decimal.Decimal) bool {
	return !d.IsNegative() && !d.GreaterThan(one)
}
