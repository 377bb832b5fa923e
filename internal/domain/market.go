package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is one market observation for a symbol. Liquidity and Volatility
// are optional telemetry for the breakers.
type Quote struct {
	Symbol     string
	Price      decimal.Decimal
	Liquidity  decimal.NullDecimal
	Volatility decimal.NullDecimal
}

// Tick groups the quotes observed at one instant.
type Tick struct {
	At     time.Time
	Quotes []Quote
}

// Prices returns the tick as a symbol -> price map.
func (t Tick) Prices() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(t.Quotes))
	for _, q := range t.Quotes {
		out[q.Symbol] = q.Price
	}
	return out
}

// Rejection records an entry the engine refused.
type Rejection struct {
	At       time.Time
	Symbol   string
	Tier     Tier
	Reason   string // RejectionReason label
	Breakers []BreakerKind
	Detail   string
}

// NewRejection builds a Rejection from the error an entry returned.
func NewRejection(at time.Time, symbol string, tier Tier, err error) Rejection {
	return Rejection{
		At:       at,
		Symbol:   symbol,
		Tier:     tier,
		Reason:   RejectionReason(err),
		Breakers: BlockingBreakers(err),
		Detail:   err.Error(),
	}
}

// EquityPoint is one sample of the account's marked value.
type EquityPoint struct {
	At            time.Time
	Cash          decimal.Decimal
	Equity        decimal.Decimal
	OpenPositions int
}
