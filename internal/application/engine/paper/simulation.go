package paper

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/riskgate/internal/application/risk"
	"github.com/alejandrodnm/riskgate/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// OpenRequest is an explicit buy of Quantity units at MarketPrice.
type OpenRequest struct {
	Symbol      string
	Tier        domain.Tier
	Quantity    decimal.Decimal
	MarketPrice decimal.Decimal
	StopLoss    decimal.NullDecimal
	TakeProfit  decimal.NullDecimal
	StrategyTag string
	Confidence  decimal.Decimal
}

// SizedOpenRequest is a proposal to be sized before buying. The sizer's
// stop-loss and take-profit are used unless overridden.
type SizedOpenRequest struct {
	Proposal   domain.Proposal
	StopLoss   decimal.NullDecimal
	TakeProfit decimal.NullDecimal
}

// CloseRequest sells the whole position in Symbol at MarketPrice.
// StrategyTag and Confidence, when set, override the values recorded at entry.
type CloseRequest struct {
	Symbol      string
	MarketPrice decimal.Decimal
	Reason      domain.ExitReason // default manual
	StrategyTag string
	Confidence  decimal.NullDecimal
}

// Open buys req.Quantity at the market price plus slippage. Rejected with
// no ledger change when a breaker is active, the symbol is already held,
// cash does not cover cost plus fee, or the order is malformed.
func (e *Engine) Open(req OpenRequest) (domain.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := e.openLocked(req)
	if err != nil {
		return domain.Position{}, fmt.Errorf("paper.Open: %w", err)
	}
	return p, nil
}

// OpenSized runs the full entry flow for a proposal: breaker check, sizing
// against the marked portfolio value, tier allocation, then the fill.
// The sizing decision is returned even when the entry is rejected after sizing.
func (e *Engine) OpenSized(req SizedOpenRequest) (domain.Position, risk.SizingDecision, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	prop := req.Proposal
	if err := e.bank.Check(prop.Symbol, prop.Tier); err != nil {
		return domain.Position{}, risk.SizingDecision{}, fmt.Errorf("paper.OpenSized: %w", err)
	}
	if _, held := e.positions[prop.Symbol]; held {
		return domain.Position{}, risk.SizingDecision{}, fmt.Errorf("paper.OpenSized: %w: %s", domain.ErrDuplicatePosition, prop.Symbol)
	}
	if !prop.MarketPrice.IsPositive() {
		return domain.Position{}, risk.SizingDecision{}, fmt.Errorf("paper.OpenSized: %w: market price %s", domain.ErrInvalidOrder, prop.MarketPrice)
	}

	portfolio := e.equityLocked(nil)
	exec := e.buyPrice(prop.MarketPrice)
	dec, err := e.sizer.Size(risk.SizingRequest{
		Symbol:         prop.Symbol,
		Tier:           prop.Tier,
		PortfolioValue: portfolio,
		WinRate:        prop.WinRate,
		AvgWin:         prop.AvgWin,
		AvgLoss:        prop.AvgLoss,
		Confidence:     prop.Confidence,
		TradeCount:     prop.TradeCount,
	}, exec)
	if err != nil {
		return domain.Position{}, dec, fmt.Errorf("paper.OpenSized: %w", err)
	}

	if err := e.sizer.CheckTierAllocation(prop.Tier, e.tierExposureLocked(prop.Tier), dec.Notional, portfolio); err != nil {
		return domain.Position{}, dec, fmt.Errorf("paper.OpenSized: %w", err)
	}

	stop := req.StopLoss
	if !stop.Valid {
		stop = decimal.NewNullDecimal(dec.StopLoss)
	}
	tp := req.TakeProfit
	if !tp.Valid {
		tp = decimal.NewNullDecimal(dec.TakeProfit)
	}

	p, err := e.openLocked(OpenRequest{
		Symbol:      prop.Symbol,
		Tier:        prop.Tier,
		Quantity:    dec.Quantity,
		MarketPrice: prop.MarketPrice,
		StopLoss:    stop,
		TakeProfit:  tp,
		StrategyTag: prop.StrategyTag,
		Confidence:  prop.Confidence,
	})
	if err != nil {
		return domain.Position{}, dec, fmt.Errorf("paper.OpenSized: %w", err)
	}
	return p, dec, nil
}

func (e *Engine) openLocked(req OpenRequest) (domain.Position, error) {
	switch {
	case req.Symbol == "":
		return domain.Position{}, fmt.Errorf("%w: empty symbol", domain.ErrInvalidOrder)
	case !req.Tier.Valid():
		return domain.Position{}, fmt.Errorf("%w: unknown tier %q", domain.ErrInvalidOrder, req.Tier)
	case !req.Quantity.IsPositive():
		return domain.Position{}, fmt.Errorf("%w: quantity %s", domain.ErrInvalidOrder, req.Quantity)
	case !req.MarketPrice.IsPositive():
		return domain.Position{}, fmt.Errorf("%w: market price %s", domain.ErrInvalidOrder, req.MarketPrice)
	}

	exec := e.buyPrice(req.MarketPrice)
	if req.StopLoss.Valid && !req.StopLoss.Decimal.LessThan(exec) {
		return domain.Position{}, fmt.Errorf("%w: stop-loss %s not below execution price %s",
			domain.ErrInvalidOrder, req.StopLoss.Decimal, exec)
	}
	if req.TakeProfit.Valid && !req.TakeProfit.Decimal.GreaterThan(exec) {
		return domain.Position{}, fmt.Errorf("%w: take-profit %s not above execution price %s",
			domain.ErrInvalidOrder, req.TakeProfit.Decimal, exec)
	}

	if err := e.bank.Check(req.Symbol, req.Tier); err != nil {
		return domain.Position{}, err
	}
	if _, held := e.positions[req.Symbol]; held {
		return domain.Position{}, fmt.Errorf("%w: %s", domain.ErrDuplicatePosition, req.Symbol)
	}

	cost := exec.Mul(req.Quantity)
	fee := cost.Mul(e.cfg.FeeRate)
	total := cost.Add(fee)
	if total.GreaterThan(e.cash) {
		return domain.Position{}, fmt.Errorf("%w: need %s, have %s",
			domain.ErrInsufficientCash, total.StringFixed(2), e.cash.StringFixed(2))
	}

	p := &domain.Position{
		ID:          uuid.NewString(),
		Symbol:      req.Symbol,
		Tier:        req.Tier,
		EntryPrice:  exec,
		Quantity:    req.Quantity,
		EntryTime:   e.now(),
		StopLoss:    req.StopLoss,
		TakeProfit:  req.TakeProfit,
		EntryFees:   fee,
		StrategyTag: req.StrategyTag,
		Confidence:  req.Confidence,
	}
	e.cash = e.cash.Sub(total)
	e.positions[p.Symbol] = p
	e.marks[p.Symbol] = req.MarketPrice
	e.bank.ObserveEquity(e.equityLocked(nil))

	slog.Info("paper: opened position",
		"symbol", p.Symbol,
		"tier", p.Tier,
		"qty", p.Quantity.String(),
		"price", exec.String(),
		"fee", fee.String(),
		"cash", e.cash.StringFixed(2),
	)
	return *p, nil
}

// Close sells the whole position at the market price less slippage.
// Breakers never block a close.
func (e *Engine) Close(req CloseRequest) (domain.ClosedTrade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	reason := req.Reason
	if reason == "" {
		reason = domain.ExitManual
	}
	if !reason.Valid() {
		return domain.ClosedTrade{}, fmt.Errorf("paper.Close: %w: exit reason %q", domain.ErrInvalidOrder, reason)
	}
	req.Reason = reason
	t, err := e.closeLocked(req)
	if err != nil {
		return domain.ClosedTrade{}, fmt.Errorf("paper.Close: %w", err)
	}
	return t, nil
}

// closeLocked sells the whole position. A non-empty StrategyTag or a valid
// Confidence in req replaces the value carried from the entry.
func (e *Engine) closeLocked(req CloseRequest) (domain.ClosedTrade, error) {
	symbol, price, reason := req.Symbol, req.MarketPrice, req.Reason
	if !price.IsPositive() {
		return domain.ClosedTrade{}, fmt.Errorf("%w: market price %s", domain.ErrInvalidOrder, price)
	}
	p, ok := e.positions[symbol]
	if !ok {
		return domain.ClosedTrade{}, fmt.Errorf("%w: %s", domain.ErrNoSuchPosition, symbol)
	}

	exec := e.sellPrice(price)
	proceeds := exec.Mul(p.Quantity)
	fee := proceeds.Mul(e.cfg.FeeRate)
	net := proceeds.Sub(fee)
	basis := p.CostBasis()
	pnl := net.Sub(basis)
	pnlPct := decimal.Zero
	if basis.IsPositive() {
		pnlPct = pnl.Mul(hundred).Div(basis)
	}

	t := domain.ClosedTrade{
		ID:          uuid.NewString(),
		PositionID:  p.ID,
		Symbol:      p.Symbol,
		Tier:        p.Tier,
		EntryPrice:  p.EntryPrice,
		ExitPrice:   exec,
		Quantity:    p.Quantity,
		EntryTime:   p.EntryTime,
		ExitTime:    e.now(),
		PnL:         pnl,
		PnLPct:      pnlPct,
		TotalFees:   p.EntryFees.Add(fee),
		ExitReason:  reason,
		StrategyTag: p.StrategyTag,
		Confidence:  p.Confidence,
	}
	if req.StrategyTag != "" {
		t.StrategyTag = req.StrategyTag
	}
	if req.Confidence.Valid {
		t.Confidence = req.Confidence.Decimal
	}

	e.cash = e.cash.Add(net)
	delete(e.positions, symbol)
	delete(e.marks, symbol)
	e.closed = append(e.closed, t)

	e.bank.RecordTradeResult(t.Win())
	e.bank.ObserveEquity(e.equityLocked(nil))

	slog.Info("paper: closed position",
		"symbol", t.Symbol,
		"reason", t.ExitReason,
		"price", exec.String(),
		"pnl", pnl.StringFixed(2),
		"pnl_pct", pnlPct.StringFixed(2),
		"cash", e.cash.StringFixed(2),
	)
	return t, nil
}

// Tick marks open positions at prices and closes those whose stop-loss,
// take-profit or holding limit is hit, in symbol order. Positions without a
// price are left alone.
func (e *Engine) Tick(prices map[string]decimal.Decimal) []domain.ClosedTrade {
	e.mu.Lock()
	defer e.mu.Unlock()

	for sym, price := range prices {
		if _, held := e.positions[sym]; held && price.IsPositive() {
			e.marks[sym] = price
		}
	}

	now := e.now()
	var exits []domain.ClosedTrade
	for _, sym := range e.symbolsLocked() {
		p := e.positions[sym]
		price, ok := prices[sym]
		if !ok || !price.IsPositive() {
			slog.Warn("paper: no price for open position", "symbol", sym)
			continue
		}

		reason, hit := e.exitReason(p, price, now)
		if !hit {
			continue
		}
		t, err := e.closeLocked(CloseRequest{Symbol: sym, MarketPrice: price, Reason: reason})
		if err != nil {
			slog.Error("paper: forced exit failed", "symbol", sym, "reason", reason, "err", err)
			continue
		}
		exits = append(exits, t)
	}

	e.bank.ObserveEquity(e.equityLocked(nil))
	return exits
}

// exitReason picks at most one trigger: stop-loss first, then take-profit,
// then the holding limit.
func (e *Engine) exitReason(p *domain.Position, price decimal.Decimal, now time.Time) (domain.ExitReason, bool) {
	switch {
	case p.StopLoss.Valid && price.LessThanOrEqual(p.StopLoss.Decimal):
		return domain.ExitStopLoss, true
	case p.TakeProfit.Valid && price.GreaterThanOrEqual(p.TakeProfit.Decimal):
		return domain.ExitTakeProfit, true
	case e.cfg.MaxHoldingPeriod > 0 && now.Sub(p.EntryTime) >= e.cfg.MaxHoldingPeriod:
		return domain.ExitTimeout, true
	}
	return "", false
}

func (e *Engine) buyPrice(market decimal.Decimal) decimal.Decimal {
	return market.Mul(one.Add(e.cfg.SlippageRate))
}

func (e *Engine) sellPrice(market decimal.Decimal) decimal.Decimal {
	return market.Mul(one.Sub(e.cfg.SlippageRate))
}
