package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alejandrodnm/riskgate/internal/domain"
)

// SavePosition upserts an open position.
func (s *SQLiteStorage) SavePosition(ctx context.Context, p domain.Position) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (id, symbol, tier, entry_price, quantity, entry_time,
		                       stop_loss, take_profit, entry_fees, strategy_tag, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			stop_loss   = excluded.stop_loss,
			take_profit = excluded.take_profit`,
		p.ID, p.Symbol, string(p.Tier), p.EntryPrice.String(), p.Quantity.String(),
		formatTime(p.EntryTime), nullDecimal(p.StopLoss), nullDecimal(p.TakeProfit),
		p.EntryFees.String(), p.StrategyTag, p.Confidence.String(),
	)
	if err != nil {
		return fmt.Errorf("storage.SavePosition: %s: %w", p.Symbol, err)
	}
	return nil
}

// DeletePosition removes a position once it has been closed.
func (s *SQLiteStorage) DeletePosition(ctx context.Context, positionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM positions WHERE id = ?`, positionID); err != nil {
		return fmt.Errorf("storage.DeletePosition: %w", err)
	}
	return nil
}

// OpenPositions returns every journaled open position ordered by symbol.
func (s *SQLiteStorage) OpenPositions(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, tier, entry_price, quantity, entry_time,
		       stop_loss, take_profit, entry_fees, strategy_tag, confidence
		FROM positions
		ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("storage.OpenPositions: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		var (
			p                                domain.Position
			tier, entry, qty, at, fees, conf string
			stop, tp                         sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Symbol, &tier, &entry, &qty, &at,
			&stop, &tp, &fees, &p.StrategyTag, &conf); err != nil {
			return nil, fmt.Errorf("storage.OpenPositions: scan row: %w", err)
		}
		var d decoder
		p.Tier = d.tier(tier)
		p.EntryPrice = d.dec(entry)
		p.Quantity = d.dec(qty)
		p.EntryTime = d.stamp(at)
		p.StopLoss = d.nullDec(stop)
		p.TakeProfit = d.nullDec(tp)
		p.EntryFees = d.dec(fees)
		p.Confidence = d.dec(conf)
		if d.err != nil {
			return nil, fmt.Errorf("storage.OpenPositions: %s: %w", p.Symbol, d.err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveTrade appends a closed trade. Saving the same trade twice is a no-op.
func (s *SQLiteStorage) SaveTrade(ctx context.Context, t domain.ClosedTrade) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO trades (id, position_id, symbol, tier, entry_price, exit_price,
		                              quantity, entry_time, exit_time, pnl, pnl_pct,
		                              total_fees, exit_reason, strategy_tag, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.PositionID, t.Symbol, string(t.Tier), t.EntryPrice.String(), t.ExitPrice.String(),
		t.Quantity.String(), formatTime(t.EntryTime), formatTime(t.ExitTime),
		t.PnL.String(), t.PnLPct.String(), t.TotalFees.String(), string(t.ExitReason),
		t.StrategyTag, t.Confidence.String(),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveTrade: %s: %w", t.Symbol, err)
	}
	return nil
}

// Trades returns every closed trade in exit order.
func (s *SQLiteStorage) Trades(ctx context.Context) ([]domain.ClosedTrade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, position_id, symbol, tier, entry_price, exit_price, quantity,
		       entry_time, exit_time, pnl, pnl_pct, total_fees, exit_reason,
		       strategy_tag, confidence
		FROM trades
		ORDER BY exit_time, rowid`)
	if err != nil {
		return nil, fmt.Errorf("storage.Trades: query: %w", err)
	}
	defer rows.Close()

	var out []domain.ClosedTrade
	for rows.Next() {
		var (
			t                                    domain.ClosedTrade
			tier, entry, exit, qty, entryAt      string
			exitAt, pnl, pct, fees, reason, conf string
		)
		if err := rows.Scan(&t.ID, &t.PositionID, &t.Symbol, &tier, &entry, &exit, &qty,
			&entryAt, &exitAt, &pnl, &pct, &fees, &reason, &t.StrategyTag, &conf); err != nil {
			return nil, fmt.Errorf("storage.Trades: scan row: %w", err)
		}
		var d decoder
		t.Tier = d.tier(tier)
		t.EntryPrice = d.dec(entry)
		t.ExitPrice = d.dec(exit)
		t.Quantity = d.dec(qty)
		t.EntryTime = d.stamp(entryAt)
		t.ExitTime = d.stamp(exitAt)
		t.PnL = d.dec(pnl)
		t.PnLPct = d.dec(pct)
		t.TotalFees = d.dec(fees)
		t.Confidence = d.dec(conf)
		t.ExitReason = d.exitReason(reason)
		if d.err != nil {
			return nil, fmt.Errorf("storage.Trades: %s: %w", t.ID, d.err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
