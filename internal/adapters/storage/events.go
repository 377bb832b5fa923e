package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alejandrodnm/riskgate/internal/domain"
)

// SaveBreakerEvents appends breaker transitions in one transaction.
func (s *SQLiteStorage) SaveBreakerEvents(ctx context.Context, events []domain.BreakerEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveBreakerEvents: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO breaker_events (seq, kind, symbol, tripped, threshold, actual, message, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage.SaveBreakerEvents: prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		tripped := 0
		if e.Tripped {
			tripped = 1
		}
		if _, err := stmt.ExecContext(ctx, e.Seq, e.Kind.String(), e.Symbol, tripped,
			e.Threshold.String(), e.Actual.String(), e.Message, formatTime(e.At)); err != nil {
			return fmt.Errorf("storage.SaveBreakerEvents: insert %s: %w", e.Kind, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveBreakerEvents: commit: %w", err)
	}
	return nil
}

// BreakerEvents returns transitions at or after since, oldest first.
func (s *SQLiteStorage) BreakerEvents(ctx context.Context, since time.Time) ([]domain.BreakerEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, kind, symbol, tripped, threshold, actual, message, at
		FROM breaker_events
		WHERE at >= ?
		ORDER BY at, rowid`, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("storage.BreakerEvents: query: %w", err)
	}
	defer rows.Close()

	var out []domain.BreakerEvent
	for rows.Next() {
		var (
			e                           domain.BreakerEvent
			kind, threshold, actual, at string
			tripped                     int
		)
		if err := rows.Scan(&e.Seq, &kind, &e.Symbol, &tripped, &threshold, &actual, &e.Message, &at); err != nil {
			return nil, fmt.Errorf("storage.BreakerEvents: scan row: %w", err)
		}
		k, err := domain.ParseBreakerKind(kind)
		if err != nil {
			return nil, fmt.Errorf("storage.BreakerEvents: %w", err)
		}
		var d decoder
		e.Kind = k
		e.Tripped = tripped == 1
		e.Threshold = d.dec(threshold)
		e.Actual = d.dec(actual)
		e.At = d.stamp(at)
		if d.err != nil {
			return nil, fmt.Errorf("storage.BreakerEvents: %w", d.err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveRejection records a refused entry.
func (s *SQLiteStorage) SaveRejection(ctx context.Context, r domain.Rejection) error {
	names := make([]string, len(r.Breakers))
	for i, k := range r.Breakers {
		names[i] = k.String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rejections (at, symbol, tier, reason, breakers, detail)
		VALUES (?, ?, ?, ?, ?, ?)`,
		formatTime(r.At), r.Symbol, string(r.Tier), r.Reason, strings.Join(names, ","), r.Detail,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveRejection: %w", err)
	}
	return nil
}

// Rejections returns refused entries at or after since, oldest first.
func (s *SQLiteStorage) Rejections(ctx context.Context, since time.Time) ([]domain.Rejection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT at, symbol, tier, reason, breakers, detail
		FROM rejections
		WHERE at >= ?
		ORDER BY id`, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("storage.Rejections: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Rejection
	for rows.Next() {
		var r domain.Rejection
		var at, tier, breakers string
		if err := rows.Scan(&at, &r.Symbol, &tier, &r.Reason, &breakers, &r.Detail); err != nil {
			return nil, fmt.Errorf("storage.Rejections: scan row: %w", err)
		}
		t, err := parseTime(at)
		if err != nil {
			return nil, fmt.Errorf("storage.Rejections: %w", err)
		}
		r.At = t
		r.Tier = domain.Tier(tier)
		if breakers != "" {
			for _, name := range strings.Split(breakers, ",") {
				k, err := domain.ParseBreakerKind(name)
				if err != nil {
					return nil, fmt.Errorf("storage.Rejections: %w", err)
				}
				r.Breakers = append(r.Breakers, k)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveEquity records one account sample. A second sample at the same
// instant replaces the first.
func (s *SQLiteStorage) SaveEquity(ctx context.Context, p domain.EquityPoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO equity (at, cash, equity, open_positions) VALUES (?, ?, ?, ?)
		ON CONFLICT(at) DO UPDATE SET
			cash           = excluded.cash,
			equity         = excluded.equity,
			open_positions = excluded.open_positions`,
		formatTime(p.At), p.Cash.String(), p.Equity.String(), p.OpenPositions,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveEquity: %w", err)
	}
	return nil
}

// EquityCurve returns samples in [from, to], oldest first.
func (s *SQLiteStorage) EquityCurve(ctx context.Context, from, to time.Time) ([]domain.EquityPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT at, cash, equity, open_positions
		FROM equity
		WHERE at BETWEEN ? AND ?
		ORDER BY at`, formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("storage.EquityCurve: query: %w", err)
	}
	defer rows.Close()

	var out []domain.EquityPoint
	for rows.Next() {
		var p domain.EquityPoint
		var at, cash, equity string
		if err := rows.Scan(&at, &cash, &equity, &p.OpenPositions); err != nil {
			return nil, fmt.Errorf("storage.EquityCurve: scan row: %w", err)
		}
		var d decoder
		p.At = d.stamp(at)
		p.Cash = d.dec(cash)
		p.Equity = d.dec(equity)
		if d.err != nil {
			return nil, fmt.Errorf("storage.EquityCurve: %w", d.err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
