package storage

// sqlite.go: trade journal on SQLite (pure Go, no CGo).
//
// Layout:
//   - `positions`: open positions, one row per position, deleted on close.
//   - `trades`: closed trades, append-only.
//   - `breaker_events`: trip/clear transitions, keyed by the bank's sequence.
//   - `rejections`: refused entries with their reason label.
//   - `equity`: periodic account samples, pruned after retentionEquity.
//
// Money, prices and quantities are stored as decimal TEXT so that a restored
// ledger reconciles to the cent. Times are fixed-width UTC.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/riskgate/internal/domain"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS positions (
    id           TEXT PRIMARY KEY,
    symbol       TEXT NOT NULL UNIQUE,
    tier         TEXT NOT NULL,
    entry_price  TEXT NOT NULL,
    quantity     TEXT NOT NULL,
    entry_time   TEXT NOT NULL,
    stop_loss    TEXT,
    take_profit  TEXT,
    entry_fees   TEXT NOT NULL,
    strategy_tag TEXT NOT NULL DEFAULT '',
    confidence   TEXT NOT NULL DEFAULT '0'
);

CREATE TABLE IF NOT EXISTS trades (
    id           TEXT PRIMARY KEY,
    position_id  TEXT NOT NULL,
    symbol       TEXT NOT NULL,
    tier         TEXT NOT NULL,
    entry_price  TEXT NOT NULL,
    exit_price   TEXT NOT NULL,
    quantity     TEXT NOT NULL,
    entry_time   TEXT NOT NULL,
    exit_time    TEXT NOT NULL,
    pnl          TEXT NOT NULL,
    pnl_pct      TEXT NOT NULL,
    total_fees   TEXT NOT NULL,
    exit_reason  TEXT NOT NULL,
    strategy_tag TEXT NOT NULL DEFAULT '',
    confidence   TEXT NOT NULL DEFAULT '0'
);

CREATE TABLE IF NOT EXISTS breaker_events (
    seq        INTEGER NOT NULL,
    kind       TEXT NOT NULL,
    symbol     TEXT NOT NULL DEFAULT '',
    tripped    INTEGER NOT NULL,
    threshold  TEXT NOT NULL,
    actual     TEXT NOT NULL,
    message    TEXT NOT NULL DEFAULT '',
    at         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS rejections (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    at        TEXT NOT NULL,
    symbol    TEXT NOT NULL,
    tier      TEXT NOT NULL,
    reason    TEXT NOT NULL,
    breakers  TEXT NOT NULL DEFAULT '',
    detail    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS equity (
    at              TEXT PRIMARY KEY,
    cash            TEXT NOT NULL,
    equity          TEXT NOT NULL,
    open_positions  INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_trades_exit     ON trades(exit_time);
CREATE INDEX IF NOT EXISTS idx_events_at       ON breaker_events(at);
CREATE INDEX IF NOT EXISTS idx_rejections_at   ON rejections(at);
`

const (
	retentionEquity = 90 * 24 * time.Hour
	// fixed width so that TEXT comparison orders chronologically
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// SQLiteStorage implements ports.TradeJournal.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (or creates) the database at path and applies the schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single writer
	db.SetMaxIdleConns(1)

	s := &SQLiteStorage{db: db}
	if err := s.ApplySchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: %w", err)
	}
	s.pruneOld(context.Background())
	return s, nil
}

// ApplySchema creates the journal tables if they don't exist.
func (s *SQLiteStorage) ApplySchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("storage.ApplySchema: %w", err)
	}
	// Columns added after the first release; errors mean they already exist.
	for _, stmt := range []string{
		"ALTER TABLE trades ADD COLUMN confidence TEXT NOT NULL DEFAULT '0'",
		"ALTER TABLE positions ADD COLUMN confidence TEXT NOT NULL DEFAULT '0'",
	} {
		s.db.ExecContext(ctx, stmt)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// pruneOld drops equity samples past retention. Trades and events are kept.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := formatTime(time.Now().Add(-retentionEquity))
	s.db.ExecContext(ctx, `DELETE FROM equity WHERE at < ?`, cutoff)
}

// --- encoding helpers ---

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func nullDecimal(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func parseNullDecimal(s sql.NullString) (decimal.NullDecimal, error) {
	if !s.Valid || s.String == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

// decoder collects the first parse error across a row's columns.
type decoder struct{ err error }

func (d *decoder) dec(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("decimal %q: %w", s, err)
	}
	return v
}

func (d *decoder) stamp(s string) time.Time {
	t, err := parseTime(s)
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("time %q: %w", s, err)
	}
	return t
}

func (d *decoder) nullDec(s sql.NullString) decimal.NullDecimal {
	v, err := parseNullDecimal(s)
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("decimal %q: %w", s.String, err)
	}
	return v
}

func (d *decoder) tier(s string) domain.Tier {
	t, err := domain.ParseTier(s)
	if err != nil && d.err == nil {
		d.err = err
	}
	return t
}

func (d *decoder) exitReason(s string) domain.ExitReason {
	r, err := domain.ParseExitReason(s)
	if err != nil && d.err == nil {
		d.err = err
	}
	return r
}
