package quotes

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alejandrodnm/riskgate/internal/domain"
	"github.com/shopspring/decimal"
)

// CSVTicks replays a recorded price file. It implements ports.TickSource.
//
// Rows are `timestamp,symbol,price[,liquidity[,volatility]]` with RFC 3339
// timestamps. Consecutive rows sharing a timestamp form one tick. A first row
// whose timestamp column is literally "timestamp" is treated as a header.
type CSVTicks struct {
	r       *csv.Reader
	closer  io.Closer
	line    int
	pending *row
	last    time.Time
}

type row struct {
	at    time.Time
	quote domain.Quote
}

// OpenCSVTicks opens the tick file at path.
func OpenCSVTicks(path string) (*CSVTicks, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("quotes.OpenCSVTicks: %w", err)
	}
	t := NewCSVTicks(f)
	t.closer = f
	return t, nil
}

// NewCSVTicks reads ticks from r.
func NewCSVTicks(r io.Reader) *CSVTicks {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'
	return &CSVTicks{r: cr}
}

// Close closes the underlying file, if any.
func (t *CSVTicks) Close() error {
	if t.closer == nil {
		return nil
	}
	return t.closer.Close()
}

// Next returns the next tick, or io.EOF after the last one. Timestamps must
// not go backwards.
func (t *CSVTicks) Next(ctx context.Context) (domain.Tick, error) {
	if err := ctx.Err(); err != nil {
		return domain.Tick{}, err
	}

	first := t.pending
	t.pending = nil
	if first == nil {
		r, err := t.read()
		if err != nil {
			return domain.Tick{}, err
		}
		first = r
	}
	if !t.last.IsZero() && first.at.Before(t.last) {
		return domain.Tick{}, fmt.Errorf("quotes.CSVTicks: line %d: timestamp %s before %s",
			t.line, first.at.Format(time.RFC3339), t.last.Format(time.RFC3339))
	}
	t.last = first.at

	tick := domain.Tick{At: first.at, Quotes: []domain.Quote{first.quote}}
	for {
		r, err := t.read()
		if errors.Is(err, io.EOF) {
			return tick, nil
		}
		if err != nil {
			return domain.Tick{}, err
		}
		if !r.at.Equal(tick.At) {
			t.pending = r
			return tick, nil
		}
		tick.Quotes = append(tick.Quotes, r.quote)
	}
}

func (t *CSVTicks) read() (*row, error) {
	for {
		rec, err := t.r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("quotes.CSVTicks: %w", err)
		}
		t.line++
		if t.line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "timestamp") {
			continue
		}
		r, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("quotes.CSVTicks: line %d: %w", t.line, err)
		}
		return r, nil
	}
}

func parseRow(rec []string) (*row, error) {
	if len(rec) < 3 {
		return nil, fmt.Errorf("want at least 3 columns, got %d", len(rec))
	}
	at, err := time.Parse(time.RFC3339, strings.TrimSpace(rec[0]))
	if err != nil {
		return nil, fmt.Errorf("timestamp: %w", err)
	}
	symbol := strings.ToUpper(strings.TrimSpace(rec[1]))
	if symbol == "" {
		return nil, fmt.Errorf("empty symbol")
	}
	price, err := decimal.NewFromString(strings.TrimSpace(rec[2]))
	if err != nil {
		return nil, fmt.Errorf("price: %w", err)
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("price %s must be positive", price)
	}
	q := domain.Quote{Symbol: symbol, Price: price}
	if q.Liquidity, err = optionalColumn(rec, 3); err != nil {
		return nil, fmt.Errorf("liquidity: %w", err)
	}
	if q.Volatility, err = optionalColumn(rec, 4); err != nil {
		return nil, fmt.Errorf("volatility: %w", err)
	}
	return &row{at: at.UTC(), quote: q}, nil
}

func optionalColumn(rec []string, i int) (decimal.NullDecimal, error) {
	if i >= len(rec) || strings.TrimSpace(rec[i]) == "" {
		return decimal.NullDecimal{}, nil
	}
	v, err := decimal.NewFromString(strings.TrimSpace(rec[i]))
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(v), nil
}
