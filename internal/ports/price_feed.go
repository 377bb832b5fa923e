package ports

import (
	"context"

	"github.com/alejandrodnm/riskgate/internal/domain"
)

// PriceFeed fetches the latest quotes for a set of symbols.
type PriceFeed interface {
	// FetchQuotes returns one quote per symbol it could price. Symbols the
	// upstream does not know are omitted, not errors.
	FetchQuotes(ctx context.Context, symbols []string) ([]domain.Quote, error)
}

// TickSource yields a recorded tick stream in timestamp order.
type TickSource interface {
	// Next returns io.EOF after the last tick.
	Next(ctx context.Context) (domain.Tick, error)
}
