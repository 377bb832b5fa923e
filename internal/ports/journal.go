package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/riskgate/internal/domain"
)

// TradeJournal persists the ledger's outputs. The engine never calls it;
// the runner writes what the engine returns.
type TradeJournal interface {
	ApplySchema(ctx context.Context) error

	SavePosition(ctx context.Context, p domain.Position) error
	DeletePosition(ctx context.Context, positionID string) error
	OpenPositions(ctx context.Context) ([]domain.Position, error)

	SaveTrade(ctx context.Context, t domain.ClosedTrade) error
	Trades(ctx context.Context) ([]domain.ClosedTrade, error)

	SaveBreakerEvents(ctx context.Context, events []domain.BreakerEvent) error
	BreakerEvents(ctx context.Context, since time.Time) ([]domain.BreakerEvent, error)

	SaveRejection(ctx context.Context, r domain.Rejection) error
	Rejections(ctx context.Context, since time.Time) ([]domain.Rejection, error)

	SaveEquity(ctx context.Context, p domain.EquityPoint) error
	EquityCurve(ctx context.Context, from, to time.Time) ([]domain.EquityPoint, error)
}
