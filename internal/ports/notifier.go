package ports

import (
	"context"

	"github.com/alejandrodnm/riskgate/internal/domain"
)

// Notifier presents account state to the operator.
type Notifier interface {
	// NotifyCycle shows the account after one trading cycle together with
	// the exits and rejections it produced.
	NotifyCycle(ctx context.Context, snap domain.PortfolioSnapshot, exits []domain.ClosedTrade, rejected []domain.Rejection) error

	// NotifyReport shows the performance summary and the most recent trades.
	NotifyReport(ctx context.Context, m domain.Metrics, recent []domain.ClosedTrade, breakers []domain.BreakerStatus) error
}
