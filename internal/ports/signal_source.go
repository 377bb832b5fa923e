package ports

import (
	"context"

	"github.com/alejandrodnm/riskgate/internal/domain"
)

// SignalSource supplies entry proposals from the trading-decision layer.
type SignalSource interface {
	// Proposals returns the proposals not yet handed out. Each proposal is
	// returned once.
	Proposals(ctx context.Context) ([]domain.Proposal, error)
}
