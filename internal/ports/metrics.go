package ports

import "github.com/alejandrodnm/riskgate/internal/domain"

// MetricsRecorder exports engine activity to a monitoring backend.
type MetricsRecorder interface {
	PositionOpened(p domain.Position)
	TradeClosed(t domain.ClosedTrade)
	EntryRejected(r domain.Rejection)
	QuoteFetch(ok bool, seconds float64)
	ObserveSnapshot(s domain.PortfolioSnapshot)
}
