package metrics

import (
	"net/http"

	"github.com/alejandrodnm/riskgate/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

const namespace = "riskgate"

// Prometheus implements ports.MetricsRecorder on its own registry, so
// several instances can coexist in tests.
type Prometheus struct {
	registry *prometheus.Registry

	positionsOpened *prometheus.CounterVec
	tradesClosed    *prometheus.CounterVec
	tradePnL        *prometheus.HistogramVec
	rejections      *prometheus.CounterVec
	quoteFetches    *prometheus.CounterVec
	quoteLatency    prometheus.Histogram

	equity        prometheus.Gauge
	cash          prometheus.Gauge
	unrealized    prometheus.Gauge
	realized      prometheus.Gauge
	openPositions prometheus.Gauge
	breakerActive *prometheus.GaugeVec
}

// NewPrometheus creates the collectors and registers them together with the
// Go runtime and process collectors.
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		positionsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "positions_opened_total",
			Help:      "Positions opened by the paper engine.",
		}, []string{"tier"}),
		tradesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_closed_total",
			Help:      "Closed trades by exit reason and outcome.",
		}, []string{"reason", "outcome"}),
		tradePnL: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "trade_pnl_pct",
			Help:      "Realized PnL per trade, percent of cost basis.",
			Buckets:   []float64{-20, -10, -5, -2, -1, 0, 1, 2, 5, 10, 20, 50},
		}, []string{"tier"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_rejected_total",
			Help:      "Entry proposals the engine refused, by reason.",
		}, []string{"reason"}),
		quoteFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_fetches_total",
			Help:      "Price feed requests by result.",
		}, []string{"result"}),
		quoteLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quote_fetch_seconds",
			Help:      "Price feed request latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "equity",
			Help:      "Cash plus open positions at their last mark.",
		}),
		cash: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cash",
			Help:      "Uninvested cash.",
		}),
		unrealized: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unrealized_pnl",
			Help:      "Mark-to-market PnL of open positions.",
		}),
		realized: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realized_pnl",
			Help:      "Sum of closed trade PnL.",
		}),
		openPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_positions",
			Help:      "Number of open positions.",
		}),
		breakerActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_active",
			Help:      "1 while a circuit breaker blocks new entries.",
		}, []string{"breaker"}),
	}

	p.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.positionsOpened,
		p.tradesClosed,
		p.tradePnL,
		p.rejections,
		p.quoteFetches,
		p.quoteLatency,
		p.equity,
		p.cash,
		p.unrealized,
		p.realized,
		p.openPositions,
		p.breakerActive,
	)
	for _, k := range domain.BreakerKinds {
		p.breakerActive.WithLabelValues(k.String()).Set(0)
	}
	return p
}

// Registry exposes the registry, mainly for tests.
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

func (p *Prometheus) PositionOpened(pos domain.Position) {
	p.positionsOpened.WithLabelValues(string(pos.Tier)).Inc()
}

func (p *Prometheus) TradeClosed(t domain.ClosedTrade) {
	outcome := "loss"
	if t.Win() {
		outcome = "win"
	}
	p.tradesClosed.WithLabelValues(string(t.ExitReason), outcome).Inc()
	p.tradePnL.WithLabelValues(string(t.Tier)).Observe(toFloat(t.PnLPct))
}

func (p *Prometheus) EntryRejected(r domain.Rejection) {
	p.rejections.WithLabelValues(r.Reason).Inc()
}

func (p *Prometheus) QuoteFetch(ok bool, seconds float64) {
	result := "ok"
	if !ok {
		result = "error"
	}
	p.quoteFetches.WithLabelValues(result).Inc()
	p.quoteLatency.Observe(seconds)
}

func (p *Prometheus) ObserveSnapshot(s domain.PortfolioSnapshot) {
	p.equity.Set(toFloat(s.Equity))
	p.cash.Set(toFloat(s.Cash))
	p.unrealized.Set(toFloat(s.Unrealized))
	p.realized.Set(toFloat(s.Realized))
	p.openPositions.Set(float64(len(s.Positions)))
	for _, b := range s.Breakers {
		v := 0.0
		if b.Enabled && b.Active {
			v = 1
		}
		p.breakerActive.WithLabelValues(b.Kind.String()).Set(v)
	}
}

// toFloat converts for export only; the ledger itself never leaves decimal.
func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// Nop discards everything. Used when no metrics endpoint is configured.
type Nop struct{}

func (Nop) PositionOpened(domain.Position) {}
func (Nop) TradeClosed(domain.ClosedTrade) {}
func (Nop) EntryRejected(domain.Rejection) {}
func (Nop) QuoteFetch(bool, float64) {}
func (Nop) ObserveSnapshot(domain.PortfolioSnapshot) {}
