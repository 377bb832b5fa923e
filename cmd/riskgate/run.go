package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/riskgate/internal/adapters/metrics"
	"github.com/alejandrodnm/riskgate/internal/adapters/notify"
	"github.com/alejandrodnm/riskgate/internal/adapters/quotes"
	"github.com/alejandrodnm/riskgate/internal/adapters/signals"
	"github.com/alejandrodnm/riskgate/internal/adapters/storage"
	"github.com/alejandrodnm/riskgate/internal/application/trader"
	"github.com/alejandrodnm/riskgate/internal/ports"
	"github.com/spf13/cobra"
)

func newRunCmd(o *rootOptions) *cobra.Command {
	var compact bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the paper trading loop against the live quote feed",
		Long: `run restores the ledger from the journal, then every interval fetches
quotes, applies exits and submits pending proposals from the signals file.
It stops on SIGINT/SIGTERM or when the STOP file appears, printing a final
report.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.load(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
			if err != nil {
				return err
			}
			defer store.Close()

			feed, err := quotes.NewClient(cfg.QuotesClientConfig())
			if err != nil {
				return err
			}
			eng, err := buildEngine(cfg, nil)
			if err != nil {
				return err
			}

			var rec ports.MetricsRecorder = metrics.Nop{}
			if cfg.Metrics.Addr != "" {
				prom := metrics.NewPrometheus()
				rec = prom
				stop, err := serveMetrics(cfg.Metrics.Addr, prom.Handler())
				if err != nil {
					return err
				}
				defer stop()
			}

			t := trader.New(cfg.TraderConfig(), eng, trader.Deps{
				Feed:     feed,
				Signals:  signals.NewFile(cfg.Signals.Path, eng.Now),
				Journal:  store,
				Metrics:  rec,
				Notifier: notify.NewConsole(compact),
			})
			if err := t.Restore(ctx); err != nil {
				return err
			}

			slog.Info("riskgate starting",
				"dsn", cfg.Storage.DSN,
				"quotes", cfg.Quotes.BaseURL,
				"signals", cfg.Signals.Path,
				"capital", eng.Config().InitialCapital.String(),
			)
			if err := t.Run(ctx); err != nil {
				return err
			}
			slog.Info("riskgate stopped cleanly")
			return nil
		},
	}
	cmd.Flags().BoolVar(&compact, "compact", false, "one line per cycle instead of the positions table")
	return cmd
}

// serveMetrics exposes h on addr/metrics until the returned stop is called.
func serveMetrics(addr string, h http.Handler) (stop func(), err error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen %s: %w", addr, err)
	}
	slog.Info("metrics server listening", "addr", ln.Addr().String())
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("metrics server error", "err", err)
		}
	}()
	return func() { shutdown(srv, 5*time.Second) }, nil
}

// shutdown waits up to timeout for in-flight scrapes before giving up.
func shutdown(srv *http.Server, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Warn("metrics server shutdown", "err", err)
	}
}
