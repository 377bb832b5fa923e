package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/riskgate/internal/adapters/report"
	"github.com/alejandrodnm/riskgate/internal/adapters/storage"
	"github.com/alejandrodnm/riskgate/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newExportCmd(o *rootOptions) *cobra.Command {
	var (
		out   string
		since string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the journal's trades, equity curve and breaker events to an .xlsx file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.load(cmd)
			if err != nil {
				return err
			}
			var from time.Time
			if since != "" {
				if from, err = time.Parse(time.RFC3339, since); err != nil {
					return fmt.Errorf("--since: %w", err)
				}
			}
			ctx := cmd.Context()

			store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
			if err != nil {
				return err
			}
			defer store.Close()

			all, err := store.Trades(ctx)
			if err != nil {
				return err
			}
			var trades []domain.ClosedTrade
			for _, t := range all {
				if !t.ExitTime.Before(from) {
					trades = append(trades, t)
				}
			}
			now := time.Now()
			equity, err := store.EquityCurve(ctx, from, now)
			if err != nil {
				return err
			}
			events, err := store.BreakerEvents(ctx, from)
			if err != nil {
				return err
			}

			j := report.Journal{Trades: trades, Equity: equity, Events: events}
			m, err := domain.ComputeMetrics(trades, decimal.NewFromFloat(cfg.Engine.InitialCapital), firstEntry(trades), now)
			switch {
			case err == nil:
				j.Metrics, j.HasStats = m, true
			case !errors.Is(err, domain.ErrNoClosedTrades):
				return err
			}

			wb, err := report.NewWorkbook(j)
			if err != nil {
				return err
			}
			defer wb.Close()
			if err := wb.SaveAs(out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %d trades, %d equity points, %d breaker events\n",
				out, len(trades), len(equity), len(events))
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "riskgate.xlsx", "output file")
	cmd.Flags().StringVar(&since, "since", "", "only export from this RFC3339 time on")
	return cmd
}

func firstEntry(trades []domain.ClosedTrade) time.Time {
	var first time.Time
	for _, t := range trades {
		if first.IsZero() || t.EntryTime.Before(first) {
			first = t.EntryTime
		}
	}
	return first
}
