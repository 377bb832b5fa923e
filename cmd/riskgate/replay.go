package main

import (
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/riskgate/internal/adapters/notify"
	"github.com/alejandrodnm/riskgate/internal/adapters/quotes"
	"github.com/alejandrodnm/riskgate/internal/adapters/signals"
	"github.com/alejandrodnm/riskgate/internal/adapters/storage"
	"github.com/alejandrodnm/riskgate/internal/application/engine"
	"github.com/alejandrodnm/riskgate/internal/application/trader"
	"github.com/spf13/cobra"
)

func newReplayCmd(o *rootOptions) *cobra.Command {
	var (
		ticksPath   string
		signalsPath string
		journalDSN  string
		cycles      bool
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a CSV tick file and a signals file through the engine",
		Long: `replay drives a fresh engine from recorded ticks
(timestamp,symbol,price[,liquidity[,volatility]]). Time follows the
recording, so holding periods and daily/weekly breakers behave as they would
have live. Proposals in the signals file may carry an "at" timestamp to be
released mid-replay.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.load(cmd)
			if err != nil {
				return err
			}
			if ticksPath == "" {
				return errors.New("--ticks is required")
			}
			if signalsPath == "" {
				signalsPath = cfg.Signals.Path
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			src, err := quotes.OpenCSVTicks(ticksPath)
			if err != nil {
				return err
			}
			defer src.Close()

			first, err := src.Next(ctx)
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%s has no ticks", ticksPath)
			}
			if err != nil {
				return err
			}
			clock := engine.NewManualClock(first.At)

			eng, err := buildEngine(cfg, clock.Now)
			if err != nil {
				return err
			}
			deps := trader.Deps{
				Signals:  signals.NewFile(signalsPath, clock.Now),
				Notifier: notify.NewConsole(true),
			}
			if journalDSN != "" {
				store, err := storage.NewSQLiteStorage(journalDSN)
				if err != nil {
					return err
				}
				defer store.Close()
				deps.Journal = store
			}

			t := trader.New(cfg.TraderConfig(), eng, deps)
			res, err := t.Replay(ctx, trader.Prepend(first, src), clock, cycles)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "replayed %d ticks: %d opened, %d closed, %d rejected\n",
				res.Ticks, res.Opened, res.Exits, res.Rejected)
			return t.Report(ctx)
		},
	}
	cmd.Flags().StringVar(&ticksPath, "ticks", "", "CSV tick file (required)")
	cmd.Flags().StringVar(&signalsPath, "signals", "", "signals file (default from config)")
	cmd.Flags().StringVar(&journalDSN, "journal", "", "SQLite file to journal the replay into (default none)")
	cmd.Flags().BoolVar(&cycles, "cycles", false, "print every tick as a cycle line")
	return cmd
}
