package main

import (
	"github.com/alejandrodnm/riskgate/internal/adapters/notify"
	"github.com/alejandrodnm/riskgate/internal/adapters/storage"
	"github.com/alejandrodnm/riskgate/internal/application/trader"
	"github.com/spf13/cobra"
)

func newReportCmd(o *rootOptions) *cobra.Command {
	var recent int
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Rebuild the ledger from the journal and print the performance report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.load(cmd)
			if err != nil {
				return err
			}
			store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
			if err != nil {
				return err
			}
			defer store.Close()

			eng, err := buildEngine(cfg, nil)
			if err != nil {
				return err
			}
			tc := cfg.TraderConfig()
			if recent > 0 {
				tc.RecentTrades = recent
			}
			t := trader.New(tc, eng, trader.Deps{
				Journal:  store,
				Notifier: notify.NewConsoleWriter(cmd.OutOrStdout(), false),
			})
			if err := t.Restore(cmd.Context()); err != nil {
				return err
			}
			return t.Report(cmd.Context())
		},
	}
	cmd.Flags().IntVar(&recent, "recent", 0, "recent trades to list (default from config)")
	return cmd
}
