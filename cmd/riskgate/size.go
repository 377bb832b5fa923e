package main

import (
	"errors"
	"fmt"

	"github.com/alejandrodnm/riskgate/internal/adapters/notify"
	"github.com/alejandrodnm/riskgate/internal/application/risk"
	"github.com/alejandrodnm/riskgate/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newSizeCmd(o *rootOptions) *cobra.Command {
	var (
		symbol, tier                string
		price, portfolio, winRate   string
		avgWin, avgLoss, confidence string
		trades                      int
	)
	cmd := &cobra.Command{
		Use:   "size",
		Short: "Compute a single position size from a strategy's edge",
		Example: `  riskgate size --symbol SOL --tier foundation --price 150 \
    --portfolio 10000 --win-rate 0.6 --avg-win 100 --avg-loss 50 --trades 40`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.load(cmd)
			if err != nil {
				return err
			}
			sc, err := cfg.SizerConfig()
			if err != nil {
				return err
			}
			t, err := domain.ParseTier(tier)
			if err != nil {
				return err
			}

			var p parser
			req := risk.SizingRequest{
				Symbol:         symbol,
				Tier:           t,
				PortfolioValue: p.dec("portfolio", portfolio),
				WinRate:        p.dec("win-rate", winRate),
				AvgWin:         p.dec("avg-win", avgWin),
				AvgLoss:        p.dec("avg-loss", avgLoss),
				Confidence:     p.dec("confidence", confidence),
				TradeCount:     trades,
			}
			entry := p.dec("price", price)
			if p.err != nil {
				return p.err
			}

			d, err := risk.NewPositionSizer(sc).Size(req, entry)
			if err != nil && !errors.Is(err, domain.ErrZeroQuantity) {
				return err
			}
			notify.NewConsoleWriter(cmd.OutOrStdout(), false).PrintSizing(d)
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "\n  no position: %v\n", err)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&symbol, "symbol", "", "asset symbol")
	f.StringVar(&tier, "tier", "foundation", "foundation|growth|opportunity")
	f.StringVar(&price, "price", "", "entry price")
	f.StringVar(&portfolio, "portfolio", "10000", "portfolio value")
	f.StringVar(&winRate, "win-rate", "", "historical win rate, 0..1")
	f.StringVar(&avgWin, "avg-win", "", "average winning trade")
	f.StringVar(&avgLoss, "avg-loss", "", "average losing trade, positive")
	f.StringVar(&confidence, "confidence", "1", "signal confidence, 0..1")
	f.IntVar(&trades, "trades", 0, "trades behind the statistics")
	cmd.MarkFlagRequired("symbol")
	cmd.MarkFlagRequired("price")
	cmd.MarkFlagRequired("win-rate")
	cmd.MarkFlagRequired("avg-win")
	cmd.MarkFlagRequired("avg-loss")
	return cmd
}

// parser keeps the first decimal flag error.
type parser struct{ err error }

func (p *parser) dec(flag, s string) decimal.Decimal {
	if p.err != nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		p.err = fmt.Errorf("--%s: %w", flag, err)
	}
	return d
}
