// Command riskgate runs a risk-gated paper trading engine.
package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/alejandrodnm/riskgate/config"
	"github.com/alejandrodnm/riskgate/internal/application/engine"
	"github.com/alejandrodnm/riskgate/internal/application/engine/paper"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	verbose    bool
	format     string
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "riskgate",
		Short: "Paper trading engine with Kelly sizing and circuit breakers",
		Long: `riskgate simulates trading a virtual account. Every entry is sized with
fractional Kelly under per-tier caps and must pass a bank of circuit
breakers (daily/weekly loss, drawdown, volatility, liquidity, API failures
and consecutive losses). Exits happen on stop-loss, take-profit or timeout.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&o.configPath, "config", "config/config.yaml", "path to config file")
	cmd.PersistentFlags().BoolVar(&o.verbose, "verbose", false, "set log level to debug")
	cmd.PersistentFlags().StringVar(&o.format, "format", "", "log format: text|json (overrides config)")

	cmd.AddCommand(
		newRunCmd(o),
		newReplayCmd(o),
		newReportCmd(o),
		newSizeCmd(o),
		newExportCmd(o),
	)
	return cmd
}

// load reads the config and sets up logging. A missing default config file
// falls back to built-in defaults; an explicit --config must exist.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		cfg, err = config.Parse(nil)
	}
	if err != nil {
		return nil, err
	}
	if o.verbose {
		cfg.Log.Level = "debug"
	}
	if o.format != "" {
		cfg.Log.Format = o.format
	}
	setupLogger(cfg.Log)
	return cfg, nil
}

// buildEngine creates the paper engine. A nil clock means wall time.
func buildEngine(cfg *config.Config, clock engine.Clock) (*paper.Engine, error) {
	sizing, err := cfg.SizerConfig()
	if err != nil {
		return nil, err
	}
	breakers, err := cfg.BreakerConfig()
	if err != nil {
		return nil, err
	}
	pc := cfg.PaperConfig()
	pc.Clock = clock
	return paper.New(pc, sizing, breakers)
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
