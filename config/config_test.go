package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alejandrodnm/riskgate/config"
	"github.com/alejandrodnm/riskgate/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := config.Parse([]byte("{}"))
	require.NoError(t, err)

	assert.Equal(t, 10000.0, cfg.Engine.InitialCapital)
	assert.Equal(t, 60*time.Second, cfg.Interval())
	assert.Equal(t, "STOP", cfg.Engine.StopFile)
	assert.Equal(t, "riskgate.db", cfg.Storage.DSN)
	assert.Equal(t, "signals.yaml", cfg.Signals.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Empty(t, cfg.Metrics.Addr)

	pc := cfg.PaperConfig()
	assert.True(t, pc.FeeRate.Equal(decimal.RequireFromString("0.001")))
	assert.True(t, pc.SlippageRate.Equal(decimal.RequireFromString("0.002")))
	assert.Zero(t, pc.MaxHoldingPeriod)
}

func TestParse_ExplicitZeroFriction(t *testing.T) {
	cfg, err := config.Parse([]byte("engine:\n  fee_rate: 0\n  slippage_rate: 0\n"))
	require.NoError(t, err)

	pc := cfg.PaperConfig()
	assert.True(t, pc.FeeRate.IsZero())
	assert.True(t, pc.SlippageRate.IsZero())
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("RISKGATE_DSN", ":memory:")
	t.Setenv("RISKGATE_QUOTES_URL", "http://quotes.local")
	t.Setenv("RISKGATE_METRICS_ADDR", ":9999")
	t.Setenv("RISKGATE_INITIAL_CAPITAL", "2500")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.Parse([]byte("storage:\n  dsn: other.db\nengine:\n  initial_capital: 100\n"))
	require.NoError(t, err)

	assert.Equal(t, ":memory:", cfg.Storage.DSN)
	assert.Equal(t, "http://quotes.local", cfg.QuotesClientConfig().BaseURL)
	assert.Equal(t, ":9999", cfg.Metrics.Addr)
	assert.Equal(t, 2500.0, cfg.Engine.InitialCapital)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestParse_BadCapitalEnv(t *testing.T) {
	t.Setenv("RISKGATE_INITIAL_CAPITAL", "lots")
	_, err := config.Parse([]byte("{}"))
	assert.Error(t, err)
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := config.Load("config.example.yaml")
	require.NoError(t, err)

	assert.Equal(t, []string{"BTC", "ETH", "SOL"}, cfg.Engine.Symbols)
	assert.Equal(t, 72*time.Hour, cfg.PaperConfig().MaxHoldingPeriod)

	sc, err := cfg.SizerConfig()
	require.NoError(t, err)
	assert.True(t, sc.TierStopPct[domain.TierOpportunity].Equal(decimal.RequireFromString("0.03")))
	assert.Equal(t, 20, sc.MinTrades)

	bc, err := cfg.BreakerConfig()
	require.NoError(t, err)
	assert.Equal(t, 3, bc.MaxAPIFailures)
	assert.Equal(t, "UTC", bc.Location.String())

	tc := cfg.TraderConfig()
	assert.Equal(t, time.Minute, tc.Interval)
	assert.Equal(t, "STOP", tc.StopFile)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestBuilders_RejectUnknownNames(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.yaml")

	require.NoError(t, os.WriteFile(path, []byte("sizing:\n  tiers:\n    moonshot: {ceiling: 0.5}\n"), 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	_, err = cfg.SizerConfig()
	assert.ErrorContains(t, err, "moonshot")

	cfg, err = config.Parse([]byte("breakers:\n  disabled: [daily_loss, gravity]\n"))
	require.NoError(t, err)
	_, err = cfg.BreakerConfig()
	assert.ErrorContains(t, err, "gravity")

	cfg, err = config.Parse([]byte("breakers:\n  timezone: Mars/Olympus\n"))
	require.NoError(t, err)
	_, err = cfg.BreakerConfig()
	assert.Error(t, err)
}

func TestBreakerConfig_Disabled(t *testing.T) {
	cfg, err := config.Parse([]byte("breakers:\n  disabled: [volatility, api_failure]\n  timezone: Local\n"))
	require.NoError(t, err)

	bc, err := cfg.BreakerConfig()
	require.NoError(t, err)
	assert.True(t, bc.Disabled[domain.BreakerVolatility])
	assert.True(t, bc.Disabled[domain.BreakerAPIFailure])
	assert.False(t, bc.Disabled[domain.BreakerDailyLoss])
	assert.Equal(t, "Local", bc.Location.String())
}
