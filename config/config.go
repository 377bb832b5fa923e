package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/riskgate/internal/adapters/quotes"
	"github.com/alejandrodnm/riskgate/internal/application/engine/paper"
	"github.com/alejandrodnm/riskgate/internal/application/risk"
	"github.com/alejandrodnm/riskgate/internal/application/trader"
	"github.com/alejandrodnm/riskgate/internal/domain"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the whole riskgate configuration.
type Config struct {
	Engine   EngineConfig   `yaml:"engine"`
	Sizing   SizingConfig   `yaml:"sizing"`
	Breakers BreakersConfig `yaml:"breakers"`
	Quotes   QuotesConfig   `yaml:"quotes"`
	Signals  SignalsConfig  `yaml:"signals"`
	Storage  StorageConfig  `yaml:"storage"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// EngineConfig controls the virtual account and the trading loop.
type EngineConfig struct {
	InitialCapital  float64  `yaml:"initial_capital"`
	FeeRate         *float64 `yaml:"fee_rate"`      // per side; unset means 0.001
	SlippageRate    *float64 `yaml:"slippage_rate"` // unset means 0.002
	MaxHoldingHours float64  `yaml:"max_holding_hours"`
	Symbols         []string `yaml:"symbols"`
	IntervalSeconds int      `yaml:"interval_seconds"`
	StopFile        string   `yaml:"stop_file"`
	RecentTrades    int      `yaml:"recent_trades"`
}

// SizingConfig mirrors risk.SizerConfig. Zero leaves the built-in default.
type SizingConfig struct {
	KellyMultiplier float64               `yaml:"kelly_multiplier"`
	HardCeiling     float64               `yaml:"hard_ceiling"`
	MinRiskReward   float64               `yaml:"min_risk_reward"`
	MinTrades       int                   `yaml:"min_trades"`
	LotSize         float64               `yaml:"lot_size"`
	Tiers           map[string]TierConfig `yaml:"tiers"`
}

// TierConfig holds the per-tier limits as fractions (0.05 = 5%).
type TierConfig struct {
	Ceiling    float64 `yaml:"ceiling"`
	StopPct    float64 `yaml:"stop_pct"`
	Allocation float64 `yaml:"allocation"`
}

// BreakersConfig mirrors risk.BreakerConfig. Percentages are in percent.
type BreakersConfig struct {
	DailyLossPct         float64  `yaml:"daily_loss_pct"`
	WeeklyLossPct        float64  `yaml:"weekly_loss_pct"`
	MaxDrawdownPct       float64  `yaml:"max_drawdown_pct"`
	VolatilityCeiling    float64  `yaml:"volatility_ceiling"`
	LiquidityFloor       float64  `yaml:"liquidity_floor"`
	MaxAPIFailures       int      `yaml:"max_api_failures"`
	MaxConsecutiveLosses int      `yaml:"max_consecutive_losses"`
	Disabled             []string `yaml:"disabled"`
	Timezone             string   `yaml:"timezone"` // IANA name for day/week boundaries
}

// QuotesConfig configures the HTTP price feed.
type QuotesConfig struct {
	BaseURL        string  `yaml:"base_url"`
	RatePerSec     float64 `yaml:"rate_per_sec"`
	Burst          int     `yaml:"burst"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	Workers        int     `yaml:"workers"` // concurrent batch requests
}

// SignalsConfig points at the proposals file.
type SignalsConfig struct {
	Path string `yaml:"path"`
}

// StorageConfig controls where the journal lives.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // SQLite file path, or ":memory:"
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // e.g. ":9108"; empty disables
}

// LogConfig controls log format and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML file at path and the .env file if present.
// Environment variables override the YAML.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML, then applies env overrides and defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	setDefaults(&cfg)
	return &cfg, nil
}

// Default is the configuration with no file at all.
func Default() *Config {
	var cfg Config
	setDefaults(&cfg)
	return &cfg
}

// applyEnvOverrides replaces values with environment variables when set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("RISKGATE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("RISKGATE_QUOTES_URL"); v != "" {
		cfg.Quotes.BaseURL = v
	}
	if v := os.Getenv("RISKGATE_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("RISKGATE_INITIAL_CAPITAL"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RISKGATE_INITIAL_CAPITAL: %w", err)
		}
		cfg.Engine.InitialCapital = f
	}
	return nil
}

// setDefaults fills values the loop needs. Risk limits are left at zero so
// that the risk package applies its own defaults.
func setDefaults(cfg *Config) {
	if cfg.Engine.InitialCapital <= 0 {
		cfg.Engine.InitialCapital = 10000
	}
	if cfg.Engine.FeeRate == nil {
		cfg.Engine.FeeRate = ptr(0.001)
	}
	if cfg.Engine.SlippageRate == nil {
		cfg.Engine.SlippageRate = ptr(0.002)
	}
	if cfg.Engine.IntervalSeconds <= 0 {
		cfg.Engine.IntervalSeconds = 60
	}
	if cfg.Engine.StopFile == "" {
		cfg.Engine.StopFile = "STOP"
	}
	if cfg.Engine.RecentTrades <= 0 {
		cfg.Engine.RecentTrades = 10
	}
	for i, s := range cfg.Engine.Symbols {
		cfg.Engine.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	if cfg.Quotes.RatePerSec <= 0 {
		cfg.Quotes.RatePerSec = 5
	}
	if cfg.Quotes.TimeoutSeconds <= 0 {
		cfg.Quotes.TimeoutSeconds = 10
	}
	if cfg.Signals.Path == "" {
		cfg.Signals.Path = "signals.yaml"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "riskgate.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// Interval returns the loop interval as a time.Duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Engine.IntervalSeconds) * time.Second
}

// PaperConfig converts the engine section. The clock is left to the caller.
func (c *Config) PaperConfig() paper.Config {
	return paper.Config{
		InitialCapital:   decimal.NewFromFloat(c.Engine.InitialCapital),
		FeeRate:          decimal.NewFromFloat(*c.Engine.FeeRate),
		SlippageRate:     decimal.NewFromFloat(*c.Engine.SlippageRate),
		MaxHoldingPeriod: time.Duration(c.Engine.MaxHoldingHours * float64(time.Hour)),
	}
}

// SizerConfig converts the sizing section.
func (c *Config) SizerConfig() (risk.SizerConfig, error) {
	s := c.Sizing
	out := risk.SizerConfig{
		KellyMultiplier: decimal.NewFromFloat(s.KellyMultiplier),
		HardCeiling:     decimal.NewFromFloat(s.HardCeiling),
		MinRiskReward:   decimal.NewFromFloat(s.MinRiskReward),
		MinTrades:       s.MinTrades,
		LotSize:         decimal.NewFromFloat(s.LotSize),
		TierCeiling:     make(map[domain.Tier]decimal.Decimal),
		TierStopPct:     make(map[domain.Tier]decimal.Decimal),
		TierAllocation:  make(map[domain.Tier]decimal.Decimal),
	}
	for name, tc := range s.Tiers {
		tier, err := domain.ParseTier(name)
		if err != nil {
			return risk.SizerConfig{}, fmt.Errorf("config.SizerConfig: %w", err)
		}
		out.TierCeiling[tier] = decimal.NewFromFloat(tc.Ceiling)
		out.TierStopPct[tier] = decimal.NewFromFloat(tc.StopPct)
		out.TierAllocation[tier] = decimal.NewFromFloat(tc.Allocation)
	}
	return out, nil
}

// BreakerConfig converts the breakers section.
func (c *Config) BreakerConfig() (risk.BreakerConfig, error) {
	b := c.Breakers
	out := risk.BreakerConfig{
		DailyLossPct:         decimal.NewFromFloat(b.DailyLossPct),
		WeeklyLossPct:        decimal.NewFromFloat(b.WeeklyLossPct),
		MaxDrawdownPct:       decimal.NewFromFloat(b.MaxDrawdownPct),
		VolatilityCeiling:    decimal.NewFromFloat(b.VolatilityCeiling),
		LiquidityFloor:       decimal.NewFromFloat(b.LiquidityFloor),
		MaxAPIFailures:       b.MaxAPIFailures,
		MaxConsecutiveLosses: b.MaxConsecutiveLosses,
		Disabled:             make(map[domain.BreakerKind]bool, len(b.Disabled)),
	}
	for _, name := range b.Disabled {
		k, err := domain.ParseBreakerKind(strings.TrimSpace(name))
		if err != nil {
			return risk.BreakerConfig{}, fmt.Errorf("config.BreakerConfig: %w", err)
		}
		out.Disabled[k] = true
	}
	if b.Timezone != "" {
		loc, err := time.LoadLocation(b.Timezone)
		if err != nil {
			return risk.BreakerConfig{}, fmt.Errorf("config.BreakerConfig: timezone: %w", err)
		}
		out.Location = loc
	}
	return out, nil
}

// QuotesClientConfig converts the quotes section.
func (c *Config) QuotesClientConfig() quotes.Config {
	return quotes.Config{
		BaseURL:    c.Quotes.BaseURL,
		RatePerSec: c.Quotes.RatePerSec,
		Burst:      c.Quotes.Burst,
		Timeout:    time.Duration(c.Quotes.TimeoutSeconds) * time.Second,
		Workers:    c.Quotes.Workers,
	}
}

// TraderConfig converts the loop settings.
func (c *Config) TraderConfig() trader.Config {
	return trader.Config{
		Symbols:      c.Engine.Symbols,
		Interval:     c.Interval(),
		StopFile:     c.Engine.StopFile,
		RecentTrades: c.Engine.RecentTrades,
	}
}

func ptr(f float64) *float64 { return &f }
