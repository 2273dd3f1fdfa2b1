// Package infra holds the ambient plumbing of the application: yaml
// configuration with environment overrides, structured logging, and
// filesystem paths.
package infra

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"backtest_go/internal/cost"
	"backtest_go/internal/engine"
	"backtest_go/internal/strategy"
	"backtest_go/pkg/quant"
)

// Config holds the full application configuration for one backtest run.
// Loaded from yaml, then overridden by environment variables, then
// validated.
type Config struct {
	Run struct {
		Symbols      []string `yaml:"symbols"`
		Interval     string   `yaml:"interval"`
		Start        string   `yaml:"start"` // RFC3339
		End          string   `yaml:"end"`   // RFC3339
		InitialCash  float64  `yaml:"initial_cash"`
		MaxPositions int      `yaml:"max_positions"`
		AllowShort   bool     `yaml:"allow_short"`
	} `yaml:"run"`

	Cost struct {
		Preset string `yaml:"preset"`
	} `yaml:"cost"`

	Sizing struct {
		Policy       string  `yaml:"policy"` // fixed | percent | kelly
		FixedAmount  float64 `yaml:"fixed_amount"`
		Percent      float64 `yaml:"percent"`
		WinRate      float64 `yaml:"win_rate"`
		WinLossRatio float64 `yaml:"win_loss_ratio"`
	} `yaml:"sizing"`

	Strategy struct {
		Name   string            `yaml:"name"`
		Symbol string            `yaml:"symbol"`
		Params map[string]string `yaml:"params"`
	} `yaml:"strategy"`

	Data struct {
		Backend    string `yaml:"backend"` // sqlite | parquet
		SQLitePath string `yaml:"sqlite_path"`
		ParquetDir string `yaml:"parquet_dir"`
	} `yaml:"data"`

	Report struct {
		Dir string `yaml:"dir"`
	} `yaml:"report"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the config file, applies env overrides and
// defaults, and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// overrideWithEnv lets the environment win over the config file for the
// values that change between machines and CI runs.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("BACKTEST_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BACKTEST_SQLITE_PATH"); v != "" {
		cfg.Data.SQLitePath = v
	}
	if v := os.Getenv("BACKTEST_PARQUET_DIR"); v != "" {
		cfg.Data.ParquetDir = v
	}
	if v := os.Getenv("BACKTEST_REPORT_DIR"); v != "" {
		cfg.Report.Dir = v
	}
	if v := os.Getenv("BACKTEST_STRATEGY"); v != "" {
		cfg.Strategy.Name = v
	}
}

func (c *Config) applyDefaults() {
	ws := GetWorkspaceDir()
	if c.Run.Interval == "" {
		c.Run.Interval = "1m"
	}
	if c.Cost.Preset == "" {
		c.Cost.Preset = "crypto_spot"
	}
	if c.Sizing.Policy == "" {
		c.Sizing.Policy = "percent"
	}
	if c.Sizing.Policy == "percent" && c.Sizing.Percent == 0 {
		c.Sizing.Percent = 10
	}
	if c.Data.Backend == "" {
		c.Data.Backend = "sqlite"
	}
	if c.Data.SQLitePath == "" {
		c.Data.SQLitePath = filepath.Join(ws, "candles.db")
	}
	if c.Data.ParquetDir == "" {
		c.Data.ParquetDir = filepath.Join(ws, "parquet")
	}
	if c.Report.Dir == "" {
		c.Report.Dir = filepath.Join(ws, "reports")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if len(c.Run.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	if c.Run.InitialCash <= 0 {
		return fmt.Errorf("initial cash must be positive, got %v", c.Run.InitialCash)
	}
	start, err := time.Parse(time.RFC3339, c.Run.Start)
	if err != nil {
		return fmt.Errorf("invalid start time %q: %w", c.Run.Start, err)
	}
	end, err := time.Parse(time.RFC3339, c.Run.End)
	if err != nil {
		return fmt.Errorf("invalid end time %q: %w", c.Run.End, err)
	}
	if !start.Before(end) {
		return fmt.Errorf("start %s must precede end %s", c.Run.Start, c.Run.End)
	}
	if _, err := cost.Preset(c.Cost.Preset); err != nil {
		return err
	}
	switch c.Sizing.Policy {
	case "fixed":
		if c.Sizing.FixedAmount <= 0 {
			return fmt.Errorf("fixed sizing needs a positive fixed_amount")
		}
	case "percent":
		if c.Sizing.Percent <= 0 || c.Sizing.Percent > 100 {
			return fmt.Errorf("percent sizing needs percent in (0, 100], got %v", c.Sizing.Percent)
		}
	case "kelly":
		if c.Sizing.WinRate < 0 || c.Sizing.WinRate > 1 || c.Sizing.WinLossRatio <= 0 {
			return fmt.Errorf("kelly sizing needs win_rate in [0, 1] and a positive win_loss_ratio")
		}
	default:
		return fmt.Errorf("unknown sizing policy %q", c.Sizing.Policy)
	}
	if c.Strategy.Name == "" {
		return fmt.Errorf("strategy name is required")
	}
	switch c.Data.Backend {
	case "sqlite", "parquet":
	default:
		return fmt.Errorf("unknown data backend %q", c.Data.Backend)
	}
	return nil
}

// ToEngineConfig translates the application config into the engine's run
// config. Call only after Validate.
func (c *Config) ToEngineConfig(logger *slog.Logger) (engine.Config, error) {
	start, err := time.Parse(time.RFC3339, c.Run.Start)
	if err != nil {
		return engine.Config{}, fmt.Errorf("invalid start time: %w", err)
	}
	end, err := time.Parse(time.RFC3339, c.Run.End)
	if err != nil {
		return engine.Config{}, fmt.Errorf("invalid end time: %w", err)
	}
	model, err := cost.Preset(c.Cost.Preset)
	if err != nil {
		return engine.Config{}, err
	}

	var sizer engine.Sizer
	switch c.Sizing.Policy {
	case "fixed":
		sizer = engine.FixedSizer{AmountMicros: quant.ToPriceMicros(c.Sizing.FixedAmount)}
	case "percent":
		sizer = engine.PercentSizer{Percent: c.Sizing.Percent}
	case "kelly":
		sizer = engine.KellySizer{WinRate: c.Sizing.WinRate, WinLossRatio: c.Sizing.WinLossRatio}
	default:
		return engine.Config{}, fmt.Errorf("unknown sizing policy %q", c.Sizing.Policy)
	}

	return engine.Config{
		InitialCashMicros: quant.ToPriceMicros(c.Run.InitialCash),
		Symbols:           c.Run.Symbols,
		Interval:          c.Run.Interval,
		Start:             quant.TSFromTime(start),
		End:               quant.TSFromTime(end),
		CostModel:         model,
		MaxPositions:      c.Run.MaxPositions,
		AllowShort:        c.Run.AllowShort,
		Sizer:             sizer,
		Strategy: strategy.Config{
			Symbol:   c.Strategy.Symbol,
			Interval: c.Run.Interval,
			Params:   c.Strategy.Params,
		},
		Logger: logger,
	}, nil
}
