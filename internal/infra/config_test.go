package infra

import (
	"os"
	"path/filepath"
	"testing"

	"backtest_go/internal/engine"
	"backtest_go/pkg/quant"
)

const validYaml = `
run:
  symbols: ["BTCUSDT"]
  interval: "1m"
  start: "2025-01-01T00:00:00Z"
  end: "2025-02-01T00:00:00Z"
  initial_cash: 100000
  max_positions: 3
cost:
  preset: "zero"
sizing:
  policy: "percent"
  percent: 10
strategy:
  name: "sma_cross"
  params:
    short_period: "5"
    long_period: "20"
data:
  backend: "sqlite"
logging:
  level: "debug"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backtest.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validYaml))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Run.Symbols[0] != "BTCUSDT" || cfg.Run.MaxPositions != 3 {
		t.Errorf("run = %+v", cfg.Run)
	}
	if cfg.Strategy.Params["short_period"] != "5" {
		t.Errorf("params = %v", cfg.Strategy.Params)
	}
	// Defaults filled for omitted values.
	if cfg.Report.Dir == "" || cfg.Data.SQLitePath == "" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("BACKTEST_LOG_LEVEL", "error")
	t.Setenv("BACKTEST_STRATEGY", "momentum")

	cfg, err := LoadConfig(writeConfig(t, validYaml))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("level = %q, want env override", cfg.Logging.Level)
	}
	if cfg.Strategy.Name != "momentum" {
		t.Errorf("strategy = %q, want env override", cfg.Strategy.Name)
	}
}

func TestConfig_ValidateFailures(t *testing.T) {
	mutations := map[string]func(*Config){
		"NoSymbols":      func(c *Config) { c.Run.Symbols = nil },
		"ZeroCash":       func(c *Config) { c.Run.InitialCash = 0 },
		"BadStart":       func(c *Config) { c.Run.Start = "yesterday" },
		"WindowInverted": func(c *Config) { c.Run.Start, c.Run.End = c.Run.End, c.Run.Start },
		"UnknownPreset":  func(c *Config) { c.Cost.Preset = "free_money" },
		"UnknownSizing":  func(c *Config) { c.Sizing.Policy = "martingale" },
		"NoFixedAmount":  func(c *Config) { c.Sizing.Policy = "fixed"; c.Sizing.FixedAmount = 0 },
		"NoStrategy":     func(c *Config) { c.Strategy.Name = "" },
		"UnknownBackend": func(c *Config) { c.Data.Backend = "csv" },
		"BadPercent":     func(c *Config) { c.Sizing.Percent = 150 },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			cfg, err := LoadConfig(writeConfig(t, validYaml))
			if err != nil {
				t.Fatalf("LoadConfig: %v", err)
			}
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestConfig_ToEngineConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validYaml))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	ec, err := cfg.ToEngineConfig(NewLogger("info"))
	if err != nil {
		t.Fatalf("ToEngineConfig: %v", err)
	}

	if ec.InitialCashMicros != quant.ToPriceMicros(100_000) {
		t.Errorf("initial cash = %d", ec.InitialCashMicros)
	}
	if ec.Start >= ec.End {
		t.Errorf("window = %d..%d", ec.Start, ec.End)
	}
	if ec.CostModel.Name != "zero" {
		t.Errorf("cost model = %q", ec.CostModel.Name)
	}
	if _, ok := ec.Sizer.(engine.PercentSizer); !ok {
		t.Errorf("sizer = %T", ec.Sizer)
	}
	if ec.Strategy.Symbol != "" && ec.Strategy.Symbol != "BTCUSDT" {
		t.Errorf("strategy symbol = %q", ec.Strategy.Symbol)
	}
	if err := ec.Validate(); err != nil {
		t.Errorf("engine config invalid: %v", err)
	}
}
