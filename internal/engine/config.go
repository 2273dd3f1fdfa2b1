package engine

import (
	"fmt"
	"log/slog"

	"backtest_go/internal/cost"
	"backtest_go/internal/domain"
	"backtest_go/internal/strategy"
	"backtest_go/pkg/quant"
)

// Config holds everything a single backtest run needs. Zero values for the
// optional fields are filled in by normalize.
type Config struct {
	InitialCashMicros quant.PriceMicros
	Symbols           []string
	Interval          string
	Start             quant.TimeStamp
	End               quant.TimeStamp

	CostModel cost.Model

	// MaxPositions limits concurrently open symbols. Zero means unlimited.
	MaxPositions int
	AllowShort   bool

	// Sizer decides entry quantities for signals that carry none. Defaults
	// to 10% of equity per entry.
	Sizer Sizer

	// Strategy holds the config handed to Strategy.Initialize. An empty
	// Symbol defaults to the run's first symbol.
	Strategy strategy.Config

	Logger *slog.Logger
}

// Validate rejects configurations that cannot produce a meaningful run.
func (c *Config) Validate() error {
	if c.InitialCashMicros <= 0 {
		return fmt.Errorf("initial cash must be positive, got %d", c.InitialCashMicros)
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	for _, s := range c.Symbols {
		if s == "" {
			return fmt.Errorf("empty symbol in symbol list")
		}
	}
	if c.Interval == "" {
		return fmt.Errorf("interval is required")
	}
	if c.Start >= c.End {
		return fmt.Errorf("%w: start %d >= end %d", domain.ErrInvalidWindow, c.Start, c.End)
	}
	if c.MaxPositions < 0 {
		return fmt.Errorf("max positions must be >= 0, got %d", c.MaxPositions)
	}
	return nil
}

func (c *Config) normalize() {
	if c.Sizer == nil {
		c.Sizer = PercentSizer{Percent: 10}
	}
	if c.Strategy.Symbol == "" {
		c.Strategy.Symbol = c.Symbols[0]
	}
	if c.Strategy.Interval == "" {
		c.Strategy.Interval = c.Interval
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
