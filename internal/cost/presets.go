package cost

import (
	"fmt"

	"github.com/shopspring/decimal"

	"backtest_go/pkg/quant"
)

// Named venue presets. These are starting points, not gospel: callers that
// know their venue's fee tier should build a Model directly.
var (
	// PresetCryptoSpot mirrors a typical spot venue base tier: 10 bps both
	// sides, 5 bps fixed slippage.
	PresetCryptoSpot = Model{
		Name:        "crypto_spot",
		MakerRate:   decimal.RequireFromString("0.001"),
		TakerRate:   decimal.RequireFromString("0.001"),
		FixedBps:    decimal.RequireFromString("5"),
		ImpactCoeff: decimal.RequireFromString("0.1"),
	}

	// PresetCryptoFutures mirrors a perpetual-futures venue: 2 bps maker,
	// 5 bps taker, tighter books.
	PresetCryptoFutures = Model{
		Name:        "crypto_futures",
		MakerRate:   decimal.RequireFromString("0.0002"),
		TakerRate:   decimal.RequireFromString("0.0005"),
		FixedBps:    decimal.RequireFromString("2"),
		ImpactCoeff: decimal.RequireFromString("0.05"),
	}

	// PresetUSEquity models a per-order minimum commission broker with a
	// liquid book.
	PresetUSEquity = Model{
		Name:                "us_equity",
		MakerRate:           decimal.RequireFromString("0.0003"),
		TakerRate:           decimal.RequireFromString("0.0005"),
		MinCommissionMicros: quant.ToPriceMicros(1.00),
		FixedBps:            decimal.RequireFromString("1"),
		ImpactCoeff:         decimal.RequireFromString("0.02"),
	}

	// PresetZero disables all costs. Used by tests and for isolating
	// strategy alpha from execution drag.
	PresetZero = Model{
		Name:        "zero",
		MakerRate:   decimal.Zero,
		TakerRate:   decimal.Zero,
		FixedBps:    decimal.Zero,
		ImpactCoeff: decimal.Zero,
	}
)

var presets = map[string]Model{
	PresetCryptoSpot.Name:    PresetCryptoSpot,
	PresetCryptoFutures.Name: PresetCryptoFutures,
	PresetUSEquity.Name:      PresetUSEquity,
	PresetZero.Name:          PresetZero,
}

// Preset looks a model up by its configured name.
func Preset(name string) (Model, error) {
	m, ok := presets[name]
	if !ok {
		return Model{}, fmt.Errorf("unknown cost preset: %q", name)
	}
	return m, nil
}
