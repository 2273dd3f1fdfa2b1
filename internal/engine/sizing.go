package engine

import (
	"math"

	"backtest_go/internal/domain"
	"backtest_go/pkg/quant"
)

// Sizer converts a signal into an order quantity. Sizing is advisory float
// math: the ledger still enforces funds on the resulting int64 quantities.
type Sizer interface {
	Size(sig *domain.Signal, equity, price quant.PriceMicros) quant.QtySats
}

// FixedSizer spends the same cash amount on every entry; the quantity is
// the amount divided by the entry price.
type FixedSizer struct {
	AmountMicros quant.PriceMicros
}

func (s FixedSizer) Size(_ *domain.Signal, _, price quant.PriceMicros) quant.QtySats {
	if price <= 0 || s.AmountMicros <= 0 {
		return 0
	}
	return quant.QtySats(math.Round(float64(s.AmountMicros) / float64(price) * quant.QtyScale))
}

// PercentSizer risks a fixed percentage of current equity per entry.
type PercentSizer struct {
	Percent float64
}

func (s PercentSizer) Size(_ *domain.Signal, equity, price quant.PriceMicros) quant.QtySats {
	if price <= 0 || s.Percent <= 0 {
		return 0
	}
	budget := float64(equity) * s.Percent / 100
	return quant.QtySats(math.Round(budget / float64(price) * quant.QtyScale))
}

// KellyMaxFraction caps the Kelly criterion at a quarter-Kelly-ish ceiling;
// full Kelly is far too aggressive for realistic drawdown tolerance.
const KellyMaxFraction = 0.25

// KellySizer sizes entries by the Kelly criterion computed from the
// strategy's historical win rate and win/loss payoff ratio.
type KellySizer struct {
	WinRate      float64 // fraction of winning round trips, 0..1
	WinLossRatio float64 // avg win / avg loss, > 0
}

// Fraction is the clamped Kelly fraction: (w*(r+1) - 1) / r.
func (s KellySizer) Fraction() float64 {
	if s.WinLossRatio <= 0 {
		return 0
	}
	f := (s.WinRate*(s.WinLossRatio+1) - 1) / s.WinLossRatio
	if f < 0 {
		return 0
	}
	if f > KellyMaxFraction {
		return KellyMaxFraction
	}
	return f
}

func (s KellySizer) Size(_ *domain.Signal, equity, price quant.PriceMicros) quant.QtySats {
	if price <= 0 {
		return 0
	}
	budget := float64(equity) * s.Fraction()
	return quant.QtySats(math.Round(budget / float64(price) * quant.QtyScale))
}
