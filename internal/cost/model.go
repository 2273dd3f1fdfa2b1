// Package cost simulates venue fees and market impact for hypothetical
// fills. Rates are decimal values so fee math on int64 notionals stays
// exact; results are rounded to micros once, at the end.
package cost

import (
	"github.com/shopspring/decimal"

	"backtest_go/internal/domain"
	"backtest_go/pkg/quant"
	"backtest_go/pkg/safe"
)

// Model holds the fee and slippage parameters of one venue/instrument class.
type Model struct {
	Name string

	// Commission: max(notional * rate, MinCommission). MakerRate applies to
	// resting order types (limit, post-only), TakerRate to everything else.
	MakerRate           decimal.Decimal
	TakerRate           decimal.Decimal
	MinCommissionMicros quant.PriceMicros

	// Slippage per unit: price * FixedBps/10000 + price * ImpactCoeff *
	// (qty / avgVolume), floored at MinSlippage. Resting orders fill at
	// their limit or better and incur none.
	FixedBps          decimal.Decimal
	ImpactCoeff       decimal.Decimal
	MinSlippageMicros quant.PriceMicros
}

var tenThousand = decimal.NewFromInt(10_000)

// Commission computes the fee for a fill of qty at price.
func (m Model) Commission(orderType domain.OrderType, price quant.PriceMicros, qty quant.QtySats) quant.PriceMicros {
	rate := m.TakerRate
	if orderType.IsResting() {
		rate = m.MakerRate
	}
	notional := safe.MulDiv(int64(price), int64(qty), quant.QtyScale)
	fee := decimal.NewFromInt(notional).Mul(rate).Round(0)
	c := quant.PriceMicros(fee.IntPart())
	if c < m.MinCommissionMicros {
		c = m.MinCommissionMicros
	}
	return c
}

// SlippagePerUnit computes the unfavorable price delta per unit for an
// aggressive fill. Resting orders return zero. avgVolume == 0 disables the
// impact component.
func (m Model) SlippagePerUnit(orderType domain.OrderType, price quant.PriceMicros, qty quant.QtySats, avgVolume quant.QtySats) quant.PriceMicros {
	if orderType.IsResting() {
		return 0
	}
	p := decimal.NewFromInt(int64(price))
	delta := p.Mul(m.FixedBps).Div(tenThousand)
	if avgVolume > 0 {
		participation := decimal.NewFromInt(int64(qty)).Div(decimal.NewFromInt(int64(avgVolume)))
		delta = delta.Add(p.Mul(m.ImpactCoeff).Mul(participation))
	}
	d := quant.PriceMicros(delta.Round(0).IntPart())
	if d < m.MinSlippageMicros {
		d = m.MinSlippageMicros
	}
	return d
}

// TotalCost simulates the full cost of a fill. It returns the
// slippage-adjusted execution price (worse for the taker: up for buys, down
// for sells), the commission, and the total slippage cost in quote currency.
// The commission is charged on the execution-price notional.
func (m Model) TotalCost(orderType domain.OrderType, side domain.Side, price quant.PriceMicros, qty quant.QtySats, avgVolume quant.QtySats) (execPrice, commission, slippage quant.PriceMicros) {
	perUnit := m.SlippagePerUnit(orderType, price, qty, avgVolume)
	if side == domain.SideBuy {
		execPrice = quant.PriceMicros(safe.Add(int64(price), int64(perUnit)))
	} else {
		execPrice = quant.PriceMicros(safe.Sub(int64(price), int64(perUnit)))
	}
	slippage = quant.PriceMicros(safe.MulDiv(int64(perUnit), int64(qty), quant.QtyScale))
	commission = m.Commission(orderType, execPrice, qty)
	return execPrice, commission, slippage
}
