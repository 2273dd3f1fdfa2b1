package domain

import (
	"backtest_go/pkg/quant"
	"backtest_go/pkg/safe"
)

// Position represents an open trading position.
// QtySats is signed: positive for long, negative for short.
// All monetary values are strictly int64.
type Position struct {
	Symbol              string
	QtySats             quant.QtySats
	AvgEntryPriceMicros quant.PriceMicros // Volume-weighted average entry price
	CurrentPriceMicros  quant.PriceMicros
	UnrealizedPnLMicros quant.PriceMicros
}

// IsLong checks if the position is long.
func (p *Position) IsLong() bool {
	return p.QtySats > 0
}

// IsShort checks if the position is short.
func (p *Position) IsShort() bool {
	return p.QtySats < 0
}

// MarkPrice updates the current price and recomputes unrealized PnL.
// Long: (current - entry) * qty. Short: (entry - current) * |qty|.
func (p *Position) MarkPrice(price quant.PriceMicros) {
	p.CurrentPriceMicros = price
	diff := safe.Sub(int64(price), int64(p.AvgEntryPriceMicros))
	// Signed qty folds both cases into one expression.
	p.UnrealizedPnLMicros = quant.PriceMicros(safe.MulDiv(diff, int64(p.QtySats), quant.QtyScale))
}

// ValueMicros is the position's signed contribution to total equity:
// current price times signed quantity. Negative for shorts, whose notional
// was credited to cash when the position was opened.
func (p *Position) ValueMicros() quant.PriceMicros {
	return quant.PriceMicros(safe.MulDiv(int64(p.CurrentPriceMicros), int64(p.QtySats), quant.QtyScale))
}
