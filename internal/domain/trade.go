package domain

import (
	"backtest_go/pkg/quant"
	"backtest_go/pkg/safe"
)

// Trade is the audit record of one round trip: opened when a position is
// first established, extended by scale-in and scale-out fills, and closed
// when the position fully exits. Once Closed is set the exit fields are
// frozen; every mutator no-ops afterwards.
type Trade struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Side   Side   `json:"side"` // BUY = long round trip, SELL = short

	EntryTs quant.TimeStamp `json:"entry_ts"`
	ExitTs  quant.TimeStamp `json:"exit_ts"`

	AvgEntryPriceMicros quant.PriceMicros `json:"avg_entry_price"`
	AvgExitPriceMicros  quant.PriceMicros `json:"avg_exit_price"`
	QtySats             quant.QtySats     `json:"qty"` // total quantity entered

	PnLMicros        quant.PriceMicros `json:"pnl"`
	CommissionMicros quant.PriceMicros `json:"commission"`
	SlippageMicros   quant.PriceMicros `json:"slippage"`

	// Per-unit price excursions relative to the average entry,
	// direction-adjusted: MAE <= 0, MFE >= 0.
	MAEMicros quant.PriceMicros `json:"mae"`
	MFEMicros quant.PriceMicros `json:"mfe"`

	Closed bool `json:"closed"`

	entryNotionalMicros int64
	exitNotionalMicros  int64
	exitQtySats         int64
}

// NewTrade opens a trade record for a freshly established position.
func NewTrade(id, symbol string, side Side, ts quant.TimeStamp) *Trade {
	return &Trade{
		ID:      id,
		Symbol:  symbol,
		Side:    side,
		EntryTs: ts,
	}
}

// AddEntry records an opening (or scale-in) fill and updates the
// volume-weighted average entry price.
func (t *Trade) AddEntry(f Fill) {
	if t.Closed {
		return
	}
	notional := safe.MulDiv(int64(f.PriceMicros), int64(f.QtySats), quant.QtyScale)
	t.entryNotionalMicros = safe.Add(t.entryNotionalMicros, notional)
	t.QtySats += f.QtySats
	t.AvgEntryPriceMicros = quant.PriceMicros(
		safe.MulDiv(t.entryNotionalMicros, quant.QtyScale, int64(t.QtySats)))
	t.CommissionMicros += f.CommissionMicros
	t.SlippageMicros += f.SlippageMicros
}

// AddExit records a closing (or scale-out) fill. realizedDelta is the net
// PnL the ledger attributed to this fill, so the trade total stays exactly
// consistent with the portfolio's realized PnL.
func (t *Trade) AddExit(f Fill, realizedDelta quant.PriceMicros) {
	if t.Closed {
		return
	}
	notional := safe.MulDiv(int64(f.PriceMicros), int64(f.QtySats), quant.QtyScale)
	t.exitNotionalMicros = safe.Add(t.exitNotionalMicros, notional)
	t.exitQtySats += int64(f.QtySats)
	t.AvgExitPriceMicros = quant.PriceMicros(
		safe.MulDiv(t.exitNotionalMicros, quant.QtyScale, t.exitQtySats))
	t.PnLMicros += realizedDelta
	t.CommissionMicros += f.CommissionMicros
	t.SlippageMicros += f.SlippageMicros
}

// UpdateExcursion folds a new market price into the MAE/MFE trackers.
func (t *Trade) UpdateExcursion(price quant.PriceMicros) {
	if t.Closed || t.AvgEntryPriceMicros == 0 {
		return
	}
	exc := safe.Sub(int64(price), int64(t.AvgEntryPriceMicros))
	if t.Side == SideSell {
		exc = -exc
	}
	if quant.PriceMicros(exc) < t.MAEMicros {
		t.MAEMicros = quant.PriceMicros(exc)
	}
	if quant.PriceMicros(exc) > t.MFEMicros {
		t.MFEMicros = quant.PriceMicros(exc)
	}
}

// Close freezes the trade. Calling Close on an already closed trade does not
// overwrite the recorded exit time.
func (t *Trade) Close(ts quant.TimeStamp) {
	if t.Closed {
		return
	}
	t.ExitTs = ts
	t.Closed = true
}

// Duration is the holding time in microseconds. Zero until closed.
func (t *Trade) Duration() int64 {
	if !t.Closed {
		return 0
	}
	return int64(t.ExitTs - t.EntryTs)
}
