// Package portfolio tracks cash, open positions, and realized results for a
// simulation run. The Ledger is the single money authority: every fill passes
// through ApplyFill, and total equity is always reconstructible as cash plus
// the marked value of open positions. All amounts are int64 micros.
package portfolio

import (
	"fmt"
	"sort"

	"backtest_go/internal/domain"
	"backtest_go/pkg/quant"
	"backtest_go/pkg/safe"
)

// EquityPoint is one sample of the equity curve.
type EquityPoint struct {
	Ts           quant.TimeStamp   `json:"ts"`
	EquityMicros quant.PriceMicros `json:"equity"`
}

// Ledger holds the portfolio state of one run. It is not safe for concurrent
// use: the simulation applies fills from a single goroutine.
type Ledger struct {
	initialCashMicros quant.PriceMicros
	cashMicros        quant.PriceMicros
	allowShort        bool

	positions map[string]*domain.Position

	realizedPnLMicros quant.PriceMicros
	commissionMicros  quant.PriceMicros
	slippageMicros    quant.PriceMicros

	curve []EquityPoint
}

// NewLedger creates a ledger with the given starting cash.
func NewLedger(initialCash quant.PriceMicros, allowShort bool) *Ledger {
	return &Ledger{
		initialCashMicros: initialCash,
		cashMicros:        initialCash,
		allowShort:        allowShort,
		positions:         make(map[string]*domain.Position),
	}
}

func notionalMicros(price quant.PriceMicros, qty quant.QtySats) int64 {
	return safe.MulDiv(int64(price), int64(qty), quant.QtyScale)
}

// vwap returns the volume-weighted average entry after adding qty at price to
// an existing lot of oldQty at oldAvg. Quantities are absolute values.
func vwap(oldAvg quant.PriceMicros, oldQty quant.QtySats, price quant.PriceMicros, qty quant.QtySats) quant.PriceMicros {
	total := safe.Add(notionalMicros(oldAvg, oldQty), notionalMicros(price, qty))
	return quant.PriceMicros(safe.MulDiv(total, quant.QtyScale, safe.Add(int64(oldQty), int64(qty))))
}

// ApplyFill settles one fill against the ledger. Fills are charged at the
// fill's base price; commission and slippage are debited from cash on top.
// The first return is the realized PnL delta of the closing portion, net of
// the fill's commission and slippage. Pure entries realize zero; their costs
// reduce cash only. On error the ledger is unchanged and the fill must be
// treated as rejected.
func (l *Ledger) ApplyFill(fill *domain.Fill) (quant.PriceMicros, error) {
	if fill.QtySats <= 0 {
		return 0, fmt.Errorf("fill quantity must be positive, got %d", fill.QtySats)
	}
	if fill.PriceMicros <= 0 {
		return 0, fmt.Errorf("fill price must be positive, got %d", fill.PriceMicros)
	}
	switch fill.Side {
	case domain.SideBuy:
		return l.applyBuy(fill)
	case domain.SideSell:
		return l.applySell(fill)
	default:
		return 0, fmt.Errorf("unknown fill side %q", fill.Side)
	}
}

// applyBuy covers any short exposure first, then opens or extends a long
// with the remainder. The cash floor applies only when exposure increases:
// with shorting enabled the ledger runs on margin, and a cover always
// settles even when it leaves cash negative.
func (l *Ledger) applyBuy(fill *domain.Fill) (quant.PriceMicros, error) {
	pos := l.positions[fill.Symbol]

	coverQty := quant.QtySats(0)
	if pos != nil && pos.IsShort() {
		coverQty = min(fill.QtySats, -pos.QtySats)
	}
	openQty := fill.QtySats - coverQty

	debit := safe.Add(notionalMicros(fill.PriceMicros, fill.QtySats), int64(fill.CostMicros()))
	if openQty > 0 && int64(l.cashMicros) < debit {
		return 0, domain.ErrInsufficientFunds
	}

	var realized quant.PriceMicros
	if coverQty > 0 {
		diff := safe.Sub(int64(pos.AvgEntryPriceMicros), int64(fill.PriceMicros))
		gross := safe.MulDiv(diff, int64(coverQty), quant.QtyScale)
		realized = quant.PriceMicros(safe.Sub(gross, int64(fill.CostMicros())))
	}

	l.cashMicros = quant.PriceMicros(safe.Sub(int64(l.cashMicros), debit))
	l.settle(fill, realized)

	if coverQty > 0 {
		pos.QtySats += coverQty
	}
	if openQty > 0 {
		switch {
		case pos == nil || pos.QtySats == 0:
			pos = l.reset(fill.Symbol, openQty, fill.PriceMicros)
		default:
			pos.AvgEntryPriceMicros = vwap(pos.AvgEntryPriceMicros, pos.QtySats, fill.PriceMicros, openQty)
			pos.QtySats += openQty
		}
	}
	l.finish(fill, pos)
	return realized, nil
}

// applySell closes long exposure first, then opens or extends a short with
// the remainder when shorting is enabled.
func (l *Ledger) applySell(fill *domain.Fill) (quant.PriceMicros, error) {
	pos := l.positions[fill.Symbol]

	closeQty := quant.QtySats(0)
	if pos != nil && pos.IsLong() {
		closeQty = min(fill.QtySats, pos.QtySats)
	}
	shortQty := fill.QtySats - closeQty

	if shortQty > 0 && !l.allowShort {
		if pos == nil || pos.QtySats == 0 {
			return 0, domain.ErrNoPosition
		}
		return 0, domain.ErrInsufficientPosition
	}

	var realized quant.PriceMicros
	if closeQty > 0 {
		diff := safe.Sub(int64(fill.PriceMicros), int64(pos.AvgEntryPriceMicros))
		gross := safe.MulDiv(diff, int64(closeQty), quant.QtyScale)
		realized = quant.PriceMicros(safe.Sub(gross, int64(fill.CostMicros())))
	}

	credit := safe.Sub(notionalMicros(fill.PriceMicros, fill.QtySats), int64(fill.CostMicros()))
	l.cashMicros = quant.PriceMicros(safe.Add(int64(l.cashMicros), credit))
	l.settle(fill, realized)

	if closeQty > 0 {
		pos.QtySats -= closeQty
	}
	if shortQty > 0 {
		switch {
		case pos == nil || pos.QtySats == 0:
			pos = l.reset(fill.Symbol, -shortQty, fill.PriceMicros)
		default:
			pos.AvgEntryPriceMicros = vwap(pos.AvgEntryPriceMicros, -pos.QtySats, fill.PriceMicros, shortQty)
			pos.QtySats -= shortQty
		}
	}
	l.finish(fill, pos)
	return realized, nil
}

func (l *Ledger) settle(fill *domain.Fill, realized quant.PriceMicros) {
	l.realizedPnLMicros = quant.PriceMicros(safe.Add(int64(l.realizedPnLMicros), int64(realized)))
	l.commissionMicros = quant.PriceMicros(safe.Add(int64(l.commissionMicros), int64(fill.CommissionMicros)))
	l.slippageMicros = quant.PriceMicros(safe.Add(int64(l.slippageMicros), int64(fill.SlippageMicros)))
}

func (l *Ledger) reset(symbol string, qty quant.QtySats, price quant.PriceMicros) *domain.Position {
	pos := &domain.Position{
		Symbol:              symbol,
		QtySats:             qty,
		AvgEntryPriceMicros: price,
	}
	l.positions[symbol] = pos
	return pos
}

func (l *Ledger) finish(fill *domain.Fill, pos *domain.Position) {
	if pos != nil {
		if pos.QtySats == 0 {
			delete(l.positions, fill.Symbol)
		} else {
			pos.MarkPrice(fill.PriceMicros)
		}
	}
	l.RecordEquity(fill.Ts)
}

// MarkToMarket updates the current price of the symbol's position, if any.
func (l *Ledger) MarkToMarket(symbol string, price quant.PriceMicros) {
	if pos, ok := l.positions[symbol]; ok {
		pos.MarkPrice(price)
	}
}

// RecordEquity appends an equity curve sample at ts.
func (l *Ledger) RecordEquity(ts quant.TimeStamp) {
	l.curve = append(l.curve, EquityPoint{Ts: ts, EquityMicros: l.TotalEquity()})
}

// TotalEquity is cash plus the signed marked value of every open position.
func (l *Ledger) TotalEquity() quant.PriceMicros {
	total := int64(l.cashMicros)
	for _, pos := range l.positions {
		total = safe.Add(total, int64(pos.ValueMicros()))
	}
	return quant.PriceMicros(total)
}

// UnrealizedPnL sums the marked unrealized PnL across open positions.
func (l *Ledger) UnrealizedPnL() quant.PriceMicros {
	total := int64(0)
	for _, pos := range l.positions {
		total = safe.Add(total, int64(pos.UnrealizedPnLMicros))
	}
	return quant.PriceMicros(total)
}

// Position returns a copy of the symbol's open position.
func (l *Ledger) Position(symbol string) (domain.Position, bool) {
	pos, ok := l.positions[symbol]
	if !ok {
		return domain.Position{}, false
	}
	return *pos, true
}

// OpenPositions returns copies of all open positions, sorted by symbol so
// iteration order is deterministic.
func (l *Ledger) OpenPositions() []domain.Position {
	out := make([]domain.Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// ReturnPct is the total return of the run relative to starting cash, in
// percent.
func (l *Ledger) ReturnPct() float64 {
	if l.initialCashMicros == 0 {
		return 0
	}
	return float64(l.TotalEquity()-l.initialCashMicros) / float64(l.initialCashMicros) * 100
}

func (l *Ledger) Cash() quant.PriceMicros           { return l.cashMicros }
func (l *Ledger) InitialCash() quant.PriceMicros    { return l.initialCashMicros }
func (l *Ledger) RealizedPnL() quant.PriceMicros    { return l.realizedPnLMicros }
func (l *Ledger) CommissionPaid() quant.PriceMicros { return l.commissionMicros }
func (l *Ledger) SlippagePaid() quant.PriceMicros   { return l.slippageMicros }
func (l *Ledger) EquityCurve() []EquityPoint        { return l.curve }
