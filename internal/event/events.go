// Package event defines the tagged market-event variants replayed by the
// simulation. Events are immutable once built and consumed exactly once, in
// timestamp order. Consumption sites must switch exhaustively on the concrete
// type so a new variant is a compile-visible change.
package event

import (
	"backtest_go/pkg/quant"
)

// Type defines the type of event.
type Type uint16

const (
	EvCandle Type = iota + 1
	EvTrade
	EvBookSnapshot
)

// Event is the interface for all market events.
type Event interface {
	GetTs() quant.TimeStamp
	GetSymbol() string
	GetType() Type
}

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	Ts     quant.TimeStamp `json:"ts"`
	Symbol string          `json:"symbol"`
}

func (e BaseEvent) GetTs() quant.TimeStamp { return e.Ts }
func (e BaseEvent) GetSymbol() string      { return e.Symbol }

// CandleEvent is one OHLCV bar.
type CandleEvent struct {
	BaseEvent
	OpenMicros  quant.PriceMicros `json:"open"`
	HighMicros  quant.PriceMicros `json:"high"`
	LowMicros   quant.PriceMicros `json:"low"`
	CloseMicros quant.PriceMicros `json:"close"`
	VolumeSats  quant.QtySats     `json:"volume"`
}

func (e CandleEvent) GetType() Type { return EvCandle }

// TradeEvent is a single executed trade tick.
type TradeEvent struct {
	BaseEvent
	PriceMicros quant.PriceMicros `json:"price"`
	QtySats     quant.QtySats     `json:"qty"`
}

func (e TradeEvent) GetType() Type { return EvTrade }

// BookSnapshotEvent is a top-of-book snapshot.
type BookSnapshotEvent struct {
	BaseEvent
	BidPriceMicros quant.PriceMicros `json:"bid_price"`
	BidQtySats     quant.QtySats     `json:"bid_qty"`
	AskPriceMicros quant.PriceMicros `json:"ask_price"`
	AskQtySats     quant.QtySats     `json:"ask_qty"`
}

func (e BookSnapshotEvent) GetType() Type { return EvBookSnapshot }

// MarkPrice extracts the reference price the simulation marks positions at:
// candle close, trade price, or book mid. The second return is false only
// when a book snapshot is one-sided or empty.
func MarkPrice(ev Event) (quant.PriceMicros, bool) {
	switch e := ev.(type) {
	case *CandleEvent:
		return e.CloseMicros, true
	case *TradeEvent:
		return e.PriceMicros, true
	case *BookSnapshotEvent:
		if e.BidPriceMicros <= 0 || e.AskPriceMicros <= 0 {
			return 0, false
		}
		return (e.BidPriceMicros + e.AskPriceMicros) / 2, true
	default:
		return 0, false
	}
}

// TradedVolume extracts the volume an aggressive fill could plausibly
// consume at this event: candle volume, trade size, or touch depth.
func TradedVolume(ev Event) quant.QtySats {
	switch e := ev.(type) {
	case *CandleEvent:
		return e.VolumeSats
	case *TradeEvent:
		return e.QtySats
	case *BookSnapshotEvent:
		return e.BidQtySats + e.AskQtySats
	default:
		return 0
	}
}

// FromCandle wraps a loaded candle into its event form.
func FromCandle(symbol string, ts quant.TimeStamp, o, h, l, c quant.PriceMicros, v quant.QtySats) *CandleEvent {
	return &CandleEvent{
		BaseEvent:   BaseEvent{Ts: ts, Symbol: symbol},
		OpenMicros:  o,
		HighMicros:  h,
		LowMicros:   l,
		CloseMicros: c,
		VolumeSats:  v,
	}
}
