package domain

import (
	"context"

	"backtest_go/pkg/quant"
)

// Candle is one OHLCV bar. Immutable once loaded from a source.
type Candle struct {
	Symbol      string            `json:"symbol"`
	Interval    string            `json:"interval"`
	Ts          quant.TimeStamp   `json:"ts"`
	OpenMicros  quant.PriceMicros `json:"open"`
	HighMicros  quant.PriceMicros `json:"high"`
	LowMicros   quant.PriceMicros `json:"low"`
	CloseMicros quant.PriceMicros `json:"close"`
	VolumeSats  quant.QtySats     `json:"volume"`
}

// CandleSource supplies historical candles to the simulation. The engine
// treats returned data as authoritative and immutable for the run.
type CandleSource interface {
	// QueryCandles returns candles for [start, end], ordered by timestamp.
	QueryCandles(ctx context.Context, symbol, interval string, start, end quant.TimeStamp) ([]Candle, error)

	// LatestCandle returns the most recent candle, or nil when none exists.
	LatestCandle(ctx context.Context, symbol, interval string) (*Candle, error)
}
