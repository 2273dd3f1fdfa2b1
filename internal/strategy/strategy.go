// Package strategy defines the boundary between the simulation engine and
// pluggable trading logic, and provides a Registry for resolving strategies
// by name.
package strategy

import (
	"backtest_go/internal/domain"
	"backtest_go/internal/event"
)

// Config carries the per-run parameters handed to a strategy before the
// first event.
type Config struct {
	Symbol   string
	Interval string
	// Params holds strategy-specific tuning values as strings, parsed by
	// the strategy itself in Initialize.
	Params map[string]string
}

// Strategy is the interface all trading strategies implement. The engine
// calls it from a single goroutine in strict event order, so implementations
// need no locking.
type Strategy interface {
	// Initialize performs one-time setup and parameter validation. A
	// returned error aborts the run before any event is processed.
	Initialize(cfg Config) error

	// OnMarketData feeds one market event to the strategy's internal state.
	OnMarketData(ev event.Event)

	// GenerateSignal returns the trading intent produced by the most recent
	// event, or nil when the strategy has nothing to say. A non-nil error is
	// a strategy bug and aborts the run.
	GenerateSignal() (*domain.Signal, error)

	// OnOrderFill notifies the strategy that one of its orders (fully or
	// partially) executed.
	OnOrderFill(order domain.Order, fill domain.Fill)

	// OnOrderReject notifies the strategy that an order was rejected, with
	// the reason.
	OnOrderReject(order domain.Order, reason error)

	// Metrics exposes strategy-internal gauges for the run report.
	Metrics() map[string]float64

	// SerializeState and DeserializeState snapshot the strategy's mutable
	// state so a run can be checkpointed and resumed.
	SerializeState() ([]byte, error)
	DeserializeState(data []byte) error

	// Shutdown releases any resources at end of run.
	Shutdown() error
}
