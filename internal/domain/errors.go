package domain

import "errors"

// Per-order execution failures. These are recoverable: the engine rejects
// the order, notifies the strategy, and the run continues.
var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrNoPosition           = errors.New("no open position")
	ErrInsufficientPosition = errors.New("insufficient position size")
	ErrNoPrice              = errors.New("no current price for symbol")
)

// Precondition failures. These are fatal and abort before the event loop.
var (
	ErrEmptyDataset  = errors.New("historical dataset is empty")
	ErrInvalidWindow = errors.New("invalid backtest time window")
)

// ErrRunEnded is the reject reason delivered for orders still resting when
// the event stream is exhausted.
var ErrRunEnded = errors.New("backtest run ended")
