package domain

import "backtest_go/pkg/quant"

// Side of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType distinguishes resting (maker) from aggressive (taker) orders.
type OrderType string

const (
	OrderMarket   OrderType = "MARKET"
	OrderLimit    OrderType = "LIMIT"
	OrderPostOnly OrderType = "POST_ONLY"
)

// IsResting reports whether the type rests on the book and earns maker rates.
func (t OrderType) IsResting() bool {
	return t == OrderLimit || t == OrderPostOnly
}

// OrderStatus lifecycle: NEW -> PARTIALLY_FILLED -> FILLED, or
// NEW -> REJECTED / CANCELED.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
)

// Order exists only transiently inside the simulation: created when a signal
// is executed, discarded once filled, rejected, or canceled.
// All monetary values are strictly int64.
type Order struct {
	ID               string
	Symbol           string
	Side             Side
	Type             OrderType
	LimitPriceMicros quant.PriceMicros // 0 for market orders
	QtySats          quant.QtySats
	FilledSats       quant.QtySats
	Status           OrderStatus
	CreatedTs        quant.TimeStamp
}

// IsOpen checks if the order is still active.
func (o *Order) IsOpen() bool {
	return o.Status == OrderStatusNew || o.Status == OrderStatusPartiallyFilled
}

// RemainingSats returns the unfilled quantity.
func (o *Order) RemainingSats() quant.QtySats {
	return o.QtySats - o.FilledSats
}
