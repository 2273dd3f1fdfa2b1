package domain

import "backtest_go/pkg/quant"

// Fill is the simulated execution of (part of) an order. PriceMicros is the
// reference market price at fill time; ExecPriceMicros carries the
// slippage-adjusted price for the audit trail, and SlippageMicros the total
// slippage cost in quote currency. Fills are transient: produced by the cost
// model, consumed by the ledger, then kept only in the audit log.
type Fill struct {
	OrderID          string            `json:"order_id"`
	Symbol           string            `json:"symbol"`
	Side             Side              `json:"side"`
	PriceMicros      quant.PriceMicros `json:"price"`
	ExecPriceMicros  quant.PriceMicros `json:"exec_price"`
	QtySats          quant.QtySats     `json:"qty"`
	CommissionMicros quant.PriceMicros `json:"commission"`
	SlippageMicros   quant.PriceMicros `json:"slippage"`
	Ts               quant.TimeStamp   `json:"ts"`
}

// CostMicros is the total non-notional cost of the fill.
func (f Fill) CostMicros() quant.PriceMicros {
	return f.CommissionMicros + f.SlippageMicros
}
