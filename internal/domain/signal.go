package domain

import "backtest_go/pkg/quant"

// SignalKind enumerates the actions a strategy may request.
type SignalKind uint8

const (
	SignalHold SignalKind = iota
	SignalBuy
	SignalSell
	SignalCloseLong
	SignalCloseShort
)

func (k SignalKind) String() string {
	switch k {
	case SignalHold:
		return "HOLD"
	case SignalBuy:
		return "BUY"
	case SignalSell:
		return "SELL"
	case SignalCloseLong:
		return "CLOSE_LONG"
	case SignalCloseShort:
		return "CLOSE_SHORT"
	default:
		return "UNKNOWN"
	}
}

// Signal is a strategy's trading intent. All price fields are optional (zero
// means unset); a zero QtySats defers sizing to the engine's policy.
type Signal struct {
	Kind             SignalKind
	Symbol           string
	Confidence       float64
	LimitPriceMicros quant.PriceMicros
	StopPriceMicros  quant.PriceMicros
	TakeProfitMicros quant.PriceMicros
	QtySats          quant.QtySats
	Metadata         map[string]string
}
