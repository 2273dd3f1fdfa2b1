// Package results turns a finished run into a serializable performance
// report: return and risk statistics, drawdown analysis, and trade-level
// aggregates. Statistics are float64; the underlying money stays int64.
package results

import (
	"math"
	"time"

	"backtest_go/internal/domain"
	"backtest_go/internal/engine"
	"backtest_go/internal/portfolio"
	"backtest_go/pkg/quant"
)

// AnnualizationPeriods is the number of return periods assumed per year when
// annualizing ratios.
const AnnualizationPeriods = 252

// ProfitFactorNoLosses is the sentinel reported when a run has gross profit
// but zero gross loss, where the true ratio is undefined. The same sentinel
// caps Sortino and Calmar when their denominators vanish.
const ProfitFactorNoLosses = 999

// Meta describes the run a Result belongs to.
type Meta struct {
	StrategyName string          `json:"strategy"`
	Symbols      []string        `json:"symbols"`
	Interval     string          `json:"interval"`
	StartTs      quant.TimeStamp `json:"start_ts"`
	EndTs        quant.TimeStamp `json:"end_ts"`
}

// DrawdownPoint is one sample of the drawdown curve: the distance below the
// running equity peak.
type DrawdownPoint struct {
	Ts             quant.TimeStamp   `json:"ts"`
	DrawdownMicros quant.PriceMicros `json:"drawdown"`
	DrawdownPct    float64           `json:"drawdown_pct"`
}

// Result is the full report of one run.
type Result struct {
	Meta Meta `json:"meta"`
	// GeneratedAt is the time of the run's last equity sample. Reports never
	// consult the wall clock, so identical runs serialize identically.
	GeneratedAt time.Time `json:"generated_at"`

	InitialCapitalMicros quant.PriceMicros `json:"initial_capital"`
	FinalEquityMicros    quant.PriceMicros `json:"final_equity"`
	RealizedPnLMicros    quant.PriceMicros `json:"realized_pnl"`
	CommissionMicros     quant.PriceMicros `json:"commission"`
	SlippageMicros       quant.PriceMicros `json:"slippage"`
	TotalReturnPct       float64           `json:"total_return_pct"`

	TotalTrades       int               `json:"total_trades"`
	WinningTrades     int               `json:"winning_trades"`
	LosingTrades      int               `json:"losing_trades"`
	WinRate           float64           `json:"win_rate"`
	GrossProfitMicros quant.PriceMicros `json:"gross_profit"`
	GrossLossMicros   quant.PriceMicros `json:"gross_loss"`
	AvgWinMicros      quant.PriceMicros `json:"avg_win"`
	AvgLossMicros     quant.PriceMicros `json:"avg_loss"`
	LargestWinMicros  quant.PriceMicros `json:"largest_win"`
	LargestLossMicros quant.PriceMicros `json:"largest_loss"`
	ProfitFactor      float64           `json:"profit_factor"`

	SharpeRatio  float64 `json:"sharpe_ratio"`
	SortinoRatio float64 `json:"sortino_ratio"`
	CalmarRatio  float64 `json:"calmar_ratio"`

	MaxDrawdownMicros quant.PriceMicros `json:"max_drawdown"`
	MaxDrawdownPct    float64           `json:"max_drawdown_pct"`

	MinTradeDurationUs int64 `json:"min_trade_duration_us"`
	AvgTradeDurationUs int64 `json:"avg_trade_duration_us"`
	MaxTradeDurationUs int64 `json:"max_trade_duration_us"`

	EquityCurve     []portfolio.EquityPoint `json:"equity_curve"`
	DrawdownCurve   []DrawdownPoint         `json:"drawdown_curve"`
	StrategyMetrics map[string]float64      `json:"strategy_metrics,omitempty"`
}

// Compute aggregates a run's output into a Result.
func Compute(out *engine.RunOutput, meta Meta) *Result {
	r := &Result{
		Meta:                 meta,
		InitialCapitalMicros: out.Ledger.InitialCash(),
		FinalEquityMicros:    out.Ledger.TotalEquity(),
		RealizedPnLMicros:    out.Ledger.RealizedPnL(),
		CommissionMicros:     out.Ledger.CommissionPaid(),
		SlippageMicros:       out.Ledger.SlippagePaid(),
		TotalReturnPct:       out.Ledger.ReturnPct(),
		StrategyMetrics:      out.StrategyMetrics,
	}

	r.EquityCurve = collapseCurve(out.Ledger.EquityCurve())
	r.DrawdownCurve, r.MaxDrawdownMicros, r.MaxDrawdownPct = drawdowns(r.EquityCurve)
	if n := len(r.EquityCurve); n > 0 {
		r.GeneratedAt = r.EquityCurve[n-1].Ts.Time()
	} else {
		r.GeneratedAt = meta.EndTs.Time()
	}

	returns := periodReturns(r.EquityCurve)
	r.SharpeRatio = sharpe(returns)
	r.SortinoRatio = sortino(returns)
	r.CalmarRatio = calmar(r.TotalReturnPct, r.MaxDrawdownPct)

	r.aggregateTrades(out.Trades)
	return r
}

// collapseCurve keeps the last sample for each timestamp. Fills record an
// equity point in addition to the per-event sample, so raw curves can carry
// duplicate timestamps that would show up as zero-length periods.
func collapseCurve(curve []portfolio.EquityPoint) []portfolio.EquityPoint {
	out := make([]portfolio.EquityPoint, 0, len(curve))
	for _, p := range curve {
		if n := len(out); n > 0 && out[n-1].Ts == p.Ts {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	return out
}

func periodReturns(curve []portfolio.EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	out := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := float64(curve[i-1].EquityMicros)
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (float64(curve[i].EquityMicros)-prev)/prev)
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stdDev is the sample standard deviation (n-1 denominator).
func stdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}

func sharpe(returns []float64) float64 {
	sd := stdDev(returns)
	if sd == 0 {
		return 0
	}
	return mean(returns) / sd * math.Sqrt(AnnualizationPeriods)
}

// sortino penalizes only downside volatility. With positive mean return and
// no losing periods the ratio is unbounded and reported as the sentinel.
func sortino(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	var downSum float64
	for _, x := range returns {
		if x < 0 {
			downSum += x * x
		}
	}
	m := mean(returns)
	if downSum == 0 {
		if m > 0 {
			return ProfitFactorNoLosses
		}
		return 0
	}
	dd := math.Sqrt(downSum / float64(len(returns)))
	return m / dd * math.Sqrt(AnnualizationPeriods)
}

// calmar is total return over max drawdown, both in percent. maxDrawdownPct
// is already an absolute magnitude.
func calmar(totalReturnPct, maxDrawdownPct float64) float64 {
	if maxDrawdownPct == 0 {
		if totalReturnPct > 0 {
			return ProfitFactorNoLosses
		}
		return 0
	}
	return totalReturnPct / maxDrawdownPct
}

// drawdowns walks the equity curve tracking the running peak.
func drawdowns(curve []portfolio.EquityPoint) ([]DrawdownPoint, quant.PriceMicros, float64) {
	if len(curve) == 0 {
		return nil, 0, 0
	}
	out := make([]DrawdownPoint, 0, len(curve))
	peak := curve[0].EquityMicros
	var maxAbs quant.PriceMicros
	var maxPct float64
	for _, p := range curve {
		if p.EquityMicros > peak {
			peak = p.EquityMicros
		}
		dd := peak - p.EquityMicros
		var pct float64
		if peak > 0 {
			pct = float64(dd) / float64(peak) * 100
		}
		out = append(out, DrawdownPoint{Ts: p.Ts, DrawdownMicros: dd, DrawdownPct: pct})
		if dd > maxAbs {
			maxAbs = dd
		}
		if pct > maxPct {
			maxPct = pct
		}
	}
	return out, maxAbs, maxPct
}

func (r *Result) aggregateTrades(trades []*domain.Trade) {
	var (
		durations []int64
		sumDur    int64
	)
	for _, t := range trades {
		if !t.Closed {
			continue
		}
		r.TotalTrades++
		switch {
		case t.PnLMicros > 0:
			r.WinningTrades++
			r.GrossProfitMicros += t.PnLMicros
			if t.PnLMicros > r.LargestWinMicros {
				r.LargestWinMicros = t.PnLMicros
			}
		case t.PnLMicros < 0:
			r.LosingTrades++
			r.GrossLossMicros += -t.PnLMicros
			if -t.PnLMicros > r.LargestLossMicros {
				r.LargestLossMicros = -t.PnLMicros
			}
		}
		d := t.Duration()
		durations = append(durations, d)
		sumDur += d
	}

	if r.TotalTrades > 0 {
		r.WinRate = float64(r.WinningTrades) / float64(r.TotalTrades)
	}
	if r.WinningTrades > 0 {
		r.AvgWinMicros = r.GrossProfitMicros / quant.PriceMicros(r.WinningTrades)
	}
	if r.LosingTrades > 0 {
		r.AvgLossMicros = r.GrossLossMicros / quant.PriceMicros(r.LosingTrades)
	}

	switch {
	case r.GrossLossMicros > 0:
		r.ProfitFactor = float64(r.GrossProfitMicros) / float64(r.GrossLossMicros)
	case r.GrossProfitMicros > 0:
		r.ProfitFactor = ProfitFactorNoLosses
	}

	if len(durations) > 0 {
		minD, maxD := durations[0], durations[0]
		for _, d := range durations[1:] {
			if d < minD {
				minD = d
			}
			if d > maxD {
				maxD = d
			}
		}
		r.MinTradeDurationUs = minD
		r.MaxTradeDurationUs = maxD
		r.AvgTradeDurationUs = sumDur / int64(len(durations))
	}
}
