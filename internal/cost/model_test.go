package cost

import (
	"testing"

	"github.com/shopspring/decimal"

	"backtest_go/internal/domain"
	"backtest_go/pkg/quant"
)

func testModel() Model {
	return Model{
		Name:                "test",
		MakerRate:           decimal.RequireFromString("0.0002"),
		TakerRate:           decimal.RequireFromString("0.001"),
		MinCommissionMicros: 50_000, // 0.05
		FixedBps:            decimal.RequireFromString("10"),
		ImpactCoeff:         decimal.RequireFromString("0.1"),
	}
}

func TestCommission_MakerVsTaker(t *testing.T) {
	m := testModel()
	price := quant.ToPriceMicros(100) // notional = 100 for 1 unit
	qty := quant.ToQtySats(1)

	// Taker: 100 * 0.001 = 0.10
	if got := m.Commission(domain.OrderMarket, price, qty); got != 100_000 {
		t.Errorf("taker commission = %d, want 100000", got)
	}
	// Maker: 100 * 0.0002 = 0.02, floored at min 0.05
	if got := m.Commission(domain.OrderLimit, price, qty); got != 50_000 {
		t.Errorf("maker commission = %d, want min 50000", got)
	}
	// Post-only is a resting type too.
	if got := m.Commission(domain.OrderPostOnly, price, qty); got != 50_000 {
		t.Errorf("post-only commission = %d, want min 50000", got)
	}
}

func TestSlippage_RestingOrdersAreFree(t *testing.T) {
	m := testModel()
	if got := m.SlippagePerUnit(domain.OrderLimit, quant.ToPriceMicros(100), quant.ToQtySats(1), quant.ToQtySats(10)); got != 0 {
		t.Errorf("limit slippage = %d, want 0", got)
	}
}

func TestSlippage_FixedAndImpact(t *testing.T) {
	m := testModel()
	price := quant.ToPriceMicros(100)

	// Fixed only (zero avg volume disables impact):
	// 100 * 10/10000 = 0.10
	got := m.SlippagePerUnit(domain.OrderMarket, price, quant.ToQtySats(1), 0)
	if got != 100_000 {
		t.Errorf("fixed slippage = %d, want 100000", got)
	}

	// With impact: qty 2, avgVol 10 -> 100 * 0.1 * 0.2 = 2.0, plus fixed 0.10
	got = m.SlippagePerUnit(domain.OrderMarket, price, quant.ToQtySats(2), quant.ToQtySats(10))
	if got != 2_100_000 {
		t.Errorf("impact slippage = %d, want 2100000", got)
	}
}

func TestSlippage_MinFloor(t *testing.T) {
	m := testModel()
	m.MinSlippageMicros = 5_000_000
	got := m.SlippagePerUnit(domain.OrderMarket, quant.ToPriceMicros(100), quant.ToQtySats(1), 0)
	if got != 5_000_000 {
		t.Errorf("slippage = %d, want floor 5000000", got)
	}
}

func TestTotalCost_UnfavorableDirection(t *testing.T) {
	m := testModel()
	price := quant.ToPriceMicros(100)
	qty := quant.ToQtySats(1)

	buyPx, _, buySlip := m.TotalCost(domain.OrderMarket, domain.SideBuy, price, qty, 0)
	if buyPx <= price {
		t.Errorf("buy exec price %d should be above %d", buyPx, price)
	}
	sellPx, _, _ := m.TotalCost(domain.OrderMarket, domain.SideSell, price, qty, 0)
	if sellPx >= price {
		t.Errorf("sell exec price %d should be below %d", sellPx, price)
	}
	// Per-unit delta 0.10 on 1 unit = 0.10 total slippage cost.
	if buySlip != 100_000 {
		t.Errorf("buy slippage cost = %d, want 100000", buySlip)
	}
}

func TestTotalCost_ZeroModel(t *testing.T) {
	px, comm, slip := PresetZero.TotalCost(domain.OrderMarket, domain.SideBuy, quant.ToPriceMicros(100), quant.ToQtySats(1), 0)
	if px != quant.ToPriceMicros(100) || comm != 0 || slip != 0 {
		t.Errorf("zero model produced costs: px=%d comm=%d slip=%d", px, comm, slip)
	}
}

func TestPresetLookup(t *testing.T) {
	for _, name := range []string{"crypto_spot", "crypto_futures", "us_equity", "zero"} {
		if _, err := Preset(name); err != nil {
			t.Errorf("Preset(%q): %v", name, err)
		}
	}
	if _, err := Preset("nonsense"); err == nil {
		t.Error("expected error for unknown preset")
	}
}
