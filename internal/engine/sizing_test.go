package engine

import (
	"testing"

	"backtest_go/pkg/quant"
)

func TestFixedSizer(t *testing.T) {
	s := FixedSizer{AmountMicros: quant.ToPriceMicros(1_000)}
	// 1000 of cash at price 100 buys 10 units regardless of equity.
	if got := s.Size(nil, quant.ToPriceMicros(1_000_000), quant.ToPriceMicros(100)); got != quant.ToQtySats(10) {
		t.Errorf("Size() = %d, want %d", got, quant.ToQtySats(10))
	}
	if got := s.Size(nil, quant.ToPriceMicros(1_000_000), quant.ToPriceMicros(250)); got != quant.ToQtySats(4) {
		t.Errorf("Size() = %d, want %d", got, quant.ToQtySats(4))
	}
	if got := s.Size(nil, quant.ToPriceMicros(1_000_000), 0); got != 0 {
		t.Errorf("Size() with zero price = %d, want 0", got)
	}
}

func TestPercentSizer(t *testing.T) {
	s := PercentSizer{Percent: 10}
	// 10% of 100k equity at price 100 buys 100 units.
	got := s.Size(nil, quant.ToPriceMicros(100_000), quant.ToPriceMicros(100))
	if got != quant.ToQtySats(100) {
		t.Errorf("Size() = %d, want %d", got, quant.ToQtySats(100))
	}
	if got := s.Size(nil, quant.ToPriceMicros(100_000), 0); got != 0 {
		t.Errorf("Size() with zero price = %d, want 0", got)
	}
}

func TestKellyFraction(t *testing.T) {
	tests := []struct {
		name string
		s    KellySizer
		want float64
	}{
		// (0.6*2 - 1) / 1 = 0.2
		{"Moderate", KellySizer{WinRate: 0.6, WinLossRatio: 1}, 0.2},
		// (0.9*3 - 1) / 2 = 0.85, clamped
		{"ClampedAtQuarter", KellySizer{WinRate: 0.9, WinLossRatio: 2}, KellyMaxFraction},
		// (0.3*2 - 1) / 1 = -0.4, floored
		{"NegativeEdge", KellySizer{WinRate: 0.3, WinLossRatio: 1}, 0},
		{"ZeroRatio", KellySizer{WinRate: 0.9, WinLossRatio: 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.s.Fraction()
			if diff := got - tt.want; diff > 1e-12 || diff < -1e-12 {
				t.Errorf("Fraction() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKellySizer_Size(t *testing.T) {
	s := KellySizer{WinRate: 0.6, WinLossRatio: 1} // fraction 0.2
	// 20% of 100k at price 100 buys 200 units.
	got := s.Size(nil, quant.ToPriceMicros(100_000), quant.ToPriceMicros(100))
	if got != quant.ToQtySats(200) {
		t.Errorf("Size() = %d, want %d", got, quant.ToQtySats(200))
	}
}
