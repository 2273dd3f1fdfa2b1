package quant

import (
	"testing"
	"time"
)

func TestConversions(t *testing.T) {
	tests := []struct {
		name  string
		f     float64
		price PriceMicros
		qty   QtySats
	}{
		{"One", 1.0, 1_000_000, 100_000_000},
		{"Fraction", 1.23, 1_230_000, 123_000_000},
		{"Zero", 0, 0, 0},
		{"Negative", -2.5, -2_500_000, -250_000_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToPriceMicros(tt.f); got != tt.price {
				t.Errorf("ToPriceMicros(%v) = %d, want %d", tt.f, got, tt.price)
			}
			if got := ToQtySats(tt.f); got != tt.qty {
				t.Errorf("ToQtySats(%v) = %d, want %d", tt.f, got, tt.qty)
			}
		})
	}
}

func TestString(t *testing.T) {
	if got := PriceMicros(1_230_000).String(); got != "1.230000" {
		t.Errorf("PriceMicros.String() = %q", got)
	}
	if got := QtySats(150_000_000).String(); got != "1.50000000" {
		t.Errorf("QtySats.String() = %q", got)
	}
}

func TestTimeStampRoundTrip(t *testing.T) {
	orig := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	ts := TSFromTime(orig)
	if !ts.Time().Equal(orig) {
		t.Errorf("round trip changed time: %v != %v", ts.Time(), orig)
	}
}

func TestParseTimeStamp(t *testing.T) {
	ts, err := ParseTimeStamp("1704067200000")
	if err != nil {
		t.Fatalf("ParseTimeStamp: %v", err)
	}
	if ts != TimeStamp(1704067200000000) {
		t.Errorf("got %d, want 1704067200000000", ts)
	}
	if _, err := ParseTimeStamp("nonsense"); err == nil {
		t.Error("expected error for non-numeric input")
	}
}
