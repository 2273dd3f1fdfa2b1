// Package quant defines the fixed-point numeric types used for all money
// and quantity accounting. Prices are int64 micros (10^6), quantities are
// int64 sats (10^8). Float64 appears only at external boundaries and in
// statistics; the simulation hot path never accumulates float error.
package quant

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// PriceMicros represents a price or money amount multiplied by 1,000,000.
// E.g., 1.23 USD = 1,230,000 PriceMicros.
type PriceMicros int64

// QtySats represents a quantity multiplied by 100,000,000.
// E.g., 1.0 BTC = 100,000,000 QtySats. Negative values denote short exposure.
type QtySats int64

// TimeStamp represents Unix microseconds.
type TimeStamp int64

const (
	PriceScale = 1_000_000
	QtyScale   = 100_000_000
)

// ToPriceMicros converts a float64 (from an external API or config) to
// PriceMicros. Only used at the boundary.
func ToPriceMicros(f float64) PriceMicros {
	return PriceMicros(math.Round(f * PriceScale))
}

// ToQtySats converts a float64 to QtySats. Only used at the boundary.
func ToQtySats(f float64) QtySats {
	return QtySats(math.Round(f * QtyScale))
}

// Float returns the price as a float64. For reporting and statistics only.
func (p PriceMicros) Float() float64 {
	return float64(p) / PriceScale
}

// Float returns the quantity as a float64. For reporting only.
func (q QtySats) Float() float64 {
	return float64(q) / QtyScale
}

func (p PriceMicros) String() string {
	return fmt.Sprintf("%.6f", float64(p)/PriceScale)
}

func (q QtySats) String() string {
	return fmt.Sprintf("%.8f", float64(q)/QtyScale)
}

// TSFromTime converts a time.Time to a TimeStamp.
func TSFromTime(t time.Time) TimeStamp {
	return TimeStamp(t.UnixMicro())
}

// Time converts the TimeStamp back to a UTC time.Time.
func (ts TimeStamp) Time() time.Time {
	return time.UnixMicro(int64(ts)).UTC()
}

// ParseTimeStamp converts a millisecond string to a TimeStamp (micros).
func ParseTimeStamp(s string) (TimeStamp, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return TimeStamp(ms * 1000), nil
}
