// Package safe provides overflow-checked int64 arithmetic for the fixed-point
// money path. Overflow is a programming error, not an input error: every
// function panics rather than returning a wrapped value.
package safe

import (
	"math"
	"math/bits"
)

// Add returns a+b, panicking on overflow. The sum overflowed exactly when
// both operands share a sign that the result lost.
func Add(a, b int64) int64 {
	s := a + b
	if (a^s)&(b^s) < 0 {
		panic("safe: int64 overflow in Add")
	}
	return s
}

// Sub returns a-b, panicking on overflow.
func Sub(a, b int64) int64 {
	d := a - b
	if (a^b)&(a^d) < 0 {
		panic("safe: int64 overflow in Sub")
	}
	return d
}

// Mul returns a*b, panicking on overflow. The wrapped product is verified by
// dividing back; MinInt64 * -1 needs its own guard because Go defines that
// quotient as MinInt64 rather than trapping.
func Mul(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	if (a == math.MinInt64 && b == -1) || (b == math.MinInt64 && a == -1) {
		panic("safe: int64 overflow in Mul")
	}
	p := a * b
	if p/b != a {
		panic("safe: int64 overflow in Mul")
	}
	return p
}

// Div returns a/b, panicking on division by zero and on the one overflowing
// quotient, MinInt64 / -1.
func Div(a, b int64) int64 {
	if b == 0 {
		panic("safe: division by zero in Div")
	}
	if a == math.MinInt64 && b == -1 {
		panic("safe: int64 overflow in Div")
	}
	return a / b
}

// MulDiv computes a*b/den with a 128-bit intermediate product, truncating
// toward zero. The direct Mul(a, b) overflows for realistic inputs
// (price 100k USD in micros times 1 BTC in sats exceeds MaxInt64), so every
// notional computation must go through here. Panics when den == 0 or when
// the final quotient does not fit in int64.
func MulDiv(a, b, den int64) int64 {
	if den == 0 {
		panic("safe: division by zero in MulDiv")
	}

	neg := false
	ua, ub, uden := uint64(a), uint64(b), uint64(den)
	if a < 0 {
		neg = !neg
		ua = uint64(-a)
	}
	if b < 0 {
		neg = !neg
		ub = uint64(-b)
	}
	if den < 0 {
		neg = !neg
		uden = uint64(-den)
	}

	hi, lo := bits.Mul64(ua, ub)
	if hi >= uden {
		// Quotient needs more than 64 bits.
		panic("safe: int64 overflow in MulDiv")
	}
	quo, _ := bits.Div64(hi, lo, uden)

	if neg {
		if quo > uint64(math.MaxInt64)+1 {
			panic("safe: int64 overflow in MulDiv")
		}
		return -int64(quo)
	}
	if quo > uint64(math.MaxInt64) {
		panic("safe: int64 overflow in MulDiv")
	}
	return int64(quo)
}
