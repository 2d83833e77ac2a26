package math

import (
	"math/big"
)

var (
	// Q96 is 2^96, the fixed point scale of sqrt prices
	Q96 = new(big.Int).Lsh(big.NewInt(1), 96)

	// MaxUint112 is the largest value a UniswapV2 style reserve may hold
	MaxUint112 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 112), big.NewInt(1))

	// PipsDenominator is the denominator of fees expressed in pips (1e6 = 100%)
	PipsDenominator = big.NewInt(1_000_000)

	zero = big.NewInt(0)
	one  = big.NewInt(1)
)

// MulDiv computes floor(a*b/d)
func MulDiv(a, b, d *big.Int) *big.Int {
	n := new(big.Int).Mul(a, b)
	return n.Quo(n, d)
}

// MulDivRoundingUp computes ceil(a*b/d)
func MulDivRoundingUp(a, b, d *big.Int) *big.Int {
	return DivRoundingUp(new(big.Int).Mul(a, b), d)
}

// DivRoundingUp computes ceil(a/d) for non-negative a and positive d
func DivRoundingUp(a, d *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(a, d, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, one)
	}
	return q
}

// Sqrt returns floor(sqrt(x)), or zero for non-positive x
func Sqrt(x *big.Int) *big.Int {
	if x.Sign() <= 0 {
		return new(big.Int)
	}
	return new(big.Int).Sqrt(x)
}

// Min returns a copy of the smaller of a and b
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// Max returns a copy of the larger of a and b
func Max(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// IsPositive reports whether x is non-nil and greater than zero
func IsPositive(x *big.Int) bool {
	return x != nil && x.Sign() > 0
}

// Clone returns a copy of x, treating nil as zero
func Clone(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}

// ApplyBps returns floor(x*bps/10000), or zero when x is not positive
func ApplyBps(x *big.Int, bps uint32) *big.Int {
	if x == nil || x.Cmp(zero) <= 0 || bps == 0 {
		return new(big.Int)
	}
	return MulDiv(x, new(big.Int).SetUint64(uint64(bps)), big.NewInt(10_000))
}
