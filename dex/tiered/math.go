package tiered

import (
	"errors"
	"math/big"

	bmath "github.com/michaelpento.lv/tierarb/utils/math"
)

// Sqrt price bounds in Q64.96
var (
	MinSqrtRatio    = big.NewInt(4295128739)
	MaxSqrtRatio, _ = new(big.Int).SetString("1461446703485210103287273052203988822378723970342", 10)
)

var errPriceUnderflow = errors.New("sqrt price underflow")

// amount0Delta returns L*(sqrtB-sqrtA)/(sqrtA*sqrtB) scaled by Q96
func amount0Delta(sqrtA, sqrtB, liquidity *big.Int, roundUp bool) *big.Int {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	numerator1 := new(big.Int).Lsh(liquidity, 96)
	numerator2 := new(big.Int).Sub(sqrtB, sqrtA)

	if roundUp {
		return bmath.DivRoundingUp(bmath.MulDivRoundingUp(numerator1, numerator2, sqrtB), sqrtA)
	}
	q := bmath.MulDiv(numerator1, numerator2, sqrtB)
	return q.Quo(q, sqrtA)
}

// amount1Delta returns L*(sqrtB-sqrtA)/Q96
func amount1Delta(sqrtA, sqrtB, liquidity *big.Int, roundUp bool) *big.Int {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	diff := new(big.Int).Sub(sqrtB, sqrtA)
	if roundUp {
		return bmath.MulDivRoundingUp(liquidity, diff, bmath.Q96)
	}
	return bmath.MulDiv(liquidity, diff, bmath.Q96)
}

// nextSqrtPriceFromAmount0 moves the price by an amount of token0, rounding
// the result up so the price never moves further than the amount allows
func nextSqrtPriceFromAmount0(sqrtP, liquidity, amount *big.Int, add bool) (*big.Int, error) {
	if amount.Sign() == 0 {
		return new(big.Int).Set(sqrtP), nil
	}
	numerator1 := new(big.Int).Lsh(liquidity, 96)
	product := new(big.Int).Mul(amount, sqrtP)

	if add {
		denominator := new(big.Int).Add(numerator1, product)
		return bmath.MulDivRoundingUp(numerator1, sqrtP, denominator), nil
	}
	if numerator1.Cmp(product) <= 0 {
		return nil, errPriceUnderflow
	}
	denominator := new(big.Int).Sub(numerator1, product)
	return bmath.MulDivRoundingUp(numerator1, sqrtP, denominator), nil
}

// nextSqrtPriceFromAmount1 moves the price by an amount of token1, rounding
// the result down
func nextSqrtPriceFromAmount1(sqrtP, liquidity, amount *big.Int, add bool) (*big.Int, error) {
	shifted := new(big.Int).Lsh(amount, 96)
	if add {
		quotient := shifted.Quo(shifted, liquidity)
		return quotient.Add(quotient, sqrtP), nil
	}
	quotient := bmath.DivRoundingUp(shifted, liquidity)
	if sqrtP.Cmp(quotient) <= 0 {
		return nil, errPriceUnderflow
	}
	return quotient.Sub(sqrtP, quotient), nil
}

func nextSqrtPriceFromInput(sqrtP, liquidity, amountIn *big.Int, zeroForOne bool) (*big.Int, error) {
	if zeroForOne {
		return nextSqrtPriceFromAmount0(sqrtP, liquidity, amountIn, true)
	}
	return nextSqrtPriceFromAmount1(sqrtP, liquidity, amountIn, true)
}

func nextSqrtPriceFromOutput(sqrtP, liquidity, amountOut *big.Int, zeroForOne bool) (*big.Int, error) {
	if zeroForOne {
		return nextSqrtPriceFromAmount1(sqrtP, liquidity, amountOut, false)
	}
	return nextSqrtPriceFromAmount0(sqrtP, liquidity, amountOut, false)
}

// step is the outcome of swapping within one tier
type step struct {
	sqrtNext  *big.Int
	amountIn  *big.Int
	amountOut *big.Int
	fee       *big.Int
}

// computeStep swaps inside one tier from sqrtCur toward sqrtTarget. An input
// that exactly covers the distance to the target reaches the target, which
// consumes the tier.
func computeStep(sqrtCur, sqrtTarget, liquidity, remaining *big.Int, feePips uint32, exactIn bool) (*step, error) {
	zeroForOne := sqrtCur.Cmp(sqrtTarget) >= 0
	feeBig := big.NewInt(int64(feePips))
	feeComplement := big.NewInt(int64(1_000_000 - feePips))

	var (
		sqrtNext  *big.Int
		amountIn  *big.Int
		amountOut *big.Int
		err       error
	)

	if exactIn {
		remainingLessFee := bmath.MulDiv(remaining, feeComplement, bmath.PipsDenominator)
		if zeroForOne {
			amountIn = amount0Delta(sqrtTarget, sqrtCur, liquidity, true)
		} else {
			amountIn = amount1Delta(sqrtCur, sqrtTarget, liquidity, true)
		}
		if remainingLessFee.Cmp(amountIn) >= 0 {
			sqrtNext = sqrtTarget
		} else if sqrtNext, err = nextSqrtPriceFromInput(sqrtCur, liquidity, remainingLessFee, zeroForOne); err != nil {
			return nil, err
		}
	} else {
		if zeroForOne {
			amountOut = amount1Delta(sqrtTarget, sqrtCur, liquidity, false)
		} else {
			amountOut = amount0Delta(sqrtCur, sqrtTarget, liquidity, false)
		}
		if remaining.Cmp(amountOut) >= 0 {
			sqrtNext = sqrtTarget
		} else if sqrtNext, err = nextSqrtPriceFromOutput(sqrtCur, liquidity, remaining, zeroForOne); err != nil {
			return nil, err
		}
	}

	reached := sqrtNext.Cmp(sqrtTarget) == 0

	if zeroForOne {
		if !(reached && exactIn) {
			amountIn = amount0Delta(sqrtNext, sqrtCur, liquidity, true)
		}
		if !(reached && !exactIn) {
			amountOut = amount1Delta(sqrtNext, sqrtCur, liquidity, false)
		}
	} else {
		if !(reached && exactIn) {
			amountIn = amount1Delta(sqrtCur, sqrtNext, liquidity, true)
		}
		if !(reached && !exactIn) {
			amountOut = amount0Delta(sqrtCur, sqrtNext, liquidity, false)
		}
	}

	if !exactIn && amountOut.Cmp(remaining) > 0 {
		amountOut = new(big.Int).Set(remaining)
	}

	var fee *big.Int
	if exactIn && !reached {
		fee = new(big.Int).Sub(remaining, amountIn)
	} else {
		fee = bmath.MulDivRoundingUp(amountIn, feeBig, feeComplement)
	}

	return &step{
		sqrtNext:  sqrtNext,
		amountIn:  amountIn,
		amountOut: amountOut,
		fee:       fee,
	}, nil
}
