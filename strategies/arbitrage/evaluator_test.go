package arbitrage

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/tierarb/dex"
	"github.com/michaelpento.lv/tierarb/dex/tiered"
	"github.com/michaelpento.lv/tierarb/dex/uniswap"
	bmath "github.com/michaelpento.lv/tierarb/utils/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	tokenAddr = common.HexToAddress("0x1000000000000000000000000000000000000001")
	wethAddr  = common.HexToAddress("0x2000000000000000000000000000000000000002")
	pairAddr  = common.HexToAddress("0x3000000000000000000000000000000000000003")
	hubAddr   = common.HexToAddress("0x4000000000000000000000000000000000000004")
	arbAddr   = common.HexToAddress("0x5000000000000000000000000000000000000005")

	gasPrice = big.NewInt(20_000_000_000)
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func cpPool(t *testing.T, token, weth int64) *uniswap.Pool {
	t.Helper()
	p, err := uniswap.NewPool(pairAddr, tokenAddr, wethAddr, ether(token), ether(weth), uniswap.DefaultFeePips)
	require.NoError(t, err)
	return p
}

func fullRange(t *testing.T, token, weth int64) *tiered.Pool {
	t.Helper()
	p, err := tiered.NewFullRangePool(hubAddr, tokenAddr, wethAddr, ether(token), ether(weth), 3000)
	require.NoError(t, err)
	return p
}

// sqrtPrice returns the Q64.96 square root of num/den
func sqrtPrice(num, den int64) *big.Int {
	return bmath.Sqrt(new(big.Int).Quo(new(big.Int).Lsh(big.NewInt(num), 192), big.NewInt(den)))
}

// tieredPool concentrates liquidity around a WETH price of 0.012 per TOKEN
func tieredPool(t *testing.T) *tiered.Pool {
	t.Helper()
	p, err := tiered.NewPool(hubAddr, tokenAddr, wethAddr, sqrtPrice(12, 1000), []tiered.Tier{
		{Liquidity: ether(20), SqrtPriceLowerX96: sqrtPrice(9, 1000), SqrtPriceUpperX96: sqrtPrice(115, 10000), FeePips: 500},
		{Liquidity: ether(50), SqrtPriceLowerX96: sqrtPrice(115, 10000), SqrtPriceUpperX96: sqrtPrice(125, 10000), FeePips: 3000},
		{Liquidity: ether(10), SqrtPriceLowerX96: sqrtPrice(125, 10000), SqrtPriceUpperX96: sqrtPrice(15, 1000), FeePips: 10000},
	})
	require.NoError(t, err)
	return p
}

func newEvaluator(t *testing.T, bribeBps uint32) *Evaluator {
	return NewEvaluator(EvaluatorConfig{ProfitToken: wethAddr, BribeBps: bribeBps}, zaptest.NewLogger(t))
}

// requireNoBetterSample checks that no input on an even grid over (0, upTo]
// beats the evaluator's gross profit
func requireNoBetterSample(t *testing.T, a, b dex.Pool, upTo, gross *big.Int) {
	t.Helper()
	const steps = 2000
	for i := int64(1); i <= steps; i++ {
		x := bmath.MulDiv(upTo, big.NewInt(i), big.NewInt(steps))
		mid, err := a.QuoteExactIn(wethAddr, x)
		if err != nil || mid.Sign() == 0 {
			continue
		}
		out, err := b.QuoteExactIn(tokenAddr, mid)
		if err != nil {
			continue
		}
		profit := new(big.Int).Sub(out, x)
		require.True(t, profit.Cmp(gross) <= 0, "input %s earns %s > %s", x, profit, gross)
	}
}

func TestEvaluate(t *testing.T) {
	t.Run("CounterFirst", func(t *testing.T) {
		cp, tp := cpPool(t, 1000, 10), fullRange(t, 500, 6)
		opp, err := newEvaluator(t, 0).EvaluatePair(cp, tp, gasPrice)
		require.NoError(t, err)

		assert.False(t, opp.TieredFirst)
		assert.Equal(t, "counter-first", opp.Direction())
		assert.Equal(t, dex.KindConstantProduct, opp.Source.Kind())
		assert.Equal(t, wethAddr, opp.ProfitToken)
		assert.Equal(t, tokenAddr, opp.BridgeToken)

		bridge, err := cp.QuoteExactIn(wethAddr, opp.AmountIn)
		require.NoError(t, err)
		assert.Equal(t, bridge, opp.AmountBridge)
		out, err := tp.QuoteExactIn(tokenAddr, bridge)
		require.NoError(t, err)
		assert.Equal(t, out, opp.AmountOut)
		assert.Equal(t, new(big.Int).Sub(out, opp.AmountIn), opp.GrossProfit)

		gasCost := new(big.Int).Mul(gasPrice, big.NewInt(DefaultGasLimit))
		assert.Equal(t, gasCost, opp.GasCost)
		assert.Zero(t, opp.Bribe.Sign())
		assert.Equal(t, new(big.Int).Sub(opp.GrossProfit, gasCost), opp.NetProfit)

		requireNoBetterSample(t, cp, tp, ether(1), opp.GrossProfit)
	})

	t.Run("TieredFirst", func(t *testing.T) {
		cp, tp := cpPool(t, 1000, 12), fullRange(t, 500, 5)
		opp, err := newEvaluator(t, 0).EvaluatePair(cp, tp, gasPrice)
		require.NoError(t, err)

		assert.True(t, opp.TieredFirst)
		assert.Equal(t, dex.KindTiered, opp.Source.Kind())
		assert.Positive(t, opp.NetProfit.Sign())
	})

	t.Run("ArgumentOrderIrrelevant", func(t *testing.T) {
		cp, tp := cpPool(t, 1000, 10), fullRange(t, 500, 6)
		e := newEvaluator(t, 0)
		a, err := e.EvaluatePair(cp, tp, gasPrice)
		require.NoError(t, err)
		b, err := e.EvaluatePair(tp, cp, gasPrice)
		require.NoError(t, err)
		assert.Equal(t, a.AmountIn, b.AmountIn)
		assert.Equal(t, a.TieredFirst, b.TieredFirst)
	})

	t.Run("AcrossTierBoundary", func(t *testing.T) {
		cp, tp := cpPool(t, 1000, 10), tieredPool(t)
		e := newEvaluator(t, 0)
		opp, err := e.EvaluatePair(cp, tp, gasPrice)
		require.NoError(t, err)
		assert.False(t, opp.TieredFirst)

		// the optimum pushes the tiered price past its first boundary
		first := tp.Breakpoints(tokenAddr)[0]
		assert.True(t, opp.AmountBridge.Cmp(first) > 0)

		requireNoBetterSample(t, cp, tp, ether(2), opp.GrossProfit)
	})

	t.Run("BreakpointCandidates", func(t *testing.T) {
		cp, tp := cpPool(t, 1000, 10), tieredPool(t)
		e := newEvaluator(t, 0)
		hi := bmath.Min(cp.MaxAmountIn(wethAddr), tp.Depth(wethAddr))
		points := e.candidates(cp, tp, wethAddr, tokenAddr, hi)

		mapped, err := cp.QuoteExactOut(tokenAddr, tp.Breakpoints(tokenAddr)[0])
		require.NoError(t, err)
		assert.Contains(t, points, mapped)
		assert.Equal(t, big.NewInt(1), points[0])
		assert.Equal(t, hi, points[len(points)-1])
		for i := 1; i < len(points); i++ {
			assert.True(t, points[i-1].Cmp(points[i]) < 0)
		}
	})

	t.Run("Bribe", func(t *testing.T) {
		cp, tp := cpPool(t, 1000, 10), fullRange(t, 500, 6)
		opp, err := newEvaluator(t, 5000).EvaluatePair(cp, tp, gasPrice)
		require.NoError(t, err)

		afterGas := new(big.Int).Sub(opp.GrossProfit, opp.GasCost)
		assert.Equal(t, new(big.Int).Quo(afterGas, big.NewInt(2)), opp.Bribe)
		assert.Equal(t, new(big.Int).Sub(afterGas, opp.Bribe), opp.NetProfit)
	})

	t.Run("AlignedPrices", func(t *testing.T) {
		_, err := newEvaluator(t, 0).EvaluatePair(cpPool(t, 1000, 10), fullRange(t, 1000, 10), gasPrice)
		assert.ErrorIs(t, err, ErrNoOpportunity)
	})

	t.Run("GasExceedsProfit", func(t *testing.T) {
		_, err := newEvaluator(t, 0).EvaluatePair(cpPool(t, 1000, 10), fullRange(t, 500, 6), big.NewInt(1e15))
		assert.ErrorIs(t, err, ErrNoOpportunity)
	})

	t.Run("DifferentPairs", func(t *testing.T) {
		other, err := uniswap.NewPool(pairAddr, tokenAddr, arbAddr, ether(1), ether(1), uniswap.DefaultFeePips)
		require.NoError(t, err)
		_, err = newEvaluator(t, 0).Evaluate(other, fullRange(t, 500, 6), gasPrice)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrNoOpportunity)
	})
}

func TestRefine(t *testing.T) {
	// concave profit peaking at 777
	peak := big.NewInt(777)
	eval := func(x *big.Int) *sample {
		d := new(big.Int).Sub(x, peak)
		profit := new(big.Int).Mul(d, d)
		profit.Neg(profit)
		return &sample{amountIn: new(big.Int).Set(x), profit: profit}
	}

	s := refine(big.NewInt(1), big.NewInt(10_000), big.NewInt(2), eval)
	require.NotNil(t, s)
	assert.Equal(t, peak, s.amountIn)
}
